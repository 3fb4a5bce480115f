// Command ustar queries POSIX ustar archives in place: validate headers,
// inspect and list entries, and read file content without extracting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ustar: %v\n", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly before exit
	}
}
