package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type validateResult struct {
	headers int
	err     error
}

func newValidateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check every header's magic, version, and checksum",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runValidate(cmd, args)
		},
	}
}

// runValidate checks each archive on its own handle, several at a time,
// and reports results in argument order.
func (c *cli) runValidate(cmd *cobra.Command, files []string) error {
	results := make([]validateResult, len(files))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(c.cfg.Concurrency, 1))
	for i, name := range files {
		g.Go(func() error {
			a, closer, err := c.openArchive(ctx, name)
			if err != nil {
				results[i].err = err
				return nil
			}
			defer closer.Close()
			results[i].headers, results[i].err = a.Validate()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // per-archive errors are collected in results

	failed := 0
	for i, name := range files {
		r := results[i]
		if r.err != nil {
			failed++
			fmt.Fprintf(c.stdout, "%s: invalid: %v\n", name, r.err)
			continue
		}
		fmt.Fprintf(c.stdout, "%s: ok, %d headers\n", name, r.headers)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archives invalid", failed, len(files))
	}
	return nil
}
