package main

import (
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"github.com/meigma/ustar"
)

const catBufferSize = 32 << 10

type catOptions struct {
	offset int64
	length int64
	digest bool
}

func newCatCommand(c *cli) *cobra.Command {
	var opts catOptions
	cmd := &cobra.Command{
		Use:   "cat FILE PATH",
		Short: "Write the content of a file entry to stdout",
		Long: "Write the content of PATH to stdout, following links. With --digest " +
			"the sha256 digest of the selected range is printed instead.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closer, err := c.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closer.Close()

			var w io.Writer = c.stdout
			var digester digest.Digester
			if opts.digest {
				digester = digest.SHA256.Digester()
				w = digester.Hash()
			}
			if err := copyEntry(w, a, args[1], opts.offset, opts.length); err != nil {
				return err
			}
			if digester != nil {
				fmt.Fprintln(c.stdout, digester.Digest())
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int64Var(&opts.offset, "offset", 0, "start reading at this byte offset")
	flags.Int64Var(&opts.length, "length", -1, "read at most this many bytes (-1 = to end)")
	flags.BoolVar(&opts.digest, "digest", false, "print the sha256 digest instead of the content")
	return cmd
}

// copyEntry streams up to length bytes of path starting at off into w.
// A negative length copies to the end of the file.
func copyEntry(w io.Writer, a *ustar.Archive, path string, off, length int64) error {
	buf := make([]byte, catBufferSize)
	for length != 0 {
		p := buf
		if length > 0 && length < int64(len(p)) {
			p = p[:length]
		}
		n, remaining, err := a.ReadAt(path, p, off)
		if err != nil {
			return err
		}
		if _, err := w.Write(p[:n]); err != nil {
			return err
		}
		off += int64(n)
		if length > 0 {
			length -= int64(n)
		}
		if remaining == 0 || n == 0 {
			return nil
		}
	}
	return nil
}
