package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/meigma/ustar"
	"github.com/meigma/ustar/internal/sizing"
)

type dumpOptions struct {
	maxData int64
}

func newDumpCommand(c *cli) *cobra.Command {
	var opts dumpOptions
	cmd := &cobra.Command{
		Use:   "dump FILE PATH",
		Short: "Hex dump the raw header block and data of an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closer, err := c.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closer.Close()

			e, err := a.Lookup(args[1])
			if err != nil {
				return err
			}

			block := make([]byte, ustar.BlockSize)
			if _, err := a.Source().ReadAt(block, e.Offset); err != nil {
				return fmt.Errorf("read header at %d: %w", e.Offset, err)
			}
			fmt.Fprintf(c.stdout, "header at %d:\n", e.Offset)
			d := hex.Dumper(c.stdout)
			if _, err := d.Write(block); err != nil {
				return err
			}
			if err := d.Close(); err != nil {
				return err
			}

			n := e.Size
			if opts.maxData >= 0 {
				n = min(n, opts.maxData)
			}
			if n == 0 || e.Type() != ustar.TypeRegular {
				return nil
			}
			size, err := sizing.ToInt(n, ustar.ErrSizeOverflow)
			if err != nil {
				return fmt.Errorf("data at %d: %w", e.DataOffset(), err)
			}
			if end, ok := sizing.AddInt64(e.DataOffset(), n); !ok || end > a.Size() {
				return fmt.Errorf("data at %d: %d bytes extend past end of archive: %w",
					e.DataOffset(), n, io.ErrUnexpectedEOF)
			}
			data := make([]byte, size)
			if _, err := a.Source().ReadAt(data, e.DataOffset()); err != nil {
				return fmt.Errorf("read data at %d: %w", e.DataOffset(), err)
			}
			fmt.Fprintf(c.stdout, "data at %d (%d of %d bytes):\n", e.DataOffset(), n, e.Size)
			d = hex.Dumper(c.stdout)
			if _, err := d.Write(data); err != nil {
				return err
			}
			return d.Close()
		},
	}
	cmd.Flags().Int64Var(&opts.maxData, "max-data", 4096, "dump at most this many data bytes (-1 = all)")
	return cmd
}
