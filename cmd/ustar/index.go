package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newIndexCommand(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "index FILE",
		Short: "Build a sidecar index for fast lookups",
		Long: "Build a sidecar index for FILE. Pass it back with --index to serve " +
			"lookups without scanning. The index is tied to the exact archive bytes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--output is required")
			}
			a, closer, err := c.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closer.Close()

			data, err := a.BuildIndex()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil { //nolint:gosec // index files are not secret
				return fmt.Errorf("write index: %w", err)
			}
			c.log().Info("wrote index", "archive", args[0], "path", out, "bytes", len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the index to this file")
	return cmd
}
