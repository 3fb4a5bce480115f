package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/ustar"
)

type listOptions struct {
	limit int
	long  bool
}

func newListCommand(c *cli) *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:     "ls FILE DIR",
		Aliases: []string{"list"},
		Short:   "List the direct children of a directory entry",
		Long: "List the direct children of DIR in archive order. DIR is an archive " +
			"directory name such as \"docs/\"; links to directories are followed.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closer, err := c.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closer.Close()

			entries, err := a.ListEntries(args[1], opts.limit)
			if err != nil && !errors.Is(err, ustar.ErrTooManyEntries) {
				return err
			}
			for i := range entries {
				e := &entries[i]
				if opts.long {
					fmt.Fprintf(c.stdout, "%-9s %10d %s\n", e.Type(), e.Size, e.Name)
					continue
				}
				fmt.Fprintln(c.stdout, e.Name)
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&opts.limit, "limit", "n", 0, "maximum number of entries (0 = unlimited)")
	flags.BoolVarP(&opts.long, "long", "l", false, "show type and size")
	return cmd
}
