package main

import (
	"fmt"
	"io/fs"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStatCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stat FILE PATH",
		Short: "Show the header of an archive entry",
		Long: "Show the header of the first entry named PATH. Links are reported " +
			"as links and not followed.",
		Args: cobra.ExactArgs(2),
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

			w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Name:\t%s\n", e.Name)
			fmt.Fprintf(w, "Type:\t%s\n", e.Type())
			fmt.Fprintf(w, "Size:\t%d\n", e.Size)
			fmt.Fprintf(w, "Mode:\t%s (%04o)\n", fs.FileMode(e.Mode)&fs.ModePerm, e.Mode) //nolint:gosec // masked
			fmt.Fprintf(w, "Owner:\t%s (%d)\n", e.Uname, e.UID)
			fmt.Fprintf(w, "Group:\t%s (%d)\n", e.Gname, e.GID)
			fmt.Fprintf(w, "Modified:\t%s\n", e.ModTime.UTC().Format(time.RFC3339))
			if e.Type().IsLink() {
				fmt.Fprintf(w, "Link:\t%s\n", e.Linkname)
			}
			fmt.Fprintf(w, "Offset:\t%d\n", e.Offset)
			return w.Flush()
		},
	}
}
