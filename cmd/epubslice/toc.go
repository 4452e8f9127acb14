package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simp-lee/epubslice"
)

func newTocCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toc BOOK",
		Short: "List the table of contents with the indices extract accepts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := epubslice.Open(args[0], epubslice.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer book.Close()

			entries := book.Contents()
			rows := make([][]string, 0, len(entries))
			for i, e := range entries {
				title := strings.Repeat("  ", e.Depth) + e.Title
				target := e.Href
				if e.Anchor != "" {
					target += "#" + e.Anchor
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), title, target})
			}

			out := cmd.OutOrStdout()
			if md := book.Metadata(); md.Title != "" {
				fmt.Fprintln(out, md.Title)
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Title", "Location"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
			return nil
		},
	}
}
