// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// search.go - Full-text search over stored conversations.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatkeep/internal/client"
	"github.com/jeranaias/chatkeep/internal/search"
	"github.com/jeranaias/chatkeep/internal/util"
)

func (a *app) searchCommand() *cobra.Command {
	var (
		limit  int
		remote string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search conversation titles and messages",
		Long: `Search conversations by title and message text. Every term must match.
With --remote the query is sent to a running chatkeep service instead of
reading the data directory.`,
		Example: `  chatkeep search kubernetes ingress
  chatkeep search --remote http://127.0.0.1:3000 "retry budget"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			var results []search.Result
			if remote != "" {
				var err error
				if results, err = client.New(remote).Search(ctx, query, limit); err != nil {
					return err
				}
			} else {
				st, err := a.openStores()
				if err != nil {
					return err
				}
				idx, err := a.openSearch(ctx, st.repo)
				if err != nil {
					return err
				}
				defer idx.Close()
				if results, err = idx.Search(ctx, query, limit); err != nil {
					return err
				}
			}

			if a.jsonOut {
				return NewJSONResponse("search", results).Write(cmd.OutOrStdout())
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", search.DefaultLimit, "maximum number of results")
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a running chatkeep service")
	return cmd
}

func printResults(w io.Writer, results []search.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No matches."))
		return
	}
	for _, r := range results {
		fmt.Fprintf(w, "%s  %s\n", SectionStyle.Render(util.TruncateWidth(r.Title, 50)), DimStyle.Render(r.Filename))
		if r.Snippet != "" {
			fmt.Fprintf(w, "  %s\n", util.SingleLine(r.Snippet))
		}
	}
}
