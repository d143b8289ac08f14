// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// conversations.go - List, show, delete, and clear stored conversations.

package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatkeep/internal/export"
	"github.com/jeranaias/chatkeep/internal/storage"
)

func (a *app) conversationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv", "c"},
		Short:   "Manage stored conversations",
	}
	cmd.AddCommand(
		a.conversationsListCommand(),
		a.conversationsShowCommand(),
		a.conversationsDeleteCommand(),
		a.conversationsClearCommand(),
	)
	return cmd
}

// =============================================================================
// LIST
// =============================================================================

func (a *app) conversationsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStores()
			if err != nil {
				return err
			}
			metas, err := st.repo.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return NewJSONResponse("conversations list", metas).Write(out)
			}
			fmt.Fprintln(out, storage.FormatList(metas))
			return nil
		},
	}
}

// =============================================================================
// SHOW
// =============================================================================

func (a *app) conversationsShowCommand() *cobra.Command {
	var format, output, outputDir, theme string
	var noMetadata bool

	cmd := &cobra.Command{
		Use:   "show <filename>",
		Short: "Print or export one conversation",
		Example: `  chatkeep conversations show 2025-01-02_15-04-05.json
  chatkeep conversations show 2025-01-02_15-04-05.json --format json -o chat.json
  chatkeep conversations show 2025-01-02_15-04-05.json --format html --output-dir ./exports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := export.ForFormat(format, &export.Options{
				IncludeMetadata: !noMetadata,
				Theme:           theme,
			})
			if err != nil {
				return err
			}

			st, err := a.openStores()
			if err != nil {
				return err
			}
			conv, err := st.repo.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputDir != "" {
				path, err := export.ExportToFile(conv, exporter, outputDir)
				if err != nil {
					return err
				}
				return a.reportExport(out, path)
			}

			data, err := exporter.Export(conv)
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, data, 0600); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				return a.reportExport(out, output)
			}

			if _, ok := exporter.(export.MarkdownExporter); ok {
				fmt.Fprint(out, renderMarkdown(out, string(data)))
				return nil
			}
			_, err = out.Write(append(data, '\n'))
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", export.FormatMarkdown,
		"output format ("+strings.Join(export.Formats, "|")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "write a timestamped file into this directory")
	cmd.Flags().StringVar(&theme, "theme", "dark", "HTML theme (dark|light)")
	cmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "omit the HTML metadata header")
	cmd.MarkFlagsMutuallyExclusive("output", "output-dir")
	return cmd
}

func (a *app) reportExport(out io.Writer, path string) error {
	if a.jsonOut {
		return NewJSONResponse("conversations show", map[string]string{"path": path}).Write(out)
	}
	fmt.Fprintln(out, SuccessStyle.Render("Exported"), path)
	return nil
}

// =============================================================================
// DELETE / CLEAR
// =============================================================================

func (a *app) conversationsDeleteCommand() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:     "delete <filename>",
		Aliases: []string{"rm"},
		Short:   "Delete one conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStores()
			if err != nil {
				return err
			}
			filename := args[0]
			if err := storage.ValidateFilename(filename); err != nil {
				return err
			}

			details := [][2]string{{"File", filename}}
			if conv, err := st.repo.Get(cmd.Context(), filename); err == nil {
				details = append(details, [2]string{"Title", conv.Title})
			}
			ok, err := RequireConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), "delete this conversation", details,
				ConfirmationOptions{ConfirmFlag: confirm, JSONMode: a.jsonOut})
			if err != nil {
				return err
			}
			if !ok {
				ShowCancellationMessage(cmd.OutOrStdout())
				return nil
			}

			if err := st.repo.Delete(cmd.Context(), filename); err != nil {
				return err
			}
			if a.jsonOut {
				return NewJSONResponse("conversations delete", map[string]string{"filename": filename}).Write(cmd.OutOrStdout())
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted"), filename)
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "skip the confirmation prompt")
	return cmd
}

func (a *app) conversationsClearCommand() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStores()
			if err != nil {
				return err
			}
			names, err := st.repo.ListFilenames(cmd.Context())
			if err != nil {
				return err
			}

			details := [][2]string{
				{"Directory", st.repo.Dir()},
				{"Conversations", strconv.Itoa(len(names))},
			}
			ok, err := RequireConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), "delete all conversations", details,
				ConfirmationOptions{ConfirmFlag: confirm, JSONMode: a.jsonOut})
			if err != nil {
				return err
			}
			if !ok {
				ShowCancellationMessage(cmd.OutOrStdout())
				return nil
			}

			if err := st.repo.ClearAll(cmd.Context()); err != nil {
				return err
			}
			if a.jsonOut {
				return NewJSONResponse("conversations clear", map[string]int{"deleted": len(names)}).Write(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d conversation(s)\n", SuccessStyle.Render("Cleared"), len(names))
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "skip the confirmation prompt")
	return cmd
}
