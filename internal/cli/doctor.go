// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Doctor command implementation for chatkeep.
//
// Command: doctor [--fix]
//
// Health Checks Performed:
//   1. Config Valid        - The configuration loaded and validated
//   2. Data Dir Writable   - A probe document can be written and removed
//   3. Conversation Index  - index.json agrees with the conversation files
//   4. Settings            - models, appearance, and prompts documents decode
//   5. Search Index        - The search database matches the repository
//   6. Error Log           - Errors recorded by the service
//
// Exit Codes:
//   0   No check failed
//   1   One or more checks failed

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatkeep/internal/config"
	"github.com/jeranaias/chatkeep/internal/filestore"
	"github.com/jeranaias/chatkeep/internal/search"
	"github.com/jeranaias/chatkeep/internal/settings"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// probeName is the document written by the writability check.
const probeName = ".doctor-probe"

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarn
	CheckFail
)

// String returns the lower-case status name used in JSON output.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the rendered status marker.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return SuccessStyle.Render("[OK]")
	case CheckWarn:
		return WarningStyle.Render("[!!]")
	case CheckFail:
		return ErrorStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck is the result of a single check.
type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`

	status CheckStatus
	repair func(ctx context.Context) error
}

func (c *HealthCheck) set(status CheckStatus, format string, args ...any) *HealthCheck {
	c.status = status
	c.Status = status.String()
	c.Message = fmt.Sprintf(format, args...)
	return c
}

// Render returns the check formatted for the terminal.
func (c *HealthCheck) Render() string {
	line := c.status.Symbol() + " " + ValueStyle.Render(c.Message)
	if c.status != CheckPass && c.Fix != "" {
		line += "\n    " + DimStyle.Render("-> "+c.Fix)
	}
	return line
}

// DoctorSummary counts check results.
type DoctorSummary struct {
	Passed  int  `json:"passed"`
	Warned  int  `json:"warned"`
	Failed  int  `json:"failed"`
	Healthy bool `json:"healthy"`
}

// DoctorData is the JSON payload of the doctor command.
type DoctorData struct {
	Checks  []*HealthCheck `json:"checks"`
	Summary DoctorSummary  `json:"summary"`
}

func summarize(checks []*HealthCheck) DoctorSummary {
	var s DoctorSummary
	for _, c := range checks {
		switch c.status {
		case CheckPass:
			s.Passed++
		case CheckWarn:
			s.Warned++
		case CheckFail:
			s.Failed++
		}
	}
	s.Healthy = s.Failed == 0
	return s
}

// =============================================================================
// COMMAND
// =============================================================================

func (a *app) doctorCommand() *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag"},
		Short:   "Check the data directory for problems",
		Long: `Check the configuration, the data directory, the conversation index,
the settings documents, and the search database. With --fix, index entries
without a file are pruned, missing settings are restored to defaults, and
the search database is rebuilt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			st, err := a.openStores()
			if err != nil {
				return err
			}
			checks := a.runChecks(ctx, st)

			var fixed []string
			if fix {
				fixed = applyFixes(ctx, out, checks, !a.jsonOut)
				if len(fixed) > 0 {
					checks = a.runChecks(ctx, st)
				}
			}

			summary := summarize(checks)
			if a.jsonOut {
				resp := NewJSONResponse("doctor", DoctorData{Checks: checks, Summary: summary})
				if !summary.Healthy {
					msg := fmt.Sprintf("%d health check(s) failed", summary.Failed)
					resp.Success = false
					resp.Error = &msg
				}
				if err := resp.Write(out); err != nil {
					return err
				}
			} else {
				renderDoctor(out, checks, summary)
			}

			if !summary.Healthy {
				err := fmt.Errorf("%d health check(s) failed", summary.Failed)
				if a.jsonOut {
					return reportedError{err}
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "repair what can be repaired")
	return cmd
}

func renderDoctor(w io.Writer, checks []*HealthCheck, s DoctorSummary) {
	fmt.Fprintln(w, TitleStyle.Render("chatkeep Doctor"))
	fmt.Fprintln(w, RenderSeparator(41))
	for _, c := range checks {
		fmt.Fprintln(w, c.Render())
	}
	fmt.Fprintln(w, SeparatorStyle.Render(strings.Repeat("-", 41)))

	parts := []string{fmt.Sprintf("%d passed", s.Passed)}
	if s.Warned > 0 {
		parts = append(parts, WarningStyle.Render(fmt.Sprintf("%d warning", s.Warned)))
	}
	if s.Failed > 0 {
		parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d failed", s.Failed)))
	}
	fmt.Fprintln(w, DimStyle.Render(strings.Join(parts, ", ")))
}

// applyFixes runs the repair of every check that has one and returns the
// names of the checks it repaired.
func applyFixes(ctx context.Context, w io.Writer, checks []*HealthCheck, verbose bool) []string {
	var fixed []string
	for _, c := range checks {
		if c.status == CheckPass || c.repair == nil {
			continue
		}
		if err := c.repair(ctx); err != nil {
			if verbose {
				fmt.Fprintf(w, "  %s Could not fix %s: %s\n", WarningStyle.Render("[!!]"), c.Name, err)
			}
			continue
		}
		if verbose {
			fmt.Fprintf(w, "  %s Fixed %s\n", SuccessStyle.Render("[OK]"), c.Name)
		}
		fixed = append(fixed, c.Name)
	}
	return fixed
}

// =============================================================================
// HEALTH CHECK FUNCTIONS
// =============================================================================

func (a *app) runChecks(ctx context.Context, st *stores) []*HealthCheck {
	report, indexCheck := checkIndex(ctx, st.repo)
	return []*HealthCheck{
		a.checkConfig(),
		checkWritable(st.root),
		indexCheck,
		checkSettings(st.settings, st.root),
		a.checkSearch(ctx, st.repo, report),
		checkErrorLog(st),
	}
}

func (a *app) checkConfig() *HealthCheck {
	check := &HealthCheck{Name: "Config Valid"}
	path := a.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return check.set(CheckWarn, "Could not determine config path: %s", err)
		}
		path = p
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return check.set(CheckPass, "Config valid (using defaults)")
	}
	// The config was loaded and validated before the command ran.
	return check.set(CheckPass, "Config valid (%s)", path)
}

func checkWritable(root *filestore.Store) *HealthCheck {
	check := &HealthCheck{Name: "Data Dir Writable"}
	if err := root.Write(probeName, []byte("probe")); err != nil {
		check.Fix = "Check permissions: chmod 755 " + root.Root()
		return check.set(CheckFail, "Data directory not writable: %s", err)
	}
	if _, err := root.Delete(probeName); err != nil {
		return check.set(CheckWarn, "Could not remove probe file: %s", err)
	}
	return check.set(CheckPass, "Data directory writable (%s)", root.Root())
}

func checkIndex(ctx context.Context, repo *storage.Repository) (*storage.Report, *HealthCheck) {
	check := &HealthCheck{Name: "Conversation Index"}
	report, err := repo.Check(ctx)
	if err != nil {
		return nil, check.set(CheckFail, "Could not read conversation index: %s", err)
	}

	switch {
	case len(report.Unreadable) > 0:
		check.Fix = "Inspect or remove: " + strings.Join(report.Unreadable, ", ")
		check.set(CheckFail, "%d indexed conversation(s) cannot be decoded", len(report.Unreadable))
	case len(report.Dangling) > 0:
		check.Fix = "Run: chatkeep doctor --fix"
		check.repair = func(ctx context.Context) error {
			_, err := repo.Prune(ctx)
			return err
		}
		check.set(CheckWarn, "%d index entr(ies) without a file", len(report.Dangling))
	case len(report.Orphans) > 0:
		check.set(CheckWarn, "%d conversation file(s) not in the index", len(report.Orphans))
	default:
		check.set(CheckPass, "%d conversation(s) indexed", report.Indexed)
	}
	return report, check
}

func checkSettings(st *settings.Store, root *filestore.Store) *HealthCheck {
	check := &HealthCheck{Name: "Settings"}

	var missing []string
	for _, name := range []string{settings.ModelsFile, settings.AppearanceFile, settings.PromptsFile} {
		ok, err := root.Exists(name)
		if err != nil {
			return check.set(CheckFail, "Could not stat %s: %s", name, err)
		}
		if !ok {
			missing = append(missing, name)
		}
	}

	if _, err := st.Models(); err != nil && !errors.Is(err, filestore.ErrNotFound) {
		return check.set(CheckFail, "Models document is invalid: %s", err)
	}
	if _, err := st.Appearance(); err != nil && !errors.Is(err, filestore.ErrNotFound) {
		return check.set(CheckFail, "Appearance document is invalid: %s", err)
	}
	if _, err := st.Prompts(); err != nil && !errors.Is(err, filestore.ErrNotFound) {
		return check.set(CheckFail, "Prompts document is invalid: %s", err)
	}

	if len(missing) > 0 {
		check.Fix = "Run: chatkeep doctor --fix"
		check.repair = func(context.Context) error { return st.Ensure() }
		return check.set(CheckWarn, "Missing settings: %s", strings.Join(missing, ", "))
	}
	return check.set(CheckPass, "Settings documents present")
}

func (a *app) checkSearch(ctx context.Context, repo *storage.Repository, report *storage.Report) *HealthCheck {
	check := &HealthCheck{Name: "Search Index"}
	if !a.cfg.Search.Enabled {
		return check.set(CheckPass, "Search disabled")
	}

	rebuild := func(ctx context.Context) error {
		idx, err := a.openSearch(ctx, repo)
		if err != nil {
			return err
		}
		return idx.Close()
	}

	idx, err := search.Open(a.cfg.SearchDBPath(), a.logger)
	if err != nil {
		check.Fix = "Remove " + a.cfg.SearchDBPath() + " and run: chatkeep doctor --fix"
		return check.set(CheckFail, "Could not open search database: %s", err)
	}
	defer idx.Close()

	count, err := idx.Count(ctx)
	if err != nil {
		return check.set(CheckFail, "Could not count search entries: %s", err)
	}
	if report == nil {
		return check.set(CheckPass, "%d conversation(s) searchable", count)
	}

	want := report.Indexed - len(report.Dangling) - len(report.Unreadable)
	if count != want {
		check.Fix = "Run: chatkeep doctor --fix"
		check.repair = rebuild
		return check.set(CheckWarn, "Search database has %d entr(ies), repository has %d", count, want)
	}
	return check.set(CheckPass, "%d conversation(s) searchable", count)
}

func checkErrorLog(st *stores) *HealthCheck {
	check := &HealthCheck{Name: "Error Log"}
	entries := st.errors.Entries()
	if len(entries) == 0 {
		return check.set(CheckPass, "No recorded errors")
	}
	newest := entries[0]
	return check.set(CheckWarn, "%d recorded error(s), newest at %s: %s",
		len(entries), newest.Timestamp.Format("2006-01-02 15:04:05"), newest.Message)
}
