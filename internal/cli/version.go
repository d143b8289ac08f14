// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionInfo is the JSON payload of the version command.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := VersionInfo{
				Version:   Version,
				GitCommit: GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if a.jsonOut {
				return NewJSONResponse("version", info).Write(cmd.OutOrStdout())
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chatkeep %s\n", info.Version)
			fmt.Fprintln(out, RenderField("Commit:", info.GitCommit))
			fmt.Fprintln(out, RenderField("Built:", info.BuildDate))
			fmt.Fprintln(out, RenderField("Go:", info.GoVersion))
			fmt.Fprintln(out, RenderField("Platform:", info.Platform))
			return nil
		},
	}
}
