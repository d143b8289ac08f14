// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/glamour"
)

var markdownRenderer = sync.OnceValue(func() *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth(os.Stdout)),
	)
	if err != nil {
		return nil
	}
	return r
})

// renderMarkdown renders content for a terminal. Output that is not a
// terminal, or a renderer failure, gets the content unchanged.
func renderMarkdown(w io.Writer, content string) string {
	if !isTerminal(w) {
		return content
	}
	r := markdownRenderer()
	if r == nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
