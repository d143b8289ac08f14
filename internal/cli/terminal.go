// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for chatkeep commands.
//
// Commands read and write through cobra's In/Out streams. Those are the
// process's stdin and stdout in normal use and plain buffers in tests, so
// every check here takes the stream instead of assuming os.Stdin/os.Stdout.

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// fdStream is satisfied by *os.File.
type fdStream interface {
	Fd() uintptr
}

// isTerminal reports whether stream is attached to a terminal. Buffers and
// pipes report false.
func isTerminal(stream any) bool {
	f, ok := stream.(fdStream)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// WIDTH
// =============================================================================

const (
	// DefaultTerminalWidth is used when the width cannot be detected.
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the narrowest width used for rendering.
	MinTerminalWidth = 40

	// maxRenderWidth caps markdown wrapping on wide terminals.
	maxRenderWidth = 100
)

// terminalWidth returns the column count of stream, clamped to
// [MinTerminalWidth, maxRenderWidth], or DefaultTerminalWidth when stream
// is not a terminal.
func terminalWidth(stream any) int {
	f, ok := stream.(fdStream)
	if !ok {
		return DefaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	return min(max(width, MinTerminalWidth), maxRenderWidth)
}

// =============================================================================
// COLOR
// =============================================================================

// colorsEnabled follows https://no-color.org/ and FORCE_COLOR, falling back
// to whether stdout is a terminal. Styles are set up once at init.
var colorsEnabled = sync.OnceValue(func() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return isTerminal(os.Stdout)
})

// colorProfile returns Ascii when colors are disabled and the detected
// terminal profile otherwise.
func colorProfile() termenv.Profile {
	if !colorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}
