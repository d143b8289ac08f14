// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Confirmation handling for destructive commands.
//
//  1. --confirm proceeds without prompting
//  2. --json requires --confirm
//  3. stdin that is not a terminal requires --confirm
//  4. otherwise the user is asked on the terminal

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ConfirmationOptions carries the flags that decide whether to prompt.
type ConfirmationOptions struct {
	// ConfirmFlag is true when --confirm was passed.
	ConfirmFlag bool
	// JSONMode is true when --json was passed.
	JSONMode bool
}

var (
	errConfirmJSON  = errors.New("confirmation required: use --confirm flag for destructive actions in JSON mode")
	errConfirmNoTTY = errors.New("confirmation required but stdin is not a terminal; use --confirm flag")
)

// RequireConfirmation asks whether to proceed with action. Details are shown
// before the prompt in the given order.
func RequireConfirmation(in io.Reader, out io.Writer, action string, details [][2]string, opts ConfirmationOptions) (bool, error) {
	if opts.ConfirmFlag {
		return true, nil
	}
	if opts.JSONMode {
		return false, errConfirmJSON
	}
	if _, ok := in.(fdStream); ok && !isTerminal(in) {
		return false, errConfirmNoTTY
	}

	if len(details) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, WarningStyle.Render("WARNING: Destructive Action"))
		fmt.Fprintln(out, RenderSeparator(50))
		for _, d := range details {
			fmt.Fprintf(out, "  %s\n", RenderField(d[0]+":", d[1]))
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, ErrorStyle.Render("This action cannot be undone."))
	}
	fmt.Fprintf(out, "Are you sure you want to %s? [y/N]: ", action)

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	response := strings.ToLower(strings.TrimSpace(input))
	return response == "y" || response == "yes", nil
}

// ShowCancellationMessage prints the standard cancellation notice.
func ShowCancellationMessage(out io.Writer) {
	fmt.Fprintln(out, DimStyle.Render("Cancelled."))
}
