// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes for chatkeep commands.
//
// Commands return errors and never print them. Execute displays the error
// once and picks the exit code from its category.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatkeep/internal/client"
	"github.com/jeranaias/chatkeep/internal/config"
	"github.com/jeranaias/chatkeep/internal/export"
	"github.com/jeranaias/chatkeep/internal/filestore"
	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// GetExitCode determines the exit code for err.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		validateErrs config.ValidateErrors
		parseErr     toml.ParseError
		netErr       net.Error
	)
	switch {
	case errors.As(err, &validateErrs), errors.As(err, &parseErr):
		return ExitConfigError
	case errors.Is(err, storage.ErrNotFound):
		return ExitNotFoundError
	case errors.Is(err, filestore.ErrInvalidName),
		errors.Is(err, storage.ErrReservedName),
		errors.Is(err, model.ErrInvalidConversation),
		errors.Is(err, client.ErrBadRequest),
		errors.Is(err, export.ErrUnknownFormat):
		return ExitUsageError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return ExitTimeoutError
		}
		return ExitNetworkError
	}
	return ExitGeneralError
}

// errorType names the category of err in JSON output.
func errorType(code int) string {
	switch code {
	case ExitUsageError:
		return "usage_error"
	case ExitConfigError:
		return "config_error"
	case ExitNetworkError:
		return "network_error"
	case ExitNotFoundError:
		return "not_found_error"
	case ExitTimeoutError:
		return "timeout_error"
	default:
		return "generic_error"
	}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// reportedError wraps an error the command already printed.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error { return e.error }

// DisplayError writes err to w. In JSON mode the error is written as the
// standard response envelope with an error_type field.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil || errors.As(err, new(reportedError)) {
		return
	}
	if jsonMode {
		resp := NewJSONErrorResponse("", err)
		resp.Data = map[string]string{"error_type": errorType(GetExitCode(err))}
		resp.Write(w)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err)
}
