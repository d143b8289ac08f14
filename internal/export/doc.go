// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders stored conversations as documents.
//
// Markdown and JSON output match what the storage service returns for a
// single conversation. HTML output is a standalone page with embedded CSS
// and a light/dark theme toggle.
//
// # Key Types
//
//   - Exporter: common interface for all formats
//   - MarkdownExporter, JSONExporter, HTMLExporter: format implementations
//   - Options: metadata and theme settings
//
// # Usage
//
//	exp, err := export.ForFormat("html", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(conv, exp, "./exports")
package export
