// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides string helpers shared by the storage and CLI packages.
//
// Character counts are rune based so titles and previews never split a
// multi-byte character. Column widths go through go-runewidth so tables stay
// aligned when titles contain CJK text or emoji.
//
// # Usage
//
//	title := util.Ellipsize(firstUserMessage, 30)   // "first 30 chars..."
//	cell := util.PadRight(title, 24)                // exactly 24 columns
package util
