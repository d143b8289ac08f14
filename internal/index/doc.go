// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index maintains the ordered list of live conversation filenames.
//
// The index is the authority on which conversations exist. A file on disk
// that the index does not list is treated as deleted, and a listed name with
// no backing file reads as absent.
//
// # Usage
//
//	idx := index.New(conversationStore)
//	if err := idx.Ensure(); err != nil {
//	    return err
//	}
//	idx.Add("2025-01-02_15-04-05.json")
//	names, err := idx.Load()
package index
