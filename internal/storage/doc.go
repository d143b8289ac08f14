// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations as JSON files listed by an index.
//
// The index decides which conversations exist and the files hold their
// content. Writes land before the index is updated and deletes clear the
// index entry even when the file is already gone, so repeated calls converge.
//
// # Key Types
//
//   - Repository: list, get, save, delete, and clear conversations
//   - Observer: receives save, delete, and clear notifications
//   - Report: result of a consistency check between index and files
//   - Meta: lightweight metadata for listing
//
// # Usage
//
//	repo, err := storage.Open(dataDir)
//	if err != nil {
//	    return err
//	}
//	err = repo.Save(ctx, "2025-01-02_15-04-05.json", conv)
//	names, err := repo.ListFilenames(ctx)
//	conv, err := repo.Get(ctx, names[0])
//
// # Storage Location
//
// Conversations are stored in <data dir>/chat_conversations/ next to
// index.json.
package storage
