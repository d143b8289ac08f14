// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search provides full-text search over stored conversations.
//
// Conversations are indexed in a SQLite FTS5 table (pure Go driver) keyed by
// filename. The index follows the repository through the storage.Observer
// callbacks and is rebuilt from the conversation index on startup. A Watcher
// picks up files changed on disk outside the API.
//
// # Key Types
//
//   - Index: FTS5 database, implements storage.Observer
//   - Watcher: fsnotify-based incremental reindexing
//   - Result: a single search hit with a highlighted snippet
//
// # Usage
//
//	idx, err := search.Open(filepath.Join(dataDir, search.DBFileName), logger)
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	repo.AddObserver(idx)
//	idx.Rebuild(ctx, repo)
//
//	results, err := idx.Search(ctx, "kubernetes ingress", 20)
//
// # Query Syntax
//
// Input is split on whitespace. Every term must match, each as a prefix, and
// FTS5 operators in the input are treated as literal text. Queries are
// NFC-normalized and case-folded before matching.
package search
