// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package filestore reads and writes JSON documents below a root directory.
//
// Every write goes to a temp file in the target directory, is synced, and
// is then renamed over the destination. Deletes are idempotent: removing a
// document that is already gone succeeds.
//
// # Key Types
//
//   - Store: a root directory of named documents
//   - PathError: operation, name, and cause of a failed call
//
// # Usage
//
//	store, err := filestore.New(dataDir)
//	if err != nil {
//	    return err
//	}
//	if _, err := store.Ensure("appearance.json", defaults); err != nil {
//	    return err
//	}
//	var a Appearance
//	if err := store.ReadJSON("appearance.json", &a); errors.Is(err, filestore.ErrNotFound) {
//	    ...
//	}
package filestore
