// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client is an HTTP client for a running chatkeep server.
//
// Client exposes the same conversation methods as storage.Repository, so a
// chatcache.Cache can sit on top of either. Error responses come back as
// *StatusError, which matches storage.ErrNotFound for 404.
//
// # Usage
//
//	c := client.New("http://127.0.0.1:3000")
//	names, err := c.ListFilenames(ctx)
//	conv, err := c.Get(ctx, names[0])
//	if errors.Is(err, storage.ErrNotFound) {
//	    // deleted by someone else
//	}
package client
