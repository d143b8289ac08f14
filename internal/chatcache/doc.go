// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatcache keeps an ordered in-memory view of recent conversations
// in step with a conversation backend.
//
// The cache is what a chat front end talks to. It loads the first window
// of indexed conversations (index order, ten by default), keeps them sorted by the time of the last
// assistant reply and writes every change back through a single background
// worker. Writes are optimistic: memory is updated first and persist failures
// are logged and recorded, not rolled back.
//
// # Key Types
//
//   - Backend: storage operations; satisfied by storage.Repository and client.Client
//   - Cache: the ordered conversation list with a current selection
//   - FailedDelete: a removed conversation whose backend delete failed
//
// # Usage
//
//	c := chatcache.New(repo, chatcache.Options{Logger: logger, Errors: sink})
//	defer c.Close()
//	if err := c.Load(ctx); err != nil {
//	    logger.Warn("could not load conversations", "err", err)
//	}
//	conv := c.Create(model.NewSystemMessage("You are X"), "m1")
//	c.Append(conv.ID, model.NewUserMessage("Hello"))
//	c.Append(conv.ID, model.NewAssistantMessage("Hi there"))
//	c.Flush(ctx)
//
// # Filenames
//
// Each save names the file with the configured model.Namer. When the name of
// a conversation changes between saves, the worker removes the previous file
// after the new one is written.
package chatcache
