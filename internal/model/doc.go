// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: id, title, messages, and the time of the last reply
//   - Message: role and content, immutable once appended
//   - Role: system, user, or assistant
//   - Namer: maps a conversation to its storage filename
//
// # Usage
//
//	conv := model.NewConversation(model.NewSystemMessage("You are X"), "m1", time.Now())
//	conv.Append(model.NewUserMessage("Hello"), time.Now())
//	conv.Append(model.NewAssistantMessage("Hi there"), time.Now())
//	// conv.Title == "Hello"
//
//	filename := model.TimestampNamer{}.Name(conv) // "2025-01-02_15-04-05.json"
package model
