// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jeranaias/chatkeep/internal/util"
)

const (
	// DefaultTitle is the title of a conversation until one is derived.
	DefaultTitle = "New Chat"

	// TitleMaxRunes is how many characters of the first user message make
	// up a derived title.
	TitleMaxRunes = 30

	// titleMinMessages is the message count at which a title is derived.
	titleMinMessages = 3
)

// ErrInvalidConversation is returned by Validate.
var ErrInvalidConversation = errors.New("invalid conversation")

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat session and its metadata.
//
// ID is assigned once at creation and is the identity used in memory. The
// filename a conversation is stored under is chosen by a Namer and may differ.
type Conversation struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Messages         []Message `json:"messages"`
	LastResponseTime time.Time `json:"lastResponseTime"`
	Model            string    `json:"model"`
	SystemPrompt     string    `json:"systemPrompt"`
}

// NewConversation creates a conversation seeded with a system message.
func NewConversation(system Message, model string, now time.Time) *Conversation {
	return &Conversation{
		ID:               uuid.NewString(),
		Title:            DefaultTitle,
		Messages:         []Message{system},
		LastResponseTime: now,
		Model:            model,
		SystemPrompt:     system.Content,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds msg to the conversation.
//
// Only assistant messages refresh LastResponseTime. When an assistant reply
// brings a still-untitled conversation to three or more messages, the title
// is taken from the first user message.
func (c *Conversation) Append(msg Message, now time.Time) {
	c.Messages = append(c.Messages, msg)
	if msg.Role != RoleAssistant {
		return
	}

	c.LastResponseTime = now
	if c.Title == DefaultTitle && len(c.Messages) >= titleMinMessages {
		if first, ok := c.FirstUserMessage(); ok {
			c.Title = util.Ellipsize(first.Content, TitleMaxRunes)
		}
	}
}

// FirstUserMessage returns the earliest user message.
func (c *Conversation) FirstUserMessage() (Message, bool) {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg, true
		}
	}
	return Message{}, false
}

// LastMessage returns the most recent message.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// MessageCount returns the number of messages in the conversation.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// Preview returns a one-line excerpt of the first user message.
func (c *Conversation) Preview(maxRunes int) string {
	first, ok := c.FirstUserMessage()
	if !ok {
		return ""
	}
	return util.Ellipsize(util.SingleLine(first.Content), maxRunes)
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the fields every stored conversation must carry.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidConversation)
	}
	if len(c.Messages) == 0 {
		return fmt.Errorf("%w: no messages", ErrInvalidConversation)
	}
	for i, msg := range c.Messages {
		if !msg.Role.IsValid() {
			return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidConversation, i, msg.Role)
		}
	}
	return nil
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return &clone
}

// =============================================================================
// ORDERING
// =============================================================================

// NewerFirst orders conversations by LastResponseTime, most recent first.
// Suitable for slices.SortStableFunc.
func NewerFirst(a, b *Conversation) int {
	return b.LastResponseTime.Compare(a.LastResponseTime)
}
