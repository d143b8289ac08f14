// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"
)

// FileExt is the extension of stored conversation files.
const FileExt = ".json"

// TimestampLayout formats LastResponseTime into a filename stem.
const TimestampLayout = "2006-01-02_15-04-05"

// Namer derives the storage filename of a conversation.
type Namer interface {
	Name(c *Conversation) string
}

// TimestampNamer names files after LastResponseTime in a local zone at
// second granularity. Two conversations answered within the same second
// share a filename.
type TimestampNamer struct {
	// Loc defaults to time.Local.
	Loc *time.Location
}

// Name implements Namer.
func (n TimestampNamer) Name(c *Conversation) string {
	loc := n.Loc
	if loc == nil {
		loc = time.Local
	}
	return c.LastResponseTime.In(loc).Format(TimestampLayout) + FileExt
}

// IDNamer names files after the conversation ID, which never changes.
type IDNamer struct{}

// Name implements Namer.
func (IDNamer) Name(c *Conversation) string {
	return c.ID + FileExt
}

// Naming strategies accepted by NamerFor.
const (
	NamingTimestamp = "timestamp"
	NamingID        = "id"
)

// NamerFor returns the Namer for a configured strategy.
func NamerFor(strategy string, loc *time.Location) (Namer, error) {
	switch strategy {
	case "", NamingTimestamp:
		return TimestampNamer{Loc: loc}, nil
	case NamingID:
		return IDNamer{}, nil
	default:
		return nil, fmt.Errorf("unknown naming strategy %q", strategy)
	}
}
