// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errlog keeps a bounded, newest-first record of operational errors.
package errlog

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jeranaias/chatkeep/internal/filestore"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 100

// FileName is the document a persistent sink writes to.
const FileName = "error_logs.json"

// =============================================================================
// ENTRY
// =============================================================================

// Entry is a single recorded error.
type Entry struct {
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Component string            `json:"component,omitempty"`
	Info      map[string]string `json:"info,omitempty"`
}

// =============================================================================
// SINK
// =============================================================================

// Sink holds at most Capacity entries. Recording past capacity drops the
// oldest entry.
type Sink struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int

	// files is nil for in-memory sinks.
	files *filestore.Store
	now   func() time.Time
}

// New returns an in-memory sink. A non-positive capacity uses
// DefaultCapacity.
func New(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// NewPersistent returns a sink mirrored to FileName in files. Entries saved
// by a previous run are loaded and trimmed to capacity.
func NewPersistent(capacity int, files *filestore.Store) (*Sink, error) {
	s := New(capacity)
	s.files = files

	var stored []Entry
	if err := files.ReadJSON(FileName, &stored); err != nil && !errors.Is(err, filestore.ErrNotFound) {
		return nil, err
	}
	if len(stored) > s.capacity {
		stored = stored[:s.capacity]
	}
	s.entries = append(s.entries, stored...)
	return s, nil
}

// Capacity returns the maximum number of entries kept.
func (s *Sink) Capacity() int {
	return s.capacity
}

// Record adds err at the front of the log. The entry is kept even when
// persisting it fails; the persistence error is returned.
func (s *Sink) Record(err error, component string, info map[string]string) error {
	if err == nil {
		return nil
	}

	entry := Entry{
		Timestamp: s.now(),
		Message:   err.Error(),
		Component: component,
		Info:      maps.Clone(info),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = slices.Insert(s.entries, 0, entry)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[:s.capacity]
	}
	return s.persist()
}

// Entries returns a copy of the log, newest first.
func (s *Sink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Len returns the number of entries held.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry and removes the persisted copy.
func (s *Sink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = s.entries[:0]
	if s.files == nil {
		return nil
	}
	_, err := s.files.Delete(FileName)
	return err
}

func (s *Sink) persist() error {
	if s.files == nil {
		return nil
	}
	return s.files.WriteJSON(FileName, s.entries)
}
