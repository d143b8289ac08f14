// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index maintains the ordered list of live conversation filenames.
package index

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jeranaias/chatkeep/internal/filestore"
)

// FileName is the document that holds the index inside the conversation
// directory.
const FileName = "index.json"

// Index is an ordered, duplicate-free list of filenames persisted as a single
// JSON array. Every mutation is a load-modify-store round trip; there is no
// in-memory copy to flush.
type Index struct {
	store *filestore.Store
	name  string
	mu    sync.Mutex
}

// New returns an index stored as FileName in store.
func New(store *filestore.Store) *Index {
	return NewWithName(store, FileName)
}

// NewWithName returns an index stored under a custom document name.
func NewWithName(store *filestore.Store, name string) *Index {
	return &Index{store: store, name: name}
}

// Name returns the document name of the index.
func (x *Index) Name() string {
	return x.name
}

// Ensure creates an empty index if none exists. Safe to call on every start.
func (x *Index) Ensure() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := x.store.Ensure(x.name, []string{}); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	return nil
}

// Load returns the filenames in insertion order. A missing index reads as
// empty.
func (x *Index) Load() ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.load()
}

// Contains reports whether filename is listed.
func (x *Index) Contains(filename string) (bool, error) {
	names, err := x.Load()
	if err != nil {
		return false, err
	}
	return slices.Contains(names, filename), nil
}

// Add appends filename unless it is already listed. Existing entries keep
// their position. It reports whether the index changed.
func (x *Index) Add(filename string) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	names, err := x.load()
	if err != nil {
		return false, err
	}
	if slices.Contains(names, filename) {
		return false, nil
	}
	if err := x.save(append(names, filename)); err != nil {
		return false, err
	}
	return true, nil
}

// Remove drops filename from the index. Removing an absent name is a no-op.
// It reports whether the index changed.
func (x *Index) Remove(filename string) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	names, err := x.load()
	if err != nil {
		return false, err
	}
	kept := slices.DeleteFunc(slices.Clone(names), func(n string) bool {
		return n == filename
	})
	if len(kept) == len(names) {
		return false, nil
	}
	if err := x.save(kept); err != nil {
		return false, err
	}
	return true, nil
}

// Reset empties the index.
func (x *Index) Reset() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.save([]string{})
}

func (x *Index) load() ([]string, error) {
	var names []string
	if err := x.store.ReadJSON(x.name, &names); err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("load index: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (x *Index) save(names []string) error {
	if err := x.store.WriteJSON(x.name, names); err != nil {
		return fmt.Errorf("store index: %w", err)
	}
	return nil
}
