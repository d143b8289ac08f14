// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"slices"

	"github.com/jeranaias/chatkeep/internal/model"
)

// =============================================================================
// CONSISTENCY CHECK
// =============================================================================

// Report describes how the index and the conversation files disagree.
type Report struct {
	// Indexed is the number of index entries.
	Indexed int `json:"indexed"`

	// Dangling lists index entries with no backing file.
	Dangling []string `json:"dangling"`

	// Orphans lists conversation files the index does not reference.
	Orphans []string `json:"orphans"`

	// Unreadable lists indexed files that exist but fail to decode.
	Unreadable []string `json:"unreadable"`
}

// Consistent reports whether the index and the files agree.
func (r *Report) Consistent() bool {
	return len(r.Dangling) == 0 && len(r.Orphans) == 0 && len(r.Unreadable) == 0
}

// Check compares the index with the conversation directory. It never
// modifies anything.
func (r *Repository) Check(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.check(ctx)
}

func (r *Repository) check(ctx context.Context) (*Report, error) {
	names, err := r.index.Load()
	if err != nil {
		return nil, err
	}
	files, err := r.files.List(model.FileExt)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Indexed:    len(names),
		Dangling:   []string{},
		Orphans:    []string{},
		Unreadable: []string{},
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !slices.Contains(files, name) {
			report.Dangling = append(report.Dangling, name)
			continue
		}
		var conv model.Conversation
		if err := r.files.ReadJSON(name, &conv); err != nil && !errors.Is(err, ErrNotFound) {
			report.Unreadable = append(report.Unreadable, name)
		}
	}

	for _, name := range files {
		if name == r.index.Name() {
			continue
		}
		if !slices.Contains(names, name) {
			report.Orphans = append(report.Orphans, name)
		}
	}

	return report, nil
}

// Prune removes dangling entries from the index and returns them. Orphan
// files are left in place. Nothing calls Prune implicitly.
func (r *Repository) Prune(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, err := r.check(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range report.Dangling {
		if _, err := r.index.Remove(name); err != nil {
			return nil, err
		}
		for _, o := range r.observers {
			o.ConversationDeleted(name)
		}
	}
	return report.Dangling, nil
}
