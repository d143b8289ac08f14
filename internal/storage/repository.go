// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations as JSON files listed by an index.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/chatkeep/internal/filestore"
	"github.com/jeranaias/chatkeep/internal/index"
	"github.com/jeranaias/chatkeep/internal/model"
)

// DirName is the conversation directory inside the data directory.
const DirName = "chat_conversations"

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a conversation file does not exist.
	// Use errors.Is(err, ErrNotFound) to check for it.
	ErrNotFound = filestore.ErrNotFound

	// ErrReservedName is returned for filenames that cannot hold a
	// conversation: the index itself, hidden names, names with path
	// separators, and names without the .json extension.
	ErrReservedName = errors.New("reserved or invalid conversation filename")
)

// ValidateFilename checks that name can be used as a conversation filename.
func ValidateFilename(name string) error {
	switch {
	case name == "", name == index.FileName:
	case strings.HasPrefix(name, "."):
	case strings.ContainsAny(name, `/\`) || strings.Contains(name, ".."):
	case name != filepath.Base(name):
	case !strings.HasSuffix(name, model.FileExt) || name == model.FileExt:
	default:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrReservedName, name)
}

// =============================================================================
// OBSERVERS
// =============================================================================

// Observer is notified after each successful mutation. Callbacks run while
// the repository is locked, in mutation order, and must not call back into
// the repository.
type Observer interface {
	ConversationSaved(filename string, conv *model.Conversation)
	ConversationDeleted(filename string)
	ConversationsCleared()
}

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository maps conversations to files and keeps the index in step with
// writes and deletes. Mutations are serialized.
type Repository struct {
	files *filestore.Store
	index *index.Index

	mu        sync.Mutex
	observers []Observer
}

// Open returns a repository stored in DirName below dataDir, creating the
// directory and an empty index when missing.
func Open(dataDir string) (*Repository, error) {
	root, err := filestore.New(dataDir)
	if err != nil {
		return nil, err
	}
	files, err := root.Sub(DirName)
	if err != nil {
		return nil, err
	}
	return New(files)
}

// New returns a repository over an existing conversation directory store.
func New(files *filestore.Store) (*Repository, error) {
	r := &Repository{
		files: files,
		index: index.New(files),
	}
	if err := r.index.Ensure(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the conversation directory.
func (r *Repository) Dir() string {
	return r.files.Root()
}

// AddObserver registers o for mutation notifications.
func (r *Repository) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// ListFilenames returns the indexed filenames in the order they were added.
// Callers wanting recency order must sort the loaded conversations.
func (r *Repository) ListFilenames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.index.Load()
}

// Get reads a conversation file. The index is not consulted, so a file the
// index has forgotten can still be read.
func (r *Repository) Get(ctx context.Context, filename string) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	var conv model.Conversation
	if err := r.files.ReadJSON(filename, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Save writes the conversation file and then adds filename to the index.
// A crash between the two steps leaves an orphan file, never a dangling
// index entry.
func (r *Repository) Save(ctx context.Context, filename string, conv *model.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateFilename(filename); err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("%w: empty content", model.ErrInvalidConversation)
	}
	if err := conv.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.files.WriteJSON(filename, conv); err != nil {
		return err
	}
	if _, err := r.index.Add(filename); err != nil {
		return err
	}

	for _, o := range r.observers {
		o.ConversationSaved(filename, conv)
	}
	return nil
}

// Delete removes the conversation file and its index entry. The index entry
// is removed even when the file was already gone, so calling Delete twice
// succeeds both times.
func (r *Repository) Delete(ctx context.Context, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateFilename(filename); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.files.Delete(filename); err != nil {
		return err
	}
	if _, err := r.index.Remove(filename); err != nil {
		return err
	}

	for _, o := range r.observers {
		o.ConversationDeleted(filename)
	}
	return nil
}

// ClearAll deletes every indexed file and then empties the index. Files that
// are already gone are skipped. Any other failure stops the operation before
// the index is reset and is returned.
func (r *Repository) ClearAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.index.Load()
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ValidateFilename(name) != nil {
			continue
		}
		if _, err := r.files.Delete(name); err != nil {
			return fmt.Errorf("clear conversations: %w", err)
		}
	}

	if err := r.index.Reset(); err != nil {
		return err
	}

	for _, o := range r.observers {
		o.ConversationsCleared()
	}
	return nil
}
