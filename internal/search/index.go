// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search provides full-text search over stored conversations.
package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// DBFileName is the default database file inside the data directory.
const DBFileName = "search.db"

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed        = errors.New("search index closed")
	ErrDatabaseError = errors.New("database error")
)

// Source supplies conversations for indexing. *storage.Repository is a
// Source.
type Source interface {
	ListFilenames(ctx context.Context) ([]string, error)
	Get(ctx context.Context, filename string) (*model.Conversation, error)
}

// =============================================================================
// INDEX
// =============================================================================

// Index is a SQLite FTS5 index of conversation titles and message text.
// It also implements storage.Observer so repository writes keep it current.
type Index struct {
	db     *sql.DB
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
}

var _ storage.Observer = (*Index)(nil)

// Open opens or creates the index database at path. A nil logger discards
// output.
func Open(path string, logger *log.Logger) (*Index, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Index{db: db, logger: logger}, nil
}

// Close releases the database.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	return x.db.Close()
}

// =============================================================================
// WRITES
// =============================================================================

// Put indexes conv under filename, replacing any previous entry.
func (x *Index) Put(ctx context.Context, filename string, conv *model.Conversation) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return ErrClosed
	}
	return put(ctx, x.db, filename, conv)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, filename string, conv *model.Conversation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO conversations
			(filename, conversation_id, title, model, last_response, message_count, body, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			title = excluded.title,
			model = excluded.model,
			last_response = excluded.last_response,
			message_count = excluded.message_count,
			body = excluded.body,
			indexed_at = excluded.indexed_at
	`, filename, conv.ID, norm.NFC.String(conv.Title), conv.Model,
		conv.LastResponseTime.UnixMilli(), len(conv.Messages), documentBody(conv), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// Remove drops filename from the index. Unknown names are ignored.
func (x *Index) Remove(ctx context.Context, filename string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return ErrClosed
	}
	if _, err := x.db.ExecContext(ctx, "DELETE FROM conversations WHERE filename = ?", filename); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// Clear empties the index.
func (x *Index) Clear(ctx context.Context) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return ErrClosed
	}
	if _, err := x.db.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// Rebuild replaces the index contents with every conversation src lists.
// Dangling entries are skipped. It returns the number indexed.
func (x *Index) Rebuild(ctx context.Context, src Source) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0, ErrClosed
	}

	names, err := src.ListFilenames(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	count := 0
	for _, name := range names {
		conv, err := src.Get(ctx, name)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrReservedName) {
				continue
			}
			x.logger.Warn("skipping unreadable conversation", "filename", name, "err", err)
			continue
		}
		if err := put(ctx, tx, name, conv); err != nil {
			return 0, err
		}
		count++
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE metadata SET value = ? WHERE key = 'last_rebuild'",
		strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return count, nil
}

// Count returns the number of indexed conversations.
func (x *Index) Count(ctx context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0, ErrClosed
	}

	var n int
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return n, nil
}

// documentBody joins message contents into one searchable text.
func documentBody(conv *model.Conversation) string {
	var sb strings.Builder
	for i, msg := range conv.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(msg.Content)
	}
	return norm.NFC.String(sb.String())
}

// =============================================================================
// REPOSITORY OBSERVER
// =============================================================================

// ConversationSaved implements storage.Observer.
func (x *Index) ConversationSaved(filename string, conv *model.Conversation) {
	if err := x.Put(context.Background(), filename, conv); err != nil {
		x.logger.Error("failed to index conversation", "filename", filename, "err", err)
	}
}

// ConversationDeleted implements storage.Observer.
func (x *Index) ConversationDeleted(filename string) {
	if err := x.Remove(context.Background(), filename); err != nil {
		x.logger.Error("failed to unindex conversation", "filename", filename, "err", err)
	}
}

// ConversationsCleared implements storage.Observer.
func (x *Index) ConversationsCleared() {
	if err := x.Clear(context.Background()); err != nil {
		x.logger.Error("failed to clear search index", "err", err)
	}
}
