// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search provides full-text search over stored conversations.
package search

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1
)

// Schema is the SQLite schema for the conversation search index.
const Schema = `
-- Metadata table for schema version and rebuild state
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- One row per indexed conversation file
CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    filename TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL,
    title TEXT NOT NULL,
    model TEXT,
    last_response INTEGER NOT NULL, -- Unix milliseconds
    message_count INTEGER NOT NULL,
    body TEXT NOT NULL,             -- NFC-normalized message contents
    indexed_at INTEGER NOT NULL     -- Unix timestamp
);

CREATE INDEX IF NOT EXISTS idx_conversations_last_response ON conversations(last_response);

-- Full-text search over title and body
CREATE VIRTUAL TABLE IF NOT EXISTS conversations_fts USING fts5(
    title,
    body,
    content='conversations',
    content_rowid='id',
    tokenize='porter unicode61'
);

-- Triggers to keep FTS table in sync. External-content tables need the
-- 'delete' command with the old values.
CREATE TRIGGER IF NOT EXISTS conversations_ai AFTER INSERT ON conversations BEGIN
    INSERT INTO conversations_fts(rowid, title, body)
    VALUES (new.id, new.title, new.body);
END;

CREATE TRIGGER IF NOT EXISTS conversations_ad AFTER DELETE ON conversations BEGIN
    INSERT INTO conversations_fts(conversations_fts, rowid, title, body)
    VALUES ('delete', old.id, old.title, old.body);
END;

CREATE TRIGGER IF NOT EXISTS conversations_au AFTER UPDATE ON conversations BEGIN
    INSERT INTO conversations_fts(conversations_fts, rowid, title, body)
    VALUES ('delete', old.id, old.title, old.body);
    INSERT INTO conversations_fts(rowid, title, body)
    VALUES (new.id, new.title, new.body);
END;
`

// InitMetadata initializes the metadata table with default values
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
INSERT OR IGNORE INTO metadata (key, value) VALUES ('created_at', strftime('%s', 'now'));
INSERT OR IGNORE INTO metadata (key, value) VALUES ('last_rebuild', '0');
`
