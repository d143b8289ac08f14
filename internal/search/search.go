// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultLimit is used when a search does not set one.
	DefaultLimit = 20

	// MaxLimit caps the number of results of a single search.
	MaxLimit = 100
)

// Result is a single search hit.
type Result struct {
	Filename         string    `json:"filename"`
	ConversationID   string    `json:"id"`
	Title            string    `json:"title"`
	Model            string    `json:"model"`
	LastResponseTime time.Time `json:"lastResponseTime"`
	MessageCount     int       `json:"messageCount"`
	Snippet          string    `json:"snippet"`
	Rank             float64   `json:"rank"`
}

// Search returns conversations matching every term of query, best match
// first. Each term matches as a prefix. An empty query returns no results.
func (x *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return []Result{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, ErrClosed
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT
			c.filename, c.conversation_id, c.title, c.model, c.last_response, c.message_count,
			snippet(conversations_fts, 1, '[', ']', '...', 12),
			conversations_fts.rank
		FROM conversations_fts
		JOIN conversations c ON c.id = conversations_fts.rowid
		WHERE conversations_fts MATCH ?
		ORDER BY conversations_fts.rank
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var r Result
		var lastResponse int64
		if err := rows.Scan(&r.Filename, &r.ConversationID, &r.Title, &r.Model,
			&lastResponse, &r.MessageCount, &r.Snippet, &r.Rank); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		r.LastResponseTime = time.UnixMilli(lastResponse)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return results, nil
}

// buildFTSQuery turns user input into an FTS5 expression. Every term is
// quoted so FTS5 operators in the input are matched literally.
func buildFTSQuery(query string) string {
	query = cases.Fold().String(norm.NFC.String(strings.TrimSpace(query)))
	if query == "" {
		return ""
	}

	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		if strings.IndexFunc(term, isWordRune) < 0 {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"*`)
	}
	return strings.Join(quoted, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
