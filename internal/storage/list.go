// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/util"
)

// PreviewRunes is the length of Meta.Preview.
const PreviewRunes = 80

// Meta contains metadata for listing conversations.
type Meta struct {
	Filename         string    `json:"filename"`
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Model            string    `json:"model"`
	LastResponseTime time.Time `json:"lastResponseTime"`
	MessageCount     int       `json:"messageCount"`
	Preview          string    `json:"preview"`
}

// MetaOf summarizes conv stored under filename.
func MetaOf(filename string, conv *model.Conversation) Meta {
	return Meta{
		Filename:         filename,
		ID:               conv.ID,
		Title:            conv.Title,
		Model:            conv.Model,
		LastResponseTime: conv.LastResponseTime,
		MessageCount:     conv.MessageCount(),
		Preview:          conv.Preview(PreviewRunes),
	}
}

// List returns metadata for every indexed conversation, most recent first.
// Dangling entries are skipped; unreadable files fail the call.
func (r *Repository) List(ctx context.Context) ([]Meta, error) {
	names, err := r.ListFilenames(ctx)
	if err != nil {
		return nil, err
	}

	metas := make([]Meta, 0, len(names))
	for _, name := range names {
		conv, err := r.Get(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrReservedName) {
				continue
			}
			return nil, err
		}
		metas = append(metas, MetaOf(name, conv))
	}

	slices.SortStableFunc(metas, func(a, b Meta) int {
		return b.LastResponseTime.Compare(a.LastResponseTime)
	})
	return metas, nil
}

// FormatList formats conversation metadata as a plain-text table.
func FormatList(metas []Meta) string {
	if len(metas) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	rule := strings.Repeat("-", 78) + "\n"
	sb.WriteString(rule)
	sb.WriteString(util.PadRight("File", 26) + " " + util.PadRight("Title", 34) + " " + util.PadRight("Msgs", 5) + " Model\n")
	sb.WriteString(rule)

	for _, m := range metas {
		sb.WriteString(util.PadRight(m.Filename, 26) + " " +
			util.PadRight(m.Title, 34) + " " +
			util.PadRight(strconv.Itoa(m.MessageCount), 5) + " " +
			m.Model + "\n")
	}
	return sb.String()
}
