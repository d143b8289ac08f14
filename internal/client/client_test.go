// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatkeep/internal/chatcache"
	"github.com/jeranaias/chatkeep/internal/errlog"
	"github.com/jeranaias/chatkeep/internal/filestore"
	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/search"
	"github.com/jeranaias/chatkeep/internal/server"
	"github.com/jeranaias/chatkeep/internal/settings"
	"github.com/jeranaias/chatkeep/internal/storage"
)

var _ chatcache.Backend = (*Client)(nil)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	dir := t.TempDir()
	files, err := filestore.New(dir)
	require.NoError(t, err)
	repo, err := storage.Open(dir)
	require.NoError(t, err)
	st := settings.New(files)
	require.NoError(t, st.Ensure())

	logger := log.New(io.Discard)
	idx, err := search.Open(filepath.Join(dir, search.DBFileName), logger)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	repo.AddObserver(idx)

	srv := server.New(repo, st, idx, errlog.New(10), logger, server.Options{RateLimit: -1})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return New(ts.URL)
}

func sample(text string) *model.Conversation {
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	conv := model.NewConversation(model.NewSystemMessage("sys"), "m1", now)
	conv.Append(model.NewUserMessage(text), now)
	conv.Append(model.NewAssistantMessage("ok"), now)
	return conv
}

func TestConversationRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	names, err := c.ListFilenames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	conv := sample("hello remote")
	require.NoError(t, c.Save(ctx, "a.json", conv))

	names, err = c.ListFilenames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json"}, names)

	got, err := c.Get(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "hello remote", got.Title)
	assert.Len(t, got.Messages, 3)

	require.NoError(t, c.Delete(ctx, "a.json"))
	require.NoError(t, c.Delete(ctx, "a.json"))

	_, err = c.Get(ctx, "a.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestSave_BadRequest(t *testing.T) {
	c := newTestClient(t)

	err := c.Save(context.Background(), "index.json", sample("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Contains(t, err.Error(), "400")
}

func TestClearAll(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "a.json", sample("one")))
	require.NoError(t, c.Save(ctx, "b.json", sample("two")))
	require.NoError(t, c.ClearAll(ctx))

	names, err := c.ListFilenames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "a.json", sample("gardening tomatoes")))
	require.NoError(t, c.Save(ctx, "b.json", sample("compiler design")))

	results, err := c.Search(ctx, "tomat", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.json", results[0].Filename)
}

func TestSettings(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetModels(ctx, settings.Models{"A": "org/a", "B": "b"}))
	require.NoError(t, c.DeleteModel(ctx, "org/a"))
	models, err := c.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.Models{"B": "b"}, models)

	want := settings.Appearance{Scale: 1.5, FontSize: 18}
	require.NoError(t, c.SetAppearance(ctx, want))
	got, err := c.Appearance(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, c.SetPrompts(ctx, []settings.Prompt{{Name: "p", Content: "be brief"}}))
	prompts, err := c.Prompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	require.NoError(t, c.DeletePrompt(ctx, prompts[0].ID))
	assert.ErrorIs(t, c.DeletePrompt(ctx, prompts[0].ID), storage.ErrNotFound)
}

func TestHealthAndErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, server.Version, h.Version)
	assert.True(t, h.Search)

	entries, err := c.Errors(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, c.ClearErrors(ctx))
}

func TestTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(url)
	c.SetTimeout(time.Second)
	_, err := c.ListFilenames(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrNotFound))
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Op: "get x.json", StatusCode: http.StatusInternalServerError}
	assert.Equal(t, "get x.json: server returned 500: Internal Server Error", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

func TestRequestTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, New("http://127.0.0.1:1").http.GetClient().Timeout)

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(func() { close(release) })

	c := New(ts.URL)
	c.SetTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err := c.ListFilenames(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
