// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), DBFileName), nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func conversation(user, assistant string, at time.Time) *model.Conversation {
	conv := model.NewConversation(model.NewSystemMessage("You are helpful"), "m1", at)
	conv.Append(model.NewUserMessage(user), at)
	conv.Append(model.NewAssistantMessage(assistant), at)
	return conv
}

// =============================================================================
// INDEX TESTS
// =============================================================================

func TestPutAndSearch(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, "a.json", conversation("How do I configure nginx?", "Edit the server block", time.Now())))
	require.NoError(t, idx.Put(ctx, "b.json", conversation("Explain goroutines", "They are lightweight threads", time.Now())))

	results, err := idx.Search(ctx, "goroutine", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b.json", results[0].Filename)
	assert.Equal(t, "Explain goroutines", results[0].Title)
	assert.Equal(t, 3, results[0].MessageCount)
	assert.Contains(t, results[0].Snippet, "[")
}

func TestSearch_AllTermsMustMatch(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, "a.json", conversation("nginx reverse proxy", "ok", time.Now())))
	require.NoError(t, idx.Put(ctx, "b.json", conversation("nginx logs", "ok", time.Now())))

	results, err := idx.Search(ctx, "NGINX proxy", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.json", results[0].Filename)
}

func TestSearch_OperatorsAreLiteral(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, "a.json", conversation("alpha beta", "ok", time.Now())))

	for _, q := range []string{`alpha OR`, `"alpha`, `alpha*`, `title:alpha`, `(alpha)`, `-`, `"`} {
		_, err := idx.Search(ctx, q, 10)
		assert.NoError(t, err, "query %q", q)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	idx := openIndex(t)
	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPut_ReplacesPreviousEntry(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, "a.json", conversation("first topic", "ok", time.Now())))
	require.NoError(t, idx.Put(ctx, "a.json", conversation("second topic", "ok", time.Now())))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := idx.Search(ctx, "first", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(ctx, "second", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRemoveAndClear(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, "a.json", conversation("alpha", "ok", time.Now())))
	require.NoError(t, idx.Put(ctx, "b.json", conversation("beta", "ok", time.Now())))

	require.NoError(t, idx.Remove(ctx, "a.json"))
	require.NoError(t, idx.Remove(ctx, "missing.json"))
	results, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, idx.Clear(ctx))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClosed(t *testing.T) {
	idx := openIndex(t)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err := idx.Search(context.Background(), "x", 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, idx.Put(context.Background(), "a.json", conversation("x", "y", time.Now())), ErrClosed)
}

// =============================================================================
// REPOSITORY INTEGRATION TESTS
// =============================================================================

func TestObserverFollowsRepository(t *testing.T) {
	idx := openIndex(t)
	repo, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	repo.AddObserver(idx)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "a.json", conversation("kubernetes ingress", "ok", time.Now())))
	results, err := idx.Search(ctx, "kubernetes", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.NoError(t, repo.Delete(ctx, "a.json"))
	results, err = idx.Search(ctx, "kubernetes", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, repo.Save(ctx, "b.json", conversation("terraform", "ok", time.Now())))
	require.NoError(t, repo.ClearAll(ctx))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRebuild(t *testing.T) {
	idx := openIndex(t)
	dataDir := t.TempDir()
	repo, err := storage.Open(dataDir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "a.json", conversation("alpha", "ok", time.Now())))
	require.NoError(t, repo.Save(ctx, "b.json", conversation("beta", "ok", time.Now())))
	require.NoError(t, repo.Save(ctx, "c.json", conversation("gamma", "ok", time.Now())))
	// Leave a dangling entry behind.
	require.NoError(t, removeFile(filepath.Join(repo.Dir(), "c.json")))
	// A stale entry that the repository no longer lists.
	require.NoError(t, idx.Put(ctx, "stale.json", conversation("stale", "ok", time.Now())))

	n, err := idx.Rebuild(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := idx.Search(ctx, "stale", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBuildFTSQuery(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"hello", `"hello"*`},
		{"Hello  World", `"hello"* "world"*`},
		{`say "hi"`, `"say"* """hi"""*`},
		{"- *", ""},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, buildFTSQuery(tc.input))
		})
	}
}
