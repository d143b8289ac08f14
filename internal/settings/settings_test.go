// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"testing"

	"github.com/jeranaias/chatkeep/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSettings(t *testing.T) (*Store, *filestore.Store) {
	t.Helper()
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	s := New(files)
	require.NoError(t, s.Ensure())
	return s, files
}

func TestEnsure_WritesDefaults(t *testing.T) {
	s, _ := newSettings(t)

	models, err := s.Models()
	require.NoError(t, err)
	assert.Len(t, models, 5)
	assert.Equal(t, "deepseek/deepseek-r1", models["DeepSeek R1"])

	a, err := s.Appearance()
	require.NoError(t, err)
	assert.Equal(t, DefaultAppearance(), a)

	prompts, err := s.Prompts()
	require.NoError(t, err)
	assert.Empty(t, prompts)
}

func TestEnsure_KeepsExistingContent(t *testing.T) {
	s, _ := newSettings(t)
	require.NoError(t, s.SetModels(Models{"Only": "only/one"}))

	require.NoError(t, s.Ensure())

	models, err := s.Models()
	require.NoError(t, err)
	assert.Equal(t, Models{"Only": "only/one"}, models)
}

func TestDeleteModel_RemovesAllMatchingEntries(t *testing.T) {
	s, _ := newSettings(t)
	require.NoError(t, s.SetModels(Models{"A": "x/1", "B": "x/1", "C": "x/2"}))

	removed, err := s.DeleteModel("x/1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = s.DeleteModel("unknown")
	require.NoError(t, err)
	assert.Zero(t, removed)

	models, err := s.Models()
	require.NoError(t, err)
	assert.Equal(t, Models{"C": "x/2"}, models)
}

func TestSetAppearance_Validates(t *testing.T) {
	s, _ := newSettings(t)

	require.NoError(t, s.SetAppearance(Appearance{Scale: 1.25, FontSize: 16}))
	a, err := s.Appearance()
	require.NoError(t, err)
	assert.Equal(t, Appearance{Scale: 1.25, FontSize: 16}, a)

	assert.ErrorIs(t, s.SetAppearance(Appearance{Scale: 0, FontSize: 16}), ErrInvalidSettings)
	assert.ErrorIs(t, s.SetAppearance(Appearance{Scale: 1, FontSize: -1}), ErrInvalidSettings)
}

func TestPrompts(t *testing.T) {
	s, _ := newSettings(t)

	p, err := s.AddPrompt("Reviewer", "Review this code")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	require.NoError(t, s.SetPrompts(append([]Prompt{p}, Prompt{Name: "No ID", Content: "x"})))
	prompts, err := s.Prompts()
	require.NoError(t, err)
	require.Len(t, prompts, 2)
	assert.NotEmpty(t, prompts[1].ID)

	require.NoError(t, s.DeletePrompt(p.ID))
	assert.ErrorIs(t, s.DeletePrompt(p.ID), ErrPromptNotFound)

	prompts, err = s.Prompts()
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "No ID", prompts[0].Name)
}

func TestModels_MissingDocument(t *testing.T) {
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	_, err = New(files).Models()
	assert.ErrorIs(t, err, filestore.ErrNotFound)
}
