// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jeranaias/chatkeep/internal/errlog"
	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/search"
	"github.com/jeranaias/chatkeep/internal/settings"
)

var (
	errBadRequest     = errors.New("bad request")
	errSearchDisabled = errors.New("search is disabled")
)

// conversationEnvelope is the request and response body of a single
// conversation.
type conversationEnvelope struct {
	Content *model.Conversation `json:"content"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Conversations int    `json:"conversations"`
	Search        bool   `json:"search"`
}

// decodeJSON reads the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	names, err := s.repo.ListFilenames(r.Context())
	if err != nil {
		s.fail(w, r, "read index", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		s.fail(w, r, "search", errSearchDisabled)
		return
	}

	limit := search.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.fail(w, r, "search", fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = n
	}

	results, err := s.search.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.fail(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.repo.Get(r.Context(), r.PathValue("filename"))
	if err != nil {
		s.fail(w, r, "read conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conversationEnvelope{Content: conv})
}

func (s *Server) handleSaveConversation(w http.ResponseWriter, r *http.Request) {
	var body conversationEnvelope
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, "save conversation", err)
		return
	}
	if body.Content == nil {
		s.fail(w, r, "save conversation", fmt.Errorf("%w: missing content", errBadRequest))
		return
	}
	if err := s.repo.Save(r.Context(), r.PathValue("filename"), body.Content); err != nil {
		s.fail(w, r, "save conversation", err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Delete(r.Context(), r.PathValue("filename")); err != nil {
		s.fail(w, r, "delete conversation", err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleClearConversations(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.ClearAll(r.Context()); err != nil {
		s.fail(w, r, "clear conversations", err)
		return
	}
	writeSuccess(w)
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *Server) handleGetModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.settings.Models()
	if err != nil {
		s.fail(w, r, "read models", err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleSetModels(w http.ResponseWriter, r *http.Request) {
	var models settings.Models
	if err := decodeJSON(r, &models); err != nil {
		s.fail(w, r, "save models", err)
		return
	}
	if err := s.settings.SetModels(models); err != nil {
		s.fail(w, r, "save models", err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if _, err := s.settings.DeleteModel(r.PathValue("modelId")); err != nil {
		s.fail(w, r, "delete model", err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleGetAppearance(w http.ResponseWriter, r *http.Request) {
	a, err := s.settings.Appearance()
	if err != nil {
		s.fail(w, r, "read appearance", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleSetAppearance(w http.ResponseWriter, r *http.Request) {
	var a settings.Appearance
	if err := decodeJSON(r, &a); err != nil {
		s.fail(w, r, "save appearance", err)
		return
	}
	if err := s.settings.SetAppearance(a); err != nil {
		s.fail(w, r, "save appearance", err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleGetPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.settings.Prompts()
	if err != nil {
		s.fail(w, r, "read prompts", err)
		return
	}
	writeJSON(w, http.StatusOK, prompts)
}

func (s *Server) handleSetPrompts(w http.ResponseWriter, r *http.Request) {
	var prompts []settings.Prompt
	if err := decodeJSON(r, &prompts); err != nil {
		s.fail(w, r, "save prompts", err)
		return
	}
	if err := s.settings.SetPrompts(prompts); err != nil {
		s.fail(w, r, "save prompts", err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.DeletePrompt(r.PathValue("id")); err != nil {
		s.fail(w, r, "delete prompt", err)
		return
	}
	writeSuccess(w)
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names, err := s.repo.ListFilenames(r.Context())
	if err != nil {
		s.fail(w, r, "health", err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       Version,
		Conversations: len(names),
		Search:        s.search != nil,
	})
}

func (s *Server) handleGetErrors(w http.ResponseWriter, r *http.Request) {
	entries := s.errors.Entries()
	if entries == nil {
		entries = []errlog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	if err := s.errors.Clear(); err != nil {
		s.logger.Error("clear errors failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("clear errors failed: "+err.Error()))
		return
	}
	writeSuccess(w)
}
