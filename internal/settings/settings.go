// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings stores the model list, appearance, and saved prompts.
package settings

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jeranaias/chatkeep/internal/filestore"
)

// Document names inside the data directory.
const (
	ModelsFile     = "models.json"
	AppearanceFile = "appearance.json"
	PromptsFile    = "prompts.json"
)

var (
	// ErrPromptNotFound is returned when deleting an unknown prompt.
	ErrPromptNotFound = errors.New("prompt not found")

	// ErrInvalidSettings is returned for values that fail validation.
	ErrInvalidSettings = errors.New("invalid settings")
)

// =============================================================================
// TYPES
// =============================================================================

// Models maps a display name to a provider model identifier.
type Models map[string]string

// DefaultModels returns the model list written on first start.
func DefaultModels() Models {
	return Models{
		"Grok 3":        "x-ai/grok-3-beta",
		"DeepSeek R1":   "deepseek/deepseek-r1",
		"Claude 3 Opus": "anthropic/claude-3-opus",
		"GPT-4 Turbo":   "openai/gpt-4-turbo-preview",
		"Mixtral 8x7B":  "mistral/mixtral-8x7b",
	}
}

// Appearance holds UI scaling preferences.
type Appearance struct {
	Scale    float64 `json:"scale"`
	FontSize int     `json:"fontSize"`
}

// DefaultAppearance returns the appearance written on first start.
func DefaultAppearance() Appearance {
	return Appearance{Scale: 1, FontSize: 14}
}

// Validate rejects non-positive values.
func (a Appearance) Validate() error {
	if a.Scale <= 0 {
		return fmt.Errorf("%w: scale must be positive", ErrInvalidSettings)
	}
	if a.FontSize <= 0 {
		return fmt.Errorf("%w: fontSize must be positive", ErrInvalidSettings)
	}
	return nil
}

// Prompt is a saved system prompt.
type Prompt struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// =============================================================================
// STORE
// =============================================================================

// Store reads and writes the settings documents. Each document is replaced
// whole on write.
type Store struct {
	files *filestore.Store
	mu    sync.Mutex
}

// New returns a settings store over the data directory.
func New(files *filestore.Store) *Store {
	return &Store{files: files}
}

// Ensure writes defaults for any missing document.
func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := []struct {
		name string
		v    any
	}{
		{ModelsFile, DefaultModels()},
		{AppearanceFile, DefaultAppearance()},
		{PromptsFile, []Prompt{}},
	}
	for _, d := range defaults {
		if _, err := s.files.Ensure(d.name, d.v); err != nil {
			return fmt.Errorf("ensure %s: %w", d.name, err)
		}
	}
	return nil
}

// Models returns the configured model list.
func (s *Store) Models() (Models, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.models()
}

func (s *Store) models() (Models, error) {
	models := Models{}
	if err := s.files.ReadJSON(ModelsFile, &models); err != nil {
		return nil, err
	}
	if models == nil {
		models = Models{}
	}
	return models, nil
}

// SetModels replaces the model list.
func (s *Store) SetModels(models Models) error {
	if models == nil {
		models = Models{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files.WriteJSON(ModelsFile, models)
}

// DeleteModel removes every entry whose identifier is modelID and returns
// how many were removed. Unknown identifiers are not an error.
func (s *Store) DeleteModel(modelID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	models, err := s.models()
	if err != nil {
		return 0, err
	}
	removed := 0
	for name, id := range models {
		if id == modelID {
			delete(models, name)
			removed++
		}
	}
	if err := s.files.WriteJSON(ModelsFile, models); err != nil {
		return 0, err
	}
	return removed, nil
}

// Appearance returns the appearance settings.
func (s *Store) Appearance() (Appearance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var a Appearance
	if err := s.files.ReadJSON(AppearanceFile, &a); err != nil {
		return Appearance{}, err
	}
	return a, nil
}

// SetAppearance validates and stores the appearance settings.
func (s *Store) SetAppearance(a Appearance) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files.WriteJSON(AppearanceFile, a)
}

// Prompts returns the saved prompts in stored order.
func (s *Store) Prompts() ([]Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts()
}

func (s *Store) prompts() ([]Prompt, error) {
	var prompts []Prompt
	if err := s.files.ReadJSON(PromptsFile, &prompts); err != nil {
		return nil, err
	}
	if prompts == nil {
		prompts = []Prompt{}
	}
	return prompts, nil
}

// SetPrompts replaces the saved prompts. Prompts without an ID get one.
func (s *Store) SetPrompts(prompts []Prompt) error {
	if prompts == nil {
		prompts = []Prompt{}
	}
	for i := range prompts {
		if prompts[i].ID == "" {
			prompts[i].ID = uuid.NewString()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files.WriteJSON(PromptsFile, prompts)
}

// AddPrompt appends a new prompt and returns it.
func (s *Store) AddPrompt(name, content string) (Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompts, err := s.prompts()
	if err != nil {
		return Prompt{}, err
	}
	p := Prompt{ID: uuid.NewString(), Name: name, Content: content}
	if err := s.files.WriteJSON(PromptsFile, append(prompts, p)); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// DeletePrompt removes the prompt with the given ID.
func (s *Store) DeletePrompt(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompts, err := s.prompts()
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(slices.Clone(prompts), func(p Prompt) bool {
		return p.ID == id
	})
	if len(kept) == len(prompts) {
		return fmt.Errorf("%w: %s", ErrPromptNotFound, id)
	}
	return s.files.WriteJSON(PromptsFile, kept)
}
