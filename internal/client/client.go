// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client is an HTTP client for a running chatkeep server.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jeranaias/chatkeep/internal/errlog"
	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/search"
	"github.com/jeranaias/chatkeep/internal/settings"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

// DefaultTimeout bounds each request.
const DefaultTimeout = 10 * time.Second

// ErrBadRequest is matched by errors returned for 400 responses.
var ErrBadRequest = errors.New("bad request")

// StatusError is returned for non-2xx responses.
//
// It matches storage.ErrNotFound for 404 and ErrBadRequest for 400, so callers
// can treat a remote repository like a local one.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, msg)
}

// Unwrap maps the status code to a sentinel error.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return storage.ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		return nil
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the server's JSON API.
type Client struct {
	baseURL string
	http    *resty.Client
}

// New returns a client for the server at baseURL.
func New(baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "chatkeep-client/1.0").
		SetTimeout(DefaultTimeout)

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetTimeout changes the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.http.SetTimeout(d)
}

type errorBody struct {
	Error string `json:"error"`
}

type conversationEnvelope struct {
	Content *model.Conversation `json:"content"`
}

// Health is the body of GET /health.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Conversations int    `json:"conversations"`
	Search        bool   `json:"search"`
}

// request starts a request with the context and error body wired in.
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetError(&errorBody{})
}

// check converts transport failures and error responses into errors.
func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		statusErr.Message = body.Error
	}
	return statusErr
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ListFilenames returns the conversation index.
func (c *Client) ListFilenames(ctx context.Context) ([]string, error) {
	var names []string
	resp, err := c.request(ctx).
		SetResult(&names).
		Get("/conversations/index")
	if err := check("list conversations", resp, err); err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Get fetches one conversation.
func (c *Client) Get(ctx context.Context, filename string) (*model.Conversation, error) {
	var body conversationEnvelope
	resp, err := c.request(ctx).
		SetPathParam("filename", filename).
		SetResult(&body).
		Get("/conversations/{filename}")
	if err := check("get "+filename, resp, err); err != nil {
		return nil, err
	}
	if body.Content == nil {
		return nil, fmt.Errorf("get %s: response has no content", filename)
	}
	return body.Content, nil
}

// Save stores a conversation under filename.
func (c *Client) Save(ctx context.Context, filename string, conv *model.Conversation) error {
	resp, err := c.request(ctx).
		SetPathParam("filename", filename).
		SetBody(conversationEnvelope{Content: conv}).
		Post("/conversations/{filename}")
	return check("save "+filename, resp, err)
}

// Delete removes a conversation.
func (c *Client) Delete(ctx context.Context, filename string) error {
	resp, err := c.request(ctx).
		SetPathParam("filename", filename).
		Delete("/conversations/{filename}")
	return check("delete "+filename, resp, err)
}

// ClearAll removes every conversation.
func (c *Client) ClearAll(ctx context.Context) error {
	resp, err := c.request(ctx).Delete("/conversations")
	return check("clear conversations", resp, err)
}

// Search runs a full-text query. A non-positive limit uses the server
// default.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	var results []search.Result
	req := c.request(ctx).
		SetQueryParam("q", query).
		SetResult(&results)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := req.Get("/conversations/search")
	if err := check("search", resp, err); err != nil {
		return nil, err
	}
	return results, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// Models returns the model list.
func (c *Client) Models(ctx context.Context) (settings.Models, error) {
	var models settings.Models
	resp, err := c.request(ctx).SetResult(&models).Get("/models")
	if err := check("get models", resp, err); err != nil {
		return nil, err
	}
	return models, nil
}

// SetModels replaces the model list.
func (c *Client) SetModels(ctx context.Context, models settings.Models) error {
	resp, err := c.request(ctx).SetBody(models).Post("/models")
	return check("save models", resp, err)
}

// DeleteModel removes entries with the given model identifier.
func (c *Client) DeleteModel(ctx context.Context, modelID string) error {
	resp, err := c.request(ctx).
		SetPathParam("modelId", modelID).
		Delete("/models/{modelId}")
	return check("delete model", resp, err)
}

// Appearance returns the appearance settings.
func (c *Client) Appearance(ctx context.Context) (settings.Appearance, error) {
	var a settings.Appearance
	resp, err := c.request(ctx).SetResult(&a).Get("/appearance")
	if err := check("get appearance", resp, err); err != nil {
		return settings.Appearance{}, err
	}
	return a, nil
}

// SetAppearance replaces the appearance settings.
func (c *Client) SetAppearance(ctx context.Context, a settings.Appearance) error {
	resp, err := c.request(ctx).SetBody(a).Post("/appearance")
	return check("save appearance", resp, err)
}

// Prompts returns the saved system prompts.
func (c *Client) Prompts(ctx context.Context) ([]settings.Prompt, error) {
	var prompts []settings.Prompt
	resp, err := c.request(ctx).SetResult(&prompts).Get("/prompts")
	if err := check("get prompts", resp, err); err != nil {
		return nil, err
	}
	return prompts, nil
}

// SetPrompts replaces the saved system prompts.
func (c *Client) SetPrompts(ctx context.Context, prompts []settings.Prompt) error {
	resp, err := c.request(ctx).SetBody(prompts).Post("/prompts")
	return check("save prompts", resp, err)
}

// DeletePrompt removes a prompt by ID.
func (c *Client) DeletePrompt(ctx context.Context, id string) error {
	resp, err := c.request(ctx).
		SetPathParam("id", id).
		Delete("/prompts/{id}")
	return check("delete prompt", resp, err)
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	resp, err := c.request(ctx).SetResult(&h).Get("/health")
	if err := check("health", resp, err); err != nil {
		return nil, err
	}
	return &h, nil
}

// Errors returns the server's recorded failures, newest first.
func (c *Client) Errors(ctx context.Context) ([]errlog.Entry, error) {
	var entries []errlog.Entry
	resp, err := c.request(ctx).SetResult(&entries).Get("/errors")
	if err := check("get errors", resp, err); err != nil {
		return nil, err
	}
	return entries, nil
}

// ClearErrors empties the server's error log.
func (c *Client) ClearErrors(ctx context.Context) error {
	resp, err := c.request(ctx).Delete("/errors")
	return check("clear errors", resp, err)
}
