// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the local HTTP API over conversation storage and
// settings.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/chatkeep/internal/errlog"
	"github.com/jeranaias/chatkeep/internal/filestore"
	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/search"
	"github.com/jeranaias/chatkeep/internal/settings"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultHost binds the API to loopback only.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the port the desktop UI expects.
	DefaultPort = 3000

	// DefaultMaxBodyBytes caps request bodies (10MB).
	DefaultMaxBodyBytes = 10 * 1024 * 1024

	// DefaultRateLimit is the sustained request rate per client.
	DefaultRateLimit = 50.0

	// DefaultRateBurst is the burst size per client.
	DefaultRateBurst = 100
)

// Version is the server version, overridden at build time.
var Version = "0.1.0"

// =============================================================================
// SERVER
// =============================================================================

// Options configures a Server. Zero values fall back to the defaults above.
type Options struct {
	Host         string
	Port         int
	CORSOrigins  []string
	RateLimit    float64 // requests per second per client; negative disables
	RateBurst    int
	MaxBodyBytes int64
}

func (o *Options) fillDefaults() {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if len(o.CORSOrigins) == 0 {
		o.CORSOrigins = []string{"*"}
	}
	if o.RateLimit == 0 {
		o.RateLimit = DefaultRateLimit
	}
	if o.RateBurst == 0 {
		o.RateBurst = DefaultRateBurst
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Server is the HTTP API server.
type Server struct {
	opts     Options
	repo     *storage.Repository
	settings *settings.Store
	search   *search.Index
	errors   *errlog.Sink
	logger   *log.Logger

	router  *http.ServeMux
	handler http.Handler

	mu     sync.Mutex
	server *http.Server
}

// New creates a server. idx may be nil, in which case search requests get
// 503 Service Unavailable.
func New(repo *storage.Repository, settingsStore *settings.Store, idx *search.Index, sink *errlog.Sink, logger *log.Logger, opts Options) *Server {
	opts.fillDefaults()
	if logger == nil {
		logger = log.Default()
	}
	if sink == nil {
		sink = errlog.New(errlog.DefaultCapacity)
	}

	s := &Server{
		opts:     opts,
		repo:     repo,
		settings: settingsStore,
		search:   idx,
		errors:   sink,
		logger:   logger.WithPrefix("server"),
		router:   http.NewServeMux(),
	}
	s.setupRoutes()

	cors := DefaultCORSConfig()
	cors.AllowedOrigins = opts.CORSOrigins

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		CORSMiddleware(cors),
		SecurityHeadersMiddleware(),
	}
	if opts.RateLimit > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(NewRateLimiter(opts.RateLimit, opts.RateBurst), s.logger))
	}
	middlewares = append(middlewares, BodyLimitMiddleware(opts.MaxBodyBytes))
	s.handler = Chain(middlewares...)(s.router)

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Conversations
	s.router.HandleFunc("GET /conversations/index", s.handleIndex)
	s.router.HandleFunc("GET /conversations/search", s.handleSearch)
	s.router.HandleFunc("GET /conversations/{filename}", s.handleGetConversation)
	s.router.HandleFunc("POST /conversations/{filename}", s.handleSaveConversation)
	s.router.HandleFunc("PUT /conversations/{filename}", s.handleSaveConversation)
	s.router.HandleFunc("DELETE /conversations/{filename}", s.handleDeleteConversation)
	s.router.HandleFunc("DELETE /conversations", s.handleClearConversations)

	// Settings
	s.router.HandleFunc("GET /models", s.handleGetModels)
	s.router.HandleFunc("POST /models", s.handleSetModels)
	s.router.HandleFunc("DELETE /models/{modelId...}", s.handleDeleteModel)
	s.router.HandleFunc("GET /appearance", s.handleGetAppearance)
	s.router.HandleFunc("POST /appearance", s.handleSetAppearance)
	s.router.HandleFunc("GET /prompts", s.handleGetPrompts)
	s.router.HandleFunc("POST /prompts", s.handleSetPrompts)
	s.router.HandleFunc("DELETE /prompts/{id}", s.handleDeletePrompt)

	// Diagnostics
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /errors", s.handleGetErrors)
	s.router.HandleFunc("DELETE /errors", s.handleClearErrors)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves requests on ln until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("listening", "addr", ln.Addr().String(), "version", Version)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down")
	return srv.Shutdown(ctx)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// fail maps err to a status code and writes it. Server-side failures are
// recorded in the error sink.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "path", r.URL.Path, "err", err)
		if recErr := s.errors.Record(err, "server", map[string]string{
			"operation": op,
			"method":    r.Method,
			"path":      r.URL.Path,
		}); recErr != nil {
			s.logger.Warn("failed to record error", "err", recErr)
		}
		writeJSON(w, status, errorBody(op+" failed: "+err.Error()))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, settings.ErrPromptNotFound):
		return http.StatusNotFound
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, storage.ErrReservedName),
		errors.Is(err, filestore.ErrInvalidName),
		errors.Is(err, model.ErrInvalidConversation),
		errors.Is(err, settings.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrClosed), errors.Is(err, errSearchDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
