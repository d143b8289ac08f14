// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
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
// TEST HELPERS
// =============================================================================

type testEnv struct {
	srv     *Server
	handler http.Handler
	repo    *storage.Repository
	sink    *errlog.Sink
	dir     string
}

func newTestEnv(t *testing.T, opts Options, withSearch bool) *testEnv {
	t.Helper()

	dir := t.TempDir()
	files, err := filestore.New(dir)
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	repo, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	st := settings.New(files)
	if err := st.Ensure(); err != nil {
		t.Fatalf("settings.Ensure: %v", err)
	}

	logger := log.New(io.Discard)

	var idx *search.Index
	if withSearch {
		idx, err = search.Open(filepath.Join(dir, search.DBFileName), logger)
		if err != nil {
			t.Fatalf("search.Open: %v", err)
		}
		t.Cleanup(func() { idx.Close() })
		repo.AddObserver(idx)
	}

	sink := errlog.New(10)
	srv := New(repo, st, idx, sink, logger, opts)
	return &testEnv{srv: srv, handler: srv.Handler(), repo: repo, sink: sink, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func sampleConversation(text string) *model.Conversation {
	now := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)
	conv := model.NewConversation(model.NewSystemMessage("You are helpful"), "m1", now)
	conv.Append(model.NewUserMessage(text), now)
	conv.Append(model.NewAssistantMessage("Sure."), now.Add(time.Second))
	return conv
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestIndex_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t, Options{}, false)

	w := env.do(t, http.MethodGet, "/conversations/index", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestConversation_SaveGetDelete(t *testing.T) {
	env := newTestEnv(t, Options{}, false)
	conv := sampleConversation("Hello there")

	w := env.do(t, http.MethodPost, "/conversations/a.json", conversationEnvelope{Content: conv})
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decode[successResponse](t, w); !got.Success {
		t.Error("save should report success")
	}

	// Saving twice keeps a single index entry.
	w = env.do(t, http.MethodPut, "/conversations/a.json", conversationEnvelope{Content: conv})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d", w.Code)
	}
	names := decode[[]string](t, env.do(t, http.MethodGet, "/conversations/index", nil))
	if len(names) != 1 || names[0] != "a.json" {
		t.Errorf("index = %v, want [a.json]", names)
	}

	w = env.do(t, http.MethodGet, "/conversations/a.json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decode[conversationEnvelope](t, w)
	if got.Content == nil || got.Content.ID != conv.ID || got.Content.Title != "Hello there" {
		t.Errorf("got %+v, want conversation %s", got.Content, conv.ID)
	}

	w = env.do(t, http.MethodDelete, "/conversations/a.json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	// Deleting again is still a success.
	w = env.do(t, http.MethodDelete, "/conversations/a.json", nil)
	if w.Code != http.StatusOK {
		t.Errorf("second delete status = %d, want 200", w.Code)
	}

	w = env.do(t, http.MethodGet, "/conversations/a.json", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestConversation_Errors(t *testing.T) {
	env := newTestEnv(t, Options{}, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing file", http.MethodGet, "/conversations/missing.json", nil, http.StatusNotFound},
		{"reserved name", http.MethodPost, "/conversations/index.json", conversationEnvelope{Content: sampleConversation("x")}, http.StatusBadRequest},
		{"wrong extension", http.MethodPost, "/conversations/a.txt", conversationEnvelope{Content: sampleConversation("x")}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/conversations/a.json", "{not json", http.StatusBadRequest},
		{"missing content", http.MethodPost, "/conversations/a.json", map[string]any{}, http.StatusBadRequest},
		{"invalid conversation", http.MethodPost, "/conversations/a.json", conversationEnvelope{Content: &model.Conversation{}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if got := decode[errorResponse](t, w); got.Error == "" {
				t.Error("error response should carry a message")
			}
		})
	}

	if env.sink.Len() != 0 {
		t.Errorf("client errors should not be recorded, got %d entries", env.sink.Len())
	}
}

func TestClearAll(t *testing.T) {
	env := newTestEnv(t, Options{}, false)
	for _, name := range []string{"a.json", "b.json"} {
		if w := env.do(t, http.MethodPost, "/conversations/"+name, conversationEnvelope{Content: sampleConversation(name)}); w.Code != http.StatusOK {
			t.Fatalf("save %s status = %d", name, w.Code)
		}
	}

	w := env.do(t, http.MethodDelete, "/conversations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	names := decode[[]string](t, env.do(t, http.MethodGet, "/conversations/index", nil))
	if len(names) != 0 {
		t.Errorf("index after clear = %v, want empty", names)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, Options{}, true)
	env.do(t, http.MethodPost, "/conversations/a.json", conversationEnvelope{Content: sampleConversation("kubernetes operators")})
	env.do(t, http.MethodPost, "/conversations/b.json", conversationEnvelope{Content: sampleConversation("sourdough bread")})

	w := env.do(t, http.MethodGet, "/conversations/search?q=kube", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	results := decode[[]search.Result](t, w)
	if len(results) != 1 || results[0].Filename != "a.json" {
		t.Errorf("results = %+v, want a.json only", results)
	}

	w = env.do(t, http.MethodGet, "/conversations/search?q=kube&limit=zero", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}

func TestSearch_Disabled(t *testing.T) {
	env := newTestEnv(t, Options{}, false)

	w := env.do(t, http.MethodGet, "/conversations/search?q=x", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// =============================================================================
// SETTINGS TESTS
// =============================================================================

func TestModels(t *testing.T) {
	env := newTestEnv(t, Options{}, false)

	models := decode[settings.Models](t, env.do(t, http.MethodGet, "/models", nil))
	if len(models) != len(settings.DefaultModels()) {
		t.Errorf("got %d default models, want %d", len(models), len(settings.DefaultModels()))
	}

	w := env.do(t, http.MethodPost, "/models", settings.Models{"Mine": "vendor/model-a", "Other": "b"})
	if w.Code != http.StatusOK {
		t.Fatalf("set status = %d", w.Code)
	}

	// Identifiers may contain slashes.
	w = env.do(t, http.MethodDelete, "/models/vendor/model-a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	models = decode[settings.Models](t, env.do(t, http.MethodGet, "/models", nil))
	if _, ok := models["Mine"]; ok || len(models) != 1 {
		t.Errorf("models after delete = %v, want only Other", models)
	}
}

func TestAppearance(t *testing.T) {
	env := newTestEnv(t, Options{}, false)

	got := decode[settings.Appearance](t, env.do(t, http.MethodGet, "/appearance", nil))
	if got != settings.DefaultAppearance() {
		t.Errorf("appearance = %+v, want defaults", got)
	}

	want := settings.Appearance{Scale: 1.25, FontSize: 16}
	if w := env.do(t, http.MethodPost, "/appearance", want); w.Code != http.StatusOK {
		t.Fatalf("set status = %d", w.Code)
	}
	if got := decode[settings.Appearance](t, env.do(t, http.MethodGet, "/appearance", nil)); got != want {
		t.Errorf("appearance = %+v, want %+v", got, want)
	}
}

func TestPrompts(t *testing.T) {
	env := newTestEnv(t, Options{}, false)

	w := env.do(t, http.MethodPost, "/prompts", []settings.Prompt{{Name: "Coder", Content: "You write Go."}})
	if w.Code != http.StatusOK {
		t.Fatalf("set status = %d", w.Code)
	}
	prompts := decode[[]settings.Prompt](t, env.do(t, http.MethodGet, "/prompts", nil))
	if len(prompts) != 1 || prompts[0].ID == "" {
		t.Fatalf("prompts = %+v, want one prompt with an id", prompts)
	}

	if w := env.do(t, http.MethodDelete, "/prompts/"+prompts[0].ID, nil); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/prompts/"+prompts[0].ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

// =============================================================================
// DIAGNOSTICS TESTS
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{}, false)
	env.do(t, http.MethodPost, "/conversations/a.json", conversationEnvelope{Content: sampleConversation("hi")})

	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[healthResponse](t, w)
	if got.Status != "ok" || got.Version != Version || got.Conversations != 1 {
		t.Errorf("health = %+v", got)
	}
}

func TestErrors_RecordedAndCleared(t *testing.T) {
	env := newTestEnv(t, Options{}, false)

	req := httptest.NewRequest(http.MethodGet, "/conversations/index", nil)
	env.srv.fail(httptest.NewRecorder(), req, "read index", errors.New("disk on fire"))

	entries := decode[[]errlog.Entry](t, env.do(t, http.MethodGet, "/errors", nil))
	if len(entries) != 1 || !strings.Contains(entries[0].Message, "disk on fire") {
		t.Fatalf("entries = %+v, want the recorded failure", entries)
	}
	if entries[0].Component != "server" || entries[0].Info["operation"] != "read index" {
		t.Errorf("entry = %+v", entries[0])
	}

	if w := env.do(t, http.MethodDelete, "/errors", nil); w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	if env.sink.Len() != 0 {
		t.Errorf("sink has %d entries after clear", env.sink.Len())
	}
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestCORS(t *testing.T) {
	env := newTestEnv(t, Options{}, false)

	req := httptest.NewRequest(http.MethodOptions, "/conversations/index", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "DELETE") {
		t.Error("Allow-Methods should include DELETE")
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"http://app.local", "*.example.com"}

	tests := []struct {
		origin string
		want   string
	}{
		{"http://app.local", "http://app.local"},
		{"https://ui.example.com", "https://ui.example.com"},
		{"http://evil.test", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cfg.allowOrigin(tt.origin); got != tt.want {
			t.Errorf("allowOrigin(%q) = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimit: 0.001, RateBurst: 2}, false)

	for i := 0; i < 2; i++ {
		if w := env.do(t, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	if w := env.do(t, http.MethodGet, "/health", nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if !rl.Allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("second request from the same client should be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other clients have their own bucket")
	}
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, Options{MaxBodyBytes: 64}, false)

	w := env.do(t, http.MethodPost, "/conversations/a.json", conversationEnvelope{Content: sampleConversation(strings.Repeat("x", 200))})
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(log.New(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("order = %v, want a,b,c", order)
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	if got := GetClientIP(req); got != "192.0.2.7" {
		t.Errorf("GetClientIP = %q, want 192.0.2.7", got)
	}
}

func TestServeAndShutdown(t *testing.T) {
	env := newTestEnv(t, Options{}, false)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v after shutdown", err)
	}
}
