// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatcache keeps an ordered in-memory view of recent conversations
// in step with a conversation backend.
package chatcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/chatkeep/internal/errlog"
	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultWindow is how many conversations, counted from the start of
	// the index, Load fetches.
	DefaultWindow = 10

	// DefaultFetchConcurrency bounds parallel fetches during Load.
	DefaultFetchConcurrency = 4
)

var (
	// ErrUnknownConversation is returned for IDs the cache does not hold.
	ErrUnknownConversation = errors.New("unknown conversation")

	// ErrNoFailedDelete is returned by RetryDelete when the conversation has
	// no failed delete pending.
	ErrNoFailedDelete = errors.New("no failed delete for conversation")
)

// =============================================================================
// BACKEND
// =============================================================================

// Backend is where conversations are stored. storage.Repository and
// client.Client both satisfy it.
type Backend interface {
	ListFilenames(ctx context.Context) ([]string, error)
	Get(ctx context.Context, filename string) (*model.Conversation, error)
	Save(ctx context.Context, filename string, conv *model.Conversation) error
	Delete(ctx context.Context, filename string) error
	ClearAll(ctx context.Context) error
}

// =============================================================================
// CACHE
// =============================================================================

// Options configures a Cache. Zero values use defaults.
type Options struct {
	Window           int
	FetchConcurrency int
	Namer            model.Namer
	Logger           *log.Logger
	Errors           *errlog.Sink
	Now              func() time.Time
}

// FailedDelete is a conversation removed from the cache whose backend delete
// failed. The file may still exist.
type FailedDelete struct {
	Conversation *model.Conversation
	Filename     string
	Err          error
	At           time.Time
}

// Cache holds conversations ordered by LastResponseTime, newest first.
//
// Mutations change memory first and persist in the background. Persist
// failures are logged and recorded, never rolled back.
type Cache struct {
	backend          Backend
	namer            model.Namer
	logger           *log.Logger
	errors           *errlog.Sink
	now              func() time.Time
	window           int
	fetchConcurrency int

	mu        sync.Mutex
	convs     []*model.Conversation
	current   string
	filenames map[string]string // id -> last stored filename
	failed    map[string]FailedDelete

	queue   []persistJob
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// New creates an empty cache over backend and starts its persist worker.
// Call Load to fill it and Close to stop the worker.
func New(backend Backend, opts Options) *Cache {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = DefaultFetchConcurrency
	}
	if opts.Namer == nil {
		opts.Namer = model.TimestampNamer{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Errors == nil {
		opts.Errors = errlog.New(errlog.DefaultCapacity)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache{
		backend:          backend,
		namer:            opts.Namer,
		logger:           opts.Logger.WithPrefix("cache"),
		errors:           opts.Errors,
		now:              opts.Now,
		window:           opts.Window,
		fetchConcurrency: opts.FetchConcurrency,
		filenames:        make(map[string]string),
		failed:           make(map[string]FailedDelete),
		wake:             make(chan struct{}, 1),
		stopped:          make(chan struct{}),
	}
	go c.run()
	return c
}

// report logs err and records it in the error sink.
func (c *Cache) report(err error, op, filename string) {
	c.logger.Error(op+" failed", "file", filename, "err", err)
	if recErr := c.errors.Record(err, "cache", map[string]string{
		"operation": op,
		"filename":  filename,
	}); recErr != nil {
		c.logger.Warn("failed to record error", "err", recErr)
	}
}

// =============================================================================
// LOADING
// =============================================================================

type fetched struct {
	filename string
	conv     *model.Conversation
}

// Load replaces the cache with the first window of indexed conversations,
// in index order, then sorts them newest first. Files that cannot be read are skipped. The error is
// non-nil only when the index itself cannot be read, in which case the
// cache is left empty.
func (c *Cache) Load(ctx context.Context) error {
	if err := c.Flush(ctx); err != nil {
		return err
	}

	names, err := c.backend.ListFilenames(ctx)
	if err != nil {
		c.report(err, "list conversations", "")
		c.replace(nil)
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(names) > c.window {
		names = names[:c.window]
	}

	results := make([]*fetched, len(names))
	var g errgroup.Group
	g.SetLimit(c.fetchConcurrency)
	for i, name := range names {
		g.Go(func() error {
			conv, err := c.backend.Get(ctx, name)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					c.logger.Warn("indexed conversation missing", "file", name)
				} else {
					c.report(err, "load", name)
				}
				return nil
			}
			results[i] = &fetched{filename: name, conv: conv}
			return nil
		})
	}
	g.Wait()

	loaded := make([]*fetched, 0, len(results))
	for _, r := range results {
		if r != nil {
			loaded = append(loaded, r)
		}
	}
	c.replace(loaded)

	c.logger.Debug("cache loaded", "indexed", len(names), "loaded", len(loaded))
	return nil
}

// replace swaps in loaded conversations. A conversation stored under more
// than one file keeps the most recent copy.
func (c *Cache) replace(loaded []*fetched) {
	sort.SliceStable(loaded, func(i, j int) bool {
		return model.NewerFirst(loaded[i].conv, loaded[j].conv) < 0
	})

	convs := make([]*model.Conversation, 0, len(loaded))
	filenames := make(map[string]string, len(loaded))
	for _, f := range loaded {
		if _, dup := filenames[f.conv.ID]; dup {
			continue
		}
		filenames[f.conv.ID] = f.filename
		convs = append(convs, f.conv)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.convs = convs
	c.filenames = filenames
	if c.indexLocked(c.current) < 0 {
		c.current = ""
		if len(convs) > 0 {
			c.current = convs[0].ID
		}
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// indexLocked returns the position of id, or -1.
// Must be called with c.mu held.
func (c *Cache) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(c.convs, func(conv *model.Conversation) bool {
		return conv.ID == id
	})
}

// Conversations returns copies of the cached conversations, newest first.
func (c *Cache) Conversations() []*model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*model.Conversation, len(c.convs))
	for i, conv := range c.convs {
		out[i] = conv.Clone()
	}
	return out
}

// Len returns the number of cached conversations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.convs)
}

// Get returns a copy of the conversation with the given ID.
func (c *Cache) Get(id string) (*model.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	return c.convs[i].Clone(), true
}

// Current returns a copy of the current conversation.
func (c *Cache) Current() (*model.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(c.current)
	if i < 0 {
		return nil, false
	}
	return c.convs[i].Clone(), true
}

// SetCurrent makes id the current conversation.
func (c *Cache) SetCurrent(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexLocked(id) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, id)
	}
	c.current = id
	return nil
}

// Filename returns the name the conversation was last stored under.
func (c *Cache) Filename(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.filenames[id]
	return name, ok
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create starts a conversation seeded with system, puts it first, makes it
// current and queues it for saving. It returns a copy.
func (c *Cache) Create(system model.Message, modelName string) *model.Conversation {
	conv := model.NewConversation(system, modelName, c.now())

	c.mu.Lock()
	defer c.mu.Unlock()

	c.convs = slices.Insert(c.convs, 0, conv)
	c.current = conv.ID
	c.persistLocked(conv)
	return conv.Clone()
}

// Append adds msg to the conversation with the given ID, re-sorts the cache
// and queues the conversation for saving. Unknown IDs are ignored; the
// result reports whether the conversation was found.
func (c *Cache) Append(id string, msg model.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return false
	}
	conv := c.convs[i]
	conv.Append(msg, c.now())
	slices.SortStableFunc(c.convs, model.NewerFirst)
	c.persistLocked(conv)
	return true
}

// Delete removes the conversation from the cache and then from the backend.
//
// The removal from memory is not undone when the backend fails. The
// conversation is kept in FailedDeletes so the delete can be retried.
func (c *Cache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConversation, id)
	}
	conv := c.convs[i]
	c.convs = slices.Delete(c.convs, i, i+1)
	if c.current == id {
		c.current = ""
		if len(c.convs) > 0 {
			c.current = c.convs[0].ID
		}
	}
	c.mu.Unlock()

	// Pending saves of this conversation must land before the file is removed.
	if err := c.Flush(ctx); err != nil {
		filename := c.filenameFor(conv)
		c.markFailed(conv, filename, err)
		return err
	}

	filename := c.filenameFor(conv)
	if err := c.backend.Delete(ctx, filename); err != nil {
		c.markFailed(conv, filename, err)
		c.report(err, "delete", filename)
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}

	c.mu.Lock()
	delete(c.filenames, id)
	delete(c.failed, id)
	c.mu.Unlock()
	return nil
}

// filenameFor returns the stored filename of conv, or the name it would be
// stored under if it never was.
func (c *Cache) filenameFor(conv *model.Conversation) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.filenames[conv.ID]; ok {
		return name
	}
	return c.namer.Name(conv)
}

func (c *Cache) markFailed(conv *model.Conversation, filename string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[conv.ID] = FailedDelete{
		Conversation: conv.Clone(),
		Filename:     filename,
		Err:          err,
		At:           c.now(),
	}
}

// FailedDeletes returns conversations whose backend delete failed, oldest
// failure first.
func (c *Cache) FailedDeletes() []FailedDelete {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]FailedDelete, 0, len(c.failed))
	for _, f := range c.failed {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].Filename < out[j].Filename
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// RetryDelete repeats a failed backend delete.
func (c *Cache) RetryDelete(ctx context.Context, id string) error {
	c.mu.Lock()
	f, ok := c.failed[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoFailedDelete, id)
	}

	if err := c.backend.Delete(ctx, f.Filename); err != nil {
		c.markFailed(f.Conversation, f.Filename, err)
		c.report(err, "retry delete", f.Filename)
		return fmt.Errorf("failed to delete %s: %w", f.Filename, err)
	}

	c.mu.Lock()
	delete(c.failed, id)
	delete(c.filenames, id)
	c.mu.Unlock()
	return nil
}

// ClearAll clears the backend and then the cache. When the backend fails the
// cache is left untouched.
func (c *Cache) ClearAll(ctx context.Context) error {
	if err := c.Flush(ctx); err != nil {
		return err
	}
	if err := c.backend.ClearAll(ctx); err != nil {
		c.report(err, "clear all", "")
		return fmt.Errorf("failed to clear conversations: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.convs = nil
	c.current = ""
	c.filenames = make(map[string]string)
	c.failed = make(map[string]FailedDelete)
	return nil
}
