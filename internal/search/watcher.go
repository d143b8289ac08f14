// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/chatkeep/internal/index"
	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// DefaultDebounce is how long a file must be quiet before it is reindexed.
const DefaultDebounce = 250 * time.Millisecond

// tickInterval is how often pending changes are checked.
const tickInterval = 100 * time.Millisecond

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// Watcher reindexes conversation files changed outside the repository, such
// as hand edits or a sync tool. A change to the index document triggers a
// full rebuild.
type Watcher struct {
	idx      *Index
	src      Source
	dir      string
	debounce time.Duration
	logger   *log.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]time.Time // file name -> last change time
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for the conversation directory dir.
func NewWatcher(idx *Index, src Source, dir string, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = idx.logger
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		idx:      idx,
		src:      src,
		dir:      dir,
		debounce: debounce,
		logger:   logger,
		watcher:  fsw,
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching. Events are handled on background goroutines until
// Close is called.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.processPending()
	return nil
}

// Close stops watching and waits for in-flight work to finish.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// processEvents collects file system events into the pending set.
func (w *Watcher) processEvents() {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("search watcher panicked", "panic", r)
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.handleChange(filepath.Base(event.Name))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("search watcher error", "err", err)
		}
	}
}

// handleChange records a change to name unless it is an in-flight temp
// file or not a conversation document.
func (w *Watcher) handleChange(name string) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, model.FileExt) {
		return
	}

	w.mu.Lock()
	w.pending[name] = time.Now()
	w.mu.Unlock()
}

// processPending applies changes that have been quiet for the debounce
// period.
func (w *Watcher) processPending() {
	defer w.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()

			w.mu.Lock()
			var toProcess []string
			for name, changed := range w.pending {
				if now.Sub(changed) >= w.debounce {
					toProcess = append(toProcess, name)
					delete(w.pending, name)
				}
			}
			w.mu.Unlock()

			for _, name := range toProcess {
				if err := w.apply(name); err != nil && !errors.Is(err, context.Canceled) {
					w.logger.Warn("failed to reindex conversation", "filename", name, "err", err)
				}
			}
		}
	}
}

// apply brings the index entry for name in line with the repository.
func (w *Watcher) apply(name string) error {
	if name == index.FileName {
		n, err := w.idx.Rebuild(w.ctx, w.src)
		if err == nil {
			w.logger.Debug("search index rebuilt", "conversations", n)
		}
		return err
	}

	names, err := w.src.ListFilenames(w.ctx)
	if err != nil {
		return err
	}
	// Files the index does not list count as deleted.
	if !slices.Contains(names, name) {
		return w.idx.Remove(w.ctx, name)
	}

	conv, err := w.src.Get(w.ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return w.idx.Remove(w.ctx, name)
		}
		return err
	}
	return w.idx.Put(w.ctx, name, conv)
}
