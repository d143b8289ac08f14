// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatcache

import (
	"context"
	"errors"
	"slices"

	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// ErrClosed is returned by Flush and recorded for persists requested after
// Close.
var ErrClosed = errors.New("cache is closed")

// =============================================================================
// PERSIST QUEUE
// =============================================================================

// persistJob stores one snapshot. A job with done set is a flush marker.
type persistJob struct {
	id       string
	filename string
	conv     *model.Conversation
	done     chan struct{}
}

// enqueueLocked appends a job and wakes the worker.
// Must be called with c.mu held.
func (c *Cache) enqueueLocked(job persistJob) bool {
	if c.closed {
		return false
	}
	c.queue = append(c.queue, job)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// persistLocked queues a snapshot of conv under its current filename.
// Must be called with c.mu held.
func (c *Cache) persistLocked(conv *model.Conversation) {
	snapshot := conv.Clone()
	filename := c.namer.Name(snapshot)
	if !c.enqueueLocked(persistJob{id: conv.ID, filename: filename, conv: snapshot}) {
		c.report(ErrClosed, "persist", filename)
	}
}

// requeueLocked puts a snapshot of conv, saved under filename, at the head of
// the queue. It runs before any flush marker already waiting, so Flush
// callers see it stored. Only the worker calls it, so a closed cache still
// drains it.
// Must be called with c.mu held.
func (c *Cache) requeueLocked(conv *model.Conversation, filename string) {
	c.queue = slices.Insert(c.queue, 0, persistJob{id: conv.ID, filename: filename, conv: conv.Clone()})
}

// Flush blocks until every persist queued before the call has finished.
func (c *Cache) Flush(ctx context.Context) error {
	done := make(chan struct{})

	c.mu.Lock()
	ok := c.enqueueLocked(persistJob{done: done})
	c.mu.Unlock()
	if !ok {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the worker. Further mutations still update
// memory but are no longer persisted.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	select {
	case c.wake <- struct{}{}:
	default:
	}
	c.mu.Unlock()

	<-c.stopped
	return nil
}

// =============================================================================
// WORKER
// =============================================================================

// run processes jobs one at a time in enqueue order, so writes of the same
// conversation land in the order they were made.
func (c *Cache) run() {
	defer close(c.stopped)

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			<-c.wake
			continue
		}
		job := c.queue[0]
		c.queue[0] = persistJob{}
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if job.done != nil {
			close(job.done)
			continue
		}
		c.store(job)
	}
}

// store saves one snapshot and removes the file the conversation was stored
// under before, if its name changed.
//
// Timestamp names collide when two conversations are saved in the same
// second. A previous file that another cached conversation is still mapped
// to is not removed; that conversation is queued for saving again so the
// file holds its content rather than the stale snapshot of the one that
// moved away.
func (c *Cache) store(job persistJob) {
	ctx := context.Background()

	if err := c.backend.Save(ctx, job.filename, job.conv); err != nil {
		c.report(err, "save", job.filename)
		return
	}

	c.mu.Lock()
	previous := c.filenames[job.id]
	c.filenames[job.id] = job.filename
	shared := false
	if previous != "" && previous != job.filename {
		for id, name := range c.filenames {
			if id == job.id || name != previous {
				continue
			}
			shared = true
			if i := c.indexLocked(id); i >= 0 {
				c.requeueLocked(c.convs[i], previous)
			}
		}
	}
	c.mu.Unlock()

	c.logger.Debug("conversation saved", "id", job.id, "file", job.filename)

	if previous == "" || previous == job.filename {
		return
	}
	if shared {
		c.logger.Debug("previous file is shared, keeping it", "id", job.id, "file", previous)
		return
	}
	c.removePrevious(ctx, job.id, previous)
}

// removePrevious deletes filename if it still holds conversation id. A file
// taken over by a conversation the cache does not hold is left alone.
func (c *Cache) removePrevious(ctx context.Context, id, filename string) {
	stored, err := c.backend.Get(ctx, filename)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return
	case err != nil:
		c.report(err, "check previous file", filename)
		return
	case stored.ID != id:
		c.logger.Debug("previous file now holds another conversation", "file", filename, "owner", stored.ID)
		return
	}

	if err := c.backend.Delete(ctx, filename); err != nil {
		c.report(err, "remove previous file", filename)
	}
}
