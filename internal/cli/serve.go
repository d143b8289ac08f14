// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - The serve command: run the HTTP storage service.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatkeep/internal/config"
	"github.com/jeranaias/chatkeep/internal/search"
	"github.com/jeranaias/chatkeep/internal/server"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// shutdownTimeout bounds how long in-flight requests may take on exit.
const shutdownTimeout = 10 * time.Second

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP storage service",
		Long: `Serve conversations, settings, and search over HTTP on the loopback
interface. The service stops cleanly on SIGINT or SIGTERM.`,
		Example: `  chatkeep serve
  chatkeep serve --port 3001 --data-dir ~/chats`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}

	f := cmd.Flags()
	f.String("host", "", "address to listen on")
	f.Int("port", 0, "port to listen on")
	f.Bool("no-search", false, "disable the full-text search index")
	a.bind(f, config.KeyServerHost, "host")
	a.bind(f, config.KeyServerPort, "port")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if noSearch, _ := cmd.Flags().GetBool("no-search"); noSearch {
		a.cfg.Search.Enabled = false
	}

	st, err := a.openStores()
	if err != nil {
		return err
	}
	if err := st.settings.Ensure(); err != nil {
		return fmt.Errorf("failed to write default settings: %w", err)
	}

	var idx *search.Index
	if a.cfg.Search.Enabled {
		idx, err = a.openSearch(ctx, st.repo)
		if err != nil {
			return err
		}
		defer idx.Close()
		st.repo.AddObserver(idx)

		if a.cfg.Search.Watch {
			w, err := search.NewWatcher(idx, st.repo, st.repo.Dir(), a.cfg.Debounce(), a.logger)
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			if err := w.Start(); err != nil {
				w.Close()
				return fmt.Errorf("failed to watch %s: %w", st.repo.Dir(), err)
			}
			defer w.Close()
		}
	}

	srv := server.New(st.repo, st.settings, idx, st.errors, a.logger, server.Options{
		Host:         a.cfg.Server.Host,
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		RateLimit:    a.cfg.Server.RateLimit,
		RateBurst:    a.cfg.Server.RateBurst,
		MaxBodyBytes: a.cfg.Server.MaxBodyBytes,
	})

	a.logger.Info("starting chatkeep",
		"version", Version,
		"addr", srv.Addr(),
		"data_dir", a.cfg.DataDir,
		"search", idx != nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openSearch opens the search database and refreshes it from repo.
func (a *app) openSearch(ctx context.Context, repo *storage.Repository) (*search.Index, error) {
	idx, err := search.Open(a.cfg.SearchDBPath(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	start := time.Now()
	n, err := idx.Rebuild(ctx, repo)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("failed to rebuild search index: %w", err)
	}
	a.logger.Debug("search index rebuilt", "conversations", n, "duration", time.Since(start))
	return idx, nil
}
