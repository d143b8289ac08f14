// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the local HTTP API used by the desktop chat UI.
//
// The server is a thin layer over storage.Repository, settings.Store and
// search.Index. Every response is JSON. Mutations answer {"success": true}
// and failures answer {"error": "..."} with a matching status code.
//
// # Endpoints
//
//   - GET    /conversations/index       - Filenames in index order
//   - GET    /conversations/search      - Full-text search (?q=&limit=)
//   - GET    /conversations/{filename}  - {"content": conversation}
//   - POST   /conversations/{filename}  - Save {"content": conversation}
//   - PUT    /conversations/{filename}  - Same as POST
//   - DELETE /conversations/{filename}  - Delete one conversation
//   - DELETE /conversations             - Delete all conversations
//   - GET    /models, POST /models, DELETE /models/{modelId}
//   - GET    /appearance, POST /appearance
//   - GET    /prompts, POST /prompts, DELETE /prompts/{id}
//   - GET    /health                    - Status, version, conversation count
//   - GET    /errors, DELETE /errors    - Recorded server-side failures
//
// # Middleware
//
//   - Panic recovery
//   - Request logging
//   - CORS (any origin by default)
//   - Per-client rate limiting
//   - Request body size limit
//
// # Key Types
//
//   - Server: HTTP server with router and middleware
//   - Options: listen address, CORS origins, limits
//   - RateLimiter: token bucket per client IP
//
// # Usage
//
//	srv := server.New(repo, settingsStore, searchIndex, sink, logger, server.Options{Port: 3000})
//	go func() {
//	    if err := srv.Start(); err != nil {
//	        logger.Fatal("server failed", "err", err)
//	    }
//	}()
//	defer srv.Shutdown(ctx)
package server
