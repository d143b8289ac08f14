// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errlog keeps a bounded, newest-first record of operational errors.
//
// A Sink is an ordinary value with an injected capacity; there is no
// process-wide instance. The server records failed requests into one and the
// client cache records failed background writes into another.
//
// # Usage
//
//	sink := errlog.New(errlog.DefaultCapacity)
//	sink.Record(err, "cache", map[string]string{"filename": name})
//	for _, e := range sink.Entries() {
//	    fmt.Println(e.Timestamp, e.Message)
//	}
package errlog
