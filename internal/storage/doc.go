// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local key-value byte store grokchat keeps its
// threads in.
//
// Local persistence is best-effort. Backends return ordinary errors, and the
// Safe wrapper turns them into "no data" on read and a Result on write so a
// full disk or a corrupt database never interrupts a conversation.
//
// # Key Types
//
//   - KV: the backend interface (Get, Set, Remove, Close)
//   - FileStore: one JSON file per key under a directory
//   - SQLiteStore: a single kv table in an SQLite database
//   - MemoryStore: in-process map, used by tests and --ephemeral
//   - Safe: failure-swallowing wrapper used by the session layer
//
// # Usage
//
//	kv, err := storage.Open(storage.BackendFile, dataDir)
//	safe := storage.NewSafe(kv, logger)
//	raw := safe.Get("grok2api_webui_threads_v1")
//	res := safe.Set("grok2api_webui_threads_v1", data)
//
// # Storage Location
//
// By default data lives in ~/.grokchat/data/.
package storage
