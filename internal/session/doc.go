// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns grokchat's conversation threads.
//
// A Store holds every Thread and its Messages, the active thread id and the
// user's UiOptions. It is the only owner of that state: callers get copies
// and mutate through Store methods, each of which keeps the thread list
// sorted by UpdatedAt (most recent first).
//
// # Key Types
//
//   - Store: the in-memory model plus persistence
//   - Thread, Message: the conversation data model
//   - UiOptions: model, mode and generation options
//
// # Usage
//
//	store := session.New(kv, session.WithLogger(logger))
//	store.Load()
//	t := store.EnsureActiveThread()
//	store.AppendMessage(t.ID, session.RoleUser, "hello")
//	store.Persist()
//
// # Persistence
//
// State is written as one JSON document under StateKey after every mutation.
// Documents written by the old flat-history format (LegacyStateKey) are
// migrated into a single "历史会话" thread on first load. Storage failures
// are logged and never returned to the caller.
package session
