// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"log/slog"
)

// =============================================================================
// RESULT
// =============================================================================

// Result reports the outcome of a best-effort write.
type Result struct {
	Op  string
	Key string
	Err error
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool { return r.Err == nil }

// =============================================================================
// SAFE WRAPPER
// =============================================================================

// Safe wraps a KV so that no storage failure escapes to the caller.
// Reads degrade to "no data" and writes return a Result.
type Safe struct {
	kv     KV
	logger *slog.Logger
}

// NewSafe wraps kv. A nil logger discards failure logs.
func NewSafe(kv KV, logger *slog.Logger) *Safe {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Safe{kv: kv, logger: logger}
}

// Get returns the value for key, or nil when it is missing or unreadable.
func (s *Safe) Get(key string) []byte {
	if s == nil || s.kv == nil {
		return nil
	}
	data, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Debug("storage read skipped", "key", key, "error", err)
		}
		return nil
	}
	return data
}

// Set writes value for key and reports the outcome.
func (s *Safe) Set(key string, value []byte) Result {
	return s.do("set", key, func(kv KV) error { return kv.Set(key, value) })
}

// Remove deletes key and reports the outcome.
func (s *Safe) Remove(key string) Result {
	return s.do("remove", key, func(kv KV) error { return kv.Remove(key) })
}

func (s *Safe) do(op, key string, fn func(KV) error) (res Result) {
	res = Result{Op: op, Key: key}
	if s == nil || s.kv == nil {
		res.Err = errors.New("storage unavailable")
		return res
	}
	defer func() {
		// A misbehaving backend must not take the session down with it
		if r := recover(); r != nil {
			res.Err = errors.New("storage backend panicked")
			s.logger.Debug("storage write skipped", "op", op, "key", key, "panic", r)
		}
	}()
	if err := fn(s.kv); err != nil {
		res.Err = err
		s.logger.Debug("storage write skipped", "op", op, "key", key, "error", err)
	}
	return res
}
