// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/grokchat/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps each key in its own <key>.json file under BaseDir.
type FileStore struct {
	// BaseDir is the directory holding the key files.
	// Default: ~/.grokchat/data/
	BaseDir string
}

// NewFileStore creates a file store, creating dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store requires a directory")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{BaseDir: dir}, nil
}

// Get reads the file for key.
func (s *FileStore) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set writes value for key atomically.
func (s *FileStore) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	// RELIABILITY: Atomic write with fsync prevents a torn state file on crash
	return util.AtomicWriteFile(s.filePath(key), value, 0600)
}

// Remove deletes the file for key.
func (s *FileStore) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.filePath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Keys lists the keys currently stored.
func (s *FileStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return keys, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) filePath(key string) string {
	return filepath.Join(s.BaseDir, key+".json")
}
