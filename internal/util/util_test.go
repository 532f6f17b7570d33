// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threads.json")
	data := []byte(`{"threads":[]}`)

	if err := AtomicWriteFile(path, data, 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv", "deep", "state.json")

	if err := AtomicWriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := AtomicWriteFile(path, []byte("initial"), 0600); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0600); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "updated" {
		t.Errorf("Content not updated: got %q", string(content))
	}
}

func TestAtomicWriteFile_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	for i := 0; i < 5; i++ {
		if err := AtomicWriteFile(path, []byte(strings.Repeat("a", i)), 0600); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, got %d entries", len(entries))
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		maxRunes int
		expected string
	}{
		{"short", "hello", 5, "hello"},
		{"ascii cut", "hello world", 5, "hello…"},
		{"zero", "hello", 0, ""},
		{"empty", "", 5, ""},
		{"chinese", "你好世界你好世界", 4, "你好世界…"},
		{"exact chinese", "你好世界", 4, "你好世界"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := TruncateRunes(tc.input, tc.maxRunes, "…")
			if result != tc.expected {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q",
					tc.input, tc.maxRunes, result, tc.expected)
			}
		})
	}
}

func TestCollapseSpace(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"  hello   world  ", "hello world"},
		{"a\n\tb", "a b"},
		{"", ""},
		{"   ", ""},
		{"单词  之间", "单词 之间"},
	}

	for _, tc := range testCases {
		if got := CollapseSpace(tc.input); got != tc.expected {
			t.Errorf("CollapseSpace(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	if got := TruncateWidth("hello", 10); got != "hello" {
		t.Errorf("TruncateWidth should not touch short strings, got %q", got)
	}
	if got := TruncateWidth("hello", 0); got != "" {
		t.Errorf("TruncateWidth(0) = %q, want empty", got)
	}

	// Each CJK rune is two cells wide
	got := TruncateWidth("你好世界你好", 7)
	if w := StringCells(got); w > 7 {
		t.Errorf("TruncateWidth result %q is %d cells, want <= 7", got, w)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("TruncateWidth result %q should end with ellipsis", got)
	}
}

func TestPadWidth(t *testing.T) {
	got := PadWidth("你好", 6)
	if w := StringCells(got); w != 6 {
		t.Errorf("PadWidth width = %d, want 6 (%q)", w, got)
	}
}

func TestRuneLen(t *testing.T) {
	if RuneLen("你好") != 2 {
		t.Errorf("RuneLen(你好) = %d, want 2", RuneLen("你好"))
	}
	if RuneLen("") != 0 {
		t.Error("RuneLen of empty string should be 0")
	}
}
