// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across grokchat.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: rune-safe truncation with a caller-chosen suffix
//   - CollapseSpace: fold whitespace runs into single spaces
//   - TruncateWidth: display-width truncation for CJK-heavy titles
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateRunes(util.CollapseSpace(prompt), 18, "…")
//	err := util.AtomicWriteFile(path, data, 0600)
package util
