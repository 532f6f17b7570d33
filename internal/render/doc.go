// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render draws conversations on the terminal: Markdown answers,
// highlighted code, the thread list, streaming progress and coloured
// notifications.
//
// Colour is decided once per process. NO_COLOR disables it, FORCE_COLOR
// enables it, and otherwise it follows whether stdout is a terminal.
package render
