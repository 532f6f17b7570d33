// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package request builds gateway request bodies from the thread history and
// the current UI options.
//
// Everything here is pure: no I/O, no clock, no shared state.
package request
