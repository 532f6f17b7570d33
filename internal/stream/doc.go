// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream reassembles streamed chat answers from Server-Sent Events.
//
// The gateway streams chat completions as blank-line separated events whose
// "data:" lines carry OpenAI-style JSON chunks. Bytes arrive in arbitrary
// pieces: an event, a line or even a multi-byte character may be split
// across reads. The Assembler buffers exactly what it needs and reports the
// accumulated answer after every delta.
//
// # Usage
//
//	answer, err := stream.Assemble(resp.Body, func(text string) {
//	    view.Update(text)
//	})
//
// Malformed payloads are skipped rather than failing the stream, and a
// stream that carries no deltas yields EmptyPlaceholder instead of "".
package stream
