// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// STREAMING: event framing is handled on decoded text, UTF-8 decoding is
// handled on bytes. Both carry partial input forward between reads.

// =============================================================================
// CONSTANTS
// =============================================================================

// EmptyPlaceholder is returned when a stream ends without any delta.
const EmptyPlaceholder = "[empty stream]"

// DoneMarker terminates the data section of a stream.
const DoneMarker = "[DONE]"

// ReadChunkSize is the read buffer used by Assemble.
const ReadChunkSize = 4 * 1024

const (
	eventSeparator = "\n\n"
	dataPrefix     = "data:"
)

// =============================================================================
// TYPES
// =============================================================================

// chunk is the subset of a streamed completion chunk we read.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Error reports a read failure, preserving the answer assembled before it.
type Error struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler accumulates deltas from SSE bytes written to it.
// It is not safe for concurrent use.
type Assembler struct {
	onProgress func(string)

	pending []byte // incomplete trailing UTF-8 sequence
	buffer  string // decoded text not yet split into events
	answer  strings.Builder

	deltas  int
	skipped int
}

// NewAssembler creates an Assembler. onProgress may be nil.
func NewAssembler(onProgress func(string)) *Assembler {
	return &Assembler{onProgress: onProgress}
}

// Write feeds raw stream bytes. It never fails.
func (a *Assembler) Write(p []byte) (int, error) {
	data := p
	if len(a.pending) > 0 {
		data = append(a.pending, p...)
		a.pending = nil
	}

	complete, rest := splitIncompleteRune(data)
	if len(rest) > 0 {
		a.pending = append([]byte(nil), rest...)
	}

	a.buffer += string(complete)
	a.buffer = strings.ReplaceAll(a.buffer, "\r\n", "\n")

	events := strings.Split(a.buffer, eventSeparator)
	a.buffer = events[len(events)-1]
	for _, event := range events[:len(events)-1] {
		a.processEvent(event)
	}
	return len(p), nil
}

// Finish processes any trailing event and returns the assembled answer, or
// EmptyPlaceholder when no delta arrived.
func (a *Assembler) Finish() string {
	if len(a.pending) > 0 {
		a.buffer += string(a.pending)
		a.pending = nil
	}
	if strings.TrimSpace(a.buffer) != "" {
		a.processEvent(a.buffer)
	}
	a.buffer = ""

	if a.answer.Len() == 0 {
		return EmptyPlaceholder
	}
	return a.answer.String()
}

// Text returns the answer accumulated so far.
func (a *Assembler) Text() string {
	return a.answer.String()
}

// Deltas returns how many non-empty deltas were applied.
func (a *Assembler) Deltas() int {
	return a.deltas
}

// Skipped returns how many data payloads were dropped as malformed.
func (a *Assembler) Skipped() int {
	return a.skipped
}

func (a *Assembler) processEvent(event string) {
	for _, line := range strings.Split(event, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == "" || payload == DoneMarker {
			continue
		}

		var c chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			a.skipped++
			continue
		}
		if len(c.Choices) == 0 || c.Choices[0].Delta.Content == "" {
			continue
		}

		a.answer.WriteString(c.Choices[0].Delta.Content)
		a.deltas++
		if a.onProgress != nil {
			a.onProgress(a.answer.String())
		}
	}
}

// splitIncompleteRune separates a trailing partial UTF-8 sequence from b.
// Invalid bytes are left in place; only a valid-but-truncated prefix of a
// multi-byte rune is held back.
func splitIncompleteRune(b []byte) (complete, rest []byte) {
	start := len(b) - utf8.UTFMax + 1
	if start < 0 {
		start = 0
	}
	for i := len(b) - 1; i >= start; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i], b[i:]
		}
		break
	}
	return b, nil
}

// =============================================================================
// ASSEMBLE
// =============================================================================

// Assemble reads r to completion and returns the assembled answer.
// onProgress receives the full accumulated text after each delta.
func Assemble(r io.Reader, onProgress func(string)) (string, error) {
	text, _, err := AssembleWithStats(r, onProgress)
	return text, err
}

// Stats summarizes one assembled stream.
type Stats struct {
	Deltas  int
	Skipped int
}

// AssembleWithStats is Assemble that also reports delta and skip counts.
func AssembleWithStats(r io.Reader, onProgress func(string)) (string, Stats, error) {
	a := NewAssembler(onProgress)
	buf := make([]byte, ReadChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			a.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stats := Stats{Deltas: a.Deltas(), Skipped: a.Skipped()}
			return a.Text(), stats, &Error{Partial: a.Text(), Err: err}
		}
	}
	text := a.Finish()
	return text, Stats{Deltas: a.Deltas(), Skipped: a.Skipped()}, nil
}
