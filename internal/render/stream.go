// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"io"
	"strings"
	"sync"
)

// StreamView prints a streamed answer as it grows. Each progress value is
// the full accumulated text, so only the unseen suffix is written.
type StreamView struct {
	mu      sync.Mutex
	out     io.Writer
	printed string
}

// NewStreamView writes progress to out.
func NewStreamView(out io.Writer) *StreamView {
	return &StreamView{out: out}
}

// Progress implements chat.View.
func (v *StreamView) Progress(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if strings.HasPrefix(text, v.printed) {
		io.WriteString(v.out, text[len(v.printed):])
	} else {
		// A retried attempt restarts the answer
		io.WriteString(v.out, "\n"+text)
	}
	v.printed = text
}

// Started reports whether anything was printed.
func (v *StreamView) Started() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.printed != ""
}

// Finish ends the in-progress line and resets the view.
func (v *StreamView) Finish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.printed != "" && !strings.HasSuffix(v.printed, "\n") {
		io.WriteString(v.out, "\n")
	}
	v.printed = ""
}
