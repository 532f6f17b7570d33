// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/grokchat/internal/notify"
)

// Toaster prints notifications as single coloured lines. It is safe for
// concurrent use since background naming may notify while a send runs.
type Toaster struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewToaster writes notifications to out (usually stderr).
func NewToaster(out io.Writer, color bool) *Toaster {
	return &Toaster{out: out, color: color}
}

// Notify implements notify.Notifier.
func (t *Toaster) Notify(message string, kind notify.Kind) {
	prefix := "[" + kind.String() + "]"
	if t.color {
		prefix = toastStyle(kind).Render(prefix)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s %s\n", prefix, message)
}

func toastStyle(kind notify.Kind) lipgloss.Style {
	switch kind {
	case notify.KindError:
		return ErrorStyle
	case notify.KindWarning:
		return WarningStyle
	case notify.KindSuccess:
		return SuccessStyle
	default:
		return lipgloss.NewStyle().Foreground(Cyan)
	}
}
