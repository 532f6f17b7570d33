// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify defines the optional user-notification capability.
//
// Core components never depend on a notification being shown. They hold a
// Notifier that may be nil and call it through Send.
package notify

// =============================================================================
// KINDS
// =============================================================================

// Kind is the severity of a notification.
type Kind int

const (
	// KindStatus is informational (cyan)
	KindStatus Kind = iota
	// KindError is a failure (rose)
	KindError
	// KindWarning is a recoverable problem (amber)
	KindWarning
	// KindSuccess confirms a completed action (emerald)
	KindSuccess
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	case KindSuccess:
		return "success"
	default:
		return "info"
	}
}

// =============================================================================
// NOTIFIER
// =============================================================================

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(message string, kind Kind)
}

// Func adapts a function to Notifier.
type Func func(message string, kind Kind)

// Notify calls f.
func (f Func) Notify(message string, kind Kind) { f(message, kind) }

// Send delivers message to n when n is set. A panicking notifier is
// contained so presentation bugs never abort the caller.
func Send(n Notifier, message string, kind Kind) {
	if n == nil {
		return
	}
	if f, ok := n.(Func); ok && f == nil {
		return
	}
	defer func() { _ = recover() }()
	n.Notify(message, kind)
}

// =============================================================================
// RECORDER
// =============================================================================

// Entry is one recorded notification.
type Entry struct {
	Message string
	Kind    Kind
}

// Recorder collects notifications in memory, for tests and headless runs.
type Recorder struct {
	Entries []Entry
}

// Notify records the notification.
func (r *Recorder) Notify(message string, kind Kind) {
	r.Entries = append(r.Entries, Entry{Message: message, Kind: kind})
}

// Messages returns the recorded messages in order.
func (r *Recorder) Messages() []string {
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Message
	}
	return out
}
