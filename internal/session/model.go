// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

// =============================================================================
// ROLES AND MODES
// =============================================================================

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleError     = "error"
)

// Display-only role variants used by the view layer.
const (
	RoleAssistantStream = "assistant(stream)"
	RoleAssistantImage  = "assistant(image)"
)

// Request modes.
const (
	ModeAuto  = "auto"
	ModeChat  = "chat"
	ModeImage = "image"
	ModeVideo = "video"
)

// DefaultTitle is the title given to new threads.
const DefaultTitle = "新对话"

// LegacyTitle is the title of the thread synthesized from a legacy history.
const LegacyTitle = "历史会话"

// =============================================================================
// MESSAGE AND THREAD
// =============================================================================

// Message is one entry in a thread. TS is Unix milliseconds.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

// Thread is one persisted conversation.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
	AutoNamed bool      `json:"autoNamed"`
	Messages  []Message `json:"messages"`
}

// UserMessageCount returns how many messages in the thread came from the user.
func (t Thread) UserMessageCount() int {
	n := 0
	for _, m := range t.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// FirstUserMessage returns the content of the first user message, or "".
func (t Thread) FirstUserMessage() string {
	for _, m := range t.Messages {
		if m.Role == RoleUser {
			return m.Content
		}
	}
	return ""
}

// clone returns a deep copy so callers never alias store-owned slices.
func (t *Thread) clone() Thread {
	c := *t
	c.Messages = append([]Message(nil), t.Messages...)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return c
}

// =============================================================================
// UI OPTIONS
// =============================================================================

// UiOptions is the user's request configuration snapshot.
type UiOptions struct {
	Model       string `json:"model"`
	Mode        string `json:"mode"`
	Stream      bool   `json:"stream"`
	ImageN      int    `json:"imageN"`
	ImageSize   string `json:"imageSize"`
	VideoRatio  string `json:"videoRatio"`
	VideoLength int    `json:"videoLength"`
}

// DefaultUiOptions returns the options used when nothing is persisted.
func DefaultUiOptions() UiOptions {
	return UiOptions{
		Model:       "",
		Mode:        ModeAuto,
		Stream:      true,
		ImageN:      1,
		ImageSize:   "1:1",
		VideoRatio:  "3:2",
		VideoLength: 6,
	}
}

// ValidMode reports whether mode is one of the request modes.
func ValidMode(mode string) bool {
	switch mode {
	case ModeAuto, ModeChat, ModeImage, ModeVideo:
		return true
	}
	return false
}
