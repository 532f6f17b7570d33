// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package request

import (
	"fmt"
	"strings"

	"github.com/jeranaias/grokchat/internal/session"
)

// Fixed request parameters.
const (
	VideoResolution  = "480p"
	VideoPreset      = "custom"
	ImageFormatURL   = "url"
	DefaultImageSize = "1:1"
)

// =============================================================================
// PAYLOADS
// =============================================================================

// ChatMessage is one entry of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// VideoConfig carries the video generation parameters.
type VideoConfig struct {
	AspectRatio    string `json:"aspect_ratio"`
	VideoLength    int    `json:"video_length"`
	ResolutionName string `json:"resolution_name"`
	Preset         string `json:"preset"`
}

// ChatPayload is the body of POST /v1/chat/completions.
type ChatPayload struct {
	Model       string        `json:"model"`
	Stream      bool          `json:"stream"`
	Messages    []ChatMessage `json:"messages"`
	VideoConfig *VideoConfig  `json:"video_config,omitempty"`
}

// ImagePayload is the body of POST /v1/images/generations.
type ImagePayload struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
	Stream         bool   `json:"stream"`
}

// =============================================================================
// BUILDERS
// =============================================================================

// BuildChatPayload appends prompt as a user message to prior and adds the
// video parameters when the resolved mode is video.
func BuildChatPayload(model string, stream bool, prompt string, prior []ChatMessage, opts session.UiOptions) ChatPayload {
	messages := make([]ChatMessage, 0, len(prior)+1)
	messages = append(messages, prior...)
	messages = append(messages, ChatMessage{Role: session.RoleUser, Content: prompt})

	payload := ChatPayload{
		Model:    model,
		Stream:   stream,
		Messages: messages,
	}
	if ResolveMode(opts.Mode, model) == session.ModeVideo {
		payload.VideoConfig = &VideoConfig{
			AspectRatio:    opts.VideoRatio,
			VideoLength:    opts.VideoLength,
			ResolutionName: VideoResolution,
			Preset:         VideoPreset,
		}
	}
	return payload
}

// BuildImagePayload builds a non-streaming image request that returns URLs.
func BuildImagePayload(model, prompt string, opts session.UiOptions) ImagePayload {
	n := opts.ImageN
	if n <= 0 {
		n = 1
	}
	size := opts.ImageSize
	if size == "" {
		size = DefaultImageSize
	}
	return ImagePayload{
		Model:          model,
		Prompt:         prompt,
		N:              n,
		Size:           size,
		ResponseFormat: ImageFormatURL,
		Stream:         false,
	}
}

// HistoryForAPI keeps the messages the gateway understands. Error entries and
// display-only roles are dropped.
func HistoryForAPI(messages []session.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case session.RoleUser, session.RoleAssistant, session.RoleSystem:
			out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

// ImageAnswer renders image URLs as Markdown images, one per line. With no
// URLs it returns raw.
func ImageAnswer(urls []string, raw string) string {
	if len(urls) == 0 {
		return raw
	}
	lines := make([]string, len(urls))
	for i, u := range urls {
		lines[i] = fmt.Sprintf("![image-%d](%s)", i+1, u)
	}
	return strings.Join(lines, "\n")
}
