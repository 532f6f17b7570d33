// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package request

import (
	"strings"

	"github.com/jeranaias/grokchat/internal/session"
)

// Model id keywords that select a non-chat mode.
var (
	imageKeywords = []string{"imagine", "superimage"}
	videoKeywords = []string{"video"}
)

// DetectMode infers the request mode from a model id.
func DetectMode(model string) string {
	id := strings.ToLower(model)
	for _, kw := range imageKeywords {
		if strings.Contains(id, kw) {
			return session.ModeImage
		}
	}
	for _, kw := range videoKeywords {
		if strings.Contains(id, kw) {
			return session.ModeVideo
		}
	}
	return session.ModeChat
}

// ResolveMode returns selected, or the mode detected from model when
// selected is auto or empty.
func ResolveMode(selected, model string) string {
	if selected == "" || selected == session.ModeAuto {
		return DetectMode(model)
	}
	return selected
}

// PreferredModel picks the model to select after a listing: preferred if
// listed, else grok-4 if listed, else the first model.
func PreferredModel(models []string, preferred string) string {
	has := func(id string) bool {
		for _, m := range models {
			if m == id {
				return true
			}
		}
		return false
	}
	switch {
	case preferred != "" && has(preferred):
		return preferred
	case has(DefaultModel):
		return DefaultModel
	case len(models) > 0:
		return models[0]
	default:
		return ""
	}
}

// DefaultModel is preferred when the configured model is not listed.
const DefaultModel = "grok-4"
