// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// THREAD EXPORT
// =============================================================================

// ExportMarkdown renders the thread as Markdown with one section per message.
func (t Thread) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# " + t.Title + "\n\n")
	sb.WriteString("Thread: `" + t.ID + "`  \n")
	sb.WriteString("Created: " + time.UnixMilli(t.CreatedAt).Format(time.RFC3339) + "  \n")
	sb.WriteString("Updated: " + time.UnixMilli(t.UpdatedAt).Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range t.Messages {
		sb.WriteString(roleLabel(msg.Role) + " (" + time.UnixMilli(msg.TS).Format("01-02 15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// ExportJSON returns the thread as indented JSON in the persisted shape.
func (t Thread) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

func roleLabel(role string) string {
	switch role {
	case RoleUser:
		return "**User**"
	case RoleAssistant, RoleAssistantStream, RoleAssistantImage:
		return "**Assistant**"
	case RoleSystem:
		return "**System**"
	case RoleError:
		return "**Error**"
	default:
		return "**" + role + "**"
	}
}
