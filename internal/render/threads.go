// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/grokchat/internal/session"
	"github.com/jeranaias/grokchat/internal/util"
)

// Column widths of the thread list, in terminal cells.
const (
	indexWidth = 4
	countWidth = 6
	timeWidth  = 16
)

// ThreadList renders one line per thread: index, title, message count and
// last update. Titles are cut by display width so CJK titles stay aligned.
func ThreadList(threads []session.Thread, activeID string, width int, color bool) string {
	if len(threads) == 0 {
		if color {
			return DimStyle.Render("(no threads)") + "\n"
		}
		return "(no threads)\n"
	}
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	titleWidth := width - indexWidth - countWidth - timeWidth - 4
	if titleWidth < 10 {
		titleWidth = 10
	}

	var b strings.Builder
	for i, t := range threads {
		marker := " "
		if t.ID == activeID {
			marker = "*"
			if color {
				marker = ActiveMarkerStyle.Render(marker)
			}
		}
		index := fmt.Sprintf("%*d", indexWidth-1, i+1)
		title := util.PadWidth(t.Title, titleWidth)
		count := fmt.Sprintf("%*d", countWidth, len(t.Messages))
		updated := FormatTime(t.UpdatedAt)
		if color {
			count = DimStyle.Render(count)
			updated = DimStyle.Render(updated)
		}
		fmt.Fprintf(&b, "%s%s %s %s  %s\n", marker, index, title, count, updated)
	}
	return b.String()
}

// FormatTime renders Unix milliseconds in local time.
func FormatTime(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

// RoleLabel is the heading printed above a message.
func RoleLabel(role string, color bool) string {
	var label string
	var style = LabelStyle
	switch role {
	case session.RoleUser:
		label, style = "you", UserStyle
	case session.RoleAssistant, session.RoleAssistantStream, session.RoleAssistantImage:
		label, style = "grok", AssistantStyle
	case session.RoleError:
		label, style = "error", ErrorStyle
	case session.RoleSystem:
		label = "system"
	default:
		label = role
	}
	if !color {
		return label + ">"
	}
	return style.Render(label + ">")
}

// Transcript renders a thread's messages with role labels. Assistant
// answers go through r.
func Transcript(t session.Thread, r *Renderer, color bool) string {
	var b strings.Builder
	header := t.Title
	if color {
		header = TitleStyle.Render(header)
	}
	b.WriteString(header + "\n")
	for _, m := range t.Messages {
		b.WriteString(RoleLabel(m.Role, color) + " ")
		content := m.Content
		if m.Role == session.RoleAssistant && r != nil {
			content = r.Render(content)
		}
		b.WriteString(strings.TrimRight(content, "\n") + "\n")
	}
	return b.String()
}

// PromptTitle shortens a thread title for the input prompt.
func PromptTitle(title string) string {
	return util.TruncateWidth(util.CollapseSpace(title), 24)
}
