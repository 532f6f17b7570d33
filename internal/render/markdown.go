// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
)

// =============================================================================
// ANSWER RENDERER
// =============================================================================

// Renderer turns an answer into terminal text.
type Renderer struct {
	markdown *glamour.TermRenderer
	color    bool
}

// NewRenderer creates a renderer. With markdown false, or when glamour
// cannot start, answers are printed as-is with fenced code highlighted.
// With color false, nothing is styled at all.
func NewRenderer(markdown, color bool, width int) *Renderer {
	r := &Renderer{color: color}
	if !markdown || !color {
		return r
	}
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		r.markdown = tr
	}
	return r
}

// Markdown reports whether glamour rendering is active.
func (r *Renderer) Markdown() bool {
	return r.markdown != nil
}

// Render formats one answer. Rendering never fails; the input is the last
// resort.
func (r *Renderer) Render(content string) string {
	if r.markdown != nil {
		if out, err := r.markdown.Render(content); err == nil {
			return strings.TrimRight(out, "\n") + "\n"
		}
	}
	if r.color {
		return HighlightCodeBlocks(content)
	}
	return content
}

// =============================================================================
// SYNTAX HIGHLIGHTING (Chroma-based)
// =============================================================================

// HighlightCode applies terminal syntax highlighting to code. Unknown
// languages are detected from the code; failures return code unchanged.
func HighlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// HighlightCodeBlocks highlights every fenced block in text and leaves the
// prose and the fence lines untouched. An unclosed fence is highlighted up
// to the end.
func HighlightCodeBlocks(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	var code []string
	var language string
	inBlock := false

	flush := func() {
		highlighted := HighlightCode(strings.Join(code, "\n"), language)
		out = append(out, strings.TrimRight(highlighted, "\n"))
		code = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```") && inBlock:
			flush()
			out = append(out, line)
			inBlock = false
		case strings.HasPrefix(trimmed, "```"):
			language = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			out = append(out, line)
			inBlock = true
		case inBlock:
			code = append(code, line)
		default:
			out = append(out, line)
		}
	}
	if inBlock && len(code) > 0 {
		flush()
	}
	return strings.Join(out, "\n")
}
