// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/jeranaias/grokchat/internal/config"
	"github.com/jeranaias/grokchat/internal/gateway"
	"github.com/jeranaias/grokchat/internal/notify"
	"github.com/jeranaias/grokchat/internal/render"
	"github.com/jeranaias/grokchat/internal/session"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// LineReader reads one line of user input.
type LineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerInput provides input history and line editing for the REPL.
type linerInput struct {
	line        *liner.State
	historyFile string
}

// newLinerInput creates a line editor with history loaded from the config
// directory. Ctrl+C aborts the current line.
func newLinerInput() *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile, err := config.HistoryFile()
	if err != nil {
		historyFile = ""
	}
	in := &linerInput{line: line, historyFile: historyFile}
	in.loadHistory()
	return in
}

func (l *linerInput) loadHistory() {
	if l.historyFile == "" {
		return
	}
	if f, err := os.Open(l.historyFile); err == nil {
		l.line.ReadHistory(f)
		f.Close()
	}
}

// Prompt reads a line and records non-empty input in the history.
func (l *linerInput) Prompt(prompt string) (string, error) {
	input, err := l.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		l.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists the history with owner-only permissions.
func (l *linerInput) saveHistory() {
	if l.historyFile == "" || config.EnsureConfigDir() != nil {
		return
	}
	f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	l.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (l *linerInput) Close() error {
	l.saveHistory()
	return l.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// REPL is the interactive chat loop.
type REPL struct {
	app   *App
	input LineReader

	// mu guards the fields a config reload may replace.
	mu       sync.Mutex
	renderer *render.Renderer
	uiConfig config.UIConfig
}

// NewREPL creates a REPL reading from input.
func NewREPL(app *App, input LineReader) *REPL {
	r := &REPL{app: app, input: input, renderer: app.Renderer}
	if app.Config != nil {
		r.uiConfig = app.Config.UI
	}
	return r
}

// Run reads prompts until /quit or end of input.
func (r *REPL) Run(ctx context.Context) error {
	r.printWelcome()
	r.watchConfig(ctx)

	for {
		line, err := r.input.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				// Ctrl+C drops the line being typed
				continue
			}
			if errors.Is(err, io.EOF) {
				r.app.printf("\n")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.handleSlash(ctx, line)
			if err != nil {
				DisplayError(r.app.ErrOut, err)
			}
			if quit {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

func (r *REPL) prompt() string {
	title := "grokchat"
	if t, ok := r.app.Store.Active(); ok {
		title = render.PromptTitle(t.Title)
	}
	return title + "> "
}

func (r *REPL) printWelcome() {
	a := r.app
	ui := a.Store.UI()
	model := ui.Model
	if model == "" {
		model = "(default)"
	}
	a.printf("%s %s\n", a.paint(render.TitleStyle, "grokchat"), a.paint(render.DimStyle, gateway.Version))
	a.printf("%s %s   %s %s   %s %s\n",
		a.paint(render.LabelStyle, "gateway:"), a.Config.Gateway.BaseURL,
		a.paint(render.LabelStyle, "model:"), model,
		a.paint(render.LabelStyle, "mode:"), ui.Mode)
	a.printf("%s\n\n", a.paint(render.DimStyle, "Type /help for commands, Ctrl+D to exit."))
}

// send runs one turn and prints the answer. Failures were already reported
// by the sender's notifier.
func (r *REPL) send(ctx context.Context, prompt string) {
	a := r.app
	view := render.NewStreamView(a.Out)
	a.printf("%s ", render.RoleLabel(session.RoleAssistant, a.Color))
	reply, err := a.Sender.Send(ctx, prompt, view)
	streamed := view.Started()
	view.Finish()
	if err != nil {
		// Reported by the sender's notifier; a busy sender is a silent no-op
		if !streamed {
			a.printf("\n")
		}
		return
	}
	if streamed {
		return
	}

	r.mu.Lock()
	renderer := r.renderer
	r.mu.Unlock()
	a.printf("%s\n", strings.TrimRight(renderer.Render(reply.Content), "\n"))
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

func (r *REPL) watchConfig(ctx context.Context) {
	a := r.app
	path := a.Flags.ConfigPath
	if path == "" {
		var err error
		if path, err = config.ConfigPathTOML(); err != nil {
			return
		}
		if err := config.EnsureConfigDir(); err != nil {
			return
		}
	}
	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			a.Logger.Warn("config reload failed", "path", path, "error", err)
			notify.Send(a.Toaster, "config reload failed: "+err.Error(), notify.KindWarning)
			return
		}
		r.applyConfig(cfg)
		notify.Send(a.Toaster, "config reloaded", notify.KindStatus)
	})
	if err != nil {
		a.Logger.Warn("config watch unavailable", "path", path, "error", err)
	}
}

// applyConfig takes a reloaded config: the proxy, the render mode and any
// [ui] default the file changed. Choices made in the REPL survive unless
// the file changes that same default.
func (r *REPL) applyConfig(cfg *config.Config) {
	a := r.app
	if client, ok := a.Gateway.(*gateway.Client); ok {
		if _, err := client.WithProxy(cfg.Gateway.Proxy); err != nil {
			a.Logger.Warn("proxy not applied", "error", err)
		}
	}

	r.mu.Lock()
	old := r.uiConfig
	r.uiConfig = cfg.UI
	if old.Render != cfg.UI.Render {
		r.renderer = render.NewRenderer(cfg.UI.Render == config.RenderMarkdown, a.Color, render.TerminalWidth())
	}
	r.mu.Unlock()

	changed := changedUIDefaults(old, cfg.UI)
	if changed == nil {
		return
	}
	a.Store.UpdateUI(changed)
	a.Store.Persist()
}

// changedUIDefaults returns an update applying the [ui] fields that differ
// between old and updated, or nil when none do.
func changedUIDefaults(old, updated config.UIConfig) func(*session.UiOptions) {
	before, after := old.Options(), updated.Options()
	if before == after {
		return nil
	}
	return func(ui *session.UiOptions) {
		if before.Model != after.Model {
			ui.Model = after.Model
		}
		if before.Mode != after.Mode {
			ui.Mode = after.Mode
		}
		if before.Stream != after.Stream {
			ui.Stream = after.Stream
		}
		if before.ImageN != after.ImageN {
			ui.ImageN = after.ImageN
		}
		if before.ImageSize != after.ImageSize {
			ui.ImageSize = after.ImageSize
		}
		if before.VideoRatio != after.VideoRatio {
			ui.VideoRatio = after.VideoRatio
		}
		if before.VideoLength != after.VideoLength {
			ui.VideoLength = after.VideoLength
		}
	}
}
