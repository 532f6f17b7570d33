// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/grokchat/internal/chat"
	"github.com/jeranaias/grokchat/internal/config"
	"github.com/jeranaias/grokchat/internal/gateway"
	"github.com/jeranaias/grokchat/internal/request"
	"github.com/jeranaias/grokchat/internal/retry"
	"github.com/jeranaias/grokchat/internal/session"
)

// =============================================================================
// FIXTURES
// =============================================================================

type fakeGateway struct {
	mu     sync.Mutex
	models []string
	answer string
	stream []string
	key    string
	calls  int
	images []request.ImagePayload
}

func (f *fakeGateway) SetAPIKey(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.key = key
}

func (f *fakeGateway) apiKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGateway) ListModels(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.models, nil
}

func (f *fakeGateway) Chat(context.Context, request.ChatPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.answer, nil
}

func (f *fakeGateway) ChatStream(_ context.Context, _ request.ChatPayload, onProgress func(string)) (string, error) {
	f.mu.Lock()
	f.calls++
	parts := f.stream
	f.mu.Unlock()

	var acc string
	for _, p := range parts {
		acc += p
		onProgress(acc)
	}
	return acc, nil
}

func (f *fakeGateway) Images(_ context.Context, payload request.ImagePayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.images = append(f.images, payload)
	return "![image](http://img/1.png)", nil
}

// scriptInput feeds fixed lines to the REPL, then io.EOF.
type scriptInput struct {
	lines []string
	pos   int
}

func (s *scriptInput) Prompt(string) (string, error) {
	if s.pos >= len(s.lines) {
		return "", io.EOF
	}
	line := s.lines[s.pos]
	s.pos++
	return line, nil
}

func (s *scriptInput) Close() error { return nil }

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	for _, key := range []string{"GROKCHAT_BASE_URL", "GROKCHAT_PROXY", "GROKCHAT_MODEL", "GROKCHAT_LOG_LEVEL", "NO_COLOR", "FORCE_COLOR"} {
		t.Setenv(key, "")
	}
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv("GROKCHAT_STORAGE", "memory")
	return home
}

func newTestApp(gw *fakeGateway) (*App, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	app := &App{
		In:     strings.NewReader(""),
		Out:    &out,
		ErrOut: &errOut,
		NewGateway: func(*config.Config) (chat.Gateway, error) {
			return gw, nil
		},
	}
	return app, &out, &errOut
}

func openApp(t *testing.T, gw *fakeGateway) (*App, *bytes.Buffer) {
	t.Helper()
	app, out, _ := newTestApp(gw)
	require.NoError(t, app.Open())
	require.NoError(t, app.Bootstrap(context.Background()))
	t.Cleanup(func() { app.Close() })
	return app, out
}

// =============================================================================
// REPL
// =============================================================================

func TestREPL_SlashCommands(t *testing.T) {
	isolate(t)
	app, out := openApp(t, &fakeGateway{models: []string{"grok-4", "grok-3"}})
	r := NewREPL(app, &scriptInput{})
	ctx := context.Background()

	run := func(line string) {
		t.Helper()
		quit, err := r.handleSlash(ctx, line)
		require.NoError(t, err, line)
		assert.False(t, quit, line)
	}

	assert.Equal(t, "grok-4", app.Store.UI().Model, "bootstrap prefers grok-4")

	run("/mode image")
	run("/stream off")
	run("/image n 3")
	run("/image size 16:9")
	run("/video ratio 2:3")
	run("/video length 10s")
	run("/model grok-3")

	ui := app.Store.UI()
	assert.Equal(t, session.ModeImage, ui.Mode)
	assert.False(t, ui.Stream)
	assert.Equal(t, 3, ui.ImageN)
	assert.Equal(t, "16:9", ui.ImageSize)
	assert.Equal(t, "2:3", ui.VideoRatio)
	assert.Equal(t, 10, ui.VideoLength)
	assert.Equal(t, "grok-3", ui.Model)

	run("/rename Trip planning")
	first := app.Store.ActiveID()
	active, _ := app.Store.Active()
	assert.Equal(t, "Trip planning", active.Title)

	run("/new")
	assert.NotEqual(t, first, app.Store.ActiveID())
	run("/use " + first)
	assert.Equal(t, first, app.Store.ActiveID())

	run("/threads")
	assert.Contains(t, out.String(), "Trip planning")

	quit, err := r.handleSlash(ctx, "/quit")
	assert.NoError(t, err)
	assert.True(t, quit)
}

func TestREPL_SlashErrors(t *testing.T) {
	isolate(t)
	app, _ := openApp(t, &fakeGateway{})
	r := NewREPL(app, &scriptInput{})
	ctx := context.Background()

	var usage *UsageError
	for _, line := range []string{"/mode banana", "/stream maybe", "/image n 0", "/video length x", "/rename", "/bogus"} {
		_, err := r.handleSlash(ctx, line)
		assert.ErrorAs(t, err, &usage, line)
	}

	_, err := r.handleSlash(ctx, "/use nope")
	assert.ErrorIs(t, err, session.ErrThreadNotFound)
}

func TestREPL_RunSendsPrompts(t *testing.T) {
	isolate(t)
	gw := &fakeGateway{models: []string{"grok-4"}, answer: "Lima"}
	app, out := openApp(t, gw)
	app.Store.UpdateUI(func(ui *session.UiOptions) {
		ui.Stream = false
		ui.Mode = session.ModeChat
	})

	input := &scriptInput{lines: []string{"", "capital of Peru?", "/quit", "never read"}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, NewREPL(app, input).Run(ctx))
	app.Sender.Wait()

	assert.Equal(t, 3, input.pos)
	assert.Contains(t, out.String(), "grok> Lima")

	thread, ok := app.Store.Active()
	require.True(t, ok)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "capital of Peru?", thread.Messages[0].Content)
	assert.Equal(t, "Lima", thread.Messages[1].Content)
}

func TestREPL_ImageMode(t *testing.T) {
	isolate(t)
	gw := &fakeGateway{models: []string{"grok-4"}}
	app, out := openApp(t, gw)
	r := NewREPL(app, &scriptInput{})

	_, err := r.handleSlash(context.Background(), "/mode image")
	require.NoError(t, err)
	r.send(context.Background(), "a lighthouse")
	app.Sender.Wait()

	require.Len(t, gw.images, 1)
	assert.Equal(t, "a lighthouse", gw.images[0].Prompt)
	assert.Contains(t, out.String(), "http://img/1.png")
}

func TestChangedUIDefaults(t *testing.T) {
	old := config.Default().UI
	assert.Nil(t, changedUIDefaults(old, old))

	updated := old
	updated.Stream = !old.Stream
	updated.ImageN = 4

	current := session.UiOptions{Model: "grok-3", Mode: session.ModeVideo, Stream: old.Stream, ImageN: 2}
	changedUIDefaults(old, updated)(&current)

	assert.Equal(t, "grok-3", current.Model, "choices the file did not touch survive")
	assert.Equal(t, session.ModeVideo, current.Mode)
	assert.Equal(t, updated.Stream, current.Stream)
	assert.Equal(t, 4, current.ImageN)
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestAskCommand_Streams(t *testing.T) {
	isolate(t)
	gw := &fakeGateway{models: []string{"grok-4"}, stream: []string{"Hel", "lo"}}
	app, out, _ := newTestApp(gw)

	root := NewRootCmd(app)
	root.SetArgs([]string{"ask", "say", "hello"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.NoError(t, app.Close())

	assert.Equal(t, "Hello\n", out.String())
	assert.Equal(t, "test-key", gw.apiKey())

	thread, ok := app.Store.Active()
	require.True(t, ok)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "say hello", thread.Messages[0].Content)
	assert.Equal(t, "Hello", thread.Messages[1].Content)
}

func TestAskCommand_NoCredential(t *testing.T) {
	isolate(t)
	t.Setenv(EnvAPIKey, "")
	gw := &fakeGateway{models: []string{"grok-4"}}
	app, _, _ := newTestApp(gw)

	root := NewRootCmd(app)
	root.SetArgs([]string{"ask", "hi"})
	err := root.ExecuteContext(context.Background())
	app.Close()

	assert.ErrorIs(t, err, chat.ErrNoCredential)
	assert.Equal(t, ExitAuthError, GetExitCode(err))
	assert.Zero(t, gw.callCount(), "no network before a credential exists")
}

func TestCredential_PromptsOnTerminal(t *testing.T) {
	isolate(t)
	t.Setenv(EnvAPIKey, "")
	app, _, _ := newTestApp(&fakeGateway{})
	app.Interactive = true
	var asked string
	app.ReadSecret = func(prompt string) (string, error) {
		asked = prompt
		return "  typed-key \n", nil
	}
	_, err := app.LoadConfig()
	require.NoError(t, err)

	key, err := app.credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "typed-key", key)
	assert.Contains(t, asked, gateway.DefaultBaseURL)
}

func TestExportCommand(t *testing.T) {
	isolate(t)
	t.Setenv("GROKCHAT_STORAGE", "file")

	seed, _, _ := newTestApp(&fakeGateway{})
	require.NoError(t, seed.Open())
	thread := seed.Store.CreateThread("Weather")
	_, err := seed.Store.AppendMessage(thread.ID, session.RoleUser, "rain tomorrow?")
	require.NoError(t, err)
	require.True(t, seed.Store.Persist().OK())
	require.NoError(t, seed.Close())

	app, out, _ := newTestApp(&fakeGateway{})
	root := NewRootCmd(app)
	root.SetArgs([]string{"export", thread.ID, "--format", "json"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	app.Close()
	assert.Contains(t, out.String(), `"Weather"`)
	assert.Contains(t, out.String(), "rain tomorrow?")

	app, out, _ = newTestApp(&fakeGateway{})
	file := filepath.Join(t.TempDir(), "weather.md")
	root = NewRootCmd(app)
	root.SetArgs([]string{"export", "-o", file})
	require.NoError(t, root.ExecuteContext(context.Background()))
	app.Close()
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Weather\n"))
	assert.Contains(t, out.String(), file)
}

func TestExportThread_Formats(t *testing.T) {
	thread := session.Thread{ID: "chat_1_abc", Title: "T"}

	md, err := exportThread(thread, "md")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# T"))

	js, err := exportThread(thread, "JSON")
	require.NoError(t, err)
	assert.Contains(t, string(js), `"chat_1_abc"`)

	_, err = exportThread(thread, "pdf")
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	assert.Equal(t, "json", exportExtension("json"))
	assert.Equal(t, "md", exportExtension("markdown"))
}

func TestConfigCommands(t *testing.T) {
	home := isolate(t)

	exec := func(args ...string) string {
		t.Helper()
		app, out, _ := newTestApp(&fakeGateway{})
		root := NewRootCmd(app)
		root.SetArgs(args)
		require.NoError(t, root.ExecuteContext(context.Background()), strings.Join(args, " "))
		return out.String()
	}

	assert.Equal(t, filepath.Join(home, "config.toml")+"\n", exec("config", "path"))

	exec("config", "init")
	assert.FileExists(t, filepath.Join(home, "config.toml"))

	exec("config", "set", "ui.stream", "false")
	exec("config", "set", "gateway.api_key", "sk-secret")
	assert.Equal(t, "false\n", exec("config", "get", "ui.stream"))

	t.Setenv(EnvAPIKey, "")
	assert.Equal(t, "[REDACTED]\n", exec("config", "get", "gateway.api_key"))
	assert.NotContains(t, exec("config", "show"), "sk-secret")
}

func TestConfigSet_RejectsInvalid(t *testing.T) {
	isolate(t)
	app, _, _ := newTestApp(&fakeGateway{})
	root := NewRootCmd(app)
	root.SetArgs([]string{"config", "set", "storage.backend", "floppy"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestResetCommand(t *testing.T) {
	isolate(t)
	t.Setenv("GROKCHAT_STORAGE", "file")

	seed, _, _ := newTestApp(&fakeGateway{})
	require.NoError(t, seed.Open())
	seed.Store.CreateThread("one")
	seed.Store.CreateThread("two")
	seed.Store.Persist()
	require.NoError(t, seed.Close())

	app, _, errOut := newTestApp(&fakeGateway{})
	root := NewRootCmd(app)
	root.SetArgs([]string{"reset", "--yes"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	app.Close()
	assert.Contains(t, errOut.String(), chat.MsgCacheCleared)

	check, _, _ := newTestApp(&fakeGateway{})
	require.NoError(t, check.Open())
	check.Store.Load()
	assert.Len(t, check.Store.Threads(), 1)
	check.Close()
}

// =============================================================================
// PICKER
// =============================================================================

func TestPickerModel(t *testing.T) {
	threads := []session.Thread{
		{ID: "chat_2", Title: "Second"},
		{ID: "chat_1", Title: "First"},
	}
	m := newPickerModel(threads, "chat_1")
	assert.Equal(t, 1, m.list.Index(), "starts on the active thread")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "chat_2", next.(pickerModel).choice)
	require.NotNil(t, cmd)

	cancelled, _ := newPickerModel(threads, "chat_1").Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Empty(t, cancelled.(pickerModel).choice)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", ErrInvalidValue("mode", "x", ""), ExitUsageError},
		{"config", config.ValidationErrors{{Field: "ui.mode", Message: "bad"}}, ExitConfigError},
		{"no credential", fmt.Errorf("bootstrap: %w", chat.ErrNoCredential), ExitAuthError},
		{"unauthorized", &gateway.APIError{Status: 401}, ExitAuthError},
		{"server error", &gateway.APIError{Status: 500}, ExitNetworkError},
		{"exhausted", &retry.ExhaustedError{Attempts: 12}, ExitNetworkError},
		{"malformed", fmt.Errorf("chat: %w", gateway.ErrMalformedResponse), ExitNetworkError},
		{"not found", fmt.Errorf("x: %w", session.ErrThreadNotFound), ExitNotFoundError},
		{"deadline", context.DeadlineExceeded, ExitTimeoutError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestCommandError(t *testing.T) {
	inner := errors.New("disk full")
	err := NewCommandError("export", "write", "out.md", inner)
	assert.Equal(t, "export write failed: out.md: disk full", err.Error())
	assert.ErrorIs(t, err, inner)
}
