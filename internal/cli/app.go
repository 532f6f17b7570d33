// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jeranaias/grokchat/internal/chat"
	"github.com/jeranaias/grokchat/internal/config"
	"github.com/jeranaias/grokchat/internal/gateway"
	"github.com/jeranaias/grokchat/internal/logging"
	"github.com/jeranaias/grokchat/internal/render"
	"github.com/jeranaias/grokchat/internal/retry"
	"github.com/jeranaias/grokchat/internal/session"
	"github.com/jeranaias/grokchat/internal/storage"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

// Flags holds the persistent flags shared by every command.
type Flags struct {
	ConfigPath string
	BaseURL    string
	Model      string
	Storage    string
	LogLevel   string
	Raw        bool
	NoColor    bool
}

// =============================================================================
// APPLICATION
// =============================================================================

// App is everything a command needs, built once per invocation.
type App struct {
	Flags Flags

	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer

	// Interactive reports whether prompts may be shown.
	Interactive bool
	// ReadSecret reads a line without echo. Defaults to the terminal.
	ReadSecret func(prompt string) (string, error)
	// NewGateway overrides the gateway, used by tests.
	NewGateway func(cfg *config.Config) (chat.Gateway, error)

	Config   *config.Config
	Logger   *slog.Logger
	Store    *session.Store
	Sender   *chat.Sender
	Gateway  chat.Gateway
	Renderer *render.Renderer
	Toaster  *render.Toaster
	Color    bool

	closers []io.Closer
}

// NewApp creates an App bound to the process streams.
func NewApp() *App {
	return &App{
		In:          os.Stdin,
		Out:         os.Stdout,
		ErrOut:      os.Stderr,
		Interactive: render.IsStdinTTY(),
		ReadSecret:  readSecret,
	}
}

// LoadConfig reads the configuration and applies flag overrides.
func (a *App) LoadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if a.Flags.ConfigPath != "" {
		cfg, err = config.LoadFromPath(a.Flags.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if a.Flags.BaseURL != "" {
		cfg.Gateway.BaseURL = strings.TrimSuffix(a.Flags.BaseURL, "/")
	}
	if a.Flags.Storage != "" {
		cfg.Storage.Backend = a.Flags.Storage
	}
	if a.Flags.LogLevel != "" {
		cfg.Logging.Level = a.Flags.LogLevel
	}
	if a.Flags.Raw {
		cfg.UI.Render = config.RenderRaw
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a.Config = cfg
	return cfg, nil
}

// Open builds the logger, store, gateway and sender. It does not touch the
// network; Bootstrap does.
func (a *App) Open() error {
	cfg := a.Config
	if cfg == nil {
		var err error
		if cfg, err = a.LoadConfig(); err != nil {
			return err
		}
	}

	logFile, err := cfg.LogFile()
	if err != nil {
		return err
	}
	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   logFile,
	})
	if err != nil {
		return err
	}
	a.Logger = logger
	a.closers = append(a.closers, closer)

	dir, err := cfg.StorageDir()
	if err != nil {
		return err
	}
	kv, err := storage.Open(cfg.Storage.Backend, dir)
	if err != nil {
		return WrapError(err, "failed to open storage")
	}
	a.closers = append(a.closers, kv)

	a.Store = session.New(kv,
		session.WithDefaultUI(cfg.UI.Options()),
		session.WithLogger(logger.With("component", "session")),
	)

	gw, err := a.buildGateway(cfg)
	if err != nil {
		return err
	}
	a.Gateway = gw

	a.Color = render.ColorsEnabled() && !a.Flags.NoColor
	a.Toaster = render.NewToaster(a.ErrOut, a.Color)
	a.Renderer = render.NewRenderer(cfg.UI.Render == config.RenderMarkdown, a.Color, render.TerminalWidth())

	a.Sender = chat.NewSender(a.Store, gw,
		chat.WithNotifier(a.Toaster),
		chat.WithRetry(
			retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
			retry.WithInterval(cfg.Retry.Interval()),
		),
		chat.WithCredentials(a.credential),
		chat.WithLogger(logger.With("component", "chat")),
	)
	return nil
}

func (a *App) buildGateway(cfg *config.Config) (chat.Gateway, error) {
	if a.NewGateway != nil {
		return a.NewGateway(cfg)
	}
	client := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey).
		WithTimeout(cfg.Gateway.Timeout()).
		WithRateLimit(cfg.Gateway.RateLimit).
		WithUserAgent(cfg.Gateway.UserAgent).
		WithLogger(a.Logger.With("component", "gateway"))
	if _, err := client.WithProxy(cfg.Gateway.Proxy); err != nil {
		return nil, WrapError(err, "invalid proxy")
	}
	return client, nil
}

// Bootstrap resolves the credential, loads the threads and model list, then
// applies --model.
func (a *App) Bootstrap(ctx context.Context) error {
	if err := a.Sender.Bootstrap(ctx); err != nil {
		return err
	}
	if a.Flags.Model != "" {
		a.Store.UpdateUI(func(ui *session.UiOptions) { ui.Model = a.Flags.Model })
		a.Store.Persist()
	}
	return nil
}

// Close waits for background naming and releases files.
func (a *App) Close() error {
	if a.Sender != nil {
		a.Sender.Wait()
	}
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// printf writes to Out.
func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

// paint styles text when colours are on.
func (a *App) paint(style interface{ Render(...string) string }, text string) string {
	if !a.Color {
		return text
	}
	return style.Render(text)
}
