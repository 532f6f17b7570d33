// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeranaias/grokchat/internal/notify"
)

// Policy defaults.
const (
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts = 12

	// Interval is the fixed wait between tries.
	Interval = 1500 * time.Millisecond
)

// =============================================================================
// OPTIONS
// =============================================================================

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config controls a retry loop.
type Config struct {
	MaxAttempts int
	Interval    time.Duration
	Notifier    notify.Notifier
	Sleep       Sleeper
	Logger      *slog.Logger
}

// Option configures a retry loop.
type Option func(*Config)

// WithNotifier reports retry progress to n.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Config) { c.Notifier = n }
}

// WithMaxAttempts overrides MaxAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n >= 1 {
			c.MaxAttempts = n
		}
	}
}

// WithInterval overrides Interval. Negative values are ignored.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.Interval = d
		}
	}
}

// WithSleeper replaces the wait function.
func WithSleeper(s Sleeper) Option {
	return func(c *Config) { c.Sleep = s }
}

// WithLogger logs each retry at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithConfig copies every set field of cfg.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		WithMaxAttempts(cfg.MaxAttempts)(c)
		WithInterval(cfg.Interval)(c)
		if cfg.Notifier != nil {
			c.Notifier = cfg.Notifier
		}
		if cfg.Sleep != nil {
			c.Sleep = cfg.Sleep
		}
		if cfg.Logger != nil {
			c.Logger = cfg.Logger
		}
	}
}

// ContextSleep waits for d unless ctx is done first.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ExhaustedError is returned when every attempt hit the token-exhaustion
// condition.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return "暂无可用 Token：" + ParseErrorMessage(messageOf(e.Last))
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// =============================================================================
// RETRY LOOP
// =============================================================================

// Do runs op until it succeeds, fails with a non-retryable error, or
// MaxAttempts token-exhaustion failures have been seen. Non-retryable
// errors are returned unmodified.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	cfg := Config{
		MaxAttempts: MaxAttempts,
		Interval:    Interval,
		Sleep:       ContextSleep,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !IsNoTokenError(err) {
			return zero, err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.Logger != nil {
			cfg.Logger.Debug("no available tokens, retrying",
				"attempt", attempt, "max_attempts", cfg.MaxAttempts, "interval", cfg.Interval)
		}
		notify.Send(cfg.Notifier,
			fmt.Sprintf("暂无可用 Token，正在重试 (%d/%d)", attempt, cfg.MaxAttempts),
			notify.KindWarning)

		if err := cfg.Sleep(ctx, cfg.Interval); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}
