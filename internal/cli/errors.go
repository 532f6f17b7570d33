// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/jeranaias/grokchat/internal/chat"
	"github.com/jeranaias/grokchat/internal/config"
	"github.com/jeranaias/grokchat/internal/gateway"
	"github.com/jeranaias/grokchat/internal/render"
	"github.com/jeranaias/grokchat/internal/retry"
	"github.com/jeranaias/grokchat/internal/session"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates a missing or rejected API key
	ExitAuthError = 4
	// ExitNetworkError indicates the gateway could not be reached or kept failing
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "export", "config")
	Action  string // Action being performed (e.g., "write", "set")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError is an invalid argument or flag value.
type UsageError struct {
	Field   string
	Value   string
	Example string
}

func (e *UsageError) Error() string {
	msg := "invalid " + e.Field
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += "\nExample: " + e.Example
	}
	return msg
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{
		Command: command,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// ErrInvalidValue creates a usage error for a bad argument.
func ErrInvalidValue(field, value, example string) error {
	return &UsageError{Field: field, Value: value, Example: example}
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError prints err in the standard format.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", render.Paint(render.ErrorStyle, "[ERROR]"), err.Error())
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	var validationErrs config.ValidationErrors
	var validationErr config.ValidationError
	if errors.As(err, &validationErrs) || errors.As(err, &validationErr) {
		return ExitConfigError
	}

	if errors.Is(err, chat.ErrNoCredential) {
		return ExitAuthError
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		return ExitAuthError
	}

	if errors.Is(err, session.ErrThreadNotFound) {
		return ExitNotFoundError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeoutError
	}

	var exhausted *retry.ExhaustedError
	var netErr net.Error
	if errors.As(err, &exhausted) || errors.As(err, &apiErr) || errors.As(err, &netErr) ||
		errors.Is(err, gateway.ErrMalformedResponse) {
		return ExitNetworkError
	}

	return ExitGeneralError
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
