// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// EnvAPIKey supplies the API key without touching the config file.
const EnvAPIKey = "GROKCHAT_API_KEY"

// credential resolves the API key: environment, then config, then a
// hidden prompt when a terminal is attached. An empty answer means the
// user has no key.
func (a *App) credential(ctx context.Context) (string, error) {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		return key, nil
	}
	if a.Config != nil {
		if key := strings.TrimSpace(a.Config.Gateway.APIKey); key != "" {
			return key, nil
		}
	}
	if !a.Interactive || a.ReadSecret == nil {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := a.ReadSecret("API key for " + a.Config.Gateway.BaseURL + ": ")
	if err != nil {
		return "", WrapError(err, "failed to read API key")
	}
	return strings.TrimSpace(key), nil
}

// readSecret prompts on stderr and reads stdin without echo.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(keyBytes), nil
}

