// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for grokchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - GatewayConfig: Gateway endpoint, credential, proxy and throttling
//   - StorageConfig: Where threads are persisted
//   - UIConfig: Default request options for new state
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GROKCHAT_*)
//   - ~/.grokchat/config.toml
//   - ~/.grokchat/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//
// Follow edits while the REPL runs:
//
//	err := config.Watch(ctx, path, func(cfg *config.Config, err error) { ... })
package config
