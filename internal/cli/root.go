// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jeranaias/grokchat/internal/gateway"
	"github.com/jeranaias/grokchat/internal/render"
)

// Execute runs the command line and returns the process exit code.
func Execute() int {
	app := NewApp()
	root := NewRootCmd(app)
	err := root.ExecuteContext(context.Background())
	if closeErr := app.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		DisplayError(app.ErrOut, err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// NewRootCmd builds the command tree around app.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "grokchat",
		Short: "Terminal chat client for a grok2api gateway",
		Long: `grokchat: multi-thread chat in the terminal, backed by a grok2api gateway.

Threads, the active thread and request options are stored locally and
survive restarts. New threads are titled automatically after the first
answer.

Usage modes:
  grokchat              Start the interactive chat
  grokchat <command>    Run one command (see below)

Configuration lives in ~/.grokchat/config.toml (see 'grokchat config path').`,
		Version:       gateway.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if app.Flags.NoColor {
				render.DisableColors()
			} else {
				render.Setup()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), app)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.Flags.ConfigPath, "config", "", "Config file (default ~/.grokchat/config.toml)")
	flags.StringVar(&app.Flags.BaseURL, "base-url", "", "Gateway base URL")
	flags.StringVarP(&app.Flags.Model, "model", "m", "", "Model to use")
	flags.StringVar(&app.Flags.Storage, "storage", "", "Storage backend: file, sqlite or memory")
	flags.StringVar(&app.Flags.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.BoolVar(&app.Flags.Raw, "raw", false, "Print answers without Markdown rendering")
	flags.BoolVar(&app.Flags.NoColor, "no-color", false, "Disable colored output")

	root.SetIn(app.In)
	root.SetOut(app.Out)
	root.SetErr(app.ErrOut)

	root.AddGroup(
		&cobra.Group{ID: "chat", Title: "Chat:"},
		&cobra.Group{ID: "manage", Title: "Threads and settings:"},
	)
	for _, c := range []*cobra.Command{newChatCmd(app), newAskCmd(app), newModelsCmd(app)} {
		c.GroupID = "chat"
		root.AddCommand(c)
	}
	for _, c := range []*cobra.Command{newThreadsCmd(app), newExportCmd(app), newResetCmd(app), newConfigCmd(app)} {
		c.GroupID = "manage"
		root.AddCommand(c)
	}
	return root
}
