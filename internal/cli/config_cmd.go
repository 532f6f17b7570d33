// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/grokchat/internal/config"
	"github.com/jeranaias/grokchat/internal/render"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit the configuration",
		Long: `Show or edit the configuration file.

Keys use dot notation matching the file's sections.

Examples:
  grokchat config show
  grokchat config init
  grokchat config get gateway.base_url
  grokchat config set gateway.proxy socks5://127.0.0.1:1080
  grokchat config set ui.stream false`,
	}
	cmd.AddCommand(
		newConfigShowCmd(app),
		newConfigPathCmd(app),
		newConfigInitCmd(app),
		newConfigGetCmd(app),
		newConfigSetCmd(app),
	)
	return cmd
}

// configPath is --config or the default TOML path.
func (a *App) configPath() (string, error) {
	if a.Flags.ConfigPath != "" {
		return a.Flags.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

// loadFileConfig reads the config file alone, without environment
// overrides, so that saving it back does not capture the environment.
func loadFileConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	var err error
	if strings.HasSuffix(path, ".json") {
		err = config.LoadJSON(cfg, path)
	} else {
		err = config.LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, NewCommandError("config", "load", path, err)
	}
	return cfg, nil
}

func saveFileConfig(cfg *config.Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (secrets redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			app.printf("%s\n", cfg.String())
			return nil
		},
	}
}

func newConfigPathCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.configPath()
			if err != nil {
				return err
			}
			app.printf("%s\n", path)
			return nil
		},
	}
}

func newConfigInitCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.configPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return NewCommandError("config", "init", path+" already exists (use --force)", nil)
			}
			if app.Flags.ConfigPath == "" {
				if err := config.EnsureConfigDir(); err != nil {
					return err
				}
			}
			if err := saveFileConfig(config.Default(), path); err != nil {
				return err
			}
			app.printf("%s %s\n", app.paint(render.SuccessStyle, "Wrote"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			value, err := cfg.Redacted().Get(args[0])
			if err != nil {
				return ErrInvalidValue("key", args[0], "gateway.base_url")
			}
			app.printf("%v\n", value)
			return nil
		},
	}
}

func newConfigSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.configPath()
			if err != nil {
				return err
			}
			cfg, err := loadFileConfig(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return ErrInvalidValue("key or value", strings.Join(args, " "), fmt.Sprintf("grokchat config set %s <value>", args[0]))
			}
			cfg.SetDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if app.Flags.ConfigPath == "" {
				if err := config.EnsureConfigDir(); err != nil {
					return err
				}
			}
			if err := saveFileConfig(cfg, path); err != nil {
				return err
			}
			app.printf("%s %s\n", app.paint(render.SuccessStyle, "Set"), args[0])
			return nil
		},
	}
}
