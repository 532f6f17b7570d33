// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/grokchat/internal/chat"
	"github.com/jeranaias/grokchat/internal/render"
	"github.com/jeranaias/grokchat/internal/session"
)

// Export formats.
const (
	formatMarkdown = "md"
	formatJSON     = "json"
)

// =============================================================================
// CHAT
// =============================================================================

func newChatCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat",
		Long: `Start the interactive chat in the active thread.

Type a prompt to send it. Lines starting with / are commands; /help lists
them. Ctrl+C clears the current line and Ctrl+D exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), app)
		},
	}
}

func runChat(ctx context.Context, app *App) error {
	if err := app.Open(); err != nil {
		return err
	}
	if err := app.Bootstrap(ctx); err != nil {
		return err
	}
	input := newLinerInput()
	defer input.Close()
	return NewREPL(app, input).Run(ctx)
}

// =============================================================================
// ASK
// =============================================================================

func newAskCmd(app *App) *cobra.Command {
	var newThread bool
	var threadRef string

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send one prompt and print the answer",
		Long: `Send one prompt into the active thread and print the answer.

Examples:
  grokchat ask "What is the capital of Peru?"
  grokchat ask --new "imagine a lighthouse at dusk"
  grokchat ask --thread 2 "and in winter?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Open(); err != nil {
				return err
			}
			if err := app.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			if newThread {
				app.Sender.NewThread()
			} else if threadRef != "" {
				t, err := app.Store.Find(threadRef)
				if err != nil {
					return WrapError(err, threadRef)
				}
				app.Store.SetActive(t.ID)
			}
			return runAsk(cmd.Context(), app, strings.Join(args, " "))
		},
	}
	cmd.Flags().BoolVar(&newThread, "new", false, "Start a new thread first")
	cmd.Flags().StringVarP(&threadRef, "thread", "t", "", "Thread to use (list position or id prefix)")
	return cmd
}

// runAsk sends prompt and prints the answer. Streamed text is printed as it
// arrives; other answers are rendered at the end.
func runAsk(ctx context.Context, app *App, prompt string) error {
	view := render.NewStreamView(app.Out)
	reply, err := app.Sender.Send(ctx, prompt, view)
	streamed := view.Started()
	view.Finish()
	if err != nil {
		return err
	}
	if !streamed {
		app.printf("%s\n", strings.TrimRight(app.Renderer.Render(reply.Content), "\n"))
	}
	return nil
}

// =============================================================================
// MODELS
// =============================================================================

func newModelsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the gateway's models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Open(); err != nil {
				return err
			}
			ctx := cmd.Context()
			key, err := app.credential(ctx)
			if err != nil {
				return err
			}
			if key == "" {
				return chat.ErrNoCredential
			}
			if ks, ok := app.Gateway.(interface{ SetAPIKey(string) }); ok {
				ks.SetAPIKey(key)
			}
			models, err := app.Gateway.ListModels(ctx)
			if err != nil {
				return WrapError(err, "failed to list models")
			}
			app.Store.Load()
			current := app.Store.UI().Model
			for _, m := range models {
				marker := "  "
				if m == current {
					marker = app.paint(render.ActiveMarkerStyle, "* ")
				}
				app.printf("%s%s\n", marker, m)
			}
			return nil
		},
	}
}

// =============================================================================
// THREADS
// =============================================================================

func newThreadsCmd(app *App) *cobra.Command {
	var pick bool

	cmd := &cobra.Command{
		Use:     "threads",
		Aliases: []string{"ls"},
		Short:   "List threads or pick the active one",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Open(); err != nil {
				return err
			}
			app.Store.Load()
			threads := app.Store.Threads()
			if !pick {
				app.printf("%s", render.ThreadList(threads, app.Store.ActiveID(), render.TerminalWidth(), app.Color))
				return nil
			}
			if len(threads) == 0 {
				return session.ErrThreadNotFound
			}
			if !app.Interactive {
				return ErrInvalidValue("--pick", "", "needs a terminal; use 'grokchat ask --thread <n>' instead")
			}
			id, err := pickThread(threads, app.Store.ActiveID())
			if err != nil {
				return WrapError(err, "thread picker failed")
			}
			if id == "" {
				return nil
			}
			if err := app.Store.SetActive(id); err != nil {
				return err
			}
			app.Store.Persist()
			t, _ := app.Store.Active()
			app.printf("%s %s\n", app.paint(render.SuccessStyle, "Active thread:"), t.Title)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&pick, "pick", "p", false, "Choose the active thread interactively")
	return cmd
}

// =============================================================================
// EXPORT
// =============================================================================

func newExportCmd(app *App) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export [thread]",
		Short: "Export a thread as Markdown or JSON",
		Long: `Export a thread as Markdown or JSON. The thread is a list position,
an id or an id prefix; the active thread is used when omitted.

Examples:
  grokchat export                      Active thread as Markdown to stdout
  grokchat export 2 --format json      Second thread as JSON
  grokchat export chat_17 -o trip.md   Write to a file`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Open(); err != nil {
				return err
			}
			app.Store.Load()

			var t session.Thread
			var err error
			if len(args) == 1 {
				t, err = app.Store.Find(args[0])
			} else if active, ok := app.Store.Active(); ok {
				t = active
			} else {
				err = session.ErrThreadNotFound
			}
			if err != nil {
				return err
			}

			data, err := exportThread(t, format)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = app.Out.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0600); err != nil {
				return NewCommandError("export", "write", output, err)
			}
			app.printf("%s %s\n", app.paint(render.SuccessStyle, "Exported:"), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatMarkdown, "Output format: md or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

// exportThread encodes t in format.
func exportThread(t session.Thread, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case formatMarkdown, "markdown":
		return []byte(t.ExportMarkdown()), nil
	case formatJSON:
		data, err := t.ExportJSON()
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, ErrInvalidValue("format", format, "--format md|json")
	}
}

func exportExtension(format string) string {
	if strings.ToLower(format) == formatJSON {
		return formatJSON
	}
	return formatMarkdown
}

// =============================================================================
// RESET
// =============================================================================

func newResetCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all local threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && app.Interactive {
				confirmed, err := confirm(app, "Delete all local threads? [y/N] ")
				if err != nil {
					return err
				}
				if !confirmed {
					return nil
				}
			}
			if err := app.Open(); err != nil {
				return err
			}
			if res := app.Sender.ClearCache(); !res.OK() {
				return NewCommandError("reset", "remove", "local state could not be cleared", res.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question on In.
func confirm(app *App, question string) (bool, error) {
	app.printf("%s", question)
	line, err := bufio.NewReader(app.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
