// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/jeranaias/grokchat/internal/render"
	"github.com/jeranaias/grokchat/internal/session"
)

// slashHelp lists the REPL commands.
var slashHelp = [][2]string{
	{"/new", "Start a new thread"},
	{"/threads", "List threads"},
	{"/use <n|id>", "Switch to a thread by list position or id prefix"},
	{"/rename <title>", "Rename the active thread"},
	{"/model [id]", "Show models or switch model"},
	{"/mode <auto|chat|image|video>", "Set the request mode"},
	{"/stream on|off", "Toggle streamed answers"},
	{"/image n <k>", "Images per request"},
	{"/image size <s>", "Image size, e.g. 1:1"},
	{"/video ratio <r>", "Video aspect ratio, e.g. 3:2"},
	{"/video length <s>", "Video length in seconds"},
	{"/export [md|json]", "Write the active thread to a file"},
	{"/reset", "Delete all local threads"},
	{"/help", "Show this help"},
	{"/quit", "Exit"},
}

// handleSlash runs one slash command. It reports whether the REPL should
// exit.
func (r *REPL) handleSlash(ctx context.Context, input string) (bool, error) {
	a := r.app
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch cmd {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h", "/?":
		r.printHelp()

	case "/new", "/n":
		t := a.Sender.NewThread()
		a.printf("%s %s\n", a.paint(render.SuccessStyle, "New thread:"), t.Title)

	case "/threads", "/t":
		a.printf("%s", render.ThreadList(a.Store.Threads(), a.Store.ActiveID(), render.TerminalWidth(), a.Color))

	case "/use", "/switch":
		if rest == "" {
			return false, ErrInvalidValue("thread", "", "/use 2")
		}
		t, err := a.Store.Find(rest)
		if err != nil {
			return false, fmt.Errorf("%w: %s", err, rest)
		}
		if err := a.Store.SetActive(t.ID); err != nil {
			return false, err
		}
		a.Store.Persist()
		r.mu.Lock()
		renderer := r.renderer
		r.mu.Unlock()
		a.printf("%s", render.Transcript(t, renderer, a.Color))

	case "/rename":
		if rest == "" {
			return false, ErrInvalidValue("title", "", "/rename Trip planning")
		}
		if err := a.Store.Rename(a.Store.ActiveID(), rest); err != nil {
			return false, err
		}
		a.Store.Persist()
		a.printf("%s %s\n", a.paint(render.SuccessStyle, "Renamed:"), rest)

	case "/model", "/m":
		if len(args) == 0 {
			r.printModels()
			return false, nil
		}
		model := args[0]
		if models := a.Sender.Models(); len(models) > 0 && !slices.Contains(models, model) {
			a.printf("%s %s is not in the gateway's model list\n", a.paint(render.WarningStyle, "[warn]"), model)
		}
		r.updateUI(func(ui *session.UiOptions) { ui.Model = model })
		a.printf("Model: %s\n", model)

	case "/mode":
		if len(args) != 1 || !session.ValidMode(strings.ToLower(args[0])) {
			return false, ErrInvalidValue("mode", rest, "/mode auto|chat|image|video")
		}
		mode := strings.ToLower(args[0])
		r.updateUI(func(ui *session.UiOptions) { ui.Mode = mode })
		a.printf("Mode: %s\n", mode)

	case "/stream":
		on, err := parseOnOff(args)
		if err != nil {
			return false, err
		}
		r.updateUI(func(ui *session.UiOptions) { ui.Stream = on })
		a.printf("Streaming: %s\n", onOff(on))

	case "/image":
		return false, r.handleImage(args)

	case "/video":
		return false, r.handleVideo(args)

	case "/export":
		return false, r.exportActive(args)

	case "/reset", "/clear":
		if res := a.Sender.ClearCache(); !res.OK() {
			return false, NewCommandError("reset", "remove", "local state could not be cleared", res.Err)
		}

	default:
		return false, ErrInvalidValue("command", cmd, "/help")
	}
	return false, nil
}

func (r *REPL) handleImage(args []string) error {
	a := r.app
	if len(args) != 2 {
		return ErrInvalidValue("image option", strings.Join(args, " "), "/image n 2  or  /image size 16:9")
	}
	switch strings.ToLower(args[0]) {
	case "n":
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return ErrInvalidValue("image count", args[1], "/image n 2")
		}
		r.updateUI(func(ui *session.UiOptions) { ui.ImageN = n })
		a.printf("Images per request: %d\n", n)
	case "size":
		size := args[1]
		r.updateUI(func(ui *session.UiOptions) { ui.ImageSize = size })
		a.printf("Image size: %s\n", size)
	default:
		return ErrInvalidValue("image option", args[0], "/image n 2  or  /image size 16:9")
	}
	return nil
}

func (r *REPL) handleVideo(args []string) error {
	a := r.app
	if len(args) != 2 {
		return ErrInvalidValue("video option", strings.Join(args, " "), "/video ratio 16:9  or  /video length 10")
	}
	switch strings.ToLower(args[0]) {
	case "ratio":
		ratio := args[1]
		r.updateUI(func(ui *session.UiOptions) { ui.VideoRatio = ratio })
		a.printf("Video ratio: %s\n", ratio)
	case "length":
		secs, err := strconv.Atoi(strings.TrimSuffix(args[1], "s"))
		if err != nil || secs < 1 {
			return ErrInvalidValue("video length", args[1], "/video length 10")
		}
		r.updateUI(func(ui *session.UiOptions) { ui.VideoLength = secs })
		a.printf("Video length: %ds\n", secs)
	default:
		return ErrInvalidValue("video option", args[0], "/video ratio 16:9  or  /video length 10")
	}
	return nil
}

// exportActive writes the active thread to <id>.md or <id>.json in the
// working directory.
func (r *REPL) exportActive(args []string) error {
	a := r.app
	format := formatMarkdown
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}
	t, ok := a.Store.Active()
	if !ok {
		return session.ErrThreadNotFound
	}
	data, err := exportThread(t, format)
	if err != nil {
		return err
	}
	path := t.ID + "." + exportExtension(format)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return NewCommandError("export", "write", path, err)
	}
	a.printf("%s %s\n", a.paint(render.SuccessStyle, "Exported:"), path)
	return nil
}

func (r *REPL) updateUI(fn func(*session.UiOptions)) {
	r.app.Store.UpdateUI(fn)
	r.app.Store.Persist()
}

func (r *REPL) printModels() {
	a := r.app
	current := a.Store.UI().Model
	models := a.Sender.Models()
	if len(models) == 0 {
		a.printf("Model: %s (model list unavailable)\n", current)
		return
	}
	for _, m := range models {
		marker := "  "
		if m == current {
			marker = a.paint(render.ActiveMarkerStyle, "* ")
		}
		a.printf("%s%s\n", marker, m)
	}
}

func (r *REPL) printHelp() {
	a := r.app
	width := 0
	for _, h := range slashHelp {
		if len(h[0]) > width {
			width = len(h[0])
		}
	}
	a.printf("%s\n", a.paint(render.TitleStyle, "Commands"))
	for _, h := range slashHelp {
		a.printf("  %s  %s\n", a.paint(render.UserStyle, fmt.Sprintf("%-*s", width, h[0])), a.paint(render.DimStyle, h[1]))
	}
}

func parseOnOff(args []string) (bool, error) {
	if len(args) != 1 {
		return false, ErrInvalidValue("value", strings.Join(args, " "), "/stream on")
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, ErrInvalidValue("value", args[0], "/stream on")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
