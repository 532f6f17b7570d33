// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package namer titles a new thread from its first question.
//
// A small model is asked for a short title. Every failure path degrades to a
// title cut from the question itself, so a thread is always named once.
package namer

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/grokchat/internal/logging"
	"github.com/jeranaias/grokchat/internal/notify"
	"github.com/jeranaias/grokchat/internal/request"
	"github.com/jeranaias/grokchat/internal/retry"
	"github.com/jeranaias/grokchat/internal/session"
	"github.com/jeranaias/grokchat/internal/util"
)

// SystemPrompt instructs the model to answer with a bare title.
const SystemPrompt = "你是标题助手。请根据用户首条问题生成一个简短中文标题，限制在12个字以内，只返回标题文本，不要任何解释或标点包装。"

// Title length limits, in runes.
const (
	MaxModelTitle = 14
	MaxShortTitle = 18
	Ellipsis      = "…"
)

// preferredNamingModel is the cheapest model known to title well.
const preferredNamingModel = "grok-3-mini"

// titleStripper removes line breaks and quote wrapping from model output.
var titleStripper = strings.NewReplacer("\n", "", "\r", "", "`", "", `"`, "", "“", "", "”", "")

// ChatFunc performs one non-streaming chat completion.
type ChatFunc func(ctx context.Context, payload request.ChatPayload) (string, error)

// Namer generates thread titles.
type Namer struct {
	Chat     ChatFunc
	Retry    []retry.Option
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Name titles threadID once. It is a no-op when the thread is missing, empty
// or already auto-named. The chosen title is returned.
func (n *Namer) Name(ctx context.Context, store *session.Store, threadID, firstPrompt string, models []string, selected string) string {
	thread, ok := store.Thread(threadID)
	if !ok || thread.AutoNamed || len(thread.Messages) == 0 {
		return ""
	}

	title := ShortTitle(firstPrompt)
	if model := CandidateModel(models, selected); model != "" && n.Chat != nil {
		title = n.generate(ctx, model, firstPrompt, title)
	}

	if err := store.MarkAutoNamed(threadID, title); err != nil {
		n.logger(ctx).Debug("thread vanished before naming", "thread_id", threadID)
		return ""
	}
	store.Persist()
	return title
}

func (n *Namer) generate(ctx context.Context, model, prompt, fallback string) string {
	payload := request.ChatPayload{
		Model:  model,
		Stream: false,
		Messages: []request.ChatMessage{
			{Role: session.RoleSystem, Content: SystemPrompt},
			{Role: session.RoleUser, Content: prompt},
		},
	}

	opts := append([]retry.Option{retry.WithNotifier(n.Notifier)}, n.Retry...)
	raw, err := retry.Do(ctx, func(ctx context.Context) (string, error) {
		return n.Chat(ctx, payload)
	}, opts...)
	if err != nil {
		n.logger(ctx).Info("auto-naming failed, using prompt", "model", model, "error", err)
		return fallback
	}
	return CleanTitle(raw, fallback)
}

func (n *Namer) logger(ctx context.Context) *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return logging.FromContext(ctx)
}

// CandidateModel picks the naming model: exact grok-3-mini, else any id
// containing grok-3-mini, else any id containing mini, else selected.
func CandidateModel(models []string, selected string) string {
	for _, m := range models {
		if m == preferredNamingModel {
			return m
		}
	}
	for _, m := range models {
		if strings.Contains(m, preferredNamingModel) {
			return m
		}
	}
	for _, m := range models {
		if strings.Contains(m, "mini") {
			return m
		}
	}
	return selected
}

// CleanTitle strips wrapping from a model-generated title and bounds its
// length. An empty result yields fallback.
func CleanTitle(raw, fallback string) string {
	title := strings.TrimSpace(titleStripper.Replace(norm.NFC.String(raw)))
	if title == "" {
		return fallback
	}
	return util.TruncateRunes(title, MaxModelTitle, Ellipsis)
}

// ShortTitle derives a title from text: whitespace collapsed, at most
// MaxShortTitle runes, or the default title when nothing is left.
func ShortTitle(text string) string {
	cleaned := util.CollapseSpace(norm.NFC.String(text))
	if cleaned == "" {
		return session.DefaultTitle
	}
	return util.TruncateRunes(cleaned, MaxShortTitle, Ellipsis)
}
