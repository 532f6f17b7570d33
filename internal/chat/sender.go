// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives one conversation turn: it records the prompt, calls
// the gateway through the retry loop, records the answer or the failure, and
// names new threads.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/grokchat/internal/logging"
	"github.com/jeranaias/grokchat/internal/namer"
	"github.com/jeranaias/grokchat/internal/notify"
	"github.com/jeranaias/grokchat/internal/request"
	"github.com/jeranaias/grokchat/internal/retry"
	"github.com/jeranaias/grokchat/internal/session"
	"github.com/jeranaias/grokchat/internal/storage"
)

// User-facing notices.
const (
	MsgEmptyPrompt  = "提示词不能为空"
	MsgCacheCleared = "已清空本地缓存"
	MsgModelsFailed = "模型加载失败"
)

// Sentinel errors.
var (
	// ErrBusy is returned when a send is already in flight.
	ErrBusy = errors.New("a request is already in progress")

	// ErrNoCredential means the user declined to provide an API key.
	ErrNoCredential = errors.New("no API key provided")

	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("empty prompt")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Gateway is the subset of the gateway client the sender calls.
type Gateway interface {
	ListModels(ctx context.Context) ([]string, error)
	Chat(ctx context.Context, payload request.ChatPayload) (string, error)
	ChatStream(ctx context.Context, payload request.ChatPayload, onProgress func(string)) (string, error)
	Images(ctx context.Context, payload request.ImagePayload) (string, error)
}

// keySetter is implemented by gateways that accept a credential after
// construction.
type keySetter interface {
	SetAPIKey(key string)
}

// View receives the growing text of a streamed answer.
type View interface {
	Progress(text string)
}

// ViewFunc adapts a function to View.
type ViewFunc func(text string)

// Progress calls f.
func (f ViewFunc) Progress(text string) { f(text) }

// CredentialFunc resolves the API key. An empty key with a nil error means
// the user has none.
type CredentialFunc func(ctx context.Context) (string, error)

// Reply is the outcome of a successful send.
type Reply struct {
	ThreadID string
	// DisplayRole tells the view how the answer was produced.
	DisplayRole string
	Content     string
}

// =============================================================================
// SENDER
// =============================================================================

// Sender owns the send flow for one store.
type Sender struct {
	store      *session.Store
	gateway    Gateway
	notifier   notify.Notifier
	retryOpts  []retry.Option
	namer      *namer.Namer
	credential CredentialFunc
	logger     *slog.Logger

	busy atomic.Bool
	// naming tracks background auto-naming so short-lived callers can wait.
	naming sync.WaitGroup

	mu     sync.RWMutex
	models []string
}

// Option configures a Sender.
type Option func(*Sender)

// WithNotifier sets the user notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Sender) { s.notifier = n }
}

// WithRetry appends retry options used for every gateway call.
func WithRetry(opts ...retry.Option) Option {
	return func(s *Sender) { s.retryOpts = append(s.retryOpts, opts...) }
}

// WithNamer replaces the auto-namer.
func WithNamer(n *namer.Namer) Option {
	return func(s *Sender) { s.namer = n }
}

// WithCredentials sets the credential provider used by Bootstrap.
func WithCredentials(fn CredentialFunc) Option {
	return func(s *Sender) { s.credential = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// NewSender creates a Sender. The default namer titles threads through the
// same gateway, notifier and retry policy.
func NewSender(store *session.Store, gw Gateway, opts ...Option) *Sender {
	s := &Sender{store: store, gateway: gw}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.namer == nil {
		s.namer = &namer.Namer{
			Chat:     gw.Chat,
			Retry:    s.retryOpts,
			Notifier: s.notifier,
			Logger:   s.logger,
		}
	}
	return s
}

// Store returns the session store.
func (s *Sender) Store() *session.Store {
	return s.store
}

// Models returns the last model listing.
func (s *Sender) Models() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.models...)
}

// SetModels replaces the known model listing.
func (s *Sender) SetModels(models []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = append([]string(nil), models...)
}

// Busy reports whether a send is in flight.
func (s *Sender) Busy() bool {
	return s.busy.Load()
}

// Wait blocks until background auto-naming has finished.
func (s *Sender) Wait() {
	s.naming.Wait()
}

func (s *Sender) retryOptions() []retry.Option {
	return append([]retry.Option{retry.WithNotifier(s.notifier), retry.WithLogger(s.logger)}, s.retryOpts...)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Send runs one turn in the active thread. On failure the error text is
// recorded in the thread, shown through the notifier and returned.
func (s *Sender) Send(ctx context.Context, prompt string, view View) (Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		notify.Send(s.notifier, MsgEmptyPrompt, notify.KindError)
		return Reply{}, ErrEmptyPrompt
	}
	if !s.busy.CompareAndSwap(false, true) {
		return Reply{}, ErrBusy
	}
	defer s.busy.Store(false)

	thread := s.store.EnsureActiveThread()
	history := request.HistoryForAPI(thread.Messages)

	ui := s.store.UI()
	model := ui.Model
	if model == "" {
		model = request.DefaultModel
	}
	mode := request.ResolveMode(ui.Mode, model)

	if _, err := s.store.AppendMessage(thread.ID, session.RoleUser, prompt); err != nil {
		return Reply{}, err
	}
	s.store.Persist()

	ctx = logging.WithRequestID(ctx, logging.NewRequestID())
	log := s.logger.With("request_id", logging.RequestID(ctx), "thread_id", thread.ID, "model", model, "mode", mode)

	reply := Reply{ThreadID: thread.ID, DisplayRole: session.RoleAssistant}
	var call func(ctx context.Context) (string, error)
	switch {
	case mode == session.ModeImage:
		reply.DisplayRole = session.RoleAssistantImage
		payload := request.BuildImagePayload(model, prompt, ui)
		call = func(ctx context.Context) (string, error) { return s.gateway.Images(ctx, payload) }
	case ui.Stream:
		reply.DisplayRole = session.RoleAssistantStream
		payload := request.BuildChatPayload(model, true, prompt, history, ui)
		progress := func(string) {}
		if view != nil {
			progress = view.Progress
		}
		call = func(ctx context.Context) (string, error) { return s.gateway.ChatStream(ctx, payload, progress) }
	default:
		payload := request.BuildChatPayload(model, false, prompt, history, ui)
		call = func(ctx context.Context) (string, error) { return s.gateway.Chat(ctx, payload) }
	}

	answer, err := retry.Do(ctx, call, s.retryOptions()...)
	if err != nil {
		msg := err.Error()
		log.Warn("send failed", "error", err)
		if _, appendErr := s.store.AppendMessage(thread.ID, session.RoleError, msg); appendErr != nil {
			log.Warn("failed to record send error", "error", appendErr)
		} else {
			s.store.Persist()
		}
		notify.Send(s.notifier, msg, notify.KindError)
		return Reply{}, err
	}

	if _, err := s.store.AppendMessage(thread.ID, session.RoleAssistant, answer); err != nil {
		return Reply{}, err
	}
	s.store.Persist()
	reply.Content = answer
	log.Debug("send complete", "answer_runes", len([]rune(answer)))

	if t, ok := s.store.Thread(thread.ID); ok && t.UserMessageCount() == 1 {
		s.startNaming(ctx, thread.ID, prompt, ui.Model)
	}
	return reply, nil
}

// startNaming titles the thread in the background. It outlives the send's
// context cancellation but not the process. selected is the configured model
// without the request fallback, so an empty listing and no configured model
// keep the local title.
func (s *Sender) startNaming(ctx context.Context, threadID, prompt, model string) {
	models := s.Models()
	bg := context.WithoutCancel(ctx)
	s.naming.Add(1)
	go func() {
		defer s.naming.Done()
		s.namer.Name(bg, s.store, threadID, prompt, models, model)
	}()
}

// NewThread creates and activates an empty thread.
func (s *Sender) NewThread() session.Thread {
	t := s.store.CreateThread(session.DefaultTitle)
	s.store.Persist()
	return t
}

// ClearCache wipes every stored thread and leaves one fresh thread.
func (s *Sender) ClearCache() storage.Result {
	res := s.store.Reset()
	notify.Send(s.notifier, MsgCacheCleared, notify.KindSuccess)
	return res
}

// Bootstrap resolves the credential, loads the store and selects a model.
// ErrNoCredential is returned before any network activity.
func (s *Sender) Bootstrap(ctx context.Context) error {
	if s.credential != nil {
		key, err := s.credential(ctx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(key) == "" {
			return ErrNoCredential
		}
		if ks, ok := s.gateway.(keySetter); ok {
			ks.SetAPIKey(key)
		}
	}

	s.store.Load()
	s.store.EnsureActiveThread()

	models, err := s.gateway.ListModels(ctx)
	if err != nil {
		s.logger.Warn("model listing failed", "error", err)
		notify.Send(s.notifier, MsgModelsFailed, notify.KindError)
		return nil
	}
	s.SetModels(models)

	if preferred := request.PreferredModel(models, s.store.UI().Model); preferred != "" {
		s.store.UpdateUI(func(ui *session.UiOptions) { ui.Model = preferred })
	}
	s.store.Persist()
	return nil
}
