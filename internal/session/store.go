// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/grokchat/internal/storage"
)

// Storage keys.
const (
	StateKey       = "grok2api_webui_threads_v1"
	LegacyStateKey = "grok2api_webui_state_v1"
)

// ErrThreadNotFound is returned when a thread id does not exist.
var ErrThreadNotFound = errors.New("thread not found")

// =============================================================================
// STORE
// =============================================================================

// Store is the single authoritative session model for one client.
type Store struct {
	mu sync.Mutex

	kv     *storage.Safe
	logger *slog.Logger
	clock  func() time.Time
	random func() string

	threads   []*Thread
	activeID  string
	ui        UiOptions
	defaultUI UiOptions
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithRand sets the source of 8-character id suffixes.
func WithRand(random func() string) Option {
	return func(s *Store) { s.random = random }
}

// WithLogger sets the logger used for skipped storage operations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithDefaultUI sets the options persisted ui is merged over.
func WithDefaultUI(ui UiOptions) Option {
	return func(s *Store) { s.defaultUI = ui }
}

// New creates a Store over kv. Call Load before use.
func New(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		clock:     time.Now,
		random:    randomSuffix,
		defaultUI: DefaultUiOptions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.kv = storage.NewSafe(kv, s.logger)
	s.ui = s.defaultUI
	return s
}

// =============================================================================
// LOAD
// =============================================================================

// Load migrates any legacy document and then reads the persisted state.
// A missing or corrupt document leaves an empty thread list.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.migrateLegacyLocked() {
		// Migration already loaded and merged the current document
		return
	}
	s.readStateLocked()
}

// readStateLocked replaces in-memory state with the persisted document.
func (s *Store) readStateLocked() {
	s.threads = nil
	s.activeID = ""
	s.ui = s.defaultUI

	data := s.kv.Get(StateKey)
	if data == nil {
		return
	}
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Debug("ignoring corrupt session state", "error", err)
		return
	}

	now := s.nowMs()
	for _, item := range decodeArray(doc.Threads) {
		var rt rawThread
		if err := json.Unmarshal(item, &rt); err != nil {
			continue
		}
		t := &Thread{
			ID:        string(rt.ID),
			Title:     string(rt.Title),
			CreatedAt: int64(rt.CreatedAt),
			UpdatedAt: int64(rt.UpdatedAt),
			AutoNamed: bool(rt.AutoNamed),
			Messages:  decodeMessages(rt.Messages, now, true),
		}
		if t.ID == "" {
			t.ID = "legacy_" + s.random()
		}
		if t.Title == "" {
			t.Title = DefaultTitle
		}
		if t.CreatedAt == 0 {
			t.CreatedAt = now
		}
		if t.UpdatedAt == 0 {
			t.UpdatedAt = now
		}
		s.threads = append(s.threads, t)
	}
	s.sortLocked()

	s.activeID = string(doc.ActiveThreadID)
	if s.findLocked(s.activeID) == nil {
		s.activeID = ""
		if len(s.threads) > 0 {
			s.activeID = s.threads[0].ID
		}
	}
	s.ui = mergeUI(s.defaultUI, doc.UI)
}

// MigrateLegacy converts a flat legacy history into one thread, then removes
// the legacy key. It reports whether a migration happened and is a no-op
// once the legacy key is gone.
func (s *Store) MigrateLegacy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.migrateLegacyLocked()
}

func (s *Store) migrateLegacyLocked() bool {
	data := s.kv.Get(LegacyStateKey)
	if data == nil {
		return false
	}
	var old legacyDocument
	if err := json.Unmarshal(data, &old); err != nil {
		s.logger.Debug("ignoring corrupt legacy state", "error", err)
		return false
	}
	now := s.nowMs()
	history := decodeMessages(old.ChatHistory, now, false)
	if len(history) == 0 {
		return false
	}

	// Merge into whatever the current key already holds instead of
	// overwriting it with the migrated thread alone.
	s.readStateLocked()
	if s.hasLegacyThreadLocked(history) {
		s.logger.Debug("legacy chat history already migrated")
		s.removeLegacyLocked()
		return false
	}
	t := s.createThreadLocked(LegacyTitle)
	t.Messages = history
	t.UpdatedAt = now
	s.sortLocked()
	s.ui = mergeUI(s.ui, old.UI)

	// Keep the legacy key until the merged state is safely written
	if res := s.persistLocked(); res.OK() {
		s.removeLegacyLocked()
	}
	s.logger.Info("migrated legacy chat history", "messages", len(history), "thread", t.ID)
	return true
}

func (s *Store) removeLegacyLocked() {
	if res := s.kv.Remove(LegacyStateKey); !res.OK() {
		s.logger.Warn("failed to remove legacy chat history", "error", res.Err)
	}
}

// hasLegacyThreadLocked reports whether a previous migration of history
// already landed in the current state. Timestamps are ignored since the
// legacy format has none.
func (s *Store) hasLegacyThreadLocked(history []Message) bool {
	for _, t := range s.threads {
		if t.Title != LegacyTitle || len(t.Messages) != len(history) {
			continue
		}
		same := true
		for i, m := range t.Messages {
			if m.Role != history[i].Role || m.Content != history[i].Content {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// =============================================================================
// THREAD OPERATIONS
// =============================================================================

// CreateThread adds a new empty thread at the head of the list and makes it
// active. An empty title becomes DefaultTitle.
func (s *Store) CreateThread(title string) Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createThreadLocked(title).clone()
}

func (s *Store) createThreadLocked(title string) *Thread {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	now := s.nowMs()

	id := "thread_" + s.random() + "_" + strconv.FormatInt(now, 10)
	for s.findLocked(id) != nil {
		id = "thread_" + s.random() + "_" + strconv.FormatInt(now, 10)
	}

	t := &Thread{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}
	s.threads = append([]*Thread{t}, s.threads...)
	s.activeID = id
	return t
}

// EnsureActiveThread returns the active thread, creating one when there is
// none or the active id is stale.
func (s *Store) EnsureActiveThread() Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureActiveLocked().clone()
}

func (s *Store) ensureActiveLocked() *Thread {
	if t := s.findLocked(s.activeID); t != nil {
		return t
	}
	return s.createThreadLocked(DefaultTitle)
}

// AppendMessage appends a message to the thread and moves it to the head of
// the list.
func (s *Store) AppendMessage(threadID, role, content string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(threadID)
	if t == nil {
		return Message{}, ErrThreadNotFound
	}
	now := s.nowMs()
	m := Message{Role: role, Content: content, TS: now}
	t.Messages = append(t.Messages, m)
	t.UpdatedAt = now
	s.sortLocked()
	return m, nil
}

// Rename sets a thread's title.
func (s *Store) Rename(threadID, title string) error {
	return s.retitle(threadID, title, false)
}

// MarkAutoNamed sets a thread's title and records that auto-naming ran.
func (s *Store) MarkAutoNamed(threadID, title string) error {
	return s.retitle(threadID, title, true)
}

func (s *Store) retitle(threadID, title string, auto bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(threadID)
	if t == nil {
		return ErrThreadNotFound
	}
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	t.Title = title
	if auto {
		t.AutoNamed = true
	}
	t.UpdatedAt = s.nowMs()
	s.sortLocked()
	return nil
}

// SetActive switches the active thread.
func (s *Store) SetActive(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(threadID) == nil {
		return ErrThreadNotFound
	}
	s.activeID = threadID
	return nil
}

// Find resolves a user reference to a thread: a 1-based position in the
// sorted list, an exact id, or a unique id prefix.
func (s *Store) Find(ref string) (Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(s.threads) {
			return s.threads[n-1].clone(), nil
		}
		return Thread{}, ErrThreadNotFound
	}
	if t := s.findLocked(ref); t != nil {
		return t.clone(), nil
	}
	var match *Thread
	for _, t := range s.threads {
		if ref != "" && strings.HasPrefix(t.ID, ref) {
			if match != nil {
				return Thread{}, ErrThreadNotFound
			}
			match = t
		}
	}
	if match == nil {
		return Thread{}, ErrThreadNotFound
	}
	return match.clone(), nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Persist writes the full state under StateKey. Failures are logged and
// reported in the Result, never raised.
func (s *Store) Persist() storage.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() storage.Result {
	threads := s.threads
	if threads == nil {
		threads = []*Thread{}
	}
	doc := document{
		SavedAt:        s.nowMs(),
		Threads:        threads,
		ActiveThreadID: s.activeID,
		UI:             s.ui,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		s.logger.Debug("session state not serializable", "error", err)
		return storage.Result{Op: "set", Key: StateKey, Err: err}
	}
	return s.kv.Set(StateKey, data)
}

// Reset removes all persisted and in-memory state and leaves one fresh
// thread active.
func (s *Store) Reset() storage.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv.Remove(StateKey)
	s.kv.Remove(LegacyStateKey)
	s.threads = nil
	s.activeID = ""
	s.createThreadLocked(DefaultTitle)
	return s.persistLocked()
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Threads returns a copy of all threads, most recently updated first.
func (s *Store) Threads() []Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Thread, len(s.threads))
	for i, t := range s.threads {
		out[i] = t.clone()
	}
	return out
}

// Thread returns a copy of the thread with id.
func (s *Store) Thread(id string) (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.findLocked(id)
	if t == nil {
		return Thread{}, false
	}
	return t.clone(), true
}

// Active returns a copy of the active thread, if any.
func (s *Store) Active() (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.findLocked(s.activeID)
	if t == nil {
		return Thread{}, false
	}
	return t.clone(), true
}

// ActiveID returns the active thread id ("" when none).
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// UI returns the current options.
func (s *Store) UI() UiOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ui
}

// SetUI replaces the current options.
func (s *Store) SetUI(ui UiOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ui = ui
}

// UpdateUI applies fn to the current options.
func (s *Store) UpdateUI(fn func(*UiOptions)) UiOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.ui)
	return s.ui
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) findLocked(id string) *Thread {
	if id == "" {
		return nil
	}
	for _, t := range s.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// sortLocked orders threads by UpdatedAt, newest first. Ties keep their
// current relative order.
func (s *Store) sortLocked() {
	sort.SliceStable(s.threads, func(i, j int) bool {
		return s.threads[i].UpdatedAt > s.threads[j].UpdatedAt
	})
}

func (s *Store) nowMs() int64 {
	return s.clock().UnixMilli()
}

// randomSuffix returns 8 base36 characters drawn from a random UUID.
func randomSuffix() string {
	id := uuid.New()
	v := binary.BigEndian.Uint64(id[:8])
	out := strconv.FormatUint(v, 36)
	if len(out) < 8 {
		out = strings.Repeat("0", 8-len(out)) + out
	}
	return out[len(out)-8:]
}
