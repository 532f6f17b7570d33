// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Persisted documents were historically written by a browser client that
// stored form values as strings ("6" rather than 6) and omitted fields
// freely. The loose types below accept either shape and never fail, so one
// odd field cannot discard a whole thread.

// =============================================================================
// DOCUMENT SHAPES
// =============================================================================

// document is the current on-disk shape under StateKey.
type document struct {
	SavedAt        int64     `json:"savedAt"`
	Threads        []*Thread `json:"threads"`
	ActiveThreadID string    `json:"activeThreadId"`
	UI             UiOptions `json:"ui"`
}

type rawDocument struct {
	Threads        json.RawMessage `json:"threads"`
	ActiveThreadID looseString     `json:"activeThreadId"`
	UI             json.RawMessage `json:"ui"`
}

type rawThread struct {
	ID        looseString     `json:"id"`
	Title     looseString     `json:"title"`
	CreatedAt looseInt        `json:"createdAt"`
	UpdatedAt looseInt        `json:"updatedAt"`
	AutoNamed looseBool       `json:"autoNamed"`
	Messages  json.RawMessage `json:"messages"`
}

type rawMessage struct {
	Role    looseString `json:"role"`
	Content looseString `json:"content"`
	TS      looseInt    `json:"ts"`
}

// legacyDocument is the flat pre-thread shape under LegacyStateKey.
type legacyDocument struct {
	ChatHistory json.RawMessage `json:"chatHistory"`
	UI          json.RawMessage `json:"ui"`
}

// =============================================================================
// LOOSE SCALARS
// =============================================================================

type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err == nil {
		*s = looseString(v)
	}
	return nil
}

type looseInt int64

func (n *looseInt) UnmarshalJSON(b []byte) error {
	text := strings.TrimSpace(string(bytes.Trim(b, `"`)))
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		*n = looseInt(f)
	}
	return nil
}

type looseBool bool

func (v *looseBool) UnmarshalJSON(b []byte) error {
	switch text := strings.TrimSpace(string(b)); text {
	case "true":
		*v = true
	case "false", "null", `""`, "0":
		*v = false
	default:
		// Non-empty strings and non-zero numbers are truthy
		*v = looseBool(text != "")
	}
	return nil
}

// =============================================================================
// DECODING
// =============================================================================

// decodeArray splits a JSON array into its elements. Anything else yields nil.
func decodeArray(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

// decodeMessages converts raw messages, filling role and timestamp defaults.
func decodeMessages(raw json.RawMessage, now int64, keepTS bool) []Message {
	items := decodeArray(raw)
	msgs := make([]Message, 0, len(items))
	for _, item := range items {
		var rm rawMessage
		if err := json.Unmarshal(item, &rm); err != nil {
			continue
		}
		m := Message{Role: string(rm.Role), Content: string(rm.Content), TS: int64(rm.TS)}
		if m.Role == "" {
			m.Role = RoleAssistant
		}
		if !keepTS || m.TS == 0 {
			m.TS = now
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// mergeUI overlays the fields present in raw onto base.
func mergeUI(base UiOptions, raw json.RawMessage) UiOptions {
	if len(raw) == 0 {
		return base
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return base
	}

	str := func(key string, dst *string) {
		if v, ok := fields[key]; ok {
			var s looseString
			if string(v) != "null" {
				_ = s.UnmarshalJSON(v)
				*dst = string(s)
			}
		}
	}
	num := func(key string, dst *int) {
		if v, ok := fields[key]; ok {
			var n looseInt
			_ = n.UnmarshalJSON(v)
			if n > 0 {
				*dst = int(n)
			}
		}
	}

	str("model", &base.Model)
	var mode string
	str("mode", &mode)
	if ValidMode(mode) {
		base.Mode = mode
	}
	if v, ok := fields["stream"]; ok && string(v) != "null" {
		var b looseBool
		_ = b.UnmarshalJSON(v)
		base.Stream = bool(b)
	}
	num("imageN", &base.ImageN)
	str("imageSize", &base.ImageSize)
	str("videoRatio", &base.VideoRatio)
	num("videoLength", &base.VideoLength)
	return base
}
