// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Gateway error shape markers.
const (
	codeRateLimitExceeded = "rate_limit_exceeded"
	typeRateLimitError    = "rate_limit_error"

	hintNoTokens   = "no available tokens"
	hintTryLater   = "please try again later"
	defaultFailure = "请求失败"
)

// apiError holds the fields of a gateway error body. Values of the wrong
// JSON type are treated as absent.
type apiError struct {
	Code    string
	Type    string
	Message string
}

func parseAPIError(msg string) (apiError, bool) {
	var body map[string]any
	if err := json.Unmarshal([]byte(msg), &body); err != nil {
		return apiError{}, false
	}
	fields, ok := body["error"].(map[string]any)
	if !ok {
		return apiError{}, true
	}
	str := func(key string) string {
		switch v := fields[key].(type) {
		case string:
			return v
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	}
	return apiError{Code: str("code"), Type: str("type"), Message: str("message")}, true
}

// bodyError is implemented by errors that carry a raw response body.
type bodyError interface {
	ResponseBody() string
}

// messageOf returns the raw response body carried anywhere in err's chain,
// falling back to err's text.
func messageOf(err error) string {
	if err == nil {
		return ""
	}
	var be bodyError
	if errors.As(err, &be) {
		if body := be.ResponseBody(); body != "" {
			return body
		}
	}
	return err.Error()
}

// IsNoTokenError reports whether err is the gateway's transient
// token-exhaustion signal.
func IsNoTokenError(err error) bool {
	if err == nil {
		return false
	}
	return IsNoTokenMessage(messageOf(err))
}

// IsNoTokenMessage classifies a raw error message (usually a response body).
func IsNoTokenMessage(message string) bool {
	if e, ok := parseAPIError(message); ok {
		msg := strings.ToLower(e.Message)
		if (e.Code == codeRateLimitExceeded || e.Type == typeRateLimitError) &&
			(strings.Contains(msg, hintNoTokens) || strings.Contains(msg, hintTryLater)) {
			return true
		}
	}

	lower := strings.ToLower(message)
	return strings.Contains(lower, hintNoTokens) || strings.Contains(lower, codeRateLimitExceeded)
}

// ParseErrorMessage extracts the human-readable part of an error message:
// error.message from a JSON body, else the raw text, else "请求失败".
func ParseErrorMessage(message string) string {
	if e, ok := parseAPIError(message); ok && e.Message != "" {
		return e.Message
	}
	if message == "" {
		return defaultFailure
	}
	return message
}
