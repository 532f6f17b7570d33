// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// NormalizeProxyURL trims proxy and rewrites socks schemes to their
// proxy-side DNS variants (socks5h, socks4a). Anything else passes through.
func NormalizeProxyURL(proxy string) string {
	value := strings.TrimSpace(proxy)
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lower, "socks5://"):
		return "socks5h://" + value[len("socks5://"):]
	case strings.HasPrefix(lower, "socks4://"):
		return "socks4a://" + value[len("socks4://"):]
	default:
		return value
	}
}

// ProxyFunc returns an http.Transport proxy function that routes both http
// and https through proxy. An empty proxy falls back to the environment.
func ProxyFunc(proxy string) (func(*http.Request) (*url.URL, error), error) {
	normalized := NormalizeProxyURL(proxy)
	if normalized == "" {
		return http.ProxyFromEnvironment, nil
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q: missing scheme or host", normalized)
	}
	return http.ProxyURL(u), nil
}
