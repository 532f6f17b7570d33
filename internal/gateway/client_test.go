// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/grokchat/internal/logging"
	"github.com/jeranaias/grokchat/internal/request"
	"github.com/jeranaias/grokchat/internal/retry"
	"github.com/jeranaias/grokchat/internal/session"
	"github.com/jeranaias/grokchat/internal/stream"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "sk-test").WithRateLimit(0)
}

func chatPayload(prompt string) request.ChatPayload {
	return request.BuildChatPayload("grok-4", false, prompt, nil, session.DefaultUiOptions())
}

// =============================================================================
// HEADERS
// =============================================================================

func TestClient_SetsHeaders(t *testing.T) {
	var got http.Header
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Write([]byte(`{"data":[]}`))
	})

	_, err := client.ListModels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "grokchat/"+Version, got.Get("User-Agent"))
	_, err = ulid.Parse(got.Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestClient_UsesContextRequestID(t *testing.T) {
	var got string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Request-ID")
		w.Write([]byte(`{"data":[]}`))
	})

	ctx := logging.WithRequestID(context.Background(), "req-fixed")
	_, err := client.ListModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, "req-fixed", got)
}

// =============================================================================
// ENDPOINTS
// =============================================================================

func TestListModels(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"list","data":[{"id":"grok-4"},{"id":""},{"id":"grok-imagine-1"}]}`))
	})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"grok-4", "grok-imagine-1"}, models)
}

func TestChat(t *testing.T) {
	var payload request.ChatPayload
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello there"}}]}`))
	})

	p := chatPayload("hi")
	p.Stream = true
	answer, err := client.Chat(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "hello there", answer)
	assert.False(t, payload.Stream, "Chat always sends stream=false")
	assert.Equal(t, "hi", payload.Messages[len(payload.Messages)-1].Content)
}

func TestChat_FallsBackToRawBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	answer, err := client.Chat(context.Background(), chatPayload("hi"))
	require.NoError(t, err)
	assert.Equal(t, `{"choices":[]}`, answer)
}

func TestChat_NonJSONBodyIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>bad gateway page</html>`))
	})

	answer, err := client.Chat(context.Background(), chatPayload("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Empty(t, answer)
}

func TestChatStream(t *testing.T) {
	var progress []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var p request.ChatPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.True(t, p.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, delta := range []string{"Hel", "lo", " 世界"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
			flusher.Flush()
		}
		io.WriteString(w, "data: not-json\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})

	answer, err := client.ChatStream(context.Background(), chatPayload("hi"), func(s string) {
		progress = append(progress, s)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello 世界", answer)
	assert.Equal(t, []string{"Hel", "Hello", "Hello 世界"}, progress)
}

func TestChatStream_EmptyStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: [DONE]\n\n")
	})

	answer, err := client.ChatStream(context.Background(), chatPayload("hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, stream.EmptyPlaceholder, answer)
}

func TestImages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		var p request.ImagePayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "url", p.ResponseFormat)
		w.Write([]byte(`{"data":[{"url":"https://img/1.png"},{"b64_json":"xx"},{"url":"https://img/2.png"}]}`))
	})

	opts := session.DefaultUiOptions()
	answer, err := client.Images(context.Background(), request.BuildImagePayload("grok-imagine-1", "fox", opts))
	require.NoError(t, err)
	assert.Equal(t, "![image-1](https://img/1.png)\n![image-2](https://img/2.png)", answer)
}

func TestImages_NoURLsReturnsRaw(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})

	answer, err := client.Images(context.Background(), request.ImagePayload{Model: "grok-imagine-1"})
	require.NoError(t, err)
	assert.Equal(t, `{"data":[]}`, answer)
}

func TestImages_NonJSONBodyIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>bad gateway page</html>`))
	})

	answer, err := client.Images(context.Background(), request.ImagePayload{Model: "grok-imagine-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Empty(t, answer)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestAPIError_KeepsRawBody(t *testing.T) {
	body := `{"error":{"code":"rate_limit_exceeded","type":"rate_limit_error","message":"No available tokens. Please try again later."}}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(body))
	})

	_, err := client.Chat(context.Background(), chatPayload("hi"))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "rate_limit_exceeded", apiErr.Code)
	assert.Equal(t, "rate_limit_error", apiErr.Type)
	assert.Equal(t, body, err.Error())
	assert.True(t, retry.IsNoTokenError(err))
}

func TestAPIError_EmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ChatStream(context.Background(), chatPayload("hi"), nil)
	require.Error(t, err)
	assert.Equal(t, "请求失败(502)", err.Error())
	assert.False(t, retry.IsNoTokenError(err))
}

func TestAPIError_NonJSONBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	})

	_, err := client.ListModels(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream exploded", apiErr.Error())
	assert.Empty(t, apiErr.Code)
}

func TestNewAPIError_NumericCode(t *testing.T) {
	apiErr := newAPIError(429, []byte(`{"error":{"code":429,"message":"slow"}}`))
	assert.Equal(t, "429", apiErr.Code)
	assert.Equal(t, "slow", apiErr.Message)
}

// =============================================================================
// RETRY INTEGRATION
// =============================================================================

func TestChat_RetriedThroughNoTokenErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":"rate_limit_exceeded","message":"No available tokens"}}`))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"finally"}}]}`))
	})

	noWait := func(context.Context, time.Duration) error { return nil }
	answer, err := retry.Do(context.Background(), func(ctx context.Context) (string, error) {
		return client.Chat(ctx, chatPayload("hi"))
	}, retry.WithSleeper(noWait))
	require.NoError(t, err)
	assert.Equal(t, "finally", answer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ListModels(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// =============================================================================
// PROXY
// =============================================================================

func TestNormalizeProxyURL(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"   ", ""},
		{"socks5://127.0.0.1:1080", "socks5h://127.0.0.1:1080"},
		{" socks4://10.0.0.1:1080 ", "socks4a://10.0.0.1:1080"},
		{"SOCKS5://user:pw@host:1", "socks5h://user:pw@host:1"},
		{"socks5h://already:1", "socks5h://already:1"},
		{"http://proxy:8080", "http://proxy:8080"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeProxyURL(tc.input))
		})
	}
}

func TestProxyFunc(t *testing.T) {
	fn, err := ProxyFunc("socks5://127.0.0.1:1080")
	require.NoError(t, err)

	for _, target := range []string{"http://example.com", "https://example.com"} {
		req, _ := http.NewRequest(http.MethodGet, target, nil)
		u, err := fn(req)
		require.NoError(t, err)
		assert.Equal(t, "socks5h://127.0.0.1:1080", u.String())
	}

	_, err = ProxyFunc("not a url")
	assert.Error(t, err)

	fn, err = ProxyFunc("")
	require.NoError(t, err)
	assert.NotNil(t, fn)
}

func TestWithProxy(t *testing.T) {
	client := NewClient("", "")
	assert.Equal(t, DefaultBaseURL, client.BaseURL())

	_, err := client.WithProxy("http://proxy:8080")
	assert.NoError(t, err)

	_, err = client.WithProxy("::bad")
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(client.BaseURL(), "http://"))
}

func TestWithProxy_AppliesToLaterRequests(t *testing.T) {
	var seen string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.String()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"grok-4"}]}`))
	}))
	defer proxy.Close()

	client := NewClient("http://gateway.invalid", "k")
	_, err := client.WithProxy(proxy.URL)
	require.NoError(t, err)

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"grok-4"}, models)
	assert.Equal(t, "http://gateway.invalid/v1/models", seen)
}
