// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway is the HTTP client for the chat-completion gateway.
//
// It speaks the OpenAI-compatible surface the gateway exposes: model
// listing, chat completions (plain and streamed) and image generation.
// Failures keep the raw response body so callers can classify them.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/grokchat/internal/logging"
	"github.com/jeranaias/grokchat/internal/request"
	"github.com/jeranaias/grokchat/internal/stream"
)

// Version is reported in the User-Agent header.
const Version = "0.1.0"

// Configuration constants for the gateway API.
const (
	// DefaultBaseURL is where a local gateway listens.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 120 * time.Second

	// DefaultRateLimit is the sustained outgoing request rate per second.
	DefaultRateLimit = 5.0

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

// API paths.
const (
	pathModels = "/v1/models"
	pathChat   = "/v1/chat/completions"
	pathImages = "/v1/images/generations"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrMalformedResponse marks a 2xx body that is not valid JSON.
var ErrMalformedResponse = errors.New("malformed gateway response")

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
}

// APIError is a non-2xx gateway response.
type APIError struct {
	Status  int
	Code    string
	Type    string
	Message string
	Body    string
}

// Error returns the raw body, or a status line when the body is empty.
func (e *APIError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("请求失败(%d)", e.Status)
}

// ResponseBody returns the raw body for error classification.
func (e *APIError) ResponseBody() string {
	return e.Body
}

// newAPIError decodes what it can from body. Bodies that are not JSON only
// populate Status and Body.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: string(body)}
	var parsed struct {
		Error struct {
			Code    any    `json:"code"`
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error.Code != nil {
			apiErr.Code = fmt.Sprint(parsed.Error.Code)
		}
		apiErr.Type = parsed.Error.Type
		apiErr.Message = parsed.Error.Message
	}
	return apiErr
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one gateway.
type Client struct {
	baseURL      string
	apiKey       string
	userAgent    string
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger

	// proxy is consulted on every request so it can change while the
	// client is in use.
	proxy atomic.Pointer[proxySelector]
}

type proxySelector struct {
	fn func(*http.Request) (*url.URL, error)
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL, apiKey string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		apiKey:    strings.TrimSpace(apiKey),
		userAgent: "grokchat/" + Version,
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		logger:    logging.Discard(),
	}
	c.proxy.Store(&proxySelector{fn: http.ProxyFromEnvironment})

	transport := newTransport(c.proxyFor)
	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   DefaultTimeout,
	}
	// No timeout for streaming - controlled via context
	c.streamClient = &http.Client{Transport: transport}
	return c
}

func (c *Client) proxyFor(req *http.Request) (*url.URL, error) {
	return c.proxy.Load().fn(req)
}

func newTransport(proxy func(*http.Request) (*url.URL, error)) *http.Transport {
	return &http.Transport{
		Proxy:               proxy,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// WithTimeout sets the timeout for non-streaming requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithProxy routes requests through proxy (see NormalizeProxyURL). It is
// safe to call while requests are in flight; an invalid proxy leaves the
// current one in place.
func (c *Client) WithProxy(proxy string) (*Client, error) {
	fn, err := ProxyFunc(proxy)
	if err != nil {
		return c, err
	}
	c.proxy.Store(&proxySelector{fn: fn})
	return c, nil
}

// WithRateLimit sets the sustained request rate. Zero or less disables
// throttling.
func (c *Client) WithRateLimit(perSecond float64) *Client {
	if perSecond <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return c
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	return c
}

// WithUserAgent overrides the User-Agent header.
func (c *Client) WithUserAgent(ua string) *Client {
	if ua != "" {
		c.userAgent = ua
	}
	return c
}

// WithLogger sets the request logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// WithHTTPClient replaces both underlying HTTP clients. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// SetAPIKey replaces the bearer credential.
func (c *Client) SetAPIKey(key string) {
	c.apiKey = strings.TrimSpace(key)
}

// BaseURL returns the gateway base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// setHeaders sets the required headers for gateway requests.
func (c *Client) setHeaders(req *http.Request, requestID string) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
func readResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return data, nil
}

// send performs one request and returns the open response on 2xx. Any other
// status is drained into an *APIError.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, payload any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = logging.NewRequestID()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, requestID)

	log := c.logger.With("request_id", requestID)
	start := time.Now()
	resp, err := hc.Do(req)
	latency := time.Since(start)
	if err != nil {
		log.Warn("gateway request failed", "method", method, "path", path, "latency", latency, "error", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	log.Debug("gateway request", "method", method, "path", path, "status", resp.StatusCode, "latency", latency)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, readErr := readResponse(resp.Body)
		if readErr != nil {
			data = nil
		}
		log.Warn("gateway error response", "path", path, "status", resp.StatusCode)
		return nil, newAPIError(resp.StatusCode, data)
	}
	return resp, nil
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// ListModels returns the ids of the models the gateway serves.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.send(ctx, c.httpClient, http.MethodGet, pathModels, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}
	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return models, nil
}

// Chat performs a non-streaming completion. It returns the first choice's
// content, or the raw body when that is missing. A body that is not JSON
// fails with ErrMalformedResponse.
func (c *Client) Chat(ctx context.Context, payload request.ChatPayload) (string, error) {
	payload.Stream = false
	resp, err := c.send(ctx, c.httpClient, http.MethodPost, pathChat, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp.Body)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", malformed(err)
	}
	if len(parsed.Choices) > 0 && parsed.Choices[0].Message.Content != "" {
		return parsed.Choices[0].Message.Content, nil
	}
	return string(data), nil
}

// ChatStream performs a streamed completion, calling onProgress with the
// accumulated answer after every delta.
func (c *Client) ChatStream(ctx context.Context, payload request.ChatPayload, onProgress func(string)) (string, error) {
	payload.Stream = true
	resp, err := c.send(ctx, c.streamClient, http.MethodPost, pathChat, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, stats, err := stream.AssembleWithStats(io.LimitReader(resp.Body, MaxResponseSize), onProgress)
	if stats.Skipped > 0 {
		c.logger.Warn("skipped malformed stream events", "count", stats.Skipped, "deltas", stats.Deltas)
	}
	return text, err
}

// Images generates images and returns them as Markdown image lines. When the
// response carries no URLs the raw body is returned. A body that is not JSON
// fails with ErrMalformedResponse.
func (c *Client) Images(ctx context.Context, payload request.ImagePayload) (string, error) {
	resp, err := c.send(ctx, c.httpClient, http.MethodPost, pathImages, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp.Body)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", malformed(err)
	}
	var urls []string
	for _, item := range parsed.Data {
		if item.URL != "" {
			urls = append(urls, item.URL)
		}
	}
	return request.ImageAnswer(urls, string(data)), nil
}
