// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/grokchat/internal/gateway"
	"github.com/jeranaias/grokchat/internal/logging"
	"github.com/jeranaias/grokchat/internal/session"
	"github.com/jeranaias/grokchat/internal/storage"
	"github.com/jeranaias/grokchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete grokchat configuration.
type Config struct {
	Gateway GatewayConfig `toml:"gateway" json:"gateway"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Retry   RetryConfig   `toml:"retry" json:"retry"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// GatewayConfig contains the gateway connection settings.
type GatewayConfig struct {
	// BaseURL is the gateway root; API paths are appended to it
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey is sent as a bearer token
	APIKey string `toml:"api_key" json:"api_key"`
	// TimeoutSeconds bounds non-streaming requests (0 = client default)
	TimeoutSeconds int `toml:"timeout_seconds" json:"timeout_seconds"`
	// Proxy routes all requests (http, https, socks5, socks4)
	Proxy string `toml:"proxy" json:"proxy"`
	// RateLimit is the sustained outgoing request rate per second (0 = unlimited)
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	// UserAgent overrides the default User-Agent
	UserAgent string `toml:"user_agent" json:"user_agent"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "file", "sqlite" or "memory"
	Backend string `toml:"backend" json:"backend"`
	// Dir holds the stored state (empty = config directory)
	Dir string `toml:"dir" json:"dir"`
}

// UIConfig holds the request options used until the user changes them.
type UIConfig struct {
	Model       string `toml:"model" json:"model"`
	Mode        string `toml:"mode" json:"mode"`
	Stream      bool   `toml:"stream" json:"stream"`
	ImageN      int    `toml:"image_n" json:"image_n"`
	ImageSize   string `toml:"image_size" json:"image_size"`
	VideoRatio  string `toml:"video_ratio" json:"video_ratio"`
	VideoLength int    `toml:"video_length" json:"video_length"`
	// Render is "markdown" (glamour) or "raw" (highlighted code only)
	Render string `toml:"render" json:"render"`
}

// RetryConfig controls the token-exhaustion retry loop.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts" json:"max_attempts"`
	IntervalMs  int `toml:"interval_ms" json:"interval_ms"`
}

// LoggingConfig controls the file logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `toml:"level" json:"level"`
	// Format is text or json
	Format string `toml:"format" json:"format"`
	// File is the log path (empty = ~/.grokchat/grokchat.log)
	File string `toml:"file" json:"file"`
}

// Render modes.
const (
	RenderMarkdown = "markdown"
	RenderRaw      = "raw"
)

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	ui := session.DefaultUiOptions()
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:        gateway.DefaultBaseURL,
			TimeoutSeconds: int(gateway.DefaultTimeout / time.Second),
			RateLimit:      gateway.DefaultRateLimit,
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
		},
		UI: UIConfig{
			Model:       ui.Model,
			Mode:        ui.Mode,
			Stream:      ui.Stream,
			ImageN:      ui.ImageN,
			ImageSize:   ui.ImageSize,
			VideoRatio:  ui.VideoRatio,
			VideoLength: ui.VideoLength,
			Render:      RenderMarkdown,
		},
		Retry: RetryConfig{
			MaxAttempts: 12,
			IntervalMs:  1500,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: logging.FormatText,
		},
	}
}

// Options converts the UI section to session options.
func (u UIConfig) Options() session.UiOptions {
	return session.UiOptions{
		Model:       u.Model,
		Mode:        u.Mode,
		Stream:      u.Stream,
		ImageN:      u.ImageN,
		ImageSize:   u.ImageSize,
		VideoRatio:  u.VideoRatio,
		VideoLength: u.VideoLength,
	}
}

// Interval returns the retry wait as a duration.
func (r RetryConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}

// Timeout returns the request timeout as a duration.
func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// HomeEnv relocates the configuration directory.
const HomeEnv = "GROKCHAT_HOME"

// ConfigDir returns the grokchat configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".grokchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// StorageDir returns the resolved storage directory.
func (c *Config) StorageDir() (string, error) {
	if c.Storage.Dir != "" {
		return expandHome(c.Storage.Dir)
	}
	return ConfigDir()
}

// LogFile returns the resolved log file path.
func (c *Config) LogFile() (string, error) {
	if c.Logging.File != "" {
		return expandHome(c.Logging.File)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "grokchat.log"), nil
}

// HistoryFile returns the REPL line history path.
func HistoryFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}
	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}
	return finish(Default())
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// SetDefaults fills zero values that have no meaningful zero.
func (c *Config) SetDefaults() {
	defaults := Default()

	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		c.Gateway.BaseURL = defaults.Gateway.BaseURL
	}
	c.Gateway.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.Gateway.BaseURL), "/")

	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)

	if c.UI.Mode == "" {
		c.UI.Mode = defaults.UI.Mode
	}
	if c.UI.ImageSize == "" {
		c.UI.ImageSize = defaults.UI.ImageSize
	}
	if c.UI.VideoRatio == "" {
		c.UI.VideoRatio = defaults.UI.VideoRatio
	}
	if c.UI.Render == "" {
		c.UI.Render = defaults.UI.Render
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML atomically writes the configuration to a TOML file with 0600
// permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# grokchat configuration file")
	fmt.Fprintln(&buf, "# Generated by grokchat - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON atomically writes the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Gateway
	if u, err := url.Parse(c.Gateway.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("gateway.base_url", "must be an http(s) URL, got %q", c.Gateway.BaseURL)
	}
	if c.Gateway.TimeoutSeconds < 0 {
		add("gateway.timeout_seconds", "must not be negative")
	}
	if c.Gateway.RateLimit < 0 {
		add("gateway.rate_limit", "must not be negative")
	}
	if c.Gateway.Proxy != "" {
		if _, err := gateway.ProxyFunc(c.Gateway.Proxy); err != nil {
			add("gateway.proxy", "%v", err)
		}
	}

	// Storage
	switch c.Storage.Backend {
	case storage.BackendFile, storage.BackendSQLite, storage.BackendMemory:
	default:
		add("storage.backend", "must be file, sqlite or memory, got %q", c.Storage.Backend)
	}

	// UI
	if !session.ValidMode(c.UI.Mode) {
		add("ui.mode", "must be auto, chat, image or video, got %q", c.UI.Mode)
	}
	if c.UI.ImageN < 1 {
		add("ui.image_n", "must be at least 1")
	}
	if c.UI.VideoLength < 1 {
		add("ui.video_length", "must be at least 1 second")
	}
	if c.UI.Render != RenderMarkdown && c.UI.Render != RenderRaw {
		add("ui.render", "must be markdown or raw, got %q", c.UI.Render)
	}

	// Retry
	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts", "must be at least 1")
	}
	if c.Retry.IntervalMs < 0 {
		add("retry.interval_ms", "must not be negative")
	}

	// Logging
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if c.Logging.Format != logging.FormatText && c.Logging.Format != logging.FormatJSON {
		add("logging.format", "must be text or json, got %q", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GROKCHAT_BASE_URL: overrides gateway.base_url
//   - GROKCHAT_API_KEY: overrides gateway.api_key
//   - GROKCHAT_PROXY: overrides gateway.proxy
//   - GROKCHAT_MODEL: overrides ui.model
//   - GROKCHAT_STORAGE: overrides storage.backend
//   - GROKCHAT_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("GROKCHAT_BASE_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("GROKCHAT_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("GROKCHAT_PROXY"); v != "" {
		c.Gateway.Proxy = v
	}
	if v := os.Getenv("GROKCHAT_MODEL"); v != "" {
		c.UI.Model = v
	}
	if v := os.Getenv("GROKCHAT_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("GROKCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "ui.image_n").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "ui.image_n").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if key == "" || len(parts) == 0 {
		return reflect.Value{}, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes" || lower == "on")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.Gateway.APIKey != "" {
		safe.Gateway.APIKey = "[REDACTED]"
	}
	if safe.Gateway.Proxy != "" {
		if u, err := url.Parse(gateway.NormalizeProxyURL(safe.Gateway.Proxy)); err == nil && u.User != nil {
			u.User = url.User("REDACTED")
			safe.Gateway.Proxy = u.String()
		}
	}
	return safe
}

// String returns a string representation of the config for debugging.
// Secrets are redacted.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
