package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds static application configuration.
// Runtime-tunable capture/analysis behavior lives in the settings table,
// not here; config.json is read once at startup.
type Config struct {
	// ScreenshotsDir overrides where captured images are written.
	// Default: <baseDir>/screenshots. Screenshot rows always store paths
	// relative to this directory.
	ScreenshotsDir string `json:"screenshots_dir,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// AnthropicModel is the model used by the hosted "claude" provider.
	AnthropicModel string `json:"anthropic_model,omitempty"`

	// AnthropicKeyEnv names the environment variable holding the API key.
	// The key itself is never written to config.json.
	AnthropicKeyEnv string `json:"anthropic_key_env,omitempty"`

	// OllamaHost is the base URL of the local "ollama" provider.
	OllamaHost string `json:"ollama_host,omitempty"`

	// OllamaModel is the vision model requested from the local provider.
	OllamaModel string `json:"ollama_model,omitempty"`

	// OllamaAutostart starts a local model server when the "ollama"
	// provider is selected and the host is not responding.
	OllamaAutostart bool `json:"ollama_autostart,omitempty"`

	// OllamaBinary is an explicit path to the server binary.
	// Empty means look it up on PATH.
	OllamaBinary string `json:"ollama_binary,omitempty"`

	// WebBind and WebPort configure the dashboard server.
	WebBind string `json:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AnthropicModel:  "claude-sonnet-4-5-20250929",
		AnthropicKeyEnv: "ANTHROPIC_API_KEY",
		OllamaHost:      "http://127.0.0.1:11434",
		OllamaModel:     "qwen3-vl:8b",
		WebBind:         "127.0.0.1",
		WebPort:         8787,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.glimpse.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// ScreenshotsPath resolves the screenshots root for the given base directory.
func (c *Config) ScreenshotsPath(baseDir string) string {
	if c.ScreenshotsDir != "" {
		return c.ScreenshotsDir
	}
	return filepath.Join(baseDir, "screenshots")
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// File doesn't exist, return zero config
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.ScreenshotsDir = overlayString(base.ScreenshotsDir, overlay.ScreenshotsDir)
	result.AnthropicModel = overlayString(base.AnthropicModel, overlay.AnthropicModel)
	result.AnthropicKeyEnv = overlayString(base.AnthropicKeyEnv, overlay.AnthropicKeyEnv)
	result.OllamaHost = overlayString(base.OllamaHost, overlay.OllamaHost)
	result.OllamaModel = overlayString(base.OllamaModel, overlay.OllamaModel)
	result.OllamaBinary = overlayString(base.OllamaBinary, overlay.OllamaBinary)
	result.WebBind = overlayString(base.WebBind, overlay.WebBind)

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}
	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}
	result.WebPort = overlay.WebPort
	if result.WebPort == 0 {
		result.WebPort = base.WebPort
	}

	// Booleans: overlay wins if true, else base
	result.OllamaAutostart = base.OllamaAutostart || overlay.OllamaAutostart

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func overlayString(base, overlay string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
