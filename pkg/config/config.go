// Package config loads ScholarMate settings from defaults, an optional TOML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nstogner/scholarmate/pkg/model"
)

// LevelTrace is a custom log level for detailed HTTP traffic.
const LevelTrace = slog.Level(-8)

const (
	defaultModel   = "gemini-2.5-flash"
	defaultAddr    = ":8080"
	defaultLogFile = "scholarmate.log"
)

// Config holds every setting of the application.
type Config struct {
	// Model is the remote model used for new chat sessions.
	Model string `toml:"model"`
	// APIKey authenticates against the remote service. Usually set from the environment.
	APIKey string `toml:"api_key"`
	// Instructions is the persona bound to every session.
	Instructions string `toml:"instructions"`
	// EnableSearch binds the web search tool to every session.
	EnableSearch *bool `toml:"enable_search"`
	// BaseURL overrides the remote endpoint.
	BaseURL string `toml:"base_url"`

	LogLevel string `toml:"log_level"`
	// LogFile receives logs in chat mode, where the terminal belongs to the UI.
	LogFile string `toml:"log_file"`
	// Addr is the listen address of the HTTP server.
	Addr string `toml:"addr"`
}

// Default returns a Config with the built-in defaults.
func Default() Config {
	search := true
	return Config{
		Model:        defaultModel,
		Instructions: DefaultInstructions,
		EnableSearch: &search,
		LogLevel:     "INFO",
		LogFile:      defaultLogFile,
		Addr:         defaultAddr,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.Instructions != "" {
		c.Instructions = source.Instructions
	}
	if source.EnableSearch != nil {
		v := *source.EnableSearch
		c.EnableSearch = &v
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	if source.LogFile != "" {
		c.LogFile = source.LogFile
	}
	if source.Addr != "" {
		c.Addr = source.Addr
	}
}

// Load reads the TOML file at path, merges it over the defaults and applies
// environment overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		var loaded Config
		_, err := toml.DecodeFile(path, &loaded)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("Config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		default:
			cfg.Merge(&loaded)
		}
	}

	cfg.ApplyEnv()
	return &cfg, nil
}

// ApplyEnv overrides settings from the environment. API_KEY takes precedence
// over GEMINI_API_KEY.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// SearchEnabled reports whether the web search tool is bound to sessions.
func (c *Config) SearchEnabled() bool {
	return c.EnableSearch == nil || *c.EnableSearch
}

// ChatConfig returns the session configuration derived from c.
func (c *Config) ChatConfig() model.ChatConfig {
	cc := model.ChatConfig{
		Model:        c.Model,
		Instructions: c.Instructions,
	}
	if c.SearchEnabled() {
		cc.Tools = []model.Tool{model.ToolGoogleSearch}
	}
	return cc
}

// ParseLevel converts a level name into a slog.Level. Unknown names map to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
