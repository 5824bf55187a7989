// Package aiengine proxies the agent session API so authenticated users can
// start and inspect autonomous coding sessions.
package aiengine

import (
	"errors"
	"strings"
)

// Config is the aiengine config section.
//
// Example YAML configuration:
//
//	aiengine:
//	  api_key: "awssm://jadeed/agent-sessions"
//	  base_url: "https://api.devin.ai/v1"
type Config struct {
	APIKey  string `json:"api_key" yaml:"api_key" env:"API_KEY" desc:"Bearer key for the session API"`
	BaseURL string `json:"base_url" yaml:"base_url" env:"BASE_URL" default:"https://api.devin.ai/v1" desc:"Session API base URL"`
}

var (
	// ErrInvalidConfigType is returned when the config section holds another type.
	ErrInvalidConfigType = errors.New("invalid config type for aiengine module")
	// ErrServiceUnavailable is returned when a required service is missing.
	ErrServiceUnavailable = errors.New("required service unavailable")
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("session API key not configured")
	// ErrPromptRequired is returned when a session is created without a prompt.
	ErrPromptRequired = errors.New("prompt is required")
)

func (c *Config) withDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.devin.ai/v1"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}
