// Package github links users to GitHub, keeps a local copy of their
// repository list and runs AI code changes against those repositories.
package github

import (
	"errors"
	"strings"
	"time"
)

// Config is the github config section.
//
// Example YAML configuration:
//
//	github:
//	  client_id: "Iv1.abc"
//	  client_secret: "awssm://jadeed/github"
//	  redirect_uri: "https://api.example.com/api/github/callback"
//	  frontend_url: "https://app.example.com"
//	  sync_schedule: "@every 6h"
type Config struct {
	ClientID          string        `json:"client_id" yaml:"client_id" env:"CLIENT_ID" desc:"GitHub OAuth app client id"`
	ClientSecret      string        `json:"client_secret" yaml:"client_secret" env:"CLIENT_SECRET" desc:"GitHub OAuth app client secret"`
	RedirectURI       string        `json:"redirect_uri" yaml:"redirect_uri" env:"REDIRECT_URI" desc:"OAuth callback URL"`
	Scopes            string        `json:"scopes" yaml:"scopes" env:"SCOPES" default:"repo user" desc:"Space separated OAuth scopes"`
	FrontendURL       string        `json:"frontend_url" yaml:"frontend_url" env:"FRONTEND_URL" default:"http://localhost:3000" desc:"Where the callback sends the browser"`
	AuthURL           string        `json:"auth_url" yaml:"auth_url" env:"AUTH_URL" default:"https://github.com/login/oauth/authorize" desc:"Authorization endpoint"`
	TokenURL          string        `json:"token_url" yaml:"token_url" env:"TOKEN_URL" default:"https://github.com/login/oauth/access_token" desc:"Token endpoint"`
	APIBase           string        `json:"api_base" yaml:"api_base" env:"API_BASE" default:"https://api.github.com" desc:"REST API base URL"`
	SyncSchedule      string        `json:"sync_schedule" yaml:"sync_schedule" env:"SYNC_SCHEDULE" default:"@every 6h" desc:"Cron spec for repository resync, empty disables it"`
	AgentCommand      string        `json:"agent_command" yaml:"agent_command" env:"AGENT_COMMAND" default:"codex exec --full-auto" desc:"Coding agent command; the prompt is appended as the last argument"`
	AgentTimeout      time.Duration `json:"agent_timeout" yaml:"agent_timeout" env:"AGENT_TIMEOUT" default:"30m" desc:"Maximum agent run time"`
	CommitAuthorName  string        `json:"commit_author_name" yaml:"commit_author_name" env:"COMMIT_AUTHOR_NAME" default:"Jadeed AI" desc:"Author of AI commits"`
	CommitAuthorEmail string        `json:"commit_author_email" yaml:"commit_author_email" env:"COMMIT_AUTHOR_EMAIL" default:"ai@jadeed.dev" desc:"Author email of AI commits"`
}

// ErrNotConfigured is returned when no client id is set.
var ErrNotConfigured = errors.New("github client not configured")

// Configured reports whether the OAuth app is usable.
func (c *Config) Configured() bool {
	return c.ClientID != ""
}

// ScopeList splits Scopes on whitespace or commas.
func (c *Config) ScopeList() []string {
	return strings.FieldsFunc(c.Scopes, func(r rune) bool { return r == ' ' || r == ',' })
}

func (c *Config) withDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = "https://github.com/login/oauth/authorize"
	}
	if c.TokenURL == "" {
		c.TokenURL = "https://github.com/login/oauth/access_token"
	}
	if c.APIBase == "" {
		c.APIBase = "https://api.github.com"
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	if c.AgentCommand == "" {
		c.AgentCommand = "codex exec --full-auto"
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = 30 * time.Minute
	}
	if c.CommitAuthorName == "" {
		c.CommitAuthorName = "Jadeed AI"
	}
	if c.CommitAuthorEmail == "" {
		c.CommitAuthorEmail = "ai@jadeed.dev"
	}
}
