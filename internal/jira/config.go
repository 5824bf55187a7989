// Package jira connects users to their Atlassian Jira site through OAuth 2.0
// with PKCE and proxies the issue operations the product needs.
package jira

import (
	"errors"
	"strings"
	"time"
)

// Config is the jira config section.
//
// Example YAML configuration:
//
//	jira:
//	  client_id: "abc"
//	  client_secret: "awssm://jadeed/atlassian"
//	  redirect_uri: "https://app.example.com/api/jira/callback"
//	  scopes: "read:jira-work write:jira-work offline_access"
type Config struct {
	ClientID      string        `json:"client_id" yaml:"client_id" env:"CLIENT_ID" desc:"Atlassian OAuth client id"`
	ClientSecret  string        `json:"client_secret" yaml:"client_secret" env:"CLIENT_SECRET" desc:"Atlassian OAuth client secret, optional with PKCE"`
	RedirectURI   string        `json:"redirect_uri" yaml:"redirect_uri" env:"REDIRECT_URI" desc:"OAuth callback URL"`
	Scopes        string        `json:"scopes" yaml:"scopes" env:"SCOPES" default:"read:jira-work write:jira-work read:jira-user offline_access" desc:"Space separated OAuth scopes"`
	AuthURL       string        `json:"auth_url" yaml:"auth_url" env:"AUTH_URL" default:"https://auth.atlassian.com/authorize" desc:"Authorization endpoint"`
	TokenURL      string        `json:"token_url" yaml:"token_url" env:"TOKEN_URL" default:"https://auth.atlassian.com/oauth/token" desc:"Token endpoint"`
	APIBase       string        `json:"api_base" yaml:"api_base" env:"API_BASE" default:"https://api.atlassian.com" desc:"Atlassian API gateway"`
	RefreshLeeway time.Duration `json:"refresh_leeway" yaml:"refresh_leeway" env:"REFRESH_LEEWAY" default:"60s" desc:"Refresh access tokens this close to expiry"`
}

// ErrNotConfigured is returned when no client id is set.
var ErrNotConfigured = errors.New("atlassian client not configured")

// Configured reports whether the OAuth client is usable.
func (c *Config) Configured() bool {
	return c.ClientID != ""
}

// ScopeList splits Scopes on whitespace.
func (c *Config) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

func (c *Config) withDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = "https://auth.atlassian.com/authorize"
	}
	if c.TokenURL == "" {
		c.TokenURL = "https://auth.atlassian.com/oauth/token"
	}
	if c.APIBase == "" {
		c.APIBase = "https://api.atlassian.com"
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	if c.RefreshLeeway <= 0 {
		c.RefreshLeeway = 60 * time.Second
	}
}
