// Package productmgmt implements the Vision → Initiative → Portfolio →
// Product → Feature planning hierarchy, its AI discovery conversations and
// the README documents generated from them.
package productmgmt

import (
	"errors"
	"strings"
)

// Chat providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the productmgmt config section.
//
// Example YAML configuration:
//
//	productmgmt:
//	  provider: "openai"
//	  api_key: "awssm://jadeed/openai#api_key"
//	  model: "gpt-4"
//	  temperature: 0.7
//	  prompts_file: "prompts.yaml"
//	  archive_bucket: "jadeed-documents"
type Config struct {
	Provider        string   `json:"provider" yaml:"provider" env:"PROVIDER" default:"openai" desc:"Chat backend: openai or gemini"`
	APIKey          string   `json:"api_key" yaml:"api_key" env:"API_KEY" desc:"Chat backend API key"`
	Model           string   `json:"model" yaml:"model" env:"MODEL" desc:"Chat model name, empty picks the provider default"`
	BaseURL         string   `json:"base_url" yaml:"base_url" env:"BASE_URL" default:"https://api.openai.com/v1" desc:"OpenAI compatible API base URL"`
	Temperature     *float64 `json:"temperature" yaml:"temperature" env:"TEMPERATURE" desc:"Sampling temperature for discovery chat, unset means 0.7"`
	MaxTokens       int      `json:"max_tokens" yaml:"max_tokens" env:"MAX_TOKENS" default:"1000" desc:"Reply token limit for discovery chat"`
	ReadmeMaxTokens int      `json:"readme_max_tokens" yaml:"readme_max_tokens" env:"README_MAX_TOKENS" default:"2000" desc:"Token limit for README generation"`
	PromptsFile     string   `json:"prompts_file" yaml:"prompts_file" env:"PROMPTS_FILE" desc:"YAML file overriding the system prompts"`
	ArchiveBucket   string   `json:"archive_bucket" yaml:"archive_bucket" env:"ARCHIVE_BUCKET" desc:"S3 bucket receiving saved documents, empty disables archiving"`
	ArchiveRegion   string   `json:"archive_region" yaml:"archive_region" env:"ARCHIVE_REGION" desc:"AWS region of the archive bucket"`
}

// ErrUnknownProvider is returned for an unsupported chat provider.
var ErrUnknownProvider = errors.New("unknown chat provider")

const defaultTemperature = 0.7

// defaultModels is the model used when none is configured.
var defaultModels = map[string]string{
	ProviderOpenAI: "gpt-4",
	ProviderGemini: "gemini-2.5-flash",
}

func (c *Config) withDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model = strings.TrimSpace(c.Model); c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Temperature == nil {
		t := defaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1000
	}
	if c.ReadmeMaxTokens <= 0 {
		c.ReadmeMaxTokens = 2000
	}
}
