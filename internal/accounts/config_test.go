package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, ErrInvalidConfig},
		{"placeholder secret", func(c *Config) { c.JWTSecret = "change-me" }, ErrPlaceholderSecret},
		{"placeholder in other case", func(c *Config) { c.JWTSecret = " CHANGE-ME " }, ErrPlaceholderSecret},
		{"placeholder in demo mode", func(c *Config) { c.JWTSecret, c.DemoMode = "change-me", true }, nil},
		{"no access lifetime", func(c *Config) { c.AccessTTL = 0 }, ErrInvalidConfig},
		{"no password length", func(c *Config) { c.MinPasswordLength = 0 }, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
