package accounts

import (
	"fmt"
	"strings"
	"time"
)

// Config is the accounts config section.
type Config struct {
	JWTSecret         string        `json:"jwt_secret" yaml:"jwt_secret" env:"JWT_SECRET" desc:"HMAC secret for access and refresh tokens"`
	Issuer            string        `json:"issuer" yaml:"issuer" env:"ISSUER" default:"jadeed" desc:"JWT issuer claim"`
	AccessTTL         time.Duration `json:"access_ttl" yaml:"access_ttl" env:"ACCESS_TTL" default:"15m" desc:"Access token lifetime"`
	RefreshTTL        time.Duration `json:"refresh_ttl" yaml:"refresh_ttl" env:"REFRESH_TTL" default:"24h" desc:"Refresh token lifetime"`
	TokenTTL          time.Duration `json:"token_ttl" yaml:"token_ttl" env:"TOKEN_TTL" desc:"API token lifetime, 0 for no expiry"`
	BcryptCost        int           `json:"bcrypt_cost" yaml:"bcrypt_cost" env:"BCRYPT_COST" default:"12" desc:"bcrypt work factor"`
	MinPasswordLength int           `json:"min_password_length" yaml:"min_password_length" env:"MIN_PASSWORD_LENGTH" default:"8" desc:"Minimum password length"`
	DemoMode          bool          `json:"demo_mode" yaml:"demo_mode" env:"DEMO_MODE" desc:"Accept a placeholder JWT secret for local demos"`
}

// placeholderSecrets are sample values that must not sign real tokens.
var placeholderSecrets = map[string]bool{
	"change-me":  true,
	"changeme":   true,
	"secret":     true,
	"jwt-secret": true,
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrInvalidConfig
	}
	if placeholderSecrets[strings.ToLower(strings.TrimSpace(c.JWTSecret))] && !c.DemoMode {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrPlaceholderSecret)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return ErrInvalidConfig
	}
	if c.MinPasswordLength < 1 {
		return ErrInvalidConfig
	}
	return nil
}
