package config

import (
	"fmt"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Host to bind. Empty means all interfaces.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port to listen on.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Auth guards the API routes.
	Auth AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`

	// MaxConcurrent bounds agent sessions running at once. 0 means no bound.
	MaxConcurrent int `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`
}

// SetDefaults applies server defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	c.Auth.SetDefaults()
}

// Validate checks the server settings.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

// AuthConfig configures bearer token validation. When disabled every
// request runs as an anonymous principal.
type AuthConfig struct {
	// Enabled turns token validation on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// JWKSURL serves the signing keys for RS256 tokens.
	JWKSURL string `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty"`

	// Secret validates HS256 tokens. Ignored when JWKSURL is set.
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`

	// Issuer to require in tokens. Empty skips the check.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`

	// Audience to require in tokens. Empty skips the check.
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`
}

// SetDefaults applies auth defaults.
func (c *AuthConfig) SetDefaults() {}

// Validate checks the auth settings.
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.JWKSURL == "" && c.Secret == "" {
		return fmt.Errorf("enabled auth requires jwks_url or secret")
	}
	return nil
}
