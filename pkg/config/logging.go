package config

import "fmt"

// LoggingConfig configures the structured logger.
//
// Example:
//
//	logging:
//	  level: info
//	  format: simple
//	  output: stderr
type LoggingConfig struct {
	// Level: debug, info, warn, or error. Default: info.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format: "simple" (level + message), "verbose" (adds a timestamp),
	// or "json". Default: simple.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// Output: "stdout", "stderr", or a file path. Default: stderr.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// SetDefaults applies logging defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate checks the logging settings.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}

	// Unrecognized formats fall back to simple at init time.
	return nil
}
