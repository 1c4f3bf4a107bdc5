package config

import (
	"fmt"
)

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreSQL    = "sql"
)

// SessionConfig selects where conversations persist.
type SessionConfig struct {
	// Store backend: "memory" or "sql".
	Store string `yaml:"store,omitempty" json:"store,omitempty"`

	// SQL settings, used when Store is "sql".
	SQL SQLConfig `yaml:"sql,omitempty" json:"sql,omitempty"`
}

// SetDefaults applies session defaults.
func (c *SessionConfig) SetDefaults() {
	if c.Store == "" {
		c.Store = SessionStoreMemory
	}
	c.SQL.SetDefaults()
}

// Validate checks the session settings.
func (c *SessionConfig) Validate() error {
	switch c.Store {
	case SessionStoreMemory:
		return nil
	case SessionStoreSQL:
		if err := c.SQL.Validate(); err != nil {
			return fmt.Errorf("sql: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported session store: %s (supported: memory, sql)", c.Store)
	}
}

// SQLConfig connects a relational session store.
type SQLConfig struct {
	// Driver: sqlite3, mysql, or postgres.
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`

	// DSN in the driver's native format.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`

	// MaxConns caps open connections.
	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty"`

	// MaxIdle caps idle connections.
	MaxIdle int `yaml:"max_idle,omitempty" json:"max_idle,omitempty"`
}

// SetDefaults applies SQL defaults.
func (c *SQLConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite3"
	}
	if c.DSN == "" && c.Driver == "sqlite3" {
		c.DSN = "drover.db"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
}

// Validate checks the SQL settings.
func (c *SQLConfig) Validate() error {
	switch c.Driver {
	case "sqlite3", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported driver: %s (supported: sqlite3, mysql, postgres)", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if c.MaxConns < 0 || c.MaxIdle < 0 {
		return fmt.Errorf("connection limits must not be negative")
	}
	return nil
}
