package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// RemoteOpsConfig connects a remote operation registry. Operations listed
// there are compiled into tools at agent construction time.
type RemoteOpsConfig struct {
	// BaseURL of the registry service.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// ListPath is POSTed to enumerate operations.
	ListPath string `yaml:"list_path,omitempty" json:"list_path,omitempty"`

	// ExecutePath is POSTed to run an operation.
	ExecutePath string `yaml:"execute_path,omitempty" json:"execute_path,omitempty"`

	// Timeout covers one registry round trip.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// SetDefaults applies remote-ops defaults.
func (c *RemoteOpsConfig) SetDefaults() {
	if c.ListPath == "" {
		c.ListPath = "/operations/list"
	}
	if c.ExecutePath == "" {
		c.ExecutePath = "/operations/execute"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the registry settings.
func (c *RemoteOpsConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if !strings.HasPrefix(c.ListPath, "/") {
		return fmt.Errorf("list_path must start with /")
	}
	if !strings.HasPrefix(c.ExecutePath, "/") {
		return fmt.Errorf("execute_path must start with /")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// MCPServerConfig connects one MCP server over streamable HTTP.
type MCPServerConfig struct {
	// URL of the MCP endpoint.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Timeout covers initialize, list, and each tool call.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// SetDefaults applies MCP defaults.
func (c *MCPServerConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the MCP endpoint.
func (c *MCPServerConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// PluginConfig configures external tool plugin discovery.
type PluginConfig struct {
	// Paths to plugin executables.
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty"`
}
