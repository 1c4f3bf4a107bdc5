// Package config defines the YAML configuration schema for a drover
// deployment and the loader that reads it from a file or a remote KV store.
//
// Loading runs a fixed pipeline: read bytes from the provider, parse YAML
// (JSON accepted), expand ${VAR} and ${VAR:-default} references, decode with
// mapstructure, apply defaults, validate. Watch re-runs the pipeline when
// the provider signals a change.
package config

import (
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/drover-ai/drover/pkg/observability"
)

// Config is the root of a deployment: model providers, agents, tool
// sources, session persistence, and the serving surface.
type Config struct {
	// LLMs maps provider names to their connection settings.
	LLMs map[string]LLMConfig `yaml:"llms,omitempty" json:"llms,omitempty"`

	// Agents maps agent names to their definitions.
	Agents map[string]AgentConfig `yaml:"agents,omitempty" json:"agents,omitempty"`

	// RemoteOps connects a remote operation registry whose operations are
	// compiled into tools.
	RemoteOps *RemoteOpsConfig `yaml:"remote_ops,omitempty" json:"remote_ops,omitempty"`

	// MCP maps MCP server names to their endpoints.
	MCP map[string]MCPServerConfig `yaml:"mcp,omitempty" json:"mcp,omitempty"`

	// Plugins configures external tool plugin discovery.
	Plugins PluginConfig `yaml:"plugins,omitempty" json:"plugins,omitempty"`

	// Session selects the session store.
	Session SessionConfig `yaml:"session,omitempty" json:"session,omitempty"`

	// Server configures the HTTP surface.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Logging configures slog output.
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`

	// Observability configures metrics and tracing.
	Observability observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// SetDefaults applies defaults across the whole tree.
func (c *Config) SetDefaults() {
	for name, llm := range c.LLMs {
		llm.SetDefaults()
		c.LLMs[name] = llm
	}
	for name, agent := range c.Agents {
		agent.SetDefaults()
		c.Agents[name] = agent
	}
	if c.RemoteOps != nil {
		c.RemoteOps.SetDefaults()
	}
	for name, srv := range c.MCP {
		srv.SetDefaults()
		c.MCP[name] = srv
	}
	c.Session.SetDefaults()
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks the whole tree and the references between its parts.
func (c *Config) Validate() error {
	for name, llm := range c.LLMs {
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("llm %q: %w", name, err)
		}
	}

	for name, agent := range c.Agents {
		if err := agent.Validate(); err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
		if agent.LLM != "" {
			if _, ok := c.LLMs[agent.LLM]; !ok {
				return fmt.Errorf("agent %q references unknown llm %q", name, agent.LLM)
			}
		}
		if agent.Relevance.Enabled && agent.Relevance.LLM != "" {
			if _, ok := c.LLMs[agent.Relevance.LLM]; !ok {
				return fmt.Errorf("agent %q relevance filter references unknown llm %q", name, agent.Relevance.LLM)
			}
		}
	}

	if c.RemoteOps != nil {
		if err := c.RemoteOps.Validate(); err != nil {
			return fmt.Errorf("remote_ops: %w", err)
		}
	}
	for name, srv := range c.MCP {
		if err := srv.Validate(); err != nil {
			return fmt.Errorf("mcp %q: %w", name, err)
		}
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// Schema returns the JSON schema of the configuration for editor tooling
// and the `drover schema` command.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
	}
	return r.Reflect(&Config{})
}

// BoolPtr returns a pointer to b. Config fields use *bool where false is a
// meaningful user choice distinct from unset.
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
