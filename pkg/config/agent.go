package config

import (
	"fmt"
)

// AgentConfig defines one agent: which model it talks to, which language it
// speaks, what it pursues, and which tools it may use.
type AgentConfig struct {
	// LLM names an entry in the llms map. Required.
	LLM string `yaml:"llm,omitempty" json:"llm,omitempty"`

	// Language selects the prompt language variant.
	Language string `yaml:"language,omitempty" json:"language,omitempty" jsonschema:"enum=natural,enum=jsonblock,enum=toolcall"`

	// Goals the agent pursues, rendered into every prompt.
	Goals []GoalConfig `yaml:"goals,omitempty" json:"goals,omitempty"`

	// Environment is ambient key/value context rendered into every prompt.
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`

	// Tools selects catalogue tools by tag and by name. Empty selects none;
	// the terminator is always present regardless.
	Tools ToolSelection `yaml:"tools,omitempty" json:"tools,omitempty"`

	// MaxParseRetries bounds corrective feedback rounds per iteration.
	MaxParseRetries *int `yaml:"max_parse_retries,omitempty" json:"max_parse_retries,omitempty"`

	// MaxIterations bounds loop iterations per session. 0 means unbounded.
	MaxIterations *int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`

	// AllowNonToolOutput (toolcall language): plain-text replies become the
	// final answer instead of a parse failure.
	AllowNonToolOutput *bool `yaml:"allow_non_tool_output,omitempty" json:"allow_non_tool_output,omitempty"`

	// FeedbackStyle (jsonblock language): terse sends only the first line
	// of parse feedback, full sends every line.
	FeedbackStyle string `yaml:"feedback_style,omitempty" json:"feedback_style,omitempty" jsonschema:"enum=terse,enum=full"`

	// Relevance configures the LLM tool filter run before the loop.
	Relevance RelevanceConfig `yaml:"relevance,omitempty" json:"relevance,omitempty"`
}

// GoalConfig is one agent objective.
type GoalConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Priority    int    `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// ToolSelection picks catalogue tools by tag union and explicit names.
type ToolSelection struct {
	Tags  []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Names []string `yaml:"names,omitempty" json:"names,omitempty"`
}

// RelevanceConfig controls tool relevance filtering.
type RelevanceConfig struct {
	// Enabled turns the filter on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// MaxTools caps how many tools the filter may keep.
	MaxTools int `yaml:"max_tools,omitempty" json:"max_tools,omitempty"`

	// LLM names the model used for scoring. Empty uses the agent's model.
	LLM string `yaml:"llm,omitempty" json:"llm,omitempty"`
}

// SetDefaults applies agent defaults.
func (c *AgentConfig) SetDefaults() {
	if c.Language == "" {
		c.Language = "jsonblock"
	}
	if c.MaxParseRetries == nil {
		c.MaxParseRetries = IntPtr(2)
	}
	if c.MaxIterations == nil {
		c.MaxIterations = IntPtr(25)
	}
	if c.AllowNonToolOutput == nil {
		c.AllowNonToolOutput = BoolPtr(true)
	}
	if c.FeedbackStyle == "" {
		c.FeedbackStyle = "terse"
	}
	if c.Relevance.MaxTools == 0 {
		c.Relevance.MaxTools = 10
	}
}

// Validate checks the agent definition.
func (c *AgentConfig) Validate() error {
	if c.LLM == "" {
		return fmt.Errorf("llm is required")
	}
	switch c.Language {
	case "natural", "jsonblock", "toolcall":
	default:
		return fmt.Errorf("unsupported language %q (supported: natural, jsonblock, toolcall)", c.Language)
	}
	switch c.FeedbackStyle {
	case "terse", "full":
	default:
		return fmt.Errorf("unsupported feedback_style %q (supported: terse, full)", c.FeedbackStyle)
	}
	if c.MaxParseRetries != nil && *c.MaxParseRetries < 0 {
		return fmt.Errorf("max_parse_retries must not be negative")
	}
	if c.MaxIterations != nil && *c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	for i, g := range c.Goals {
		if g.Name == "" {
			return fmt.Errorf("goal %d is missing a name", i)
		}
	}
	if c.Relevance.MaxTools < 0 {
		return fmt.Errorf("relevance.max_tools must not be negative")
	}
	return nil
}
