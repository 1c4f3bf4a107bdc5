package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/drover-ai/drover/pkg/config"
)

// SchemaCmd prints the configuration JSON Schema to stdout, for editor
// integration and config tooling.
type SchemaCmd struct {
	Compact bool `help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run() error {
	schema := config.Schema()
	schema.ID = "https://drover.dev/schemas/config.json"
	schema.Title = "Drover Configuration Schema"
	schema.Description = "Configuration schema for the drover agent runtime"

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}
