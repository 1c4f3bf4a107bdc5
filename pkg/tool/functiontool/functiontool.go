// Package functiontool builds tool descriptors from typed Go functions,
// deriving the parameter schema from struct tags.
//
// Use it for simple, stateless tools. Anything with streaming output or a
// dynamic schema should construct a tool.Descriptor directly.
//
//	type GreetArgs struct {
//	    Name string `json:"name" jsonschema:"required,description=Who to greet"`
//	}
//
//	desc, err := functiontool.New(
//	    functiontool.Config{Name: "greet", Description: "Greet someone"},
//	    func(ctx context.Context, ac *tool.ActionContext, args GreetArgs) (map[string]any, error) {
//	        return map[string]any{"greeting": "hello " + args.Name}, nil
//	    },
//	)
package functiontool

import (
	"context"
	"fmt"

	"github.com/drover-ai/drover/pkg/tool"
)

// Config carries the descriptor fields that cannot be derived from the
// args type.
type Config struct {
	// Name is the unique tool identifier (required).
	Name string
	// Description tells the LLM what the tool does (required).
	Description string
	// Tags select the tool into registries by category.
	Tags []string
	// Status templates, see tool.Descriptor.
	Status       string
	ResultStatus string
	ErrorStatus  string
}

// Func is the typed form of a tool callable.
type Func[Args any] func(ctx context.Context, ac *tool.ActionContext, args Args) (map[string]any, error)

// New creates a Descriptor from a typed function. The parameter schema is
// generated from Args' json and jsonschema struct tags.
func New[Args any](cfg Config, fn Func[Args]) (tool.Descriptor, error) {
	if err := validateConfig(cfg); err != nil {
		return tool.Descriptor{}, err
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return tool.Descriptor{}, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return tool.Descriptor{
		Name:         cfg.Name,
		Description:  cfg.Description,
		Parameters:   schema,
		Tags:         cfg.Tags,
		Status:       cfg.Status,
		ResultStatus: cfg.ResultStatus,
		ErrorStatus:  cfg.ErrorStatus,
		Func: func(ctx context.Context, ac *tool.ActionContext, raw map[string]any) (any, error) {
			var args Args
			if err := mapToStruct(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments for %s: %w", cfg.Name, err)
			}
			return fn(ctx, ac, args)
		},
	}, nil
}

// NewWithValidation creates a Descriptor whose arguments pass a custom
// validation function before the tool body runs.
func NewWithValidation[Args any](cfg Config, fn Func[Args], validate func(Args) error) (tool.Descriptor, error) {
	return New(cfg, func(ctx context.Context, ac *tool.ActionContext, args Args) (map[string]any, error) {
		if err := validate(args); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		return fn(ctx, ac, args)
	})
}

func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("function tool requires a name")
	}
	if cfg.Description == "" {
		return fmt.Errorf("function tool %s requires a description", cfg.Name)
	}
	return nil
}
