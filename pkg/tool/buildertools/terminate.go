// Package buildertools provides the built-in tool descriptors every
// catalogue starts from: the mandatory terminator plus a small set of
// planning and utility tools.
package buildertools

import (
	"context"
	"strings"

	"github.com/drover-ai/drover/pkg/tool"
)

// Terminate builds the terminal tool. Invoking it ends the session; its
// return value, the message plus any structured result the model
// supplied, becomes the session outcome.
func Terminate() tool.Descriptor {
	return tool.Descriptor{
		Name:        tool.TerminateToolName,
		Description: "End the session and deliver the final answer. Call this when the task is complete, cannot proceed, or the user should take over.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "The final answer or closing summary for the user",
				},
				"result": map[string]any{
					"type":        "object",
					"description": "Optional structured result data",
				},
			},
			"required": []string{"message"},
		},
		Terminal: true,
		Tags:     []string{"control"},
		Func: func(ctx context.Context, ac *tool.ActionContext, args map[string]any) (any, error) {
			out := make(map[string]any, len(args))
			for k, v := range args {
				if strings.HasPrefix(k, "_") {
					continue
				}
				out[k] = v
			}
			if _, ok := out["message"]; !ok {
				out["message"] = ""
			}
			return out, nil
		},
	}
}
