package language

import (
	"github.com/drover-ai/drover/pkg/memory"
	"github.com/drover-ai/drover/pkg/prompt"
	"github.com/drover-ai/drover/pkg/tool"
)

// Natural treats the model as a plain conversationalist. The prompt carries
// goals and memory only, every reply is the final answer, and there is
// nothing to adapt because parsing cannot fail.
type Natural struct{}

// NewNatural creates the natural-language variant.
func NewNatural() *Natural {
	return &Natural{}
}

func (n *Natural) Name() string { return VariantNatural }

// Construct ignores the tool set: a natural session has no dispatch.
func (n *Natural) Construct(goals []prompt.Goal, entries []memory.Entry, environment map[string]string, _ []tool.Descriptor) prompt.Prompt {
	return corePrompt(goals, environment).Append(prompt.ProjectMemory(entries)...)
}

// Parse never fails: the whole reply becomes the terminate message.
func (n *Natural) Parse(reply string) (Action, error) {
	return terminateAction(reply), nil
}

// Adapt is the identity. Parse cannot fail, so there is nothing to correct.
func (n *Natural) Adapt(p prompt.Prompt, _ string, _ error, _ int) prompt.Prompt {
	return p
}
