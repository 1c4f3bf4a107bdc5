// Package drover provides a server-side runtime for LLM agents.
//
// Drover runs agents through a think, act, observe loop: the model is
// prompted with the agent's goals, environment and tools, replies with a
// tool invocation in the agent's prompt language, and the tool's result is
// fed back into the conversation until the agent terminates. Agents are
// declared in YAML configuration, without writing any code.
//
// # Quick Start
//
// Install drover:
//
//	go install github.com/drover-ai/drover/cmd/drover@latest
//
// Create a simple agent configuration:
//
//	llms:
//	  default:
//	    provider: openai
//	    model: gpt-4o-mini
//	    api_key: ${OPENAI_API_KEY}
//
//	agents:
//	  assistant:
//	    llm: default
//	    goals:
//	      - name: assist
//	        description: Answer the user's question.
//
// Run a task directly:
//
//	drover run assistant "What time is it?" --config my-agent.yaml
//
// Or start the HTTP server:
//
//	drover serve --config my-agent.yaml
//
// # Using as a Go Library
//
// The runtime package is the embedding entry point:
//
//	import "github.com/drover-ai/drover/pkg/runtime"
//
// Or import specific packages:
//
//	import (
//	    "github.com/drover-ai/drover/pkg/agent"
//	    "github.com/drover-ai/drover/pkg/config"
//	    "github.com/drover-ai/drover/pkg/tool"
//	)
//
// # Key Features
//
//   - **Declarative YAML**: define complete agents without code
//   - **Prompt languages**: natural, fenced JSON block, or native tool calls
//   - **Tool sources**: built-ins, typed Go functions, MCP servers, plugin
//     subprocesses, remote operations over HTTP
//   - **Relevance filtering**: an LLM pass trims large tool registries per task
//   - **Sessions**: in-memory or SQL-backed, continuable across requests
//   - **REST + SSE API**: JWT-protected HTTP surface with live run events
//
// # Architecture
//
// A request flows through the HTTP server into the runtime, which assembles
// an agent per session:
//
//	Client → HTTP API → Runtime → Agent loop → LLM provider + tools
//
// Every run appends to an append-only session log, so a later request can
// pick up the conversation where it stopped.
package drover
