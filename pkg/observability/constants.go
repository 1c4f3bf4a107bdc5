package observability

// Span names and attribute keys used across the runtime.
const (
	AttrAgentName       = "agent.name"
	AttrSessionID       = "session.id"
	AttrToolName        = "tool.name"
	AttrLLMModel        = "llm.model"
	AttrLLMProvider     = "llm.provider"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrErrorType       = "error.type"

	SpanSessionRun      = "agent.session"
	SpanIteration       = "agent.iteration"
	SpanLLMRequest      = "agent.llm_request"
	SpanToolExecution   = "agent.tool_execution"
	SpanRelevanceFilter = "agent.relevance_filter"

	DefaultServiceName = "drover"
)
