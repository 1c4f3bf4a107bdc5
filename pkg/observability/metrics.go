package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the prometheus meter.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Metrics is the recording surface the runtime instruments against. A nil
// or zero-value implementation records nothing.
type Metrics interface {
	// RecordSession records one completed agent session.
	RecordSession(ctx context.Context, agent string, duration time.Duration, iterations int, err error)
	// RecordParseRetry counts one parse-failure feedback round.
	RecordParseRetry(ctx context.Context, agent string)
	// RecordFilterReduction records a relevance-filter pass shrinking the
	// registry from before to after tools.
	RecordFilterReduction(ctx context.Context, agent string, before, after int)
	// RecordToolInvocation records one tool dispatch.
	RecordToolInvocation(ctx context.Context, tool string, duration time.Duration, err error)
	// RecordLLMCall records one model round trip.
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	// RecordHTTPRequest records one served API request. route is the matched
	// pattern, not the raw path, so label cardinality stays bounded.
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, responseBytes int)
}

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// SetGlobalMetrics installs the process-wide recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder, possibly nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}

// InitMetrics builds the prometheus-backed recorder. Disabled config yields
// an inert recorder so call sites stay unconditional.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PromMetrics, error) {
	if !cfg.Enabled {
		return &PromMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("drover")

	m := &PromMetrics{}

	if m.sessionDuration, err = meter.Float64Histogram(
		"drover_agent_session_duration_seconds",
		metric.WithDescription("Agent session duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session duration histogram: %w", err)
	}
	if m.sessionsTotal, err = meter.Int64Counter(
		"drover_agent_sessions_total",
		metric.WithDescription("Total agent sessions run"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sessions counter: %w", err)
	}
	if m.sessionErrors, err = meter.Int64Counter(
		"drover_agent_session_errors_total",
		metric.WithDescription("Total agent sessions ending in error"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session errors counter: %w", err)
	}
	if m.iterationsTotal, err = meter.Int64Counter(
		"drover_agent_iterations_total",
		metric.WithDescription("Total agent loop iterations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create iterations counter: %w", err)
	}
	if m.parseRetries, err = meter.Int64Counter(
		"drover_parse_retries_total",
		metric.WithDescription("Total parse-failure feedback rounds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create parse retries counter: %w", err)
	}
	if m.filterReductions, err = meter.Int64Counter(
		"drover_filter_reductions_total",
		metric.WithDescription("Total relevance filter passes that shrank the registry"),
	); err != nil {
		return nil, fmt.Errorf("failed to create filter reductions counter: %w", err)
	}
	if m.filterToolsRemoved, err = meter.Int64Counter(
		"drover_filter_tools_removed_total",
		metric.WithDescription("Total tools removed by relevance filtering"),
	); err != nil {
		return nil, fmt.Errorf("failed to create filter removals counter: %w", err)
	}
	if m.toolDuration, err = meter.Float64Histogram(
		"drover_tool_invocation_duration_seconds",
		metric.WithDescription("Tool invocation duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}
	if m.toolCalls, err = meter.Int64Counter(
		"drover_tool_invocations_total",
		metric.WithDescription("Total tool invocations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}
	if m.toolErrors, err = meter.Int64Counter(
		"drover_tool_errors_total",
		metric.WithDescription("Total tool invocation errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}
	if m.llmDuration, err = meter.Float64Histogram(
		"drover_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}
	if m.llmInputTokens, err = meter.Int64Counter(
		"drover_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to LLMs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}
	if m.llmOutputTokens, err = meter.Int64Counter(
		"drover_llm_tokens_output_total",
		metric.WithDescription("Total output tokens received from LLMs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}
	if m.llmErrors, err = meter.Int64Counter(
		"drover_llm_errors_total",
		metric.WithDescription("Total LLM request errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}
	if m.httpDuration, err = meter.Float64Histogram(
		"drover_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}
	if m.httpRequests, err = meter.Int64Counter(
		"drover_http_requests_total",
		metric.WithDescription("Total HTTP requests served"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}
	if m.httpResponseBytes, err = meter.Int64Counter(
		"drover_http_response_bytes_total",
		metric.WithDescription("Total HTTP response bytes written"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http response bytes counter: %w", err)
	}

	return m, nil
}

// PromMetrics records through otel instruments backed by the prometheus
// reader. The zero value records nothing.
type PromMetrics struct {
	sessionDuration metric.Float64Histogram
	sessionsTotal   metric.Int64Counter
	sessionErrors   metric.Int64Counter
	iterationsTotal metric.Int64Counter

	parseRetries       metric.Int64Counter
	filterReductions   metric.Int64Counter
	filterToolsRemoved metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrors       metric.Int64Counter

	httpDuration      metric.Float64Histogram
	httpRequests      metric.Int64Counter
	httpResponseBytes metric.Int64Counter
}

func (m *PromMetrics) RecordSession(ctx context.Context, agent string, duration time.Duration, iterations int, err error) {
	if m == nil || m.sessionDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("agent", agent))
	m.sessionDuration.Record(ctx, duration.Seconds(), attrs)
	m.sessionsTotal.Add(ctx, 1, attrs)
	if iterations > 0 {
		m.iterationsTotal.Add(ctx, int64(iterations), attrs)
	}
	if err != nil {
		m.sessionErrors.Add(ctx, 1, attrs)
	}
}

func (m *PromMetrics) RecordParseRetry(ctx context.Context, agent string) {
	if m == nil || m.parseRetries == nil {
		return
	}
	m.parseRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

func (m *PromMetrics) RecordFilterReduction(ctx context.Context, agent string, before, after int) {
	if m == nil || m.filterReductions == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("agent", agent))
	m.filterReductions.Add(ctx, 1, attrs)
	if removed := before - after; removed > 0 {
		m.filterToolsRemoved.Add(ctx, int64(removed), attrs)
	}
}

func (m *PromMetrics) RecordToolInvocation(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *PromMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

func (m *PromMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, responseBytes int) {
	if m == nil || m.httpDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpResponseBytes.Add(ctx, int64(responseBytes), attrs)
}
