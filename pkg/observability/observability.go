// Package observability wires OpenTelemetry tracing and metrics for the
// runtime. Metrics flow through a prometheus reader scraped at /metrics;
// traces go to an OTLP collector when one is configured. Both are off by
// default and every recording path is nil-safe, so instrumented code never
// checks whether observability is enabled.
package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Config configures tracing and metrics together.
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	c.Tracing.SetDefaults()
}

// Validate checks the tracing settings.
func (c *Config) Validate() error {
	return c.Tracing.Validate()
}

// Manager owns the tracer provider and meter for one process.
type Manager struct {
	tracerProvider trace.TracerProvider
	metrics        Metrics
	config         Config
	mu             sync.RWMutex
}

// NewManager creates a manager; call Initialize before use.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// Initialize builds the tracer provider and meter and installs them as the
// process-wide defaults.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitGlobalTracer(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	metrics, err := InitMetrics(ctx, m.config.Metrics)
	if err != nil {
		return err
	}
	m.metrics = metrics
	SetGlobalMetrics(m.metrics)

	return nil
}

// GetTracer returns a tracer from the manager's provider.
func (m *Manager) GetTracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracerProvider.Tracer(name)
}

// GetMetrics returns the manager's metric recorder.
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// Shutdown flushes and stops the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sd, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		return sd.Shutdown(ctx)
	}
	return nil
}
