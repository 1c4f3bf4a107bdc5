// Package server exposes the runtime over HTTP: session creation and
// continuation (sync JSON or SSE), session inspection, agent discovery
// and the operational endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/drover-ai/drover/pkg/auth"
	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/events"
	"github.com/drover-ai/drover/pkg/observability"
	"github.com/drover-ai/drover/pkg/prompt"
	"github.com/drover-ai/drover/pkg/session"
)

const shutdownTimeout = 10 * time.Second

// Runner executes agent sessions on behalf of the HTTP surface. The
// runtime implements it.
type Runner interface {
	// AgentNames lists the configured agents.
	AgentNames() []string

	// AgentCard describes one agent or errors when the name is unknown.
	AgentCard(name string) (AgentCard, error)

	// RunSession runs one task. An empty SessionID creates a session;
	// otherwise the stored history seeds the run. Events stream into
	// spec.Emitter when set.
	RunSession(ctx context.Context, spec RunSpec) (RunResult, error)
}

// AgentCard is the discovery document for one agent.
type AgentCard struct {
	Name     string        `json:"name"`
	Language string        `json:"language"`
	Goals    []prompt.Goal `json:"goals,omitempty"`
	Tools    []ToolCard    `json:"tools,omitempty"`
}

// ToolCard names one tool an agent can reach.
type ToolCard struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RunSpec parameterizes one session run.
type RunSpec struct {
	Agent     string
	SessionID string
	Task      string
	Principal auth.Principal
	Bearer    string
	Emitter   events.Emitter
}

// RunResult is the outcome handed back to the API caller.
type RunResult struct {
	SessionID  string `json:"session_id"`
	Result     any    `json:"result"`
	Iterations int    `json:"iterations"`
}

// Server is the HTTP surface over one runner and its session store.
type Server struct {
	cfg      config.ServerConfig
	runner   Runner
	store    session.Store
	verifier auth.Verifier
	sem      *semaphore.Weighted

	httpSrv *http.Server
}

// New validates the config and builds the server. The auth verifier is
// constructed here so a bad auth config fails before listen.
func New(cfg config.ServerConfig, runner Runner, store session.Store) (*Server, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}

	verifier, err := auth.New(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		runner:   runner,
		store:    store,
		verifier: verifier,
	}
	if cfg.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return s, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Run serves until ctx is cancelled or the listener fails, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.Addr(),
		Handler: s.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", s.httpSrv.Addr, "auth", s.cfg.Auth.Enabled)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("Shutting down HTTP server")
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Handler builds the route tree. Operational endpoints stay outside the
// auth gate so probes and scrapes need no token.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.verifier))

		r.Route("/v1", func(r chi.Router) {
			r.Get("/agents", s.handleListAgents)
			r.Get("/agents/{agent}", s.handleAgentCard)
			r.Post("/agents/{agent}/sessions", s.handleCreateSession)

			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Delete("/sessions/{id}", s.handleDeleteSession)
			r.Post("/sessions/{id}/messages", s.handleContinueSession)
		})
	})

	return r
}

// acquire reserves a session slot. Unbounded servers always succeed.
func (s *Server) acquire() bool {
	if s.sem == nil {
		return true
	}
	return s.sem.TryAcquire(1)
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

// statusWriter captures status and size for the request metric, passing
// Flush through for SSE.
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument traces each request and records the request metric under
// the matched route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		tracer := observability.GetTracer("drover/http")
		ctx, span := tracer.Start(r.Context(), "http.request",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			),
		)
		defer span.End()
		r = r.WithContext(ctx)

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		span.SetAttributes(
			attribute.Int("http.status_code", wrapped.status),
			attribute.Int("http.response_size", wrapped.size),
		)
		if wrapped.status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(wrapped.status))
		}

		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordHTTPRequest(ctx, r.Method, routePattern(r), wrapped.status, duration, wrapped.size)
		}
	})
}

// routePattern prefers chi's matched pattern over the raw path so the
// metric labels stay bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
