package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"

	"github.com/evocrew/evocrew/internal/dispatch"
	"github.com/evocrew/evocrew/internal/supervisor"
)

// HTTPConfig configures the streamable-HTTP MCP server (spec §4.9 "http").
type HTTPConfig struct {
	Addr string // e.g. ":8080"

	// MetricsKey, if set, is the bearer credential required on GET /metrics.
	// Health stays unauthenticated (load balancers probe it with no
	// credential); metrics can leak tool-usage shape, so it is gated the
	// same way a tool call would be.
	MetricsKey string
}

// HTTPServer mounts the MCP streamable-HTTP endpoint alongside health and
// metrics under a single chi router — the teacher's transport package
// mounts every HTTP concern (JSON-RPC, health, metrics middleware) behind
// one router per listener, generalized here from A2A/gRPC-gateway routes
// to MCP + operational routes.
type HTTPServer struct {
	cfg    HTTPConfig
	server *http.Server
	sup    *supervisor.Supervisor
	log    *slog.Logger
}

// NewHTTPServer builds the chi router and wraps it in an *http.Server,
// mirroring the teacher's JSONRPCHandler/RESTGateway shape: a router built
// once at construction, an *http.Server field set aside for Shutdown.
func NewHTTPServer(cfg HTTPConfig, mcpServer *server.MCPServer, d *dispatch.Dispatcher, sup *supervisor.Supervisor, log *slog.Logger) *HTTPServer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	streamable := server.NewStreamableHTTPServer(mcpServer,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return WithCredential(ctx, bearerFromRequest(r))
		}),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogMiddleware(log))

	r.Handle("/mcp", streamable)
	r.Get("/health", healthHandler(sup))
	r.Get("/metrics", metricsHandler(d, cfg.MetricsKey))

	h := &HTTPServer{
		cfg: cfg,
		log: log,
		sup: sup,
		server: &http.Server{
			Addr:    cfg.Addr,
			Handler: r,
		},
	}
	return h
}

// requestLogMiddleware is the teacher's metrics-middleware shape (wrap,
// time, log on the way out) minus the OpenTelemetry/Prometheus plumbing
// this repo does not carry — chi's own RouteContext still supplies the
// matched pattern for the log line, same as the teacher's getRoutePattern.
func requestLogMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"method", r.Method,
				"pattern", chi.RouteContext(r.Context()).RoutePattern(),
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func bearerFromRequest(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func healthHandler(sup *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, lastChecked, detail := sup.Health().Snapshot()
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"healthy":      ok,
			"last_checked": lastChecked,
			"detail":       detail,
		})
	}
}

// metricsHandler reports dispatcher-level counters rather than a full
// Prometheus exposition: this repo carries no metrics dependency of its
// own (the teacher's is OpenTelemetry-backed, out of scope here), so the
// endpoint is a plain JSON summary instead. It checks a credential only
// when metricsKey is non-empty; evocrewd's runHTTP sets no MetricsKey, so
// there /metrics answers any caller.
func metricsHandler(d *dispatch.Dispatcher, metricsKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if metricsKey != "" && bearerFromRequest(r) != metricsKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tools": d.Tools(),
		})
	}
}

// Start runs the HTTP server, blocking until it is shut down.
func (h *HTTPServer) Start() error {
	h.log.Info("http transport starting", "addr", h.cfg.Addr)
	if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http transport: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}
