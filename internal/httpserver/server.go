package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"partner-bot/internal/metrics"
	"partner-bot/internal/referral"
	"partner-bot/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies exposes the referral engine to the HTTP handlers.
type Dependencies struct {
	Store          store.Store
	Distributor    *referral.Distributor
	Activation     *referral.ActivationManager
	Signup         *referral.SignupService
	BotUsername    string
	DefaultProgram store.ProgramType
}

// Server wraps an http.Server with predefined routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
	basePath   string
}

// New creates a new HTTP server listening on addr with health, metrics,
// trigger and admin endpoints.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies, basePath string) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		deps:     deps,
		basePath: normaliseBasePath(basePath),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /internal/orders/completed", server.handleOrderCompleted)
	mux.HandleFunc("POST /internal/signups", server.handleSignup)
	mux.HandleFunc("POST /partners", server.handleCreatePartner)
	mux.HandleFunc("GET /partners/{userID}", server.handlePartnerDashboard)
	mux.HandleFunc("POST /admin/partners/{userID}/activate", server.handleAdminActivate)
	mux.HandleFunc("POST /admin/partners/{userID}/deactivate", server.handleAdminDeactivate)

	handler := mountWithBasePath(server.basePath, mux)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
