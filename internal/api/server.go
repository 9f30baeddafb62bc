// Package api serves the HTTP control plane for a running market: status,
// agent inspection, admin pause/resume/stop, step history, and a websocket
// feed of telemetry frames.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/persistence"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

// Controller is the engine's control surface. *telemetry.Bus implements it
// in-process and *Client implements it over HTTP.
type Controller interface {
	Status(ctx context.Context) (telemetry.Status, error)
	Pause(ctx context.Context) (telemetry.Status, error)
	Resume(ctx context.Context) (telemetry.Status, error)
	Stop(ctx context.Context) (telemetry.Status, error)
	Inspect(ctx context.Context, id uint64) (telemetry.AgentView, error)
}

// Server is the HTTP API for one run.
type Server struct {
	Ctl      Controller
	Hub      *Hub            // nil disables /api/v1/stream
	DB       *persistence.DB // nil disables /api/v1/history
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Per-IP limit on agent inspection, which stalls the engine briefly.
	InspectLimiter *RateLimiter

	// Control requests give up after this long.
	Timeout time.Duration
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	limiter := s.InspectLimiter
	if limiter == nil {
		limiter = NewRateLimiter(120, time.Minute)
		s.InspectLimiter = limiter
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", getOnly(s.handleStatus))
	mux.HandleFunc("/api/v1/agent/", getOnly(RateLimitMiddleware(limiter, s.handleAgent)))
	mux.HandleFunc("/api/v1/history", getOnly(s.handleHistory))
	if s.Hub != nil {
		mux.HandleFunc("/api/v1/stream", s.Hub.ServeHTTP)
	}

	mux.HandleFunc("/api/v1/pause", s.adminOnly(s.control(Controller.Pause)))
	mux.HandleFunc("/api/v1/resume", s.adminOnly(s.control(Controller.Resume)))
	mux.HandleFunc("/api/v1/stop", s.adminOnly(s.control(Controller.Stop)))

	return corsMiddleware(mux)
}

// Start listens on Port in the background. The returned server is for
// Shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "stream", s.Hub != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed dashboard origins.
// CORS_ORIGINS adds a comma-separated list to the localhost defaults.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// checkBearerToken reports whether the request carries the admin token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires POST with a valid bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no MEDTRUST_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

// writeError maps control errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agents.ErrUnknownAgent):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, telemetry.ErrClosed):
		http.Error(w, "simulation stopped", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "simulation did not answer", http.StatusGatewayTimeout)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	st, err := s.Ctl.Status(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, st)
}

// handleAgent serves GET /api/v1/agent/{id}.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/agent/")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	v, err := s.Ctl.Inspect(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, v)
}

// handleHistory serves GET /api/v1/history?limit=N from the run database.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no run database configured", http.StatusNotFound)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 10000)
	}
	steps, err := s.DB.StepHistory(s.RunID, limit)
	if err != nil {
		slog.Error("history query failed", "error", err)
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"run_id": s.RunID,
		"steps":  steps,
	})
}

func (s *Server) control(op func(Controller, context.Context) (telemetry.Status, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.requestContext(r)
		defer cancel()
		st, err := op(s.Ctl, ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		slog.Info("admin control", "path", r.URL.Path, "step", st.Step, "paused", st.Paused)
		writeJSON(w, st)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
