// Package api implements the HTTP API: a single ask endpoint for
// conversation turns plus introspection endpoints for health, plugins
// and usage.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kahyalabs/kahya/internal/assistant"
	"github.com/kahyalabs/kahya/internal/auth"
	"github.com/kahyalabs/kahya/internal/buildinfo"
	"github.com/kahyalabs/kahya/internal/input"
	"github.com/kahyalabs/kahya/internal/memory"
	"github.com/kahyalabs/kahya/internal/plugin"
	"github.com/kahyalabs/kahya/internal/usage"
)

// Asker processes one conversation turn.
type Asker interface {
	Process(ctx context.Context, conversationID string, in input.Input) *assistant.Reply
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	addr     string
	manager  Asker
	registry *plugin.Registry
	store    memory.Store
	usage    *usage.Store
	verifier *auth.Verifier
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates an API server. usageStore may be nil when usage
// tracking is disabled; the usage endpoint then answers 503.
func NewServer(addr string, manager Asker, registry *plugin.Registry, store memory.Store, usageStore *usage.Store, verifier *auth.Verifier, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		manager:  manager,
		registry: registry,
		store:    store,
		usage:    usageStore,
		verifier: verifier,
		logger:   logger.With("component", "api"),
	}
}

// Routes builds the API route table with token auth applied. Mount it
// next to other handlers on one mux and pass the result through
// [Server.Wrap] so every route shares the logging and recovery
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/ask", s.handleAsk)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/plugins", s.handlePlugins)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/usage", s.handleUsage)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withAuth(mux)
}

// Wrap applies the request logging and panic recovery middleware.
func (s *Server) Wrap(next http.Handler) http.Handler {
	return s.withLogging(s.withRecover(next))
}

// Handler is the API served standalone: routes plus middleware.
func (s *Server) Handler() http.Handler {
	return s.Wrap(s.Routes())
}

// Start begins serving HTTP requests with the given handler, which is
// either [Server.Handler] or a combined mux built around [Server.Routes].
func (s *Server) Start(handler http.Handler) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	s.logger.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panicked", "path", r.URL.Path, "panic", rec)
				s.errorResponse(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withAuth enforces the bearer token on every route except the health
// probe and the root banner.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/v1/health":
			next.ServeHTTP(w, r)
			return
		}
		if !s.verifier.AllowRequest(r) {
			s.errorResponse(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// AskRequest is the ask endpoint request body. Audio is base64 in
// JSON; it is only consulted when type is "speech".
type AskRequest struct {
	Input          string `json:"input"`
	Type           string `json:"type,omitempty"`
	Audio          []byte `json:"audio,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var in input.Input
	switch req.Type {
	case "", "text":
		if req.Input == "" {
			s.errorResponse(w, http.StatusBadRequest, "input is required")
			return
		}
		in = input.Input{Kind: input.KindText, Text: req.Input}
	case "speech":
		if len(req.Audio) == 0 {
			s.errorResponse(w, http.StatusBadRequest, "audio is required for speech input")
			return
		}
		in = input.Input{Kind: input.KindSpeech, Audio: req.Audio}
	default:
		s.errorResponse(w, http.StatusBadRequest, "unsupported input type: "+req.Type)
		return
	}

	reply := s.manager.Process(r.Context(), req.ConversationID, in)
	writeJSON(w, reply, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"name":    "Kahya",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.Describe()
	writeJSON(w, map[string]any{
		"plugins": infos,
		"count":   len(infos),
	}, s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("memory stats failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, map[string]any{
		"memory": stats,
		"build":  buildinfo.Info(),
	}, s.logger)
}

// handleUsage aggregates token usage over a trailing window; hours
// defaults to 24. With conversation_id set, it returns that
// conversation's lifetime totals instead.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "usage tracking not configured")
		return
	}

	if conv := r.URL.Query().Get("conversation_id"); conv != "" {
		sum, err := s.usage.SummaryForConversation(conv)
		if err != nil {
			s.logger.Error("usage for conversation failed", "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "usage unavailable")
			return
		}
		writeJSON(w, map[string]any{
			"conversation_id": conv,
			"total":           sum,
		}, s.logger)
		return
	}

	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "invalid hours parameter")
			return
		}
		hours = n
	}

	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)

	total, err := s.usage.Summary(start, end)
	if err != nil {
		s.logger.Error("usage summary failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "usage unavailable")
		return
	}
	byModel, err := s.usage.SummaryByModel(start, end)
	if err != nil {
		s.logger.Error("usage by model failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "usage unavailable")
		return
	}
	byComponent, err := s.usage.SummaryByComponent(start, end)
	if err != nil {
		s.logger.Error("usage by component failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "usage unavailable")
		return
	}

	writeJSON(w, map[string]any{
		"hours":        hours,
		"total":        total,
		"by_model":     byModel,
		"by_component": byComponent,
	}, s.logger)
}
