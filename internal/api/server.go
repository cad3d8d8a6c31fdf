// Package api exposes the render pipeline over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/atessari/diaforge/internal/enrich"
	"github.com/atessari/diaforge/internal/pipeline"
	"github.com/atessari/diaforge/internal/store"
	"github.com/atessari/diaforge/pkg/schema"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Service   *pipeline.Service
	Enricher  *enrich.Enricher
	Store     store.Store
	OutputDir string
	Logger    *slog.Logger
}

// Server serves the JSON API and rendered images.
type Server struct {
	deps Deps
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for all API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/refine", s.handleRefine)
	mux.HandleFunc("POST /api/enrich", s.handleEnrich)
	mux.HandleFunc("POST /api/preview", s.handlePreview)
	mux.HandleFunc("POST /api/inspect", s.handleInspect)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)

	// Rendered images.
	if s.deps.OutputDir != "" {
		mux.Handle("GET /images/", http.StripPrefix("/images/",
			http.FileServer(http.Dir(s.deps.OutputDir))))
	}

	return mux
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a DiaforgeError code to an HTTP status. Pipeline
// exhaustion is reported as unprocessable rather than a server fault since
// the diagnostic history is actionable for the caller.
func writeDomainError(w http.ResponseWriter, err error) {
	var dfErr *schema.DiaforgeError
	if !errors.As(err, &dfErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch dfErr.Code {
	case schema.ErrCodeValidation:
		status = http.StatusBadRequest
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeRenderFailed, schema.ErrCodeRepairExhausted:
		status = http.StatusUnprocessableEntity
	case schema.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}

	payload := map[string]any{
		"error": dfErr.Message,
		"code":  dfErr.Code,
	}
	if dfErr.SessionID != "" {
		payload["session_id"] = dfErr.SessionID
	}
	if len(dfErr.Details) > 0 {
		payload["details"] = dfErr.Details
	}
	writeJSON(w, status, payload)
}
