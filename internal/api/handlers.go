package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/atessari/diaforge/internal/diagram"
	"github.com/atessari/diaforge/internal/render"
	"github.com/atessari/diaforge/internal/store"
	"github.com/atessari/diaforge/pkg/schema"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGenerate runs the full pipeline for a record collection. With
// "enrich": true the records pass through the enricher first.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Records []map[string]any `json:"records"`
		Enrich  bool             `json:"enrich"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if len(body.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records are required")
		return
	}

	records, err := s.resolveRecords(r, body.Records, body.Enrich)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.deps.Service.Generate(ctx, records)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRefine reruns the pipeline for an existing session with an extra
// instruction.
func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		SessionID   string `json:"session_id"`
		Instruction string `json:"instruction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if body.Instruction == "" {
		writeError(w, http.StatusBadRequest, "instruction is required")
		return
	}

	result, err := s.deps.Service.Refine(ctx, body.SessionID, body.Instruction)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleEnrich returns the enriched record collection without rendering.
func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if len(body.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records are required")
		return
	}

	records, err := s.deps.Enricher.Enrich(ctx, uuid.NewString(), body.Records)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// handlePreview renders a local graphviz PNG without touching the external
// renderer or the agent.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title   string           `json:"title"`
		Records []map[string]any `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if len(body.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records are required")
		return
	}

	records := make([]schema.Record, 0, len(body.Records))
	for _, item := range body.Records {
		records = append(records, schema.NormalizeRecord(item))
	}

	png, err := diagram.RenderImage(diagram.Build(body.Title, records))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("render preview: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// handleInspect parses PlantUML source and reports the declared actors and
// arrow relations without rendering anything.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"actors":    render.ExtractActors(body.Source),
		"relations": render.ExtractRelations(body.Source),
	})
}

// handleListSessions lists sessions, optionally filtered by status and kind.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := store.SessionFilter{
		Status: schema.SessionStatus(r.URL.Query().Get("status")),
		Kind:   schema.SessionKind(r.URL.Query().Get("kind")),
	}
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	sessions, err := s.deps.Store.ListSessions(ctx, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleSession returns a session row with its full event log.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	session, events, err := s.deps.Service.Session(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"events":  events,
	})
}

// resolveRecords normalizes the raw request records, running them through
// the enricher first when asked.
func (s *Server) resolveRecords(r *http.Request, raw []map[string]any, doEnrich bool) ([]schema.Record, error) {
	if doEnrich {
		return s.deps.Enricher.Enrich(r.Context(), uuid.NewString(), raw)
	}
	records := make([]schema.Record, 0, len(raw))
	for _, item := range raw {
		records = append(records, schema.NormalizeRecord(item))
	}
	return records, nil
}
