// Package enrich augments record collections with agent-inferred relations
// and groupings while guaranteeing that no original record is lost.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/atessari/diaforge/internal/agent"
	"github.com/atessari/diaforge/internal/preserve"
	"github.com/atessari/diaforge/internal/store"
	"github.com/atessari/diaforge/internal/validation"
	"github.com/atessari/diaforge/pkg/schema"
)

const enrichSystemPrompt = `You are a system architect and infrastructure engineer.
Given a JSON array of component records, infer missing relationships, group
components into logical layers (edge, application, database, infrastructure,
network, other) via a "layer" attribute, and flag potential single points of
failure via an "spof" attribute.
CRITICAL: keep ALL original items. Never remove or rename original ids. Prefix
ids of any new items you add with NEW_.
Return ONLY a valid JSON array of records with keys: id, name, type,
attributes, relations (relations: [{target, type, reason}]).`

// Enricher sends records through the agent and enforces the preservation
// guarantee on whatever comes back. It never drops the caller's data: any
// failure along the way returns the originals untouched.
type Enricher struct {
	agent     agent.Agent
	validator *validation.RecordValidator
	guard     *preserve.Guard
	events    store.EventAppender
	logger    *slog.Logger
}

// Config holds the Enricher dependencies. Agent, Validator and Guard are
// required; Events and Logger default to no-ops.
type Config struct {
	Agent     agent.Agent
	Validator *validation.RecordValidator
	Guard     *preserve.Guard
	Events    store.EventAppender
	Logger    *slog.Logger
}

func New(cfg Config) *Enricher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		agent:     cfg.Agent,
		validator: cfg.Validator,
		guard:     cfg.Guard,
		events:    cfg.Events,
		logger:    logger,
	}
}

// Enrich runs the agent over the original records and returns the enriched
// collection. The result is always an id-superset of the input: missing
// originals are appended verbatim, and on any agent, parse, or validation
// failure the originals come back unchanged with a nil error.
func (e *Enricher) Enrich(ctx context.Context, sessionID string, originals []map[string]any) ([]schema.Record, error) {
	if len(originals) == 0 {
		return nil, nil
	}

	prompt, err := json.MarshalIndent(originals, "", "  ")
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to serialize records").
			WithCause(err).WithSession(sessionID)
	}

	completion, err := e.agent.Complete(ctx, enrichSystemPrompt, string(prompt))
	if err != nil {
		e.logger.WarnContext(ctx, "enrichment agent failed, returning originals",
			"session_id", sessionID, "error", err)
		return normalize(originals), nil
	}

	raw := agent.ExtractCodeBlock(completion, "json")

	var enriched []map[string]any
	if err := json.Unmarshal([]byte(raw), &enriched); err != nil {
		e.logger.WarnContext(ctx, "enrichment output is not a JSON array, returning originals",
			"session_id", sessionID, "error", err)
		return normalize(originals), nil
	}

	if err := e.validator.ValidateRecords(enriched); err != nil {
		e.logger.WarnContext(ctx, "enrichment output failed validation, returning originals",
			"session_id", sessionID, "error", err)
		return normalize(originals), nil
	}

	missing, err := e.guard.Missing(originals, enriched)
	if err != nil {
		return nil, wrapEnrichErr(err, sessionID)
	}

	preserved, err := e.guard.Preserve(originals, enriched)
	if err != nil {
		return nil, wrapEnrichErr(err, sessionID)
	}

	if len(missing) > 0 {
		e.logger.InfoContext(ctx, "reinserted records dropped by agent",
			"session_id", sessionID, "count", len(missing))
		e.emit(ctx, sessionID, schema.EventRecordsReinserted, map[string]any{"ids": missing})
	}
	e.emit(ctx, sessionID, schema.EventRecordsEnriched, map[string]any{
		"original_count": len(originals),
		"enriched_count": len(preserved),
	})

	return normalize(preserved), nil
}

func (e *Enricher) emit(ctx context.Context, sessionID, eventType string, payload map[string]any) {
	if e.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := e.events.AppendEvent(ctx, &store.Event{SessionID: sessionID, Type: eventType, Payload: data}); err != nil {
		e.logger.WarnContext(ctx, "append event failed", "event_type", eventType, "error", err)
	}
}

func normalize(raw []map[string]any) []schema.Record {
	records := make([]schema.Record, 0, len(raw))
	for _, item := range raw {
		records = append(records, schema.NormalizeRecord(item))
	}
	return records
}

func wrapEnrichErr(err error, sessionID string) error {
	var dfErr *schema.DiaforgeError
	if errors.As(err, &dfErr) {
		return dfErr.WithSession(sessionID)
	}
	return schema.NewError(schema.ErrCodeValidation, err.Error()).WithSession(sessionID)
}
