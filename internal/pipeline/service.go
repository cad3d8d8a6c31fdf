package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atessari/diaforge/internal/agent"
	"github.com/atessari/diaforge/internal/logging"
	"github.com/atessari/diaforge/internal/store"
	"github.com/atessari/diaforge/pkg/schema"
)

const generateSystemPrompt = "You are an expert system architect. Given structured records (test cases or " +
	"CMDB items) as JSON, create a PlantUML diagram that shows the actors, components and their " +
	"interactions. Use ONLY standard PlantUML syntax: @startuml, participant, actor, component, node, " +
	"database, package, rectangle, @enduml. Do NOT use !define statements or custom macros. " +
	"Return ONLY a fenced ```plantuml``` code block."

const refineSystemPrompt = "Modify the provided PlantUML code according to the user request. " +
	"Use ONLY standard PlantUML syntax and keep component names simple. " +
	"Return ONLY a fenced ```plantuml``` code block."

// Service orchestrates full generation and refinement requests: candidate
// source production via the agent, the retry controller, and persistence.
type Service struct {
	agent      agent.Agent
	controller *Controller
	store      store.Store
	logger     *slog.Logger
}

// NewService wires a Service.
func NewService(a agent.Agent, controller *Controller, st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{agent: a, controller: controller, store: st, logger: logger}
}

// Generate produces a diagram from records: one generative call for the
// candidate source, then the bounded render/repair loop. The session and its
// attempt history are persisted either way.
func (s *Service) Generate(ctx context.Context, records []schema.Record) (*schema.SessionResult, error) {
	sessionID := uuid.New().String()
	ctx = logging.WithSessionID(ctx, sessionID)

	if err := s.store.CreateSession(ctx, &store.Session{
		ID:     sessionID,
		Kind:   schema.SessionKindGenerate,
		Status: schema.SessionStatusPending,
	}); err != nil {
		return nil, err
	}

	recordsJSON, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "marshal records: %v", err).WithCause(err)
	}

	completion, err := s.agent.Complete(ctx, generateSystemPrompt,
		"Create a PlantUML diagram for these records:\n"+string(recordsJSON))
	if err != nil {
		agentErr := schema.NewErrorf(schema.ErrCodeAgent, "generate diagram source: %v", err).
			WithSession(sessionID).WithCause(err)
		s.markFailed(ctx, sessionID, agentErr)
		return nil, agentErr
	}

	source := agent.ExtractCodeBlock(completion, "plantuml")
	if strings.TrimSpace(source) == "" {
		// Models occasionally answer with prose only; fall back to the local
		// record diagram so the session still produces something renderable.
		s.logger.WarnContext(ctx, "agent completion had no usable source, using local fallback")
		source = agent.FallbackSource(records)
	}

	return s.runAndPersist(ctx, sessionID, source)
}

// Refine takes the final source of an earlier session, applies a chat
// instruction through the agent, and runs the result through the same retry
// controller under a fresh session.
func (s *Service) Refine(ctx context.Context, sessionID, instruction string) (*schema.SessionResult, error) {
	prev, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(prev.Source) == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"session %s has no source to refine", sessionID)
	}

	newID := uuid.New().String()
	ctx = logging.WithSessionID(ctx, newID)
	if err := s.store.CreateSession(ctx, &store.Session{
		ID:     newID,
		Kind:   schema.SessionKindRefine,
		Status: schema.SessionStatusPending,
	}); err != nil {
		return nil, err
	}

	completion, err := s.agent.Complete(ctx, refineSystemPrompt,
		"```plantuml\n"+prev.Source+"\n```\n\nUser request: "+instruction)
	if err != nil {
		agentErr := schema.NewErrorf(schema.ErrCodeAgent, "refine diagram source: %v", err).
			WithSession(newID).WithCause(err)
		s.markFailed(ctx, newID, agentErr)
		return nil, agentErr
	}

	source := agent.ExtractCodeBlock(completion, "plantuml")
	if strings.TrimSpace(source) == "" {
		// Nothing usable came back; keep the previous source so a refinement
		// can never lose a working diagram.
		s.logger.WarnContext(ctx, "refinement produced no usable source, keeping previous")
		source = prev.Source
	}

	return s.runAndPersist(ctx, newID, source)
}

// Session returns a persisted session together with its event history.
func (s *Service) Session(ctx context.Context, id string) (*store.Session, []*store.Event, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.store.GetEvents(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return sess, events, nil
}

func (s *Service) runAndPersist(ctx context.Context, sessionID, source string) (*schema.SessionResult, error) {
	result, runErr := s.controller.Run(ctx, sessionID, source)
	if result == nil {
		if runErr != nil {
			self := schema.NewErrorf(schema.ErrCodeRenderFailed, "run session: %v", runErr).WithCause(runErr)
			s.markFailed(ctx, sessionID, self)
			return nil, runErr
		}
		return nil, schema.NewError(schema.ErrCodeRenderFailed, "controller returned no result").WithSession(sessionID)
	}

	now := time.Now().UTC()
	update := store.SessionUpdate{
		Status:      &result.Status,
		Renders:     &result.Renders,
		Repairs:     &result.Repairs,
		CompletedAt: &now,
	}
	if result.FinalSource != "" {
		update.Source = &result.FinalSource
	}
	if result.ImagePath != "" {
		update.ImagePath = &result.ImagePath
	}
	if runErr != nil {
		if data, err := json.Marshal(errPayload(runErr)); err == nil {
			update.Error = data
		}
	}
	if err := s.store.UpdateSession(ctx, sessionID, update); err != nil {
		s.logger.ErrorContext(ctx, "persist session outcome failed", "error", err)
	}
	return result, runErr
}

func (s *Service) markFailed(ctx context.Context, sessionID string, cause error) {
	status := schema.SessionStatusFailed
	now := time.Now().UTC()
	update := store.SessionUpdate{Status: &status, CompletedAt: &now}
	if data, err := json.Marshal(errPayload(cause)); err == nil {
		update.Error = data
	}
	if err := s.store.UpdateSession(ctx, sessionID, update); err != nil {
		s.logger.ErrorContext(ctx, "persist session failure failed", "error", err)
	}
}

func errPayload(err error) map[string]any {
	payload := map[string]any{"message": err.Error()}
	var dfErr *schema.DiaforgeError
	if errors.As(err, &dfErr) {
		payload["code"] = dfErr.Code
		if len(dfErr.Details) > 0 {
			payload["details"] = dfErr.Details
		}
	}
	return payload
}
