package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/atessari/diaforge/internal/logging"
	"github.com/atessari/diaforge/internal/render"
	"github.com/atessari/diaforge/internal/rules"
	"github.com/atessari/diaforge/internal/store"
	"github.com/atessari/diaforge/pkg/schema"
)

// DefaultMaxRepairs bounds the repair attempts per session; maxRepairs+1 is
// the render ceiling.
const DefaultMaxRepairs = 2

// Repairer transforms invalid diagram source into a new candidate given the
// renderer diagnostic. It must always return something renderable; the bool
// reports whether a fallback artifact was substituted.
type Repairer interface {
	Repair(ctx context.Context, source, diagnostic string) (string, bool)
}

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	Renderer   render.Renderer
	Repairer   Repairer
	FatalRules *rules.FatalRules
	MaxRepairs int
	Events     store.EventAppender
	Logger     *slog.Logger
}

// Controller drives one render session through the bounded
// render → classify → repair loop. It holds no per-session state and is safe
// to share across concurrent sessions.
type Controller struct {
	renderer   render.Renderer
	repairer   Repairer
	fatal      *rules.FatalRules
	maxRepairs int
	events     store.EventAppender
	fsm        *SessionFSM
	logger     *slog.Logger
}

// NewController creates a Controller with defaults applied. MaxRepairs zero
// means DefaultMaxRepairs; pass a negative value for no repairs at all.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.MaxRepairs == 0 {
		cfg.MaxRepairs = DefaultMaxRepairs
	}
	if cfg.MaxRepairs < 0 {
		cfg.MaxRepairs = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		renderer:   cfg.Renderer,
		repairer:   cfg.Repairer,
		fatal:      cfg.FatalRules,
		maxRepairs: cfg.MaxRepairs,
		events:     cfg.Events,
		fsm:        NewSessionFSM(cfg.Events),
		logger:     cfg.Logger,
	}
}

// MaxRepairs returns the configured repair ceiling.
func (c *Controller) MaxRepairs() int { return c.maxRepairs }

// Run takes a candidate source through render attempts until it succeeds,
// a non-repairable failure occurs, or the repair ceiling is reached.
// On terminal failure the returned result still carries the attempt history;
// the error explains the failure (RENDER_FAILED or REPAIR_EXHAUSTED).
func (c *Controller) Run(ctx context.Context, sessionID, source string) (*schema.SessionResult, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	result := &schema.SessionResult{SessionID: sessionID, Status: schema.SessionStatusPending}

	status := schema.SessionStatusPending
	if err := c.transition(ctx, sessionID, &status, schema.SessionStatusRendering); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		attemptCtx := logging.WithAttempt(ctx, attempt)
		c.emit(attemptCtx, sessionID, schema.EventRenderStarted, map[string]any{"attempt": attempt})

		res, err := c.renderer.Render(attemptCtx, source)
		result.Renders++
		if err != nil {
			c.logger.ErrorContext(attemptCtx, "renderer could not be invoked", "error", err)
			_ = c.transition(attemptCtx, sessionID, &status, schema.SessionStatusFailed)
			result.Status = status
			return result, wrapSessionErr(err, sessionID)
		}

		if res.OK() {
			c.emit(attemptCtx, sessionID, schema.EventRenderSucceeded, map[string]any{"attempt": attempt, "image_path": res.ImagePath})
			if err := c.transition(attemptCtx, sessionID, &status, schema.SessionStatusSucceeded); err != nil {
				return nil, err
			}
			result.Status = status
			result.ImagePath = res.ImagePath
			result.FinalSource = source
			c.logger.InfoContext(attemptCtx, "render succeeded", "renders", result.Renders, "repairs", result.Repairs)
			return result, nil
		}

		result.History = append(result.History, schema.RenderAttempt{
			Attempt:    attempt,
			ExitStatus: res.ExitStatus,
			Diagnostic: res.Diagnostic,
		})
		c.emit(attemptCtx, sessionID, schema.EventRenderFailed, map[string]any{
			"attempt":     attempt,
			"exit_status": res.ExitStatus,
			"diagnostic":  res.Diagnostic,
		})

		class := render.Classify(res.ExitStatus)
		if class == render.ClassSyntax {
			if matched, rule := c.fatal.Match(res.ExitStatus, res.Diagnostic); matched {
				c.logger.WarnContext(attemptCtx, "fatal rule matched, skipping repair", "rule", rule)
				class = render.ClassOther
			}
		}

		if class == render.ClassOther {
			_ = c.transition(attemptCtx, sessionID, &status, schema.SessionStatusExhausted)
			result.Status = status
			return result, schema.NewErrorf(schema.ErrCodeRenderFailed,
				"renderer failed with exit status %d", res.ExitStatus).
				WithSession(sessionID).
				WithDetails(map[string]any{"exit_status": res.ExitStatus, "diagnostic": res.Diagnostic})
		}

		if attempt == c.maxRepairs {
			_ = c.transition(attemptCtx, sessionID, &status, schema.SessionStatusExhausted)
			result.Status = status
			return result, schema.NewErrorf(schema.ErrCodeRepairExhausted,
				"source still invalid after %d render attempts", result.Renders).
				WithSession(sessionID).
				WithDetails(map[string]any{
					"renders":         result.Renders,
					"repairs":         result.Repairs,
					"last_diagnostic": res.Diagnostic,
					"history":         result.History,
				})
		}

		if err := c.transition(attemptCtx, sessionID, &status, schema.SessionStatusRepairing); err != nil {
			return nil, err
		}
		c.emit(attemptCtx, sessionID, schema.EventRepairInvoked, map[string]any{"attempt": attempt})

		// Most recent diagnostic only; the full history stays on the result.
		newSource, fellBack := c.repairer.Repair(attemptCtx, source, res.Diagnostic)
		result.Repairs++
		if fellBack {
			c.emit(attemptCtx, sessionID, schema.EventRepairFallback, map[string]any{"attempt": attempt})
		}
		source = newSource

		if err := c.transition(attemptCtx, sessionID, &status, schema.SessionStatusRendering); err != nil {
			return nil, err
		}
	}
}

func (c *Controller) transition(ctx context.Context, sessionID string, status *schema.SessionStatus, to schema.SessionStatus) error {
	if err := c.fsm.Transition(ctx, sessionID, *status, to); err != nil {
		return err
	}
	*status = to
	return nil
}

func (c *Controller) emit(ctx context.Context, sessionID, eventType string, payload map[string]any) {
	if c.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}
	if err := c.events.AppendEvent(ctx, &store.Event{SessionID: sessionID, Type: eventType, Payload: data}); err != nil {
		c.logger.WarnContext(ctx, "append event failed", "event_type", eventType, "error", err)
	}
}

func wrapSessionErr(err error, sessionID string) error {
	var dfErr *schema.DiaforgeError
	if errors.As(err, &dfErr) {
		if dfErr.SessionID == "" {
			dfErr.SessionID = sessionID
		}
		return dfErr
	}
	return schema.NewErrorf(schema.ErrCodeRenderFailed, "render invocation: %v", err).
		WithSession(sessionID).WithCause(err)
}
