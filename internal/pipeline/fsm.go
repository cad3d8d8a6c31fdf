package pipeline

import (
	"context"

	"github.com/atessari/diaforge/internal/store"
	"github.com/atessari/diaforge/pkg/schema"
)

// ValidSessionTransitions is the session lifecycle graph. Terminal states
// admit no outgoing transitions.
var ValidSessionTransitions = map[schema.SessionStatus][]schema.SessionStatus{
	schema.SessionStatusPending:   {schema.SessionStatusRendering, schema.SessionStatusFailed},
	schema.SessionStatusRendering: {schema.SessionStatusRepairing, schema.SessionStatusSucceeded, schema.SessionStatusExhausted, schema.SessionStatusFailed},
	schema.SessionStatusRepairing: {schema.SessionStatusRendering},
	schema.SessionStatusSucceeded: {},
	schema.SessionStatusExhausted: {},
	schema.SessionStatusFailed:    {},
}

// SessionFSM validates session state transitions and emits the matching
// lifecycle events via the appender.
type SessionFSM struct {
	appender store.EventAppender
}

// NewSessionFSM creates a SessionFSM that emits events via the given appender.
func NewSessionFSM(appender store.EventAppender) *SessionFSM {
	return &SessionFSM{appender: appender}
}

// Transition validates and executes a session state transition.
func (f *SessionFSM) Transition(ctx context.Context, sessionID string, from, to schema.SessionStatus) error {
	if !isValidSessionTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid session transition: %s -> %s", from, to).
			WithSession(sessionID).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}

	if f.appender == nil {
		return nil
	}
	eventType := sessionEventType(from, to)
	if eventType == "" {
		return nil
	}
	event := &store.Event{
		SessionID: sessionID,
		Type:      eventType,
	}
	if err := f.appender.AppendEvent(ctx, event); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "emit session event: %s", err.Error()).WithCause(err)
	}
	return nil
}

func isValidSessionTransition(from, to schema.SessionStatus) bool {
	allowed, ok := ValidSessionTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func sessionEventType(from, to schema.SessionStatus) string {
	switch to {
	case schema.SessionStatusRendering:
		// Only the very first entry into rendering marks the session start;
		// re-entries after a repair are covered by attempt events.
		if from == schema.SessionStatusPending {
			return schema.EventSessionStarted
		}
		return ""
	case schema.SessionStatusSucceeded:
		return schema.EventSessionSucceeded
	case schema.SessionStatusExhausted:
		return schema.EventSessionExhausted
	case schema.SessionStatusFailed:
		return schema.EventSessionFailed
	default:
		return ""
	}
}
