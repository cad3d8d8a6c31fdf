package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeSyntax            = "SYNTAX_ERROR"
	ErrCodeRenderFailed      = "RENDER_FAILED"
	ErrCodeRepairExhausted   = "REPAIR_EXHAUSTED"
	ErrCodeAgent             = "AGENT_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeStore             = "STORE_ERROR"
)

// DiaforgeError is the structured error type for all diaforge operations.
type DiaforgeError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Cause     error          `json:"-"`
}

func (e *DiaforgeError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("[%s] session %s: %s", e.Code, e.SessionID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DiaforgeError) Unwrap() error {
	return e.Cause
}

// NewError creates a new DiaforgeError.
func NewError(code, message string) *DiaforgeError {
	return &DiaforgeError{Code: code, Message: message}
}

// NewErrorf creates a new DiaforgeError with a formatted message.
func NewErrorf(code, format string, args ...any) *DiaforgeError {
	return &DiaforgeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithSession attaches a session ID to the error.
func (e *DiaforgeError) WithSession(sessionID string) *DiaforgeError {
	e.SessionID = sessionID
	return e
}

// WithCause attaches an underlying cause.
func (e *DiaforgeError) WithCause(err error) *DiaforgeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *DiaforgeError) WithDetails(details map[string]any) *DiaforgeError {
	e.Details = details
	return e
}
