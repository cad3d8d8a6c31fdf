package schema

// SessionStatus represents the lifecycle state of a render session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusRendering SessionStatus = "rendering"
	SessionStatusRepairing SessionStatus = "repairing"
	SessionStatusSucceeded SessionStatus = "succeeded"
	SessionStatusExhausted SessionStatus = "exhausted"
	SessionStatusFailed    SessionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusSucceeded, SessionStatusExhausted, SessionStatusFailed:
		return true
	}
	return false
}

// SessionKind distinguishes what produced the candidate source.
type SessionKind string

const (
	SessionKindGenerate SessionKind = "generate"
	SessionKindRefine   SessionKind = "refine"
)

// RenderAttempt is one renderer invocation within a session, kept for
// diagnostic history.
type RenderAttempt struct {
	Attempt    int    `json:"attempt"`
	ExitStatus int    `json:"exit_status"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// SessionResult is what the pipeline hands back to callers: either an image
// path plus the final source, or a terminal error carried separately.
type SessionResult struct {
	SessionID   string          `json:"session_id"`
	Status      SessionStatus   `json:"status"`
	ImagePath   string          `json:"image_path,omitempty"`
	FinalSource string          `json:"final_source,omitempty"`
	Renders     int             `json:"renders"`
	Repairs     int             `json:"repairs"`
	History     []RenderAttempt `json:"history,omitempty"`
}
