package schema

// Event type constants for the session event log.
const (
	EventSessionStarted   = "session_started"
	EventSessionSucceeded = "session_succeeded"
	EventSessionExhausted = "session_exhausted"
	EventSessionFailed    = "session_failed"

	EventRenderStarted  = "render_started"
	EventRenderSucceeded = "render_succeeded"
	EventRenderFailed   = "render_failed"

	EventRepairInvoked  = "repair_invoked"
	EventRepairFallback = "repair_fallback"

	EventRecordsEnriched  = "records_enriched"
	EventRecordsReinserted = "records_reinserted"
)
