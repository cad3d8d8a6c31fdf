package agent

import "context"

// Agent is the generative boundary. One call, one completion; retry policy
// belongs to the callers, not the transport.
type Agent interface {
	// Complete sends a system instruction plus a user message and returns
	// the raw completion text.
	Complete(ctx context.Context, system, user string) (string, error)
}
