package render

import "context"

// Result is the outcome of one renderer invocation. Exactly one of the two
// shapes is populated: a success carries ImagePath, a failure carries
// ExitStatus plus the verbatim diagnostic streams.
type Result struct {
	ImagePath  string
	ExitStatus int
	Diagnostic string
}

// OK reports whether the invocation produced an image.
func (r *Result) OK() bool {
	return r.ExitStatus == 0 && r.ImagePath != ""
}

// Renderer turns diagram source text into an image artifact.
// Implementations must report renderer failures through Result, not through
// the error return; the error is reserved for faults before the renderer
// could be invoked at all (unwritable workdir, empty source).
type Renderer interface {
	Render(ctx context.Context, source string) (*Result, error)
}
