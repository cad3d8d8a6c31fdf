package render

// FailureClass buckets a renderer failure for the retry controller.
type FailureClass string

const (
	// ClassSyntax means the diagram source is malformed and a repair attempt
	// is worthwhile.
	ClassSyntax FailureClass = "syntax"
	// ClassOther means an environment or infrastructure fault that no amount
	// of source rewriting will fix.
	ClassOther FailureClass = "other"
)

// SyntaxExitStatus is the exit status PlantUML uses to signal malformed
// input source. Protocol constant of the renderer, not a knob.
const SyntaxExitStatus = 200

// Classify maps a non-zero renderer exit status to a failure class.
func Classify(exitStatus int) FailureClass {
	if exitStatus == SyntaxExitStatus {
		return ClassSyntax
	}
	return ClassOther
}
