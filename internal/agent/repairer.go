package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const repairSystemPrompt = "You are an expert in PlantUML. Fix the provided PlantUML code so it is " +
	"syntactically valid while preserving its intent: keep the same actors, components and flow, " +
	"and only correct structural issues such as missing @startuml/@enduml delimiters, malformed " +
	"element declarations, arrow syntax, unbalanced blocks, or improperly quoted identifiers. " +
	"Use only standard PlantUML syntax, no !define statements or custom macros. " +
	"Return ONLY a fenced ```plantuml``` code block."

const diagnosticLimit = 500

// Repairer wraps an Agent into the repair contract: it always hands back a
// renderable candidate, substituting the minimal empty diagram when the
// agent itself fails or answers with nothing usable.
type Repairer struct {
	agent  Agent
	logger *slog.Logger
}

// NewRepairer creates a repair adapter over the given agent.
func NewRepairer(a Agent, logger *slog.Logger) *Repairer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repairer{agent: a, logger: logger}
}

// Repair asks the agent to fix invalid source given the renderer diagnostic.
// The returned bool reports whether the fallback artifact was substituted.
// Repair never returns an error.
func (r *Repairer) Repair(ctx context.Context, source, diagnostic string) (string, bool) {
	if len(diagnostic) > diagnosticLimit {
		diagnostic = diagnostic[:diagnosticLimit]
	}
	user := fmt.Sprintf("ERROR:\n%s\n\nINVALID CODE:\n```plantuml\n%s\n```\n\nPlease fix and return valid PlantUML.", diagnostic, source)

	completion, err := r.agent.Complete(ctx, repairSystemPrompt, user)
	if err != nil {
		r.logger.WarnContext(ctx, "repair agent unavailable, substituting fallback", "error", err)
		return EmptyDiagram, true
	}

	fixed := ExtractCodeBlock(completion, "plantuml")
	if strings.TrimSpace(fixed) == "" {
		r.logger.WarnContext(ctx, "repair agent returned empty output, substituting fallback")
		return EmptyDiagram, true
	}
	return fixed, false
}
