package rules

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/atessari/diaforge/pkg/schema"
)

// FatalRules is an ordered list of expr predicates evaluated against a
// renderer failure. A matching rule forces the failure to be treated as
// non-repairable even when the exit status says syntax. Rules can only make
// a failure fatal, never retryable.
//
// The expression environment exposes `exit_status` (int) and `diagnostic`
// (string), e.g.:
//
//	diagnostic contains "java.lang.OutOfMemoryError"
//	exit_status == 200 and len(diagnostic) == 0
//
// Programs are compiled once at construction and are safe for concurrent use.
type FatalRules struct {
	programs []*vm.Program
	sources  []string
}

type ruleEnv struct {
	ExitStatus int    `expr:"exit_status"`
	Diagnostic string `expr:"diagnostic"`
}

// Compile parses the given rule expressions. An empty list yields a rule set
// that never matches.
func Compile(exprs []string) (*FatalRules, error) {
	r := &FatalRules{}
	for _, src := range exprs {
		prg, err := expr.Compile(src, expr.Env(ruleEnv{}), expr.AsBool())
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"compile fatal rule %q: %v", src, err).WithCause(err)
		}
		r.programs = append(r.programs, prg)
		r.sources = append(r.sources, src)
	}
	return r, nil
}

// Match reports whether any rule classifies the failure as fatal, along with
// the matching rule's source text.
func (r *FatalRules) Match(exitStatus int, diagnostic string) (bool, string) {
	if r == nil {
		return false, ""
	}
	env := ruleEnv{ExitStatus: exitStatus, Diagnostic: diagnostic}
	for i, prg := range r.programs {
		out, err := expr.Run(prg, env)
		if err != nil {
			// A rule that cannot evaluate never blocks a repair attempt.
			continue
		}
		if matched, ok := out.(bool); ok && matched {
			return true, r.sources[i]
		}
	}
	return false, ""
}
