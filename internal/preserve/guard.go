package preserve

import (
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/atessari/diaforge/pkg/schema"
)

// DefaultIDQuery extracts the record identifier field.
const DefaultIDQuery = ".id"

// Guard enforces the id-superset invariant after an AI-driven list
// transformation: every id present in the original collection must still be
// present afterwards. Dropped records are reinserted verbatim at the end;
// records already in the transformed list are never removed or reordered.
//
// The identifier is pulled from each item with a gojq query so collections
// keyed by something other than "id" (e.g. test_case_id) work without a
// schema change. The compiled query is reusable across goroutines.
type Guard struct {
	query    *gojq.Query
	querySrc string
}

// NewGuard compiles the given gojq id query. An empty query means
// DefaultIDQuery.
func NewGuard(idQuery string) (*Guard, error) {
	if idQuery == "" {
		idQuery = DefaultIDQuery
	}
	q, err := gojq.Parse(idQuery)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"parse id query %q: %v", idQuery, err).WithCause(err)
	}
	return &Guard{query: q, querySrc: idQuery}, nil
}

// Preserve returns transformed plus any original items whose id is missing
// from it, appended in their original order. Applying Preserve to its own
// output is a no-op.
func (g *Guard) Preserve(original, transformed []map[string]any) ([]map[string]any, error) {
	present := make(map[string]struct{}, len(transformed))
	for _, item := range transformed {
		if id, ok := g.id(item); ok {
			present[id] = struct{}{}
		}
	}

	out := append([]map[string]any{}, transformed...)
	for _, item := range original {
		id, ok := g.id(item)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"original item has no id under query %q", g.querySrc)
		}
		if _, found := present[id]; found {
			continue
		}
		out = append(out, item)
		present[id] = struct{}{}
	}
	return out, nil
}

// Missing returns the ids of original items absent from transformed, in
// original order.
func (g *Guard) Missing(original, transformed []map[string]any) ([]string, error) {
	present := make(map[string]struct{}, len(transformed))
	for _, item := range transformed {
		if id, ok := g.id(item); ok {
			present[id] = struct{}{}
		}
	}
	var missing []string
	for _, item := range original {
		id, ok := g.id(item)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"original item has no id under query %q", g.querySrc)
		}
		if _, found := present[id]; !found {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// id runs the query against one item and normalizes the result to a string.
func (g *Guard) id(item map[string]any) (string, bool) {
	iter := g.query.Run(map[string]any(item))
	v, ok := iter.Next()
	if !ok {
		return "", false
	}
	if _, isErr := v.(error); isErr {
		return "", false
	}
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	default:
		return fmt.Sprintf("%v", t), true
	}
}
