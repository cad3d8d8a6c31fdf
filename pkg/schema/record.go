package schema

import (
	"encoding/json"
	"strings"
)

// Record is a single test-case or CMDB item. ID is stable and unique within
// a collection; everything else is free-form data carried through the
// pipeline untouched.
type Record struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Type       string         `json:"type,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Relations  []Relation     `json:"relations,omitempty"`
}

// Relation is a directed link from one record to another.
type Relation struct {
	Target string `json:"target"`
	Type   string `json:"type,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// NormalizeRecord maps a loose JSON object into a Record. Id falls back
// through the common identifier keys; relation-like keys are folded into
// Relations; everything else lands in Attributes.
func NormalizeRecord(raw map[string]any) Record {
	rec := Record{Attributes: map[string]any{}}

	for _, key := range []string{"id", "name", "component", "hostname", "uid", "key"} {
		if v, ok := raw[key].(string); ok && v != "" {
			rec.ID = v
			break
		}
	}
	if v, ok := raw["name"].(string); ok && v != "" {
		rec.Name = v
	} else {
		rec.Name = rec.ID
	}
	for _, key := range []string{"type", "role"} {
		if v, ok := raw[key].(string); ok && v != "" {
			rec.Type = v
			break
		}
	}
	if rec.Type == "" {
		rec.Type = "component"
	}

	for k, v := range raw {
		switch strings.ToLower(k) {
		case "depends_on", "depends", "relations", "relation", "links", "connected_to":
			rec.Relations = append(rec.Relations, parseRelations(v)...)
		case "id", "name", "type", "role":
			// already mapped
		default:
			rec.Attributes[k] = v
		}
	}
	return rec
}

func parseRelations(v any) []Relation {
	var rels []Relation
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			switch e := item.(type) {
			case string:
				rels = append(rels, Relation{Target: e, Type: "depends_on"})
			case map[string]any:
				rel := Relation{Type: "depends_on"}
				if s, ok := e["target"].(string); ok {
					rel.Target = s
				}
				if s, ok := e["type"].(string); ok && s != "" {
					rel.Type = s
				}
				if s, ok := e["reason"].(string); ok {
					rel.Reason = s
				}
				if rel.Target != "" {
					rels = append(rels, rel)
				}
			}
		}
	case string:
		for _, target := range strings.Split(t, ",") {
			if target = strings.TrimSpace(target); target != "" {
				rels = append(rels, Relation{Target: target, Type: "depends_on"})
			}
		}
	}
	return rels
}

// DecodeRecords parses a JSON array of loose objects into Records.
func DecodeRecords(data []byte) ([]Record, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "decode records: %v", err).WithCause(err)
	}
	records := make([]Record, 0, len(raw))
	for _, r := range raw {
		records = append(records, NormalizeRecord(r))
	}
	return records, nil
}

// RecordIDs returns the ids of the given records in order.
func RecordIDs(records []Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
