// Package validation provides JSON Schema validation for enriched record
// payloads returned by the agent.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/atessari/diaforge/pkg/schema"
)

// recordsSchemaJSON is the JSON Schema for enriched record arrays, embedded
// so the validator has no runtime file dependencies.
const recordsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://diaforge.dev/schemas/records.json",
  "title": "Enriched Records",
  "type": "array",
  "items": { "$ref": "#/$defs/record" },
  "$defs": {
    "record": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {
          "type": ["string", "integer"]
        },
        "name": { "type": "string" },
        "type": { "type": "string" },
        "attributes": { "type": "object" },
        "relations": {
          "type": "array",
          "items": { "$ref": "#/$defs/relation" }
        }
      }
    },
    "relation": {
      "type": "object",
      "required": ["target"],
      "properties": {
        "target": { "type": ["string", "integer"] },
        "type": { "type": "string" },
        "reason": { "type": "string" }
      }
    }
  }
}`

// RecordValidator validates enriched record arrays against the embedded
// record schema. It is safe for concurrent use.
type RecordValidator struct {
	recordsSchema *jsonschema.Schema

	// mu guards the cache for dynamic schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewRecordValidator creates a RecordValidator with the record schema
// pre-compiled.
func NewRecordValidator() (*RecordValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(recordsSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal records schema: %w", err)
	}
	if err := c.AddResource("https://diaforge.dev/schemas/records.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add records schema resource: %w", err)
	}

	compiled, err := c.Compile("https://diaforge.dev/schemas/records.json")
	if err != nil {
		return nil, fmt.Errorf("compile records schema: %w", err)
	}

	return &RecordValidator{
		recordsSchema: compiled,
		cache:         make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateRecords validates a decoded record array against the record schema.
// Structural checks the schema cannot express (duplicate ids) run afterwards.
func (v *RecordValidator) ValidateRecords(records []map[string]any) error {
	if records == nil {
		return schema.NewError(schema.ErrCodeValidation, "records are nil")
	}

	doc, err := toJSONValue(records)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize records").WithCause(err)
	}

	if err := v.recordsSchema.Validate(doc); err != nil {
		return toDiaforgeError(err)
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		id := fmt.Sprintf("%v", rec["id"])
		if _, exists := seen[id]; exists {
			return schema.NewError(schema.ErrCodeValidation,
				fmt.Sprintf("duplicate record id %q", id))
		}
		seen[id] = struct{}{}
	}

	return nil
}

// ValidateAgainst validates data against a caller-supplied JSON Schema.
// Compiled schemas are cached by their source text.
func (v *RecordValidator) ValidateAgainst(data any, rawSchema []byte) error {
	if len(rawSchema) == 0 {
		return nil
	}

	compiled, err := v.getOrCompile(rawSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid schema").WithCause(err)
	}

	doc, err := toJSONValue(data)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize data").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toDiaforgeError(err)
	}

	return nil
}

func (v *RecordValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid compiler collisions.
	url := fmt.Sprintf("diaforge://schema/%d", len(v.cache))

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding so that numeric
// values become json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toDiaforgeError converts a jsonschema.ValidationError into a DiaforgeError
// with per-location violation messages.
func toDiaforgeError(err error) *schema.DiaforgeError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
