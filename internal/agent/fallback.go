package agent

import (
	"regexp"
	"strings"

	"github.com/atessari/diaforge/pkg/schema"
)

// EmptyDiagram is the minimal always-valid artifact substituted when a
// repair call produces nothing usable.
const EmptyDiagram = "@startuml\n@enduml"

var unsafeChars = regexp.MustCompile(`[^\w\s-]`)

const (
	fallbackMaxComponents = 10
	fallbackMaxRelations  = 5
)

// FallbackSource builds a simple, trivially valid PlantUML component diagram
// straight from the records, with no generative call involved. Used as the
// last-resort artifact when generation keeps producing invalid source.
func FallbackSource(records []schema.Record) string {
	if len(records) == 0 {
		return EmptyDiagram
	}

	lines := []string{"@startuml"}
	aliases := map[string]string{}

	limit := len(records)
	if limit > fallbackMaxComponents {
		limit = fallbackMaxComponents
	}
	for _, rec := range records[:limit] {
		name := rec.Name
		if name == "" {
			name = rec.ID
		}
		clean := strings.TrimSpace(unsafeChars.ReplaceAllString(name, ""))
		if clean == "" {
			clean = "Component_" + unsafeChars.ReplaceAllString(rec.ID, "")
		}
		alias := strings.ReplaceAll(clean, " ", "_")
		aliases[rec.ID] = alias

		keyword := "component"
		switch strings.ToLower(rec.Type) {
		case "database", "db":
			keyword = "database"
		case "node", "host", "server":
			keyword = "node"
		}
		lines = append(lines, keyword+` "`+clean+`" as `+alias)
	}

	relLimit := len(records)
	if relLimit > fallbackMaxRelations {
		relLimit = fallbackMaxRelations
	}
	for _, rec := range records[:relLimit] {
		source, ok := aliases[rec.ID]
		if !ok {
			continue
		}
		for _, rel := range rec.Relations {
			target, ok := aliases[rel.Target]
			if !ok {
				target = strings.ReplaceAll(strings.TrimSpace(unsafeChars.ReplaceAllString(rel.Target, "")), " ", "_")
			}
			if target == "" {
				continue
			}
			lines = append(lines, source+" --> "+target)
			break
		}
	}

	lines = append(lines, "@enduml")
	return strings.Join(lines, "\n")
}
