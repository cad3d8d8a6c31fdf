package render

import (
	"regexp"
	"sort"
	"strings"
)

var actorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)participant\s+"([^"]+)"`),
	regexp.MustCompile(`(?i)participant\s+(\w+)`),
	regexp.MustCompile(`(?i)actor\s+"([^"]+)"`),
	regexp.MustCompile(`(?i)actor\s+(\w+)`),
	regexp.MustCompile(`(?i)component\s+"([^"]+)"`),
	regexp.MustCompile(`(?i)component\s+(\w+)`),
	regexp.MustCompile(`(?i)node\s+"([^"]+)"`),
	regexp.MustCompile(`(?i)database\s+"([^"]+)"`),
	regexp.MustCompile(`(?i)entity\s+"([^"]+)"`),
}

// ExtractActors pulls the declared participants/components out of PlantUML
// source. Best effort; used only for result metadata, never for control flow.
func ExtractActors(source string) []string {
	seen := map[string]struct{}{}
	for _, p := range actorPatterns {
		for _, m := range p.FindAllStringSubmatch(source, -1) {
			name := strings.TrimSpace(m[1])
			if name != "" {
				seen[name] = struct{}{}
			}
		}
	}
	actors := make([]string, 0, len(seen))
	for a := range seen {
		actors = append(actors, a)
	}
	sort.Strings(actors)
	return actors
}

// SourceRelation is an arrow line parsed out of PlantUML source.
type SourceRelation struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// ExtractRelations returns the arrow edges found in PlantUML source.
func ExtractRelations(source string) []SourceRelation {
	var rels []SourceRelation
	for _, line := range strings.Split(source, "\n") {
		if !strings.Contains(line, "->") {
			continue
		}
		label := ""
		arrowPart := line
		if idx := strings.Index(line, ":"); idx >= 0 {
			arrowPart = line[:idx]
			label = strings.TrimSpace(line[idx+1:])
		}
		tokens := strings.Fields(strings.TrimSpace(arrowPart))
		if len(tokens) < 3 {
			continue
		}
		rels = append(rels, SourceRelation{
			Source: strings.Trim(tokens[0], `"`),
			Target: strings.Trim(tokens[len(tokens)-1], `"`),
			Label:  label,
		})
	}
	return rels
}
