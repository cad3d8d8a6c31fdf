package agent

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```([a-zA-Z0-9_-]*)\\n(.*?)```")

// ExtractCodeBlock pulls the first fenced code block out of a completion,
// preferring a block tagged with langHint. When the completion carries no
// fences at all the whole trimmed text is returned, since some models answer
// with bare source.
func ExtractCodeBlock(text, langHint string) string {
	matches := fencedBlock.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text)
	}
	if langHint != "" {
		for _, m := range matches {
			if strings.EqualFold(strings.TrimSpace(m[1]), langHint) {
				return strings.TrimSpace(m[2])
			}
		}
	}
	return strings.TrimSpace(matches[0][2])
}
