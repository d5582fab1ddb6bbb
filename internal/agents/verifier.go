package agents

import (
	"regexp"
	"strings"

	"github.com/example/control-assessor/internal/apperr"
)

// Verifier checks a stage's raw output and returns the text to store.
type Verifier interface {
	Verify(stage Stage, output string) (string, error)
}

// LabelVerifier accepts any non-empty output for open stages and maps output
// of closed-label stages onto the canonical label.
type LabelVerifier struct{}

var (
	emphasis   = strings.NewReplacer("**", "", "__", "", "`", "", `"`, "", "“", "", "”", "")
	leadingTag = regexp.MustCompile(`(?i)^(category|classification|rating|score|answer)\s*:\s*`)
)

func (LabelVerifier) Verify(stage Stage, output string) (string, error) {
	text := strings.TrimSpace(output)
	if text == "" {
		return "", &apperr.MalformedOutputError{Stage: stage.Name, Output: output, Allowed: stage.Allowed}
	}
	if len(stage.Allowed) == 0 {
		return text, nil
	}
	if label, ok := matchLabel(text, stage.Allowed); ok {
		return label, nil
	}
	return "", &apperr.MalformedOutputError{Stage: stage.Name, Output: output, Allowed: stage.Allowed}
}

func normalizeLabel(s string) string {
	s = emphasis.Replace(strings.TrimSpace(s))
	s = strings.Trim(s, " \t\r\n*_'-#")
	s = leadingTag.ReplaceAllString(s, "")
	s = strings.TrimRight(s, " .!:;,")
	return strings.Join(strings.Fields(s), " ")
}

// matchLabel resolves text to exactly one label: an exact case-insensitive
// match after normalisation, or else the single label mentioned as a whole
// phrase.
func matchLabel(text string, allowed []string) (string, bool) {
	norm := normalizeLabel(text)
	for _, l := range allowed {
		if strings.EqualFold(norm, l) {
			return l, true
		}
	}
	var found []string
	for _, l := range allowed {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(l) + `\b`)
		if re.MatchString(norm) {
			found = append(found, l)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}
