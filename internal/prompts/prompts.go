// Package prompts holds the static, versioned prompt templates used by the
// assessment stages and the chat layer.
package prompts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/example/control-assessor/internal/apperr"
)

type ID string

const (
	Classify          ID = "classify"
	Summary           ID = "summary"
	Risk              ID = "risk"
	Dependencies      ID = "dependencies"
	Gaps              ID = "gaps"
	IndustryPractices ID = "industry_practices"
	Score             ID = "score"
	ScoreReasoning    ID = "score_reasoning"
	ChatSystem        ID = "chat_system"
)

// Slot names used across the templates.
const (
	SlotInput   = "input"
	SlotControl = "control"
	SlotScore   = "score"
)

var slotPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Template is an immutable system-role instruction with named slots.
type Template struct {
	id     ID
	text   string
	slots  []string
	prefix string
}

func newTemplate(id ID, text string) Template {
	seen := map[string]struct{}{}
	var slots []string
	for _, m := range slotPattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		slots = append(slots, m[1])
	}
	sort.Strings(slots)
	prefix := text
	if loc := slotPattern.FindStringIndex(text); loc != nil {
		prefix = text[:loc[0]]
	}
	return Template{id: id, text: text, slots: slots, prefix: strings.TrimLeft(prefix, " \t\n")}
}

func (t Template) ID() string   { return string(t.id) }
func (t Template) Text() string { return t.text }

// Slots returns the sorted slot names the template requires.
func (t Template) Slots() []string { return append([]string(nil), t.slots...) }

// Render substitutes every slot. A slot without a value is a configuration
// error; extra values are ignored.
func (t Template) Render(vars map[string]string) (string, error) {
	for _, s := range t.slots {
		if _, ok := vars[s]; !ok {
			return "", apperr.Configuration("prompt "+string(t.id), fmt.Sprintf("missing value for slot {%s}", s))
		}
	}
	out := slotPattern.ReplaceAllStringFunc(t.text, func(m string) string {
		return vars[m[1:len(m)-1]]
	})
	return strings.TrimSpace(out), nil
}

var store = map[ID]Template{}

func register(id ID, text string) {
	store[id] = newTemplate(id, text)
}

// Get returns the template registered under id.
func Get(id ID) (Template, error) {
	t, ok := store[id]
	if !ok {
		return Template{}, apperr.Configuration("prompt", fmt.Sprintf("unknown template %q", id))
	}
	return t, nil
}

// MustGet is Get for package-level wiring where a missing template is a bug.
func MustGet(id ID) Template {
	t, err := Get(id)
	if err != nil {
		panic(err)
	}
	return t
}

// Identify reports which template produced a rendered prompt, matching the
// literal text that precedes the template's first slot.
func Identify(rendered string) (ID, bool) {
	var best ID
	n := 0
	for id, t := range store {
		p := strings.TrimSpace(t.prefix)
		if p != "" && len(p) > n && strings.HasPrefix(rendered, p) {
			best, n = id, len(p)
		}
	}
	return best, n > 0
}

// IDs lists every registered template id in sorted order.
func IDs() []ID {
	out := make([]ID, 0, len(store))
	for id := range store {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
