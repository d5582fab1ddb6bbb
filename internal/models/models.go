package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Field names one slot of the assessment state. The declaration order is the
// pipeline order.
type Field int

const (
	FieldOriginalInput Field = iota
	FieldClassification
	FieldSummary
	FieldRisk
	FieldDependencies
	FieldGaps
	FieldIndustryPractices
	FieldScore
	FieldScoreReasoning

	fieldCount
)

var fieldKeys = [fieldCount]string{
	"original_input",
	"control_classification",
	"control_summary",
	"control_risk",
	"control_dependencies",
	"control_gaps",
	"control_industry_practices",
	"control_score",
	"control_score_reasoning",
}

var fieldTitles = [fieldCount]string{
	"Control Description",
	"Classification",
	"Summary",
	"Risks",
	"Dependencies",
	"Gaps",
	"Industry Practices",
	"Score",
	"Score Reasoning",
}

// Fields returns every field in pipeline order.
func Fields() []Field {
	out := make([]Field, 0, fieldCount)
	for f := FieldOriginalInput; f < fieldCount; f++ {
		out = append(out, f)
	}
	return out
}

// ReportFields returns the eight produced fields in pipeline order.
func ReportFields() []Field { return Fields()[1:] }

func (f Field) Valid() bool { return f >= FieldOriginalInput && f < fieldCount }

func (f Field) Key() string {
	if !f.Valid() {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldKeys[f]
}

func (f Field) Title() string {
	if !f.Valid() {
		return f.Key()
	}
	return fieldTitles[f]
}

func (f Field) String() string { return f.Key() }

func (f Field) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid field %d", int(f))
	}
	return []byte(f.Key()), nil
}

func (f *Field) UnmarshalText(b []byte) error {
	v, ok := FieldByKey(string(b))
	if !ok {
		return fmt.Errorf("unknown assessment field %q", string(b))
	}
	*f = v
	return nil
}

// FieldByKey resolves a state key such as "control_score".
func FieldByKey(key string) (Field, bool) {
	key = strings.TrimSpace(key)
	for i, k := range fieldKeys {
		if k == key {
			return Field(i), true
		}
	}
	return 0, false
}

// Assessment is the per-run record of every control-analysis field. It is a
// value: With returns a modified copy and never mutates the receiver.
type Assessment struct {
	values  [fieldCount]string
	present [fieldCount]bool
}

// NewAssessment seeds a state with the caller-supplied description.
func NewAssessment(input string) Assessment {
	return Assessment{}.With(FieldOriginalInput, input)
}

func (a Assessment) Get(f Field) (string, bool) {
	if !f.Valid() {
		return "", false
	}
	return a.values[f], a.present[f]
}

func (a Assessment) Has(f Field) bool {
	_, ok := a.Get(f)
	return ok
}

// Value returns the field's text, or "" when absent.
func (a Assessment) Value(f Field) string {
	v, _ := a.Get(f)
	return v
}

func (a Assessment) With(f Field, v string) Assessment {
	if !f.Valid() {
		return a
	}
	a.values[f] = v
	a.present[f] = true
	return a
}

// Missing returns the subset of fs not yet populated, in the given order.
func (a Assessment) Missing(fs ...Field) []Field {
	var out []Field
	for _, f := range fs {
		if !a.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Complete reports whether every field is present and non-empty.
func (a Assessment) Complete() bool {
	for _, f := range Fields() {
		if strings.TrimSpace(a.Value(f)) == "" {
			return false
		}
	}
	return true
}

// Populated returns the present fields in pipeline order.
func (a Assessment) Populated() []Field {
	var out []Field
	for _, f := range Fields() {
		if a.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (a Assessment) OriginalInput() string     { return a.Value(FieldOriginalInput) }
func (a Assessment) Classification() string    { return a.Value(FieldClassification) }
func (a Assessment) Summary() string           { return a.Value(FieldSummary) }
func (a Assessment) Risk() string              { return a.Value(FieldRisk) }
func (a Assessment) Dependencies() string      { return a.Value(FieldDependencies) }
func (a Assessment) Gaps() string              { return a.Value(FieldGaps) }
func (a Assessment) IndustryPractices() string { return a.Value(FieldIndustryPractices) }
func (a Assessment) Score() string             { return a.Value(FieldScore) }
func (a Assessment) ScoreReasoning() string    { return a.Value(FieldScoreReasoning) }

// MarshalJSON encodes present fields under their state keys.
func (a Assessment) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, fieldCount)
	for _, f := range a.Populated() {
		m[f.Key()] = a.values[f]
	}
	return json.Marshal(m)
}

func (a *Assessment) UnmarshalJSON(b []byte) error {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out Assessment
	for k, v := range m {
		f, ok := FieldByKey(k)
		if !ok {
			return fmt.Errorf("unknown assessment field %q", k)
		}
		out = out.With(f, v)
	}
	*a = out
	return nil
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is one entry of a conversation log.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Run records one pipeline execution.
type Run struct {
	Status     Status     `json:"status"`
	Assessment Assessment `json:"assessment"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}
