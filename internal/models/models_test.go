package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldOrder(t *testing.T) {
	keys := make([]string, 0)
	for _, f := range Fields() {
		keys = append(keys, f.Key())
	}
	assert.Equal(t, []string{
		"original_input",
		"control_classification",
		"control_summary",
		"control_risk",
		"control_dependencies",
		"control_gaps",
		"control_industry_practices",
		"control_score",
		"control_score_reasoning",
	}, keys)
	assert.Len(t, ReportFields(), 8)
	assert.Equal(t, FieldClassification, ReportFields()[0])
}

func TestFieldByKey(t *testing.T) {
	f, ok := FieldByKey("control_score")
	require.True(t, ok)
	assert.Equal(t, FieldScore, f)
	assert.Equal(t, "Score", f.Title())

	_, ok = FieldByKey("openai_api_key")
	assert.False(t, ok)
}

func TestAssessmentWithDoesNotMutateReceiver(t *testing.T) {
	base := NewAssessment("control text")
	next := base.With(FieldClassification, "Sanctions")

	assert.False(t, base.Has(FieldClassification))
	assert.True(t, next.Has(FieldClassification))
	assert.Equal(t, "Sanctions", next.Classification())
	assert.Equal(t, "control text", next.OriginalInput())
}

func TestAssessmentPresenceIsExplicit(t *testing.T) {
	a := NewAssessment("x").With(FieldSummary, "")
	assert.True(t, a.Has(FieldSummary), "an empty value is still present")
	assert.False(t, a.Has(FieldRisk))
	assert.Equal(t, []Field{FieldRisk, FieldScore}, a.Missing(FieldSummary, FieldRisk, FieldScore))
	assert.False(t, a.Complete())
}

func TestAssessmentComplete(t *testing.T) {
	a := NewAssessment("x")
	for _, f := range ReportFields() {
		a = a.With(f, f.Title()+" text")
	}
	assert.True(t, a.Complete())
	assert.Equal(t, Fields(), a.Populated())
}

func TestAssessmentJSON(t *testing.T) {
	a := NewAssessment("desc").With(FieldScore, "High")
	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"original_input":"desc","control_score":"High"}`, string(b))

	var back Assessment
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, a, back)

	assert.Error(t, json.Unmarshal([]byte(`{"bogus":"x"}`), &back))
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())
}

func TestFieldJSONText(t *testing.T) {
	b, err := json.Marshal(map[string]Field{"f": FieldScore})
	require.NoError(t, err)
	assert.JSONEq(t, `{"f":"control_score"}`, string(b))

	var out struct{ F Field }
	require.NoError(t, json.Unmarshal([]byte(`{"F":"control_gaps"}`), &out))
	assert.Equal(t, FieldGaps, out.F)
	assert.Error(t, json.Unmarshal([]byte(`{"F":"nope"}`), &out))
}
