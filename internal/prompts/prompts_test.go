package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/control-assessor/internal/apperr"
)

func TestTemplateSlots(t *testing.T) {
	cases := map[ID][]string{
		Classify:          {SlotInput},
		Summary:           {SlotInput},
		Risk:              {SlotControl},
		Dependencies:      {SlotControl},
		Gaps:              {SlotControl},
		IndustryPractices: {SlotControl},
		Score:             {SlotControl},
		ScoreReasoning:    {SlotControl, SlotScore},
		ChatSystem:        nil,
	}
	for id, want := range cases {
		t.Run(string(id), func(t *testing.T) {
			tpl, err := Get(id)
			require.NoError(t, err)
			assert.Equal(t, want, tpl.Slots())
		})
	}
}

func TestRenderSubstitutesSlots(t *testing.T) {
	tpl := MustGet(ScoreReasoning)
	out, err := tpl.Render(map[string]string{SlotControl: "OFAC screening", SlotScore: "High"})
	require.NoError(t, err)
	assert.Contains(t, out, "# Control Description\nOFAC screening")
	assert.Contains(t, out, "This control is rated as\nHigh")
	assert.NotContains(t, out, "{control}")
	assert.NotContains(t, out, "{score}")
}

func TestRenderMissingSlotIsConfigurationError(t *testing.T) {
	_, err := MustGet(ScoreReasoning).Render(map[string]string{SlotControl: "x"})
	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
	assert.Contains(t, err.Error(), "{score}")
}

func TestUnknownTemplate(t *testing.T) {
	_, err := Get("nope")
	assert.True(t, apperr.IsConfiguration(err))
	assert.Panics(t, func() { MustGet("nope") })
}

func TestRubricSharedByScoreTemplates(t *testing.T) {
	for _, id := range []ID{Score, ScoreReasoning} {
		text := MustGet(id).Text()
		assert.Contains(t, text, Rubric, id)
		assert.Contains(t, text, RubricVersion, id)
	}
	for _, cat := range []string{"Control Design & Risk Coverage", "Implementation & Operation", "Monitoring & Reporting"} {
		assert.Contains(t, Rubric, cat)
	}
}

func TestClassifyTemplateListsEveryLabel(t *testing.T) {
	text := MustGet(Classify).Text()
	for _, l := range ClassificationLabels {
		assert.Contains(t, text, "-- "+l+"\n")
		assert.Contains(t, text, "- "+l+": Controls that ")
	}
	assert.Len(t, ClassificationLabels, 8)
}

func TestScoreTemplateNamesLabels(t *testing.T) {
	assert.Contains(t, MustGet(Score).Text(), "Return exactly one of: Low, Medium, High")
	assert.Contains(t, MustGet(ScoreReasoning).Text(), `"Low", "Medium", or "High"`)
}

func TestIDsSorted(t *testing.T) {
	ids := IDs()
	assert.Len(t, ids, 9)
	for i := 1; i < len(ids); i++ {
		assert.True(t, strings.Compare(string(ids[i-1]), string(ids[i])) < 0)
	}
}

func TestIdentifyRenderedPrompts(t *testing.T) {
	vars := map[string]string{SlotInput: "x", SlotControl: "x", SlotScore: "Low"}
	for _, id := range IDs() {
		out, err := MustGet(id).Render(vars)
		require.NoError(t, err)
		got, ok := Identify(out)
		require.True(t, ok, id)
		assert.Equal(t, id, got)
	}
	_, ok := Identify("what is the score based on?")
	assert.False(t, ok)
}
