package agents

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/config"
	"github.com/example/control-assessor/internal/models"
	"github.com/example/control-assessor/internal/providers/llm"
)

func TestDefaultStagesOrderAndModels(t *testing.T) {
	stages := DefaultStages()

	var outputs []models.Field
	for _, s := range stages {
		outputs = append(outputs, s.Output)
	}
	if diff := cmp.Diff(models.ReportFields(), outputs); diff != "" {
		t.Fatalf("stage outputs (-want +got):\n%s", diff)
	}

	type setting struct {
		Model  string
		Temp   *float64
		Effort string
	}
	want := map[string]setting{
		"classify":           {"gpt-4o-mini", llm.Temp(0), ""},
		"summary":            {"o3-mini", nil, "low"},
		"risk":               {"o3-mini", nil, "low"},
		"dependencies":       {"o3-mini", nil, "high"},
		"gaps":               {"o3-mini", nil, "high"},
		"industry_practices": {"o3-mini", nil, "high"},
		"score":              {"o3-mini", nil, "high"},
		"score_reasoning":    {"o3-mini", nil, "high"},
	}
	for _, s := range stages {
		got := setting{s.Model.Model, s.Model.Temperature, s.Model.ReasoningEffort}
		assert.Equal(t, want[s.Name], got, s.Name)
	}
}

func TestStagesReadOnlyEarlierFields(t *testing.T) {
	for _, s := range DefaultStages() {
		for _, f := range s.Requires {
			assert.Less(t, int(f), int(s.Output), "%s reads %s", s.Name, f)
		}
	}
	last := DefaultStages()[7]
	assert.Equal(t, []models.Field{models.FieldOriginalInput, models.FieldScore}, last.Requires)
}

func TestPromptMissingFieldIsConfigurationError(t *testing.T) {
	last := DefaultStages()[7]
	_, err := last.Prompt(models.NewAssessment("OFAC screening"))
	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
	assert.Contains(t, err.Error(), "control_score")
}

func TestPromptRendersSlots(t *testing.T) {
	state := models.NewAssessment("OFAC screening").With(models.FieldScore, "High")
	out, err := DefaultStages()[7].Prompt(state)
	require.NoError(t, err)
	assert.Contains(t, out, "OFAC screening")
	assert.Contains(t, out, "This control is rated as\nHigh")
}

func TestConfigureOverrides(t *testing.T) {
	stages, err := Configure(DefaultStages(), "", map[string]config.StageOverride{
		"classify": {Model: "gpt-4o"},
		"gaps":     {Model: "gpt-4o", Temperature: llm.Temp(0.3)},
		"score":    {ReasoningEffort: "LOW"},
	})
	require.NoError(t, err)

	byName := map[string]llm.ModelConfig{}
	for _, s := range stages {
		byName[s.Name] = s.Model
	}
	assert.Equal(t, llm.ModelConfig{Model: "gpt-4o", Temperature: llm.Temp(0)}, byName["classify"])
	assert.Equal(t, llm.ModelConfig{Model: "gpt-4o", Temperature: llm.Temp(0.3)}, byName["gaps"])
	assert.Equal(t, llm.ModelConfig{Model: "o3-mini", ReasoningEffort: "low"}, byName["score"])

	// defaults are untouched
	assert.Equal(t, "gpt-4o-mini", DefaultStages()[0].Model.Model)
}

func TestConfigureDefaultModel(t *testing.T) {
	stages, err := Configure(DefaultStages(), "claude-3-5-haiku-latest", map[string]config.StageOverride{
		"summary": {Model: "claude-3-5-sonnet-latest"},
	})
	require.NoError(t, err)
	for _, s := range stages {
		want := "claude-3-5-haiku-latest"
		if s.Name == "summary" {
			want = "claude-3-5-sonnet-latest"
		}
		assert.Equal(t, want, s.Model.Model, s.Name)
	}
}

func TestConfigureUnknownStage(t *testing.T) {
	_, err := Configure(DefaultStages(), "", map[string]config.StageOverride{"sentiment": {Model: "x"}})
	assert.True(t, apperr.IsConfiguration(err))
}

func TestParallelStagesAreIndependent(t *testing.T) {
	var names []string
	outputs := map[models.Field]bool{}
	for _, s := range DefaultStages() {
		if !s.Parallel {
			continue
		}
		names = append(names, s.Name)
		outputs[s.Output] = true
	}
	assert.Equal(t, []string{"risk", "dependencies", "gaps", "industry_practices"}, names)
	for _, s := range DefaultStages() {
		if !s.Parallel {
			continue
		}
		for _, f := range s.Requires {
			assert.False(t, outputs[f], "%s reads a sibling output", s.Name)
		}
	}
}
