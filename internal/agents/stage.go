package agents

import (
	"fmt"
	"strings"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/config"
	"github.com/example/control-assessor/internal/models"
	"github.com/example/control-assessor/internal/prompts"
	"github.com/example/control-assessor/internal/providers/llm"
)

// Stage describes one prompt of the assessment pipeline: which template to
// render, which state fields feed its slots, and which field it fills.
type Stage struct {
	Name     string
	Output   models.Field
	Requires []models.Field
	Template prompts.ID
	Slots    map[string]models.Field
	Model    llm.ModelConfig
	// Allowed is the closed label set the output must match, if any.
	Allowed []string
	// Parallel marks stages that may run concurrently with adjacent Parallel
	// stages. They must not read each other's output.
	Parallel bool
}

func (s Stage) String() string { return s.Name }

// Prompt renders the stage template from state. A required field that is not
// present is a configuration error.
func (s Stage) Prompt(state models.Assessment) (string, error) {
	if missing := state.Missing(s.Requires...); len(missing) > 0 {
		keys := make([]string, len(missing))
		for i, f := range missing {
			keys[i] = f.Key()
		}
		return "", apperr.Configuration("stage "+s.Name, "missing required fields: "+strings.Join(keys, ", "))
	}
	tpl, err := prompts.Get(s.Template)
	if err != nil {
		return "", err
	}
	vars := make(map[string]string, len(s.Slots))
	for slot, f := range s.Slots {
		v, ok := state.Get(f)
		if !ok {
			return "", apperr.Configuration("stage "+s.Name, fmt.Sprintf("slot {%s} needs %s", slot, f.Key()))
		}
		vars[slot] = v
	}
	return tpl.Render(vars)
}

func stage(id prompts.ID, out models.Field, slots map[string]models.Field, model llm.ModelConfig) Stage {
	seen := map[models.Field]bool{}
	var req []models.Field
	for _, f := range models.Fields() {
		for _, sf := range slots {
			if sf == f && !seen[f] {
				seen[f] = true
				req = append(req, f)
			}
		}
	}
	return Stage{Name: string(id), Output: out, Requires: req, Template: id, Slots: slots, Model: model}
}

var (
	inputSlot   = map[string]models.Field{prompts.SlotInput: models.FieldOriginalInput}
	controlSlot = map[string]models.Field{prompts.SlotControl: models.FieldOriginalInput}
)

func reasoning(effort string) llm.ModelConfig {
	return llm.ModelConfig{Model: "o3-mini", ReasoningEffort: effort}
}

// DefaultStages returns the eight stages in pipeline order.
func DefaultStages() []Stage {
	classify := stage(prompts.Classify, models.FieldClassification, inputSlot,
		llm.ModelConfig{Model: "gpt-4o-mini", Temperature: llm.Temp(0)})
	classify.Allowed = append([]string(nil), prompts.ClassificationLabels...)

	score := stage(prompts.Score, models.FieldScore, controlSlot, reasoning(llm.EffortHigh))
	score.Allowed = append([]string(nil), prompts.ScoreLabels...)

	analysis := []Stage{
		stage(prompts.Risk, models.FieldRisk, controlSlot, reasoning(llm.EffortLow)),
		stage(prompts.Dependencies, models.FieldDependencies, controlSlot, reasoning(llm.EffortHigh)),
		stage(prompts.Gaps, models.FieldGaps, controlSlot, reasoning(llm.EffortHigh)),
		stage(prompts.IndustryPractices, models.FieldIndustryPractices, controlSlot, reasoning(llm.EffortHigh)),
	}
	for i := range analysis {
		analysis[i].Parallel = true
	}

	return []Stage{
		classify,
		stage(prompts.Summary, models.FieldSummary, inputSlot, reasoning(llm.EffortLow)),
		analysis[0],
		analysis[1],
		analysis[2],
		analysis[3],
		score,
		stage(prompts.ScoreReasoning, models.FieldScoreReasoning, map[string]models.Field{
			prompts.SlotControl: models.FieldOriginalInput,
			prompts.SlotScore:   models.FieldScore,
		}, reasoning(llm.EffortHigh)),
	}
}

// Configure applies the configured model settings to stages. defaultModel,
// when set, replaces the built-in model of every stage without an override of
// its own. An override naming an unknown stage is rejected.
func Configure(stages []Stage, defaultModel string, overrides map[string]config.StageOverride) ([]Stage, error) {
	byName := make(map[string]int, len(stages))
	out := make([]Stage, len(stages))
	for i, s := range stages {
		out[i] = s
		byName[s.Name] = i
		if defaultModel != "" {
			out[i].Model.Model = defaultModel
		}
	}
	for name, o := range overrides {
		i, ok := byName[name]
		if !ok {
			return nil, apperr.Configuration("stages."+name, "unknown stage")
		}
		m := &out[i].Model
		if o.Model != "" {
			m.Model = o.Model
		}
		effort := strings.ToLower(strings.TrimSpace(o.ReasoningEffort))
		switch {
		case effort != "":
			m.ReasoningEffort = effort
			m.Temperature = o.Temperature
		case o.Temperature != nil:
			// sampling temperature implies a non-reasoning model
			m.ReasoningEffort = ""
			m.Temperature = o.Temperature
		}
	}
	return out, nil
}
