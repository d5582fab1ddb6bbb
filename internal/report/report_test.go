package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/control-assessor/internal/models"
)

func sample() models.Assessment {
	return models.NewAssessment("OFAC screening, with a comma").
		With(models.FieldClassification, "Sanctions").
		With(models.FieldSummary, "Screens wires against OFAC lists.").
		With(models.FieldRisk, "- sanctioned payments").
		With(models.FieldDependencies, "- list feed").
		With(models.FieldGaps, "- no fallback").
		With(models.FieldIndustryPractices, "- real-time screening").
		With(models.FieldScore, "Medium").
		With(models.FieldScoreReasoning, "- \"quoted\" rationale\n- second line")
}

func TestFormatHeadersInOrder(t *testing.T) {
	out := Format(sample())
	last := -1
	for _, h := range Headers() {
		i := strings.Index(out, h+"\n")
		require.GreaterOrEqual(t, i, 0, h)
		assert.Greater(t, i, last, h)
		last = i
	}
	assert.True(t, strings.HasPrefix(out, "## Classification:\nSanctions\n## Summary:\n"))
	assert.True(t, strings.HasSuffix(out, "## Score Reasoning:\n- \"quoted\" rationale\n- second line"))
	assert.NotContains(t, out, "OFAC screening, with a comma")
}

func TestFormatPartialSkipsMissingSections(t *testing.T) {
	partial := models.NewAssessment("OFAC screening").
		With(models.FieldClassification, "Sanctions").
		With(models.FieldSummary, "Screens wires.")

	assert.Equal(t, "## Classification:\nSanctions\n## Summary:\nScreens wires.", FormatPartial(partial))
	assert.Empty(t, FormatPartial(models.NewAssessment("OFAC screening")))
	assert.Equal(t, Format(sample()), FormatPartial(sample()))
}

func TestFormatDeterministic(t *testing.T) {
	a := sample()
	assert.Equal(t, Format(a), Format(a))
	assert.Len(t, Headers(), 8)
}

func TestCSVArtifact(t *testing.T) {
	art, err := CSV(sample())
	require.NoError(t, err)
	assert.Equal(t, "control_assessment.csv", art.Name)
	assert.Equal(t, "text/csv", art.ContentType)

	rows, err := csv.NewReader(bytes.NewReader(art.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, []string{"section", "field", "content"}, rows[0])
	assert.Equal(t, []string{"Control Description", "original_input", "OFAC screening, with a comma"}, rows[1])
	assert.Equal(t, "- \"quoted\" rationale\n- second line", rows[9][2])
}
