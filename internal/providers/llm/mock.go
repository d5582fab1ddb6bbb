package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/example/control-assessor/internal/models"
	"github.com/example/control-assessor/internal/prompts"
)

// MockClient is an offline provider with deterministic answers. It recognises
// the assessment prompts it is sent and otherwise acts as a chat partner that
// echoes the question back.
type MockClient struct{}

var mockKeywords = []struct {
	label string
	words []string
}{
	{"Sanctions", []string{"ofac", "sanction", "watchlist", "embargo"}},
	{"Duplicates", []string{"duplicate"}},
	{"Fraud", []string{"fraud"}},
	{"Insufficient Funds", []string{"insufficient", "balance", "overdraft"}},
	{"High Dollar Escalation", []string{"20 million", "$20", "escalat", "high dollar", "high-dollar"}},
	{"Travel Rules", []string{"travel rule"}},
	{"Completed Fields", []string{"required field", "all fields", "missing field", "completed field"}},
}

func mockClassify(text string) string {
	t := strings.ToLower(text)
	for _, k := range mockKeywords {
		for _, w := range k.words {
			if strings.Contains(t, w) {
				return k.label
			}
		}
	}
	return "Validation"
}

// section returns the body under a markdown heading, up to the next heading.
func section(prompt, heading string) string {
	_, rest, ok := strings.Cut(prompt, heading+"\n")
	if !ok {
		return ""
	}
	if i := strings.Index(rest, "\n# "); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(strings.TrimSuffix(s, "."))
}

func bullets(items ...string) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}

func (m *MockClient) answer(messages []Message) string {
	var system, lastUser string
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			system = msg.Content
		case models.RoleUser:
			lastUser = msg.Content
		}
	}
	if lastUser == "" {
		id, _ := prompts.Identify(system)
		control := section(system, "# Control")
		switch id {
		case prompts.Classify:
			return mockClassify(section(system, "# Input"))
		case prompts.Summary:
			return fmt.Sprintf("This control performs a %s check on each payment before it is released.",
				strings.ToLower(mockClassify(section(system, "# Input"))))
		case prompts.Risk:
			return bullets("Payments released without the check: "+firstLine(control),
				"Regulatory penalties when the check is bypassed",
				"Reputational damage from processing prohibited payments")
		case prompts.Dependencies:
			return bullets("Accurate and current reference data",
				"Availability of the screening or validation service",
				"Integration between the payment hub and the control engine")
		case prompts.Gaps:
			return bullets("Manual overrides are not consistently logged",
				"No documented fallback when the upstream service is unavailable",
				"Limited periodic testing of the control's effectiveness")
		case prompts.IndustryPractices:
			return bullets("Automate the check inline with payment processing, as large correspondent banks do",
				"Tune thresholds using historical alert outcomes",
				"Report control KPIs to a tiered governance forum")
		case prompts.Score:
			return "Medium"
		case prompts.ScoreReasoning:
			score := section(system, "# Control Score")
			score = strings.TrimSpace(strings.TrimPrefix(score, "This control is rated as"))
			return fmt.Sprintf("Overall rating: %s\n\n%s\n%s\n%s", score,
				bullets("Control Design & Risk Coverage: (+) addresses a defined risk breakpoint; (-) documentation lacks depth"),
				bullets("Implementation & Operation: (+) generally executed as expected; (-) dependency health is not monitored"),
				bullets("Monitoring & Reporting: (+) some reporting exists; (-) testing is only periodic"))
		}
		return "Acknowledged."
	}
	return fmt.Sprintf("Based on the assessment so far, regarding %q: the control's main exposure is in the gaps identified above; addressing them would move the score toward High.", firstLine(lastUser))
}

func (m *MockClient) Complete(ctx context.Context, messages []Message, cfg ModelConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.answer(messages), nil
}

func (m *MockClient) CompleteStream(ctx context.Context, messages []Message, cfg ModelConfig) iter.Seq2[string, error] {
	if err := cfg.Validate(); err != nil {
		return failed(err)
	}
	text := m.answer(messages)
	return func(yield func(string, error) bool) {
		words := strings.SplitAfter(text, " ")
		for _, w := range words {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}
