package prompts

import (
	"fmt"
	"strings"
)

// ClassificationLabels is the closed set the classify stage must answer with.
var ClassificationLabels = []string{
	"Validation",
	"Duplicates",
	"Sanctions",
	"Fraud",
	"Insufficient Funds",
	"High Dollar Escalation",
	"Completed Fields",
	"Travel Rules",
}

var classificationContext = map[string]string{
	"Validation":             "validates the payment account information with OVS",
	"Duplicates":             "checks whether a payment is a duplicate payment",
	"Sanctions":              "checks whether a payment violates a sanction",
	"Fraud":                  "checks whether a payment is fraudulent",
	"Insufficient Funds":     "checks whether a payment comes from an account with insufficient funds",
	"High Dollar Escalation": "checks whether a payment is greater than $20 million",
	"Completed Fields":       "checks whether a payment has all fields completed",
	"Travel Rules":           "checks whether a payment is compliant with the Travel Rules",
}

// ScoreLabels is the ordinal maturity scale, lowest first.
var ScoreLabels = []string{"Low", "Medium", "High"}

const RubricVersion = "2025-01"

// Rubric is the maturity rubric shared by the score and score-reasoning
// templates.
const Rubric = `| **Category** | **Sub-Category** | **Low (Below standard)** | **Medium (Industry standard)** | **High (Best practice)** |
|---|---|---|---|---|
| **Control Design & Risk Coverage** | **Risk Coverage** | Control does not address a risk breakpoint | Control addresses a risk breakpoint | Control addresses a risk breakpoint tied to a specific process |
| | **Control Design** | Control design lags industry standards | Control design aligns with industry standards | Control design exceeds industry standards |
| | **Documentation** | Control documentation is incomplete or non-existent | Documentation exists but lacks depth | Control documentation exists and is comprehensive |
| | **Transaction Coverage** | Control does not cover all applicable transactions | Control covers all applicable transactions | N/A |
| **Implementation & Operation** | **Execution** | Control is not implemented or executed as expected | Control is generally followed, but there are gaps at times | Control is consistently executed as expected |
| | **Ownership** | No clear owner accountable | Clear owner accountable for control | N/A |
| | **Dependencies** | Key system integrations (i.e., control dependencies) are missing or broken | Key system integrations (i.e., control dependencies) are partially working | Key system integrations (i.e., control dependencies) are working fully, ensuring control effectiveness |
| **Monitoring & Reporting** | **Testing** | No regular testing or evidence that the control is working as intended | Periodic testing occurs | Suite of controls for a risk breakpoint tested for effectiveness |
| | **Reporting and KPIs** | No reporting to track control performance | Some reporting to track control performance | Reporting is timely and comprehensive, enabling self-identification of issues |
| | **Governance** | No tiered governance mechanism in place | Ad hoc tiered governance mechanism in place to drive continuous improvement | Consistent tiered governance mechanism in place to drive continuous improvement |`

const paymentContext = "- This analysis covers the controls placed on a banking payment system"

func bulletQuestion(question string, extra ...string) string {
	var b strings.Builder
	b.WriteString("# Instructions\n")
	fmt.Fprintf(&b, "- %s\n", question)
	b.WriteString("- Provide the answer in 3-6 succinct bullet points.\n")
	for _, e := range extra {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	b.WriteString("\n# Context\n")
	b.WriteString(paymentContext)
	b.WriteString("\n\n# Control\n{control}\n")
	return b.String()
}

func classifyText() string {
	var b strings.Builder
	b.WriteString("# Instructions\n")
	b.WriteString("- The input is the description of a control for a financial payment system\n")
	b.WriteString("- Classify the input into exactly one of the following categories:\n")
	for _, l := range ClassificationLabels {
		fmt.Fprintf(&b, "    -- %s\n", l)
	}
	b.WriteString("- Trace your reasoning back to the input\n")
	b.WriteString("- Return only the category name as a plain string\n")
	b.WriteString("- Do not return any other information besides the category\n\n")
	b.WriteString("# Context\n")
	for _, l := range ClassificationLabels {
		fmt.Fprintf(&b, "- %s: Controls that %s\n", l, classificationContext[l])
	}
	b.WriteString("\n# Input\n{input}\n")
	return b.String()
}

func rubricSection() string {
	return "# Rubric\n" +
		"- Each control is rated on a three-point maturity scale (" + strings.Join(ScoreLabels, "/") + ") with the following rubric (version " + RubricVersion + ")\n\n" +
		Rubric + "\n"
}

func scoreText() string {
	return "# Instructions\n" +
		"- The input is the description of a control for a financial payment system\n" +
		"- Rate the maturity of the control using the provided rubric\n" +
		"- Return exactly one of: " + strings.Join(ScoreLabels, ", ") + "\n" +
		"- Do not return any other information besides the rating\n\n" +
		"# Context\n" + paymentContext + "\n\n" +
		rubricSection() + "\n" +
		"# Control Description\n{control}\n"
}

func scoreReasoningText() string {
	return "# Instructions\n" +
		"- The input is the description and score of a control for a financial payment system\n" +
		"- Provide the reasoning behind the score using the provided rubric\n" +
		"- Provide a succinct and detailed positive and negative bullet point for each rubric section\n\n" +
		"# Context\n" +
		"- Provided scores are either " + quoteJoin(ScoreLabels) + "\n" +
		paymentContext + "\n\n" +
		rubricSection() + "\n" +
		"# Control Description\n{control}\n\n" +
		"# Control Score\nThis control is rated as\n{score}\n"
}

func quoteJoin(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = `"` + s + `"`
	}
	if len(q) < 2 {
		return strings.Join(q, "")
	}
	return strings.Join(q[:len(q)-1], ", ") + ", or " + q[len(q)-1]
}

const summaryText = `# Instructions
- The input is the description of a control for a financial payment system
- Create a succinct and concise summary of the control
- The summary must not have more than 1 sentence

# Input
{input}
`

const chatSystemText = `You are a control assessment assistant. Provide detailed analyses and answer follow-up questions based on earlier parts of the conversation.`

func init() {
	register(Classify, classifyText())
	register(Summary, summaryText)
	register(Risk, bulletQuestion("What are the main risks that this control is solving for?"))
	register(Dependencies, bulletQuestion("What are the main operational or technical dependencies that this control is solving for?"))
	register(Gaps, bulletQuestion("What are the main operational or technical gaps that this control is solving for?"))
	register(IndustryPractices, bulletQuestion("What are the main industry best practices for this control?",
		"Make each bullet point detailed.",
		"Provide examples where these practices are used."))
	register(Score, scoreText())
	register(ScoreReasoning, scoreReasoningText())
	register(ChatSystem, chatSystemText)
}
