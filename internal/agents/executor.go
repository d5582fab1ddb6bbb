package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/models"
	"github.com/example/control-assessor/internal/platform/logger"
	"github.com/example/control-assessor/internal/providers/llm"
)

// Executor runs a single stage against the LLM client.
type Executor struct {
	Client   llm.Client
	Verifier Verifier
	// MaxRepairAttempts bounds re-requests after malformed output.
	MaxRepairAttempts int
	Logger            *logger.Logger
}

func NewExecutor(client llm.Client, maxRepairAttempts int, log *logger.Logger) *Executor {
	return &Executor{Client: client, Verifier: LabelVerifier{}, MaxRepairAttempts: maxRepairAttempts, Logger: log}
}

// Execute renders the stage prompt from state, calls the model and returns a
// copy of state with exactly the stage's output field set. On failure state
// is returned unchanged.
func (e *Executor) Execute(ctx context.Context, stage Stage, state models.Assessment, credential string) (models.Assessment, error) {
	prompt, err := stage.Prompt(state)
	if err != nil {
		return state, err
	}
	cfg := stage.Model.WithKey(credential)
	if err := cfg.Validate(); err != nil {
		return state, err
	}
	verifier := e.Verifier
	if verifier == nil {
		verifier = LabelVerifier{}
	}
	log := logger.OrNop(e.Logger).With("stage", stage.Name, "model", cfg.Model)

	messages := []llm.Message{llm.System(prompt)}
	for attempt := 0; ; attempt++ {
		start := time.Now()
		out, err := e.Client.Complete(ctx, messages, cfg)
		if err != nil {
			return state, fmt.Errorf("stage %s: %w", stage.Name, err)
		}
		text, verr := verifier.Verify(stage, out)
		if verr == nil {
			log.Debug("stage output accepted", "attempt", attempt, "duration", time.Since(start), "chars", len(text))
			return state.With(stage.Output, text), nil
		}
		var malformed *apperr.MalformedOutputError
		if !errors.As(verr, &malformed) || attempt >= e.MaxRepairAttempts {
			return state, verr
		}
		log.Warn("malformed stage output, re-requesting", "attempt", attempt, "output", truncate(out, 80))
		messages = repair([]llm.Message{llm.System(prompt)}, stage, out)
	}
}

// repair re-asks with the rejected answer quoted in a single user turn and
// the allowed labels spelled out. Gemini and Anthropic expect the first
// non-system turn to come from the user.
func repair(base []llm.Message, stage Stage, rejected string) []llm.Message {
	if len(stage.Allowed) == 0 || strings.TrimSpace(rejected) == "" {
		return base
	}
	return append(base, llm.User(fmt.Sprintf(
		"Your previous answer was %q, which is not a valid label. Answer with exactly one of: %s. Return only the label.",
		truncate(strings.TrimSpace(rejected), 200), strings.Join(stage.Allowed, ", "),
	)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
