// Package llm wraps the chat-completion backends behind one blocking call and
// one streaming call.
package llm

import (
	"context"
	"iter"
	"strings"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/models"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

func System(text string) Message    { return Message{Role: models.RoleSystem, Content: text} }
func User(text string) Message      { return Message{Role: models.RoleUser, Content: text} }
func Assistant(text string) Message { return Message{Role: models.RoleAssistant, Content: text} }

// Reasoning effort levels accepted by reasoning models.
const (
	EffortLow  = "low"
	EffortHigh = "high"
)

// ModelConfig selects the model and sampling settings for one call. APIKey is
// injected per call so a single client can serve several credentials.
type ModelConfig struct {
	Model           string   `json:"model"`
	Temperature     *float64 `json:"temperature,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`
	APIKey          string   `json:"-"`
}

// Temp is a convenience for building a ModelConfig literal.
func Temp(v float64) *float64 { return &v }

// WithKey returns a copy carrying the credential.
func (c ModelConfig) WithKey(key string) ModelConfig {
	c.APIKey = key
	return c
}

func (c ModelConfig) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return apperr.Configuration("model", "required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return apperr.Configuration("credential", "missing API key")
	}
	switch c.ReasoningEffort {
	case "", EffortLow, EffortHigh:
	default:
		return apperr.Configuration("reasoning_effort", "unsupported value "+c.ReasoningEffort)
	}
	return nil
}

type Client interface {
	// Complete blocks until the provider returns the full completion.
	Complete(ctx context.Context, messages []Message, cfg ModelConfig) (string, error)

	// CompleteStream yields completion fragments in arrival order. The sequence
	// ends when the provider closes the stream or ctx is cancelled; a non-nil
	// error is always the final element.
	CompleteStream(ctx context.Context, messages []Message, cfg ModelConfig) iter.Seq2[string, error]
}

// Collect drains a stream into one string, forwarding each fragment to
// onFragment when it is non-nil.
func Collect(seq iter.Seq2[string, error], onFragment func(string)) (string, error) {
	var b strings.Builder
	for frag, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
		if onFragment != nil {
			onFragment(frag)
		}
	}
	return b.String(), nil
}

// failed is a single-element sequence carrying err.
func failed(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}
