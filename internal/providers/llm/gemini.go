package llm

import (
	"context"
	"errors"
	"iter"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/models"
	"github.com/example/control-assessor/internal/platform/logger"
)

// GeminiClient uses the genai SDK. A fresh SDK client is opened per call
// because the credential arrives with the call.
type GeminiClient struct {
	// Endpoint overrides the SDK default, mainly for proxies.
	Endpoint string
	Logger   *logger.Logger
}

// geminiTurns splits messages into the system instruction, the prior history
// and the message to send.
func geminiTurns(messages []Message) (system string, history []*genai.Content, last string) {
	var sys []string
	var turns []Message
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != models.RoleUser {
		// nothing for the user to say: the instructions become the message
		last = strings.Join(sys, "\n\n")
		sys = nil
	} else {
		last = turns[len(turns)-1].Content
		turns = turns[:len(turns)-1]
	}
	for _, m := range turns {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(sys, "\n\n"), history, last
}

func (c *GeminiClient) open(ctx context.Context, messages []Message, cfg ModelConfig) (*genai.Client, *genai.ChatSession, string, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	gc, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, "", geminiErr(err)
	}
	model := gc.GenerativeModel(cfg.Model)
	if cfg.Temperature != nil {
		model.SetTemperature(float32(*cfg.Temperature))
	}
	if cfg.ReasoningEffort != "" {
		logger.OrNop(c.Logger).Debug("gemini ignores reasoning effort", "model", cfg.Model, "effort", cfg.ReasoningEffort)
	}
	system, history, last := geminiTurns(messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	cs := model.StartChat()
	cs.History = history
	return gc, cs, last, nil
}

func (c *GeminiClient) Complete(ctx context.Context, messages []Message, cfg ModelConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	gc, cs, last, err := c.open(ctx, messages, cfg)
	if err != nil {
		return "", err
	}
	defer gc.Close()

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", geminiErr(err)
	}
	return responseText(resp), nil
}

func (c *GeminiClient) CompleteStream(ctx context.Context, messages []Message, cfg ModelConfig) iter.Seq2[string, error] {
	if err := cfg.Validate(); err != nil {
		return failed(err)
	}
	return func(yield func(string, error) bool) {
		gc, cs, last, err := c.open(ctx, messages, cfg)
		if err != nil {
			yield("", err)
			return
		}
		defer gc.Close()

		it := cs.SendMessageStream(ctx, genai.Text(last))
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", geminiErr(err))
				return
			}
			if t := responseText(resp); t != "" {
				if !yield(t, nil) {
					return
				}
			}
		}
	}
}

func responseText(r *genai.GenerateContentResponse) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range r.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		// first candidate only
		break
	}
	return b.String()
}

func geminiErr(err error) error {
	ee := &apperr.ExternalServiceError{Provider: "gemini", Err: err}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		ee.StatusCode = ge.Code
		ee.Detail = ge.Message
	}
	return ee
}
