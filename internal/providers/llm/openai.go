package llm

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"strings"

	"github.com/example/control-assessor/internal/apperr"
)

const openAIDefaultBase = "https://api.openai.com"

// OpenAIClient speaks the Chat Completions API, including OpenAI-compatible
// gateways via BaseURL.
type OpenAIClient struct {
	Transport
	BaseURL string
}

type openAIRequest struct {
	Model           string    `json:"model"`
	Messages        []Message `json:"messages"`
	Temperature     *float64  `json:"temperature,omitempty"`
	ReasoningEffort string    `json:"reasoning_effort,omitempty"`
	Stream          bool      `json:"stream,omitempty"`
}

func newOpenAIRequest(messages []Message, cfg ModelConfig, stream bool) openAIRequest {
	req := openAIRequest{Model: cfg.Model, Messages: messages, Stream: stream}
	// reasoning models reject temperature
	if cfg.ReasoningEffort != "" {
		req.ReasoningEffort = cfg.ReasoningEffort
	} else {
		req.Temperature = cfg.Temperature
	}
	return req
}

func (c *OpenAIClient) endpoint() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = openAIDefaultBase
	}
	return base + "/v1/chat/completions"
}

func (c *OpenAIClient) headers(cfg ModelConfig) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+cfg.APIKey)
	return h
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, cfg ModelConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "openai", c.endpoint(), c.headers(cfg), newOpenAIRequest(messages, cfg, false), &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &apperr.ExternalServiceError{Provider: "openai", StatusCode: http.StatusOK, Detail: "no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) CompleteStream(ctx context.Context, messages []Message, cfg ModelConfig) iter.Seq2[string, error] {
	if err := cfg.Validate(); err != nil {
		return failed(err)
	}
	return func(yield func(string, error) bool) {
		res, err := c.post(ctx, "openai", c.endpoint(), c.headers(cfg), newOpenAIRequest(messages, cfg, true))
		if err != nil {
			yield("", err)
			return
		}
		defer res.Body.Close()

		var failure error
		stopped := false
		readErr := readSSE(res.Body, func(ev sseEvent) bool {
			if ev.Data == "[DONE]" {
				return false
			}
			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
				Error *struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				return true
			}
			if chunk.Error != nil {
				failure = &apperr.ExternalServiceError{Provider: "openai", StatusCode: res.StatusCode, Detail: chunk.Error.Message}
				return false
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				return true
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				stopped = true
				return false
			}
			return true
		})
		switch {
		case stopped:
		case failure != nil:
			yield("", failure)
		case readErr != nil:
			yield("", streamErr("openai", readErr))
		case ctx.Err() != nil:
			yield("", streamErr("openai", ctx.Err()))
		}
	}
}
