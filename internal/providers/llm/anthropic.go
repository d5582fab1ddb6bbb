package llm

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"strings"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/models"
)

const (
	anthropicDefaultBase = "https://api.anthropic.com"
	anthropicVersion     = "2023-06-01"
	anthropicMaxTokens   = 4096
)

// AnthropicClient speaks the Messages API. System turns are lifted into the
// request's system field.
type AnthropicClient struct {
	Transport
	BaseURL string
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

func newAnthropicRequest(messages []Message, cfg ModelConfig, stream bool) anthropicRequest {
	req := anthropicRequest{Model: cfg.Model, MaxTokens: anthropicMaxTokens, Temperature: cfg.Temperature, Stream: stream}
	var system []string
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	// the API needs at least one user turn; stage prompts are system-only
	if len(req.Messages) == 0 {
		req.Messages = []anthropicMessage{{Role: string(models.RoleUser), Content: strings.Join(system, "\n\n")}}
		return req
	}
	req.System = strings.Join(system, "\n\n")
	return req
}

func (c *AnthropicClient) endpoint() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = anthropicDefaultBase
	}
	return base + "/v1/messages"
}

func (c *AnthropicClient) headers(cfg ModelConfig) http.Header {
	h := http.Header{}
	h.Set("x-api-key", cfg.APIKey)
	h.Set("anthropic-version", anthropicVersion)
	return h
}

func (c *AnthropicClient) Complete(ctx context.Context, messages []Message, cfg ModelConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := c.postJSON(ctx, "anthropic", c.endpoint(), c.headers(cfg), newAnthropicRequest(messages, cfg, false), &resp); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" || block.Type == "" {
			b.WriteString(block.Text)
		}
	}
	if len(resp.Content) == 0 {
		return "", &apperr.ExternalServiceError{Provider: "anthropic", StatusCode: http.StatusOK, Detail: "no content"}
	}
	return b.String(), nil
}

func (c *AnthropicClient) CompleteStream(ctx context.Context, messages []Message, cfg ModelConfig) iter.Seq2[string, error] {
	if err := cfg.Validate(); err != nil {
		return failed(err)
	}
	return func(yield func(string, error) bool) {
		res, err := c.post(ctx, "anthropic", c.endpoint(), c.headers(cfg), newAnthropicRequest(messages, cfg, true))
		if err != nil {
			yield("", err)
			return
		}
		defer res.Body.Close()

		var failure error
		stopped := false
		readErr := readSSE(res.Body, func(ev sseEvent) bool {
			var payload struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				return true
			}
			switch payload.Type {
			case "message_stop":
				return false
			case "error":
				failure = &apperr.ExternalServiceError{Provider: "anthropic", StatusCode: res.StatusCode, Detail: payload.Error.Message}
				return false
			case "content_block_delta":
				if payload.Delta.Text == "" {
					return true
				}
				if !yield(payload.Delta.Text, nil) {
					stopped = true
					return false
				}
			}
			return true
		})
		switch {
		case stopped:
		case failure != nil:
			yield("", failure)
		case readErr != nil:
			yield("", streamErr("anthropic", readErr))
		case ctx.Err() != nil:
			yield("", streamErr("anthropic", ctx.Err()))
		}
	}
}
