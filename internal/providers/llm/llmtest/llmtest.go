// Package llmtest provides a scripted, recording llm.Client for tests of the
// packages built on top of the providers.
package llmtest

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/example/control-assessor/internal/models"
	"github.com/example/control-assessor/internal/prompts"
	"github.com/example/control-assessor/internal/providers/llm"
)

// ErrDefault, returned from Reply, hands the call to the offline mock.
var ErrDefault = errors.New("llmtest: default reply")

// Call is one recorded request.
type Call struct {
	// Stage is the assessment template the request was rendered from; empty
	// for chat requests.
	Stage    prompts.ID
	Messages []llm.Message
	Config   llm.ModelConfig
}

// Client answers through Reply, falling back to llm.MockClient.
type Client struct {
	Reply func(Call) (string, error)
	// Delay is waited out before each answer; ctx cancellation wins.
	Delay time.Duration

	mu    sync.Mutex
	calls []Call
	mock  llm.MockClient
}

func (c *Client) record(messages []llm.Message, cfg llm.ModelConfig) Call {
	call := Call{Messages: append([]llm.Message(nil), messages...), Config: cfg}
	if len(messages) == 1 && messages[0].Role == models.RoleSystem {
		call.Stage, _ = prompts.Identify(messages[0].Content)
	}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
	return call
}

func (c *Client) answer(ctx context.Context, call Call) (string, error) {
	if err := call.Config.Validate(); err != nil {
		return "", err
	}
	if c.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.Delay):
		}
	}
	if c.Reply != nil {
		out, err := c.Reply(call)
		if !errors.Is(err, ErrDefault) {
			return out, err
		}
	}
	return c.mock.Complete(ctx, call.Messages, call.Config)
}

func (c *Client) Complete(ctx context.Context, messages []llm.Message, cfg llm.ModelConfig) (string, error) {
	return c.answer(ctx, c.record(messages, cfg))
}

func (c *Client) CompleteStream(ctx context.Context, messages []llm.Message, cfg llm.ModelConfig) iter.Seq2[string, error] {
	call := c.record(messages, cfg)
	return func(yield func(string, error) bool) {
		out, err := c.answer(ctx, call)
		if err != nil {
			yield("", err)
			return
		}
		for _, w := range strings.SplitAfter(out, " ") {
			if !yield(w, nil) {
				return
			}
		}
	}
}

// Calls returns the recorded requests in arrival order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Stages returns the stage of every assessment request in arrival order.
func (c *Client) Stages() []prompts.ID {
	var out []prompts.ID
	for _, call := range c.Calls() {
		if call.Stage != "" {
			out = append(out, call.Stage)
		}
	}
	return out
}

func (c *Client) Reset() {
	c.mu.Lock()
	c.calls = nil
	c.mu.Unlock()
}
