package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/config"
)

func TestNewSelectsProvider(t *testing.T) {
	cases := map[string]any{
		config.ProviderOpenAI:    &OpenAIClient{},
		config.ProviderAnthropic: &AnthropicClient{},
		config.ProviderGemini:    &GeminiClient{},
		config.ProviderMock:      &MockClient{},
	}
	for provider, want := range cases {
		c, err := New(config.LLMConfig{Provider: provider, MaxRetries: 1}, nil)
		require.NoError(t, err, provider)
		assert.IsType(t, want, c, provider)
	}

	_, err := New(config.LLMConfig{Provider: "cohere"}, nil)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestNewCarriesTransportSettings(t *testing.T) {
	c, err := New(config.LLMConfig{Provider: config.ProviderOpenAI, BaseURL: "http://gw", MaxRetries: 4}, nil)
	require.NoError(t, err)
	oc := c.(*OpenAIClient)
	assert.Equal(t, "http://gw/v1/chat/completions", oc.endpoint())
	assert.Equal(t, 4, oc.MaxRetries)
}
