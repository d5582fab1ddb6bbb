package llm

import (
	"net/http"
	"strings"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/config"
	"github.com/example/control-assessor/internal/platform/logger"
)

// New returns the Client for cfg.Provider. Supported providers:
// - openai:    Chat Completions, optional base_url for compatible gateways
// - anthropic: Messages API
// - gemini:    genai SDK
// - mock:      offline, deterministic
func New(cfg config.LLMConfig, log *logger.Logger) (Client, error) {
	t := Transport{
		HTTPClient: &http.Client{},
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Logger:     log,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderOpenAI, "":
		return &OpenAIClient{Transport: t, BaseURL: cfg.BaseURL}, nil
	case config.ProviderAnthropic:
		return &AnthropicClient{Transport: t, BaseURL: cfg.BaseURL}, nil
	case config.ProviderGemini:
		return &GeminiClient{Endpoint: cfg.BaseURL, Logger: log}, nil
	case config.ProviderMock:
		return &MockClient{}, nil
	}
	return nil, apperr.Configuration("llm.provider", "unsupported provider "+cfg.Provider)
}
