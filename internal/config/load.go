package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/control-assessor/internal/apperr"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"

	ModeConversational = "conversational"
	ModeAssessOnly     = "assess_only"

	DefaultChatModel = "gpt-4o-mini"
)

func Default() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
			MaxRequestBytes:   20 << 20,
		},
		LLM: LLMConfig{
			Provider:   ProviderOpenAI,
			Timeout:    3 * time.Minute,
			MaxRetries: 2,
		},
		Chat: ChatConfig{
			SeedSystemTurn: true,
			Mode:           ModeConversational,
			Timeout:        2 * time.Minute,
		},
		Pipeline: PipelineConfig{
			MaxRepairAttempts: 1,
			StageTimeout:      5 * time.Minute,
		},
		Ingest: IngestConfig{
			MaxBytes: 20 << 20,
			MaxPages: 20,
			Timeout:  time.Minute,
		},
	}
}

// Load builds the configuration from, in increasing precedence: defaults, the
// YAML file at path (or $ASSESSOR_CONFIG), a .env file, and the process
// environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("ASSESSOR_CONFIG"))
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := env("LOG_MODE"); v != "" {
		c.Env = v
	}
	if v := env("ASSESSOR_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	} else if v := env("PORT"); v != "" {
		c.HTTP.Addr = ":" + v
	}

	if v := env("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	} else if c.LLM.APIKey == "" && env("ASSESSOR_API_KEY") == "" {
		// auto-detect by key presence when no provider is pinned
		switch {
		case env("OPENAI_API_KEY") != "":
			c.LLM.Provider = ProviderOpenAI
		case env("ANTHROPIC_API_KEY") != "":
			c.LLM.Provider = ProviderAnthropic
		case env("GOOGLE_API_KEY") != "":
			c.LLM.Provider = ProviderGemini
		}
	}

	if v := env("ASSESSOR_API_KEY"); v != "" {
		c.LLM.APIKey = v
	} else if v := env(credentialEnv(c.LLM.Provider)); v != "" {
		c.LLM.APIKey = v
	}
	if c.LLM.Provider == ProviderMock && c.LLM.APIKey == "" {
		c.LLM.APIKey = "mock"
	}

	if v := env("OPENAI_API_BASE"); v != "" && c.LLM.Provider == ProviderOpenAI {
		c.LLM.BaseURL = v
	}
	if v := env("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := env("LLM_HTTP_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.LLM.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := env("LLM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.LLM.MaxRetries = n
		}
	}

	if v := env("ASSESSOR_CHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := env("ASSESSOR_CHAT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Chat.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := env("ASSESSOR_MODE"); v != "" {
		c.Chat.Mode = strings.ToLower(v)
	}
	if v := env("ASSESSOR_PARALLEL_ANALYSIS"); v != "" {
		c.Pipeline.ParallelAnalysis = parseBool(v)
	}

	if v := env("FILE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Ingest.MaxBytes = n
		}
	}
	if v := env("PDF_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.MaxPages = n
		}
	}
	if v := env("PDF_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Ingest.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
}

// ChatModel is the model used for follow-up chat: chat.model when set,
// otherwise llm.model, otherwise DefaultChatModel.
func (c *Config) ChatModel() string {
	if m := strings.TrimSpace(c.Chat.Model); m != "" {
		return m
	}
	if m := strings.TrimSpace(c.LLM.Model); m != "" {
		return m
	}
	return DefaultChatModel
}

// credentialEnv names the provider-specific credential variable.
func credentialEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GOOGLE_API_KEY"
	case ProviderMock:
		return ""
	}
	return "OPENAI_API_KEY"
}

// Validate normalizes the configuration and rejects unusable values. A missing
// credential is not rejected here: it surfaces per run as a configuration
// error, before any network call.
func (c *Config) Validate() error {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderMock:
	case "":
		c.LLM.Provider = ProviderOpenAI
	default:
		return apperr.Configuration("llm.provider", fmt.Sprintf("unsupported provider %q", c.LLM.Provider))
	}
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	if c.LLM.MaxRetries < 0 {
		return apperr.Configuration("llm.max_retries", "must be >= 0")
	}
	if c.LLM.Timeout < 0 {
		return apperr.Configuration("llm.timeout", "must be >= 0")
	}

	c.Chat.Mode = strings.ToLower(strings.TrimSpace(c.Chat.Mode))
	switch c.Chat.Mode {
	case "":
		c.Chat.Mode = ModeConversational
	case ModeConversational, ModeAssessOnly:
	default:
		return apperr.Configuration("chat.mode", fmt.Sprintf("unsupported mode %q", c.Chat.Mode))
	}
	c.Chat.Model = strings.TrimSpace(c.Chat.Model)
	if c.Chat.Timeout < 0 {
		return apperr.Configuration("chat.timeout", "must be >= 0")
	}

	if c.Pipeline.MaxRepairAttempts < 0 {
		return apperr.Configuration("pipeline.max_repair_attempts", "must be >= 0")
	}
	for name, o := range c.Stages {
		switch strings.ToLower(strings.TrimSpace(o.ReasoningEffort)) {
		case "", "low", "high":
		default:
			return apperr.Configuration("stages."+name+".reasoning_effort", fmt.Sprintf("unsupported value %q", o.ReasoningEffort))
		}
	}

	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.MaxRequestBytes <= 0 {
		c.HTTP.MaxRequestBytes = 20 << 20
	}
	if c.Ingest.MaxBytes <= 0 {
		c.Ingest.MaxBytes = 20 << 20
	}
	if c.Ingest.MaxPages <= 0 {
		c.Ingest.MaxPages = 20
	}
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "development"
	}
	return nil
}

func env(key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(key))
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
