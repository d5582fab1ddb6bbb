package config

import "time"

type Config struct {
	Env      string                   `yaml:"env"`
	HTTP     HTTPConfig               `yaml:"http"`
	LLM      LLMConfig                `yaml:"llm"`
	Chat     ChatConfig               `yaml:"chat"`
	Pipeline PipelineConfig           `yaml:"pipeline"`
	Ingest   IngestConfig             `yaml:"ingest"`
	Stages   map[string]StageOverride `yaml:"stages,omitempty"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes   int64         `yaml:"max_request_bytes"`
}

type LLMConfig struct {
	// Provider is one of openai, anthropic, gemini, mock.
	Provider string `yaml:"provider"`

	// APIKey is normally supplied by the environment, never committed.
	APIKey string `yaml:"api_key,omitempty"`

	// Model, when set, replaces the built-in model of every stage that has no
	// override of its own, and of chat when chat.model is unset.
	Model string `yaml:"model,omitempty"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways).
	BaseURL string `yaml:"base_url,omitempty"`

	// Timeout bounds one blocking completion, retries and backoff included.
	// Streaming calls are bounded by the caller's context.
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type ChatConfig struct {
	// Model defaults to llm.model, then gpt-4o-mini. See Config.ChatModel.
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature,omitempty"`

	// SeedSystemTurn starts every conversation log with one system turn.
	SeedSystemTurn bool `yaml:"seed_system_turn"`
	// SystemPrompt replaces the built-in seed text when set.
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	// Mode is "conversational" (default) or "assess_only".
	Mode string `yaml:"mode"`

	// Timeout bounds one streamed chat reply.
	Timeout time.Duration `yaml:"timeout"`
}

type PipelineConfig struct {
	ParallelAnalysis  bool          `yaml:"parallel_analysis"`
	MaxRepairAttempts int           `yaml:"max_repair_attempts"`
	StageTimeout      time.Duration `yaml:"stage_timeout"`
}

// IngestConfig bounds uploaded documents.
type IngestConfig struct {
	MaxBytes int64         `yaml:"max_bytes"`
	MaxPages int           `yaml:"max_pages"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StageOverride replaces the model settings bound to one stage.
type StageOverride struct {
	Model           string   `yaml:"model,omitempty"`
	Temperature     *float64 `yaml:"temperature,omitempty"`
	ReasoningEffort string   `yaml:"reasoning_effort,omitempty"`
}
