// Package config loads the CV wizard backend's configuration from a YAML
// file with environment-variable overrides, one struct per concern.
package config

import "time"

// Config aggregates every per-concern sub-configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Session    SessionConfig    `yaml:"session"`
	Blobstore  BlobstoreConfig  `yaml:"blobstore"`
	PDFRender  PDFRenderConfig  `yaml:"pdf_render"`
	Validation ValidationConfig `yaml:"validation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Wizard     WizardConfig     `yaml:"wizard"`
}

// WizardConfig holds the environment-configurable toggles §6 requires to
// have deterministic defaults. Names are opaque from the integrator's
// perspective — they gate internal behavior, not external contract shape.
type WizardConfig struct {
	EnableLLM              bool `yaml:"enable_llm"`
	RequireDashboardPrompt bool `yaml:"require_dashboard_prompt"`
	SingleCallExecution    bool `yaml:"single_call_execution"`
	ExecutionLatch         bool `yaml:"execution_latch"`
	DeltaModeContextPacks  bool `yaml:"delta_mode_context_packs"`
	AlwaysRegeneratePDF    bool `yaml:"always_regenerate_pdf"`
	EnableCoverLetter      bool `yaml:"enable_cover_letter"`
	RequireJobText         bool `yaml:"require_job_text"`
	MaxModelCallsPerTurn   int  `yaml:"max_model_calls_per_turn"`
	DebugExportEnabled     bool `yaml:"debug_export_enabled"`
}

// ServerConfig controls the HTTP tool-dispatcher entry point.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MetricsAddr       string        `yaml:"metrics_addr"`
}

// LLMConfig selects and configures the LLM gateway's backends.
type LLMConfig struct {
	// Provider selects the active backend: "openai" or "anthropic".
	Provider string `yaml:"provider"`

	OpenAI    LLMProviderConfig `yaml:"openai"`
	Anthropic LLMProviderConfig `yaml:"anthropic"`

	// MaxAttempts bounds call_schema retries (default 3, >= 1).
	MaxAttempts int `yaml:"max_attempts"`

	// InitialMaxOutputTokens is the starting token budget before bumping.
	InitialMaxOutputTokens int `yaml:"initial_max_output_tokens"`

	// TokenBudgetCap is the ceiling the bump sequence is clamped to.
	TokenBudgetCap int `yaml:"token_budget_cap"`

	// BulkTranslationBudgetClamp caps the bumped budget of a
	// "bulk_translation" stage call after a truncated response. It is not
	// applied when the provider rejects a budget; such a rejection is
	// handled like any other provider error.
	BulkTranslationBudgetClamp int `yaml:"bulk_translation_budget_clamp"`

	// DashboardPromptIDs maps stage name to a pre-registered prompt id.
	// When set for a stage, only the id + minimal variables are sent.
	DashboardPromptIDs map[string]string `yaml:"dashboard_prompt_ids"`

	// DashboardDiagnosticMode additionally sends the raw system prompt
	// alongside a dashboard prompt id, for diagnostics.
	DashboardDiagnosticMode bool `yaml:"dashboard_diagnostic_mode"`

	// TraceArtifactsDir, when set, persists full request/response artifacts
	// to disk for debugging. Empty disables artifact persistence.
	TraceArtifactsDir string `yaml:"trace_artifacts_dir"`
}

// LLMProviderConfig configures one concrete LLM backend.
type LLMProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	// DatabaseURL is a postgres:// DSN for the primary store.
	DatabaseURL string `yaml:"database_url"`

	// TTL is the session expiry duration from last update.
	TTL time.Duration `yaml:"ttl"`

	// CleanupInterval is how often cleanup_expired runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// OffloadThresholdBytes is the serialized-metadata size above which
	// large sub-objects are moved to blob storage (default 64 KiB).
	OffloadThresholdBytes int `yaml:"offload_threshold_bytes"`
}

// BlobstoreConfig configures the S3-compatible blob backend.
type BlobstoreConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`

	SessionsBucket  string `yaml:"sessions_bucket"`
	PhotosBucket    string `yaml:"photos_bucket"`
	PDFsBucket      string `yaml:"pdfs_bucket"`
	ArtifactsBucket string `yaml:"artifacts_bucket"`
}

// PDFRenderConfig configures the headless-browser PDF renderer.
type PDFRenderConfig struct {
	// ChromePath is accepted in the YAML file but not passed to the
	// renderer, which launches chromedp's default Chrome binary.
	ChromePath string        `yaml:"chrome_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ValidationConfig configures the validation & guards component.
type ValidationConfig struct {
	// GermanScaleFactor scales hard limits for German-like targets (1.25).
	GermanScaleFactor float64 `yaml:"german_scale_factor"`

	// JobPostingMinLength is the minimum accepted job text length (80).
	JobPostingMinLength int `yaml:"job_posting_min_length"`

	// JobPostingNotesPronounThreshold is the first-person pronoun density
	// above which job text is rejected as "candidate notes" (0.08).
	JobPostingNotesPronounThreshold float64 `yaml:"job_posting_notes_pronoun_threshold"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns the configuration baseline the loader starts from before
// applying file and environment overrides.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MetricsAddr:       ":9090",
		},
		LLM: LLMConfig{
			Provider:                   "openai",
			MaxAttempts:                3,
			InitialMaxOutputTokens:     2048,
			TokenBudgetCap:             8192,
			BulkTranslationBudgetClamp: 4096,
		},
		Session: SessionConfig{
			TTL:                   30 * 24 * time.Hour,
			CleanupInterval:       time.Hour,
			OffloadThresholdBytes: 64 * 1024,
		},
		Validation: ValidationConfig{
			GermanScaleFactor:               1.25,
			JobPostingMinLength:             80,
			JobPostingNotesPronounThreshold: 0.08,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Wizard: WizardConfig{
			EnableLLM:             true,
			SingleCallExecution:   true,
			ExecutionLatch:        true,
			DeltaModeContextPacks: true,
			EnableCoverLetter:     true,
			MaxModelCallsPerTurn:  6,
		},
	}
}
