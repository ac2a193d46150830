// Package llmgateway implements the structured-output LLM gateway: a single
// call_schema contract backed by either OpenAI or Anthropic, with retry,
// token-budget bumping, JSON repair, and tracing.
package llmgateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cvwizard/backend/internal/config"
	"github.com/cvwizard/backend/internal/obslog"
	"github.com/cvwizard/backend/internal/obsmetrics"
	"github.com/cvwizard/backend/internal/retry"
)

// Phase names a call_schema attempt's role within one logical request.
type Phase string

const (
	PhaseSchema       Phase = "schema"
	PhaseSchemaRepair Phase = "schema_repair"
)

// Failure taxonomy (§4.3): all are non-fatal to the session.
var (
	ErrEmptyOutput    = errors.New("llmgateway: empty output")
	ErrInvalidJSON    = errors.New("llmgateway: invalid json")
	ErrSchemaMismatch = errors.New("llmgateway: schema mismatch")
)

// ProviderError wraps a provider-reported failure ("openai_error(status, body)").
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llmgateway: %s error (status %d): %s", e.Provider, e.Status, e.Body)
}

// Request is the input to a call_schema invocation.
type Request struct {
	Stage           string
	SystemPrompt    string
	UserText        string
	Schema          any
	SchemaName      string
	MaxOutputTokens int
	TraceID         string
	SessionID       string
}

// backend is the provider-specific half of Client; OpenAI and Anthropic each
// implement it once.
type backend interface {
	name() string
	complete(ctx context.Context, systemPrompt, userText string, schemaJSON []byte, schemaName string, maxOutputTokens int) (text string, truncated bool, promptTokens, completionTokens int, err error)
}

// Client is the LLM Gateway's public contract: call_schema(stage, ...).
type Client interface {
	CallSchema(ctx context.Context, req Request, result any) error
}

type client struct {
	backend backend
	cfg     config.LLMConfig
	log     *obslog.Logger
	metrics *obsmetrics.Metrics
}

// New builds a Client for the configured provider.
func New(cfg config.LLMConfig, log *obslog.Logger, metrics *obsmetrics.Metrics) (Client, error) {
	var b backend
	switch cfg.Provider {
	case "anthropic":
		b = newAnthropicBackend(cfg.Anthropic)
	case "openai", "":
		b = newOpenAIBackend(cfg.OpenAI)
	default:
		return nil, fmt.Errorf("llmgateway: unknown provider %q", cfg.Provider)
	}
	return &client{backend: b, cfg: cfg, log: log, metrics: metrics}, nil
}

// CallSchema enforces structured JSON output conforming to req.Schema,
// applying the retry policy in §4.3: budget bumps on truncation, repair on
// parse failure (sanitize first, then a single schema-repair prompt), and
// up to cfg.MaxAttempts tries overall. The attempt loop itself is
// retry.Do — the closure below only decides, per attempt, whether the
// error is worth retrying and what the next attempt's input should be.
func (c *client) CallSchema(ctx context.Context, req Request, result any) error {
	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	budget := req.MaxOutputTokens
	if budget <= 0 {
		budget = c.cfg.InitialMaxOutputTokens
	}
	if budget <= 0 {
		budget = 2048
	}

	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return fmt.Errorf("llmgateway: marshal schema: %w", err)
	}

	phase := PhaseSchema
	userText := req.UserText
	repairIssued := false

	res := retry.Do(ctx, retry.Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}, func() error {
		start := time.Now()
		text, truncated, promptTokens, completionTokens, callErr := c.backend.complete(
			ctx, req.SystemPrompt, userText, schemaJSON, req.SchemaName, budget,
		)
		duration := time.Since(start)

		c.trace(ctx, req, phase, duration, text, callErr)
		if c.metrics != nil {
			status := "success"
			if callErr != nil {
				status = "provider_error"
			}
			c.metrics.LLMCallDuration.WithLabelValues(c.backend.name(), req.Stage, string(phase)).Observe(duration.Seconds())
			c.metrics.LLMCallCounter.WithLabelValues(c.backend.name(), req.Stage, status).Inc()
			c.metrics.LLMTokensUsed.WithLabelValues(c.backend.name(), req.Stage, "prompt").Add(float64(promptTokens))
			c.metrics.LLMTokensUsed.WithLabelValues(c.backend.name(), req.Stage, "completion").Add(float64(completionTokens))
		}

		if callErr != nil {
			return callErr
		}

		if truncated {
			budget = retry.BumpTokenBudget(budget, 400, c.cfg.TokenBudgetCap, 1.6)
			if req.Stage == "bulk_translation" && budget > c.cfg.BulkTranslationBudgetClamp {
				budget = c.cfg.BulkTranslationBudgetClamp
			}
			return fmt.Errorf("%w: truncated, bumped budget to %d", ErrEmptyOutput, budget)
		}

		if text == "" {
			return ErrEmptyOutput
		}

		parsed, ok := repairJSON(text)
		if ok {
			if err := json.Unmarshal([]byte(parsed), result); err == nil {
				return nil
			} else {
				parseErr := fmt.Errorf("%w: %v", ErrInvalidJSON, err)
				return c.enterRepairOrGiveUp(&phase, &userText, &repairIssued, req.UserText, text, parseErr)
			}
		}
		return c.enterRepairOrGiveUp(&phase, &userText, &repairIssued, req.UserText, text, fmt.Errorf("%w: no balanced JSON value found", ErrInvalidJSON))
	})

	if res.Err != nil {
		return fmt.Errorf("llmgateway: call_schema failed after %d attempts: %w", res.Attempts, res.Err)
	}
	return nil
}

// enterRepairOrGiveUp implements the "sanitize first, then a single schema
// repair prompt" rule: the first parse failure builds one repair prompt
// (original prompt + offending output + explicit repair instructions) for
// the next attempt; a second parse failure after that is permanent, so
// retry.Do stops instead of resending the same repair prompt indefinitely.
func (c *client) enterRepairOrGiveUp(phase *Phase, userText *string, repairIssued *bool, originalPrompt, badOutput string, parseErr error) error {
	if *repairIssued {
		return retry.Permanent(parseErr)
	}
	*repairIssued = true
	*phase = PhaseSchemaRepair
	*userText = buildRepairPrompt(originalPrompt, badOutput, parseErr)
	return parseErr
}

// buildRepairPrompt appends the offending output and explicit repair
// instructions to the original prompt, per §4.3's schema-repair contract.
func buildRepairPrompt(originalPrompt, badOutput string, parseErr error) string {
	return fmt.Sprintf(
		"%s\n\n---\nYour previous response could not be parsed as the requested JSON schema (%v).\nPrevious response:\n%s\n\nRespond again with ONLY a single JSON value matching the schema exactly — no markdown fences, no commentary, no text before or after the JSON.",
		originalPrompt, parseErr, badOutput,
	)
}

func (c *client) trace(ctx context.Context, req Request, phase Phase, duration time.Duration, text string, err error) {
	if c.log == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.log.Info(ctx, "llmgateway call",
		"trace_id", req.TraceID,
		"session_id", req.SessionID,
		"stage", req.Stage,
		"phase", string(phase),
		"duration_ms", duration.Milliseconds(),
		"provider", c.backend.name(),
		"input_fingerprint", fingerprint(req.UserText),
		"status", status,
		"output_len", len(text),
	)
}

// fingerprint returns "length:hash" for an input item, where hash is the
// first 16 hex characters of its SHA-256, matching the tracing contract's
// "length + SHA-256 per input item" rule while never logging the raw content.
func fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%d:%s", len(s), hex.EncodeToString(sum[:])[:16])
}
