package llmgateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cvwizard/backend/internal/config"
)

// anthropicBackend implements backend via a single forced tool call:
// Anthropic has no native JSON-schema response format, so the schema is
// registered as the one available tool and tool_choice forces its use,
// making the tool's input the structured result.
type anthropicBackend struct {
	client anthropic.Client
	model  anthropic.Model
}

func newAnthropicBackend(cfg config.LLMProviderConfig) *anthropicBackend {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}
	return &anthropicBackend{client: anthropic.NewClient(opts...), model: model}
}

func (b *anthropicBackend) name() string { return "anthropic" }

func (b *anthropicBackend) complete(ctx context.Context, systemPrompt, userText string, schemaJSON []byte, schemaName string, maxOutputTokens int) (string, bool, int, int, error) {
	if schemaName == "" {
		schemaName = "wizard_output"
	}

	var inputSchema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(schemaJSON, &inputSchema); err != nil {
		return "", false, 0, 0, err
	}

	toolParam := anthropic.ToolUnionParamOfTool(inputSchema, schemaName)
	if toolParam.OfTool == nil {
		return "", false, 0, 0, errors.New("llmgateway: failed to build schema tool")
	}
	toolParam.OfTool.Description = anthropic.String("Emit the structured result for this stage.")

	params := anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: int64(maxOutputTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userText)),
		},
		Tools: []anthropic.ToolUnionParam{toolParam},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: schemaName},
		},
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		if isRetryableAnthropicError(err) {
			return "", false, 0, 0, err
		}
		return "", false, 0, 0, &ProviderError{Provider: "anthropic", Status: anthropicStatus(err), Body: err.Error()}
	}

	truncated := msg.StopReason == anthropic.StopReasonMaxTokens
	promptTokens := int(msg.Usage.InputTokens)
	completionTokens := int(msg.Usage.OutputTokens)

	for _, block := range msg.Content {
		if toolUse := block.AsToolUse(); toolUse.Name == schemaName {
			inputJSON, err := json.Marshal(toolUse.Input)
			if err != nil {
				return "", false, promptTokens, completionTokens, err
			}
			return string(inputJSON), truncated, promptTokens, completionTokens, nil
		}
	}

	return "", truncated, promptTokens, completionTokens, nil
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// isRetryableAnthropicError mirrors the rate-limit/5xx/timeout classification
// used for the OpenAI backend, adapted to anthropic.Error's status code.
func isRetryableAnthropicError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "overloaded", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
