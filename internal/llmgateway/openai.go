package llmgateway

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cvwizard/backend/internal/config"
)

// openaiBackend implements backend using the OpenAI chat completions API
// with a strict JSON-schema response format.
type openaiBackend struct {
	client *openai.Client
	model  string
}

func newOpenAIBackend(cfg config.LLMProviderConfig) *openaiBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &openaiBackend{client: openai.NewClientWithConfig(clientCfg), model: model}
}

func (b *openaiBackend) name() string { return "openai" }

func (b *openaiBackend) complete(ctx context.Context, systemPrompt, userText string, schemaJSON []byte, schemaName string, maxOutputTokens int) (string, bool, int, int, error) {
	if schemaName == "" {
		schemaName = "wizard_output"
	}

	req := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
		MaxTokens: maxOutputTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: rawSchema(schemaJSON),
				Strict: true,
			},
		},
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if isRetryableOpenAIError(err) {
			return "", false, 0, 0, err
		}
		return "", false, 0, 0, &ProviderError{Provider: "openai", Status: 0, Body: err.Error()}
	}

	if len(resp.Choices) == 0 {
		return "", false, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
	}

	choice := resp.Choices[0]
	truncated := choice.FinishReason == openai.FinishReasonLength
	return choice.Message.Content, truncated, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
}

// rawSchema adapts a marshaled JSON Schema document into the
// json.Marshaler the go-openai client expects for JSONSchema.Schema.
type rawSchema []byte

func (r rawSchema) MarshalJSON() ([]byte, error) { return []byte(r), nil }

// isRetryableOpenAIError mirrors the substring-based classification the
// agent providers use for rate limits and transient 5xx failures.
func isRetryableOpenAIError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "timeout", "deadline exceeded", "connection reset"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
