package llmgateway

import (
	"context"
	"strings"
	"testing"

	"github.com/cvwizard/backend/internal/config"
)

type fakeBackend struct {
	responses []fakeResponse
	calls     int
	userTexts []string
}

type fakeResponse struct {
	text      string
	truncated bool
	err       error
}

func (f *fakeBackend) name() string { return "fake" }

func (f *fakeBackend) complete(_ context.Context, _, userText string, _ []byte, _ string, _ int) (string, bool, int, int, error) {
	f.userTexts = append(f.userTexts, userText)
	r := f.responses[f.calls]
	f.calls++
	return r.text, r.truncated, 10, 20, r.err
}

type resultPayload struct {
	Summary string `json:"summary"`
}

func TestCallSchema_SucceedsFirstTry(t *testing.T) {
	b := &fakeBackend{responses: []fakeResponse{{text: `{"summary": "ok"}`}}}
	c := &client{backend: b, cfg: config.LLMConfig{MaxAttempts: 3, InitialMaxOutputTokens: 512}}

	var out resultPayload
	if err := c.CallSchema(context.Background(), Request{Stage: "review_final"}, &out); err != nil {
		t.Fatalf("CallSchema: %v", err)
	}
	if out.Summary != "ok" {
		t.Errorf("Summary = %q", out.Summary)
	}
	if b.calls != 1 {
		t.Errorf("calls = %d, want 1", b.calls)
	}
}

func TestCallSchema_RecoversFromFencedMarkdown(t *testing.T) {
	b := &fakeBackend{responses: []fakeResponse{{text: "```json\n{\"summary\": \"fenced\"}\n```"}}}
	c := &client{backend: b, cfg: config.LLMConfig{MaxAttempts: 3, InitialMaxOutputTokens: 512}}

	var out resultPayload
	if err := c.CallSchema(context.Background(), Request{Stage: "review_final"}, &out); err != nil {
		t.Fatalf("CallSchema: %v", err)
	}
	if out.Summary != "fenced" {
		t.Errorf("Summary = %q", out.Summary)
	}
}

func TestCallSchema_RetriesOnInvalidJSONThenSucceeds(t *testing.T) {
	b := &fakeBackend{responses: []fakeResponse{
		{text: "not json at all"},
		{text: `{"summary": "second try"}`},
	}}
	c := &client{backend: b, cfg: config.LLMConfig{MaxAttempts: 3, InitialMaxOutputTokens: 512}}

	var out resultPayload
	if err := c.CallSchema(context.Background(), Request{Stage: "review_final"}, &out); err != nil {
		t.Fatalf("CallSchema: %v", err)
	}
	if out.Summary != "second try" {
		t.Errorf("Summary = %q", out.Summary)
	}
	if b.calls != 2 {
		t.Errorf("calls = %d, want 2", b.calls)
	}
}

func TestCallSchema_BumpsBudgetOnTruncation(t *testing.T) {
	b := &fakeBackend{responses: []fakeResponse{
		{truncated: true},
		{text: `{"summary": "fit this time"}`},
	}}
	c := &client{backend: b, cfg: config.LLMConfig{MaxAttempts: 3, InitialMaxOutputTokens: 512, TokenBudgetCap: 8192}}

	var out resultPayload
	if err := c.CallSchema(context.Background(), Request{Stage: "review_final"}, &out); err != nil {
		t.Fatalf("CallSchema: %v", err)
	}
	if out.Summary != "fit this time" {
		t.Errorf("Summary = %q", out.Summary)
	}
}

func TestCallSchema_GivesUpAfterOneSchemaRepairAttempt(t *testing.T) {
	// §4.3: a parse failure gets exactly one schema-repair retry; a second
	// parse failure after that is permanent, so call_schema stops instead
	// of burning the rest of MaxAttempts resending the same repair prompt.
	b := &fakeBackend{responses: []fakeResponse{
		{text: "garbage"},
		{text: "still garbage"},
		{text: "nope"},
	}}
	c := &client{backend: b, cfg: config.LLMConfig{MaxAttempts: 3, InitialMaxOutputTokens: 512}}

	var out resultPayload
	err := c.CallSchema(context.Background(), Request{Stage: "review_final", UserText: "extract the role"}, &out)
	if err == nil {
		t.Fatal("expected error after the repair attempt also fails")
	}
	if b.calls != 2 {
		t.Errorf("calls = %d, want 2 (original attempt + one repair attempt)", b.calls)
	}
}

func TestCallSchema_SchemaRepairPromptCarriesBadOutputAndInstructions(t *testing.T) {
	b := &fakeBackend{responses: []fakeResponse{
		{text: "garbage"},
		{text: `{"summary": "recovered"}`},
	}}
	c := &client{backend: b, cfg: config.LLMConfig{MaxAttempts: 3, InitialMaxOutputTokens: 512}}

	var out resultPayload
	if err := c.CallSchema(context.Background(), Request{Stage: "review_final", UserText: "extract the role"}, &out); err != nil {
		t.Fatalf("CallSchema: %v", err)
	}
	if out.Summary != "recovered" {
		t.Errorf("Summary = %q", out.Summary)
	}
	if len(b.userTexts) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(b.userTexts))
	}
	if b.userTexts[0] != "extract the role" {
		t.Errorf("first attempt userText = %q, want original prompt", b.userTexts[0])
	}
	repairText := b.userTexts[1]
	if !strings.Contains(repairText, "extract the role") {
		t.Errorf("repair prompt missing original prompt: %q", repairText)
	}
	if !strings.Contains(repairText, "garbage") {
		t.Errorf("repair prompt missing bad output: %q", repairText)
	}
	if !strings.Contains(repairText, "JSON") {
		t.Errorf("repair prompt missing repair instructions: %q", repairText)
	}
}
