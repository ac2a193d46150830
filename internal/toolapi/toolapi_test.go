package toolapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cvwizard/backend/internal/blobstore"
	"github.com/cvwizard/backend/internal/config"
	"github.com/cvwizard/backend/internal/llmgateway"
	"github.com/cvwizard/backend/internal/model"
	"github.com/cvwizard/backend/internal/obslog"
	"github.com/cvwizard/backend/internal/obsmetrics"
	"github.com/cvwizard/backend/internal/pdfrender"
	"github.com/cvwizard/backend/internal/session"
	"github.com/cvwizard/backend/internal/wizard"
)

type noopLLM struct{}

func (noopLLM) CallSchema(ctx context.Context, req llmgateway.Request, result any) error { return nil }

type fakeExtractor struct{}

func (fakeExtractor) ExtractPrefill(docxBytes []byte) (model.CVRecord, error) {
	return model.CVRecord{}, nil
}
func (fakeExtractor) ExtractFirstPhoto(docxBytes []byte) ([]byte, string, bool, error) {
	return nil, "", false, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(ctx context.Context, kind pdfrender.Kind, html string) ([]byte, error) {
	return []byte("%PDF-1.4\n/Type /Page\n/Type /Page\n%%EOF"), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := session.NewMemoryStore(blobstore.NewMemoryStore(), time.Hour, 64*1024)
	orchestrator := &wizard.Orchestrator{
		Store:     store,
		LLM:       noopLLM{},
		Blobs:     blobstore.NewMemoryStore(),
		Extractor: fakeExtractor{},
		Renderer:  fakeRenderer{},
		Wizard: config.WizardConfig{
			EnableLLM:            true,
			MaxModelCallsPerTurn: 6,
			DebugExportEnabled:   true,
		},
		Validation: config.ValidationConfig{
			GermanScaleFactor:               1.25,
			JobPostingMinLength:             20,
			JobPostingNotesPronounThreshold: 0.08,
		},
		Log: obslog.New(obslog.Config{Output: io.Discard}),
	}
	return New(orchestrator, store, fakeExtractor{}, fakeRenderer{}, obsmetrics.New(), obslog.New(obslog.Config{Output: io.Discard}))
}

func postTool(t *testing.T, s *Server, body map[string]any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/tool", bytes.NewReader(raw))
	rec := httptest.NewRecorder()

	mux := http.NewServeMux()
	s.Mount(mux)
	mux.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct == "application/pdf" {
		return rec, nil
	}
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("unmarshal response: %v (body=%s)", err, rec.Body.String())
		}
	}
	return rec, out
}

func TestHandleTool_UnknownToolNameReturns404(t *testing.T) {
	s := newTestServer(t)
	rec, out := postTool(t, s, map[string]any{"tool_name": "does_not_exist"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if out["error"] == "" {
		t.Fatalf("expected error message in body, got %v", out)
	}
}

func TestHandleTool_ProcessCVOrchestratedCreatesSession(t *testing.T) {
	s := newTestServer(t)
	rec, out := postTool(t, s, map[string]any{
		"tool_name": "process_cv_orchestrated",
		"params": map[string]any{
			"language": "en",
			"message":  "hello",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%v", rec.Code, out)
	}
	sessionID, _ := out["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("expected a session_id in response, got %v", out)
	}
	if out["stage"] == "" {
		t.Fatalf("expected a stage in response, got %v", out)
	}
}

func TestHandleTool_GetCVSessionRoundTrips(t *testing.T) {
	s := newTestServer(t)
	_, created := postTool(t, s, map[string]any{
		"tool_name": "process_cv_orchestrated",
		"params":    map[string]any{"language": "en", "message": "hi"},
	})
	sessionID := created["session_id"].(string)

	rec, out := postTool(t, s, map[string]any{
		"tool_name": "get_cv_session",
		"session_id": sessionID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%v", rec.Code, out)
	}
	if out["session_id"] != sessionID {
		t.Fatalf("session_id = %v, want %v", out["session_id"], sessionID)
	}
}

func TestHandleTool_GetCVSessionMissingReturns404(t *testing.T) {
	s := newTestServer(t)
	rec, out := postTool(t, s, map[string]any{
		"tool_name":  "get_cv_session",
		"session_id": "does-not-exist",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%v", rec.Code, out)
	}
}

func TestHandleTool_UpdateCVFieldAppliesContactEdit(t *testing.T) {
	s := newTestServer(t)
	_, created := postTool(t, s, map[string]any{
		"tool_name": "process_cv_orchestrated",
		"params":    map[string]any{"language": "en", "message": "hi"},
	})
	sessionID := created["session_id"].(string)

	rec, out := postTool(t, s, map[string]any{
		"tool_name":  "update_cv_field",
		"session_id": sessionID,
		"params": map[string]any{
			"field_path": "contact.full_name",
			"value":      "Jane Doe",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%v", rec.Code, out)
	}

	cvData, ok := out["cv_data"].(map[string]any)
	if !ok {
		t.Fatalf("expected cv_data object, got %v", out["cv_data"])
	}
	contact, ok := cvData["contact"].(map[string]any)
	if !ok || contact["full_name"] != "Jane Doe" {
		t.Fatalf("expected contact.full_name = Jane Doe, got %v", contact)
	}
}

func TestHandleTool_CleanupExpiredSessions(t *testing.T) {
	s := newTestServer(t)
	rec, out := postTool(t, s, map[string]any{"tool_name": "cleanup_expired_sessions"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%v", rec.Code, out)
	}
	if _, ok := out["removed"]; !ok {
		t.Fatalf("expected removed count in response, got %v", out)
	}
}

func TestHandleTool_ExportSessionDebugDisabledReturns400(t *testing.T) {
	s := newTestServer(t)
	s.Orchestrator.Wizard.DebugExportEnabled = false
	_, created := postTool(t, s, map[string]any{
		"tool_name": "process_cv_orchestrated",
		"params":    map[string]any{"language": "en", "message": "hi"},
	})
	sessionID := created["session_id"].(string)

	rec, out := postTool(t, s, map[string]any{
		"tool_name":  "export_session_debug",
		"session_id": sessionID,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%v", rec.Code, out)
	}
}

func TestHandleTool_GenerateCVFromSessionReturnsPDF(t *testing.T) {
	s := newTestServer(t)
	_, created := postTool(t, s, map[string]any{
		"tool_name": "process_cv_orchestrated",
		"params": map[string]any{
			"language": "en",
			"message":  "hi",
		},
	})
	sessionID := created["session_id"].(string)

	edits := []map[string]any{
		{"field_path": "contact.full_name", "value": "Jane Doe"},
		{"field_path": "contact.email", "value": "jane@example.com"},
		{"field_path": "contact.phone", "value": "+1 555 0100"},
	}
	_, _ = postTool(t, s, map[string]any{
		"tool_name":  "update_cv_field",
		"session_id": sessionID,
		"params":     map[string]any{"edits": edits},
	})
	_, _ = postTool(t, s, map[string]any{
		"tool_name":  "update_cv_field",
		"session_id": sessionID,
		"params": map[string]any{
			"cv_patch": map[string]any{
				"work_experience": []any{
					map[string]any{
						"title":      "Engineer",
						"employer":   "Acme Corp",
						"date_range": "2020-2023",
						"bullets":    []any{"Shipped things"},
					},
				},
				"education": []any{
					map[string]any{
						"title":       "B.Sc. Computer Science",
						"institution": "State University",
						"date_range":  "2016-2020",
					},
				},
			},
			"confirm": map[string]any{
				"contact_confirmed":   true,
				"education_confirmed": true,
			},
		},
	})

	raw, _ := json.Marshal(map[string]any{
		"tool_name":  "generate_cv_from_session",
		"session_id": sessionID,
	})
	req := httptest.NewRequest(http.MethodPost, "/tool", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	mux := http.NewServeMux()
	s.Mount(mux)
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content-type = %q, want application/pdf", ct)
	}
	if rec.Header().Get("Content-Disposition") == "" {
		t.Fatalf("expected a Content-Disposition header")
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected non-empty pdf body")
	}
}

func TestBase64_RoundTripsPDFBytes(t *testing.T) {
	// Sanity check that base64 decoding round-trips for the pdf_base64 path
	// used by process_cv_orchestrated / extract_and_store_cv responses.
	data := []byte("%PDF-1.4 fake")
	encoded := base64.StdEncoding.EncodeToString(data)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("round trip mismatch: got %q, want %q", decoded, data)
	}
}
