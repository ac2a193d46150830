// Package toolapi is the tool dispatcher (C6): a single POST /tool entry
// point that routes {tool_name, session_id?, params} onto the wizard
// orchestrator, the session store, and the context pack builder, grounded on
// the teacher's internal/gateway/http_server.go net/http + promhttp style.
package toolapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cvwizard/backend/internal/docx"
	"github.com/cvwizard/backend/internal/obslog"
	"github.com/cvwizard/backend/internal/obsmetrics"
	"github.com/cvwizard/backend/internal/pdfrender"
	"github.com/cvwizard/backend/internal/session"
	"github.com/cvwizard/backend/internal/wizard"
)

// toolRequest is the envelope every /tool call shares (§6).
type toolRequest struct {
	ToolName  string         `json:"tool_name"`
	SessionID string         `json:"session_id,omitempty"`
	Params    map[string]any `json:"params"`
}

// errorEnvelope is the JSON error shape returned for non-2xx responses.
type errorEnvelope struct {
	Error string `json:"error"`
}

// toolFunc handles one tool_name, returning either a JSON-encodable value or
// a pdfResponse, alongside an error classified by statusFor.
type toolFunc func(ctx context.Context, sessionID string, params map[string]any) (any, error)

// pdfResponse signals the dispatcher to write raw PDF bytes instead of JSON.
type pdfResponse struct {
	Data     []byte
	Filename string
}

// Server wires the tool dispatcher's dependencies and exposes an http.Handler.
type Server struct {
	Orchestrator *wizard.Orchestrator
	Store        session.Store
	Extractor    docx.Extractor
	Renderer     pdfrender.Renderer
	Metrics      *obsmetrics.Metrics
	Log          *obslog.Logger

	tools map[string]toolFunc
}

// New builds a Server and registers every tool_name named in §6.
func New(orchestrator *wizard.Orchestrator, store session.Store, extractor docx.Extractor, renderer pdfrender.Renderer, metrics *obsmetrics.Metrics, log *obslog.Logger) *Server {
	s := &Server{
		Orchestrator: orchestrator,
		Store:        store,
		Extractor:    extractor,
		Renderer:     renderer,
		Metrics:      metrics,
		Log:          log,
	}
	s.tools = map[string]toolFunc{
		"extract_and_store_cv":             s.toolExtractAndStoreCV,
		"process_cv_orchestrated":          s.toolProcessCVOrchestrated,
		"get_cv_session":                   s.toolGetCVSession,
		"update_cv_field":                  s.toolUpdateCVField,
		"validate_cv":                      s.toolValidateCV,
		"cv_session_search":                s.toolCVSessionSearch,
		"generate_context_pack_v2":         s.toolGenerateContextPackV2,
		"preview_html":                     s.toolPreviewHTML,
		"generate_cv_from_session":         s.toolGenerateCVFromSession,
		"generate_cover_letter_from_session": s.toolGenerateCoverLetterFromSession,
		"get_pdf_by_ref":                   s.toolGetPDFByRef,
		"export_session_debug":             s.toolExportSessionDebug,
		"cleanup_expired_sessions":         s.toolCleanupExpiredSessions,
	}
	return s
}

// Mount registers the dispatcher's routes on mux (health + metrics +
// /tool), mirroring the teacher's mux.Handle/mux.HandleFunc layout.
func (s *Server) Mount(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tool", s.handleTool)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("only POST is supported"))
		return
	}

	var req toolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	fn, ok := s.tools[req.ToolName]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown tool_name %q", req.ToolName))
		recordHTTP(s.Metrics, req.ToolName, http.StatusNotFound, start)
		return
	}

	result, err := fn(r.Context(), req.SessionID, req.Params)
	status := statusFor(err)
	if err != nil {
		if s.Log != nil {
			s.Log.Error(r.Context(), "tool call failed", "tool", req.ToolName, "error", err, "status", status)
		}
		writeError(w, status, err)
		recordHTTP(s.Metrics, req.ToolName, status, start)
		return
	}

	if pdf, ok := result.(pdfResponse); ok {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pdf.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf.Data)
		recordHTTP(s.Metrics, req.ToolName, http.StatusOK, start)
		return
	}

	writeJSON(w, http.StatusOK, result)
	recordHTTP(s.Metrics, req.ToolName, http.StatusOK, start)
}

// statusFor classifies an error into an HTTP status code (§7 taxonomy):
// user-correctable errors are 400, not-found is 404, version conflicts are
// 409, everything else is 500.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict
	case wizard.IsUserError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorEnvelope{Error: err.Error()})
}

func recordHTTP(m *obsmetrics.Metrics, tool string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(tool, fmt.Sprintf("%d", status)).Observe(time.Since(start).Seconds())
}

// asParams gives tool handlers a typed view of the generic params map.
func asParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}
