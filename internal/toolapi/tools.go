package toolapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/cvwizard/backend/internal/contextpack"
	"github.com/cvwizard/backend/internal/model"
	"github.com/cvwizard/backend/internal/validate"
	"github.com/cvwizard/backend/internal/wizard"
)

// toolExtractAndStoreCV is the standalone DOCX-prefill entry point: extract,
// create a session with the import gate pending, return it without running
// a full wizard turn.
func (s *Server) toolExtractAndStoreCV(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	p := asParams(params)
	docxB64, _ := p["docx_base64"].(string)
	if docxB64 == "" {
		return nil, wizard.NewUserError(fmt.Errorf("docx_base64 is required"))
	}
	language, _ := p["language"].(string)

	result, err := s.Orchestrator.Turn(ctx, wizard.TurnInput{
		DocxBase64: docxB64,
		Language:   language,
		Message:    "",
	})
	if err != nil {
		return nil, err
	}
	return turnResultToMap(result), nil
}

// toolProcessCVOrchestrated is the main wizard turn (§6).
func (s *Server) toolProcessCVOrchestrated(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	p := asParams(params)

	in := wizard.TurnInput{
		SessionID: sessionID,
	}
	if in.SessionID == "" {
		in.SessionID, _ = p["session_id"].(string)
	}
	in.DocxBase64, _ = p["docx_base64"].(string)
	in.Language, _ = p["language"].(string)
	in.Message, _ = p["message"].(string)
	in.JobPostingURL, _ = p["job_posting_url"].(string)
	in.JobPostingText, _ = p["job_posting_text"].(string)
	if cc, ok := p["client_context"].(map[string]any); ok {
		in.ClientContext = cc
	}
	if rawAction, ok := p["user_action"].(map[string]any); ok {
		action := &wizard.UserAction{}
		action.ID, _ = rawAction["id"].(string)
		if payload, ok := rawAction["payload"].(map[string]any); ok {
			action.Payload = payload
		}
		in.UserAction = action
	}

	result, err := s.Orchestrator.Turn(ctx, in)
	if err != nil {
		return nil, err
	}
	return turnResultToMap(result), nil
}

func turnResultToMap(r wizard.TurnResult) map[string]any {
	out := map[string]any{
		"success":    r.Success,
		"session_id": r.SessionID,
		"stage":      string(r.Stage),
		"response":   r.Response,
		"cv_data":    r.CVData,
		"metadata":   r.Metadata,
		"run_summary": map[string]any{
			"execution_mode":  r.RunSummary.ExecutionMode,
			"model_calls":     r.RunSummary.ModelCalls,
			"max_model_calls": r.RunSummary.MaxModelCalls,
			"stage_debug":     r.RunSummary.StageDebug,
		},
	}
	if r.UIAction != nil {
		out["ui_action"] = r.UIAction
	}
	if r.PDFBase64 != "" {
		out["pdf_base64"] = r.PDFBase64
		out["filename"] = r.Filename
	}
	return out
}

// toolGetCVSession returns a session's CV data, metadata, and current UI
// action set without dispatching any turn logic.
func (s *Server) toolGetCVSession(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	if sessionID == "" {
		p := asParams(params)
		sessionID, _ = p["session_id"].(string)
	}
	sess, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id": sess.ID,
		"stage":      string(sess.Metadata.WizardStage),
		"cv_data":    sess.CVData,
		"metadata":   sess.Metadata,
		"ui_action":  wizard.BuildUIAction(sess.CVData, sess.Metadata),
	}, nil
}

// toolUpdateCVField applies a direct field-level edit or confirmation toggle
// outside the action-dispatch table, via optimistic concurrency (§4.1, S5).
func (s *Server) toolUpdateCVField(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	p := asParams(params)
	if sessionID == "" {
		sessionID, _ = p["session_id"].(string)
	}
	sess, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cv := sess.CVData
	meta := sess.Metadata

	// Applied in the observable order Confirm, Batch, Field, Patch (DESIGN
	// NOTES §9): confirmation toggles land first, then batch edits, then the
	// single field_path edit, then the whole-field cv_patch replacements.
	if confirm, ok := p["confirm"].(map[string]any); ok {
		if v, ok := confirm["contact_confirmed"].(bool); ok {
			meta.ConfirmedFlags.ContactConfirmed = v
		}
		if v, ok := confirm["education_confirmed"].(bool); ok {
			meta.ConfirmedFlags.EducationConfirmed = v
		}
	}
	for _, e := range collectBatchEdits(p) {
		if err := applyFieldPath(&cv, e.path, e.value); err != nil {
			return nil, wizard.NewUserError(err)
		}
	}
	for _, e := range collectFieldEdit(p) {
		if err := applyFieldPath(&cv, e.path, e.value); err != nil {
			return nil, wizard.NewUserError(err)
		}
	}
	if patch, ok := p["cv_patch"].(map[string]any); ok {
		for path, value := range patch {
			if err := applyFieldPath(&cv, path, value); err != nil {
				return nil, wizard.NewUserError(err)
			}
		}
	}

	updated, err := s.Store.Update(ctx, sess.ID, sess.Version, cv, meta)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id": updated.ID,
		"version":    updated.Version,
		"cv_data":    updated.CVData,
		"metadata":   updated.Metadata,
	}, nil
}

type fieldEdit struct {
	path  string
	value any
}

// collectFieldEdit normalizes the single-edit shape ({field_path, value}).
func collectFieldEdit(p map[string]any) []fieldEdit {
	var edits []fieldEdit
	if path, ok := p["field_path"].(string); ok && path != "" {
		edits = append(edits, fieldEdit{path: path, value: p["value"]})
	}
	return edits
}

// collectBatchEdits normalizes the batch-edit shape (edits: [...]).
func collectBatchEdits(p map[string]any) []fieldEdit {
	var edits []fieldEdit
	if raw, ok := p["edits"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			path, _ := m["field_path"].(string)
			if path == "" {
				continue
			}
			edits = append(edits, fieldEdit{path: path, value: m["value"]})
		}
	}
	return edits
}

// applyFieldPath sets one dotted field path (e.g. "contact.email",
// "work_experience.0.title") on cv. Only the paths a CV record actually
// exposes are supported; anything else is a user error.
func applyFieldPath(cv *model.CVRecord, path string, value any) error {
	parts := strings.Split(path, ".")
	switch parts[0] {
	case "contact":
		if len(parts) != 2 {
			return fmt.Errorf("invalid contact field path %q", path)
		}
		str, _ := value.(string)
		switch parts[1] {
		case "full_name":
			cv.Contact.FullName = str
		case "email":
			cv.Contact.Email = str
		case "phone":
			cv.Contact.Phone = str
		default:
			return fmt.Errorf("unknown contact field %q", parts[1])
		}
	case "profile":
		str, _ := value.(string)
		cv.Profile = str
	case "work_experience":
		if len(parts) == 1 {
			roles, err := toRoleSlice(value)
			if err != nil {
				return err
			}
			cv.WorkExperience = roles
			return nil
		}
		return applyRoleField(cv, parts[1:], value)
	case "education":
		if len(parts) == 1 {
			studies, err := toStudySlice(value)
			if err != nil {
				return err
			}
			cv.Education = studies
			return nil
		}
		return fmt.Errorf("unsupported education field path %q", path)
	case "it_ai_skills":
		cv.ITAISkills = toStringSlice(value)
	case "technical_operational_skills":
		cv.TechnicalOperationalSkills = toStringSlice(value)
	case "languages":
		cv.Languages = toStringSlice(value)
	case "further_experience":
		cv.FurtherExperience = toStringSlice(value)
	case "interests":
		cv.Interests = toStringSlice(value)
	default:
		return fmt.Errorf("unsupported field path %q", path)
	}
	return nil
}

func applyRoleField(cv *model.CVRecord, rest []string, value any) error {
	if len(rest) < 2 {
		return fmt.Errorf("invalid work_experience field path")
	}
	idx, err := strconv.Atoi(rest[0])
	if err != nil || idx < 0 || idx >= len(cv.WorkExperience) {
		return fmt.Errorf("invalid work_experience index %q", rest[0])
	}
	role := &cv.WorkExperience[idx]
	str, _ := value.(string)
	switch rest[1] {
	case "title":
		role.Title = str
	case "employer":
		role.Employer = str
	case "date_range":
		role.DateRange = str
	case "location":
		role.Location = str
	case "bullets":
		role.Bullets = toStringSlice(value)
	default:
		return fmt.Errorf("unknown work_experience field %q", rest[1])
	}
	return nil
}

// toRoleSlice converts a JSON-decoded []any of role objects (as produced by
// encoding/json.Unmarshal into map[string]any) into []model.Role, the shape
// a bulk work_experience cv_patch replacement arrives in.
func toRoleSlice(value any) ([]model.Role, error) {
	raw, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("work_experience must be an array")
	}
	roles := make([]model.Role, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("work_experience entries must be objects")
		}
		role := model.Role{}
		role.Title, _ = m["title"].(string)
		role.Employer, _ = m["employer"].(string)
		role.DateRange, _ = m["date_range"].(string)
		role.Location, _ = m["location"].(string)
		role.Bullets = toStringSlice(m["bullets"])
		role.Locked, _ = m["locked"].(bool)
		roles = append(roles, role)
	}
	return roles, nil
}

func toStudySlice(value any) ([]model.Study, error) {
	raw, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("education must be an array")
	}
	studies := make([]model.Study, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("education entries must be objects")
		}
		study := model.Study{}
		study.Title, _ = m["title"].(string)
		study.Institution, _ = m["institution"].(string)
		study.DateRange, _ = m["date_range"].(string)
		study.Details = toStringSlice(m["details"])
		studies = append(studies, study)
	}
	return studies, nil
}

func toStringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// toolValidateCV runs the hard-limit and readiness guards against a
// session's current CV without mutating it.
func (s *Server) toolValidateCV(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	if sessionID == "" {
		p := asParams(params)
		sessionID, _ = p["session_id"].(string)
	}
	sess, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	limits := validate.ForLanguage(sess.Metadata.TargetLanguage, s.Orchestrator.Validation.GermanScaleFactor)
	violations := validate.CheckCVRecord(sess.CVData, limits)
	readiness := validate.Summarize(sess.CVData, sess.Metadata)
	return map[string]any{
		"violations": violations,
		"readiness":  readiness,
	}, nil
}

// toolCVSessionSearch is a minimal session lookup by id; this deployment
// keeps no secondary search index, so it degenerates to a single Get.
func (s *Server) toolCVSessionSearch(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	p := asParams(params)
	if sessionID == "" {
		sessionID, _ = p["session_id"].(string)
	}
	if sessionID == "" {
		return nil, wizard.NewUserError(fmt.Errorf("session_id is required"))
	}
	sess, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"sessions": []map[string]any{{
			"session_id": sess.ID,
			"stage":      string(sess.Metadata.WizardStage),
			"updated_at": sess.UpdatedAt,
		}},
	}, nil
}

// toolGenerateContextPackV2 builds a phase-scoped LLM input projection.
func (s *Server) toolGenerateContextPackV2(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	p := asParams(params)
	if sessionID == "" {
		sessionID, _ = p["session_id"].(string)
	}
	phaseStr, _ := p["phase"].(string)
	phase := contextpack.Phase(phaseStr)
	jobText, _ := p["job_posting_text"].(string)
	maxChars := 0
	if v, ok := p["max_pack_chars"].(float64); ok {
		maxChars = int(v)
	}
	delta, _ := p["delta"].(bool)

	pack, err := s.Orchestrator.ContextPack(ctx, sessionID, phase, jobText, maxChars, delta)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"pack": contextpack.Render(pack),
		"sections": pack.Sections,
		"section_hashes": pack.SectionHashes,
		"truncated": pack.Truncated,
	}, nil
}

// toolPreviewHTML renders the CV HTML a PDF render would be built from,
// without invoking the headless-browser renderer.
func (s *Server) toolPreviewHTML(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	p := asParams(params)
	if sessionID == "" {
		sessionID, _ = p["session_id"].(string)
	}
	sess, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"html": wizard.RenderCVHTML(sess.CVData, sess.Metadata)}, nil
}

// toolGenerateCVFromSession forces the CV PDF execution protocol via the
// same REQUEST_GENERATE_PDF action dispatch path (cache/idempotency
// included), so this tool and the wizard action are never two code paths.
func (s *Server) toolGenerateCVFromSession(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	result, err := s.Orchestrator.Turn(ctx, wizard.TurnInput{
		SessionID:  firstNonEmpty(sessionID, stringParam(params, "session_id")),
		UserAction: &wizard.UserAction{ID: "REQUEST_GENERATE_PDF"},
	})
	if err != nil {
		return nil, err
	}
	if result.PDFBase64 == "" {
		return nil, fmt.Errorf("pdf generation did not produce output: %s", result.Response)
	}
	data, err := base64.StdEncoding.DecodeString(result.PDFBase64)
	if err != nil {
		return nil, err
	}
	return pdfResponse{Data: data, Filename: result.Filename}, nil
}

// toolGenerateCoverLetterFromSession drafts (if needed) and renders the
// cover letter PDF via the same action-dispatch path as the UI.
func (s *Server) toolGenerateCoverLetterFromSession(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	id := firstNonEmpty(sessionID, stringParam(params, "session_id"))
	sess, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Metadata.CoverLetterBlock == "" {
		genResult, err := s.Orchestrator.Turn(ctx, wizard.TurnInput{
			SessionID:  id,
			UserAction: &wizard.UserAction{ID: "COVER_LETTER_GENERATE"},
		})
		if err != nil {
			return nil, err
		}
		if !genResult.Success {
			return nil, fmt.Errorf("cover letter draft failed: %s", genResult.Response)
		}
	}
	result, err := s.Orchestrator.Turn(ctx, wizard.TurnInput{
		SessionID:  id,
		UserAction: &wizard.UserAction{ID: "COVER_LETTER_ACCEPT"},
	})
	if err != nil {
		return nil, err
	}
	if result.PDFBase64 == "" {
		return nil, fmt.Errorf("cover letter pdf generation did not produce output: %s", result.Response)
	}
	data, err := base64.StdEncoding.DecodeString(result.PDFBase64)
	if err != nil {
		return nil, err
	}
	return pdfResponse{Data: data, Filename: result.Filename}, nil
}

// toolGetPDFByRef fetches a previously generated artifact by its pdf_refs key.
func (s *Server) toolGetPDFByRef(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	id := firstNonEmpty(sessionID, stringParam(params, "session_id"))
	ref := stringParam(params, "ref")
	result, err := s.Orchestrator.Turn(ctx, wizard.TurnInput{
		SessionID:  id,
		UserAction: &wizard.UserAction{ID: "DOWNLOAD_PDF", Payload: map[string]any{"ref": ref}},
	})
	if err != nil {
		return nil, err
	}
	if result.PDFBase64 == "" {
		return nil, fmt.Errorf("no generated pdf for ref %q: %s", ref, result.Response)
	}
	data, err := base64.StdEncoding.DecodeString(result.PDFBase64)
	if err != nil {
		return nil, err
	}
	return pdfResponse{Data: data, Filename: result.Filename}, nil
}

// toolExportSessionDebug dumps the full session aggregate for debugging,
// gated by Wizard.DebugExportEnabled (§6).
func (s *Server) toolExportSessionDebug(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	if !s.Orchestrator.Wizard.DebugExportEnabled {
		return nil, wizard.NewUserError(fmt.Errorf("debug export is disabled for this deployment"))
	}
	id := firstNonEmpty(sessionID, stringParam(params, "session_id"))
	sess, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session":   sess,
		"ui_action": wizard.BuildUIAction(sess.CVData, sess.Metadata),
	}, nil
}

// toolCleanupExpiredSessions sweeps expired sessions from the store (§4.1).
func (s *Server) toolCleanupExpiredSessions(ctx context.Context, sessionID string, params map[string]any) (any, error) {
	n, err := s.Store.CleanupExpired(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": n}, nil
}

func stringParam(params map[string]any, key string) string {
	p := asParams(params)
	v, _ := p[key].(string)
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
