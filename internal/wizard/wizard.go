// Package wizard implements the Wizard Orchestrator: the session-scoped,
// stage-driven state machine that interleaves deterministic user actions
// with schema-constrained LLM calls, composing the session store, FSM
// resolver, LLM gateway, and validation guards into a single wizard turn.
package wizard

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cvwizard/backend/internal/blobstore"
	"github.com/cvwizard/backend/internal/config"
	"github.com/cvwizard/backend/internal/contextpack"
	"github.com/cvwizard/backend/internal/docx"
	"github.com/cvwizard/backend/internal/fsm"
	"github.com/cvwizard/backend/internal/llmgateway"
	"github.com/cvwizard/backend/internal/model"
	"github.com/cvwizard/backend/internal/obslog"
	"github.com/cvwizard/backend/internal/pdfrender"
	"github.com/cvwizard/backend/internal/session"
	"github.com/cvwizard/backend/internal/urlfetch"
	"github.com/cvwizard/backend/internal/validate"
)

// majorStep is the totally ordered ranking WIZARD_GOTO_STAGE navigates
// along. Stages before "contact" (language selection, import gate) have no
// rank and cannot be a navigation target.
var majorStep = map[model.Substage]int{
	model.SubstageContact:           1,
	model.SubstageContactEdit:       1,
	model.SubstageEducation:         2,
	model.SubstageJobPosting:        3,
	model.SubstageJobPostingPaste:   3,
	model.SubstageWorkExperience:    4,
	model.SubstageWorkNotesEdit:     4,
	model.SubstageWorkTailorReview:  4,
	model.SubstageWorkTailorFeed:    4,
	model.SubstageITAISkills:        5,
	model.SubstageSkillsNotesEdit:   5,
	model.SubstageSkillsTailorRev:   5,
	model.SubstageReviewFinal:       6,
	model.SubstageCoverLetterReview: 6,
}

// navigationTarget maps a WIZARD_GOTO_STAGE "stage" payload name to the
// substage it lands on.
var navigationTarget = map[string]model.Substage{
	"contact":      model.SubstageContact,
	"education":    model.SubstageEducation,
	"job_posting":  model.SubstageJobPosting,
	"work":         model.SubstageWorkExperience,
	"skills":       model.SubstageITAISkills,
	"review":       model.SubstageReviewFinal,
}

// UserAction is one UI-emitted action id plus its optional payload.
type UserAction struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// TurnInput is one incoming wizard turn (process_cv_orchestrated params).
type TurnInput struct {
	SessionID      string
	DocxBase64     string
	Language       string
	Message        string
	UserAction     *UserAction
	JobPostingURL  string
	JobPostingText string
	ClientContext  map[string]any
}

// UIActionItem is one clickable action the UI may offer.
type UIActionItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Style string `json:"style,omitempty"`
}

// UIField is one editable field the UI may render alongside actions.
type UIField struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

// UIAction is the UI-facing action/field set for the current substage.
type UIAction struct {
	Title   string         `json:"title"`
	Actions []UIActionItem `json:"actions"`
	Fields  []UIField      `json:"fields,omitempty"`
}

// RunSummary reports how a turn executed for debugging/observability.
type RunSummary struct {
	ExecutionMode bool           `json:"execution_mode"`
	ModelCalls    int            `json:"model_calls"`
	MaxModelCalls int            `json:"max_model_calls"`
	StageDebug    map[string]any `json:"stage_debug,omitempty"`
}

// TurnResult is the full response of one wizard turn.
type TurnResult struct {
	Success    bool
	SessionID  string
	Stage      model.WizardStage
	Response   string
	UIAction   *UIAction
	CVData     model.CVRecord
	Metadata   model.Metadata
	PDFBase64  string
	Filename   string
	RunSummary RunSummary
}

// turnError is a user-correctable failure surfaced as 400-class by the tool
// dispatcher rather than a 500.
type turnError struct {
	msg string
}

func (e *turnError) Error() string { return e.msg }

// userError builds a user-correctable error (§7 taxonomy).
func userError(format string, args ...any) error {
	return &turnError{msg: fmt.Sprintf(format, args...)}
}

// IsUserError reports whether err is a user-correctable wizard error.
func IsUserError(err error) bool {
	_, ok := err.(*turnError)
	return ok
}

// NewUserError wraps err as a user-correctable failure, for callers outside
// this package (the tool dispatcher) that validate request shape before
// ever reaching an action handler.
func NewUserError(err error) error {
	if err == nil {
		return nil
	}
	return &turnError{msg: err.Error()}
}

// RenderCVHTML exposes the CV HTML template for the preview_html tool.
func RenderCVHTML(cv model.CVRecord, meta model.Metadata) string {
	return renderCVHTML(cv, meta)
}

// Orchestrator composes the session store, FSM resolver, LLM gateway, and
// validation guards into wizard turns (C5, "the heart").
type Orchestrator struct {
	Store     session.Store
	LLM       llmgateway.Client
	Blobs     blobstore.Store
	Extractor docx.Extractor
	Renderer  pdfrender.Renderer
	Fetcher   urlfetch.Fetcher

	Wizard     config.WizardConfig
	Validation config.ValidationConfig

	Log *obslog.Logger
}

// actionCtx carries everything one action handler needs, threaded through
// the dispatch table instead of recomputed per handler.
type actionCtx struct {
	ctx        context.Context
	o          *Orchestrator
	sess       model.Session
	cv         *model.CVRecord
	meta       *model.Metadata
	in         TurnInput
	action     UserAction
	modelCalls int

	pdfBytes    []byte
	pdfFilename string
}

// countModelCall records one LLM call against the turn's call budget,
// refusing to exceed config.Wizard.MaxModelCallsPerTurn (§6).
func (a *actionCtx) countModelCall() error {
	a.modelCalls++
	if a.o.Wizard.MaxModelCallsPerTurn > 0 && a.modelCalls > a.o.Wizard.MaxModelCallsPerTurn {
		return userError("turn exceeded the maximum of %d model calls", a.o.Wizard.MaxModelCallsPerTurn)
	}
	return nil
}

func (a *actionCtx) limits() validate.Limits {
	return validate.ForLanguage(a.meta.TargetLanguage, a.o.Validation.GermanScaleFactor)
}

// handler is one UI action's implementation. It mutates cv/meta in place and
// returns the assistant-facing response text, or an error.
type handler func(a *actionCtx) (string, error)

// Turn executes one wizard turn end to end: load-or-create session, dispatch
// to an action handler or stage handler, compute the next substage, persist,
// and build the response (§4.5 steps 1-5).
func (o *Orchestrator) Turn(ctx context.Context, in TurnInput) (TurnResult, error) {
	var sess model.Session
	var err error

	if in.SessionID == "" {
		sess, err = o.createSession(ctx, in)
		if err != nil {
			return TurnResult{}, err
		}
	} else {
		sess, err = o.Store.Get(ctx, in.SessionID)
		if err != nil {
			return TurnResult{}, err
		}
	}

	cv := sess.CVData
	meta := sess.Metadata

	a := &actionCtx{ctx: ctx, o: o, sess: sess, cv: &cv, meta: &meta, in: in}
	if in.UserAction != nil {
		a.action = *in.UserAction
	}

	responseText, handlerErr := o.dispatch(a)

	meta.Substage = nextSubstage(meta.Substage, a)
	meta.StageHistory = model.AppendStageHistory(meta.StageHistory, meta.Substage)
	meta.WizardStage = fsm.Resolve(meta.WizardStage, in.Message, sessionFlags(meta), validationFlags(cv, meta, o.Validation))

	eventKind := "turn"
	if in.UserAction != nil {
		eventKind = in.UserAction.ID
	}
	meta.EventLog = model.AppendEvent(meta.EventLog, model.EventLogEntry{
		At: nowOrZero(ctx), Kind: eventKind,
	})

	updated, persistErr := o.Store.Update(ctx, sess.ID, sess.Version, cv, meta)
	if persistErr != nil {
		return TurnResult{}, persistErr
	}

	result := TurnResult{
		SessionID: updated.ID,
		Stage:     updated.Metadata.WizardStage,
		CVData:    updated.CVData,
		Metadata:  updated.Metadata,
		UIAction:  BuildUIAction(updated.CVData, updated.Metadata),
		RunSummary: RunSummary{
			ExecutionMode: o.Wizard.SingleCallExecution,
			ModelCalls:    a.modelCalls,
			MaxModelCalls: o.Wizard.MaxModelCallsPerTurn,
			StageDebug: map[string]any{
				"next_stage":  string(updated.Metadata.WizardStage),
				"edit_intent": fsm.DetectEditIntent(in.Message),
			},
		},
	}

	if handlerErr != nil {
		result.Success = false
		result.Response = handlerErr.Error()
		return result, nil
	}

	result.Success = true
	result.Response = responseText
	if a.pdfBytes != nil {
		result.PDFBase64 = encodePDF(a.pdfBytes)
		result.Filename = a.pdfFilename
	}
	return result, nil
}

// nowOrZero returns the wall clock for event-log timestamps; ctx is not
// consulted.
func nowOrZero(ctx context.Context) time.Time {
	return time.Now()
}

func encodePDF(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// BuildUIAction returns the UI action/field set for the session's current
// substage (§4.5, invariant 6: every id it emits must be handled by
// dispatch).
func BuildUIAction(cv model.CVRecord, meta model.Metadata) *UIAction {
	return buildUIAction(cv, meta)
}

// ContextPack exposes the phase-scoped projection for the tool dispatcher's
// generate_context_pack_v2 operation.
func (o *Orchestrator) ContextPack(ctx context.Context, sessionID string, phase contextpack.Phase, jobPostingText string, maxPackChars int, delta bool) (contextpack.Pack, error) {
	sess, err := o.Store.Get(ctx, sessionID)
	if err != nil {
		return contextpack.Pack{}, err
	}
	return contextpack.Build(contextpack.Request{
		Phase:             phase,
		CV:                sess.CVData,
		Metadata:          sess.Metadata,
		JobPostingText:    jobPostingText,
		MaxPackChars:      maxPackChars,
		Delta:             delta,
		SectionHashesPrev: sess.Metadata.SectionHashesPrev,
	}), nil
}
