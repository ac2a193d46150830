// Package fsm implements the pure macro-stage resolver: given the current
// stage, the incoming user message, and the session/validation flags, it
// returns the next WizardStage. It never reads or writes a session — the
// Wizard Orchestrator is the only caller, and is the only component allowed
// to persist the result.
package fsm

import (
	"strings"

	"github.com/cvwizard/backend/internal/model"
)

// editIntentKeywordsPL and editIntentKeywordsEN are the literal keyword sets
// an edit-intent override is detected against, in Polish and English.
var (
	editIntentKeywordsPL = []string{"zmień", "popraw", "cofnij", "dodaj", "usuń", "jednak", "nie tak", "inaczej"}
	editIntentKeywordsEN = []string{"change", "edit", "update", "modify", "fix", "revise", "adjust"}
)

// autoAdvanceAfterTurns is the number of REVIEW turns without an explicit
// confirmation after which the FSM auto-advances to CONFIRM.
const autoAdvanceAfterTurns = 3

// DetectEditIntent reports whether userMessage contains any edit-intent
// keyword, case-insensitively, in either language set.
func DetectEditIntent(userMessage string) bool {
	text := strings.ToLower(userMessage)
	for _, k := range editIntentKeywordsPL {
		if strings.Contains(text, k) {
			return true
		}
	}
	for _, k := range editIntentKeywordsEN {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// SessionFlags carries the session-side inputs resolve() reasons over.
type SessionFlags struct {
	ConfirmationRequired bool
	PendingEdits         int
	GenerateRequested    bool
	UserConfirmYes       bool
	UserConfirmNo        bool
	TurnsInReview        int
}

// ValidationFlags carries the validation-side inputs resolve() reasons over.
type ValidationFlags struct {
	ValidationPassed bool
	ReadinessOK      bool
	PDFGenerated     bool
	PDFFailed        bool
	HighConfidence   bool
}

// Resolve deterministically computes the next macro stage. Precedence,
// evaluated top-down:
//  1. Edit intent overrides everything except terminal guards: REVIEW.
//  2. DONE is sticky unless rule 1 fired.
//  3. INGEST -> PREPARE unconditionally.
//  4. PREPARE -> REVIEW iff ConfirmationRequired, else stays.
//  5. REVIEW: UserConfirmYes -> CONFIRM; or auto-advance after
//     TurnsInReview >= 3; else stays.
//  6. CONFIRM: UserConfirmNo -> REVIEW; generate+valid+ready+no-pending-edits
//     -> EXECUTE; HighConfidence relaxes the readiness gate; else stays.
//  7. EXECUTE: PDFGenerated -> DONE; PDFFailed -> REVIEW; else stays.
func Resolve(current model.WizardStage, userMessage string, sf SessionFlags, vf ValidationFlags) model.WizardStage {
	cur := current
	if cur == "" {
		cur = model.StageIngest
	}

	if DetectEditIntent(userMessage) {
		return model.StageReview
	}

	if cur == model.StageDone {
		return model.StageDone
	}

	switch cur {
	case model.StageIngest:
		return model.StagePrepare

	case model.StagePrepare:
		if sf.ConfirmationRequired {
			return model.StageReview
		}
		return model.StagePrepare

	case model.StageReview:
		if sf.UserConfirmYes {
			return model.StageConfirm
		}
		if sf.TurnsInReview >= autoAdvanceAfterTurns {
			return model.StageConfirm
		}
		return model.StageReview

	case model.StageConfirm:
		if sf.UserConfirmNo {
			return model.StageReview
		}
		if !sf.GenerateRequested {
			return model.StageConfirm
		}
		if vf.ValidationPassed && vf.ReadinessOK && sf.PendingEdits == 0 {
			return model.StageExecute
		}
		if vf.HighConfidence && sf.PendingEdits == 0 {
			return model.StageExecute
		}
		return model.StageConfirm

	case model.StageExecute:
		if vf.PDFGenerated {
			return model.StageDone
		}
		if vf.PDFFailed {
			return model.StageReview
		}
		return model.StageExecute
	}

	return model.StageReview
}
