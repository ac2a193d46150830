package fsm

import (
	"testing"

	"github.com/cvwizard/backend/internal/model"
)

func TestResolve_EditIntentOverridesAll(t *testing.T) {
	cases := []struct {
		stage model.WizardStage
		msg   string
	}{
		{model.StageExecute, "actually change the phone number"},
		{model.StageConfirm, "zmień numer telefonu"},
		{model.StageDone, "I want to edit the work experience"},
	}
	for _, c := range cases {
		got := Resolve(c.stage, c.msg, SessionFlags{}, ValidationFlags{})
		if got != model.StageReview {
			t.Errorf("Resolve(%s, %q) = %s, want REVIEW", c.stage, c.msg, got)
		}
	}
}

func TestResolve_DoneIsSticky(t *testing.T) {
	got := Resolve(model.StageDone, "thanks", SessionFlags{}, ValidationFlags{})
	if got != model.StageDone {
		t.Errorf("Resolve(DONE) = %s, want DONE", got)
	}
}

func TestResolve_IngestAlwaysAdvances(t *testing.T) {
	got := Resolve(model.StageIngest, "", SessionFlags{}, ValidationFlags{})
	if got != model.StagePrepare {
		t.Errorf("Resolve(INGEST) = %s, want PREPARE", got)
	}
}

func TestResolve_PrepareGatedByConfirmationRequired(t *testing.T) {
	if got := Resolve(model.StagePrepare, "", SessionFlags{ConfirmationRequired: false}, ValidationFlags{}); got != model.StagePrepare {
		t.Errorf("Resolve(PREPARE, false) = %s, want PREPARE", got)
	}
	if got := Resolve(model.StagePrepare, "", SessionFlags{ConfirmationRequired: true}, ValidationFlags{}); got != model.StageReview {
		t.Errorf("Resolve(PREPARE, true) = %s, want REVIEW", got)
	}
}

func TestResolve_ReviewConfirmYesAdvances(t *testing.T) {
	got := Resolve(model.StageReview, "", SessionFlags{UserConfirmYes: true}, ValidationFlags{})
	if got != model.StageConfirm {
		t.Errorf("Resolve(REVIEW, confirm_yes) = %s, want CONFIRM", got)
	}
}

func TestResolve_ReviewAutoAdvancesAfterThreeTurns(t *testing.T) {
	if got := Resolve(model.StageReview, "", SessionFlags{TurnsInReview: 2}, ValidationFlags{}); got != model.StageReview {
		t.Errorf("Resolve(REVIEW, turns=2) = %s, want REVIEW", got)
	}
	if got := Resolve(model.StageReview, "", SessionFlags{TurnsInReview: 3}, ValidationFlags{}); got != model.StageConfirm {
		t.Errorf("Resolve(REVIEW, turns=3) = %s, want CONFIRM", got)
	}
}

func TestResolve_ConfirmRequiresGenerateRequested(t *testing.T) {
	got := Resolve(model.StageConfirm, "", SessionFlags{GenerateRequested: false}, ValidationFlags{ValidationPassed: true, ReadinessOK: true})
	if got != model.StageConfirm {
		t.Errorf("Resolve(CONFIRM, no generate) = %s, want CONFIRM", got)
	}
}

func TestResolve_ConfirmUserNoGoesBackToReview(t *testing.T) {
	got := Resolve(model.StageConfirm, "", SessionFlags{UserConfirmNo: true}, ValidationFlags{})
	if got != model.StageReview {
		t.Errorf("Resolve(CONFIRM, confirm_no) = %s, want REVIEW", got)
	}
}

func TestResolve_ConfirmExecutesWhenValidAndReady(t *testing.T) {
	sf := SessionFlags{GenerateRequested: true, PendingEdits: 0}
	vf := ValidationFlags{ValidationPassed: true, ReadinessOK: true}
	if got := Resolve(model.StageConfirm, "", sf, vf); got != model.StageExecute {
		t.Errorf("Resolve(CONFIRM, ready) = %s, want EXECUTE", got)
	}
}

func TestResolve_ConfirmPendingEditsBlocksExecute(t *testing.T) {
	sf := SessionFlags{GenerateRequested: true, PendingEdits: 1}
	vf := ValidationFlags{ValidationPassed: true, ReadinessOK: true}
	if got := Resolve(model.StageConfirm, "", sf, vf); got != model.StageConfirm {
		t.Errorf("Resolve(CONFIRM, pending edits) = %s, want CONFIRM", got)
	}
}

func TestResolve_ConfirmHighConfidenceRelaxesReadinessGate(t *testing.T) {
	sf := SessionFlags{GenerateRequested: true, PendingEdits: 0}
	vf := ValidationFlags{ValidationPassed: false, ReadinessOK: false, HighConfidence: true}
	if got := Resolve(model.StageConfirm, "", sf, vf); got != model.StageExecute {
		t.Errorf("Resolve(CONFIRM, high_confidence) = %s, want EXECUTE", got)
	}
}

func TestResolve_ConfirmHighConfidenceStillRequiresNoPendingEdits(t *testing.T) {
	sf := SessionFlags{GenerateRequested: true, PendingEdits: 1}
	vf := ValidationFlags{HighConfidence: true}
	if got := Resolve(model.StageConfirm, "", sf, vf); got != model.StageConfirm {
		t.Errorf("Resolve(CONFIRM, high_confidence + pending edits) = %s, want CONFIRM", got)
	}
}

func TestResolve_ExecuteTransitions(t *testing.T) {
	if got := Resolve(model.StageExecute, "", SessionFlags{}, ValidationFlags{PDFGenerated: true}); got != model.StageDone {
		t.Errorf("Resolve(EXECUTE, pdf_generated) = %s, want DONE", got)
	}
	if got := Resolve(model.StageExecute, "", SessionFlags{}, ValidationFlags{PDFFailed: true}); got != model.StageReview {
		t.Errorf("Resolve(EXECUTE, pdf_failed) = %s, want REVIEW", got)
	}
	if got := Resolve(model.StageExecute, "", SessionFlags{}, ValidationFlags{}); got != model.StageExecute {
		t.Errorf("Resolve(EXECUTE, pending) = %s, want EXECUTE", got)
	}
}

func TestDetectEditIntent(t *testing.T) {
	cases := map[string]bool{
		"please change my phone number": true,
		"zmień adres":                   true,
		"cofnij ostatnią zmianę":        true,
		"looks great, generate the pdf": false,
		"":                              false,
	}
	for msg, want := range cases {
		if got := DetectEditIntent(msg); got != want {
			t.Errorf("DetectEditIntent(%q) = %v, want %v", msg, got, want)
		}
	}
}
