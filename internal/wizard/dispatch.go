package wizard

// handlers maps every UI-emitted action id to its implementation. Every id
// buildUIAction ever returns must have an entry here (invariant 6,
// "no-ghost-actions") — TestHandlers_CoverEveryUIActionID checks this
// mechanically.
var handlers = map[string]handler{
	"WIZARD_GOTO_STAGE": handleGotoStage,

	"LANGUAGE_SELECT_EN": handleLanguageSelect,
	"LANGUAGE_SELECT_DE": handleLanguageSelect,
	"LANGUAGE_SELECT_PL": handleLanguageSelect,

	"CONFIRM_IMPORT_PREFILL_YES": handleConfirmImportPrefillYes,
	"CONFIRM_IMPORT_PREFILL_NO":  handleConfirmImportPrefillNo,

	"CONTACT_EDIT":         handleContactEdit,
	"CONTACT_SAVE":         handleContactSave,
	"CONTACT_CANCEL":       handleContactCancel,
	"CONTACT_CONFIRM":      handleContactConfirm,
	"CONTACT_APPLY_PREFILL": handleContactApplyPrefill,

	"EDUCATION_EDIT_JSON": handleEducationEdit,
	"EDUCATION_SAVE":      handleEducationSave,
	"EDUCATION_CANCEL":    handleEducationCancel,
	"EDUCATION_CONFIRM":   handleEducationConfirm,

	"JOB_OFFER_PASTE":         handleJobOfferPaste,
	"JOB_OFFER_ANALYZE":       handleJobOfferAnalyze,
	"JOB_OFFER_CANCEL":        handleJobOfferCancel,
	"JOB_OFFER_SKIP":          handleJobOfferSkip,
	"JOB_OFFER_INVALID_RETRY": handleJobOfferInvalidRetry,
	"JOB_OFFER_INVALID_SKIP":  handleJobOfferInvalidSkip,

	"WORK_NOTES_EDIT":    handleWorkNotesEdit,
	"WORK_NOTES_SAVE":    handleWorkNotesSave,
	"WORK_NOTES_CANCEL":  handleWorkNotesCancel,
	"WORK_TAILOR_RUN":    handleWorkTailorRun,
	"WORK_TAILOR_ACCEPT": handleWorkTailorAccept,
	"WORK_TAILOR_FEEDBACK": handleWorkTailorFeedback,
	"WORK_FEEDBACK_SAVE":   handleWorkFeedbackSave,
	"WORK_FEEDBACK_CANCEL": handleWorkFeedbackCancel,
	"WORK_ROLE_LOCK":       handleWorkRoleLock,
	"WORK_ROLE_UNLOCK":     handleWorkRoleUnlock,
	"WORK_ROLE_MOVE_UP":    handleWorkRoleMoveUp,
	"WORK_ROLE_MOVE_DOWN":  handleWorkRoleMoveDown,
	"WORK_ROLE_REMOVE":     handleWorkRoleRemove,
	"WORK_BULLET_REMOVE":   handleWorkBulletRemove,
	"WORK_CONFIRM_STAGE":   handleWorkConfirmStage,

	"SKILLS_TAILOR_RUN":    handleSkillsTailorRun,
	"SKILLS_TAILOR_ACCEPT": handleSkillsTailorAccept,
	"SKILLS_TAILOR_SKIP":   handleSkillsTailorSkip,
	"SKILLS_REMOVE":        handleSkillsRemove,
	"SKILLS_CONFIRM_STAGE": handleSkillsConfirmStage,

	"REQUEST_GENERATE_PDF": handleRequestGeneratePDF,
	"COVER_LETTER_GENERATE": handleCoverLetterGenerate,
	"COVER_LETTER_ACCEPT":   handleCoverLetterAccept,
	"COVER_LETTER_BACK":     handleCoverLetterBack,
	"DOWNLOAD_PDF":          handleDownloadPDF,
}

// dispatch routes the turn to its action handler, or treats the turn as a
// plain conversational message with no state transition when no action id
// is present.
func (o *Orchestrator) dispatch(a *actionCtx) (string, error) {
	if a.in.UserAction == nil || a.in.UserAction.ID == "" {
		return handlePlainMessage(a)
	}

	h, ok := handlers[a.action.ID]
	if !ok {
		return "", actionIDUnrecognized(a.action.ID)
	}
	return h(a)
}

// handlePlainMessage is the no-action-id path: the wizard orchestrator
// itself does not run free-form chat, it only reports the current substage
// back so the caller's UI can re-render.
func handlePlainMessage(a *actionCtx) (string, error) {
	return "ok", nil
}
