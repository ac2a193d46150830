package wizard

import (
	"fmt"
	"strings"

	"github.com/cvwizard/backend/internal/llmgateway"
	"github.com/cvwizard/backend/internal/llmgateway/schema"
	"github.com/cvwizard/backend/internal/model"
	"github.com/cvwizard/backend/internal/validate"
)

// maxTailorAttempts bounds the silent violation-feedback retry loop the
// work-tailoring protocol runs before surfacing a failure to the user.
const maxTailorAttempts = 3

func handleWorkNotesEdit(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageWorkNotesEdit
	return "editing tailoring notes", nil
}

func handleWorkNotesCancel(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageWorkExperience
	return "cancelled", nil
}

func handleWorkNotesSave(a *actionCtx) (string, error) {
	notes, _ := a.action.Payload["notes"].(string)
	a.meta.WorkTailoringNotes = notes
	a.meta.Substage = model.SubstageWorkExperience
	return "notes saved", nil
}

func handleWorkTailorFeedback(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageWorkTailorFeed
	return "what should change?", nil
}

func handleWorkFeedbackCancel(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageWorkTailorReview
	return "cancelled", nil
}

func handleWorkFeedbackSave(a *actionCtx) (string, error) {
	feedback, _ := a.action.Payload["feedback"].(string)
	a.meta.WorkTailoringFeedback = feedback
	return runWorkTailoring(a)
}

func handleWorkTailorRun(a *actionCtx) (string, error) {
	return runWorkTailoring(a)
}

// runWorkTailoring implements the work-tailoring protocol (§4.5.1):
// fingerprint-based dedupe against the last proposal, then — on a miss — a
// bounded retry loop that re-prompts with the specific limit/invention
// violations from the previous attempt until a clean proposal is produced
// or attempts are exhausted.
func runWorkTailoring(a *actionCtx) (string, error) {
	fp := workFingerprint(*a.cv, *a.meta)
	if a.meta.WorkExperienceProposalBlock != nil && a.meta.WorkExperienceProposalInputSig == fp {
		a.meta.Substage = model.SubstageWorkTailorReview
		return "reusing the existing tailored proposal", nil
	}

	if !a.o.Wizard.EnableLLM {
		return "", userError("AI tailoring is disabled for this deployment")
	}

	corpus := workCorpus(*a.cv, *a.meta)
	limits := a.limits()

	var proposal []model.Role
	var lastViolationText string

	for attempt := 1; attempt <= maxTailorAttempts; attempt++ {
		if err := a.countModelCall(); err != nil {
			return "", err
		}

		prompt := workTailorSystemPrompt
		if lastViolationText != "" {
			prompt += "\n\nThe previous attempt had these problems, fix them:\n" + lastViolationText
		}

		var result struct {
			Roles []model.Role `json:"roles"`
		}
		err := a.o.LLM.CallSchema(a.ctx, llmgateway.Request{
			Stage:        "work_tailoring",
			SystemPrompt: prompt,
			UserText:     corpus,
			Schema:       schema.For(&result),
			SchemaName:   "WorkTailoringProposal",
			SessionID:    a.sess.ID,
		}, &result)
		if err != nil {
			lastViolationText = err.Error()
			continue
		}

		limitViolations := validate.CheckCVRecord(model.CVRecord{WorkExperience: result.Roles}, limits)
		inventionViolations := validate.NoInventionCheck(result.Roles, corpus)
		if len(limitViolations) == 0 && len(inventionViolations) == 0 {
			proposal = result.Roles
			break
		}
		lastViolationText = describeViolations(limitViolations, inventionViolations)
	}

	if proposal == nil {
		return "", userError("could not produce a compliant tailored proposal after %d attempts: %s", maxTailorAttempts, lastViolationText)
	}

	a.meta.WorkExperienceProposalBlock = proposal
	a.meta.WorkExperienceProposalInputSig = fp
	a.meta.Substage = model.SubstageWorkTailorReview
	return "tailored proposal ready for review", nil
}

// workCorpus concatenates CURRENT_WORK_EXPERIENCE, TAILORING_SUGGESTIONS
// (the job reference's must/nice-to-haves plus free-text notes) and
// TAILORING_FEEDBACK, matching the exact corpus validate.NoInventionCheck is
// checked against.
func workCorpus(cv model.CVRecord, meta model.Metadata) string {
	var sb strings.Builder
	sb.WriteString("CURRENT_WORK_EXPERIENCE:\n")
	for _, role := range cv.WorkExperience {
		fmt.Fprintf(&sb, "%s at %s (%s, %s)\n", role.Title, role.Employer, role.DateRange, role.Location)
		for _, b := range role.Bullets {
			sb.WriteString("- " + b + "\n")
		}
	}
	sb.WriteString("\nTAILORING_SUGGESTIONS:\n")
	if meta.JobReference != nil {
		sb.WriteString(strings.Join(meta.JobReference.MustHaves, "\n"))
		sb.WriteString("\n")
		sb.WriteString(strings.Join(meta.JobReference.NiceToHaves, "\n"))
		sb.WriteString("\n")
	}
	sb.WriteString(meta.WorkTailoringNotes)
	sb.WriteString("\n\nTAILORING_FEEDBACK:\n")
	sb.WriteString(meta.WorkTailoringFeedback)
	return sb.String()
}

func describeViolations(limitViolations []validate.LimitViolation, inventionViolations []validate.InventionViolation) string {
	var sb strings.Builder
	for _, v := range limitViolations {
		fmt.Fprintf(&sb, "- %s exceeds %d characters (got %d)\n", v.Field, v.Limit, v.Length)
	}
	for _, v := range inventionViolations {
		fmt.Fprintf(&sb, "- invented phrase not present in source material: %q\n", v.Phrase)
	}
	return sb.String()
}

const workTailorSystemPrompt = `You tailor a candidate's work experience bullets against a job posting. ` +
	`You may only rephrase, reorder, or emphasize facts already present in CURRENT_WORK_EXPERIENCE. ` +
	`Never invent employers, titles, dates, numbers, or achievements. Keep every field within its ` +
	`hard character limit. Return the full roles list, including unchanged roles.`

// handleWorkTailorAccept merges the reviewed proposal into the canonical CV
// record. Locked roles are left untouched (the user pinned them); the merge
// re-validates the result and, if it now violates limits, silently re-runs
// the tailoring protocol with that violation fed back before giving up.
func handleWorkTailorAccept(a *actionCtx) (string, error) {
	if a.meta.WorkExperienceProposalBlock == nil {
		return "", userError("no tailored proposal to accept")
	}

	merged := mergeRoles(a.cv.WorkExperience, a.meta.WorkExperienceProposalBlock)
	limits := a.limits()

	violations := validate.CheckCVRecord(model.CVRecord{WorkExperience: merged}, limits)
	if len(violations) > 0 {
		a.meta.WorkTailoringFeedback = describeViolations(violations, nil)
		if _, err := runWorkTailoring(a); err != nil {
			// The bounded silent retry inside runWorkTailoring is exhausted:
			// hand control back to the user with a regenerate instruction
			// instead of leaving them on the stale review screen.
			a.meta.Substage = model.SubstageWorkTailorFeed
			return "", err
		}
		merged = mergeRoles(a.cv.WorkExperience, a.meta.WorkExperienceProposalBlock)
	}

	a.cv.WorkExperience = merged
	a.meta.WorkExperienceProposalBlock = nil
	a.meta.WorkExperienceProposalInputSig = ""
	a.meta.WorkTailoringFeedback = ""
	a.meta.Substage = model.SubstageWorkExperience
	return "tailored work experience applied", nil
}

// mergeRoles keeps a locked role's current content and takes every other
// role from the proposal, by index.
func mergeRoles(current, proposal []model.Role) []model.Role {
	merged := make([]model.Role, len(proposal))
	copy(merged, proposal)
	for i := range merged {
		if i < len(current) && current[i].Locked {
			merged[i] = current[i]
		}
	}
	return merged
}

func handleWorkRoleLock(a *actionCtx) (string, error)   { return setRoleLocked(a, true) }
func handleWorkRoleUnlock(a *actionCtx) (string, error)  { return setRoleLocked(a, false) }

func setRoleLocked(a *actionCtx, locked bool) (string, error) {
	idx, ok := intField(a.action.Payload, "role_index")
	if !ok || idx < 0 || idx >= len(a.cv.WorkExperience) {
		return "", userError("invalid role_index")
	}
	a.cv.WorkExperience[idx].Locked = locked
	return "ok", nil
}

func handleWorkRoleMoveUp(a *actionCtx) (string, error) {
	idx, ok := intField(a.action.Payload, "role_index")
	if !ok || idx <= 0 || idx >= len(a.cv.WorkExperience) {
		return "", userError("invalid role_index")
	}
	roles := a.cv.WorkExperience
	roles[idx-1], roles[idx] = roles[idx], roles[idx-1]
	return "ok", nil
}

func handleWorkRoleMoveDown(a *actionCtx) (string, error) {
	idx, ok := intField(a.action.Payload, "role_index")
	if !ok || idx < 0 || idx >= len(a.cv.WorkExperience)-1 {
		return "", userError("invalid role_index")
	}
	roles := a.cv.WorkExperience
	roles[idx+1], roles[idx] = roles[idx], roles[idx+1]
	return "ok", nil
}

func handleWorkRoleRemove(a *actionCtx) (string, error) {
	idx, ok := intField(a.action.Payload, "role_index")
	if !ok || idx < 0 || idx >= len(a.cv.WorkExperience) {
		return "", userError("invalid role_index")
	}
	a.cv.WorkExperience = append(a.cv.WorkExperience[:idx], a.cv.WorkExperience[idx+1:]...)
	return "role removed", nil
}

func handleWorkBulletRemove(a *actionCtx) (string, error) {
	ri, ok := intField(a.action.Payload, "role_index")
	if !ok || ri < 0 || ri >= len(a.cv.WorkExperience) {
		return "", userError("invalid role_index")
	}
	bi, ok := intField(a.action.Payload, "bullet_index")
	bullets := a.cv.WorkExperience[ri].Bullets
	if !ok || bi < 0 || bi >= len(bullets) {
		return "", userError("invalid bullet_index")
	}
	a.cv.WorkExperience[ri].Bullets = append(bullets[:bi], bullets[bi+1:]...)
	return "bullet removed", nil
}

func handleWorkConfirmStage(a *actionCtx) (string, error) {
	if len(a.cv.WorkExperience) == 0 {
		return "", userError("add at least one work experience entry")
	}
	a.meta.Substage = model.SubstageITAISkills
	return "moving to skills", nil
}

func intField(payload map[string]any, key string) (int, bool) {
	v, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
