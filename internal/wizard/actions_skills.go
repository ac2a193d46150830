package wizard

import (
	"strings"

	"github.com/cvwizard/backend/internal/llmgateway"
	"github.com/cvwizard/backend/internal/llmgateway/schema"
	"github.com/cvwizard/backend/internal/model"
)

// handleSkillsTailorRun runs the skills-tailoring protocol: one structured
// call proposing all three buckets in one block that is accepted or
// discarded as a whole (§4.5, "Skills" action family), deduped by
// skillsFingerprint like its work-experience counterpart.
func handleSkillsTailorRun(a *actionCtx) (string, error) {
	fp := skillsFingerprint(*a.cv, *a.meta)
	if a.meta.SkillsProposalBlock != nil && a.meta.SkillsProposalInputSig == fp {
		a.meta.Substage = model.SubstageSkillsTailorRev
		return "reusing the existing skills proposal", nil
	}

	if !a.o.Wizard.EnableLLM {
		return "", userError("AI tailoring is disabled for this deployment")
	}
	if err := a.countModelCall(); err != nil {
		return "", err
	}

	corpus := skillsCorpus(*a.cv, *a.meta)
	var proposal model.SkillsProposal
	err := a.o.LLM.CallSchema(a.ctx, llmgateway.Request{
		Stage:        "skills_tailoring",
		SystemPrompt: skillsTailorSystemPrompt,
		UserText:     corpus,
		Schema:       schema.For(&proposal),
		SchemaName:   "SkillsProposal",
		SessionID:    a.sess.ID,
	}, &proposal)
	if err != nil {
		return "", userError("could not tailor skills: %v", err)
	}

	a.meta.SkillsProposalBlock = &proposal
	a.meta.SkillsProposalInputSig = fp
	a.meta.Substage = model.SubstageSkillsTailorRev
	return "tailored skills proposal ready for review", nil
}

func skillsCorpus(cv model.CVRecord, meta model.Metadata) string {
	var sb strings.Builder
	sb.WriteString("CURRENT_SKILLS:\n")
	sb.WriteString(strings.Join(cv.ITAISkills, ", "))
	sb.WriteString("\n")
	sb.WriteString(strings.Join(cv.TechnicalOperationalSkills, ", "))
	sb.WriteString("\n")
	sb.WriteString(strings.Join(cv.Languages, ", "))
	sb.WriteString("\n\nJOB_REQUIREMENTS:\n")
	if meta.JobReference != nil {
		sb.WriteString(strings.Join(meta.JobReference.MustHaves, "\n"))
		sb.WriteString("\n")
		sb.WriteString(strings.Join(meta.JobReference.NiceToHaves, "\n"))
	}
	return sb.String()
}

const skillsTailorSystemPrompt = `Reorder and emphasize the candidate's existing skills against the job ` +
	`requirements, across three independent buckets: it_ai_skills, technical_operational_skills, and ` +
	`languages. Only reorder and rephrase skills already listed in CURRENT_SKILLS; never invent a skill ` +
	`the candidate did not list.`

func handleSkillsTailorAccept(a *actionCtx) (string, error) {
	if a.meta.SkillsProposalBlock == nil {
		return "", userError("no skills proposal to accept")
	}
	p := a.meta.SkillsProposalBlock
	if len(p.ITAISkills) > 0 {
		a.cv.ITAISkills = p.ITAISkills
	}
	if len(p.TechnicalOperationalSkills) > 0 {
		a.cv.TechnicalOperationalSkills = p.TechnicalOperationalSkills
	}
	if len(p.Languages) > 0 {
		a.cv.Languages = p.Languages
	}
	a.meta.SkillsProposalBlock = nil
	a.meta.SkillsProposalInputSig = ""
	a.meta.Substage = model.SubstageITAISkills
	return "tailored skills applied", nil
}

func handleSkillsTailorSkip(a *actionCtx) (string, error) {
	a.meta.SkillsProposalBlock = nil
	a.meta.SkillsProposalInputSig = ""
	a.meta.Substage = model.SubstageITAISkills
	return "discarded skills proposal", nil
}

func handleSkillsRemove(a *actionCtx) (string, error) {
	bucket, _ := a.action.Payload["bucket"].(string)
	idx, ok := intField(a.action.Payload, "index")
	if !ok {
		return "", userError("invalid index")
	}

	var list *[]string
	switch bucket {
	case "it_ai_skills":
		list = &a.cv.ITAISkills
	case "technical_operational_skills":
		list = &a.cv.TechnicalOperationalSkills
	case "languages":
		list = &a.cv.Languages
	default:
		return "", userError("unknown skills bucket %q", bucket)
	}
	if idx < 0 || idx >= len(*list) {
		return "", userError("invalid index")
	}
	*list = append((*list)[:idx], (*list)[idx+1:]...)
	return "removed", nil
}

func handleSkillsConfirmStage(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageReviewFinal
	return "moving to review", nil
}
