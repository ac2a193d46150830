package wizard

import (
	"time"

	"github.com/cvwizard/backend/internal/llmgateway"
	"github.com/cvwizard/backend/internal/llmgateway/schema"
	"github.com/cvwizard/backend/internal/model"
	"github.com/cvwizard/backend/internal/urlfetch"
	"github.com/cvwizard/backend/internal/validate"
)

func handleJobOfferPaste(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageJobPostingPaste
	return "paste the job posting", nil
}

func handleJobOfferCancel(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageJobPosting
	return "cancelled", nil
}

func handleJobOfferSkip(a *actionCtx) (string, error) {
	if a.o.Wizard.RequireJobText {
		return "", userError("a job posting is required before continuing")
	}
	a.meta.JobInputStatus = "skipped"
	a.meta.Substage = model.SubstageWorkExperience
	return "skipping job posting", nil
}

func handleJobOfferInvalidRetry(a *actionCtx) (string, error) {
	a.meta.JobPostingInvalidDraft = ""
	a.meta.Substage = model.SubstageJobPostingPaste
	return "try pasting the job posting again", nil
}

func handleJobOfferInvalidSkip(a *actionCtx) (string, error) {
	a.meta.JobPostingInvalidDraft = ""
	a.meta.JobInputStatus = "skipped"
	a.meta.Substage = model.SubstageWorkExperience
	return "skipping job posting", nil
}

// handleJobOfferAnalyze resolves a URL or pasted text into job posting
// text, runs the acceptance gate, and — on success — extracts a structured
// JobReference via the LLM gateway (§4.5, job posting action family).
func handleJobOfferAnalyze(a *actionCtx) (string, error) {
	text, _ := a.action.Payload["job_posting_text"].(string)
	url, _ := a.action.Payload["job_posting_url"].(string)

	if text == "" && url != "" {
		if a.o.Fetcher == nil {
			return "", userError("job posting URL fetch is not configured")
		}
		fetched, err := a.o.Fetcher.FetchText(a.ctx, url, 10*time.Second)
		if err != nil {
			a.meta.JobFetchStatus = "error"
			return "", userError("could not fetch job posting URL: %v", err)
		}
		text = fetched
		a.meta.JobFetchStatus = "ok"
		a.meta.JobPostingURL = url
	}

	if text == "" {
		return "", userError("paste a job posting or provide a URL")
	}
	text = urlfetch.ExtractText(text)

	status := validate.JobPostingGate(text, a.o.Validation.JobPostingMinLength, a.o.Validation.JobPostingNotesPronounThreshold)
	if status != validate.JobPostingValid {
		a.meta.JobPostingInvalidDraft = text
		a.meta.JobInputStatus = string(status)
		a.meta.Substage = model.SubstageJobPostingPaste
		return "", userError("job posting rejected: %s", status)
	}

	a.meta.JobPostingText = text
	a.meta.JobInputStatus = string(validate.JobPostingValid)

	if a.o.Wizard.EnableLLM {
		if err := a.countModelCall(); err != nil {
			return "", err
		}
		var ref model.JobReference
		err := a.o.LLM.CallSchema(a.ctx, llmgateway.Request{
			Stage:        "job_reference_extraction",
			SystemPrompt: jobReferenceSystemPrompt,
			UserText:     text,
			Schema:       schema.For(&model.JobReference{}),
			SchemaName:   "JobReference",
			SessionID:    a.sess.ID,
		}, &ref)
		if err == nil {
			a.meta.JobReference = &ref
		}
	}

	a.meta.Substage = model.SubstageWorkExperience
	return "job posting analyzed", nil
}

const jobReferenceSystemPrompt = `Extract a structured job reference from the posting text: title, ` +
	`company, seniority, must-have requirements, nice-to-have requirements, and the posting's ` +
	`primary language. Use only information present in the text.`
