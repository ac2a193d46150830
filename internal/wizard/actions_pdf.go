package wizard

import (
	"fmt"
	"time"

	"github.com/cvwizard/backend/internal/llmgateway"
	"github.com/cvwizard/backend/internal/llmgateway/schema"
	"github.com/cvwizard/backend/internal/model"
	"github.com/cvwizard/backend/internal/pdfrender"
	"github.com/cvwizard/backend/internal/validate"
)

// handleRequestGeneratePDF runs the PDF execution protocol (§4.5.2) for the
// CV document: readiness gate, cache reuse via pdf_refs keyed by a content
// fingerprint, an idempotency latch against byte-identical regeneration, and
// render-and-store on a cache miss.
func handleRequestGeneratePDF(a *actionCtx) (string, error) {
	readiness := validate.Summarize(*a.cv, *a.meta)
	if !readiness.CanGenerate && !a.meta.HighConfidence {
		return "", userError("not ready to generate: %v", readiness.Reasons)
	}

	fp := cvDocumentFingerprint(*a.cv, *a.meta)
	if !a.o.Wizard.AlwaysRegeneratePDF {
		if ref, ok := a.meta.PDFRefs["cv:"+fp]; ok {
			resp, err := servePDF(a, ref)
			if err != nil {
				return resp, err
			}
			a.meta.Substage = nextAfterCVGenerate(a)
			return resp, nil
		}
	}

	html := renderCVHTML(*a.cv, *a.meta)
	data, err := a.o.Renderer.Render(a.ctx, pdfrender.KindCV, html)
	if err != nil {
		a.meta.PDFFailed = true
		a.meta.GenerateRequested = true
		return "", userError("pdf generation failed: %v", err)
	}

	blob, err := a.o.Blobs.Put(a.ctx, "pdfs", data, "application/pdf")
	if err != nil {
		a.meta.PDFFailed = true
		return "", userError("could not store generated pdf: %v", err)
	}

	now := time.Now()
	ref := model.PDFRef{
		Kind:         "cv",
		Container:    blob.Container,
		BlobName:     blob.BlobName,
		DownloadName: downloadName(a.cv.Contact.FullName, a.meta.TargetLanguage, "CV", now),
		CreatedAt:    now,
	}
	if a.meta.PDFRefs == nil {
		a.meta.PDFRefs = map[string]model.PDFRef{}
	}
	a.meta.PDFRefs["cv:"+fp] = ref
	a.meta.PDFGenerated = true
	a.meta.PDFFailed = false
	a.meta.GenerateRequested = true

	a.pdfBytes = data
	a.pdfFilename = ref.DownloadName
	a.meta.Substage = nextAfterCVGenerate(a)
	return "pdf generated", nil
}

// nextAfterCVGenerate implements §4.5.2 scenario S1's post-generation
// transition: on to cover_letter_review when the deployment can actually
// draft one (cover letters enabled, LLM enabled, target language supported),
// otherwise straight to review_final.
func nextAfterCVGenerate(a *actionCtx) model.Substage {
	if a.o.Wizard.EnableCoverLetter && a.o.Wizard.EnableLLM && isCoverLetterLanguage(a.meta.TargetLanguage) {
		return model.SubstageCoverLetterReview
	}
	return model.SubstageReviewFinal
}

func isCoverLetterLanguage(lang string) bool {
	return lang == "en" || lang == "de"
}

func servePDF(a *actionCtx, ref model.PDFRef) (string, error) {
	data, err := a.o.Blobs.Get(a.ctx, model.BlobRef{Container: ref.Container, BlobName: ref.BlobName})
	if err != nil {
		return "", userError("could not load cached pdf: %v", err)
	}
	a.pdfBytes = data
	a.pdfFilename = ref.DownloadName
	a.meta.PDFGenerated = true
	a.meta.GenerateRequested = true
	return "reusing previously generated pdf", nil
}

// cvDocumentFingerprint keys the idempotency latch: identical CV content and
// target language always produce the same cache key, so a repeat request
// returns the exact same stored artifact rather than re-rendering.
func cvDocumentFingerprint(cv model.CVRecord, meta model.Metadata) string {
	return jsonSig(struct {
		CV   model.CVRecord
		Lang string
	}{cv, meta.TargetLanguage})
}

// downloadName derives the deterministic download name from
// {full_name, target_language, kind, short_timestamp} (§4.5.2).
func downloadName(fullName, targetLanguage, kind string, at time.Time) string {
	name := fullName
	if name == "" {
		name = "Candidate"
	}
	safe := make([]rune, 0, len(name))
	for _, r := range name {
		if r == ' ' {
			r = '_'
		}
		safe = append(safe, r)
	}
	lang := targetLanguage
	if lang == "" {
		lang = "xx"
	}
	return fmt.Sprintf("%s_%s_%s_%s.pdf", string(safe), kind, lang, shortTimestamp(at))
}

// shortTimestamp formats a compact, filesystem-safe timestamp component.
func shortTimestamp(at time.Time) string {
	return at.UTC().Format("20060102T150405")
}

func handleDownloadPDF(a *actionCtx) (string, error) {
	key, _ := a.action.Payload["ref"].(string)
	if key == "" {
		for k := range a.meta.PDFRefs {
			key = k
			break
		}
	}
	ref, ok := a.meta.PDFRefs[key]
	if !ok {
		return "", userError("no generated pdf to download")
	}
	return servePDF(a, ref)
}

// handleCoverLetterGenerate drafts a cover letter via the LLM gateway,
// grounded on the CV's work experience and the job reference, landing on
// cover_letter_review for the user to accept or discard.
func handleCoverLetterGenerate(a *actionCtx) (string, error) {
	if !a.o.Wizard.EnableCoverLetter {
		return "", userError("cover letters are disabled for this deployment")
	}
	if !a.o.Wizard.EnableLLM {
		return "", userError("AI drafting is disabled for this deployment")
	}
	if err := a.countModelCall(); err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	err := a.o.LLM.CallSchema(a.ctx, llmgateway.Request{
		Stage:        "cover_letter_draft",
		SystemPrompt: coverLetterSystemPrompt,
		UserText:     coverLetterCorpus(*a.cv, *a.meta),
		Schema:       schema.For(&result),
		SchemaName:   "CoverLetterDraft",
		SessionID:    a.sess.ID,
	}, &result)
	if err != nil {
		return "", userError("could not draft cover letter: %v", err)
	}

	a.meta.CoverLetterBlock = result.Text
	a.meta.Substage = model.SubstageCoverLetterReview
	return "cover letter drafted", nil
}

const coverLetterSystemPrompt = `Draft a one-page cover letter grounded only in the candidate's work ` +
	`experience and the job reference supplied. Never invent employers, achievements, or qualifications.`

func coverLetterCorpus(cv model.CVRecord, meta model.Metadata) string {
	corpus := workCorpus(cv, meta)
	if meta.JobReference != nil {
		corpus += "\n\nTARGET_ROLE:\n" + meta.JobReference.Title + " at " + meta.JobReference.Company
	}
	return corpus
}

func handleCoverLetterBack(a *actionCtx) (string, error) {
	a.meta.CoverLetterBlock = ""
	a.meta.Substage = model.SubstageReviewFinal
	return "discarded cover letter draft", nil
}

// handleCoverLetterAccept runs the PDF execution protocol for the cover
// letter document, mirroring handleRequestGeneratePDF's cache/idempotency
// behavior under its own pdf_refs key.
func handleCoverLetterAccept(a *actionCtx) (string, error) {
	if a.meta.CoverLetterBlock == "" {
		return "", userError("no cover letter draft to generate")
	}

	fp := sig(a.meta.CoverLetterBlock + "|" + a.meta.TargetLanguage)
	if !a.o.Wizard.AlwaysRegeneratePDF {
		if ref, ok := a.meta.PDFRefs["cover_letter:"+fp]; ok {
			return servePDF(a, ref)
		}
	}

	html := renderCoverLetterHTML(a.meta.CoverLetterBlock, *a.cv)
	data, err := a.o.Renderer.Render(a.ctx, pdfrender.KindCoverLetter, html)
	if err != nil {
		a.meta.PDFFailed = true
		return "", userError("cover letter pdf generation failed: %v", err)
	}

	blob, err := a.o.Blobs.Put(a.ctx, "pdfs", data, "application/pdf")
	if err != nil {
		return "", userError("could not store generated pdf: %v", err)
	}

	now := time.Now()
	ref := model.PDFRef{
		Kind:         "cover_letter",
		Container:    blob.Container,
		BlobName:     blob.BlobName,
		DownloadName: downloadName(a.cv.Contact.FullName, a.meta.TargetLanguage, "Cover_Letter", now),
		CreatedAt:    now,
	}
	if a.meta.PDFRefs == nil {
		a.meta.PDFRefs = map[string]model.PDFRef{}
	}
	a.meta.PDFRefs["cover_letter:"+fp] = ref

	a.pdfBytes = data
	a.pdfFilename = ref.DownloadName
	return "cover letter pdf generated", nil
}
