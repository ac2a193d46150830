package wizard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/cvwizard/backend/internal/model"
)

// sig returns a short content fingerprint, used to dedupe repeated tailoring
// calls over unchanged inputs (§4.5.1: "fingerprint-based dedupe/caching").
func sig(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func jsonSig(v any) string {
	b, _ := json.Marshal(v)
	return sig(string(b))
}

// workFingerprint computes SHA256(target_language | job_summary_sig |
// notes_sig | feedback_sig | roles_sig), the composite key the orchestrator
// checks before re-invoking the work-tailoring protocol.
func workFingerprint(cv model.CVRecord, meta model.Metadata) string {
	jobSummary := ""
	if meta.JobReference != nil {
		jobSummary = meta.JobReference.Title + "|" + strings.Join(meta.JobReference.MustHaves, ",")
	}
	parts := []string{
		meta.TargetLanguage,
		sig(jobSummary),
		sig(meta.WorkTailoringNotes),
		sig(meta.WorkTailoringFeedback),
		jsonSig(cv.WorkExperience),
	}
	return sig(strings.Join(parts, "|"))
}

// skillsFingerprint is workFingerprint's analogue for the skills tailoring
// protocol, keyed on the current skills buckets rather than work experience.
func skillsFingerprint(cv model.CVRecord, meta model.Metadata) string {
	jobSummary := ""
	if meta.JobReference != nil {
		jobSummary = meta.JobReference.Title + "|" + strings.Join(meta.JobReference.MustHaves, ",")
	}
	parts := []string{
		meta.TargetLanguage,
		sig(jobSummary),
		jsonSig(cv.ITAISkills),
		jsonSig(cv.TechnicalOperationalSkills),
		jsonSig(cv.Languages),
	}
	return sig(strings.Join(parts, "|"))
}
