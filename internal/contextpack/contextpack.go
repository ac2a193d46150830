// Package contextpack builds the bounded, phase-scoped projection of a
// session that is handed to the LLM gateway as input: a deliberately small
// view of cv_data/metadata/job posting text, never the full aggregate.
package contextpack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/cvwizard/backend/internal/model"
)

// Phase selects which sections of the session a pack emphasizes.
type Phase string

const (
	PhasePreparation Phase = "preparation"
	PhaseConfirmation Phase = "confirmation"
	PhaseExecution    Phase = "execution"
)

// defaultMaxPackChars bounds a pack when the caller doesn't specify one.
const defaultMaxPackChars = 12000

// Section is one named, serialized slice of session state within a pack.
type Section struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Pack is the bounded projection handed to the gateway as UserText, plus the
// section hashes the caller should persist as the new section_hashes.
type Pack struct {
	Phase         Phase             `json:"phase"`
	Sections      []Section         `json:"sections"`
	SectionHashes map[string]string `json:"section_hashes"`
	Truncated     bool              `json:"truncated"`
}

// Request parametrizes Build, mirroring generate_context_pack_v2's params.
type Request struct {
	Phase             Phase
	CV                model.CVRecord
	Metadata          model.Metadata
	JobPostingText    string
	MaxPackChars      int
	Delta             bool
	SectionHashesPrev map[string]string
}

// Build produces a phase-specific projection of the session. Preparation
// omits PDF references; confirmation surfaces the readiness-relevant
// sections; execution emphasizes work/skills and includes the job
// reference. When req.Delta is set, sections whose hash matches
// req.SectionHashesPrev are omitted from the body (but still hashed), so the
// caller sends only what changed since the previous pack.
func Build(req Request) Pack {
	maxChars := req.MaxPackChars
	if maxChars <= 0 {
		maxChars = defaultMaxPackChars
	}

	all := sectionsForPhase(req)
	hashes := make(map[string]string, len(all))
	for _, s := range all {
		hashes[s.Name] = hashSection(s.Content)
	}

	included := all
	if req.Delta && req.SectionHashesPrev != nil {
		included = included[:0]
		for _, s := range all {
			if prev, ok := req.SectionHashesPrev[s.Name]; ok && prev == hashes[s.Name] {
				continue
			}
			included = append(included, s)
		}
	}

	sections, truncated := truncateToBudget(included, maxChars)

	return Pack{
		Phase:         req.Phase,
		Sections:      sections,
		SectionHashes: hashes,
		Truncated:     truncated,
	}
}

func sectionsForPhase(req Request) []Section {
	var sections []Section

	sections = append(sections, Section{Name: "contact", Content: marshal(req.CV.Contact)})
	sections = append(sections, Section{Name: "profile", Content: req.CV.Profile})
	sections = append(sections, Section{Name: "education", Content: marshal(req.CV.Education)})

	switch req.Phase {
	case PhasePreparation:
		sections = append(sections, Section{Name: "work_experience", Content: marshal(req.CV.WorkExperience)})
		sections = append(sections, Section{Name: "further_experience", Content: marshal(req.CV.FurtherExperience)})
		sections = append(sections, Section{Name: "languages", Content: marshal(req.CV.Languages)})

	case PhaseConfirmation:
		sections = append(sections, Section{Name: "confirmed_flags", Content: marshal(req.Metadata.ConfirmedFlags)})
		sections = append(sections, Section{Name: "work_experience", Content: marshal(req.CV.WorkExperience)})
		if req.Metadata.WorkExperienceProposalBlock != nil {
			sections = append(sections, Section{Name: "work_experience_proposal", Content: marshal(req.Metadata.WorkExperienceProposalBlock)})
		}

	case PhaseExecution:
		sections = append(sections, Section{Name: "work_experience", Content: marshal(req.CV.WorkExperience)})
		sections = append(sections, Section{Name: "it_ai_skills", Content: marshal(req.CV.ITAISkills)})
		sections = append(sections, Section{Name: "technical_operational_skills", Content: marshal(req.CV.TechnicalOperationalSkills)})
		if req.Metadata.JobReference != nil {
			sections = append(sections, Section{Name: "job_reference", Content: marshal(req.Metadata.JobReference)})
		}
		if req.JobPostingText != "" {
			sections = append(sections, Section{Name: "job_posting_text", Content: req.JobPostingText})
		}
		if req.Metadata.WorkTailoringNotes != "" {
			sections = append(sections, Section{Name: "work_tailoring_notes", Content: req.Metadata.WorkTailoringNotes})
		}
		if req.Metadata.WorkTailoringFeedback != "" {
			sections = append(sections, Section{Name: "work_tailoring_feedback", Content: req.Metadata.WorkTailoringFeedback})
		}
	}

	sort.Slice(sections, func(i, j int) bool { return sections[i].Name < sections[j].Name })
	return sections
}

// truncateToBudget walks sections in order and keeps each one whose size
// still fits within maxChars; a section that would exceed the budget is
// skipped whole (later, smaller sections may still be kept) and truncation
// is reported, rather than cutting a section mid-content.
func truncateToBudget(sections []Section, maxChars int) ([]Section, bool) {
	var kept []Section
	total := 0
	truncated := false

	for _, s := range sections {
		size := len(s.Name) + len(s.Content)
		if total+size > maxChars {
			truncated = true
			continue
		}
		kept = append(kept, s)
		total += size
	}

	return kept, truncated
}

func hashSection(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Render flattens a Pack into the single prompt-ready string the gateway
// sends as UserText.
func Render(p Pack) string {
	var sb strings.Builder
	for _, s := range p.Sections {
		sb.WriteString(strings.ToUpper(s.Name))
		sb.WriteString(":\n")
		sb.WriteString(s.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
