// Package validate implements the deterministic guards the wizard
// orchestrator applies before any content reaches the PDF renderer: hard
// character limits, the readiness summary, the job-posting acceptance gate,
// and the no-invention check over LLM proposals.
package validate

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/cvwizard/backend/internal/model"
)

// runeLen counts user-perceived characters after NFC normalization, so a
// combining-diacritic rendering of a German/Polish name (e.g. "e" + combining
// acute) counts as one character rather than two against the hard limits.
func runeLen(s string) int {
	return len([]rune(norm.NFC.String(s)))
}

// Limits are the base (English) hard character limits (spec §4.4). German-
// like targets scale every limit by GermanScaleFactor (default 1.25).
type Limits struct {
	WorkBullet            int
	FurtherExperienceItem int
	RoleTitle             int
	Employer              int
	Location              int
	DateRange             int
	Profile               int
	SkillsItem            int
	LanguagesItem         int
}

// BaseLimits returns the English-language hard limits.
func BaseLimits() Limits {
	return Limits{
		WorkBullet:            200,
		FurtherExperienceItem: 80,
		RoleTitle:             90,
		Employer:              60,
		Location:              50,
		DateRange:             25,
		Profile:               320,
		SkillsItem:            70,
		LanguagesItem:         50,
	}
}

// germanLikeLanguages scale all limits by the German scale factor.
var germanLikeLanguages = map[string]bool{"de": true}

// ForLanguage returns the limits scaled for targetLanguage.
func ForLanguage(targetLanguage string, scaleFactor float64) Limits {
	base := BaseLimits()
	if !germanLikeLanguages[strings.ToLower(targetLanguage)] {
		return base
	}
	if scaleFactor <= 0 {
		scaleFactor = 1.25
	}
	return Limits{
		WorkBullet:            scale(base.WorkBullet, scaleFactor),
		FurtherExperienceItem: scale(base.FurtherExperienceItem, scaleFactor),
		RoleTitle:             scale(base.RoleTitle, scaleFactor),
		Employer:              scale(base.Employer, scaleFactor),
		Location:              scale(base.Location, scaleFactor),
		DateRange:             scale(base.DateRange, scaleFactor),
		Profile:               scale(base.Profile, scaleFactor),
		SkillsItem:            scale(base.SkillsItem, scaleFactor),
		LanguagesItem:         scale(base.LanguagesItem, scaleFactor),
	}
}

func scale(base int, factor float64) int {
	return int(float64(base) * factor)
}

// LimitViolation names one field that exceeds its hard limit.
type LimitViolation struct {
	Field    string
	Value    string
	Limit    int
	Length   int
	RoleIdx  int
	BulletIdx int
}

// CheckCVRecord validates every length-bounded field of a CV record against
// limits, returning every violation found (invariant 4, §4.4).
func CheckCVRecord(cv model.CVRecord, limits Limits) []LimitViolation {
	var violations []LimitViolation

	if n := runeLen(cv.Profile); n > limits.Profile {
		violations = append(violations, LimitViolation{Field: "profile", Value: cv.Profile, Limit: limits.Profile, Length: n})
	}

	for ri, role := range cv.WorkExperience {
		if n := runeLen(role.Title); n > limits.RoleTitle {
			violations = append(violations, LimitViolation{Field: "work_experience.title", Value: role.Title, Limit: limits.RoleTitle, Length: n, RoleIdx: ri})
		}
		if n := runeLen(role.Employer); n > limits.Employer {
			violations = append(violations, LimitViolation{Field: "work_experience.employer", Value: role.Employer, Limit: limits.Employer, Length: n, RoleIdx: ri})
		}
		if n := runeLen(role.Location); n > limits.Location {
			violations = append(violations, LimitViolation{Field: "work_experience.location", Value: role.Location, Limit: limits.Location, Length: n, RoleIdx: ri})
		}
		if n := runeLen(role.DateRange); n > limits.DateRange {
			violations = append(violations, LimitViolation{Field: "work_experience.date_range", Value: role.DateRange, Limit: limits.DateRange, Length: n, RoleIdx: ri})
		}
		for bi, bullet := range role.Bullets {
			if n := runeLen(bullet); n > limits.WorkBullet {
				violations = append(violations, LimitViolation{Field: "work_experience.bullets", Value: bullet, Limit: limits.WorkBullet, Length: n, RoleIdx: ri, BulletIdx: bi})
			}
		}
	}

	for i, item := range cv.FurtherExperience {
		if n := runeLen(item); n > limits.FurtherExperienceItem {
			violations = append(violations, LimitViolation{Field: "further_experience", Value: item, Limit: limits.FurtherExperienceItem, Length: n, BulletIdx: i})
		}
	}
	for i, item := range cv.ITAISkills {
		if n := runeLen(item); n > limits.SkillsItem {
			violations = append(violations, LimitViolation{Field: "it_ai_skills", Value: item, Limit: limits.SkillsItem, Length: n, BulletIdx: i})
		}
	}
	for i, item := range cv.TechnicalOperationalSkills {
		if n := runeLen(item); n > limits.SkillsItem {
			violations = append(violations, LimitViolation{Field: "technical_operational_skills", Value: item, Limit: limits.SkillsItem, Length: n, BulletIdx: i})
		}
	}
	for i, item := range cv.Languages {
		if n := runeLen(item); n > limits.LanguagesItem {
			violations = append(violations, LimitViolation{Field: "languages", Value: item, Limit: limits.LanguagesItem, Length: n, BulletIdx: i})
		}
	}

	return violations
}

// Readiness is the gate summary returned to the wizard before it permits
// PDF generation.
type Readiness struct {
	HasContact           bool
	HasEducation         bool
	HasWorkExperience    bool
	ContactConfirmed     bool
	EducationConfirmed   bool
	CanGenerate          bool
	Reasons              []string
}

// Summarize computes the readiness gate for a session (§4.4).
func Summarize(cv model.CVRecord, meta model.Metadata) Readiness {
	r := Readiness{
		HasContact:         cv.Contact.FullName != "" && cv.Contact.Email != "" && cv.Contact.Phone != "",
		HasEducation:       len(cv.Education) > 0,
		HasWorkExperience:  len(cv.WorkExperience) > 0,
		ContactConfirmed:   meta.ConfirmedFlags.ContactConfirmed,
		EducationConfirmed: meta.ConfirmedFlags.EducationConfirmed,
	}

	if !r.HasContact {
		r.Reasons = append(r.Reasons, "contact_incomplete")
	}
	if !r.ContactConfirmed {
		r.Reasons = append(r.Reasons, "contact_not_confirmed")
	}
	if !r.HasEducation {
		r.Reasons = append(r.Reasons, "education_missing")
	}
	if !r.EducationConfirmed {
		r.Reasons = append(r.Reasons, "education_not_confirmed")
	}
	if !r.HasWorkExperience {
		r.Reasons = append(r.Reasons, "work_experience_missing")
	}
	if meta.WorkExperienceProposalBlock != nil {
		r.Reasons = append(r.Reasons, "pending_work_experience_proposal")
	}
	if meta.SkillsProposalBlock != nil {
		r.Reasons = append(r.Reasons, "pending_skills_proposal")
	}
	if meta.CoverLetterBlock != "" && meta.Substage == model.SubstageCoverLetterReview {
		r.Reasons = append(r.Reasons, "pending_cover_letter_decision")
	}

	r.CanGenerate = len(r.Reasons) == 0
	return r
}

// JobPostingStatus is the outcome of the job-posting acceptance gate.
type JobPostingStatus string

const (
	JobPostingValid         JobPostingStatus = "valid"
	JobPostingInvalidTooShort JobPostingStatus = "invalid_too_short"
	JobPostingInvalidNonAlpha JobPostingStatus = "invalid_non_alphabetic"
	JobPostingInvalidNotesLike JobPostingStatus = "invalid_notes_like"
)

// JobPostingGate accepts or rejects a pasted/fetched job posting text.
// minLength and pronounThreshold come from ValidationConfig.
func JobPostingGate(text string, minLength int, pronounThreshold float64) JobPostingStatus {
	trimmed := strings.TrimSpace(text)
	if runeLen(trimmed) < minLength {
		return JobPostingInvalidTooShort
	}
	if alphabeticRatio(trimmed) < 0.6 {
		return JobPostingInvalidNonAlpha
	}
	if firstPersonPronounDensity(trimmed) > pronounThreshold {
		return JobPostingInvalidNotesLike
	}
	return JobPostingValid
}

func alphabeticRatio(s string) float64 {
	total, alpha := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(alpha) / float64(total)
}

// firstPersonPronouns is the conservative heuristic set used to detect
// candidate notes masquerading as a job posting.
var firstPersonPronouns = map[string]bool{
	"i": true, "me": true, "my": true, "mine": true, "myself": true,
	"we": true, "our": true, "ours": true, "ourselves": true,
	"ja": true, "mnie": true, "moje": true, "mój": true, "moja": true,
}

func firstPersonPronounDensity(s string) float64 {
	words := strings.Fields(s)
	alphaWords, pronouns := 0, 0
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,!?;:\"'()"))
		if w == "" {
			continue
		}
		isAlpha := true
		for _, r := range w {
			if !unicode.IsLetter(r) {
				isAlpha = false
				break
			}
		}
		if !isAlpha {
			continue
		}
		alphaWords++
		if firstPersonPronouns[w] {
			pronouns++
		}
	}
	if alphaWords == 0 {
		return 0
	}
	return float64(pronouns) / float64(alphaWords)
}

// InventionViolation names one proposal token/phrase not grounded in the
// supplied corpus (error code E0, §4.4).
type InventionViolation struct {
	RoleIdx   int
	BulletIdx int
	Phrase    string
}

// stopWords are ignored entirely by the no-invention check — connective and
// structural words carry no factual claim of their own.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "it": true, "this": true, "that": true,
	"i": true, "my": true, "me": true,
}

// NoInventionCheck verifies that every non-stop-word token in each proposed
// bullet appears somewhere in corpus (the concatenation of
// CURRENT_WORK_EXPERIENCE, TAILORING_SUGGESTIONS, and TAILORING_FEEDBACK
// blocks). Tokens absent from the corpus are reported as E0 violations
// carrying their role/bullet index for feedback-driven retries.
func NoInventionCheck(proposal []model.Role, corpus string) []InventionViolation {
	corpusTokens := tokenSet(corpus)

	var violations []InventionViolation
	for ri, role := range proposal {
		for bi, bullet := range role.Bullets {
			for _, tok := range tokenize(bullet) {
				if stopWords[tok] || isNumeric(tok) {
					continue
				}
				if !corpusTokens[tok] {
					violations = append(violations, InventionViolation{RoleIdx: ri, BulletIdx: bi, Phrase: tok})
				}
			}
		}
	}
	return violations
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenize(s) {
		set[tok] = true
	}
	return set
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return fields
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
