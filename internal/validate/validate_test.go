package validate

import (
	"strings"
	"testing"

	"github.com/cvwizard/backend/internal/model"
)

func TestForLanguage_GermanScalesLimits(t *testing.T) {
	en := ForLanguage("en", 1.25)
	de := ForLanguage("de", 1.25)

	if en.WorkBullet != 200 {
		t.Errorf("en.WorkBullet = %d, want 200", en.WorkBullet)
	}
	if de.WorkBullet != 250 {
		t.Errorf("de.WorkBullet = %d, want 250", de.WorkBullet)
	}
}

func TestCheckCVRecord_FlagsOverLengthBullet(t *testing.T) {
	cv := model.CVRecord{
		WorkExperience: []model.Role{
			{Bullets: []string{strings.Repeat("x", 201)}},
		},
	}
	violations := CheckCVRecord(cv, BaseLimits())
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want 1", len(violations))
	}
	if violations[0].Field != "work_experience.bullets" {
		t.Errorf("Field = %q", violations[0].Field)
	}
}

func TestCheckCVRecord_NoViolationsWithinLimits(t *testing.T) {
	cv := model.CVRecord{
		Profile: "Short profile.",
		WorkExperience: []model.Role{
			{Title: "Engineer", Employer: "Acme", Bullets: []string{"Shipped things."}},
		},
	}
	if v := CheckCVRecord(cv, BaseLimits()); len(v) != 0 {
		t.Errorf("got %d violations, want 0: %+v", len(v), v)
	}
}

func TestSummarize_CanGenerateRequiresAllGates(t *testing.T) {
	cv := model.CVRecord{
		Contact:        model.Contact{FullName: "A", Email: "a@b.com", Phone: "123"},
		Education:      []model.Study{{Title: "BSc"}},
		WorkExperience: []model.Role{{Title: "Eng"}},
	}
	meta := model.Metadata{
		ConfirmedFlags: model.ConfirmedFlags{ContactConfirmed: true, EducationConfirmed: true},
	}
	r := Summarize(cv, meta)
	if !r.CanGenerate {
		t.Errorf("CanGenerate = false, reasons: %v", r.Reasons)
	}
}

func TestSummarize_MissingContactBlocksGeneration(t *testing.T) {
	r := Summarize(model.CVRecord{}, model.Metadata{})
	if r.CanGenerate {
		t.Error("CanGenerate = true, want false with empty CV")
	}
	if len(r.Reasons) == 0 {
		t.Error("expected reasons for not-ready session")
	}
}

func TestSummarize_PendingProposalBlocksGeneration(t *testing.T) {
	cv := model.CVRecord{
		Contact:        model.Contact{FullName: "A", Email: "a@b.com", Phone: "123"},
		Education:      []model.Study{{Title: "BSc"}},
		WorkExperience: []model.Role{{Title: "Eng"}},
	}
	meta := model.Metadata{
		ConfirmedFlags:              model.ConfirmedFlags{ContactConfirmed: true, EducationConfirmed: true},
		WorkExperienceProposalBlock: []model.Role{{Title: "Draft"}},
	}
	r := Summarize(cv, meta)
	if r.CanGenerate {
		t.Error("CanGenerate = true, want false with a pending proposal")
	}
}

func TestJobPostingGate(t *testing.T) {
	longEnough := strings.Repeat("Senior backend engineer needed for a distributed systems team. ", 2)
	cases := []struct {
		name string
		text string
		want JobPostingStatus
	}{
		{"too short", "short text", JobPostingInvalidTooShort},
		{"valid posting", longEnough, JobPostingValid},
		{"notes like", strings.Repeat("I worked on my own projects and I improved my skills. ", 3), JobPostingInvalidNotesLike},
	}
	for _, c := range cases {
		got := JobPostingGate(c.text, 80, 0.08)
		if got != c.want {
			t.Errorf("%s: JobPostingGate = %s, want %s", c.name, got, c.want)
		}
	}
}

func TestNoInventionCheck_FlagsUngroundedPhrase(t *testing.T) {
	proposal := []model.Role{
		{Bullets: []string{"Led the quantum blockchain initiative"}},
	}
	corpus := "Led backend development of the checkout service."
	violations := NoInventionCheck(proposal, corpus)
	if len(violations) == 0 {
		t.Error("expected invention violations for ungrounded tokens")
	}
}

func TestNoInventionCheck_GroundedProposalPasses(t *testing.T) {
	proposal := []model.Role{
		{Bullets: []string{"Led backend development"}},
	}
	corpus := "CURRENT_WORK_EXPERIENCE: Led backend development of core services."
	violations := NoInventionCheck(proposal, corpus)
	if len(violations) != 0 {
		t.Errorf("got %d violations for grounded proposal: %+v", len(violations), violations)
	}
}
