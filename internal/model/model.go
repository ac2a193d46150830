// Package model defines the canonical data shapes shared by every component
// of the CV wizard: the session aggregate, the language-neutral CV record,
// and the wizard-specific metadata side-table.
package model

import "time"

// WizardStage is the macro FSM stage tag stored on a session.
type WizardStage string

const (
	StageIngest  WizardStage = "INGEST"
	StagePrepare WizardStage = "PREPARE"
	StageReview  WizardStage = "REVIEW"
	StageConfirm WizardStage = "CONFIRM"
	StageExecute WizardStage = "EXECUTE"
	StageDone    WizardStage = "DONE"
)

// Substage is the finer wizard-owned UI stage tag (§4.2, §4.5 of the spec
// this service implements). The FSM Resolver only reasons about WizardStage;
// Substage transitions are owned entirely by the orchestrator.
type Substage string

const (
	SubstageLanguageSelection Substage = "language_selection"
	SubstageContact           Substage = "contact"
	SubstageContactEdit       Substage = "contact_edit"
	SubstageEducation         Substage = "education"
	SubstageJobPosting        Substage = "job_posting"
	SubstageJobPostingPaste   Substage = "job_posting_paste"
	SubstageWorkExperience    Substage = "work_experience"
	SubstageWorkNotesEdit     Substage = "work_notes_edit"
	SubstageWorkTailorReview  Substage = "work_tailor_review"
	SubstageWorkTailorFeed    Substage = "work_tailor_feedback"
	SubstageITAISkills        Substage = "it_ai_skills"
	SubstageSkillsNotesEdit   Substage = "skills_notes_edit"
	SubstageSkillsTailorRev   Substage = "skills_tailor_review"
	SubstageReviewFinal       Substage = "review_final"
	SubstageCoverLetterReview Substage = "cover_letter_review"
	SubstageImportGatePending Substage = "import_gate_pending"
)

// Session is the only mutable aggregate in the system, exclusively owned by
// its ID. Every successful Update strictly increases Version (invariant 1).
type Session struct {
	ID        string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
	CVData    CVRecord
	Metadata  Metadata
}

// CVRecord is the canonical, language-neutral CV shape. It never carries
// formatting concerns — those belong to the PDF renderer.
type CVRecord struct {
	Contact                    Contact   `json:"contact"`
	Profile                    string    `json:"profile"`
	WorkExperience             []Role    `json:"work_experience"`
	Education                  []Study   `json:"education"`
	FurtherExperience          []string  `json:"further_experience"`
	Languages                  []string  `json:"languages"`
	ITAISkills                 []string  `json:"it_ai_skills"`
	TechnicalOperationalSkills []string  `json:"technical_operational_skills"`
	Interests                  []string  `json:"interests"`
	References                 []string  `json:"references"`
}

// Contact holds the candidate's contact block.
type Contact struct {
	FullName     string   `json:"full_name"`
	Email        string   `json:"email"`
	Phone        string   `json:"phone"`
	AddressLines []string `json:"address_lines"`
}

// Role is one entry of work_experience.
type Role struct {
	Title     string   `json:"title"`
	Employer  string   `json:"employer"`
	DateRange string   `json:"date_range"`
	Location  string   `json:"location"`
	Bullets   []string `json:"bullets"`
	Locked    bool     `json:"locked,omitempty"`
}

// Study is one entry of education.
type Study struct {
	Title       string   `json:"title"`
	Institution string   `json:"institution"`
	DateRange   string   `json:"date_range"`
	Details     []string `json:"details"`
}

// BlobRef is an opaque pointer into content-addressed blob storage, used for
// offloaded metadata, PDF artifacts, extracted photos, and stable profiles.
type BlobRef struct {
	Container string `json:"container"`
	BlobName  string `json:"blob_name"`
	SHA256    string `json:"sha256"`
	ContentType string `json:"content_type,omitempty"`
}

// PDFRef describes one generated PDF artifact (CV or cover letter).
type PDFRef struct {
	Kind         string    `json:"kind"` // "cv" | "cover_letter"
	Container    string    `json:"container"`
	BlobName     string    `json:"blob_name"`
	DownloadName string    `json:"download_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConfirmedFlags tracks the two confirmation gates invariant 3 depends on.
type ConfirmedFlags struct {
	ContactConfirmed   bool       `json:"contact_confirmed"`
	EducationConfirmed bool       `json:"education_confirmed"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
}

// JobReference is the structured extraction of a job posting.
type JobReference struct {
	Title         string   `json:"title"`
	Company       string   `json:"company"`
	Seniority     string   `json:"seniority"`
	MustHaves     []string `json:"must_haves"`
	NiceToHaves   []string `json:"nice_to_haves"`
	Language      string   `json:"language"`
}

// EventLogEntry is one bounded audit-trail record (last ~80 kept).
type EventLogEntry struct {
	At      time.Time      `json:"at"`
	Kind    string         `json:"kind"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// Metadata is the wizard-specific side-table of a session.
type Metadata struct {
	WizardStage     WizardStage `json:"wizard_stage"`
	Substage        Substage    `json:"substage"`
	StageHistory    []Substage  `json:"stage_history"`
	TargetLanguage  string      `json:"target_language"`
	SourceLanguage  string      `json:"source_language"`
	ConfirmedFlags  ConfirmedFlags `json:"confirmed_flags"`

	DocxPrefillUnconfirmed map[string]any `json:"docx_prefill_unconfirmed,omitempty"`
	PhotoBlob              *BlobRef       `json:"photo_blob,omitempty"`

	JobReference    *JobReference `json:"job_reference,omitempty"`
	JobPostingText  string        `json:"job_posting_text,omitempty"`
	JobPostingURL   string        `json:"job_posting_url,omitempty"`
	JobFetchStatus  string        `json:"job_fetch_status,omitempty"`
	JobInputStatus  string        `json:"job_input_status,omitempty"`
	JobPostingInvalidDraft string `json:"job_posting_invalid_draft,omitempty"`

	WorkTailoringNotes    string `json:"work_tailoring_notes,omitempty"`
	WorkTailoringFeedback string `json:"work_tailoring_feedback,omitempty"`

	WorkExperienceProposalBlock    []Role `json:"work_experience_proposal_block,omitempty"`
	WorkExperienceProposalInputSig string `json:"work_experience_proposal_input_sig,omitempty"`
	SkillsProposalBlock            *SkillsProposal `json:"skills_proposal_block,omitempty"`
	SkillsProposalInputSig         string `json:"skills_proposal_input_sig,omitempty"`
	CoverLetterBlock               string `json:"cover_letter_block,omitempty"`

	PDFRefs      map[string]PDFRef `json:"pdf_refs,omitempty"`
	PDFGenerated bool              `json:"pdf_generated"`
	PDFFailed    bool              `json:"pdf_failed"`

	BulkTranslatedTo          string `json:"bulk_translated_to,omitempty"`
	BulkTranslationSourceSig  string `json:"bulk_translation_source_sig,omitempty"`

	SectionHashes     map[string]string `json:"section_hashes,omitempty"`
	SectionHashesPrev map[string]string `json:"section_hashes_prev,omitempty"`

	EventLog []EventLogEntry `json:"event_log,omitempty"`

	StableProfileRef *BlobRef `json:"stable_profile_ref,omitempty"`

	SelectedRoleIndex  *int `json:"selected_role_index,omitempty"`
	TurnsInReview      int  `json:"turns_in_review"`
	PendingEdits       int  `json:"pending_edits"`
	HighConfidence     bool `json:"high_confidence"`
	GenerateRequested  bool `json:"generate_requested"`
	ConfirmationRequired bool `json:"confirmation_required"`
	UserConfirmYes     bool `json:"-"`
	UserConfirmNo      bool `json:"-"`
}

// SkillsProposal is the LLM draft for the three independently tailored
// skills buckets, awaiting user accept/reject per bucket.
type SkillsProposal struct {
	ITAISkills                 []string `json:"it_ai_skills,omitempty"`
	TechnicalOperationalSkills []string `json:"technical_operational_skills,omitempty"`
	Languages                  []string `json:"languages,omitempty"`
}

// MaxStageHistory bounds Metadata.StageHistory (invariant: last 20 kept).
const MaxStageHistory = 20

// MaxEventLog bounds Metadata.EventLog (last ~80 kept, per spec §3).
const MaxEventLog = 80

// AppendStageHistory appends stage to history, enforcing invariant 7 (no
// consecutive duplicates) and the MaxStageHistory bound.
func AppendStageHistory(history []Substage, stage Substage) []Substage {
	if len(history) > 0 && history[len(history)-1] == stage {
		return history
	}
	history = append(history, stage)
	if len(history) > MaxStageHistory {
		history = history[len(history)-MaxStageHistory:]
	}
	return history
}

// AppendEvent appends an event log entry, enforcing the MaxEventLog bound.
func AppendEvent(log []EventLogEntry, entry EventLogEntry) []EventLogEntry {
	log = append(log, entry)
	if len(log) > MaxEventLog {
		log = log[len(log)-MaxEventLog:]
	}
	return log
}
