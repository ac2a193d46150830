package wizard

import "github.com/cvwizard/backend/internal/model"

// buildUIAction returns the action/field set the UI should render for the
// session's current substage. Every action id named here must have a
// handlers entry (checked by TestHandlers_CoverEveryUIActionID).
func buildUIAction(cv model.CVRecord, meta model.Metadata) *UIAction {
	switch meta.Substage {

	case model.SubstageImportGatePending:
		return &UIAction{
			Title: "We found contact details in your document",
			Actions: []UIActionItem{
				{ID: "CONFIRM_IMPORT_PREFILL_YES", Label: "Use these details"},
				{ID: "CONFIRM_IMPORT_PREFILL_NO", Label: "Start from scratch"},
			},
		}

	case model.SubstageLanguageSelection:
		return &UIAction{
			Title: "Choose your CV language",
			Actions: []UIActionItem{
				{ID: "LANGUAGE_SELECT_EN", Label: "English"},
				{ID: "LANGUAGE_SELECT_DE", Label: "Deutsch"},
				{ID: "LANGUAGE_SELECT_PL", Label: "Polski"},
			},
		}

	case model.SubstageContact:
		actions := []UIActionItem{
			{ID: "CONTACT_EDIT", Label: "Edit contact details"},
		}
		if !meta.ConfirmedFlags.ContactConfirmed {
			actions = append(actions, UIActionItem{ID: "CONTACT_CONFIRM", Label: "Confirm contact details", Style: "primary"})
		}
		if len(meta.DocxPrefillUnconfirmed) > 0 {
			actions = append(actions, UIActionItem{ID: "CONTACT_APPLY_PREFILL", Label: "Apply suggested details"})
		}
		actions = append(actions, UIActionItem{ID: "WIZARD_GOTO_STAGE", Label: "Back to an earlier step"})
		return &UIAction{Title: "Contact details", Actions: actions, Fields: contactFields(cv)}

	case model.SubstageContactEdit:
		return &UIAction{
			Title:  "Edit contact details",
			Actions: []UIActionItem{{ID: "CONTACT_SAVE", Label: "Save", Style: "primary"}, {ID: "CONTACT_CANCEL", Label: "Cancel"}},
			Fields:  contactFields(cv),
		}

	case model.SubstageEducation:
		actions := []UIActionItem{{ID: "EDUCATION_EDIT_JSON", Label: "Edit education"}}
		if !meta.ConfirmedFlags.EducationConfirmed {
			actions = append(actions, UIActionItem{ID: "EDUCATION_CONFIRM", Label: "Confirm education", Style: "primary"})
		}
		actions = append(actions, UIActionItem{ID: "WIZARD_GOTO_STAGE", Label: "Back to an earlier step"})
		return &UIAction{Title: "Education", Actions: actions}

	case model.SubstageJobPosting:
		return &UIAction{
			Title: "Add a job posting to tailor this CV against (optional)",
			Actions: []UIActionItem{
				{ID: "JOB_OFFER_PASTE", Label: "Paste a job posting", Style: "primary"},
				{ID: "JOB_OFFER_SKIP", Label: "Skip"},
			},
		}

	case model.SubstageJobPostingPaste:
		return &UIAction{
			Title:   "Paste the job posting text or URL",
			Actions: []UIActionItem{{ID: "JOB_OFFER_ANALYZE", Label: "Analyze", Style: "primary"}, {ID: "JOB_OFFER_CANCEL", Label: "Cancel"}},
			Fields: []UIField{
				{Name: "job_posting_text", Type: "textarea"},
				{Name: "job_posting_url", Type: "text"},
			},
		}

	case model.SubstageWorkExperience:
		return &UIAction{
			Title: "Work experience",
			Actions: []UIActionItem{
				{ID: "WORK_NOTES_EDIT", Label: "Add tailoring notes"},
				{ID: "WORK_TAILOR_RUN", Label: "Tailor with AI", Style: "primary"},
				{ID: "WORK_ROLE_MOVE_UP", Label: "Move role up"},
				{ID: "WORK_ROLE_MOVE_DOWN", Label: "Move role down"},
				{ID: "WORK_ROLE_REMOVE", Label: "Remove role"},
				{ID: "WORK_BULLET_REMOVE", Label: "Remove bullet"},
				{ID: "WORK_CONFIRM_STAGE", Label: "Next: Skills"},
			},
			Fields: roleFields(cv.WorkExperience),
		}

	case model.SubstageWorkNotesEdit:
		return &UIAction{
			Title:   "Tailoring notes",
			Actions: []UIActionItem{{ID: "WORK_NOTES_SAVE", Label: "Save", Style: "primary"}, {ID: "WORK_NOTES_CANCEL", Label: "Cancel"}},
			Fields:  []UIField{{Name: "notes", Type: "textarea", Value: meta.WorkTailoringNotes}},
		}

	case model.SubstageWorkTailorReview:
		return &UIAction{
			Title: "Review tailored work experience",
			Actions: []UIActionItem{
				{ID: "WORK_TAILOR_ACCEPT", Label: "Accept", Style: "primary"},
				{ID: "WORK_TAILOR_FEEDBACK", Label: "Ask for changes"},
			},
			Fields: roleFields(meta.WorkExperienceProposalBlock),
		}

	case model.SubstageWorkTailorFeed:
		return &UIAction{
			Title:   "What should change about the proposal?",
			Actions: []UIActionItem{{ID: "WORK_FEEDBACK_SAVE", Label: "Re-run with feedback", Style: "primary"}, {ID: "WORK_FEEDBACK_CANCEL", Label: "Cancel"}},
			Fields:  []UIField{{Name: "feedback", Type: "textarea"}},
		}

	case model.SubstageITAISkills:
		return &UIAction{
			Title: "Skills",
			Actions: []UIActionItem{
				{ID: "SKILLS_TAILOR_RUN", Label: "Tailor with AI", Style: "primary"},
				{ID: "SKILLS_REMOVE", Label: "Remove skill"},
				{ID: "SKILLS_CONFIRM_STAGE", Label: "Next: Review"},
			},
			Fields: []UIField{
				{Name: "it_ai_skills", Type: "tag_list", Value: cv.ITAISkills},
				{Name: "technical_operational_skills", Type: "tag_list", Value: cv.TechnicalOperationalSkills},
				{Name: "languages", Type: "tag_list", Value: cv.Languages},
			},
		}

	case model.SubstageSkillsTailorRev:
		return &UIAction{
			Title:   "Review tailored skills",
			Actions: []UIActionItem{{ID: "SKILLS_TAILOR_ACCEPT", Label: "Accept", Style: "primary"}, {ID: "SKILLS_TAILOR_SKIP", Label: "Discard"}},
			Fields: []UIField{
				{Name: "it_ai_skills", Type: "tag_list", Value: meta.SkillsProposalBlock},
			},
		}

	case model.SubstageReviewFinal:
		actions := []UIActionItem{{ID: "REQUEST_GENERATE_PDF", Label: "Generate CV PDF", Style: "primary"}}
		actions = append(actions, UIActionItem{ID: "COVER_LETTER_GENERATE", Label: "Draft a cover letter"})
		for ref := range meta.PDFRefs {
			_ = ref
			actions = append(actions, UIActionItem{ID: "DOWNLOAD_PDF", Label: "Download PDF"})
			break
		}
		return &UIAction{Title: "Review and generate", Actions: actions}

	case model.SubstageCoverLetterReview:
		return &UIAction{
			Title:   "Cover letter draft",
			Actions: []UIActionItem{{ID: "COVER_LETTER_ACCEPT", Label: "Generate cover letter PDF", Style: "primary"}, {ID: "COVER_LETTER_BACK", Label: "Back"}},
			Fields:  []UIField{{Name: "cover_letter", Type: "textarea", Value: meta.CoverLetterBlock}},
		}
	}

	return &UIAction{Title: "", Actions: nil}
}

func contactFields(cv model.CVRecord) []UIField {
	return []UIField{
		{Name: "full_name", Type: "text", Value: cv.Contact.FullName},
		{Name: "email", Type: "text", Value: cv.Contact.Email},
		{Name: "phone", Type: "text", Value: cv.Contact.Phone},
		{Name: "address_lines", Type: "text_list", Value: cv.Contact.AddressLines},
	}
}

func roleFields(roles []model.Role) []UIField {
	fields := make([]UIField, 0, len(roles))
	for i, r := range roles {
		fields = append(fields, UIField{Name: "role", Type: "role", Value: map[string]any{
			"index": i, "title": r.Title, "employer": r.Employer, "date_range": r.DateRange,
			"location": r.Location, "bullets": r.Bullets, "locked": r.Locked,
		}})
	}
	return fields
}
