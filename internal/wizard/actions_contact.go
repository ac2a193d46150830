package wizard

import (
	"time"

	"github.com/cvwizard/backend/internal/model"
)

var languageAction = map[string]string{
	"LANGUAGE_SELECT_EN": "en",
	"LANGUAGE_SELECT_DE": "de",
	"LANGUAGE_SELECT_PL": "pl",
}

func handleLanguageSelect(a *actionCtx) (string, error) {
	a.meta.TargetLanguage = languageAction[a.action.ID]
	if len(a.meta.DocxPrefillUnconfirmed) > 0 {
		a.meta.Substage = model.SubstageImportGatePending
	} else {
		a.meta.Substage = model.SubstageContact
	}
	return "language set", nil
}

func handleConfirmImportPrefillYes(a *actionCtx) (string, error) {
	applyPrefill(a.cv, a.meta.DocxPrefillUnconfirmed)
	a.meta.DocxPrefillUnconfirmed = nil
	a.meta.Substage = model.SubstageContact
	return "applied suggested details", nil
}

func handleConfirmImportPrefillNo(a *actionCtx) (string, error) {
	a.meta.DocxPrefillUnconfirmed = nil
	a.meta.Substage = model.SubstageContact
	return "discarded suggested details", nil
}

func handleContactApplyPrefill(a *actionCtx) (string, error) {
	applyPrefill(a.cv, a.meta.DocxPrefillUnconfirmed)
	a.meta.DocxPrefillUnconfirmed = nil
	a.meta.Substage = model.SubstageContact
	return "applied suggested details", nil
}

func applyPrefill(cv *model.CVRecord, prefill map[string]any) {
	if v, ok := prefill["full_name"].(string); ok && v != "" {
		cv.Contact.FullName = v
	}
	if v, ok := prefill["email"].(string); ok && v != "" {
		cv.Contact.Email = v
	}
	if v, ok := prefill["phone"].(string); ok && v != "" {
		cv.Contact.Phone = v
	}
	if v, ok := prefill["address_lines"].([]string); ok && len(v) > 0 {
		cv.Contact.AddressLines = v
	}
}

func handleContactEdit(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageContactEdit
	return "editing contact", nil
}

func handleContactCancel(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageContact
	return "cancelled", nil
}

func handleContactSave(a *actionCtx) (string, error) {
	if v, ok := a.action.Payload["full_name"].(string); ok {
		a.cv.Contact.FullName = v
	}
	if v, ok := a.action.Payload["email"].(string); ok {
		a.cv.Contact.Email = v
	}
	if v, ok := a.action.Payload["phone"].(string); ok {
		a.cv.Contact.Phone = v
	}
	if v, ok := a.action.Payload["address_lines"].([]any); ok {
		lines := make([]string, 0, len(v))
		for _, line := range v {
			if s, ok := line.(string); ok {
				lines = append(lines, s)
			}
		}
		a.cv.Contact.AddressLines = lines
	}
	// Editing confirmed contact details re-opens the confirmation gate
	// (invariant 3: confirmation gates must re-arm on edit).
	a.meta.ConfirmedFlags.ContactConfirmed = false
	a.meta.Substage = model.SubstageContact
	return "contact saved", nil
}

func handleContactConfirm(a *actionCtx) (string, error) {
	now := time.Now()
	a.meta.ConfirmedFlags.ContactConfirmed = true
	a.meta.ConfirmedFlags.ConfirmedAt = &now
	a.meta.Substage = model.SubstageEducation
	return "contact confirmed", nil
}

func handleEducationEdit(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageEducation
	return "editing education", nil
}

func handleEducationCancel(a *actionCtx) (string, error) {
	a.meta.Substage = model.SubstageEducation
	return "cancelled", nil
}

func handleEducationSave(a *actionCtx) (string, error) {
	entries, ok := a.action.Payload["education"].([]any)
	if !ok {
		return "", userError("education payload must be a list of entries")
	}
	studies := make([]model.Study, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		s := model.Study{
			Title:       stringField(m, "title"),
			Institution: stringField(m, "institution"),
			DateRange:   stringField(m, "date_range"),
		}
		if details, ok := m["details"].([]any); ok {
			for _, d := range details {
				if ds, ok := d.(string); ok {
					s.Details = append(s.Details, ds)
				}
			}
		}
		studies = append(studies, s)
	}
	a.cv.Education = studies
	a.meta.ConfirmedFlags.EducationConfirmed = false
	a.meta.Substage = model.SubstageEducation
	return "education saved", nil
}

func handleEducationConfirm(a *actionCtx) (string, error) {
	if len(a.cv.Education) == 0 {
		return "", userError("add at least one education entry before confirming")
	}
	now := time.Now()
	a.meta.ConfirmedFlags.EducationConfirmed = true
	a.meta.ConfirmedFlags.ConfirmedAt = &now
	a.meta.Substage = model.SubstageJobPosting
	return "education confirmed", nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
