package wizard

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/cvwizard/backend/internal/config"
	"github.com/cvwizard/backend/internal/fsm"
	"github.com/cvwizard/backend/internal/model"
	"github.com/cvwizard/backend/internal/validate"
)

// createSession handles the first turn of a session: decode an optional
// DOCX upload into a prefill draft, set the target language, and land on
// import_gate_pending when a prefill was found, otherwise on language
// selection or contact, per whether a language was already chosen.
func (o *Orchestrator) createSession(ctx context.Context, in TurnInput) (model.Session, error) {
	cv := model.CVRecord{}
	meta := model.Metadata{
		TargetLanguage: in.Language,
	}

	hasPrefill := false
	if in.DocxBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(in.DocxBase64)
		if err != nil {
			return model.Session{}, userError("extract_and_store_cv: invalid base64 payload: %v", err)
		}

		prefill, extractErr := o.Extractor.ExtractPrefill(raw)
		if extractErr != nil {
			return model.Session{}, userError("extract_and_store_cv: could not read docx: %v", extractErr)
		}
		prefillMap := prefillToMap(prefill)
		if len(prefillMap) > 0 {
			meta.DocxPrefillUnconfirmed = prefillMap
			hasPrefill = true
		}

		if data, contentType, ok, photoErr := o.Extractor.ExtractFirstPhoto(raw); photoErr == nil && ok {
			ref, putErr := o.Blobs.Put(ctx, "photos", data, contentType)
			if putErr == nil {
				meta.PhotoBlob = &ref
			}
		}
	}

	switch {
	case hasPrefill:
		meta.Substage = model.SubstageImportGatePending
	case in.Language != "":
		meta.Substage = model.SubstageContact
	default:
		meta.Substage = model.SubstageLanguageSelection
	}

	return o.Store.Create(ctx, cv, meta)
}

// prefillToMap turns an extracted CVRecord into the loosely typed dict shape
// the original tool contract stores under docx_prefill_unconfirmed, so the
// UI can render "apply this suggested value" affordances per field.
func prefillToMap(cv model.CVRecord) map[string]any {
	m := map[string]any{}
	if cv.Contact.FullName != "" {
		m["full_name"] = cv.Contact.FullName
	}
	if cv.Contact.Email != "" {
		m["email"] = cv.Contact.Email
	}
	if cv.Contact.Phone != "" {
		m["phone"] = cv.Contact.Phone
	}
	if len(cv.Contact.AddressLines) > 0 {
		m["address_lines"] = cv.Contact.AddressLines
	}
	return m
}

// sessionFlags projects the fields of Metadata the FSM resolver reasons
// over into fsm.SessionFlags.
func sessionFlags(meta model.Metadata) fsm.SessionFlags {
	return fsm.SessionFlags{
		ConfirmationRequired: meta.ConfirmationRequired,
		PendingEdits:         meta.PendingEdits,
		GenerateRequested:    meta.GenerateRequested,
		UserConfirmYes:       meta.UserConfirmYes,
		UserConfirmNo:        meta.UserConfirmNo,
		TurnsInReview:        meta.TurnsInReview,
	}
}

// validationFlags projects validation outcomes into fsm.ValidationFlags.
func validationFlags(cv model.CVRecord, meta model.Metadata, vcfg config.ValidationConfig) fsm.ValidationFlags {
	limits := validate.ForLanguage(meta.TargetLanguage, vcfg.GermanScaleFactor)
	violations := validate.CheckCVRecord(cv, limits)
	readiness := validate.Summarize(cv, meta)

	return fsm.ValidationFlags{
		ValidationPassed: len(violations) == 0,
		ReadinessOK:      readiness.CanGenerate,
		PDFGenerated:     meta.PDFGenerated,
		PDFFailed:        meta.PDFFailed,
		HighConfidence:   meta.HighConfidence,
	}
}

// actionIDUnrecognized is returned by dispatch for an id with no handler,
// which should never happen if BuildUIAction and the dispatch table stay in
// sync (invariant 6, "no-ghost-actions").
func actionIDUnrecognized(id string) error {
	return fmt.Errorf("wizard: unrecognized action id %q", id)
}
