package session

import (
	"context"
	"encoding/json"

	"github.com/cvwizard/backend/internal/blobstore"
	"github.com/cvwizard/backend/internal/model"
)

// offloadThresholdBytes is the default row-size limit above which bulky
// metadata sub-objects move to blob storage (§4.1 offloading rule).
const offloadThresholdBytes = 64 * 1024

// offloadContainer is the blobstore container offloaded sub-objects live in.
const offloadContainer = "cv-sessions"

// offloadPointers names which bulky fields were moved out of the metadata
// row and where to find them, keyed by field name.
type offloadPointers map[string]model.BlobRef

// offloadIfOversized checks the serialized size of meta and, if it exceeds
// threshold, moves event_log, docx_prefill_unconfirmed, and the work and
// skills proposal blocks to blobstore one at a time, in that fixed order,
// until the remaining row fits, returning the trimmed metadata and the
// pointers to restore on read.
func offloadIfOversized(ctx context.Context, store blobstore.Store, threshold int, meta model.Metadata) (model.Metadata, offloadPointers, error) {
	if threshold <= 0 {
		threshold = offloadThresholdBytes
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return meta, nil, err
	}
	if len(raw) <= threshold {
		return meta, nil, nil
	}

	ptrs := make(offloadPointers)

	type candidate struct {
		name  string
		clear func()
		value any
	}
	candidates := []candidate{
		{"event_log", func() { meta.EventLog = nil }, meta.EventLog},
		{"docx_prefill_unconfirmed", func() { meta.DocxPrefillUnconfirmed = nil }, meta.DocxPrefillUnconfirmed},
		{"work_experience_proposal_block", func() { meta.WorkExperienceProposalBlock = nil }, meta.WorkExperienceProposalBlock},
		{"skills_proposal_block", func() { meta.SkillsProposalBlock = nil }, meta.SkillsProposalBlock},
	}

	for _, c := range candidates {
		raw, err = json.Marshal(meta)
		if err != nil {
			return meta, nil, err
		}
		if len(raw) <= threshold {
			break
		}
		if c.value == nil {
			continue
		}
		payload, err := json.Marshal(c.value)
		if err != nil {
			return meta, nil, err
		}
		ref, err := store.Put(ctx, offloadContainer, payload, "application/json")
		if err != nil {
			return meta, nil, err
		}
		ptrs[c.name] = ref
		c.clear()
	}

	if len(ptrs) == 0 {
		return meta, nil, nil
	}
	return meta, ptrs, nil
}

// rehydrate restores offloaded sub-objects into meta from blobstore.
func rehydrate(ctx context.Context, store blobstore.Store, meta model.Metadata, ptrs offloadPointers) (model.Metadata, error) {
	for name, ref := range ptrs {
		payload, err := store.Get(ctx, ref)
		if err == blobstore.ErrNotFound {
			continue // stale ref tolerated on read, per §3 invariant 5
		}
		if err != nil {
			return meta, err
		}
		switch name {
		case "event_log":
			if err := json.Unmarshal(payload, &meta.EventLog); err != nil {
				return meta, err
			}
		case "docx_prefill_unconfirmed":
			if err := json.Unmarshal(payload, &meta.DocxPrefillUnconfirmed); err != nil {
				return meta, err
			}
		case "work_experience_proposal_block":
			if err := json.Unmarshal(payload, &meta.WorkExperienceProposalBlock); err != nil {
				return meta, err
			}
		case "skills_proposal_block":
			if err := json.Unmarshal(payload, &meta.SkillsProposalBlock); err != nil {
				return meta, err
			}
		}
	}
	return meta, nil
}
