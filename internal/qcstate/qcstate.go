// Package qcstate implements the QC state builder (spec.md C5): given a
// prior sidecar, the current content hash, an optional sequence summary,
// operator inputs, and a tracker result, it computes the next sidecar
// payload. Grounded on original_source's qcstate.py (make_qc_signature,
// uuid7) and crawler.py's process_single_file/process_sequence (the
// qc_id-preservation, content-state, sticky-asset_id, and last_valid_*
// bookkeeping that qcstate.py itself only stubs out), generalized into one
// shared builder that both Singles and Sequences funnel through.
package qcstate

import (
	"time"

	"github.com/google/uuid"

	"qc-crawl/internal/sidecar"
)

// Result classifies qc_result.
const (
	ResultPass    = "pass"
	ResultFail    = "fail"
	ResultPending = "pending"
)

// State classifies content_state.
const (
	StateNew       = "new"
	StateUnchanged = "unchanged"
	StateModified  = "modified"
	StateMissing   = "missing"
)

// TrackerOutcome mirrors the abstract tracker contract's lookup result
// (spec.md §4.6), already resolved to this asset.
type TrackerOutcome struct {
	AssetID  string // empty if no match
	Status   string // "ok" | "unauthorized" | "not_found" | "error"
	HTTPCode int
}

// Inputs carries everything the builder needs for one asset.
type Inputs struct {
	Prior *sidecar.Sidecar

	// AssetPath is the absolute file path (Single) or directory path
	// (Sequence).
	AssetPath string

	// ContentHash is the current content hash, or "" if the asset no
	// longer exists on disk (the missing-content path).
	ContentHash string
	// Missing is true when the asset no longer exists on disk; ContentHash
	// is then ignored and the prior hash is carried forward.
	Missing bool

	Sequence *sidecar.SequenceSummary // nil for Singles

	Operator       string
	ResultOverride string // "", "pass", "fail", or "pending"
	Note           string
	CLIAssetID     string // from --asset-id, "" if not supplied

	Tracker *TrackerOutcome // nil if no lookup was performed

	SchemaName    string
	SchemaVersion string
	ToolVersion   string
	PolicyVersion string

	// Now and NewQCID are injected so the builder stays deterministic under
	// test; when left unset, Build uses time.Now().UTC() and NewQCID.
	Now     time.Time
	NewQCID func() string
}

// Build computes the next sidecar payload for one asset.
func Build(in Inputs) *sidecar.Sidecar {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	newID := in.NewQCID
	if newID == nil {
		newID = NewQCID
	}

	out := &sidecar.Sidecar{
		SchemaName:    defaultString(in.SchemaName, sidecar.CurrentSchemaName),
		SchemaVersion: defaultString(in.SchemaVersion, sidecar.CurrentSchemaVersion),
		Operator:      in.Operator,
		Notes:         in.Note,
		ToolVersion:   in.ToolVersion,
		PolicyVersion: in.PolicyVersion,
		AssetPath:     in.AssetPath,
		Sequence:      in.Sequence,
	}

	contentState, contentHash, prevHash := resolveContentState(in)
	out.ContentState = contentState
	out.ContentHash = contentHash
	if prevHash != "" {
		out.PrevContentHash = prevHash
	}

	out.AssetID = resolveAssetID(in)

	applyQCEvent(out, in, now, newID)

	if in.Tracker != nil {
		out.TrackerStatus = &sidecar.TrackerStatus{
			HTTPCode: in.Tracker.HTTPCode,
			Status:   in.Tracker.Status,
		}
	}

	return out
}

// resolveContentState implements the §4.5 4-way transition table.
func resolveContentState(in Inputs) (state, hash, prevHash string) {
	var priorHash string
	if in.Prior != nil {
		priorHash = in.Prior.ContentHash
	}

	if in.Missing {
		return StateMissing, priorHash, ""
	}

	switch {
	case in.Prior == nil:
		return StateNew, in.ContentHash, ""
	case priorHash == in.ContentHash:
		return StateUnchanged, in.ContentHash, carryForwardPrevHash(in.Prior)
	default:
		return StateModified, in.ContentHash, priorHash
	}
}

func carryForwardPrevHash(prior *sidecar.Sidecar) string {
	return prior.PrevContentHash
}

// resolveAssetID implements the sticky asset_id precedence: CLI flag,
// tracker match, prior sidecar, then null (spec.md §4.5).
func resolveAssetID(in Inputs) *string {
	if in.CLIAssetID != "" {
		v := in.CLIAssetID
		return &v
	}
	if in.Tracker != nil && in.Tracker.AssetID != "" {
		v := in.Tracker.AssetID
		return &v
	}
	if in.Prior != nil && in.Prior.AssetID != nil && *in.Prior.AssetID != "" {
		v := *in.Prior.AssetID
		return &v
	}
	return nil
}

// applyQCEvent implements the qc_id rule and last_valid_* bookkeeping.
func applyQCEvent(out *sidecar.Sidecar, in Inputs, now time.Time, newID func() string) {
	isOperatorRun := in.ResultOverride == ResultPass || in.ResultOverride == ResultFail

	var priorQCID, priorLastValidID, priorLastValidTime string
	if in.Prior != nil {
		priorQCID = in.Prior.QCID
		priorLastValidID = in.Prior.LastValidQCID
		priorLastValidTime = in.Prior.LastValidQCTime
	}

	if isOperatorRun {
		out.QCID = newID()
		out.QCTime = now.Format(time.RFC3339)
		out.QCResult = in.ResultOverride
		out.LastValidQCID = out.QCID
		out.LastValidQCTime = out.QCTime
		return
	}

	// Nightly run: preserve prior qc_id if present, else mint. qc_result is
	// always "pending" regardless of whether the caller passed an explicit
	// "pending" override.
	if priorQCID != "" {
		out.QCID = priorQCID
	} else {
		out.QCID = newID()
	}
	out.QCTime = now.Format(time.RFC3339)
	out.QCResult = ResultPending

	if priorLastValidID != "" {
		out.LastValidQCID = priorLastValidID
		out.LastValidQCTime = priorLastValidTime
	}
}

// MarkMissing reconciles a sidecar whose asset has disappeared from disk.
// Spec.md §4.7 mandates updating qc_time on this pass even though
// original_source's mark_missing_content leaves it untouched — every other
// field, including qc_id, qc_result, content_hash, and last_valid_*, is
// carried forward unchanged.
func MarkMissing(prior *sidecar.Sidecar, now time.Time) *sidecar.Sidecar {
	out := *prior
	out.ContentState = StateMissing
	out.QCTime = now.Format(time.RFC3339)
	return &out
}

// NewQCID mints a UUIDv7: 48-bit unix-ms timestamp + version + random bits,
// so identifiers sort by creation time without colliding within a run
// (spec.md §9).
func NewQCID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global random source errors; fall back
		// to a random v4 rather than panic on an asset we're trying to record.
		return uuid.New().String()
	}
	return id.String()
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
