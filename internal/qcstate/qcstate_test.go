package qcstate

import (
	"testing"
	"time"

	"qc-crawl/internal/sidecar"
)

func fixedClock() (time.Time, func() string) {
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	var n int
	return now, func() string {
		n++
		if n == 1 {
			return "qc-id-1"
		}
		return "qc-id-2"
	}
}

func TestNewAssetFirstSweep(t *testing.T) {
	now, newID := fixedClock()
	out := Build(Inputs{
		AssetPath:   "/t/clip.mxf",
		ContentHash: "blake3:aaaa",
		Operator:    "nightly",
		Now:         now,
		NewQCID:     newID,
	})

	if out.ContentState != StateNew {
		t.Fatalf("expected new, got %q", out.ContentState)
	}
	if out.QCResult != ResultPending {
		t.Fatalf("expected pending, got %q", out.QCResult)
	}
	if out.QCID != "qc-id-1" {
		t.Fatalf("expected minted qc_id, got %q", out.QCID)
	}
	if out.PrevContentHash != "" {
		t.Fatalf("expected no prev_content_hash on first sweep, got %q", out.PrevContentHash)
	}
}

func TestUnchangedPreservesQCID(t *testing.T) {
	now, newID := fixedClock()
	prior := &sidecar.Sidecar{
		QCID:        "qc-id-0",
		ContentHash: "blake3:aaaa",
	}
	out := Build(Inputs{
		Prior:       prior,
		AssetPath:   "/t/clip.mxf",
		ContentHash: "blake3:aaaa",
		Operator:    "nightly",
		Now:         now,
		NewQCID:     newID,
	})

	if out.ContentState != StateUnchanged {
		t.Fatalf("expected unchanged, got %q", out.ContentState)
	}
	if out.QCID != "qc-id-0" {
		t.Fatalf("expected preserved qc_id, got %q", out.QCID)
	}
	if out.QCResult != ResultPending {
		t.Fatalf("expected pending on nightly run, got %q", out.QCResult)
	}
}

func TestOperatorPassMintsNewQCID(t *testing.T) {
	now, newID := fixedClock()
	prior := &sidecar.Sidecar{
		QCID:        "qc-id-0",
		ContentHash: "blake3:aaaa",
	}
	out := Build(Inputs{
		Prior:          prior,
		AssetPath:      "/t/clip.mxf",
		ContentHash:    "blake3:bbbb",
		Operator:       "alice",
		ResultOverride: ResultPass,
		Note:           "ok",
		Now:            now,
		NewQCID:        newID,
	})

	if out.ContentState != StateModified {
		t.Fatalf("expected modified, got %q", out.ContentState)
	}
	if out.QCID == "qc-id-0" {
		t.Fatal("expected a fresh qc_id on operator sign-off")
	}
	if out.QCResult != ResultPass {
		t.Fatalf("expected pass, got %q", out.QCResult)
	}
	if out.LastValidQCID != out.QCID || out.LastValidQCTime != out.QCTime {
		t.Fatalf("expected last_valid_* to track the new event, got %+v", out)
	}
	if out.PrevContentHash != "blake3:aaaa" {
		t.Fatalf("expected prev_content_hash carried from prior, got %q", out.PrevContentHash)
	}
}

func TestMissingContentCarriesForwardHash(t *testing.T) {
	now, newID := fixedClock()
	prior := &sidecar.Sidecar{
		QCID:          "qc-id-1",
		ContentHash:   "blake3:aaaa",
		LastValidQCID: "qc-id-1",
	}
	out := Build(Inputs{
		Prior:     prior,
		AssetPath: "/t/clip.mxf",
		Missing:   true,
		Operator:  "nightly",
		Now:       now,
		NewQCID:   newID,
	})

	if out.ContentState != StateMissing {
		t.Fatalf("expected missing, got %q", out.ContentState)
	}
	if out.ContentHash != "blake3:aaaa" {
		t.Fatalf("expected prior hash carried forward, got %q", out.ContentHash)
	}
	if out.PrevContentHash != "" {
		t.Fatalf("expected no new prev_content_hash on missing, got %q", out.PrevContentHash)
	}
}

func TestStickyAssetIDSurvivesTrackerFailure(t *testing.T) {
	now, newID := fixedClock()
	assetID := "A1"
	prior := &sidecar.Sidecar{QCID: "qc-id-1", ContentHash: "blake3:aaaa", AssetID: &assetID}
	out := Build(Inputs{
		Prior:       prior,
		AssetPath:   "/t/clip.mxf",
		ContentHash: "blake3:aaaa",
		Operator:    "nightly",
		Tracker:     &TrackerOutcome{Status: "unauthorized", HTTPCode: 401},
		Now:         now,
		NewQCID:     newID,
	})

	if out.AssetID == nil || *out.AssetID != "A1" {
		t.Fatalf("expected asset_id to remain sticky, got %v", out.AssetID)
	}
	if out.TrackerStatus == nil || out.TrackerStatus.HTTPCode != 401 {
		t.Fatalf("expected tracker_status recorded, got %+v", out.TrackerStatus)
	}
}

func TestCLIAssetIDWinsOverTracker(t *testing.T) {
	now, newID := fixedClock()
	out := Build(Inputs{
		AssetPath:   "/t/clip.mxf",
		ContentHash: "blake3:aaaa",
		Operator:    "nightly",
		CLIAssetID:  "CLI1",
		Tracker:     &TrackerOutcome{AssetID: "TRACK1", Status: "ok", HTTPCode: 200},
		Now:         now,
		NewQCID:     newID,
	})

	if out.AssetID == nil || *out.AssetID != "CLI1" {
		t.Fatalf("expected CLI asset id to win, got %v", out.AssetID)
	}
}
