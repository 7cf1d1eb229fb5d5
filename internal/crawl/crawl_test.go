package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"qc-crawl/internal/qcconfig"
	"qc-crawl/internal/qcstate"
	"qc-crawl/internal/sidecar"
)

func testConfig(t *testing.T, root string) *qcconfig.Config {
	t.Helper()
	cfg, err := qcconfig.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Roots = []string{root}
	cfg.Operator = "tester"
	cfg.Workers = 2
	return cfg
}

func readSidecar(t *testing.T, path string) *sidecar.Sidecar {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading sidecar %s: %v", path, err)
	}
	var sc sidecar.Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		t.Fatalf("decoding sidecar %s: %v", path, err)
	}
	return &sc
}

func TestRunSingleFileFirstSeenIsNew(t *testing.T) {
	dir := t.TempDir()
	assetPath := filepath.Join(dir, "clip.mov")
	if err := os.WriteFile(assetPath, []byte("frame bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, dir)
	e := New(cfg, nil, nil)
	snap, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.SinglesProcessed != 1 || snap.SidecarsWritten != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	sc := readSidecar(t, filepath.Join(dir, ".qc", "clip.mov.qc.json"))
	if sc.ContentState != qcstate.StateNew {
		t.Fatalf("expected new, got %q", sc.ContentState)
	}
	if sc.QCID == "" {
		t.Fatal("expected a minted qc_id")
	}
}

func TestRunSecondPassUnchangedPreservesQCID(t *testing.T) {
	dir := t.TempDir()
	assetPath := filepath.Join(dir, "clip.mov")
	if err := os.WriteFile(assetPath, []byte("frame bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, dir)
	e := New(cfg, nil, nil)
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := readSidecar(t, filepath.Join(dir, ".qc", "clip.mov.qc.json"))

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := readSidecar(t, filepath.Join(dir, ".qc", "clip.mov.qc.json"))

	if second.ContentState != qcstate.StateUnchanged {
		t.Fatalf("expected unchanged, got %q", second.ContentState)
	}
	if second.QCID != first.QCID {
		t.Fatalf("expected qc_id preserved across unchanged run, got %q != %q", second.QCID, first.QCID)
	}
}

func TestRunModifiedContentChangesHash(t *testing.T) {
	dir := t.TempDir()
	assetPath := filepath.Join(dir, "clip.mov")
	if err := os.WriteFile(assetPath, []byte("version one"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, dir)
	e := New(cfg, nil, nil)
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := readSidecar(t, filepath.Join(dir, ".qc", "clip.mov.qc.json"))

	if err := os.WriteFile(assetPath, []byte("version two, much longer content"), 0o644); err != nil {
		t.Fatal(err)
	}
	bumped := time.Now().Add(time.Second)
	if err := os.Chtimes(assetPath, bumped, bumped); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := readSidecar(t, filepath.Join(dir, ".qc", "clip.mov.qc.json"))

	if second.ContentState != qcstate.StateModified {
		t.Fatalf("expected modified, got %q", second.ContentState)
	}
	if second.ContentHash == first.ContentHash {
		t.Fatal("expected content hash to change")
	}
	if second.PrevContentHash != first.ContentHash {
		t.Fatalf("expected prev_content_hash to carry the old hash, got %q", second.PrevContentHash)
	}
}

func TestRunSequenceWritesSequenceSidecar(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 3; i++ {
		name := filepath.Join(dir, frameName(i))
		if err := os.WriteFile(name, []byte("frame content"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := testConfig(t, dir)
	e := New(cfg, nil, nil)
	snap, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.SequencesProcessed != 1 {
		t.Fatalf("expected one sequence, got %+v", snap)
	}

	sc := readSidecar(t, filepath.Join(dir, ".qc", "qc.sequence.json"))
	if sc.Sequence == nil {
		t.Fatal("expected a sequence summary")
	}
	if sc.Sequence.FrameCount != 3 {
		t.Fatalf("expected frame_count 3, got %d", sc.Sequence.FrameCount)
	}
	if sc.Sequence.Holes != 0 {
		t.Fatalf("expected no holes, got %d", sc.Sequence.Holes)
	}
}

func TestRunReconcilesDeletedAssetAsMissing(t *testing.T) {
	dir := t.TempDir()
	assetPath := filepath.Join(dir, "clip.mov")
	if err := os.WriteFile(assetPath, []byte("frame bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, dir)
	e := New(cfg, nil, nil)
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(assetPath); err != nil {
		t.Fatal(err)
	}

	snap, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.SidecarsMarkedMissing != 1 {
		t.Fatalf("expected one sidecar marked missing, got %+v", snap)
	}

	sc := readSidecar(t, filepath.Join(dir, ".qc", "clip.mov.qc.json"))
	if sc.ContentState != qcstate.StateMissing {
		t.Fatalf("expected missing, got %q", sc.ContentState)
	}
}

func TestRunOperatorResultMintsFreshQCID(t *testing.T) {
	dir := t.TempDir()
	assetPath := filepath.Join(dir, "clip.mov")
	if err := os.WriteFile(assetPath, []byte("frame bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, dir)
	cfg.ResultOverride = "pass"
	e := New(cfg, nil, nil)
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	sc := readSidecar(t, filepath.Join(dir, ".qc", "clip.mov.qc.json"))
	if sc.QCResult != qcstate.ResultPass {
		t.Fatalf("expected pass, got %q", sc.QCResult)
	}
	if sc.LastValidQCID != sc.QCID {
		t.Fatalf("expected last_valid_qc_id to match qc_id, got %q != %q", sc.LastValidQCID, sc.QCID)
	}
}

func TestRunSkipsHashCacheAndDotQCDirectory(t *testing.T) {
	dir := t.TempDir()
	assetPath := filepath.Join(dir, "clip.mov")
	if err := os.WriteFile(assetPath, []byte("frame bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, dir)
	e := New(cfg, nil, nil)
	snap, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.SinglesProcessed != 1 {
		t.Fatalf("expected the hash cache and .qc directory never counted as media, got %+v", snap)
	}

	snap2, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap2.SinglesProcessed != 1 {
		t.Fatalf("expected stable single count across reruns, got %+v", snap2)
	}
}

func frameName(n int) string {
	return fmt.Sprintf("shot_%03d.exr", n)
}
