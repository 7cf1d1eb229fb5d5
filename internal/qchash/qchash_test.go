package qchash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDeepHashCarriesAlgoPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.bin")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}

	digest, err := DeepHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(digest, "blake3:") {
		t.Fatalf("expected blake3 prefix, got %q", digest)
	}

	algo, hex, ok := SplitDigest(digest)
	if !ok || algo != AlgoBLAKE3 || len(hex) != 64 {
		t.Fatalf("unexpected split result: %v %v %v", algo, hex, ok)
	}
}

func TestDeepHashDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	d1, err := DeepHash(path)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := DeepHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatalf("expected deterministic hash, got %q vs %q", d1, d2)
	}
}

func TestManifestHashOrderSensitive(t *testing.T) {
	h1, err := ManifestHash([]string{"blake3:aa", "blake3:bb"})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ManifestHash([]string{"blake3:bb", "blake3:aa"})
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Fatal("expected manifest hash to depend on frame order")
	}
}

func TestManifestHashDeterministicForFrameOrderedInput(t *testing.T) {
	// Caller always passes frame-number order; same logical set of frame
	// hashes given in that canonical order must hash identically regardless
	// of how the caller originally discovered them on disk.
	frames := []string{"blake3:11", "blake3:22", "blake3:33"}
	a, err := ManifestHash(append([]string(nil), frames...))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ManifestHash(append([]string(nil), frames...))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected identical manifest hash for identical frame-ordered input")
	}
}

func TestCheapFingerprint(t *testing.T) {
	fp := CheapFingerprint([]FileStat{
		{Size: 100, Mtime: 10},
		{Size: 200, Mtime: 30},
		{Size: 50, Mtime: 20},
	})
	if fp.Files != 3 || fp.Bytes != 350 || fp.NewestMtime != 30 {
		t.Fatalf("unexpected fingerprint: %+v", fp)
	}
}

func TestSplitDigestRejectsUnknownAlgo(t *testing.T) {
	if _, _, ok := SplitDigest("md5:deadbeef"); ok {
		t.Fatal("expected unknown algo prefix to be rejected")
	}
	if _, _, ok := SplitDigest("no-colon-here"); ok {
		t.Fatal("expected malformed digest to be rejected")
	}
}
