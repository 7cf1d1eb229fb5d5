package xattrtag

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetNeverPanicsOnMissingFile(t *testing.T) {
	// Best-effort: tagging a path that doesn't exist must not panic or
	// otherwise surface as a usable error to the caller.
	Set(filepath.Join(t.TempDir(), "does-not-exist"), "", "qc-id-1")
}

func TestSetAcceptsOrdinaryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mxf")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	Set(path, "", "qc-id-1")
}

func TestGetNeverPanicsOnMissingFile(t *testing.T) {
	if _, ok := Get(filepath.Join(t.TempDir(), "does-not-exist"), ""); ok {
		t.Fatal("expected ok=false for a missing file")
	}
}

func TestGetReturnsFalseWhenUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mxf")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// On platforms/filesystems without xattr support this is also false,
	// which is indistinguishable from "never tagged" by design.
	if _, ok := Get(path, ""); ok {
		t.Fatal("expected ok=false before Set has ever been called")
	}
}
