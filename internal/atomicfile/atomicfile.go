// Package atomicfile implements the single atomic-write primitive shared by
// the hash cache and the sidecar store: write to a temp sibling, fsync the
// temp file, rename over the target, then fsync the containing directory.
// Grounded on the teacher's internal/ripcache/metadata.go and
// internal/discidcache/cache.go temp-then-rename pattern, extended per
// spec.md §5/§6 to fsync the directory and to reapply the Windows hidden
// attribute after the rename.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Write persists data to path atomically. hidden controls whether the
// target should be marked hidden on Windows after the rename (the "dot" and
// "subdir" sidecar layouts hide nothing extra on POSIX, where a leading dot
// already suffices).
func Write(path string, data []byte, hidden bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: create directory %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", filepath.Base(path), time.Now().UnixNano()))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("atomicfile: open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: rename temp file: %w", err)
	}

	if err := fsyncDir(dir); err != nil {
		return fmt.Errorf("atomicfile: fsync directory %s: %w", dir, err)
	}

	if hidden {
		if err := applyHiddenAttribute(path); err != nil {
			return fmt.Errorf("atomicfile: apply hidden attribute: %w", err)
		}
	}

	return nil
}

// fsyncDir durability-syncs the rename itself. Best-effort: some platforms
// and filesystems reject opening a directory for fsync; that's not treated
// as fatal since the rename already happened.
func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		if os.IsPermission(err) {
			return nil
		}
		return nil
	}
	return nil
}
