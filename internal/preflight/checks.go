// Package preflight runs fast, fatal-at-startup checks before a crawl
// begins. Grounded on the teacher's internal/preflight/checks.go
// (CheckDirectoryAccess's os.Stat + unix.Access pairing), narrowed to the
// one check a crawler actually needs: every root must exist, be a
// directory, and be readable/writable by the current process (spec.md §7:
// "invalid configuration: fatal at startup").
package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CheckRoot verifies path exists, is a directory, and is readable,
// writable, and traversable by the current process.
func CheckRoot(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("root %q does not exist", path)
		}
		return fmt.Errorf("root %q: stat: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %q is not a directory", path)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("root %q: insufficient permissions: %w", path, err)
	}
	return nil
}

// CheckRoots runs CheckRoot over every root, returning the first failure.
func CheckRoots(paths []string) error {
	for _, p := range paths {
		if err := CheckRoot(p); err != nil {
			return err
		}
	}
	return nil
}
