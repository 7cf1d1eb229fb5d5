//go:build windows

package atomicfile

import (
	"golang.org/x/sys/windows"
)

// applyHiddenAttribute reapplies FILE_ATTRIBUTE_HIDDEN after an atomic
// rename, since Windows does not preserve attributes across os.Rename onto
// an existing target the way POSIX dotfiles stay hidden by name alone.
func applyHiddenAttribute(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	return windows.SetFileAttributes(p, attrs|windows.FILE_ATTRIBUTE_HIDDEN)
}
