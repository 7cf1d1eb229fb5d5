//go:build !windows

package atomicfile

// applyHiddenAttribute is a no-op outside Windows: POSIX hides dotfiles by
// name, which the sidecar store already arranges for "dot" and "subdir"
// layouts.
func applyHiddenAttribute(string) error {
	return nil
}
