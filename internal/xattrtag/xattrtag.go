// Package xattrtag stamps an asset with its current qc_id as a POSIX
// extended attribute, a supplemental feature ported from
// original_source's set_xattr (crawler.py): best-effort, swallowing every
// error, so a filesystem without xattr support never affects a crawl's
// outcome.
package xattrtag

// DefaultKey is the extended-attribute name written to, namespaced under
// "user" so it requires no special privilege on Linux.
const DefaultKey = "user.qc.qc_id"

// Set stamps path with value under key (DefaultKey if key is ""). Errors
// are intentionally not returned: callers treat tagging as cosmetic, never
// a reason to fail a crawl.
func Set(path, key, value string) {
	if key == "" {
		key = DefaultKey
	}
	setImpl(path, key, value)
}

// Get reads back the extended attribute tagged by Set, for diagnostics and
// tests. ok is false on any error, including "not supported" and "not set".
func Get(path, key string) (value string, ok bool) {
	if key == "" {
		key = DefaultKey
	}
	return getImpl(path, key)
}
