// Package hashcache implements the per-directory persistent hash cache
// (spec.md C2): a JSON map from frame filename to its last known
// (size, mtime, content_hash). Grounded on the teacher's
// internal/discidcache/cache.go (thread-safe load/save-on-mutate cache with
// atomic persist) and internal/ripcache/metadata.go's temp-then-rename
// write, generalized from a single combined cache file to one cache per
// crawled directory and rebased onto internal/atomicfile for the write.
package hashcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"qc-crawl/internal/atomicfile"
	"qc-crawl/internal/qclog"
)

// DefaultFileName is the hidden cache filename spec.md §4.2 defaults to.
// Load's fileName argument overrides it; qcconfig has no setting for it and
// the crawl engine always uses this default.
const DefaultFileName = ".qc.hashcache.json"

// Entry is one cached frame's last known identity.
type Entry struct {
	Size        int64  `json:"size"`
	Mtime       int64  `json:"mtime"`
	ContentHash string `json:"content_hash"`
}

// Cache is the in-memory, directory-scoped hash cache. Not shared across
// directories (spec.md §5: "the hash-cache object for a directory is not
// shared across directories").
type Cache struct {
	dir      string
	fileName string
	logger   *slog.Logger
	entries  map[string]Entry
	dirty    bool
}

// Load reads the cache file from dir, returning an empty cache on absence
// or corruption (logged as a warning, per spec.md §4.2/§7).
func Load(dir, fileName string, logger *slog.Logger) *Cache {
	if fileName == "" {
		fileName = DefaultFileName
	}
	logger = qclog.Component(logger, "hashcache")

	c := &Cache{
		dir:      dir,
		fileName: fileName,
		logger:   logger,
		entries:  make(map[string]Entry),
	}

	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to read hash cache, starting empty",
				qclog.String("dir", dir), qclog.Error(err))
		}
		return c
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn("corrupt hash cache, starting empty",
			qclog.String("dir", dir), qclog.Error(err))
		return c
	}
	c.entries = entries
	return c
}

// Lookup returns the cached hash iff both size and mtime match exactly
// (spec.md §4.2).
func (c *Cache) Lookup(filename string, size, mtime int64) (string, bool) {
	entry, ok := c.entries[filename]
	if !ok || entry.Size != size || entry.Mtime != mtime {
		return "", false
	}
	return entry.ContentHash, true
}

// Update records filename's current identity in memory; Save persists it.
func (c *Cache) Update(filename string, size, mtime int64, contentHash string) {
	c.entries[filename] = Entry{Size: size, Mtime: mtime, ContentHash: contentHash}
	c.dirty = true
}

// Entries returns a defensive copy of the current cache contents, used by
// the mutation detector to snapshot "previous" per-frame hashes.
func (c *Cache) Entries() map[string]Entry {
	out := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Save persists the cache atomically. Advisory only: spec.md §4.2 "a full
// rebuild always yields the same sidecars", so Save failures are logged,
// never fatal.
func (c *Cache) Save() error {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	ordered := make(map[string]Entry, len(c.entries))
	for _, name := range names {
		ordered[name] = c.entries[name]
	}

	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return fmt.Errorf("hashcache: marshal: %w", err)
	}

	path := filepath.Join(c.dir, c.fileName)
	if err := atomicfile.Write(path, data, true); err != nil {
		return fmt.Errorf("hashcache: save %s: %w", path, err)
	}
	c.dirty = false
	return nil
}

// Dirty reports whether any entries changed since the last Save.
func (c *Cache) Dirty() bool {
	return c.dirty
}
