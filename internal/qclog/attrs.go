package qclog

import (
	"log/slog"
	"sync"
	"time"
)

// Typed attribute helpers so call sites never hand-format key/value pairs,
// mirroring the teacher's internal/logging attribute constructors.

func String(key, value string) slog.Attr { return slog.String(key, value) }

func Int(key string, value int) slog.Attr { return slog.Int(key, value) }

func Int64(key string, value int64) slog.Attr { return slog.Int64(key, value) }

func Uint64(key string, value uint64) slog.Attr { return slog.Uint64(key, value) }

func Bool(key string, value bool) slog.Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) slog.Attr { return slog.Duration(key, value) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Deduper suppresses repeated warnings of the same class within a run,
// matching spec.md §4.6's "duplicate 401/403 warnings are suppressed after
// the first" requirement, generalized to every warning class the crawl
// engine raises (spec.md §7: "log the first occurrence of each class").
type Deduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduper creates an empty class-warning tracker.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// First reports whether class has not been seen before in this run, and
// records it as seen either way.
func (d *Deduper) First(class string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[class]; ok {
		return false
	}
	d.seen[class] = struct{}{}
	return true
}
