// Package mutation implements sequence mutation-threshold detection, a
// feature present in original_source's mutation.py but dropped from the
// distilled specification. It decides whether enough per-frame hash churn
// happened between two crawls of a sequence to warrant treating it as
// mutated rather than merely "modified", so a site that wants looser
// tolerance for incidental single-frame touch-ups can configure a
// threshold instead of re-QCing on every byte.
package mutation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Config mirrors mutation.py's SequenceMutationConfig.
type Config struct {
	// ThresholdFrames is the minimum absolute count of changed+added (and,
	// if CountRemovedFrames, removed) frames that triggers a mutation. A
	// nil-equivalent "unset" is modeled as ThresholdFrames <= 0 combined
	// with Enabled being the caller's decision to apply this config at all.
	ThresholdFrames int
	// ThresholdPercent is the minimum percentage (0-100) of changed frames,
	// relative to max(total_before, total_after). 0 disables this check.
	ThresholdPercent float64
	// CountRemovedFrames includes removed frames in the threshold count.
	CountRemovedFrames bool
	// TreatAddedFramesAsMutation always flags a mutation when any frame is
	// newly present, regardless of thresholds.
	TreatAddedFramesAsMutation bool
}

// Result is the outcome of comparing a sequence's previous and current
// per-frame hashes.
type Result struct {
	ChangedFrames []string
	AddedFrames   []string
	RemovedFrames []string
	TotalBefore   int
	TotalAfter    int
	Mutated       bool
}

// TotalChanges is the sum of changed, added, and removed frame counts.
func (r Result) TotalChanges() int {
	return len(r.ChangedFrames) + len(r.AddedFrames) + len(r.RemovedFrames)
}

// Detect compares previousHashes (frame name -> content hash, nil if no
// prior state exists) against currentHashes and applies cfg's thresholds.
func Detect(previousHashes, currentHashes map[string]string, cfg Config) Result {
	prevKeys := make(map[string]struct{}, len(previousHashes))
	for k := range previousHashes {
		prevKeys[k] = struct{}{}
	}
	currKeys := make(map[string]struct{}, len(currentHashes))
	for k := range currentHashes {
		currKeys[k] = struct{}{}
	}

	var added, removed, changed []string
	for k := range currKeys {
		if _, ok := prevKeys[k]; !ok {
			added = append(added, k)
		}
	}
	for k := range prevKeys {
		if _, ok := currKeys[k]; !ok {
			removed = append(removed, k)
		}
	}
	for k := range prevKeys {
		if _, ok := currKeys[k]; ok && previousHashes[k] != currentHashes[k] {
			changed = append(changed, k)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)

	totalBefore := len(prevKeys)
	totalAfter := len(currKeys)

	thresholdChanges := len(changed) + len(added)
	if cfg.CountRemovedFrames {
		thresholdChanges += len(removed)
	}
	baseline := totalBefore
	if totalAfter > baseline {
		baseline = totalAfter
	}

	mutated := false
	if cfg.TreatAddedFramesAsMutation && len(added) > 0 {
		mutated = true
	}
	if !mutated && cfg.ThresholdFrames > 0 && thresholdChanges >= cfg.ThresholdFrames {
		mutated = true
	}
	if !mutated && cfg.ThresholdPercent > 0 && baseline > 0 {
		percent := float64(thresholdChanges) / float64(baseline) * 100.0
		if percent >= cfg.ThresholdPercent {
			mutated = true
		}
	}

	return Result{
		ChangedFrames: changed,
		AddedFrames:   added,
		RemovedFrames: removed,
		TotalBefore:   totalBefore,
		TotalAfter:    totalAfter,
		Mutated:       mutated,
	}
}

// SummarizeFrameSpans compresses a sorted list of frame identifiers (e.g.
// zero-padded frame numbers as strings) into compact span notation, e.g.
// ["0001","0002","0003","0010"] -> "0001-0003, 0010". Non-numeric
// identifiers each get their own span.
func SummarizeFrameSpans(frameIDs []string) string {
	if len(frameIDs) == 0 {
		return ""
	}

	type parsed struct {
		n     int64
		ok    bool
		label string
	}
	items := make([]parsed, 0, len(frameIDs))
	for _, id := range frameIDs {
		n, err := strconv.ParseInt(id, 10, 64)
		items = append(items, parsed{n: n, ok: err == nil, label: id})
	}

	var spans []string
	i := 0
	for i < len(items) {
		if !items[i].ok {
			spans = append(spans, items[i].label)
			i++
			continue
		}
		start := items[i].label
		end := items[i].label
		last := items[i].n
		j := i + 1
		for j < len(items) && items[j].ok && items[j].n == last+1 {
			end = items[j].label
			last = items[j].n
			j++
		}
		if start == end {
			spans = append(spans, start)
		} else {
			spans = append(spans, fmt.Sprintf("%s-%s", start, end))
		}
		i = j
	}
	return strings.Join(spans, ", ")
}
