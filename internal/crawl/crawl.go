// Package crawl implements the crawl engine (spec.md C7): a sequential
// per-root, per-directory walk that batches hashing work onto a bounded
// worker pool, writes sidecars after each directory's tasks complete, and
// reconciles sidecars whose media has disappeared. Grounded on the
// teacher's internal/daemon (flock-guarded single-instance lifecycle,
// sync.WaitGroup-bounded goroutine groups in disc_monitor.go) and on
// original_source's crawler.py for field-by-field processing semantics,
// deliberately restructured from crawler.py's single flat thread pool per
// root into the directory-barrier concurrency model spec.md §4.7/§5
// mandates.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"qc-crawl/internal/hashcache"
	"qc-crawl/internal/mutation"
	"qc-crawl/internal/qcconfig"
	"qc-crawl/internal/qchash"
	"qc-crawl/internal/qclog"
	"qc-crawl/internal/qcstate"
	"qc-crawl/internal/seqdetect"
	"qc-crawl/internal/sidecar"
	"qc-crawl/internal/tracker"
	"qc-crawl/internal/xattrtag"
)

// ToolVersion identifies this binary in every sidecar it writes. Overridden
// at build time via -ldflags "-X qc-crawl/internal/crawl.ToolVersion=...".
var ToolVersion = "dev"

// Summary accumulates run totals via atomic increments (spec.md §5: "Per-run
// counters are updated via atomic increments").
type Summary struct {
	DirectoriesScanned    atomic.Int64
	SinglesProcessed      atomic.Int64
	SequencesProcessed    atomic.Int64
	SidecarsWritten       atomic.Int64
	SidecarsMarkedMissing atomic.Int64
	CacheHits             atomic.Int64
	CacheMisses           atomic.Int64
	HashedBytes           atomic.Int64

	trackerMu       sync.Mutex
	trackerOutcomes map[string]int64

	resultMu sync.Mutex
	results  map[string]int64
}

func newSummary() *Summary {
	return &Summary{
		trackerOutcomes: make(map[string]int64),
		results:         make(map[string]int64),
	}
}

func (s *Summary) incTracker(status string) {
	if status == "" {
		return
	}
	s.trackerMu.Lock()
	defer s.trackerMu.Unlock()
	s.trackerOutcomes[status]++
}

// incResult tallies a finalized sidecar's qc_result (spec.md's pass/fail/
// pending verdict), feeding the summary table's per-status coloring.
func (s *Summary) incResult(qcResult string) {
	if qcResult == "" {
		return
	}
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	s.results[qcResult]++
}

// Snapshot is a point-in-time, non-atomic copy of Summary for display.
type Snapshot struct {
	DirectoriesScanned    int64
	SinglesProcessed      int64
	SequencesProcessed    int64
	SidecarsWritten       int64
	SidecarsMarkedMissing int64
	CacheHits             int64
	CacheMisses           int64
	HashedBytes           int64
	TrackerOutcomes       map[string]int64
	Results               map[string]int64
}

// Snapshot copies the current counters.
func (s *Summary) Snapshot() Snapshot {
	s.trackerMu.Lock()
	outcomes := make(map[string]int64, len(s.trackerOutcomes))
	for k, v := range s.trackerOutcomes {
		outcomes[k] = v
	}
	s.trackerMu.Unlock()

	s.resultMu.Lock()
	results := make(map[string]int64, len(s.results))
	for k, v := range s.results {
		results[k] = v
	}
	s.resultMu.Unlock()

	return Snapshot{
		DirectoriesScanned:    s.DirectoriesScanned.Load(),
		SinglesProcessed:      s.SinglesProcessed.Load(),
		SequencesProcessed:    s.SequencesProcessed.Load(),
		SidecarsWritten:       s.SidecarsWritten.Load(),
		SidecarsMarkedMissing: s.SidecarsMarkedMissing.Load(),
		CacheHits:             s.CacheHits.Load(),
		CacheMisses:           s.CacheMisses.Load(),
		HashedBytes:           s.HashedBytes.Load(),
		TrackerOutcomes:       outcomes,
		Results:               results,
	}
}

// Engine runs crawls over one or more roots.
type Engine struct {
	cfg     *qcconfig.Config
	tracker tracker.Tracker
	logger  *slog.Logger
	sem     chan struct{}
	dedupe  *qclog.Deduper

	active atomic.Pointer[Summary]
}

// New constructs an Engine. trk may be nil (tracker disabled).
func New(cfg *qcconfig.Config, trk tracker.Tracker, logger *slog.Logger) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		cfg:     cfg,
		tracker: trk,
		logger:  qclog.Component(logger, "crawl"),
		sem:     make(chan struct{}, workers),
		dedupe:  qclog.NewDeduper(),
	}
}

// Run crawls every configured root in sequence, returning accumulated
// totals. A canceled context stops launching new directories but lets
// in-flight work for the current directory finish and persist before
// returning ctx.Err() (spec.md §5 cancellation semantics).
func (e *Engine) Run(ctx context.Context) (Snapshot, error) {
	summary := newSummary()
	e.active.Store(summary)
	defer e.active.Store(nil)

	assetIDs := qcconfig.ResolveAssetIDs(e.cfg.Roots, e.cfg.AssetIDs)

	for _, root := range e.cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return summary.Snapshot(), fmt.Errorf("crawl: resolve root %q: %w", root, err)
		}
		if err := e.runRoot(ctx, abs, assetIDs[root], summary); err != nil {
			return summary.Snapshot(), err
		}
	}
	return summary.Snapshot(), nil
}

// CurrentSnapshot returns a live snapshot of the in-progress run's counters,
// for a caller driving a progress display from a separate goroutine. Returns
// the zero Snapshot when no run is active.
func (e *Engine) CurrentSnapshot() Snapshot {
	if s := e.active.Load(); s != nil {
		return s.Snapshot()
	}
	return Snapshot{}
}

// rootLockName is the advisory per-root lock file preventing two crawls of
// the same root from racing on the same hash caches and sidecars.
const rootLockName = ".qc.crawl.lock"

func (e *Engine) runRoot(ctx context.Context, root, assetID string, summary *Summary) error {
	lock := flock.New(filepath.Join(root, rootLockName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("crawl: acquire lock for root %q: %w", root, err)
	}
	if !locked {
		return fmt.Errorf("crawl: root %q is already being crawled by another process", root)
	}
	defer lock.Unlock()

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if e.dedupe.First("walk-path-error") {
				e.logger.Warn("failed to walk path, skipping", qclog.String("path", path), qclog.Error(err))
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.Name() == ".qc" {
			return filepath.SkipDir
		}
		return e.processDirectory(ctx, path, assetID, summary)
	})
	if walkErr != nil {
		return walkErr
	}

	missing, err := e.reconcileMissing(root, summary)
	if err != nil && e.dedupe.First("missing-reconciliation-error") {
		e.logger.Warn("missing-sidecar reconciliation failed", qclog.String("root", root), qclog.Error(err))
	}
	if missing > 0 {
		e.logger.Info("Marked missing", qclog.Int64("count", missing))
	}
	return nil
}

type singleOutcome struct {
	file seqdetect.File
	hash string
	err  error
}

type sequenceOutcome struct {
	seq          seqdetect.Sequence
	manifestHash string
	frameHashes  map[string]string
	err          error
}

func (e *Engine) processDirectory(ctx context.Context, dir, assetID string, summary *Summary) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if e.dedupe.First("list-directory-error") {
			e.logger.Warn("failed to list directory", qclog.String("dir", dir), qclog.Error(err))
		}
		return nil
	}

	cfg := e.cfg.SidecarConfig()
	var files []seqdetect.File
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isSidecarArtifact(entry.Name(), cfg) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, seqdetect.File{Name: entry.Name(), Size: info.Size(), Mtime: info.ModTime().Unix()})
	}

	summary.DirectoriesScanned.Add(1)
	if len(files) == 0 {
		return nil
	}

	grouped := seqdetect.Group(dir, files, e.cfg.MinSeq, e.cfg.ExtensionSet())
	for _, name := range grouped.Invalid {
		if e.dedupe.First("unparseable-frame-number") {
			e.logger.Warn("excluding file with unparseable frame number", qclog.String("dir", dir), qclog.String("name", name))
		}
	}

	cache := hashcache.Load(dir, "", e.logger)
	previousEntries := cache.Entries() // snapshot before Update() mutates in place

	singleResults := e.hashSingles(dir, grouped.Singles, cache, summary)
	sequenceResults := e.hashSequences(ctx, dir, grouped.Sequences, cache, summary)

	if err := cache.Save(); err != nil && e.dedupe.First("hash-cache-save-error") {
		e.logger.Warn("failed to save hash cache", qclog.String("dir", dir), qclog.Error(err))
	}

	for _, so := range singleResults {
		if so.err != nil {
			if e.dedupe.First("unreadable-file") {
				e.logger.Warn("unreadable file, excluded from this run",
					qclog.String("path", filepath.Join(dir, so.file.Name)), qclog.Error(so.err))
			}
			continue
		}
		e.finalizeSingle(ctx, dir, so.file, so.hash, assetID, summary)
	}
	for _, so := range sequenceResults {
		if so.err != nil {
			if e.dedupe.First("manifest-hash-error") {
				e.logger.Warn("failed to compute manifest hash, excluded from this run",
					qclog.String("dir", dir), qclog.String("base", so.seq.Base), qclog.Error(so.err))
			}
			continue
		}
		e.finalizeSequence(ctx, dir, so.seq, so.manifestHash, so.frameHashes, previousEntries, assetID, summary)
	}
	return nil
}

func (e *Engine) hashSingles(dir string, singles []seqdetect.File, cache *hashcache.Cache, summary *Summary) []singleOutcome {
	results := make([]singleOutcome, len(singles))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, f := range singles {
		wg.Add(1)
		e.sem <- struct{}{}
		go func(i int, f seqdetect.File) {
			defer wg.Done()
			defer func() { <-e.sem }()

			if hash, ok := cache.Lookup(f.Name, f.Size, f.Mtime); ok {
				summary.CacheHits.Add(1)
				results[i] = singleOutcome{file: f, hash: hash}
				return
			}
			summary.CacheMisses.Add(1)
			hash, err := qchash.DeepHash(filepath.Join(dir, f.Name))
			if err != nil {
				results[i] = singleOutcome{file: f, err: err}
				return
			}
			mu.Lock()
			cache.Update(f.Name, f.Size, f.Mtime, hash)
			mu.Unlock()
			summary.HashedBytes.Add(f.Size)
			results[i] = singleOutcome{file: f, hash: hash}
		}(i, f)
	}
	wg.Wait()
	return results
}

func (e *Engine) hashSequences(ctx context.Context, dir string, sequences []seqdetect.Sequence, cache *hashcache.Cache, summary *Summary) []sequenceOutcome {
	results := make([]sequenceOutcome, len(sequences))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, seq := range sequences {
		wg.Add(1)
		e.sem <- struct{}{}
		go func(i int, seq seqdetect.Sequence) {
			defer wg.Done()
			defer func() { <-e.sem }()
			results[i] = e.hashOneSequence(dir, seq, cache, summary, &mu)
		}(i, seq)
	}
	wg.Wait()
	return results
}

func (e *Engine) hashOneSequence(dir string, seq seqdetect.Sequence, cache *hashcache.Cache, summary *Summary, cacheMu *sync.Mutex) sequenceOutcome {
	hashes := make([]string, len(seq.Frames))
	errs := make([]error, len(seq.Frames))

	var innerWG sync.WaitGroup
	for fi, frame := range seq.Frames {
		innerWG.Add(1)
		e.sem <- struct{}{}
		go func(fi int, frame seqdetect.Frame) {
			defer innerWG.Done()
			defer func() { <-e.sem }()

			if h, ok := cache.Lookup(frame.Name, frame.Size, frame.Mtime); ok {
				summary.CacheHits.Add(1)
				hashes[fi] = h
				return
			}
			summary.CacheMisses.Add(1)
			h, err := qchash.DeepHash(filepath.Join(dir, frame.Name))
			if err != nil {
				errs[fi] = err
				return
			}
			cacheMu.Lock()
			cache.Update(frame.Name, frame.Size, frame.Mtime, h)
			cacheMu.Unlock()
			summary.HashedBytes.Add(frame.Size)
			hashes[fi] = h
		}(fi, frame)
	}
	innerWG.Wait()

	frameHashes := make(map[string]string, len(seq.Frames))
	validHashes := make([]string, 0, len(seq.Frames))
	for fi, frame := range seq.Frames {
		if errs[fi] != nil {
			if e.dedupe.First("unreadable-frame") {
				e.logger.Warn("unreadable frame, excluded from this run",
					qclog.String("path", filepath.Join(dir, frame.Name)), qclog.Error(errs[fi]))
			}
			continue
		}
		frameHashes[frame.Name] = hashes[fi]
		validHashes = append(validHashes, hashes[fi])
	}

	manifestHash, err := qchash.ManifestHash(validHashes)
	return sequenceOutcome{seq: seq, manifestHash: manifestHash, frameHashes: frameHashes, err: err}
}

func (e *Engine) lookupTracker(ctx context.Context, assetPath string, summary *Summary) *qcstate.TrackerOutcome {
	if e.tracker == nil || !e.tracker.Enabled() {
		return nil
	}
	res, _ := e.tracker.Lookup(ctx, assetPath)
	summary.incTracker(res.Status)
	return &qcstate.TrackerOutcome{AssetID: res.AssetID, Status: res.Status, HTTPCode: res.HTTPCode}
}

func (e *Engine) postTrackerResult(ctx context.Context, sc *sidecar.Sidecar) {
	if e.tracker == nil || !e.tracker.Enabled() {
		return
	}
	if sc.QCResult == qcstate.ResultPending || sc.AssetID == nil || *sc.AssetID == "" {
		return
	}
	_, _ = e.tracker.PostResult(ctx, sc)
}

func (e *Engine) finalizeSingle(ctx context.Context, dir string, f seqdetect.File, hash, cliAssetID string, summary *Summary) {
	assetPath := filepath.Join(dir, f.Name)
	cfg := e.cfg.SidecarConfig()
	path := sidecar.PathForFile(assetPath, cfg)

	prior, err := sidecar.Read(path, e.logger)
	if errors.Is(err, sidecar.ErrUnknownSchemaVersion) {
		return
	}

	var trackerOutcome *qcstate.TrackerOutcome
	if cliAssetID == "" {
		trackerOutcome = e.lookupTracker(ctx, assetPath, summary)
	}

	sc := qcstate.Build(qcstate.Inputs{
		Prior:          prior,
		AssetPath:      assetPath,
		ContentHash:    hash,
		Operator:       e.cfg.Operator,
		ResultOverride: e.cfg.ResultOverride,
		Note:           e.cfg.Note,
		CLIAssetID:     cliAssetID,
		Tracker:        trackerOutcome,
		SchemaName:     e.cfg.SchemaName,
		SchemaVersion:  e.cfg.SchemaVersion,
		PolicyVersion:  e.cfg.PolicyVersion,
		ToolVersion:    ToolVersion,
	})

	if err := sidecar.Write(path, sc, cfg); err != nil {
		if e.dedupe.First("write-sidecar-error-single") {
			e.logger.Error("failed to write sidecar", qclog.String("path", path), qclog.Error(err))
		}
		return
	}
	summary.SidecarsWritten.Add(1)
	summary.SinglesProcessed.Add(1)
	summary.incResult(sc.QCResult)

	xattrtag.Set(assetPath, "", sc.QCID)
	e.postTrackerResult(ctx, sc)
}

func (e *Engine) finalizeSequence(ctx context.Context, dir string, seq seqdetect.Sequence, manifestHash string, frameHashes map[string]string, previousEntries map[string]hashcache.Entry, cliAssetID string, summary *Summary) {
	cfg := e.cfg.SidecarConfig()
	path := sidecar.PathForSequence(dir, cfg)

	prior, err := sidecar.Read(path, e.logger)
	if errors.Is(err, sidecar.ErrUnknownSchemaVersion) {
		return
	}

	summaryField := &sidecar.SequenceSummary{
		Base:       seq.Base,
		Separator:  string(seq.Separator),
		Ext:        seq.Ext,
		Pad:        seq.Pad,
		First:      seq.First,
		Last:       seq.Last,
		FrameMin:   seq.FrameMin,
		FrameMax:   seq.FrameMax,
		FrameCount: seq.FrameCount,
		RangeCount: seq.RangeCount,
		Holes:      seq.Holes,
		CheapFP:    seq.CheapFP,
	}

	var trackerOutcome *qcstate.TrackerOutcome
	if cliAssetID == "" {
		trackerOutcome = e.lookupTracker(ctx, dir, summary)
	}

	sc := qcstate.Build(qcstate.Inputs{
		Prior:          prior,
		AssetPath:      dir,
		ContentHash:    manifestHash,
		Sequence:       summaryField,
		Operator:       e.cfg.Operator,
		ResultOverride: e.cfg.ResultOverride,
		Note:           e.cfg.Note,
		CLIAssetID:     cliAssetID,
		Tracker:        trackerOutcome,
		SchemaName:     e.cfg.SchemaName,
		SchemaVersion:  e.cfg.SchemaVersion,
		PolicyVersion:  e.cfg.PolicyVersion,
		ToolVersion:    ToolVersion,
	})

	if e.cfg.Mutation.Enabled {
		e.logMutation(dir, seq, frameHashes, previousEntries)
	}

	if err := sidecar.Write(path, sc, cfg); err != nil {
		if e.dedupe.First("write-sidecar-error-sequence") {
			e.logger.Error("failed to write sidecar", qclog.String("path", path), qclog.Error(err))
		}
		return
	}
	summary.SidecarsWritten.Add(1)
	summary.SequencesProcessed.Add(1)
	summary.incResult(sc.QCResult)

	xattrtag.Set(dir, "", sc.QCID)
	e.postTrackerResult(ctx, sc)
}

func (e *Engine) logMutation(dir string, seq seqdetect.Sequence, current map[string]string, previousEntries map[string]hashcache.Entry) {
	previous := make(map[string]string, len(seq.Frames))
	for _, frame := range seq.Frames {
		if entry, ok := previousEntries[frame.Name]; ok {
			previous[frame.Name] = entry.ContentHash
		}
	}

	result := mutation.Detect(previous, current, mutation.Config{
		ThresholdFrames:    e.cfg.Mutation.ThresholdFrames,
		ThresholdPercent:   e.cfg.Mutation.ThresholdPercent,
		CountRemovedFrames: e.cfg.Mutation.CountRemovedFrames,
	})
	if !result.Mutated {
		return
	}
	e.logger.Info("sequence mutation detected",
		qclog.String("dir", dir),
		qclog.String("base", seq.Base),
		qclog.Int("changed", len(result.ChangedFrames)),
		qclog.Int("added", len(result.AddedFrames)),
		qclog.Int("removed", len(result.RemovedFrames)))
}

// isSidecarArtifact reports whether name is produced by this package
// itself (a sidecar, a sequence sidecar, or the hash cache) and therefore
// must never be treated as a media candidate.
func isSidecarArtifact(name string, cfg sidecar.Config) bool {
	if strings.HasSuffix(name, cfg.SuffixFile) {
		return true
	}
	if name == cfg.NameSequence || name == "."+cfg.NameSequence {
		return true
	}
	if name == hashcache.DefaultFileName {
		return true
	}
	if name == rootLockName {
		return true
	}
	return false
}

// reconcileMissing enumerates every sidecar under root (regardless of
// which layout mode produced it) and marks as missing any whose asset no
// longer exists on disk (spec.md §4.7).
func (e *Engine) reconcileMissing(root string, summary *Summary) (int64, error) {
	cfg := e.cfg.SidecarConfig()
	var marked int64

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, cfg.SuffixFile) && name != cfg.NameSequence && name != "."+cfg.NameSequence {
			return nil
		}

		sc, err := sidecar.Read(path, e.logger)
		if err != nil || sc == nil {
			return nil
		}
		if sc.ContentState == qcstate.StateMissing {
			return nil
		}

		exists := assetStillExists(sc)
		if exists {
			return nil
		}

		updated := qcstate.MarkMissing(sc, time.Now().UTC())
		if err := sidecar.Write(path, updated, cfg); err != nil {
			if e.dedupe.First("rewrite-missing-sidecar-error") {
				e.logger.Error("failed to rewrite missing sidecar", qclog.String("path", path), qclog.Error(err))
			}
			return nil
		}
		marked++
		summary.SidecarsMarkedMissing.Add(1)
		return nil
	})

	return marked, walkErr
}

func assetStillExists(sc *sidecar.Sidecar) bool {
	if sc.Sequence == nil {
		_, err := os.Stat(sc.AssetPath)
		return err == nil
	}
	entries, err := os.ReadDir(sc.AssetPath)
	if err != nil {
		return false
	}
	prefix := sc.Sequence.Base + sc.Sequence.Separator
	suffix := "." + sc.Sequence.Ext
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(strings.ToLower(name), suffix) {
			return true
		}
	}
	return false
}
