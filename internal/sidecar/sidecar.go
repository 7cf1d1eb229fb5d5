// Package sidecar implements the sidecar store (spec.md C4): naming,
// reading with schema migration, and atomic writing of the per-asset QC
// JSON record under one of three layout modes. Grounded on the teacher's
// internal/encodingstate/snapshot.go (typed-record-plus-JSON persistence)
// and internal/atomicfile for the write discipline, generalized from a
// single queue-relative snapshot path to the three inline/dot/subdir
// layouts original_source's sidecar.py computes from G_SIDECAR_MODE.
package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"qc-crawl/internal/atomicfile"
	"qc-crawl/internal/qchash"
	"qc-crawl/internal/qclog"
)

// Mode selects where a sidecar lives relative to its asset.
type Mode string

const (
	ModeInline Mode = "inline"
	ModeDot    Mode = "dot"
	ModeSubdir Mode = "subdir"
)

// CurrentSchemaVersion and CurrentSchemaName are the values this build
// writes; env overrides are applied by qcconfig before Config reaches here.
const (
	CurrentSchemaVersion = "1.0.0"
	CurrentSchemaName    = "qc-crawl-sidecar"
)

// ErrUnknownSchemaVersion is returned by Read when a sidecar's
// schema_version is newer than this build understands (spec.md §4.4.1,
// §7: "skip asset, log error, do not overwrite").
var ErrUnknownSchemaVersion = errors.New("sidecar: schema_version newer than this build supports")

// Config carries the layout and naming knobs resolved by qcconfig (C8).
type Config struct {
	Mode          Mode
	SuffixFile    string // default ".qc.json"
	NameSequence  string // default "qc.sequence.json"
	SchemaName    string
	SchemaVersion string
}

// DefaultConfig matches original_source's environment defaults.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeSubdir,
		SuffixFile:    ".qc.json",
		NameSequence:  "qc.sequence.json",
		SchemaName:    CurrentSchemaName,
		SchemaVersion: CurrentSchemaVersion,
	}
}

// TrackerStatus records the outcome of the most recent tracker interaction.
type TrackerStatus struct {
	HTTPCode int    `json:"http_code"`
	Status   string `json:"status"`
}

// SequenceSummary is the sidecar-embedded shape of a sequence's frame-range
// analysis (spec.md §3 Sequence entity), decoupled from seqdetect.Sequence
// so the on-disk schema does not bend to that package's internal Frames
// slice.
type SequenceSummary struct {
	Base       string             `json:"base"`
	Separator  string             `json:"separator"`
	Ext        string             `json:"ext"`
	Pad        int                `json:"pad"`
	First      string             `json:"first"`
	Last       string             `json:"last"`
	FrameMin   int64              `json:"frame_min"`
	FrameMax   int64              `json:"frame_max"`
	FrameCount int                `json:"frame_count"`
	RangeCount int                `json:"range_count"`
	Holes      int                `json:"holes"`
	CheapFP    qchash.Fingerprint `json:"cheap_fp"`
}

// Sidecar is the typed, current-schema record (spec.md §3). Field order is
// the on-disk key order: encoding/json preserves struct declaration order,
// which is this package's answer to "canonicalize field order" without a
// hand-rolled marshaler.
type Sidecar struct {
	SchemaName      string           `json:"schema_name"`
	SchemaVersion   string           `json:"schema_version"`
	QCID            string           `json:"qc_id"`
	QCTime          string           `json:"qc_time"`
	QCResult        string           `json:"qc_result"`
	Operator        string           `json:"operator"`
	Notes           string           `json:"notes"`
	ToolVersion     string           `json:"tool_version"`
	PolicyVersion   string           `json:"policy_version"`
	AssetID         *string          `json:"asset_id"`
	AssetPath       string           `json:"asset_path"`
	ContentHash     string           `json:"content_hash"`
	PrevContentHash string           `json:"prev_content_hash,omitempty"`
	ContentState    string           `json:"content_state"`
	Sequence        *SequenceSummary `json:"sequence"`
	LastValidQCID   string           `json:"last_valid_qc_id,omitempty"`
	LastValidQCTime string           `json:"last_valid_qc_time,omitempty"`
	TrackerStatus   *TrackerStatus   `json:"tracker_status,omitempty"`
}

// PathForFile maps a Single's asset path to its sidecar path.
func PathForFile(assetPath string, cfg Config) string {
	dir := filepath.Dir(assetPath)
	base := filepath.Base(assetPath)
	switch cfg.Mode {
	case ModeDot:
		return filepath.Join(dir, "."+base+cfg.SuffixFile)
	case ModeSubdir:
		return filepath.Join(dir, ".qc", base+cfg.SuffixFile)
	default:
		return filepath.Join(dir, base+cfg.SuffixFile)
	}
}

// PathForSequence maps a Sequence's containing directory to its sidecar path.
func PathForSequence(dir string, cfg Config) string {
	switch cfg.Mode {
	case ModeDot:
		return filepath.Join(dir, "."+cfg.NameSequence)
	case ModeSubdir:
		return filepath.Join(dir, ".qc", cfg.NameSequence)
	default:
		return filepath.Join(dir, cfg.NameSequence)
	}
}

// hidden reports whether paths for this mode should carry the Windows
// hidden attribute on write (dot and subdir names are meant to be
// out-of-the-way; inline names are ordinary sibling files).
func hidden(mode Mode) bool {
	return mode == ModeDot || mode == ModeSubdir
}

// Read loads and migrates the sidecar at path. Absence and corruption both
// return (nil, nil) — the caller treats a missing prior sidecar and an
// unreadable one identically (spec.md §7). A schema_version newer than
// this build understands returns ErrUnknownSchemaVersion; the caller must
// leave that asset untouched.
func Read(path string, logger *slog.Logger) (*Sidecar, error) {
	logger = qclog.Component(logger, "sidecar")

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to read sidecar, treating as absent",
				qclog.String("path", path), qclog.Error(err))
		}
		return nil, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("corrupt sidecar, treating as absent",
			qclog.String("path", path), qclog.Error(err))
		return nil, nil
	}

	coerceDefaults(raw)

	if err := migrate(raw); err != nil {
		if errors.Is(err, ErrUnknownSchemaVersion) {
			logger.Error("sidecar schema newer than supported, skipping asset",
				qclog.String("path", path))
			return nil, err
		}
		return nil, err
	}

	migratedJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("sidecar: re-marshal migrated payload: %w", err)
	}
	var s Sidecar
	if err := json.Unmarshal(migratedJSON, &s); err != nil {
		return nil, fmt.Errorf("sidecar: decode migrated payload: %w", err)
	}
	return &s, nil
}

// Write serializes s with stable field ordering and persists it atomically.
func Write(path string, s *Sidecar, cfg Config) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("sidecar: marshal %s: %w", path, err)
	}
	if err := atomicfile.Write(path, data, hidden(cfg.Mode)); err != nil {
		return fmt.Errorf("sidecar: write %s: %w", path, err)
	}
	return nil
}

func coerceDefaults(raw map[string]any) {
	if v, ok := raw["schema_name"]; !ok || v == nil || v == "" {
		raw["schema_name"] = CurrentSchemaName
	}
	if v, ok := raw["schema_version"]; !ok || v == nil || v == "" {
		raw["schema_version"] = "1.0.0"
	}
}

// compareVersions returns -1, 0, or 1 comparing dotted numeric versions
// component-wise; a non-numeric component compares as greater (conservative:
// treat the unparseable value as "ahead", forcing the unknown-version path).
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		var aErr, bErr error
		if i < len(as) {
			av, aErr = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, bErr = strconv.Atoi(bs[i])
		}
		if aErr != nil || bErr != nil {
			if aErr != nil && bErr == nil {
				return 1
			}
			if bErr != nil && aErr == nil {
				return -1
			}
			continue
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
