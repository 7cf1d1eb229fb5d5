// Package qcconfig implements the configuration surface (spec.md C8):
// resolving layout mode, policy/schema versions, suffix/name overrides,
// worker count, minimum sequence length, and per-root asset-id pairing
// from a layered file -> environment -> CLI-flags stack. Grounded on the
// teacher's internal/config/config.go (TOML-decode-then-normalize-then-
// validate, CreateSample, expandPath), generalized from spindle's large
// nested config into the smaller, flatter surface this crawler needs, and
// on original_source's config.py/sidecar.py for the environment variable
// names and defaults.
package qcconfig

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"qc-crawl/internal/seqdetect"
	"qc-crawl/internal/sidecar"
)

//go:embed sample_config.toml
var sampleConfig string

// TrackerConfig configures the external tracker client.
type TrackerConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LoggingConfig configures qclog.New.
type LoggingConfig struct {
	Level       string   `toml:"level"`
	Format      string   `toml:"format"`
	OutputPaths []string `toml:"output_paths"`
}

// MutationConfig configures the supplemental sequence mutation detector.
type MutationConfig struct {
	Enabled            bool    `toml:"enabled"`
	ThresholdFrames    int     `toml:"threshold_frames"`
	ThresholdPercent   float64 `toml:"threshold_percent"`
	CountRemovedFrames bool    `toml:"count_removed_frames"`
}

// Config is the fully resolved run configuration (spec.md §4.8).
type Config struct {
	Roots          []string `toml:"-"` // positional CLI args only
	Workers        int      `toml:"workers"`
	MinSeq         int      `toml:"min_seq"`
	SidecarMode    string   `toml:"sidecar_mode"`
	Operator       string   `toml:"operator"`
	ResultOverride string   `toml:"-"` // CLI --result only
	Note           string   `toml:"-"` // CLI --note only
	AssetIDs       []string `toml:"-"` // CLI --asset-id (repeatable) only

	PolicyVersion string   `toml:"policy_version"`
	SchemaName    string   `toml:"schema_name"`
	SchemaVersion string   `toml:"schema_version"`
	Extensions    []string `toml:"extensions"`

	SuffixFile   string `toml:"-"` // env QC_SIDE_SUFFIX_FILE only
	NameSequence string `toml:"-"` // env QC_SIDE_NAME_SEQUENCE only

	Tracker  TrackerConfig  `toml:"tracker"`
	Logging  LoggingConfig  `toml:"logging"`
	Mutation MutationConfig `toml:"mutation"`
}

// Default returns the built-in defaults (spec.md §4.8's Default column),
// before any file/env/flag layering is applied.
func Default() Config {
	return Config{
		Workers:       0, // 0 resolves to runtime.NumCPU() in normalize()
		MinSeq:        2,
		SidecarMode:   string(sidecar.ModeSubdir),
		PolicyVersion: "2025.11.0",
		SchemaName:    sidecar.CurrentSchemaName,
		SchemaVersion: sidecar.CurrentSchemaVersion,
		Extensions:    defaultExtensionList(),
		SuffixFile:    ".qc.json",
		NameSequence:  "qc.sequence.json",
		Tracker:       TrackerConfig{TimeoutSeconds: 10},
		Logging:       LoggingConfig{Level: "info", Format: "console", OutputPaths: []string{"stdout"}},
	}
}

func defaultExtensionList() []string {
	out := make([]string, 0, len(seqdetect.DefaultExtensions))
	for ext := range seqdetect.DefaultExtensions {
		out = append(out, ext)
	}
	return out
}

// Load reads path (if it exists), layers environment-variable overrides on
// top, then normalizes and validates. An empty path skips the file layer
// entirely — CLI flags and environment variables still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("qcconfig: read %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("qcconfig: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides mirrors original_source's sidecar.py/config.py getters
// (spec.md §6). The tracker URL and key can be overridden again afterwards
// by the --trak-url and --trak-token flags; the other variables have no CLI
// equivalent.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QC_POLICY_VERSION"); v != "" {
		cfg.PolicyVersion = v
	}
	if v := os.Getenv("QC_SCHEMA_NAME"); v != "" {
		cfg.SchemaName = v
	}
	if v := os.Getenv("QC_SCHEMA_VERSION"); v != "" {
		cfg.SchemaVersion = v
	}
	if v := os.Getenv("QC_SIDE_SUFFIX_FILE"); v != "" {
		cfg.SuffixFile = v
	}
	if v := os.Getenv("QC_SIDE_NAME_SEQUENCE"); v != "" {
		cfg.NameSequence = v
	}
	if v := os.Getenv("TRAK_BASE_URL"); v != "" {
		cfg.Tracker.BaseURL = v
	}
	if v := os.Getenv("TRAK_ASSET_TRACKER_API_KEY"); v != "" {
		cfg.Tracker.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// normalize fills in runtime defaults (CPU count, system user) and
// lowercases/validates enumerated fields.
func (c *Config) normalize() error {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MinSeq <= 0 {
		c.MinSeq = 2
	}
	c.SidecarMode = strings.ToLower(strings.TrimSpace(c.SidecarMode))
	if c.SidecarMode == "" {
		c.SidecarMode = string(sidecar.ModeSubdir)
	}
	if c.Operator == "" {
		c.Operator = systemUser()
	}
	if c.ResultOverride == "" {
		c.ResultOverride = "pending"
	}
	c.ResultOverride = strings.ToLower(strings.TrimSpace(c.ResultOverride))
	if len(c.Extensions) == 0 {
		c.Extensions = defaultExtensionList()
	}
	for i, ext := range c.Extensions {
		c.Extensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	if c.Tracker.TimeoutSeconds <= 0 {
		c.Tracker.TimeoutSeconds = 10
	}
	return c.validateFields()
}

// Validate enforces every invariant a fatal-at-startup configuration error
// must catch, including that at least one root was supplied (spec.md §7:
// "Invalid configuration: fatal at startup"). Call this once Roots has been
// populated from CLI positional arguments; Load itself only validates the
// fields it alone is responsible for.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return errors.New("qcconfig: at least one root is required")
	}
	return c.validateFields()
}

// validateFields checks everything Load can validate on its own, before
// Roots has necessarily been populated by the CLI layer.
func (c *Config) validateFields() error {
	switch sidecar.Mode(c.SidecarMode) {
	case sidecar.ModeInline, sidecar.ModeDot, sidecar.ModeSubdir:
	default:
		return fmt.Errorf("qcconfig: unknown sidecar mode %q", c.SidecarMode)
	}
	switch c.ResultOverride {
	case "pending", "pass", "fail":
	default:
		return fmt.Errorf("qcconfig: unknown result override %q", c.ResultOverride)
	}
	if c.Workers <= 0 {
		return errors.New("qcconfig: workers must be positive")
	}
	if c.MinSeq <= 0 {
		return errors.New("qcconfig: min_seq must be positive")
	}
	return nil
}

// ExtensionSet returns Extensions as the lookup set seqdetect.Group wants.
func (c *Config) ExtensionSet() map[string]struct{} {
	out := make(map[string]struct{}, len(c.Extensions))
	for _, ext := range c.Extensions {
		out[ext] = struct{}{}
	}
	return out
}

// SidecarConfig projects the relevant fields into a sidecar.Config.
func (c *Config) SidecarConfig() sidecar.Config {
	return sidecar.Config{
		Mode:          sidecar.Mode(c.SidecarMode),
		SuffixFile:    c.SuffixFile,
		NameSequence:  c.NameSequence,
		SchemaName:    c.SchemaName,
		SchemaVersion: c.SchemaVersion,
	}
}

// ResolveAssetIDs pairs --asset-id values to roots positionally; an
// under-supplied tail of roots reuses the last provided asset id (spec.md
// §9's resolved Open Question). Returns "" for a root with no applicable
// asset id.
func ResolveAssetIDs(roots, assetIDs []string) map[string]string {
	out := make(map[string]string, len(roots))
	var last string
	for i, root := range roots {
		switch {
		case i < len(assetIDs):
			last = assetIDs[i]
		case len(assetIDs) == 0:
			last = ""
		}
		out[root] = last
	}
	return out
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("qcconfig: create directory %q: %w", dir, err)
		}
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

func systemUser() string {
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

// ParseTimeoutSeconds parses a tracker timeout given as whole seconds; an
// empty string yields 0. No CLI flag calls it.
func ParseTimeoutSeconds(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
