package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"qc-crawl/internal/crawl"
	"qc-crawl/internal/preflight"
	"qc-crawl/internal/qcconfig"
	"qc-crawl/internal/qclog"
	"qc-crawl/internal/tracker"
)

type runFlags struct {
	configPath  string
	workers     int
	minSeq      int
	sidecarMode string
	operator    string
	result      string
	note        string
	assetIDs    []string
	trakURL     string
	trakToken   string
	jsonOutput  bool
	noColor     bool
	noProgress  bool
}

func newRunCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "crawl ROOT [ROOT...]",
		Short: "Crawl one or more roots, writing/refreshing QC sidecars",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, flags)
		},
	}

	registerRunFlags(cmd, &flags)
	return cmd
}

// newSignoffCommand is a thin wrapper over crawl that requires an explicit
// operator verdict, matching spec.md's distinction between a nightly sweep
// (qc_result always "pending") and an operator signoff run (qc_result
// "pass"/"fail", which mints a fresh qc_id).
func newSignoffCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "signoff ROOT [ROOT...]",
		Short: "Record an operator QC verdict (pass or fail) for one or more roots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.result != "pass" && flags.result != "fail" {
				return fmt.Errorf("signoff requires --result pass or --result fail, got %q", flags.result)
			}
			return runCrawl(cmd, args, flags)
		},
	}

	registerRunFlags(cmd, &flags)
	return cmd
}

func registerRunFlags(cmd *cobra.Command, flags *runFlags) {
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "Worker pool size (0 = use config value, CPU count by default)")
	cmd.Flags().IntVar(&flags.minSeq, "min-seq", 0, "Minimum frame count for a sequence (0 = use config default)")
	cmd.Flags().StringVar(&flags.sidecarMode, "sidecar-mode", "", "Sidecar layout: inline, dot, or subdir")
	cmd.Flags().StringVar(&flags.operator, "operator", "", "Operator name recorded in sidecars (default: $USER)")
	cmd.Flags().StringVar(&flags.result, "result", "", "QC verdict to apply: pass, fail, or pending")
	cmd.Flags().StringVar(&flags.note, "note", "", "Free-text note recorded in sidecars")
	cmd.Flags().StringArrayVar(&flags.assetIDs, "asset-id", nil, "Asset id for a root, paired positionally (repeatable)")
	cmd.Flags().StringVar(&flags.trakURL, "trak-url", "", "External tracker base URL (enables tracker lookups)")
	cmd.Flags().StringVar(&flags.trakToken, "trak-token", "", "External tracker API token")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Emit the run summary as JSON instead of a table")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "Disable colorized summary output")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the live progress bar")
}

func runCrawl(cmd *cobra.Command, roots []string, flags runFlags) error {
	cfg, err := qcconfig.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg.Roots = roots
	applyRunFlags(cfg, flags)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := preflight.CheckRoots(cfg.Roots); err != nil {
		return err
	}

	logger, err := qclog.New(qclog.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	var trk tracker.Tracker
	if cfg.Tracker.BaseURL != "" {
		trk = tracker.New(cfg.Tracker.BaseURL, cfg.Tracker.APIKey,
			tracker.WithTimeout(time.Duration(cfg.Tracker.TimeoutSeconds)*time.Second),
			tracker.WithLogger(logger))
	}

	engine := crawl.New(cfg, trk, logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	done := make(chan struct{})
	if !flags.noProgress {
		go renderProgress(cmd, engine, done)
	}

	snap, runErr := engine.Run(ctx)
	close(done)

	if err := renderSummary(cmd, snap, flags); err != nil {
		return err
	}
	return runErr
}

func applyRunFlags(cfg *qcconfig.Config, flags runFlags) {
	if flags.workers > 0 {
		cfg.Workers = flags.workers
	}
	if flags.minSeq > 0 {
		cfg.MinSeq = flags.minSeq
	}
	if flags.sidecarMode != "" {
		cfg.SidecarMode = flags.sidecarMode
	}
	if flags.operator != "" {
		cfg.Operator = flags.operator
	}
	if flags.result != "" {
		cfg.ResultOverride = flags.result
	}
	if flags.note != "" {
		cfg.Note = flags.note
	}
	if len(flags.assetIDs) > 0 {
		cfg.AssetIDs = flags.assetIDs
	}
	if flags.trakURL != "" {
		cfg.Tracker.BaseURL = flags.trakURL
	}
	if flags.trakToken != "" {
		cfg.Tracker.APIKey = flags.trakToken
	}
}
