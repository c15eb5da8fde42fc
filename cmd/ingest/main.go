package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photo-ingest/internal/app"
	"photo-ingest/internal/config"
	"photo-ingest/internal/ingest"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an IngestApp. The caller must defer app.Close().
func newApp() (*app.IngestApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewIngestApp(cfg, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "ingest",
	Short:        "Deduplicating photo ingest",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Archive Root: %s\n", cfg.ArchiveRoot)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		m := &config.Manager{Format: config.FormatForPath(defaults["config_path"])}
		return m.Write(os.Stdout, cfg)
	},
}

// run command
var (
	runReq      app.RunRequest
	runManifest string
)

var runCmd = &cobra.Command{
	Use:   "run SOURCE",
	Short: "Ingest photos from a source directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := runReq
		req.Source = args[0]

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, runErr := a.Run(ctx, req)
		if report == nil {
			return runErr
		}

		if err := emitManifest(a, report, runManifest, req.DryRun); err != nil {
			return err
		}
		printSummary(os.Stderr, report, req.DryRun)
		return runErr
	},
}

// emitManifest writes the CSV to stdout when stdout is piped or "-" was
// given, to the named file when one was given, and otherwise saves it next
// to the archive for real runs.
func emitManifest(a *app.IngestApp, report *ingest.RunReport, target string, dryRun bool) error {
	switch {
	case target == "-" || (target == "" && !term.IsTerminal(int(os.Stdout.Fd()))):
		return a.WriteManifest(os.Stdout, report)
	case target != "":
		f, err := os.Create(target)
		if err != nil {
			return fmt.Errorf("creating manifest: %w", err)
		}
		if err := a.WriteManifest(f, report); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case dryRun:
		return nil
	}
	path, err := a.SaveManifest(report)
	if err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Manifest: %s\n", path)
	return nil
}

func printSummary(w io.Writer, report *ingest.RunReport, dryRun bool) {
	counts := map[string]int{}
	for _, row := range report.Manifest {
		counts[row.Status]++
	}
	run := report.Run
	prefix := ""
	if dryRun {
		prefix = "[dry run] "
	}
	fmt.Fprintf(w, "%sRun %s %s in %s\n", prefix, run.RunID, run.Status,
		run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond))
	fmt.Fprintf(w, "  new:        %d\n", counts[string(ingest.StatusNew)])
	fmt.Fprintf(w, "  similar:    %d\n", counts[string(ingest.StatusSimilar)])
	fmt.Fprintf(w, "  duplicates: %d\n", counts[string(ingest.StatusDuplicate)])
	fmt.Fprintf(w, "  failed:     %d\n", counts[string(ingest.StateFailed)])
	if report.Results != nil && report.Results.BytesPlaced > 0 {
		fmt.Fprintf(w, "  placed:     %s\n", humanize.IBytes(uint64(report.Results.BytesPlaced)))
	}
	if report.Scan != nil {
		fmt.Fprintf(w, "  unchanged directories: %d of %d\n", report.Scan.Unchanged, len(report.Scan.Dirs))
	}
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fingerprint store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Files:             %d\n", s.FileRecords)
		fmt.Printf("Total size:        %s\n", humanize.IBytes(uint64(s.TotalBytes)))
		fmt.Printf("Perceptual hashes: %d\n", s.PerceptualHashes)
		fmt.Printf("Devices:           %d\n", s.Devices)
		fmt.Printf("Metadata cache:    %d\n", s.MetadataEntries)
		fmt.Printf("Directory cache:   %d\n", s.DirectoryEntries)
		return nil
	},
}

// history command
var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View ingest run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No ingest runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %s  %-10s  %-5s  new:%d dup:%d failed:%d  %s  %s\n",
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Mode,
				r.FilesCommitted,
				r.FilesDuplicate,
				r.FilesFailed,
				duration,
				r.Source,
			)
		}
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the metadata cache",
}

var pruneDays int

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove stale metadata cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.PruneCache(cmd.Context(), pruneDays)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d cache entries\n", n)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	cacheCmd.AddCommand(cachePruneCmd)
	cachePruneCmd.Flags().IntVar(&pruneDays, "days", 90, "Remove entries older than this many days")

	runCmd.Flags().StringVarP(&runReq.Event, "event", "e", "", "Event name appended to the date directory")
	runCmd.Flags().BoolVar(&runReq.Move, "move", false, "Move files instead of copying them")
	runCmd.Flags().BoolVarP(&runReq.DryRun, "dry-run", "n", false, "Plan and report without touching the archive")
	runCmd.Flags().BoolVar(&runReq.RawOnly, "raw-only", false, "Only write the structure-preserving raw backup")
	runCmd.Flags().BoolVar(&runReq.OrganizedOnly, "organized-only", false, "Skip the raw backup even if enabled in config")
	runCmd.Flags().StringVar(&runManifest, "manifest", "", `Write the CSV manifest to this file ("-" for stdout)`)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(cacheCmd)
}
