package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/worker"
)

var (
	concurrency  int
	batchTimeout time.Duration
	reportPath   string
	topN         int
	userAgent    string
	maxBytes     int64
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file|url|->",
	Short: "Import an IOC list and score every indicator in parallel",
	Long: `Batch reads CSV records of the form

  type,value,feed[,timestamp]

from a file, an http(s) URL or stdin ("-"). Sightings of the same indicator
from different feeds are merged into one provenance record in the store,
then every distinct indicator is scored with a bounded worker pool.

Malformed lines are reported with their line number and skipped.

Example:
  iocscore batch feeds.csv
  iocscore batch https://intel.example/export.csv --concurrency 16
  cat export.csv | iocscore batch - --report run.json --top 20`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", model.DefaultConfig().Concurrency.Workers, "number of concurrent scoring workers")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for the run")
	batchCmd.Flags().StringVar(&reportPath, "report", "", "write the full JSON report to this path")
	batchCmd.Flags().IntVar(&topN, "top", 10, "number of highest-scoring indicators to print")
	batchCmd.Flags().StringVar(&userAgent, "ua", "iocscore/0.1 (+https://github.com/ppiankov/iocscore)", "HTTP User-Agent for URL inputs")
	batchCmd.Flags().Int64Var(&maxBytes, "max-bytes", 64<<20, "max bytes to read from URL inputs")

	_ = viper.BindPFlag("concurrency.workers", batchCmd.Flags().Lookup("concurrency"))
}

func runBatch(cmd *cobra.Command, args []string) error {
	location := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx, cfg, bootOptions{withStore: true, withMetrics: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", rule)
	fmt.Fprintf(os.Stderr, "  iocscore Batch Import\n")
	fmt.Fprintf(os.Stderr, "%s\n", rule)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input:        %s\n", location)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Store:        %s\n", storeLabel(cfg.Store.Driver, cfg.Store.DSN))
	fmt.Fprintf(os.Stderr, "  Model:        %s\n", modelLabel(a.engine.ModelVersion()))
	fmt.Fprintf(os.Stderr, "  Rules:        %s\n", a.rules.Current().Label())
	fmt.Fprintf(os.Stderr, "\n")

	in, err := worker.OpenInput(ctx, location, worker.NewFetcher(30*time.Second, userAgent, maxBytes))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	importer := worker.NewImporter(a.store, a.engine, worker.Options{
		Workers:           cfg.Concurrency.Workers,
		RequestsPerSecond: cfg.RateLimiting.RequestsPerSecond,
		Burst:             cfg.RateLimiting.BurstSize,
		Metrics:           a.metrics,
		Logger:            a.log,
	})

	rep, err := importer.Import(ctx, in)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if reportPath != "" {
		if err := writeJSON(reportPath, rep); err != nil {
			return err
		}
	}

	printReport(cmd.OutOrStdout(), rep, topN)
	return nil
}

func printReport(w io.Writer, rep *worker.Report, n int) {
	for _, bad := range rep.Invalid {
		fmt.Fprintf(os.Stderr, "✗ line %d: %s\n", bad.Line, bad.Err)
	}

	shown := 0
	for _, r := range rep.Results {
		if r.Error != "" {
			fmt.Fprintf(os.Stderr, "✗ %s %s: %s\n", r.Type, r.Value, r.Error)
			continue
		}
		if shown >= n {
			continue
		}
		s := r.Assessment.Score
		fmt.Fprintf(w, "%3d  %-8s  %-6s  %s\n", s.FinalScore, s.Tier, r.Type, r.Value)
		shown++
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", rule)
	fmt.Fprintf(os.Stderr, "  Batch Complete (run %s)\n", rep.RunID)
	fmt.Fprintf(os.Stderr, "%s\n", rule)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Sightings:   %d\n", rep.Records)
	fmt.Fprintf(os.Stderr, "  Indicators:  %d\n", rep.Distinct)
	fmt.Fprintf(os.Stderr, "  Failures:    %d\n", rep.Failed)
	fmt.Fprintf(os.Stderr, "  Invalid:     %d\n", len(rep.Invalid))
	fmt.Fprintf(os.Stderr, "  Elapsed:     %v\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "\n")
}

func writeJSON(path string, v any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func storeLabel(driver, dsn string) string {
	if driver == "" {
		driver = "memory"
	}
	if dsn == "" {
		return driver
	}
	return driver + " (" + dsn + ")"
}

func modelLabel(version string) string {
	if version == "" {
		return "none (rule-only)"
	}
	return version
}
