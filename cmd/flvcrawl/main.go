// Package main provides a single-shot crawl: discover rooms, probe each sub-area,
// reconcile into the store file and exit. Scheduling is left to cron or CI.
//
// Usage:
//
//	flvcrawl [--store PATH] [--pages N] [--strict] [--dry-run] [--csv PATH] [--publish]
//
// Flags:
//
//	--store:   store file to read and replace (default: STORE_PATH or data/data.json)
//	--pages:   ranking pages per sort order (default: DISCOVERY_PAGES or 10)
//	--strict:  abort on malformed discovery pages instead of skipping them
//	--dry-run: crawl and reconcile but do not write the store
//	--csv:     also write a CSV export of the resulting store ("-" for stdout)
//	--publish: commit and push the store after writing (uses PUBLISH_* settings)
//
// All other settings come from the same environment variables as the service.
// The exit status is 1 when the run aborts; the store is then left untouched.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/flvwatch/config"
	"github.com/onnwee/flvwatch/crawl"
	"github.com/onnwee/flvwatch/publish"
	"github.com/onnwee/flvwatch/store"
	"github.com/onnwee/flvwatch/telemetry"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("crawl failed", slog.Any("error", err), slog.String("class", crawl.ClassifyError(err).String()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("flvcrawl", flag.ContinueOnError)
	storePath := fs.String("store", cfg.StorePath, "store file to read and replace")
	pages := fs.Int("pages", cfg.DiscoveryPages, "ranking pages per sort order")
	strict := fs.Bool("strict", cfg.StrictPages, "abort on malformed discovery pages")
	dryRun := fs.Bool("dry-run", false, "do not write the store")
	csvPath := fs.String("csv", "", "write a CSV export of the resulting store (\"-\" for stdout)")
	doPublish := fs.Bool("publish", cfg.PublishGit, "commit and push the store after writing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.SetStorePath(*storePath)
	cfg.DiscoveryPages = *pages
	cfg.StrictPages = *strict
	if err := cfg.Validate(); err != nil {
		return err
	}

	telemetry.Init()

	job := crawl.NewJob(cfg)
	job.DryRun = *dryRun
	if *doPublish && !*dryRun {
		job.Publisher = &publish.GitPublisher{
			RepoDir: cfg.PublishRepoDir,
			Remote:  cfg.PublishRemote,
			Branch:  cfg.PublishBranch,
			Timeout: cfg.PublishTimeout,
		}
	}

	sum, err := job.RunOnce(ctx)
	if err != nil {
		return err
	}
	slog.Info("crawl complete",
		slog.String("run_id", sum.RunID),
		slog.Int("sub_areas", sum.SubAreas),
		slog.Int("observations", len(sum.Observations)),
		slog.Int("available", sum.Available()),
		slog.Int("inconclusive", sum.Inconclusive),
		slog.Int("records", sum.Records),
		slog.Bool("dry_run", *dryRun))

	if *csvPath == "" {
		return nil
	}
	st, err := resultStore(cfg.StorePath, sum, *dryRun)
	if err != nil {
		return err
	}
	return writeCSV(*csvPath, st, stdout)
}

// resultStore returns the store as the run left it. A dry run never wrote it, so it is rebuilt in memory.
func resultStore(path string, sum crawl.RunSummary, dryRun bool) (store.Store, error) {
	st, err := store.Load(path)
	if err != nil {
		return store.Store{}, err
	}
	if dryRun {
		st = store.Reconcile(st, sum.Observations, sum.FinishedAt)
	}
	return st, nil
}

func writeCSV(path string, st store.Store, stdout io.Writer) error {
	if path == "-" {
		return store.WriteCSV(stdout, st)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := store.WriteCSV(f, st); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
