// Command flvwatch is the long-running crawler service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres (DB_DSN) and runs migrations for the run mirror.
//   - Runs the crawl on start and then every CRAWL_INTERVAL, never two at once.
//   - Optionally commits and pushes the store after each run (PUBLISH_GIT).
//   - Serves the store plus /healthz, /readyz, /status and /metrics over HTTP.
//
// Shutdown is graceful on SIGINT/SIGTERM; an in-flight run is abandoned without touching the store.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/flvwatch/config"
	"github.com/onnwee/flvwatch/crawl"
	"github.com/onnwee/flvwatch/db"
	"github.com/onnwee/flvwatch/publish"
	"github.com/onnwee/flvwatch/server"
	"github.com/onnwee/flvwatch/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("flvwatch", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job := crawl.NewJob(cfg)
	deps := server.Deps{StorePath: cfg.StorePath, Job: job, AdminToken: cfg.AdminToken}

	if cfg.DBDsn != "" {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		// Versioned migrations first; the idempotent statements cover databases golang-migrate cannot lock.
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		var migrateErr error
		if cfg.MigrationsPath != "" {
			migrateErr = db.RunMigrationsFromPath(database, cfg.MigrationsPath)
		} else {
			migrateErr = db.RunMigrations(database)
		}
		if err := migrateErr; err != nil {
			slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
				slog.Any("err", err),
				slog.String("component", "db_migrate"))
			if err := db.Migrate(ctx, database); err != nil {
				slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
				os.Exit(1)
			}
		}
		if v, dirty, err := db.GetMigrationVersion(database); err == nil {
			slog.Info("database schema ready", slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty), slog.String("component", "db_migrate"))
		}
		mirror := &db.Mirror{DB: database}
		job.Recorder = mirror
		deps.Runs = mirror
		deps.DB = database
	} else {
		slog.Info("run mirror disabled (DB_DSN not set)")
	}

	if cfg.PublishGit {
		job.Publisher = &publish.GitPublisher{
			RepoDir: cfg.PublishRepoDir,
			Remote:  cfg.PublishRemote,
			Branch:  cfg.PublishBranch,
			Timeout: cfg.PublishTimeout,
		}
		slog.Info("git publishing enabled", slog.String("repo", cfg.PublishRepoDir), slog.String("remote", cfg.PublishRemote))
	}

	slog.Info("flvwatch starting",
		slog.String("store", cfg.StorePath),
		slog.String("addr", cfg.HTTPAddr),
		slog.Bool("mirror", cfg.DBDsn != ""),
		slog.Bool("publish", cfg.PublishGit),
		slog.Bool("tracing", telemetry.IsTracingEnabled()))
	go job.Start(ctx, cfg.CrawlInterval, cfg.CrawlOnStart)

	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}
