// Command enchimmo is the operator console for the licitor.com crawler.
// It runs the scrape workflows, schedules them, and inspects or cancels
// the currently running job.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"

	"enchimmo/internal/client"
	"enchimmo/internal/config"
	"enchimmo/internal/console"
	"enchimmo/internal/jobs"
	"enchimmo/internal/logging"
	"enchimmo/internal/migrate"
	"enchimmo/internal/progress"
	"enchimmo/internal/scrape"
	"enchimmo/internal/store"
)

const usageText = `enchimmo crawls judicial real-estate auction listings from licitor.com.

Usage:
  enchimmo [flags] <command> [args]

Commands:
  scrape incremental                    refresh tribunals, upcoming hearings, new details
  scrape full                           five-phase campaign including the backfill passes
  scrape history [--max-hearings N] [--tribunals a,b]
                                        walk the adjudication archive
  scrape backfill [--limit N]           fetch missing detail pages
  scrape map-backfill [--limit N]       fill missing starting prices
  scrape surface-backfill [--limit N]   fill missing surfaces
  scrape schedule --cron "0 6 * * *" [mode]
                                        run a mode on a cron schedule
  status                                print the current job's progress
  cancel                                ask the running job to stop
  migrate                               apply database migrations and exit

Flags:
`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	dbPath := flag.String("db", "", "database path (overrides config)")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	logLevel := flag.String("log-level", "", "log level: DEBUG, INFO, WARNING, ERROR")
	logFormat := flag.String("log-format", "", "log format: text or json")
	noBar := flag.Bool("no-bar", false, "disable the terminal progress bar")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	logger := logging.NewLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch flag.Arg(0) {
	case "scrape":
		os.Exit(runScrape(cfg, logger, flag.Args()[1:], *noBar))
	case "status":
		console.PrintStatus(os.Stdout, cfg.Data.Dir)
	case "cancel":
		os.Exit(runCancel(cfg, logger))
	case "migrate":
		if err := migrate.Run(cfg.Database.Path); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		logger.Info("migrations applied", "db", cfg.Database.Path)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}
}

func runScrape(cfg *config.Config, logger *slog.Logger, args []string, noBar bool) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "scrape: missing mode (incremental|full|history|backfill|map-backfill|surface-backfill|schedule)")
		return 2
	}
	mode := args[0]

	fs := flag.NewFlagSet("scrape "+mode, flag.ExitOnError)
	limit := fs.Int("limit", cfg.Backfill.Limit, "max listings per backfill batch")
	maxHearings := fs.Int("max-hearings", cfg.History.MaxHearingsPerTribunal, "max hearing pages per tribunal")
	tribunals := fs.String("tribunals", "", "comma-separated tribunal slugs (history mode)")
	cronExpr := fs.String("cron", "", "cron expression (schedule mode)")
	fs.Parse(args[1:])

	// Migrations run before every scrape so a fresh database just works.
	if err := migrate.Run(cfg.Database.Path); err != nil {
		logger.Error("migrations failed", "db", cfg.Database.Path, "error", err)
		return 1
	}
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("open database failed", "db", cfg.Database.Path, "error", err)
		return 1
	}
	defer db.Close()
	st := store.New(db)

	httpClient, err := client.New(cfg.Client, cfg.Robots, logger)
	if err != nil {
		logger.Error("build http client failed", "error", err)
		return 1
	}
	sc := scrape.New(httpClient, logger)

	var obs []jobs.Observer
	if console.Interactive() && !noBar {
		obs = append(obs, console.NewBar("scrape "+mode))
	}
	orch := jobs.New(cfg, st, sc, logger, obs...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == "schedule" {
		return runSchedule(ctx, orch, cfg, logger, *cronExpr, fs.Args(), *limit, *maxHearings, *tribunals)
	}

	if progress.IsJobRunning(cfg.Data.Dir) {
		logger.Error("another scrape job is already running", "data", cfg.Data.Dir)
		return 1
	}
	err = runMode(ctx, orch, mode, *limit, *maxHearings, *tribunals)
	switch {
	case errors.Is(err, jobs.ErrCancelled):
		return 0
	case errors.Is(err, errUnknownMode):
		fmt.Fprintf(os.Stderr, "unknown scrape mode %q\n", mode)
		return 2
	case err != nil:
		logger.Error("scrape failed", "mode", mode, "error", err)
		return 1
	}
	return 0
}

var errUnknownMode = errors.New("unknown scrape mode")

func runMode(ctx context.Context, orch *jobs.Orchestrator, mode string, limit, maxHearings int, tribunals string) error {
	switch mode {
	case "incremental":
		return orch.RunIncremental(ctx)
	case "full":
		return orch.RunFull(ctx, limit)
	case "history":
		return orch.RunHistory(ctx, maxHearings, splitSlugs(tribunals))
	case "backfill":
		return orch.RunDetailBackfill(ctx, limit)
	case "map-backfill":
		return orch.RunMapBackfill(ctx, limit)
	case "surface-backfill":
		return orch.RunSurfaceBackfill(ctx, limit)
	}
	return fmt.Errorf("%w: %s", errUnknownMode, mode)
}

// runSchedule fires one scrape mode on a cron schedule until the process
// is interrupted. A firing that would overlap a still-running job is
// skipped rather than queued.
func runSchedule(ctx context.Context, orch *jobs.Orchestrator, cfg *config.Config, logger *slog.Logger, cronExpr string, args []string, limit, maxHearings int, tribunals string) int {
	if cronExpr == "" {
		fmt.Fprintln(os.Stderr, "scrape schedule: --cron expression required")
		return 2
	}
	mode := "incremental"
	if len(args) > 0 {
		mode = args[0]
	}
	switch mode {
	case "incremental", "full", "history", "backfill", "map-backfill", "surface-backfill":
	default:
		fmt.Fprintf(os.Stderr, "scrape schedule: unknown mode %q\n", mode)
		return 2
	}

	c := cron.New()
	if _, err := c.AddFunc(cronExpr, func() {
		if progress.IsJobRunning(cfg.Data.Dir) {
			logger.Warn("previous job still running, skipping scheduled run", "mode", mode)
			return
		}
		logger.Info("scheduled run starting", "mode", mode)
		if err := runMode(ctx, orch, mode, limit, maxHearings, tribunals); err != nil && !errors.Is(err, jobs.ErrCancelled) {
			logger.Error("scheduled run failed", "mode", mode, "error", err)
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "scrape schedule: bad --cron %q: %v\n", cronExpr, err)
		return 2
	}

	c.Start()
	logger.Info("scheduler started", "cron", cronExpr, "mode", mode)
	<-ctx.Done()
	logger.Info("scheduler stopping")
	<-c.Stop().Done()
	return 0
}

func runCancel(cfg *config.Config, logger *slog.Logger) int {
	if !progress.IsJobRunning(cfg.Data.Dir) {
		fmt.Println("no scrape job is running")
		return 0
	}
	if err := progress.RequestCancel(cfg.Data.Dir); err != nil {
		logger.Error("write cancel flag failed", "error", err)
		return 1
	}
	fmt.Println("cancel requested, the job stops at its next checkpoint")
	return 0
}

func splitSlugs(s string) []string {
	if s == "" {
		return nil
	}
	var slugs []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			slugs = append(slugs, part)
		}
	}
	return slugs
}
