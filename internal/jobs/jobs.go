// Package jobs sequences the scrape workflows: discovery, hearing walks,
// detail enrichment, the backfill passes over historical rows, and alert
// matching. Every workflow writes a scrape_log row, reports through the
// file-based progress record, and honours the cancel flag between items.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"enchimmo/internal/alerts"
	"enchimmo/internal/config"
	"enchimmo/internal/model"
	"enchimmo/internal/progress"
	"enchimmo/internal/scrape"
	"enchimmo/internal/store"
)

// Job type values stored in scrape_log.scrape_type. Centralizing these
// here avoids scattering string literals across packages.
const (
	JobIncremental     = "incremental"
	JobFullIndex       = "full_index"
	JobHistory         = "history"
	JobDetailBackfill  = "detail_backfill"
	JobMapBackfill     = "map_backfill"
	JobSurfaceBackfill = "surface_backfill"
)

// ErrCancelled is returned by a workflow that stopped because the cancel
// flag was set or its context ended. The scrape_log row is still closed
// and the progress record reads "cancelled".
var ErrCancelled = errors.New("scrape cancelled")

// Observer receives the same progress events the file record gets, for
// in-process displays such as a terminal bar.
type Observer interface {
	SetPhase(label string, number, total int)
	SetTotal(total int)
	Tick(processed, total int, currentItem string)
	Done(status string)
}

// Orchestrator runs the scrape workflows against one store and one
// scraper. It is not safe for concurrent workflows over the same data
// directory; the progress file assumes a single running job.
type Orchestrator struct {
	cfg       *config.Config
	store     *store.Store
	scraper   *scrape.Scraper
	alerts    *alerts.Engine
	logger    *slog.Logger
	observers []Observer
}

// New constructs an Orchestrator. Observers are optional.
func New(cfg *config.Config, st *store.Store, sc *scrape.Scraper, logger *slog.Logger, obs ...Observer) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		scraper:   sc,
		alerts:    alerts.NewEngine(st, logger),
		logger:    logger,
		observers: obs,
	}
}

func (o *Orchestrator) dataDir() string { return o.cfg.Data.Dir }

// checkCancel maps both the cancel flag and context cancellation to
// ErrCancelled. Workflows call it at the head of every item loop.
func (o *Orchestrator) checkCancel(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	if progress.CancelRequested(o.dataDir()) {
		return ErrCancelled
	}
	return nil
}

// tracker fans progress updates out to the file writer and any
// observers. Write failures on the progress file are logged, never
// fatal: losing the status display must not abort a long scrape.
type tracker struct {
	pw     *progress.Writer
	obs    []Observer
	logger *slog.Logger
}

func (o *Orchestrator) track(pw *progress.Writer) *tracker {
	return &tracker{pw: pw, obs: o.observers, logger: o.logger}
}

func (t *tracker) setTotal(n int) {
	t.pw.SetTotal(n)
	for _, ob := range t.obs {
		ob.SetTotal(n)
	}
}

func (t *tracker) setPhase(label string, number, total int) {
	if err := t.pw.SetPhase(label, number, total); err != nil {
		t.logger.Warn("progress write failed", "error", err)
	}
	for _, ob := range t.obs {
		ob.SetPhase(label, number, total)
	}
}

func (t *tracker) tick(kind progress.TickKind, currentItem string) {
	if err := t.pw.Tick(kind, currentItem); err != nil {
		t.logger.Warn("progress write failed", "error", err)
	}
	for _, ob := range t.obs {
		ob.Tick(t.pw.Processed(), t.pw.Total(), currentItem)
	}
}

func (t *tracker) done(status string) {
	for _, ob := range t.obs {
		ob.Done(status)
	}
}

// terminal moves the progress record to its final state based on how the
// workflow body ended and hands the error back to the caller.
func (o *Orchestrator) terminal(tr *tracker, jobName string, err error) error {
	switch {
	case errors.Is(err, ErrCancelled):
		if werr := tr.pw.Cancel(); werr != nil {
			o.logger.Warn("progress write failed", "error", werr)
		}
		tr.done(progress.StatusCancelled)
		o.logger.Info(jobName + " cancelled")
		return err
	case err != nil:
		if werr := tr.pw.Abort(err.Error()); werr != nil {
			o.logger.Warn("progress write failed", "error", werr)
		}
		tr.done(progress.StatusError)
		return err
	default:
		if werr := tr.pw.Finish(); werr != nil {
			o.logger.Warn("progress write failed", "error", werr)
		}
		tr.done(progress.StatusFinished)
		return nil
	}
}

// closeLog finishes the scrape_log row. It runs in workflow defers, so
// it ignores the possibly-cancelled request context.
func (o *Orchestrator) closeLog(logID int64, c *model.ScrapeCounters, notes string) {
	progress.ClearCancel(o.dataDir())
	if err := o.store.FinishScrapeLog(context.Background(), logID, *c, notes); err != nil {
		o.logger.Error("finish scrape log failed", "log_id", logID, "error", err)
	}
}

// activeTribunals keeps the tribunals that currently announce listings.
func activeTribunals(tribunals []model.TribunalInfo) []model.TribunalInfo {
	active := make([]model.TribunalInfo, 0, len(tribunals))
	for _, t := range tribunals {
		if t.ListingCount > 0 {
			active = append(active, t)
		}
	}
	return active
}

// scrapeUpcoming walks one tribunal's hearing pages and stores every
// summary. Licitor ids inserted for the first time are appended to
// newIDs. Returns how many summaries the walk produced.
func (o *Orchestrator) scrapeUpcoming(ctx context.Context, t model.TribunalInfo, newIDs *[]int64) (int, error) {
	sums, _, err := o.scraper.UpcomingListings(ctx, t.URLPath)
	if err != nil {
		return 0, err
	}
	for _, sum := range sums {
		inserted, err := o.store.UpsertListingSummary(ctx, sum, t.Slug, false, "")
		if err != nil {
			return 0, fmt.Errorf("upsert listing %d: %w", sum.LicitorID, err)
		}
		if inserted {
			*newIDs = append(*newIDs, sum.LicitorID)
		}
	}
	return len(sums), nil
}

// scrapeDetail fetches one detail page and merges it into the row.
func (o *Orchestrator) scrapeDetail(ctx context.Context, urlPath string) error {
	d, err := o.scraper.Detail(ctx, urlPath)
	if err != nil {
		return err
	}
	return o.store.UpdateListingDetail(ctx, d)
}
