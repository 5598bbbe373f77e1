package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"enchimmo/internal/model"
	"enchimmo/internal/progress"
)

// backfillStartingPrice fetches one listing's starting price with the
// lightweight scrape and stores it when found. The bool reports whether
// a value was stored.
func (o *Orchestrator) backfillStartingPrice(ctx context.Context, ref model.ListingRef) (bool, error) {
	price, err := o.scraper.StartingPrice(ctx, ref.URLPath)
	if err != nil {
		return false, err
	}
	if price == nil || *price <= 0 {
		return false, nil
	}
	if err := o.store.UpdateListingStartingPrice(ctx, ref.LicitorID, *price); err != nil {
		return false, err
	}
	return true, nil
}

// backfillSurface is the surface counterpart of backfillStartingPrice.
func (o *Orchestrator) backfillSurface(ctx context.Context, ref model.ListingRef) (bool, error) {
	surface, err := o.scraper.Surface(ctx, ref.URLPath)
	if err != nil {
		return false, err
	}
	if surface == nil || *surface <= 0 {
		return false, nil
	}
	if err := o.store.UpdateListingSurface(ctx, ref.LicitorID, *surface); err != nil {
		return false, err
	}
	return true, nil
}

// RunDetailBackfill fetches full detail pages for up to limit listings
// that have never been detail-scraped.
func (o *Orchestrator) RunDetailBackfill(ctx context.Context, limit int) error {
	runID := uuid.New().String()
	logID, err := o.store.StartScrapeLog(ctx, JobDetailBackfill, runID)
	if err != nil {
		return fmt.Errorf("start scrape log: %w", err)
	}

	var c model.ScrapeCounters
	defer func() {
		o.closeLog(logID, &c, "")
	}()

	pw, err := progress.NewWriter(o.dataDir(), JobDetailBackfill, runID, 1)
	if err != nil {
		c.Errors++
		return fmt.Errorf("progress writer: %w", err)
	}
	tr := o.track(pw)

	refs, err := o.store.ListingsWithoutDetail(ctx, limit)
	if err != nil {
		c.Errors++
		return o.terminal(tr, "detail backfill", err)
	}
	o.logger.Info("detail backfill started", "run_id", runID, "pending", len(refs))
	tr.setTotal(len(refs))

	bodyErr := func() error {
		for _, ref := range refs {
			if err := o.checkCancel(ctx); err != nil {
				return err
			}
			if err := o.scrapeDetail(ctx, ref.URLPath); err != nil {
				o.logger.Error("detail scrape failed", "licitor_id", ref.LicitorID, "error", err)
				c.Errors++
				tr.tick(progress.TickError, fmt.Sprintf("#%d ERREUR", ref.LicitorID))
				continue
			}
			c.ListingsUpdated++
			tr.tick(progress.TickUpdated, fmt.Sprintf("#%d", ref.LicitorID))
		}
		return nil
	}()

	err = o.terminal(tr, "detail backfill", bodyErr)
	if err != nil && !errors.Is(err, ErrCancelled) {
		return err
	}
	o.logger.Info("detail backfill complete", "updated", c.ListingsUpdated, "errors", c.Errors)
	return err
}

// RunMapBackfill revisits historical listings that lack a starting
// price and fills it from the detail page. Rows whose page genuinely
// carries no price are counted apart from errors so the pass can be
// re-run without reprocessing them as failures.
func (o *Orchestrator) RunMapBackfill(ctx context.Context, limit int) error {
	runID := uuid.New().String()
	logID, err := o.store.StartScrapeLog(ctx, JobMapBackfill, runID)
	if err != nil {
		return fmt.Errorf("start scrape log: %w", err)
	}

	var c model.ScrapeCounters
	var notFound int64
	defer func() {
		c.PagesScraped = c.ListingsUpdated + notFound + c.Errors
		o.closeLog(logID, &c, fmt.Sprintf("not_found=%d", notFound))
	}()

	refs, err := o.store.HistoricalWithoutStartingPrice(ctx, limit)
	if err != nil {
		c.Errors++
		return err
	}
	o.logger.Info("starting price backfill started", "run_id", runID, "pending", len(refs))

	pw, err := progress.NewWriter(o.dataDir(), JobMapBackfill, runID, len(refs))
	if err != nil {
		c.Errors++
		return fmt.Errorf("progress writer: %w", err)
	}
	tr := o.track(pw)

	bodyErr := func() error {
		for i, ref := range refs {
			if err := o.checkCancel(ctx); err != nil {
				return err
			}
			stored, err := o.backfillStartingPrice(ctx, ref)
			switch {
			case err != nil:
				o.logger.Error("starting price backfill failed",
					"licitor_id", ref.LicitorID, "url_path", ref.URLPath, "error", err)
				c.Errors++
				tr.tick(progress.TickError, fmt.Sprintf("#%d ERREUR", ref.LicitorID))
				continue
			case stored:
				c.ListingsUpdated++
				tr.tick(progress.TickUpdated, fmt.Sprintf("#%d", ref.LicitorID))
			default:
				notFound++
				tr.tick(progress.TickNotFound, fmt.Sprintf("#%d", ref.LicitorID))
			}
			if (i+1)%50 == 0 {
				o.logger.Info("starting price backfill progress",
					"done", i+1, "total", len(refs),
					"updated", c.ListingsUpdated, "not_found", notFound, "errors", c.Errors)
			}
		}
		return nil
	}()

	err = o.terminal(tr, "starting price backfill", bodyErr)
	if err != nil && !errors.Is(err, ErrCancelled) {
		return err
	}
	o.logger.Info("starting price backfill complete",
		"updated", c.ListingsUpdated, "not_found", notFound, "errors", c.Errors, "total", len(refs))
	return err
}

// RunSurfaceBackfill revisits historical listings that lack a surface
// and fills it from the detail page text.
func (o *Orchestrator) RunSurfaceBackfill(ctx context.Context, limit int) error {
	runID := uuid.New().String()
	logID, err := o.store.StartScrapeLog(ctx, JobSurfaceBackfill, runID)
	if err != nil {
		return fmt.Errorf("start scrape log: %w", err)
	}

	var c model.ScrapeCounters
	var notFound int64
	defer func() {
		c.PagesScraped = c.ListingsUpdated + notFound + c.Errors
		o.closeLog(logID, &c, fmt.Sprintf("not_found=%d", notFound))
	}()

	refs, err := o.store.HistoricalWithoutSurface(ctx, limit)
	if err != nil {
		c.Errors++
		return err
	}
	o.logger.Info("surface backfill started", "run_id", runID, "pending", len(refs))

	pw, err := progress.NewWriter(o.dataDir(), JobSurfaceBackfill, runID, len(refs))
	if err != nil {
		c.Errors++
		return fmt.Errorf("progress writer: %w", err)
	}
	tr := o.track(pw)

	bodyErr := func() error {
		for i, ref := range refs {
			if err := o.checkCancel(ctx); err != nil {
				return err
			}
			stored, err := o.backfillSurface(ctx, ref)
			switch {
			case err != nil:
				o.logger.Error("surface backfill failed",
					"licitor_id", ref.LicitorID, "url_path", ref.URLPath, "error", err)
				c.Errors++
				tr.tick(progress.TickError, fmt.Sprintf("#%d ERREUR", ref.LicitorID))
				continue
			case stored:
				c.ListingsUpdated++
				tr.tick(progress.TickUpdated, fmt.Sprintf("#%d", ref.LicitorID))
			default:
				notFound++
				tr.tick(progress.TickNotFound, fmt.Sprintf("#%d", ref.LicitorID))
			}
			if (i+1)%50 == 0 {
				o.logger.Info("surface backfill progress",
					"done", i+1, "total", len(refs),
					"updated", c.ListingsUpdated, "not_found", notFound, "errors", c.Errors)
			}
		}
		return nil
	}()

	err = o.terminal(tr, "surface backfill", bodyErr)
	if err != nil && !errors.Is(err, ErrCancelled) {
		return err
	}
	o.logger.Info("surface backfill complete",
		"updated", c.ListingsUpdated, "not_found", notFound, "errors", c.Errors, "total", len(refs))
	return err
}
