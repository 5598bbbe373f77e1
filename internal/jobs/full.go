package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"enchimmo/internal/model"
	"enchimmo/internal/progress"
)

// RunFull runs the five-phase campaign: tribunal discovery, upcoming
// hearings for every active tribunal, then three capped backfill passes
// over rows still missing details, starting prices, and surfaces.
// detailLimit caps each backfill batch.
func (o *Orchestrator) RunFull(ctx context.Context, detailLimit int) error {
	runID := uuid.New().String()
	logID, err := o.store.StartScrapeLog(ctx, JobFullIndex, runID)
	if err != nil {
		return fmt.Errorf("start scrape log: %w", err)
	}

	var c model.ScrapeCounters
	var newIDs []int64
	defer func() {
		c.ListingsNew = int64(len(newIDs))
		o.closeLog(logID, &c, "")
	}()

	pw, err := progress.NewWriter(o.dataDir(), "full", runID, 1)
	if err != nil {
		c.Errors++
		return fmt.Errorf("progress writer: %w", err)
	}
	tr := o.track(pw)
	o.logger.Info("full scrape started", "run_id", runID, "detail_limit", detailLimit)

	bodyErr := func() error {
		tr.setPhase("Decouverte des tribunaux", 1, 5)
		tribunals, err := o.scraper.Tribunals(ctx)
		if err != nil {
			return fmt.Errorf("scrape tribunal index: %w", err)
		}
		if err := o.store.UpsertTribunals(ctx, tribunals); err != nil {
			return err
		}
		o.logger.Info("tribunals discovered", "count", len(tribunals))

		active := activeTribunals(tribunals)
		tr.setTotal(len(active))

		tr.setPhase("Encheres a venir", 2, 5)
		for _, t := range active {
			if err := o.checkCancel(ctx); err != nil {
				return err
			}
			count, err := o.scrapeUpcoming(ctx, t, &newIDs)
			if err != nil {
				o.logger.Error("tribunal scrape failed", "tribunal", t.Slug, "error", err)
				c.Errors++
				tr.tick(progress.TickError, t.Slug)
				continue
			}
			tr.tick(progress.TickUpdated, fmt.Sprintf("%s (%d annonces)", t.Name, count))
		}
		o.logger.Info("new listings found", "count", len(newIDs))

		if _, err := o.store.MarkPastAuctions(ctx); err != nil {
			return err
		}
		if _, err := o.alerts.MatchNewListings(ctx, newIDs); err != nil {
			return err
		}

		// Phase 3: full details for rows never detail-scraped.
		details, err := o.store.ListingsWithoutDetail(ctx, detailLimit)
		if err != nil {
			return err
		}
		if len(details) > 0 {
			tr.setPhase("Backfill details", 3, 5)
			tr.setTotal(pw.Processed() + len(details))
			for _, ref := range details {
				if err := o.checkCancel(ctx); err != nil {
					return err
				}
				if err := o.scrapeDetail(ctx, ref.URLPath); err != nil {
					o.logger.Error("detail scrape failed", "licitor_id", ref.LicitorID, "error", err)
					c.Errors++
					tr.tick(progress.TickError, fmt.Sprintf("#%d", ref.LicitorID))
					continue
				}
				tr.tick(progress.TickUpdated, fmt.Sprintf("Annonce #%d", ref.LicitorID))
			}
		}

		// Phase 4: starting prices for historical rows without one.
		prices, err := o.store.HistoricalWithoutStartingPrice(ctx, detailLimit)
		if err != nil {
			return err
		}
		if len(prices) > 0 {
			tr.setPhase("Backfill mises a prix", 4, 5)
			tr.setTotal(pw.Processed() + len(prices))
			for _, ref := range prices {
				if err := o.checkCancel(ctx); err != nil {
					return err
				}
				stored, err := o.backfillStartingPrice(ctx, ref)
				switch {
				case err != nil:
					o.logger.Error("starting price backfill failed", "licitor_id", ref.LicitorID, "error", err)
					c.Errors++
					tr.tick(progress.TickError, fmt.Sprintf("#%d", ref.LicitorID))
				case stored:
					tr.tick(progress.TickUpdated, fmt.Sprintf("Annonce #%d", ref.LicitorID))
				default:
					tr.tick(progress.TickNotFound, fmt.Sprintf("Annonce #%d", ref.LicitorID))
				}
			}
		}

		// Phase 5: surfaces for historical rows without one.
		surfaces, err := o.store.HistoricalWithoutSurface(ctx, detailLimit)
		if err != nil {
			return err
		}
		if len(surfaces) > 0 {
			tr.setPhase("Backfill surfaces", 5, 5)
			tr.setTotal(pw.Processed() + len(surfaces))
			for _, ref := range surfaces {
				if err := o.checkCancel(ctx); err != nil {
					return err
				}
				stored, err := o.backfillSurface(ctx, ref)
				switch {
				case err != nil:
					o.logger.Error("surface backfill failed", "licitor_id", ref.LicitorID, "error", err)
					c.Errors++
					tr.tick(progress.TickError, fmt.Sprintf("#%d", ref.LicitorID))
				case stored:
					tr.tick(progress.TickUpdated, fmt.Sprintf("Annonce #%d", ref.LicitorID))
				default:
					tr.tick(progress.TickNotFound, fmt.Sprintf("Annonce #%d", ref.LicitorID))
				}
			}
		}
		return nil
	}()

	err = o.terminal(tr, "full scrape", bodyErr)
	if err != nil && !errors.Is(err, ErrCancelled) {
		return err
	}
	o.logger.Info("full scrape complete", "new", len(newIDs), "errors", c.Errors)
	return err
}
