package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"enchimmo/internal/model"
	"enchimmo/internal/progress"
)

// RunIncremental refreshes the tribunal index, walks every active
// tribunal's upcoming hearings, fetches details for listings seen for
// the first time, flips past auctions to historical, and matches the
// new rows against the stored alerts.
func (o *Orchestrator) RunIncremental(ctx context.Context) error {
	runID := uuid.New().String()
	logID, err := o.store.StartScrapeLog(ctx, JobIncremental, runID)
	if err != nil {
		return fmt.Errorf("start scrape log: %w", err)
	}

	var c model.ScrapeCounters
	var newIDs []int64
	defer func() {
		c.ListingsNew = int64(len(newIDs))
		o.closeLog(logID, &c, "")
	}()

	pw, err := progress.NewWriter(o.dataDir(), JobIncremental, runID, 1)
	if err != nil {
		c.Errors++
		return fmt.Errorf("progress writer: %w", err)
	}
	tr := o.track(pw)
	o.logger.Info("incremental scrape started", "run_id", runID)

	bodyErr := func() error {
		tribunals, err := o.scraper.Tribunals(ctx)
		if err != nil {
			return fmt.Errorf("scrape tribunal index: %w", err)
		}
		if err := o.store.UpsertTribunals(ctx, tribunals); err != nil {
			return err
		}
		o.logger.Info("tribunals discovered", "count", len(tribunals))
		active := activeTribunals(tribunals)
		// One extra slot keeps the bar short of 100% until the detail
		// pass has run.
		tr.setTotal(len(active) + 1)

		for _, t := range active {
			if err := o.checkCancel(ctx); err != nil {
				return err
			}
			if _, err := o.scrapeUpcoming(ctx, t, &newIDs); err != nil {
				o.logger.Error("tribunal scrape failed", "tribunal", t.Slug, "error", err)
				c.Errors++
				tr.tick(progress.TickError, t.Slug)
				continue
			}
			tr.tick(progress.TickUpdated, t.Slug)
		}
		o.logger.Info("new listings found", "count", len(newIDs))

		if len(newIDs) > 0 {
			tr.setTotal(pw.Processed() + len(newIDs) + 1)
		}
		for _, id := range newIDs {
			if err := o.checkCancel(ctx); err != nil {
				return err
			}
			listing, err := o.store.ListingByLicitorID(ctx, id)
			if err != nil {
				return err
			}
			if listing == nil || listing.DetailScraped {
				continue
			}
			label := fmt.Sprintf("detail #%d", id)
			if err := o.scrapeDetail(ctx, listing.URLPath); err != nil {
				o.logger.Error("detail scrape failed", "licitor_id", id, "error", err)
				c.Errors++
				tr.tick(progress.TickError, label)
				continue
			}
			tr.tick(progress.TickUpdated, label)
		}

		if _, err := o.store.MarkPastAuctions(ctx); err != nil {
			return err
		}
		if _, err := o.alerts.MatchNewListings(ctx, newIDs); err != nil {
			return err
		}
		return nil
	}()

	err = o.terminal(tr, "incremental scrape", bodyErr)
	if err != nil && !errors.Is(err, ErrCancelled) {
		return err
	}
	o.logger.Info("incremental scrape complete", "new", len(newIDs), "errors", c.Errors)
	return err
}
