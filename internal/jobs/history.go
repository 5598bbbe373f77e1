package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"enchimmo/internal/model"
	"enchimmo/internal/progress"
)

// RunHistory walks the adjudication archive tribunal by tribunal and
// stores every past listing as historical. maxHearings caps the number
// of hearing pages fetched per tribunal. When slugs is non-empty, only
// the named tribunals are walked.
//
// A failed hearing walk still keeps whatever the walker got before the
// failure: the partial summaries are stored and the tribunal is counted
// as one error.
func (o *Orchestrator) RunHistory(ctx context.Context, maxHearings int, slugs []string) error {
	runID := uuid.New().String()
	logID, err := o.store.StartScrapeLog(ctx, JobHistory, runID)
	if err != nil {
		return fmt.Errorf("start scrape log: %w", err)
	}

	var c model.ScrapeCounters
	defer func() {
		o.closeLog(logID, &c, "")
	}()

	pw, err := progress.NewWriter(o.dataDir(), JobHistory, runID, 1)
	if err != nil {
		c.Errors++
		return fmt.Errorf("progress writer: %w", err)
	}
	tr := o.track(pw)
	o.logger.Info("history backfill started", "run_id", runID, "max_hearings", maxHearings)

	bodyErr := func() error {
		tribunals, err := o.scraper.HistoryCourts(ctx)
		if err != nil {
			return fmt.Errorf("discover history courts: %w", err)
		}
		o.logger.Info("tribunals with history", "count", len(tribunals))

		if len(slugs) > 0 {
			want := make(map[string]bool, len(slugs))
			for _, s := range slugs {
				want[s] = true
			}
			keep := make([]model.TribunalInfo, 0, len(tribunals))
			for _, t := range tribunals {
				if want[t.Slug] {
					keep = append(keep, t)
				}
			}
			tribunals = keep
			o.logger.Info("tribunals filtered", "count", len(tribunals))
		}
		tr.setTotal(len(tribunals))

		for i, t := range tribunals {
			if err := o.checkCancel(ctx); err != nil {
				return err
			}
			o.logger.Info("scraping tribunal history",
				"index", fmt.Sprintf("%d/%d", i+1, len(tribunals)),
				"tribunal", t.Slug, "expected", t.ListingCount)

			sums, herr := o.scraper.TribunalHistory(ctx, t.URLPath, t.Slug, maxHearings)
			for _, sum := range sums {
				auctionDate := ""
				if sum.ResultDate != nil {
					auctionDate = *sum.ResultDate
				}
				inserted, uerr := o.store.UpsertListingSummary(ctx, sum, t.Slug, true, auctionDate)
				if uerr != nil {
					o.logger.Error("history upsert failed", "licitor_id", sum.LicitorID, "error", uerr)
					c.Errors++
					continue
				}
				if inserted {
					c.ListingsNew++
				} else {
					c.ListingsUpdated++
				}
			}
			if herr != nil {
				o.logger.Error("tribunal history failed", "tribunal", t.Slug, "error", herr)
				c.Errors++
				tr.tick(progress.TickError, t.Slug)
				continue
			}
			c.PagesScraped++
			tr.tick(progress.TickUpdated, fmt.Sprintf("%s (%d)", t.Name, len(sums)))
			o.logger.Info("tribunal history done", "tribunal", t.Slug, "listings", len(sums))
		}
		return nil
	}()

	err = o.terminal(tr, "history backfill", bodyErr)
	if err != nil && !errors.Is(err, ErrCancelled) {
		return err
	}
	o.logger.Info("history backfill complete",
		"new", c.ListingsNew, "updated", c.ListingsUpdated, "errors", c.Errors)
	return err
}
