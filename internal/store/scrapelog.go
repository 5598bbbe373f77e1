package store

import (
	"context"
	"database/sql"
	"fmt"

	"enchimmo/internal/model"
)

// StartScrapeLog opens a scrape_log row for a run and returns its id.
func (s *Store) StartScrapeLog(ctx context.Context, jobType, runID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO scrape_log (run_id, job_type) VALUES (?, ?)`, runID, jobType)
	if err != nil {
		return 0, fmt.Errorf("start scrape log: %w", err)
	}
	return res.LastInsertId()
}

// FinishScrapeLog closes a scrape_log row with its final counters.
func (s *Store) FinishScrapeLog(ctx context.Context, id int64, c model.ScrapeCounters, notes string) error {
	var n sql.NullString
	if notes != "" {
		n = sql.NullString{String: notes, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE scrape_log SET
		     finished_at = datetime('now'),
		     pages_scraped = ?, listings_new = ?, listings_updated = ?,
		     errors = ?, notes = ?
		 WHERE id = ?`,
		c.PagesScraped, c.ListingsNew, c.ListingsUpdated, c.Errors, n, id)
	if err != nil {
		return fmt.Errorf("finish scrape log %d: %w", id, err)
	}
	return nil
}
