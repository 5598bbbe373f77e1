package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RecordAdjudicationResult stores a manually entered final price for a
// listing, replacing any earlier entry for the same listing.
func (s *Store) RecordAdjudicationResult(ctx context.Context, licitorID, finalPrice int64, priceSource, notes string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var listingID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM listings WHERE licitor_id = ?`, licitorID).Scan(&listingID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("record adjudication: no listing %d", licitorID)
		}
		if err != nil {
			return fmt.Errorf("record adjudication %d: %w", licitorID, err)
		}

		var n sql.NullString
		if notes != "" {
			n = sql.NullString{String: notes, Valid: true}
		}
		if priceSource == "" {
			priceSource = "manual"
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO adjudication_results
			     (listing_id, final_price, price_source, notes)
			 VALUES (?, ?, ?, ?)`,
			listingID, finalPrice, priceSource, n)
		if err != nil {
			return fmt.Errorf("record adjudication %d: %w", licitorID, err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE listings SET final_price = ?, last_scraped_at = datetime('now')
			 WHERE id = ?`, finalPrice, listingID)
		if err != nil {
			return fmt.Errorf("record adjudication %d: %w", licitorID, err)
		}
		return nil
	})
}
