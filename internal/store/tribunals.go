package store

import (
	"context"
	"database/sql"
	"fmt"

	"enchimmo/internal/model"
)

// UpsertTribunals inserts or updates courts by slug. Name, region, listing
// count and URL path are overwritten on conflict.
func (s *Store) UpsertTribunals(ctx context.Context, tribunals []model.TribunalInfo) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range tribunals {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO tribunals (name, slug, region, listing_count, url_path)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(slug) DO UPDATE SET
				     name = excluded.name,
				     region = excluded.region,
				     listing_count = excluded.listing_count,
				     url_path = excluded.url_path,
				     updated_at = datetime('now')`,
				t.Name, t.Slug, t.Region, t.ListingCount, t.URLPath)
			if err != nil {
				return fmt.Errorf("upsert tribunal %s: %w", t.Slug, err)
			}
		}
		return nil
	})
}

// TribunalBySlug returns a court by its slug, or nil when unknown.
func (s *Store) TribunalBySlug(ctx context.Context, slug string) (*model.TribunalInfo, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT slug, name, COALESCE(region, ''), COALESCE(listing_count, 0), COALESCE(url_path, '')
		 FROM tribunals WHERE slug = ?`, slug)

	var t model.TribunalInfo
	err := row.Scan(&t.Slug, &t.Name, &t.Region, &t.ListingCount, &t.URLPath)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tribunal by slug: %w", err)
	}
	return &t, nil
}

// Tribunals returns all stored courts ordered by slug.
func (s *Store) Tribunals(ctx context.Context) ([]model.TribunalInfo, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT slug, name, COALESCE(region, ''), COALESCE(listing_count, 0), COALESCE(url_path, '')
		 FROM tribunals ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list tribunals: %w", err)
	}
	defer rows.Close()

	var out []model.TribunalInfo
	for rows.Next() {
		var t model.TribunalInfo
		if err := rows.Scan(&t.Slug, &t.Name, &t.Region, &t.ListingCount, &t.URLPath); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// tribunalID resolves a slug inside an open transaction; 0 means unknown.
func tribunalID(ctx context.Context, tx *sql.Tx, slug string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM tribunals WHERE slug = ?`, slug).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}
