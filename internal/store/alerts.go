package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"enchimmo/internal/model"
)

// CreateAlert stores a new search alert and returns its id. New alerts
// start active; a.IsActive is ignored.
func (s *Store) CreateAlert(ctx context.Context, a model.Alert) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO alerts (
		     name, min_price, max_price, min_surface, max_surface,
		     department_codes, regions, property_types, tribunal_slugs
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, nullInt(a.MinPrice), nullInt(a.MaxPrice),
		nullFloat(a.MinSurface), nullFloat(a.MaxSurface),
		nullStr(a.DepartmentCodes), nullStr(a.Regions),
		nullStr(a.PropertyTypes), nullStr(a.TribunalSlugs))
	if err != nil {
		return 0, fmt.Errorf("create alert: %w", err)
	}
	return res.LastInsertId()
}

// Alerts returns alerts, optionally only active ones, oldest first.
func (s *Store) Alerts(ctx context.Context, activeOnly bool) ([]model.Alert, error) {
	query := `SELECT id, name, min_price, max_price, min_surface, max_surface,
	                 department_codes, regions, property_types, tribunal_slugs,
	                 is_active
	          FROM alerts`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var minPrice, maxPrice sql.NullInt64
		var minSurface, maxSurface sql.NullFloat64
		var depts, regions, types, slugs sql.NullString
		var active int64
		if err := rows.Scan(&a.ID, &a.Name, &minPrice, &maxPrice,
			&minSurface, &maxSurface, &depts, &regions, &types, &slugs,
			&active); err != nil {
			return nil, err
		}
		a.MinPrice = intPtr(minPrice)
		a.MaxPrice = intPtr(maxPrice)
		a.MinSurface = floatPtr(minSurface)
		a.MaxSurface = floatPtr(maxSurface)
		a.DepartmentCodes = strPtr(depts)
		a.Regions = strPtr(regions)
		a.PropertyTypes = strPtr(types)
		a.TribunalSlugs = strPtr(slugs)
		a.IsActive = active != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAlert removes an alert; its matches go with it via the cascade.
func (s *Store) DeleteAlert(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alert %d: %w", id, err)
	}
	return nil
}

// ToggleAlert flips an alert between active and inactive.
func (s *Store) ToggleAlert(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE alerts SET is_active = 1 - is_active, updated_at = datetime('now')
		 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("toggle alert %d: %w", id, err)
	}
	return nil
}

// InsertAlertMatch records that a listing matched an alert. Re-inserting the
// same pair is a no-op.
func (s *Store) InsertAlertMatch(ctx context.Context, alertID, listingID int64) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO alert_matches (alert_id, listing_id) VALUES (?, ?)`,
		alertID, listingID)
	if err != nil {
		return fmt.Errorf("insert alert match %d/%d: %w", alertID, listingID, err)
	}
	return nil
}

// UnreadMatches returns unseen alert matches, newest first.
func (s *Store) UnreadMatches(ctx context.Context) ([]model.UnreadMatch, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT am.id, a.name, l.licitor_id, l.city, l.property_type,
		        l.starting_price, l.auction_date, COALESCE(l.url_path, '')
		 FROM alert_matches am
		 JOIN alerts a ON a.id = am.alert_id
		 JOIN listings l ON l.id = am.listing_id
		 WHERE am.is_seen = 0
		 ORDER BY am.matched_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select unread matches: %w", err)
	}
	defer rows.Close()

	var out []model.UnreadMatch
	for rows.Next() {
		var m model.UnreadMatch
		var city, propertyType, auctionDate sql.NullString
		var startingPrice sql.NullInt64
		if err := rows.Scan(&m.MatchID, &m.AlertName, &m.LicitorID,
			&city, &propertyType, &startingPrice, &auctionDate, &m.URLPath); err != nil {
			return nil, err
		}
		m.City = strPtr(city)
		m.PropertyType = strPtr(propertyType)
		m.StartingPrice = intPtr(startingPrice)
		m.AuctionDate = strPtr(auctionDate)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkMatchesSeen marks the given matches as seen. Empty input is a no-op.
func (s *Store) MarkMatchesSeen(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE alert_matches SET is_seen = 1 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("mark matches seen: %w", err)
	}
	return nil
}
