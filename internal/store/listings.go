package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"enchimmo/internal/model"
)

// UpsertListingSummary inserts a listing on first sight and merges result
// data into it afterwards. It returns true iff the row was newly inserted.
//
// The merge never widens beyond the result fields: an existing row only
// receives the incoming final price, result status (which also forces
// status to past), result date and the historical flag, each when present.
// A null incoming value leaves the stored one untouched, so a scraped final
// price is never erased by a later summary without one.
func (s *Store) UpsertListingSummary(ctx context.Context, sum model.ListingSummary, tribunalSlug string, isHistorical bool, auctionDate string) (bool, error) {
	inserted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM listings WHERE licitor_id = ?`, sum.LicitorID).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			// fall through to insert
		case err != nil:
			return fmt.Errorf("lookup listing %d: %w", sum.LicitorID, err)
		default:
			updates := []string{"last_scraped_at = datetime('now')"}
			var args []any
			if sum.FinalPrice != nil {
				updates = append(updates, "final_price = ?")
				args = append(args, *sum.FinalPrice)
			}
			if sum.ResultStatus != nil && *sum.ResultStatus != "" {
				updates = append(updates, "result_status = ?", "status = 'past'")
				args = append(args, *sum.ResultStatus)
			}
			if sum.ResultDate != nil && *sum.ResultDate != "" {
				updates = append(updates, "result_date = ?")
				args = append(args, *sum.ResultDate)
			}
			if isHistorical {
				updates = append(updates, "is_historical = 1")
			}
			args = append(args, sum.LicitorID)
			_, err := tx.ExecContext(ctx,
				`UPDATE listings SET `+strings.Join(updates, ", ")+` WHERE licitor_id = ?`, args...)
			if err != nil {
				return fmt.Errorf("merge listing %d: %w", sum.LicitorID, err)
			}
			return nil
		}

		var tribID sql.NullInt64
		if tribunalSlug != "" {
			id, err := tribunalID(ctx, tx, tribunalSlug)
			if err != nil {
				return fmt.Errorf("resolve tribunal %s: %w", tribunalSlug, err)
			}
			if id != 0 {
				tribID = sql.NullInt64{Int64: id, Valid: true}
			}
		}

		status := "upcoming"
		if isHistorical {
			status = "past"
		}
		var auction sql.NullString
		if auctionDate != "" {
			auction = sql.NullString{String: auctionDate, Valid: true}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO listings (
			     licitor_id, url_path, property_type, department_code, city,
			     starting_price, description, tribunal_id, is_historical,
			     status, auction_date, final_price, result_status, result_date
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sum.LicitorID, sum.URLPath, nullStr(sum.PropertyType),
			nullStr(sum.DepartmentCode), nullStr(sum.City),
			nullInt(sum.StartingPrice), nullStr(sum.DescriptionShort),
			tribID, boolInt(isHistorical), status, auction,
			nullInt(sum.FinalPrice), nullStr(sum.ResultStatus), nullStr(sum.ResultDate))
		if err != nil {
			return fmt.Errorf("insert listing %d: %w", sum.LicitorID, err)
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// UpdateListingDetail overwrites the detail fields of a listing and marks it
// detail-scraped. The starting price is coalesced so a page that no longer
// shows one cannot clear a stored value.
func (s *Store) UpdateListingDetail(ctx context.Context, d model.ListingDetail) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE listings SET
		     description = ?, surface_m2 = ?, energy_rating = ?,
		     occupancy_status = ?, full_address = ?,
		     latitude = ?, longitude = ?, cadastral_ref = ?,
		     auction_date = ?, auction_time = ?,
		     starting_price = COALESCE(?, starting_price),
		     case_reference = ?, has_price_reduction = ?,
		     lawyer_name = ?, lawyer_phone = ?, visit_date = ?,
		     price_per_m2_min = ?, price_per_m2_avg = ?, price_per_m2_max = ?,
		     view_count = ?, favorites_count = ?, publication_date = ?,
		     detail_scraped = 1, last_scraped_at = datetime('now')
		 WHERE licitor_id = ?`,
		nullStr(d.Description), nullFloat(d.SurfaceM2), nullStr(d.EnergyRating),
		nullStr(d.OccupancyStatus), nullStr(d.FullAddress),
		nullFloat(d.Latitude), nullFloat(d.Longitude), nullStr(d.CadastralRef),
		nullStr(d.AuctionDate), nullStr(d.AuctionTime),
		nullInt(d.StartingPrice),
		nullStr(d.CaseReference), nullStr(d.HasPriceReduction),
		nullStr(d.LawyerName), nullStr(d.LawyerPhone), nullStr(d.VisitDate),
		nullFloat(d.PricePerM2Min), nullFloat(d.PricePerM2Avg), nullFloat(d.PricePerM2Max),
		nullInt(d.ViewCount), nullInt(d.FavoritesCount), nullStr(d.PublicationDate),
		d.LicitorID)
	if err != nil {
		return fmt.Errorf("update listing detail %d: %w", d.LicitorID, err)
	}
	return nil
}

// MarkPastAuctions flips upcoming listings whose auction date has passed.
// It returns the number of rows changed.
func (s *Store) MarkPastAuctions(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE listings SET status = 'past'
		 WHERE status = 'upcoming' AND auction_date < date('now')`)
	if err != nil {
		return 0, fmt.Errorf("mark past auctions: %w", err)
	}
	return res.RowsAffected()
}

// ListingsWithoutDetail returns listings never detail-scraped, soonest
// auction first with undated rows last.
func (s *Store) ListingsWithoutDetail(ctx context.Context, limit int) ([]model.ListingRef, error) {
	return s.listingRefs(ctx,
		`SELECT licitor_id, url_path FROM listings
		 WHERE detail_scraped = 0
		 ORDER BY auction_date ASC NULLS LAST
		 LIMIT ?`, limit)
}

// HistoricalWithoutStartingPrice returns listings with result data but no
// starting price, newest first.
func (s *Store) HistoricalWithoutStartingPrice(ctx context.Context, limit int) ([]model.ListingRef, error) {
	return s.listingRefs(ctx,
		`SELECT licitor_id, url_path FROM listings
		 WHERE result_status IS NOT NULL
		   AND (starting_price IS NULL OR starting_price = 0)
		 ORDER BY licitor_id DESC
		 LIMIT ?`, limit)
}

// HistoricalWithoutSurface returns listings with result data but no surface,
// newest first.
func (s *Store) HistoricalWithoutSurface(ctx context.Context, limit int) ([]model.ListingRef, error) {
	return s.listingRefs(ctx,
		`SELECT licitor_id, url_path FROM listings
		 WHERE result_status IS NOT NULL
		   AND (surface_m2 IS NULL OR surface_m2 = 0)
		 ORDER BY licitor_id DESC
		 LIMIT ?`, limit)
}

func (s *Store) listingRefs(ctx context.Context, query string, limit int) ([]model.ListingRef, error) {
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select listing refs: %w", err)
	}
	defer rows.Close()

	var out []model.ListingRef
	for rows.Next() {
		var ref model.ListingRef
		var urlPath sql.NullString
		if err := rows.Scan(&ref.LicitorID, &urlPath); err != nil {
			return nil, err
		}
		ref.URLPath = urlPath.String
		out = append(out, ref)
	}
	return out, rows.Err()
}

// UpdateListingStartingPrice sets only the starting price of a listing.
func (s *Store) UpdateListingStartingPrice(ctx context.Context, licitorID, price int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE listings SET starting_price = ?, last_scraped_at = datetime('now')
		 WHERE licitor_id = ?`, price, licitorID)
	if err != nil {
		return fmt.Errorf("update starting price %d: %w", licitorID, err)
	}
	return nil
}

// UpdateListingSurface sets only the surface of a listing.
func (s *Store) UpdateListingSurface(ctx context.Context, licitorID int64, surface float64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE listings SET surface_m2 = ?, last_scraped_at = datetime('now')
		 WHERE licitor_id = ?`, surface, licitorID)
	if err != nil {
		return fmt.Errorf("update surface %d: %w", licitorID, err)
	}
	return nil
}

// ListingByLicitorID reads a listing back with its tribunal slug and region
// joined in. Returns nil when the id is unknown.
func (s *Store) ListingByLicitorID(ctx context.Context, licitorID int64) (*model.Listing, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT l.id, l.licitor_id, COALESCE(l.url_path, ''), l.property_type,
		        l.department_code, l.city, l.description, l.surface_m2,
		        l.starting_price, l.auction_date, l.auction_time, l.status,
		        l.is_historical, l.detail_scraped, l.result_status,
		        l.final_price, l.result_date, l.tribunal_id, t.slug, t.region
		 FROM listings l
		 LEFT JOIN tribunals t ON t.id = l.tribunal_id
		 WHERE l.licitor_id = ?`, licitorID)

	var l model.Listing
	var (
		propertyType, departmentCode, city, description sql.NullString
		auctionDate, auctionTime, resultStatus          sql.NullString
		resultDate, tribunalSlug, region                sql.NullString
		surface                                         sql.NullFloat64
		startingPrice, finalPrice, tribunalIDv          sql.NullInt64
		isHistorical, detailScraped                     int64
	)
	err := row.Scan(&l.ID, &l.LicitorID, &l.URLPath, &propertyType,
		&departmentCode, &city, &description, &surface,
		&startingPrice, &auctionDate, &auctionTime, &l.Status,
		&isHistorical, &detailScraped, &resultStatus,
		&finalPrice, &resultDate, &tribunalIDv, &tribunalSlug, &region)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing by licitor id %d: %w", licitorID, err)
	}

	l.PropertyType = strPtr(propertyType)
	l.DepartmentCode = strPtr(departmentCode)
	l.City = strPtr(city)
	l.Description = strPtr(description)
	l.SurfaceM2 = floatPtr(surface)
	l.StartingPrice = intPtr(startingPrice)
	l.AuctionDate = strPtr(auctionDate)
	l.AuctionTime = strPtr(auctionTime)
	l.IsHistorical = isHistorical != 0
	l.DetailScraped = detailScraped != 0
	l.ResultStatus = strPtr(resultStatus)
	l.FinalPrice = intPtr(finalPrice)
	l.ResultDate = strPtr(resultDate)
	l.TribunalID = intPtr(tribunalIDv)
	l.TribunalSlug = strPtr(tribunalSlug)
	l.Region = strPtr(region)
	return &l, nil
}

// CountListings returns the number of stored listings.
func (s *Store) CountListings(ctx context.Context) (int64, error) {
	var n int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
