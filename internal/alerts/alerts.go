// Package alerts matches newly scraped listings against the saved alert
// criteria and records the hits for the operator to review.
package alerts

import (
	"context"
	"log/slog"
	"strings"

	"enchimmo/internal/model"
	"enchimmo/internal/store"
)

// Engine runs the saved alerts against listings.
type Engine struct {
	store  *store.Store
	logger *slog.Logger
}

func NewEngine(st *store.Store, logger *slog.Logger) *Engine {
	return &Engine{store: st, logger: logger}
}

// MatchNewListings checks every active alert against the given listings
// and records each hit. The match table deduplicates on (alert, listing),
// so re-running over the same ids is safe. The returned count includes
// re-matches of already recorded pairs.
func (e *Engine) MatchNewListings(ctx context.Context, licitorIDs []int64) (int, error) {
	alerts, err := e.store.Alerts(ctx, true)
	if err != nil {
		return 0, err
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	matched := 0
	for _, id := range licitorIDs {
		listing, err := e.store.ListingByLicitorID(ctx, id)
		if err != nil {
			return matched, err
		}
		if listing == nil {
			continue
		}
		for _, alert := range alerts {
			if !Matches(listing, alert) {
				continue
			}
			if err := e.store.InsertAlertMatch(ctx, alert.ID, listing.ID); err != nil {
				return matched, err
			}
			matched++
		}
	}

	if matched > 0 {
		e.logger.Info("alert matching", "matches", matched)
	}
	return matched, nil
}

// Matches reports whether one listing satisfies every criterion of an
// alert. Unset listing values count as zero for the price and surface
// bounds and never satisfy a membership criterion.
func Matches(l *model.Listing, a model.Alert) bool {
	var price int64
	if l.StartingPrice != nil {
		price = *l.StartingPrice
	}
	if a.MinPrice != nil && price < *a.MinPrice {
		return false
	}
	if a.MaxPrice != nil && price > *a.MaxPrice {
		return false
	}

	if depts := splitList(a.DepartmentCodes); len(depts) > 0 {
		if !contains(depts, deref(l.DepartmentCode)) {
			return false
		}
	}

	if types := splitList(a.PropertyTypes); len(types) > 0 {
		listingType := strings.ToLower(deref(l.PropertyType))
		found := false
		for _, t := range types {
			if strings.Contains(listingType, strings.ToLower(t)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	var surface float64
	if l.SurfaceM2 != nil {
		surface = *l.SurfaceM2
	}
	if a.MinSurface != nil && surface < *a.MinSurface {
		return false
	}
	if a.MaxSurface != nil && surface > *a.MaxSurface {
		return false
	}

	if regions := splitList(a.Regions); len(regions) > 0 {
		if !contains(regions, deref(l.Region)) {
			return false
		}
	}

	if slugs := splitList(a.TribunalSlugs); len(slugs) > 0 {
		if !contains(slugs, deref(l.TribunalSlug)) {
			return false
		}
	}

	return true
}

// splitList turns a comma-separated criterion into trimmed values. Empty
// segments are dropped so a trailing comma cannot turn into a match-all.
func splitList(s *string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(*s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
