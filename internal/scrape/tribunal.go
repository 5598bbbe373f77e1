package scrape

import (
	"context"

	"enchimmo/internal/model"
)

// UpcomingListings walks one tribunal's upcoming hearings: the given
// hearing's paginated pages plus every other hearing date linked from the
// first page's traversing section. A visited set keyed on the normalized
// path guards against navigation cycles. The second return value is the
// number of pages fetched.
func (s *Scraper) UpcomingListings(ctx context.Context, hearingPath string) ([]model.ListingSummary, int, error) {
	visited := make(map[string]bool)
	queue := []string{hearingPath}
	discovered := false

	var all []model.ListingSummary
	pages := 0

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		base := normalizePath(current)
		if visited[base] {
			continue
		}
		visited[base] = true

		pageURL := current
		firstPage := true
		for pageURL != "" {
			doc, err := s.client.Get(ctx, pageURL)
			if err != nil {
				return nil, pages, err
			}
			pages++
			all = append(all, s.upcomingRows(doc, pageURL)...)

			// Other hearing dates are only linked from the entry page.
			if firstPage && !discovered {
				queue = append(queue, hearingLinks(doc)...)
				discovered = true
			}
			firstPage = false

			pageURL = nextPageLink(doc)
		}
	}
	return all, pages, nil
}
