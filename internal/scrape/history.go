package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"enchimmo/internal/model"
)

var historySlugRe = regexp.MustCompile(`/ventes-judiciaires-immobilieres/([^/]+)/`)

// HistoryCourts parses the adjudication-history index and returns each
// court's latest results page. Chambers of notaries appear alongside the
// tribunals here, so slugs come straight from the URL instead of being
// restricted to the tj- prefix.
func (s *Scraper) HistoryCourts(ctx context.Context) ([]model.TribunalInfo, error) {
	doc, err := s.client.Get(ctx, HistoryPath)
	if err != nil {
		return nil, err
	}

	section := doc.Find("section#courts").First()
	if section.Length() == 0 {
		section = doc.Find("section#search-courts").First()
	}
	if section.Length() == 0 {
		s.logger.Warn("no courts section on history page")
		return nil, nil
	}

	var courts []model.TribunalInfo
	section.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		m := historySlugRe.FindStringSubmatch(href)
		if m == nil {
			return
		}

		info := model.TribunalInfo{Slug: m[1], URLPath: stripFragment(href)}
		name := link.Text()
		if count := link.Find("span.Count").First(); count.Length() > 0 {
			raw := count.Text()
			name = strings.Replace(name, raw, "", 1)
			if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				info.ListingCount = int64(n)
			}
		}
		info.Name = strings.TrimSpace(name)
		courts = append(courts, info)
	})

	s.logger.Info("discovered courts with history", "count", len(courts))
	return courts, nil
}

// TribunalHistory walks one court's past hearings backwards in time: the
// current results page, every other hearing date linked from it, then the
// "Audiences antérieures" page, until maxHearings hearings are scraped or
// a page repeats. A failed traversal fetch returns the listings collected
// so far along with the error so the caller can keep partial results.
func (s *Scraper) TribunalHistory(ctx context.Context, startPath, slug string, maxHearings int) ([]model.ListingSummary, error) {
	var all []model.ListingSummary
	visited := make(map[string]bool)
	hearings := 0
	current := startPath

	for current != "" && hearings < maxHearings {
		if visited[current] {
			break
		}
		visited[current] = true

		s.logger.Info("fetching hearing page",
			"tribunal", slug, "path", current, "hearings", hearings)

		doc, err := s.client.Get(ctx, current)
		if err != nil {
			s.logger.Error("hearing page fetch failed",
				"tribunal", slug, "path", current, "error", err)
			return all, err
		}

		refs := hearingRefs(doc)

		// The navigation page doubles as the first hearing's results.
		sums, err := s.hearingTailPages(ctx, doc, current)
		all = append(all, sums...)
		if err != nil {
			s.logger.Error("hearing pagination failed",
				"tribunal", slug, "path", current, "error", err)
			return all, err
		}
		hearings++

		for _, ref := range refs {
			if hearings >= maxHearings {
				break
			}
			if visited[ref.path] {
				continue
			}
			if normalizePath(ref.path) == normalizePath(current) {
				continue
			}
			visited[ref.path] = true

			hSums, err := s.hearingAllPages(ctx, ref.path)
			if err != nil {
				s.logger.Error("hearing scrape failed",
					"tribunal", slug, "path", ref.path, "error", err)
				continue
			}
			all = append(all, hSums...)
			hearings++
			s.logger.Info("scraped hearing",
				"tribunal", slug, "hearing", ref.label, "listings", len(hSums))
		}

		current = olderHearingsLink(doc)
	}

	s.logger.Info("tribunal history complete",
		"tribunal", slug, "hearings", hearings, "listings", len(all))
	return all, nil
}

// hearingAllPages fetches a hearing's first page and then its paginated
// tail.
func (s *Scraper) hearingAllPages(ctx context.Context, hearingPath string) ([]model.ListingSummary, error) {
	doc, err := s.client.Get(ctx, hearingPath)
	if err != nil {
		return nil, err
	}
	return s.hearingTailPages(ctx, doc, hearingPath)
}

// hearingTailPages parses an already-fetched hearing page and fetches
// pages 2..N of its pagination.
func (s *Scraper) hearingTailPages(ctx context.Context, doc *goquery.Document, pagePath string) ([]model.ListingSummary, error) {
	sums := s.resultRows(doc, pagePath)
	total := pageTotal(doc)
	base := normalizePath(pagePath)
	for p := 2; p <= total; p++ {
		paged := fmt.Sprintf("%s?p=%d", base, p)
		pageDoc, err := s.client.Get(ctx, paged)
		if err != nil {
			return sums, err
		}
		sums = append(sums, s.resultRows(pageDoc, paged)...)
	}
	return sums, nil
}
