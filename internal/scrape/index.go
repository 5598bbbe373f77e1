package scrape

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"enchimmo/internal/model"
	"enchimmo/internal/parse"
)

// Tribunals fetches the France index and returns every tribunal listed
// under the courts section.
func (s *Scraper) Tribunals(ctx context.Context) ([]model.TribunalInfo, error) {
	doc, err := s.client.Get(ctx, IndexPath)
	if err != nil {
		return nil, err
	}
	tribunals := s.parseTribunalIndex(doc)
	s.logger.Info("discovered tribunals", "count", len(tribunals))
	return tribunals, nil
}

// parseTribunalIndex walks the courts section. Regions come from the h3
// headings; each tribunal inherits the nearest preceding one.
func (s *Scraper) parseTribunalIndex(doc *goquery.Document) []model.TribunalInfo {
	section := doc.Find("section#courts").First()
	if section.Length() == 0 {
		s.logger.Error("courts section missing from index page")
		return nil
	}

	var tribunals []model.TribunalInfo
	region := "Unknown"

	section.Find("h3").Each(func(_ int, h3 *goquery.Selection) {
		if span := h3.Find("span").First(); span.Length() > 0 {
			region = text(span)
		}
		li := h3.ParentsFiltered("li").First()
		if li.Length() == 0 {
			return
		}
		li.Find(`a[href*="/ventes-judiciaires-immobilieres/tj-"]`).Each(func(_ int, link *goquery.Selection) {
			href, _ := link.Attr("href")
			slug, ok := parse.TribunalSlug(href)
			if !ok {
				return
			}

			info := model.TribunalInfo{
				Slug:    slug,
				Region:  region,
				URLPath: href,
			}
			name := link.Text()
			if count := link.Find("span.Count").First(); count.Length() > 0 {
				raw := count.Text()
				name = strings.Replace(name, raw, "", 1)
				if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
					info.ListingCount = int64(n)
				}
			}
			info.Name = strings.TrimSpace(name)
			tribunals = append(tribunals, info)
		})
	})
	return tribunals
}
