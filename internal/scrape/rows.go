package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"enchimmo/internal/model"
	"enchimmo/internal/parse"
)

// rowBase extracts the fields common to upcoming and result rows. Rows
// without a parseable listing id are data-quality noise, not crawl
// failures; they are logged and dropped.
func (s *Scraper) rowBase(li, link *goquery.Selection) (model.ListingSummary, bool) {
	href, _ := link.Attr("href")
	if !strings.HasPrefix(href, "/annonce/") {
		return model.ListingSummary{}, false
	}
	id, err := parse.ListingID(href)
	if err != nil {
		s.logger.Warn("skipping row with unparseable listing id", "href", href)
		return model.ListingSummary{}, false
	}

	sum := model.ListingSummary{LicitorID: id, URLPath: href}
	if v := text(link.Find("span.Number").First()); v != "" {
		sum.DepartmentCode = &v
	}
	if v := text(link.Find("span.City").First()); v != "" {
		sum.City = &v
	}
	if v := text(link.Find("span.Name").First()); v != "" {
		sum.PropertyType = &v
	}
	if v := text(link.Find("span.Text").First()); v != "" {
		sum.DescriptionShort = &v
	}
	if v := text(li.Find("p.PublishingDate").First()); v != "" {
		sum.PublicationDate = &v
	}
	return sum, true
}

// upcomingRows parses the AdResults list of an upcoming hearing page. The
// starting price sits in the row's only PriceNumber span.
func (s *Scraper) upcomingRows(doc *goquery.Document, sourceURL string) []model.ListingSummary {
	list := doc.Find("ul.AdResults").First()
	if list.Length() == 0 {
		s.logger.Warn("no results list on page", "url", sourceURL)
		return nil
	}

	var out []model.ListingSummary
	list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		link := li.Find("a.Ad").First()
		if link.Length() == 0 {
			return
		}
		sum, ok := s.rowBase(li, link)
		if !ok {
			return
		}
		if price, ok := parse.Price(text(link.Find("span.PriceNumber").First())); ok {
			sum.StartingPrice = &price
		}
		out = append(out, sum)
	})
	s.logger.Debug("parsed hearing rows", "url", sourceURL, "count", len(out))
	return out
}

// resultRows parses the AdResults list of a past-hearing page. Result rows
// carry two prices: the starting price under div.Price and the hammer
// price inside p.Result, so the starting-price lookup must stay narrow.
func (s *Scraper) resultRows(doc *goquery.Document, sourceURL string) []model.ListingSummary {
	list := doc.Find("ul.AdResults").First()
	if list.Length() == 0 {
		s.logger.Debug("no results list on page", "url", sourceURL)
		return nil
	}

	var out []model.ListingSummary
	list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		link := li.Find("a.Ad").First()
		if link.Length() == 0 {
			return
		}
		sum, ok := s.rowBase(li, link)
		if !ok {
			return
		}
		if price, ok := parse.Price(text(link.Find("div.Price p.Price span.PriceNumber").First())); ok {
			sum.StartingPrice = &price
		}
		if res := link.Find("p.Result").First(); res.Length() > 0 {
			r := parse.Result(text(res), text(res.Find("span.PriceNumber").First()))
			if r.Status != "" {
				sum.ResultStatus = &r.Status
				if r.Status == parse.ResultSold {
					sum.FinalPrice = &r.FinalPrice
				}
				if r.ResultDate != "" {
					sum.ResultDate = &r.ResultDate
				}
			}
		}
		out = append(out, sum)
	})
	s.logger.Debug("parsed result rows", "url", sourceURL, "count", len(out))
	return out
}
