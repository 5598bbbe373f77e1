package scrape

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"enchimmo/internal/model"
	"enchimmo/internal/parse"
)

var (
	courtRe      = regexp.MustCompile(`(?i)tribunal\s+judiciaire\s+(?:de\s+|d['’]\s*)([\p{L}\d\s-]+)`)
	clockRe      = regexp.MustCompile(`^(\d{2}):(\d{2})`)
	cadastralRe  = regexp.MustCompile(`[Cc]adastr[ée]e?\s+section\s+([\w\s°n]+)`)
	miseAPrixRe  = regexp.MustCompile(`(?i)mise\s+[àa]\s+prix`)
	phoneSpaceRe = regexp.MustCompile(`(\d{2}\s+\d{2}\s+\d{2}\s+\d{2}\s+\d{2})`)
	phoneDotRe   = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{2}\.\d{2}\.\d{2})`)
	rgRe         = regexp.MustCompile(`RG\s+n[°o]\s*([\w/]+)`)
	pubRefRe     = regexp.MustCompile(`Réf\.\s*([\w/]+)`)
	viewRe       = regexp.MustCompile(`(\d[\d\s.,]+)`)
	heartRe      = regexp.MustCompile(`[❤♥]\s*([\d\s.,]+)`)
	dpeRe        = regexp.MustCompile(`(?i)DPE\s*[:\s]*([A-G])`)
	occupancyRe  = regexp.MustCompile(`(?i)(occup[ée]|libre|vacant)`)
	reductionRe  = regexp.MustCompile(`(?i)baisse|réduction|diminution`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// Detail fetches one listing page and extracts the full field set. Every
// field except the id is best-effort; a field the page lacks stays nil.
func (s *Scraper) Detail(ctx context.Context, urlPath string) (model.ListingDetail, error) {
	id, err := parse.ListingID(urlPath)
	if err != nil {
		return model.ListingDetail{}, err
	}
	doc, err := s.client.Get(ctx, urlPath)
	if err != nil {
		return model.ListingDetail{}, err
	}
	return s.parseDetail(doc, urlPath, id), nil
}

func (s *Scraper) parseDetail(doc *goquery.Document, urlPath string, licitorID int64) model.ListingDetail {
	d := model.ListingDetail{LicitorID: licitorID, URLPath: urlPath}

	ad := doc.Find("div.AdContent").First()
	if ad.Length() == 0 {
		s.logger.Warn("no ad content on detail page", "url", urlPath)
		return d
	}

	if dt, ok := ad.Find("p.PublishingDate time").First().Attr("datetime"); ok && dt != "" {
		v := dt
		if len(v) > 10 {
			v = v[:10]
		}
		d.PublicationDate = &v
	}

	if m := courtRe.FindStringSubmatch(text(ad.Find("p.Court").First())); m != nil {
		city := strings.TrimSpace(m[1])
		name := "TJ " + city
		slug := "tj-" + spacesRe.ReplaceAllString(strings.ToLower(city), "-")
		d.TribunalName = &name
		d.TribunalSlug = &slug
	}

	if timeEl := ad.Find("p.Date time").First(); timeEl.Length() > 0 {
		dt, _ := timeEl.Attr("datetime")
		if i := strings.Index(dt, "T"); i >= 0 {
			datePart := dt[:i]
			if _, err := time.Parse("2006-01-02", datePart); err == nil {
				d.AuctionDate = &datePart
			}
			if m := clockRe.FindStringSubmatch(dt[i+1:]); m != nil {
				v := m[1] + ":" + m[2]
				d.AuctionTime = &v
			}
		} else if v, ok := parse.FrenchDate(timeEl.Text()); ok {
			d.AuctionDate = &v
		}
	}

	if block := ad.Find("section.AddressBlock").First(); block.Length() > 0 {
		if lot := block.Find("div.Lot").First(); lot.Length() > 0 {
			if sousLot := lot.Find("div[class*='SousLot']").First(); sousLot.Length() > 0 {
				if v := text(sousLot.Find("h2").First()); v != "" {
					d.PropertyType = &v
				}
				var parts []string
				sousLot.Find("p").Each(func(_ int, p *goquery.Selection) {
					parts = append(parts, text(p))
				})
				if len(parts) > 0 {
					v := strings.Join(parts, " ")
					d.Description = &v
				}
				if m := cadastralRe.FindStringSubmatch(sousLot.Text()); m != nil {
					v := strings.TrimSpace(m[1])
					d.CadastralRef = &v
				}
			}
			if p := priceFromLot(lot, "h3"); p != nil {
				d.StartingPrice = p
			}
		}

		if loc := block.Find("div.Location").First(); loc.Length() > 0 {
			if cityText := text(loc.Find("p.City").First()); cityText != "" {
				v := cityText
				if i := strings.Index(v, "("); i >= 0 {
					v = strings.TrimSpace(v[:i])
				}
				d.City = &v
			}
			if street := loc.Find("p.Street").First(); street.Length() > 0 {
				if v := joinedText(street, ", "); v != "" {
					d.FullAddress = &v
				}
			}
			if href, ok := loc.Find(`a[href*="maps.google"]`).First().Attr("href"); ok {
				if lat, lng, ok := parse.GPSFromMapsURL(href); ok {
					d.Latitude = &lat
					d.Longitude = &lng
				}
			}
			if v := text(loc.Find("p.Visits").First()); v != "" {
				d.VisitDate = &v
			}
		}
	}

	if trust := ad.Find("div.Trusts div.Trust").First(); trust.Length() > 0 {
		if v := text(trust.Find("h3").First()); v != "" {
			d.LawyerName = &v
		}
		trustText := trust.Text()
		m := phoneSpaceRe.FindStringSubmatch(trustText)
		if m == nil {
			m = phoneDotRe.FindStringSubmatch(trustText)
		}
		if m != nil {
			v := m[1]
			d.LawyerPhone = &v
		}
	}

	ad.Find("p.AdditionalText").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if m := rgRe.FindStringSubmatch(p.Text()); m != nil {
			v := m[1]
			d.CaseReference = &v
			return false
		}
		return true
	})

	ad.Find("div.Reference").Each(func(_ int, ref *goquery.Selection) {
		refText := text(ref)
		if fav := heartRe.FindStringSubmatch(refText); fav != nil {
			if n, ok := parse.ViewCount(fav[1]); ok {
				d.FavoritesCount = &n
			}
			if views := viewRe.FindStringSubmatch(refText); views != nil {
				if n, ok := parse.ViewCount(views[1]); ok {
					d.ViewCount = &n
				}
			}
		}
		if d.CaseReference == nil {
			if m := pubRefRe.FindStringSubmatch(refText); m != nil {
				v := m[1]
				d.CaseReference = &v
			}
		}
	})

	fullText := ad.Text()
	if v, ok := parse.Surface(fullText); ok {
		d.SurfaceM2 = &v
	}

	doc.Find("div.PartnerOffer div.PartnerOfferItem").Each(func(_ int, item *goquery.Selection) {
		label := strings.ToLower(text(item))
		valueDiv := item.Find("div.PartnerOfferValue").First()
		if valueDiv.Length() == 0 {
			return
		}
		p, ok := parse.Price(text(valueDiv))
		if !ok || p == 0 {
			return
		}
		v := float64(p)
		switch {
		case strings.Contains(label, "min"):
			d.PricePerM2Min = &v
		case strings.Contains(label, "moyen"):
			d.PricePerM2Avg = &v
		case strings.Contains(label, "max"):
			d.PricePerM2Max = &v
		}
	})

	if v := firstTextNodeMatch(ad, reductionRe); v != "" {
		d.HasPriceReduction = &v
	}

	if m := dpeRe.FindStringSubmatch(fullText); m != nil {
		v := strings.ToUpper(m[1])
		d.EnergyRating = &v
	}
	if m := occupancyRe.FindStringSubmatch(fullText); m != nil {
		v := capitalize(m[1])
		d.OccupancyStatus = &v
	}

	return d
}

// StartingPrice fetches a detail page but extracts only the starting
// price. Nil means the page does not show one.
func (s *Scraper) StartingPrice(ctx context.Context, urlPath string) (*int64, error) {
	doc, err := s.client.Get(ctx, urlPath)
	if err != nil {
		return nil, err
	}
	lot := doc.Find("div.AdContent section.AddressBlock div.Lot").First()
	if lot.Length() == 0 {
		return nil, nil
	}
	return priceFromLot(lot, "h3", "h4"), nil
}

// Surface fetches a detail page but extracts only the surface. Nil means
// no surface figure was found.
func (s *Scraper) Surface(ctx context.Context, urlPath string) (*float64, error) {
	doc, err := s.client.Get(ctx, urlPath)
	if err != nil {
		return nil, err
	}
	ad := doc.Find("div.AdContent").First()
	if ad.Length() == 0 {
		return nil, nil
	}
	if v, ok := parse.Surface(ad.Text()); ok {
		return &v, nil
	}
	return nil, nil
}

// priceFromLot reads the starting price from the lot's "Mise à prix"
// heading. Some pages carry it in an h4 instead, so callers pass the
// tags to try in order.
func priceFromLot(lot *goquery.Selection, tags ...string) *int64 {
	for _, tag := range tags {
		var out *int64
		lot.Find(tag).EachWithBreak(func(_ int, h *goquery.Selection) bool {
			if !miseAPrixRe.MatchString(h.Text()) {
				return true
			}
			if p, ok := parse.Price(h.Text()); ok {
				out = &p
			}
			return false
		})
		if out != nil {
			return out
		}
	}
	return nil
}

// joinedText renders a selection's text nodes trimmed and joined with sep,
// so <br/>-separated address lines keep a separator.
func joinedText(sel *goquery.Selection, sep string) string {
	var parts []string
	for _, node := range sel.Nodes {
		collectTextNodes(node, &parts)
	}
	return strings.Join(parts, sep)
}

func collectTextNodes(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			*parts = append(*parts, s)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectTextNodes(c, parts)
	}
}

// firstTextNodeMatch returns the first trimmed text node under sel that
// matches re, or empty.
func firstTextNodeMatch(sel *goquery.Selection, re *regexp.Regexp) string {
	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.TextNode {
			if re.MatchString(n.Data) {
				found = strings.TrimSpace(n.Data)
				return true
			}
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for _, node := range sel.Nodes {
		if walk(node) {
			break
		}
	}
	return found
}

func capitalize(s string) string {
	r := []rune(strings.ToLower(s))
	if len(r) > 0 {
		r[0] = unicode.ToUpper(r[0])
	}
	return string(r)
}
