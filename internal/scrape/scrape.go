// Package scrape turns the site's HTML pages into domain records. Each
// scraper walks or parses one page family; extraction is selector-keyed
// and, on detail pages, best-effort per field.
package scrape

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"enchimmo/internal/client"
)

// Entry paths of the two crawl roots.
const (
	IndexPath   = "/ventes-aux-encheres-immobilieres/france.html"
	HistoryPath = "/historique-des-adjudications.html"
)

// Scraper bundles the paced HTTP client with the page parsers.
type Scraper struct {
	client *client.Client
	logger *slog.Logger
}

func New(c *client.Client, logger *slog.Logger) *Scraper {
	return &Scraper{client: c, logger: logger}
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

// normalizePath drops query and fragment, the visited-set key for cycle
// protection.
func normalizePath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

func stripFragment(raw string) string {
	if i := strings.Index(raw, "#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

var digitsRe = regexp.MustCompile(`(\d+)`)

// pageTotal reads the pagination total from span.PageTotal, defaulting to
// one page.
func pageTotal(doc *goquery.Document) int {
	if m := digitsRe.FindString(text(doc.Find("span.PageTotal").First())); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}
	return 1
}

// nextPageLink returns the href of the next pagination link, or empty.
func nextPageLink(doc *goquery.Document) string {
	href, _ := doc.Find("a.Next.PageNav").First().Attr("href")
	return href
}

// hearingRef is one hearing-date entry from the traversing section.
type hearingRef struct {
	path  string
	label string
}

// hearingRefs lists the other hearing dates in the traversing section.
// The Previous/Next nav entries and empty slots are not hearings.
func hearingRefs(doc *goquery.Document) []hearingRef {
	var refs []hearingRef
	doc.Find("div#traversing-hearings ul").First().ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		if li.HasClass("Previous") || li.HasClass("Next") || li.HasClass("Empty") {
			return
		}
		link := li.Find("a").First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}
		label := link.Text()
		if count := link.Find("span.Count").First(); count.Length() > 0 {
			label = strings.Replace(label, count.Text(), "", 1)
		}
		refs = append(refs, hearingRef{path: stripFragment(href), label: strings.TrimSpace(label)})
	})
	return refs
}

// hearingLinks returns just the paths from hearingRefs.
func hearingLinks(doc *goquery.Document) []string {
	refs := hearingRefs(doc)
	links := make([]string, 0, len(refs))
	for _, r := range refs {
		links = append(links, r.path)
	}
	return links
}

// olderHearingsLink returns the "Audiences antérieures" nav href used by
// the history walker to move further back in time, or empty.
func olderHearingsLink(doc *goquery.Document) string {
	href, ok := doc.Find("div#traversing-hearings ul li.Next a").First().Attr("href")
	if !ok {
		return ""
	}
	return stripFragment(href)
}
