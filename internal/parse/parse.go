// Package parse contains the pure text extractors shared by the page
// scrapers. Every function is side-effect free: text in, value out, with a
// boolean (or error for ListingID) signalling whether the input matched.
package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrBadInput is wrapped by ListingID when the URL carries no numeric id.
var ErrBadInput = errors.New("bad input")

var monthsFR = map[string]time.Month{
	"janvier":   time.January,
	"fevrier":   time.February,
	"février":   time.February,
	"mars":      time.March,
	"avril":     time.April,
	"mai":       time.May,
	"juin":      time.June,
	"juillet":   time.July,
	"aout":      time.August,
	"août":      time.August,
	"septembre": time.September,
	"octobre":   time.October,
	"novembre":  time.November,
	"decembre":  time.December,
	"décembre":  time.December,
}

const monthPattern = "janvier|f[eé]vrier|mars|avril|mai|juin|" +
	"juillet|ao[uû]t|septembre|octobre|novembre|d[eé]cembre"

var (
	listingIDRe  = regexp.MustCompile(`/(\d+)\.html$`)
	nonDigitRe   = regexp.MustCompile(`\D`)
	gpsRe        = regexp.MustCompile(`q=(-?[\d.]+),(-?[\d.]+)`)
	surfaceRe    = regexp.MustCompile(`([\d.,]+)\s*m[²2]`)
	deptCityRe   = regexp.MustCompile(`^(\d{2,3})\s+(.+)$`)
	frenchDateRe = regexp.MustCompile(`(\d{1,2})\s+(` + monthPattern + `)(?:\s+(\d{4}))?`)
	timeRe       = regexp.MustCompile(`(\d{1,2})\s*[hH:]\s*(\d{2})`)
	slugRe       = regexp.MustCompile(`/ventes-judiciaires-immobilieres/(tj-[^/]+)/`)
	resultDateRe = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})`)
)

// ListingID extracts the numeric id from a listing URL such as
// /annonce/.../106898.html.
func ListingID(urlPath string) (int64, error) {
	m := listingIDRe.FindStringSubmatch(urlPath)
	if m == nil {
		return 0, fmt.Errorf("no listing id in %q: %w", urlPath, ErrBadInput)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("listing id %q: %w", m[1], ErrBadInput)
	}
	return id, nil
}

// Price parses price text into integer euros. It accepts any formatting
// ("220 000 EUR", "220,000", "Mise à prix : 70 000 €") by stripping every
// non-digit character.
func Price(text string) (int64, bool) {
	cleaned := nonDigitRe.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Surface parses a surface like "44,02 m²" or "134.87 m2" into square meters.
func Surface(text string) (float64, bool) {
	m := surfaceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// GPSFromMapsURL extracts coordinates from a Google Maps link of the form
// https://maps.google.fr/maps?q=48.8534,2.2754&z=13.
func GPSFromMapsURL(href string) (lat, lng float64, ok bool) {
	m := gpsRe.FindStringSubmatch(href)
	if m == nil {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(m[1], 64)
	lng, errLng := strconv.ParseFloat(m[2], 64)
	if errLat != nil || errLng != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

// DepartmentCity splits a location like "75 Paris 16ème" into the department
// code and the city. When no leading code is present the whole trimmed text
// is returned as the city and the department is empty.
func DepartmentCity(locationText string) (dept, city string) {
	text := strings.TrimSpace(locationText)
	m := deptCityRe.FindStringSubmatch(text)
	if m == nil {
		return "", text
	}
	return m[1], strings.TrimSpace(m[2])
}

// FrenchDate parses a textual French date ("jeudi 12 février 2026",
// "3 janvier 2025", "12 mars") into ISO YYYY-MM-DD. The year defaults to the
// current year when absent. Accented and unaccented month spellings are both
// accepted.
func FrenchDate(text string) (string, bool) {
	m := frenchDateRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return "", false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	month, okMonth := monthsFR[m[2]]
	if !okMonth {
		return "", false
	}
	year := time.Now().Year()
	if m[3] != "" {
		year, err = strconv.Atoi(m[3])
		if err != nil {
			return "", false
		}
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day), true
}

// AuctionTime parses "14h00", "9h30" or "14:00" into zero-padded "HH:MM".
func AuctionTime(text string) (string, bool) {
	m := timeRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%02d:%s", hour, m[2]), true
}

// ViewCount parses an engagement counter like "13 200" into an integer.
func ViewCount(text string) (int64, bool) {
	return Price(text)
}

// TribunalSlug extracts "tj-paris" from a hearing path such as
// /ventes-judiciaires-immobilieres/tj-paris/....
func TribunalSlug(urlPath string) (string, bool) {
	m := slugRe.FindStringSubmatch(urlPath)
	if m == nil {
		return "", false
	}
	return m[1], true
}
