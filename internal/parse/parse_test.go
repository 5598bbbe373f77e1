package parse

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestListingID(t *testing.T) {
	id, err := ListingID("/annonce/tj-paris/une-piece/paris-9eme/106898.html")
	if err != nil {
		t.Fatalf("ListingID returned error: %v", err)
	}
	if id != 106898 {
		t.Fatalf("ListingID = %d, want 106898", id)
	}

	for _, path := range []string{"", "/annonce/foo.html", "/annonce/123.htm", "/123.html/extra"} {
		if _, err := ListingID(path); !errors.Is(err, ErrBadInput) {
			t.Fatalf("ListingID(%q) error = %v, want ErrBadInput", path, err)
		}
	}
}

func TestPrice(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"220 000 EUR", 220000, true},
		{"220,000", 220000, true},
		{"220000 €", 220000, true},
		{"Mise à prix : 70 000 EUR", 70000, true},
		{"58 000 €", 58000, true},
		{"", 0, false},
		{"aucun prix", 0, false},
	}
	for _, c := range cases {
		got, ok := Price(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("Price(%q) = %d, %v; want %d, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestPriceIgnoresNonDigits(t *testing.T) {
	// Interleaving arbitrary non-digit characters must not change the value.
	if a, _ := Price("58000"); a != 58000 {
		t.Fatalf("Price(58000) = %d", a)
	}
	if b, _ := Price("x5!8 0.0,0€"); b != 58000 {
		t.Fatalf("Price with noise = %d, want 58000", b)
	}
}

func TestSurface(t *testing.T) {
	a, okA := Surface("134,87 m²")
	b, okB := Surface("134.87 m2")
	if !okA || !okB {
		t.Fatalf("Surface variants not both parsed: %v %v", okA, okB)
	}
	if diff := a - b; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("Surface comma/dot mismatch: %f vs %f", a, b)
	}
	if a-134.87 > 1e-6 || a-134.87 < -1e-6 {
		t.Fatalf("Surface = %f, want 134.87", a)
	}
	if _, ok := Surface("trois pièces"); ok {
		t.Fatal("Surface matched text without a surface")
	}
}

func TestFrenchDate(t *testing.T) {
	got, ok := FrenchDate("jeudi 12 février 2026")
	if !ok || got != "2026-02-12" {
		t.Fatalf("FrenchDate = %q, %v; want 2026-02-12", got, ok)
	}

	got, ok = FrenchDate("3 decembre 2025")
	if !ok || got != "2025-12-03" {
		t.Fatalf("FrenchDate unaccented = %q, %v; want 2025-12-03", got, ok)
	}

	// Year defaults to the current one.
	got, ok = FrenchDate("12 mars")
	want := fmt.Sprintf("%04d-03-12", time.Now().Year())
	if !ok || got != want {
		t.Fatalf("FrenchDate without year = %q, want %q", got, want)
	}

	if _, ok := FrenchDate("12 brumaire 2026"); ok {
		t.Fatal("FrenchDate accepted an unknown month")
	}
}

func TestAuctionTime(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"14h00", "14:00"},
		{"9h30", "09:30"},
		{"14:00", "14:00"},
		{"à 9 h 30 précises", "09:30"},
	}
	for _, c := range cases {
		got, ok := AuctionTime(c.in)
		if !ok || got != c.want {
			t.Fatalf("AuctionTime(%q) = %q, %v; want %q", c.in, got, ok, c.want)
		}
	}
	if _, ok := AuctionTime("quatorze heures"); ok {
		t.Fatal("AuctionTime matched prose")
	}
}

func TestGPSFromMapsURL(t *testing.T) {
	lat, lng, ok := GPSFromMapsURL("https://maps.google.fr/maps?q=48.8534,2.2754&z=13")
	if !ok {
		t.Fatal("GPSFromMapsURL did not match")
	}
	if lat != 48.8534 || lng != 2.2754 {
		t.Fatalf("GPSFromMapsURL = %f,%f", lat, lng)
	}
	if _, _, ok := GPSFromMapsURL("https://maps.google.fr/maps?z=13"); ok {
		t.Fatal("GPSFromMapsURL matched a URL without coordinates")
	}
}

func TestDepartmentCity(t *testing.T) {
	dept, city := DepartmentCity("75 Paris 16ème")
	if dept != "75" || city != "Paris 16ème" {
		t.Fatalf("DepartmentCity = %q, %q", dept, city)
	}

	dept, city = DepartmentCity("971 Pointe-à-Pitre")
	if dept != "971" || city != "Pointe-à-Pitre" {
		t.Fatalf("DepartmentCity overseas = %q, %q", dept, city)
	}

	// No leading code: everything is the city.
	dept, city = DepartmentCity("  Paris  ")
	if dept != "" || city != "Paris" {
		t.Fatalf("DepartmentCity fallback = %q, %q", dept, city)
	}
}

func TestTribunalSlug(t *testing.T) {
	slug, ok := TribunalSlug("/ventes-judiciaires-immobilieres/tj-aix-en-provence/jeudi-5-fevrier-2026.html")
	if !ok || slug != "tj-aix-en-provence" {
		t.Fatalf("TribunalSlug = %q, %v", slug, ok)
	}
	if _, ok := TribunalSlug("/annonce/tj-paris/106898.html"); ok {
		t.Fatal("TribunalSlug matched a listing URL")
	}
}

func TestViewCount(t *testing.T) {
	if n, ok := ViewCount("13 200"); !ok || n != 13200 {
		t.Fatalf("ViewCount = %d, %v", n, ok)
	}
	if _, ok := ViewCount("❤"); ok {
		t.Fatal("ViewCount matched a glyph without digits")
	}
}

func TestResultSold(t *testing.T) {
	r := Result("05-02-2026 : 58 000 €", "58 000 €")
	if r.Status != ResultSold {
		t.Fatalf("Result status = %q, want sold", r.Status)
	}
	if r.FinalPrice != 58000 {
		t.Fatalf("Result price = %d, want 58000", r.FinalPrice)
	}
	if r.ResultDate != "2026-02-05" {
		t.Fatalf("Result date = %q, want 2026-02-05", r.ResultDate)
	}
}

func TestResultNonSale(t *testing.T) {
	r := Result("Carence d'enchères", "")
	if r.Status != ResultCarence || r.FinalPrice != 0 || r.ResultDate != "" {
		t.Fatalf("carence decoded as %+v", r)
	}

	r = Result("Vente non requise", "")
	if r.Status != ResultNonRequise || r.FinalPrice != 0 || r.ResultDate != "" {
		t.Fatalf("non requise decoded as %+v", r)
	}
}

func TestResultAmbiguous(t *testing.T) {
	// A date with no parseable price is skipped upstream.
	r := Result("05-02-2026 :", "")
	if r.Status != "" {
		t.Fatalf("ambiguous row decoded as %+v", r)
	}
	if r := Result("", ""); r.Status != "" {
		t.Fatalf("empty row decoded as %+v", r)
	}
}
