// Package model holds the records exchanged between the page scrapers, the
// store and the workflows. Nullable scraped fields are pointers; nil means
// the page did not carry the value.
package model

// TribunalInfo is one court entry discovered on an index page.
type TribunalInfo struct {
	Slug         string
	Name         string
	Region       string
	URLPath      string
	ListingCount int64
}

// ListingSummary is one auction row scraped from a hearing page. Result
// fields are only present on history pages.
type ListingSummary struct {
	LicitorID        int64
	URLPath          string
	PropertyType     *string
	DepartmentCode   *string
	City             *string
	StartingPrice    *int64
	DescriptionShort *string
	PublicationDate  *string
	FinalPrice       *int64
	ResultStatus     *string
	ResultDate       *string
}

// ListingDetail is the full field set scraped from a listing page. Every
// field except the id is best-effort.
type ListingDetail struct {
	LicitorID         int64
	URLPath           string
	PropertyType      *string
	Description       *string
	SurfaceM2         *float64
	StartingPrice     *int64
	AuctionDate       *string
	AuctionTime       *string
	PublicationDate   *string
	City              *string
	DepartmentCode    *string
	FullAddress       *string
	Latitude          *float64
	Longitude         *float64
	CadastralRef      *string
	TribunalName      *string
	TribunalSlug      *string
	CaseReference     *string
	HasPriceReduction *string
	VisitDate         *string
	LawyerName        *string
	LawyerPhone       *string
	EnergyRating      *string
	OccupancyStatus   *string
	PricePerM2Min     *float64
	PricePerM2Avg     *float64
	PricePerM2Max     *float64
	ViewCount         *int64
	FavoritesCount    *int64
}

// ListingRef identifies a stored listing for the backfill selectors.
type ListingRef struct {
	LicitorID int64
	URLPath   string
}

// Listing is a stored listing row as read back for alert matching and
// inspection. Region comes from the joined tribunal and may be empty.
type Listing struct {
	ID             int64
	LicitorID      int64
	URLPath        string
	PropertyType   *string
	DepartmentCode *string
	City           *string
	Description    *string
	SurfaceM2      *float64
	StartingPrice  *int64
	AuctionDate    *string
	AuctionTime    *string
	Status         string
	IsHistorical   bool
	DetailScraped  bool
	ResultStatus   *string
	FinalPrice     *int64
	ResultDate     *string
	TribunalID     *int64
	TribunalSlug   *string
	Region         *string
}

// Alert is a stored matching criterion. The set fields hold comma-joined
// values; empty means the criterion is not applied.
type Alert struct {
	ID              int64
	Name            string
	MinPrice        *int64
	MaxPrice        *int64
	MinSurface      *float64
	MaxSurface      *float64
	DepartmentCodes *string
	Regions         *string
	PropertyTypes   *string
	TribunalSlugs   *string
	IsActive        bool
}

// UnreadMatch is an alert match joined with its alert and listing for
// operator display.
type UnreadMatch struct {
	MatchID       int64
	AlertName     string
	LicitorID     int64
	City          *string
	PropertyType  *string
	StartingPrice *int64
	AuctionDate   *string
	URLPath       string
}

// ScrapeCounters are the terminal counters of one scrape_log row.
type ScrapeCounters struct {
	PagesScraped    int64
	ListingsNew     int64
	ListingsUpdated int64
	Errors          int64
}
