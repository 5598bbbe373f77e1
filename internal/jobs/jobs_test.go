package jobs

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"enchimmo/internal/client"
	"enchimmo/internal/config"
	"enchimmo/internal/migrate"
	"enchimmo/internal/model"
	"enchimmo/internal/progress"
	"enchimmo/internal/scrape"
	"enchimmo/internal/store"
)

const (
	nanterreHearing    = "/ventes-judiciaires-immobilieres/tj-nanterre/prochaines-ventes.html"
	nanterreJanHearing = "/ventes-judiciaires-immobilieres/tj-nanterre/jeudi-14-janvier-2027.html"
	lyonHearing        = "/ventes-judiciaires-immobilieres/tj-lyon/prochaines-ventes.html"
	nanterreResults    = "/ventes-judiciaires-immobilieres/tj-nanterre/adjudications/jeudi-2-juillet-2026.html"
	lyonResults        = "/ventes-judiciaires-immobilieres/tj-lyon/adjudications/mardi-30-juin-2026.html"
)

type fixtureSite struct {
	*httptest.Server
	mu    sync.Mutex
	hits  map[string]int
	after func(path string)
}

// newFixtureSite serves testdata files keyed by request path. The after
// hook, when set, runs once a response has been written; tests use it to
// flip the cancel flag mid-run.
func newFixtureSite(t *testing.T, routes map[string]string) *fixtureSite {
	t.Helper()
	fs := &fixtureSite{hits: make(map[string]int)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.hits[r.URL.Path]++
		after := fs.after
		fs.mu.Unlock()

		name, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join("testdata", name))
		if after != nil {
			after(r.URL.Path)
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fixtureSite) hitCount(key string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[key]
}

func (fs *fixtureSite) setAfter(fn func(path string)) {
	fs.mu.Lock()
	fs.after = fn
	fs.mu.Unlock()
}

type testEnv struct {
	orch    *Orchestrator
	store   *store.Store
	db      *sql.DB
	dataDir string
}

func newTestEnv(t *testing.T, baseURL string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "enchimmo.db")
	if err := migrate.Run(dbPath); err != nil {
		t.Fatalf("migrate.Run: %v", err)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Client.BaseURL = baseURL
	cfg.Client.UserAgent = "test-bot/1.0"
	cfg.Client.MinDelaySec = 0
	cfg.Client.MaxDelaySec = 0
	cfg.Client.MaxRetries = 1
	cfg.Client.RetryBackoff = 0.01
	cfg.Client.TimeoutMs = 5000
	cfg.Robots.Respect = false
	cfg.Database.Path = dbPath
	cfg.Data.Dir = dir

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := client.New(cfg.Client, cfg.Robots, logger)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	st := store.New(db)
	return &testEnv{
		orch:    New(cfg, st, scrape.New(c, logger), logger),
		store:   st,
		db:      db,
		dataDir: dir,
	}
}

type logRow struct {
	jobType  string
	finished bool
	pages    int64
	newCount int64
	updated  int64
	errCount int64
	notes    sql.NullString
}

func readLogRow(t *testing.T, db *sql.DB) logRow {
	t.Helper()
	var row logRow
	var finishedAt sql.NullString
	err := db.QueryRow(
		`SELECT job_type, finished_at, pages_scraped, listings_new, listings_updated, errors, notes
		   FROM scrape_log`,
	).Scan(&row.jobType, &finishedAt, &row.pages, &row.newCount, &row.updated, &row.errCount, &row.notes)
	if err != nil {
		t.Fatalf("read scrape_log: %v", err)
	}
	row.finished = finishedAt.Valid
	return row
}

func upcomingRoutes() map[string]string {
	return map[string]string{
		scrape.IndexPath:   "full_index.html",
		nanterreHearing:    "hearing_nanterre.html",
		nanterreJanHearing: "hearing_nanterre_jan.html",
		lyonHearing:        "hearing_lyon.html",
		"/annonce/vente/appartement/colombes/92700/4101.html":          "detail_upcoming.html",
		"/annonce/vente/maison/rueil-malmaison/92500/4102.html":        "detail_upcoming.html",
		"/annonce/vente/studio/nanterre/92000/4103.html":               "detail_upcoming.html",
		"/annonce/vente/appartement/lyon-3eme/69003/4201.html":         "detail_upcoming.html",
		"/annonce/vente/local-commercial/villeurbanne/69100/4202.html": "detail_upcoming.html",
	}
}

func TestRunFullWorkflow(t *testing.T) {
	site := newFixtureSite(t, upcomingRoutes())
	env := newTestEnv(t, site.URL)
	ctx := context.Background()

	if err := env.orch.RunFull(ctx, 500); err != nil {
		t.Fatalf("RunFull: %v", err)
	}

	count, err := env.store.CountListings(ctx)
	if err != nil {
		t.Fatalf("CountListings: %v", err)
	}
	if count != 5 {
		t.Fatalf("listings = %d, want 5", count)
	}

	listing, err := env.store.ListingByLicitorID(ctx, 4103)
	if err != nil {
		t.Fatalf("ListingByLicitorID: %v", err)
	}
	if listing == nil {
		t.Fatal("listing 4103 missing")
	}
	if !listing.DetailScraped {
		t.Error("listing 4103 not marked detail_scraped")
	}
	if listing.StartingPrice == nil || *listing.StartingPrice != 60000 {
		t.Errorf("StartingPrice = %v, want 60000", listing.StartingPrice)
	}
	if listing.SurfaceM2 == nil || *listing.SurfaceM2 != 75 {
		t.Errorf("SurfaceM2 = %v, want 75", listing.SurfaceM2)
	}
	if listing.AuctionDate == nil || *listing.AuctionDate != "2026-12-10" {
		t.Errorf("AuctionDate = %v, want 2026-12-10", listing.AuctionDate)
	}
	if listing.AuctionTime == nil || *listing.AuctionTime != "10:00" {
		t.Errorf("AuctionTime = %v, want 10:00", listing.AuctionTime)
	}
	if listing.Status != "upcoming" {
		t.Errorf("Status = %q, want upcoming", listing.Status)
	}
	if listing.TribunalSlug == nil || *listing.TribunalSlug != "tj-nanterre" {
		t.Errorf("TribunalSlug = %v, want tj-nanterre", listing.TribunalSlug)
	}

	row := readLogRow(t, env.db)
	if row.jobType != JobFullIndex {
		t.Errorf("scrape_log job_type = %q, want %q", row.jobType, JobFullIndex)
	}
	if !row.finished {
		t.Error("scrape_log row not finished")
	}
	if row.newCount != 5 || row.errCount != 0 {
		t.Errorf("scrape_log new=%d errors=%d, want 5 and 0", row.newCount, row.errCount)
	}

	rec := progress.Read(env.dataDir)
	if rec == nil {
		t.Fatal("no progress record")
	}
	if rec.Status != progress.StatusFinished {
		t.Errorf("progress status = %q, want finished", rec.Status)
	}
	if rec.JobType != "full" {
		t.Errorf("progress job_type = %q, want full", rec.JobType)
	}
	if rec.Processed != 7 || rec.Total != 7 {
		t.Errorf("progress processed/total = %d/%d, want 7/7", rec.Processed, rec.Total)
	}
	if rec.Phase != "Backfill details" || rec.PhaseNumber != 3 || rec.PhaseTotal != 5 {
		t.Errorf("progress phase = %q (%d/%d), want Backfill details (3/5)",
			rec.Phase, rec.PhaseNumber, rec.PhaseTotal)
	}

	if got := site.hitCount(scrape.IndexPath); got != 1 {
		t.Errorf("index fetched %d times, want 1", got)
	}
	if got := site.hitCount("/annonce/vente/appartement/colombes/92700/4101.html"); got != 1 {
		t.Errorf("detail 4101 fetched %d times, want 1", got)
	}
}

func TestRunIncrementalScrapesNewDetails(t *testing.T) {
	site := newFixtureSite(t, upcomingRoutes())
	env := newTestEnv(t, site.URL)
	ctx := context.Background()

	if err := env.orch.RunIncremental(ctx); err != nil {
		t.Fatalf("RunIncremental: %v", err)
	}

	count, err := env.store.CountListings(ctx)
	if err != nil {
		t.Fatalf("CountListings: %v", err)
	}
	if count != 5 {
		t.Fatalf("listings = %d, want 5", count)
	}
	listing, err := env.store.ListingByLicitorID(ctx, 4201)
	if err != nil {
		t.Fatalf("ListingByLicitorID: %v", err)
	}
	if listing == nil || !listing.DetailScraped {
		t.Error("listing 4201 missing or not detail-scraped")
	}

	row := readLogRow(t, env.db)
	if row.jobType != JobIncremental || !row.finished {
		t.Errorf("scrape_log = %+v, want finished incremental row", row)
	}
	if row.newCount != 5 || row.errCount != 0 {
		t.Errorf("scrape_log new=%d errors=%d, want 5 and 0", row.newCount, row.errCount)
	}

	// 2 tribunal ticks + 5 detail ticks; the total keeps its extra
	// never-ticked slot.
	rec := progress.Read(env.dataDir)
	if rec == nil {
		t.Fatal("no progress record")
	}
	if rec.Status != progress.StatusFinished {
		t.Errorf("progress status = %q, want finished", rec.Status)
	}
	if rec.Processed != 7 || rec.Total != 8 {
		t.Errorf("progress processed/total = %d/%d, want 7/8", rec.Processed, rec.Total)
	}

	if got := site.hitCount(nanterreHearing); got != 1 {
		t.Errorf("nanterre hearing fetched %d times, want 1", got)
	}
}

func TestRunHistoryCancelledBetweenTribunals(t *testing.T) {
	site := newFixtureSite(t, map[string]string{
		scrape.HistoryPath: "history_index.html",
		nanterreResults:    "results_nanterre.html",
		lyonResults:        "results_lyon.html",
	})
	env := newTestEnv(t, site.URL)
	ctx := context.Background()

	site.setAfter(func(path string) {
		if path == nanterreResults {
			if err := progress.RequestCancel(env.dataDir); err != nil {
				t.Errorf("RequestCancel: %v", err)
			}
		}
	})

	err := env.orch.RunHistory(ctx, 50, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("RunHistory error = %v, want ErrCancelled", err)
	}

	if progress.CancelRequested(env.dataDir) {
		t.Error("cancel flag not cleared after run")
	}
	rec := progress.Read(env.dataDir)
	if rec == nil {
		t.Fatal("no progress record")
	}
	if rec.Status != progress.StatusCancelled {
		t.Errorf("progress status = %q, want cancelled", rec.Status)
	}
	if rec.JobType != JobHistory {
		t.Errorf("progress job_type = %q, want %q", rec.JobType, JobHistory)
	}
	if rec.Processed != 1 {
		t.Errorf("progress processed = %d, want 1", rec.Processed)
	}

	row := readLogRow(t, env.db)
	if !row.finished {
		t.Error("scrape_log row left open after cancel")
	}
	if row.newCount != 2 || row.pages != 1 || row.errCount != 0 {
		t.Errorf("scrape_log new=%d pages=%d errors=%d, want 2, 1, 0",
			row.newCount, row.pages, row.errCount)
	}

	listing, err := env.store.ListingByLicitorID(ctx, 5101)
	if err != nil {
		t.Fatalf("ListingByLicitorID: %v", err)
	}
	if listing == nil {
		t.Fatal("listing 5101 missing")
	}
	if !listing.IsHistorical || listing.Status != "past" {
		t.Errorf("listing 5101 historical=%v status=%q, want true past", listing.IsHistorical, listing.Status)
	}
	if listing.ResultStatus == nil || *listing.ResultStatus != "sold" {
		t.Errorf("ResultStatus = %v, want sold", listing.ResultStatus)
	}
	if listing.FinalPrice == nil || *listing.FinalPrice != 70000 {
		t.Errorf("FinalPrice = %v, want 70000", listing.FinalPrice)
	}
	if listing.AuctionDate == nil || *listing.AuctionDate != "2026-07-02" {
		t.Errorf("AuctionDate = %v, want 2026-07-02", listing.AuctionDate)
	}

	if got := site.hitCount(lyonResults); got != 0 {
		t.Errorf("lyon results fetched %d times, want 0 after cancel", got)
	}
}

func TestRunMapBackfillCountsOutcomes(t *testing.T) {
	site := newFixtureSite(t, map[string]string{
		"/annonce/vente/appartement/colombes/92700/6101.html": "detail_upcoming.html",
		"/annonce/vente/maison/suresnes/92150/6102.html":      "detail_noprice.html",
	})
	env := newTestEnv(t, site.URL)
	ctx := context.Background()

	seedHistorical(t, env, 6101, "/annonce/vente/appartement/colombes/92700/6101.html", "sold")
	seedHistorical(t, env, 6102, "/annonce/vente/maison/suresnes/92150/6102.html", "carence")

	if err := env.orch.RunMapBackfill(ctx, 50); err != nil {
		t.Fatalf("RunMapBackfill: %v", err)
	}

	withPrice, err := env.store.ListingByLicitorID(ctx, 6101)
	if err != nil {
		t.Fatalf("ListingByLicitorID: %v", err)
	}
	if withPrice == nil {
		t.Fatal("listing 6101 missing")
	}
	if withPrice.StartingPrice == nil || *withPrice.StartingPrice != 60000 {
		t.Errorf("6101 StartingPrice = %v, want 60000", withPrice.StartingPrice)
	}
	without, err := env.store.ListingByLicitorID(ctx, 6102)
	if err != nil {
		t.Fatalf("ListingByLicitorID: %v", err)
	}
	if without == nil {
		t.Fatal("listing 6102 missing")
	}
	if without.StartingPrice != nil {
		t.Errorf("6102 StartingPrice = %v, want nil", without.StartingPrice)
	}

	row := readLogRow(t, env.db)
	if row.jobType != JobMapBackfill || !row.finished {
		t.Errorf("scrape_log = %+v, want finished map_backfill row", row)
	}
	if row.updated != 1 || row.pages != 2 || row.errCount != 0 {
		t.Errorf("scrape_log updated=%d pages=%d errors=%d, want 1, 2, 0",
			row.updated, row.pages, row.errCount)
	}
	if !row.notes.Valid || row.notes.String != "not_found=1" {
		t.Errorf("scrape_log notes = %v, want not_found=1", row.notes)
	}

	rec := progress.Read(env.dataDir)
	if rec == nil {
		t.Fatal("no progress record")
	}
	if rec.Status != progress.StatusFinished || rec.Updated != 1 || rec.NotFound != 1 {
		t.Errorf("progress status=%q updated=%d not_found=%d, want finished 1 1",
			rec.Status, rec.Updated, rec.NotFound)
	}
}

func TestRunSurfaceBackfillFillsSurface(t *testing.T) {
	site := newFixtureSite(t, map[string]string{
		"/annonce/vente/appartement/colombes/92700/6101.html": "detail_upcoming.html",
	})
	env := newTestEnv(t, site.URL)
	ctx := context.Background()

	seedHistorical(t, env, 6101, "/annonce/vente/appartement/colombes/92700/6101.html", "carence")

	if err := env.orch.RunSurfaceBackfill(ctx, 50); err != nil {
		t.Fatalf("RunSurfaceBackfill: %v", err)
	}

	listing, err := env.store.ListingByLicitorID(ctx, 6101)
	if err != nil {
		t.Fatalf("ListingByLicitorID: %v", err)
	}
	if listing == nil {
		t.Fatal("listing 6101 missing")
	}
	if listing.SurfaceM2 == nil || *listing.SurfaceM2 != 75 {
		t.Errorf("SurfaceM2 = %v, want 75", listing.SurfaceM2)
	}

	row := readLogRow(t, env.db)
	if row.jobType != JobSurfaceBackfill || row.updated != 1 {
		t.Errorf("scrape_log = %+v, want surface_backfill with updated=1", row)
	}
}

// seedHistorical stores one bare historical row so the backfill
// selectors pick it up.
func seedHistorical(t *testing.T, env *testEnv, id int64, urlPath, status string) {
	t.Helper()
	ctx := context.Background()
	if err := env.store.UpsertTribunals(ctx, []model.TribunalInfo{{
		Slug:    "tj-nanterre",
		Name:    "Tribunal Judiciaire de Nanterre",
		Region:  "Île-de-France",
		URLPath: nanterreHearing,
	}}); err != nil {
		t.Fatalf("UpsertTribunals: %v", err)
	}
	sum := model.ListingSummary{LicitorID: id, URLPath: urlPath, ResultStatus: &status}
	if _, err := env.store.UpsertListingSummary(ctx, sum, "tj-nanterre", true, ""); err != nil {
		t.Fatalf("UpsertListingSummary: %v", err)
	}
}
