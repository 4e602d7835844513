package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inmoradar/internal/config"
	"inmoradar/internal/crawler"
	"inmoradar/internal/models"
	"inmoradar/internal/ratelimit"
	"inmoradar/internal/scoring"
	"inmoradar/internal/session"
	"inmoradar/internal/store"
	"inmoradar/internal/zones"
)

type fakeSession struct{}

func (fakeSession) FetchPage(context.Context, string) (string, error) { return "", nil }
func (fakeSession) Release()                                          {}

type fakeBroker struct {
	err error
}

func (b *fakeBroker) Acquire(context.Context, models.Portal, string) (session.Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	return fakeSession{}, nil
}

type fakeDiscoverer struct {
	mu    sync.Mutex
	urls  map[models.Portal][]string
	errs  map[models.Portal]error
	calls int
}

func (d *fakeDiscoverer) Discover(_ context.Context, task crawler.Task) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.urls[task.Portal], d.errs[task.Portal]
}

// fakeExtractor resolves every URL to a fixed-shape record unless the URL is
// in its failure or partial set. Call times are recorded so pacing across
// listing fetches can be asserted.
type fakeExtractor struct {
	mu          sync.Mutex
	failURLs    map[string]bool
	partialURLs map[string]bool
	fetchTimes  []time.Time
}

func (e *fakeExtractor) Extract(_ context.Context, _ session.Session, listingURL string, portal models.Portal) (*models.Property, error) {
	e.mu.Lock()
	e.fetchTimes = append(e.fetchTimes, time.Now())
	e.mu.Unlock()

	if e.failURLs[listingURL] {
		return nil, fmt.Errorf("fetch failed for %s", listingURL)
	}
	price := 200000.0
	surface := 80.0
	p := &models.Property{
		SourceURL:            listingURL,
		Portal:               portal,
		Title:                "Piso en venta",
		Price:                &price,
		SurfaceM2:            &surface,
		Status:               models.PropertyStatusActive,
		Condition:            models.ConditionGood,
		ExtractionConfidence: models.ConfidenceFull,
	}
	if e.partialURLs[listingURL] {
		p.SurfaceM2 = nil
		p.ExtractionConfidence = models.ConfidencePartial
	}
	return p, nil
}

func (e *fakeExtractor) gaps() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	var gaps []time.Duration
	for i := 1; i < len(e.fetchTimes); i++ {
		gaps = append(gaps, e.fetchTimes[i].Sub(e.fetchTimes[i-1]))
	}
	return gaps
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
}

func (i *fakeIndexer) IndexProperty(p *models.Property) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.indexed = append(i.indexed, p.ID)
	return nil
}

func (i *fakeIndexer) DeleteProperty(string) error { return nil }

func listingURLs(portal models.Portal, n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://www.%s.com/inmueble/%d/", portal, i+1)
	}
	return urls
}

func testZones() *zones.Table {
	return zones.NewTable([]zones.Zone{
		{Name: "Lavapiés", District: "Centro", PriorityTier: 1, ReferencePricePerM2: 3800},
	})
}

func newTestGateway(t *testing.T) *store.Gateway {
	t.Helper()
	backend, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, backend.InitSchema())
	t.Cleanup(func() { backend.Close() })
	return store.NewGateway(backend, config.DebounceSameDay)
}

func newTestRunner(t *testing.T, d Discoverer, b Broker, e Extractor, idx Indexer) *Runner {
	t.Helper()
	return newTestRunnerWithLimits(t, d, b, e, idx,
		ratelimit.NewPacer(1, 0, 0), ratelimit.NewBudget(0, 0, false))
}

func newTestRunnerWithLimits(t *testing.T, d Discoverer, b Broker, e Extractor, idx Indexer,
	pacer *ratelimit.Pacer, budget *ratelimit.Budget) *Runner {
	t.Helper()
	gw := newTestGateway(t)
	scorer := scoring.NewScorer(config.DefaultConfig().Scoring)
	cfg := config.CrawlerConfig{
		MaxPages:           5,
		MaxProperties:      100,
		ConcurrentTasks:    2,
		ItemTimeoutSeconds: 5,
	}
	return NewRunner(d, b, e, scorer, gw, testZones(), idx, pacer, budget, cfg)
}

func TestRunCapsAtMaxProperties(t *testing.T) {
	d := &fakeDiscoverer{urls: map[models.Portal][]string{
		models.PortalIdealista: listingURLs(models.PortalIdealista, 50),
	}}
	r := newTestRunner(t, d, &fakeBroker{}, &fakeExtractor{}, nil)

	result, err := r.Run(context.Background(), RunParams{
		Portals:       []models.Portal{models.PortalIdealista},
		MaxProperties: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, 50, result.TotalFound)
	assert.LessOrEqual(t, result.TotalProcessed, 5)
	assert.Equal(t, result.TotalProcessed, result.Saved+result.Skipped+result.Errors)
}

func TestRunCountsEveryItemExactlyOnce(t *testing.T) {
	urls := listingURLs(models.PortalIdealista, 10)
	d := &fakeDiscoverer{urls: map[models.Portal][]string{models.PortalIdealista: urls}}
	e := &fakeExtractor{failURLs: map[string]bool{urls[2]: true, urls[7]: true}}
	r := newTestRunner(t, d, &fakeBroker{}, e, nil)

	result, err := r.Run(context.Background(), RunParams{
		Portals: []models.Portal{models.PortalIdealista},
	})
	require.NoError(t, err)

	assert.Equal(t, 10, result.TotalProcessed)
	assert.Equal(t, 2, result.Errors, "failed fetches with no stored fallback count as errors")
	assert.Equal(t, 8, result.Saved)
	assert.Equal(t, result.TotalProcessed, result.Saved+result.Skipped+result.Errors)
}

func TestValidateRejectsBadParamsBeforeSideEffects(t *testing.T) {
	d := &fakeDiscoverer{}
	r := newTestRunner(t, d, &fakeBroker{}, &fakeExtractor{}, nil)

	var verr *ValidationError

	_, err := r.Run(context.Background(), RunParams{Portals: []models.Portal{"zillow"}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "portals", verr.Field)

	_, err = r.Run(context.Background(), RunParams{
		Portals:  []models.Portal{models.PortalIdealista},
		MaxPages: -1,
	})
	require.ErrorAs(t, err, &verr)

	_, err = r.Run(context.Background(), RunParams{
		Portals:       []models.Portal{models.PortalIdealista},
		MaxProperties: -3,
	})
	require.ErrorAs(t, err, &verr)

	_, err = r.Run(context.Background(), RunParams{})
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, 0, d.calls, "validation failures must not start discovery")
}

func TestRunIsolatesFailingSiblingTask(t *testing.T) {
	d := &fakeDiscoverer{
		urls: map[models.Portal][]string{
			models.PortalFotocasa: listingURLs(models.PortalFotocasa, 3),
		},
		errs: map[models.Portal]error{
			models.PortalIdealista: session.ErrAntiBotBlocked,
		},
	}
	r := newTestRunner(t, d, &fakeBroker{}, &fakeExtractor{}, nil)

	result, err := r.Run(context.Background(), RunParams{
		Portals: []models.Portal{models.PortalIdealista, models.PortalFotocasa},
	})
	require.NoError(t, err, "one blocked portal must not fail the whole run")

	assert.Equal(t, 3, result.TotalFound)
	assert.Equal(t, 3, result.Saved)
	assert.Equal(t, 1, result.Errors, "the blocked portal's aborted discovery must show up in the counters")
}

func TestRunCountsAbortedDiscoveryAsError(t *testing.T) {
	d := &fakeDiscoverer{errs: map[models.Portal]error{
		models.PortalIdealista: session.ErrAntiBotBlocked,
	}}
	r := newTestRunner(t, d, &fakeBroker{}, &fakeExtractor{}, nil)

	result, err := r.Run(context.Background(), RunParams{
		Portals: []models.Portal{models.PortalIdealista},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalFound)
	assert.Equal(t, 1, result.Errors, "discovery failures may not vanish from the run result")
}

func TestRunListingFetchesConsumeRequestBudget(t *testing.T) {
	urls := listingURLs(models.PortalIdealista, 5)
	d := &fakeDiscoverer{urls: map[models.Portal][]string{models.PortalIdealista: urls}}
	e := &fakeExtractor{}
	r := newTestRunnerWithLimits(t, d, &fakeBroker{}, e, nil,
		ratelimit.NewPacer(1, 0, 0), ratelimit.NewBudget(2, 0, true))

	result, err := r.Run(context.Background(), RunParams{
		Portals: []models.Portal{models.PortalIdealista},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Saved, "only the budgeted listing fetches may go out")
	assert.Equal(t, 3, result.Errors, "over-budget listings with no stored fallback count as errors")
	assert.Equal(t, result.TotalProcessed, result.Saved+result.Skipped+result.Errors)
}

func TestRunPacesListingFetches(t *testing.T) {
	const delay = 30 * time.Millisecond

	urls := listingURLs(models.PortalIdealista, 3)
	d := &fakeDiscoverer{urls: map[models.Portal][]string{models.PortalIdealista: urls}}
	e := &fakeExtractor{}
	r := newTestRunnerWithLimits(t, d, &fakeBroker{}, e, nil,
		ratelimit.NewPacer(1, delay, 0), ratelimit.NewBudget(0, 0, false))

	result, err := r.Run(context.Background(), RunParams{
		Portals: []models.Portal{models.PortalIdealista},
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.Saved)

	gaps := e.gaps()
	require.Len(t, gaps, 2)
	for _, gap := range gaps {
		assert.GreaterOrEqual(t, gap, delay-5*time.Millisecond,
			"listing fetches must honor the shared inter-request delay")
	}
}

func TestRunFallsBackToStoredRecordOnFetchFailure(t *testing.T) {
	urls := listingURLs(models.PortalIdealista, 1)
	d := &fakeDiscoverer{urls: map[models.Portal][]string{models.PortalIdealista: urls}}
	e := &fakeExtractor{failURLs: map[string]bool{urls[0]: true}}
	r := newTestRunner(t, d, &fakeBroker{}, e, nil)

	// Seed the record a previous run would have stored.
	price := 200000.0
	surface := 80.0
	_, err := r.gateway.Upsert(&models.Property{
		SourceURL: urls[0],
		Portal:    models.PortalIdealista,
		Price:     &price,
		SurfaceM2: &surface,
		Status:    models.PropertyStatusActive,
	}, store.UpsertOptions{})
	require.NoError(t, err)

	result, err := r.Run(context.Background(), RunParams{
		Portals: []models.Portal{models.PortalIdealista},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Errors, "a stored record downgrades a fetch failure to a skip or update")
	assert.Equal(t, 1, result.TotalProcessed)
	assert.Equal(t, result.TotalProcessed, result.Saved+result.Skipped+result.Errors)
}

func TestRunStoreFallbackOnlyWhenNoSession(t *testing.T) {
	urls := listingURLs(models.PortalIdealista, 2)
	d := &fakeDiscoverer{urls: map[models.Portal][]string{models.PortalIdealista: urls}}
	r := newTestRunner(t, d, &fakeBroker{err: session.ErrAntiBotBlocked}, &fakeExtractor{}, nil)

	price := 200000.0
	surface := 80.0
	_, err := r.gateway.Upsert(&models.Property{
		SourceURL: urls[0],
		Portal:    models.PortalIdealista,
		Price:     &price,
		SurfaceM2: &surface,
		Status:    models.PropertyStatusActive,
	}, store.UpsertOptions{})
	require.NoError(t, err)

	result, err := r.Run(context.Background(), RunParams{
		Portals: []models.Portal{models.PortalIdealista},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalProcessed)
	assert.Equal(t, 1, result.Errors, "listings with no stored record cannot be recovered without a session")
	assert.Equal(t, result.TotalProcessed, result.Saved+result.Skipped+result.Errors)
}

func TestRunFillsZoneAndScore(t *testing.T) {
	urls := listingURLs(models.PortalIdealista, 1)
	d := &fakeDiscoverer{urls: map[models.Portal][]string{models.PortalIdealista: urls}}
	r := newTestRunner(t, d, &fakeBroker{}, &fakeExtractor{}, nil)

	_, err := r.Run(context.Background(), RunParams{
		Portals: []models.Portal{models.PortalIdealista},
		Zones:   []string{"Lavapiés"},
	})
	require.NoError(t, err)

	p, err := r.gateway.FindByURL(urls[0])
	require.NoError(t, err)
	assert.Equal(t, "Lavapiés", p.Zone)
	assert.Greater(t, p.Score, 0.0)
	assert.NotEmpty(t, p.ScoreDetails)
}

func TestRunIndexesSavedRecords(t *testing.T) {
	urls := listingURLs(models.PortalIdealista, 4)
	d := &fakeDiscoverer{urls: map[models.Portal][]string{models.PortalIdealista: urls}}
	idx := &fakeIndexer{}
	r := newTestRunner(t, d, &fakeBroker{}, &fakeExtractor{}, idx)

	result, err := r.Run(context.Background(), RunParams{
		Portals: []models.Portal{models.PortalIdealista},
	})
	require.NoError(t, err)

	assert.Equal(t, result.Saved, len(idx.indexed))
}

func TestImportTextDeterministicKey(t *testing.T) {
	r := newTestRunner(t, &fakeDiscoverer{}, &fakeBroker{}, &fakeExtractor{}, nil)

	text := "Piso en venta en Lavapiés. 320.000 €. 95 m², 3 habitaciones, 2 baños."

	p1, outcome1, err := r.ImportText(text, "Lavapiés")
	require.NoError(t, err)
	assert.Equal(t, store.OutcomeCreated, outcome1)
	assert.True(t, strings.HasPrefix(p1.SourceURL, "manual://"))
	assert.Equal(t, models.PortalManual, p1.Portal)

	// Re-pasting the same description upserts the same row.
	p2, outcome2, err := r.ImportText("  "+text+"\n", "Lavapiés")
	require.NoError(t, err)
	assert.Equal(t, p1.SourceURL, p2.SourceURL)
	assert.Equal(t, store.OutcomeSkipped, outcome2)

	count, err := r.gateway.Count(store.ListFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestImportTextRejectsEmptyInput(t *testing.T) {
	r := newTestRunner(t, &fakeDiscoverer{}, &fakeBroker{}, &fakeExtractor{}, nil)

	var verr *ValidationError
	_, _, err := r.ImportText("   ", "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "text", verr.Field)
}

func TestImportURLRejectsUnknownHost(t *testing.T) {
	r := newTestRunner(t, &fakeDiscoverer{}, &fakeBroker{}, &fakeExtractor{}, nil)

	var verr *ValidationError
	_, _, _, err := r.ImportURL(context.Background(), "https://www.zillow.com/homes/1", "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "url", verr.Field)
}

func TestImportURLSavesExtractedRecord(t *testing.T) {
	r := newTestRunner(t, &fakeDiscoverer{}, &fakeBroker{}, &fakeExtractor{}, nil)

	p, outcome, provenance, err := r.ImportURL(context.Background(), "https://www.idealista.com/inmueble/99/", "Lavapiés")
	require.NoError(t, err)
	assert.Equal(t, store.OutcomeCreated, outcome)
	assert.Equal(t, ProvenanceLive, provenance)
	assert.Equal(t, models.PortalIdealista, p.Portal)
	assert.Equal(t, "Lavapiés", p.Zone)
	assert.Greater(t, p.Score, 0.0)
}

func TestImportURLReportsDatabaseFallback(t *testing.T) {
	url := "https://www.idealista.com/inmueble/99/"
	e := &fakeExtractor{failURLs: map[string]bool{url: true}}
	r := newTestRunner(t, &fakeDiscoverer{}, &fakeBroker{}, e, nil)

	price := 200000.0
	surface := 80.0
	_, err := r.gateway.Upsert(&models.Property{
		SourceURL: url,
		Portal:    models.PortalIdealista,
		Price:     &price,
		SurfaceM2: &surface,
		Status:    models.PropertyStatusActive,
	}, store.UpsertOptions{})
	require.NoError(t, err)

	p, _, provenance, err := r.ImportURL(context.Background(), url, "")
	require.NoError(t, err)
	assert.Equal(t, ProvenanceDatabase, provenance,
		"a stored record served after a fetch failure must not look live")
	assert.Equal(t, price, *p.Price)
}

func TestImportURLReportsPartialExtraction(t *testing.T) {
	url := "https://www.idealista.com/inmueble/99/"
	e := &fakeExtractor{partialURLs: map[string]bool{url: true}}
	r := newTestRunner(t, &fakeDiscoverer{}, &fakeBroker{}, e, nil)

	p, _, provenance, err := r.ImportURL(context.Background(), url, "")
	require.NoError(t, err)
	assert.Equal(t, ProvenancePartial, provenance)
	assert.Equal(t, models.ConfidencePartial, p.ExtractionConfidence)
}

func TestPortalFromURL(t *testing.T) {
	tests := []struct {
		url    string
		portal models.Portal
		ok     bool
	}{
		{"https://www.idealista.com/inmueble/1/", models.PortalIdealista, true},
		{"https://www.fotocasa.es/es/comprar/vivienda/2/d", models.PortalFotocasa, true},
		{"https://www.pisos.com/comprar/piso-3/", models.PortalPisos, true},
		{"https://www.zillow.com/homes/4", "", false},
	}
	for _, tt := range tests {
		portal, ok := PortalFromURL(tt.url)
		assert.Equal(t, tt.ok, ok, tt.url)
		assert.Equal(t, tt.portal, portal, tt.url)
	}
}
