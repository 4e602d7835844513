// Package pipeline composes crawler, extractor, scorer and persistence
// gateway into orchestrated ingestion runs.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"inmoradar/internal/config"
	"inmoradar/internal/crawler"
	"inmoradar/internal/models"
	"inmoradar/internal/ratelimit"
	"inmoradar/internal/scoring"
	"inmoradar/internal/session"
	"inmoradar/internal/store"
	"inmoradar/internal/zones"
)

// ValidationError rejects malformed run parameters before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid run parameter %s: %s", e.Field, e.Reason)
}

// Discoverer is the slice of the crawler the runner needs.
type Discoverer interface {
	Discover(ctx context.Context, task crawler.Task) ([]string, error)
}

// Broker acquires anti-bot-resilient sessions.
type Broker interface {
	Acquire(ctx context.Context, portal models.Portal, targetURL string) (session.Session, error)
}

// Extractor resolves a listing URL into a canonical record.
type Extractor interface {
	Extract(ctx context.Context, sess session.Session, listingURL string, portal models.Portal) (*models.Property, error)
}

// Indexer mirrors saved records into the search engine. Optional.
type Indexer interface {
	IndexProperty(p *models.Property) error
	DeleteProperty(id string) error
}

// RunParams bounds one orchestrated run.
type RunParams struct {
	Portals       []models.Portal
	Zones         []string
	MaxPages      int
	MaxProperties int
}

// Runner drives portal/zone crawl tasks through a bounded worker pool,
// aggregating per-task results. Sibling tasks are isolated: one task
// exhausting its retry budget never cancels the others. The pacer and
// budget are the same instances the crawler uses, so listing fetches and
// results-page fetches share one inter-request delay and one quota.
type Runner struct {
	crawler   Discoverer
	broker    Broker
	extractor Extractor
	scorer    *scoring.Scorer
	gateway   *store.Gateway
	zones     *zones.Table
	search    Indexer
	pacer     *ratelimit.Pacer
	budget    *ratelimit.Budget
	cfg       config.CrawlerConfig
}

func NewRunner(c Discoverer, b Broker, e Extractor, s *scoring.Scorer,
	g *store.Gateway, z *zones.Table, idx Indexer,
	pacer *ratelimit.Pacer, budget *ratelimit.Budget, cfg config.CrawlerConfig) *Runner {
	return &Runner{
		crawler:   c,
		broker:    b,
		extractor: e,
		scorer:    s,
		gateway:   g,
		zones:     z,
		search:    idx,
		pacer:     pacer,
		budget:    budget,
		cfg:       cfg,
	}
}

// Validate checks run parameters. Called before any side effect.
func (r *Runner) Validate(params RunParams) error {
	if len(params.Portals) == 0 {
		return &ValidationError{Field: "portals", Reason: "at least one portal required"}
	}
	for _, p := range params.Portals {
		if !models.IsKnownPortal(p) {
			return &ValidationError{Field: "portals", Reason: fmt.Sprintf("unknown portal %q", p)}
		}
	}
	if params.MaxPages < 0 {
		return &ValidationError{Field: "max_pages", Reason: "must not be negative"}
	}
	if params.MaxProperties < 0 {
		return &ValidationError{Field: "max_properties", Reason: "must not be negative"}
	}
	return nil
}

// Run executes one ingestion run across the requested portals and zones.
// The aggregate result merges one sub-result per portal/zone task; each
// sub-result is also persisted as a run record for auditing.
func (r *Runner) Run(ctx context.Context, params RunParams) (*models.RunResult, error) {
	if err := r.Validate(params); err != nil {
		return nil, err
	}

	if params.MaxPages == 0 {
		params.MaxPages = r.cfg.MaxPages
	}
	if params.MaxProperties == 0 {
		params.MaxProperties = r.cfg.MaxProperties
	}

	tasks := buildTasks(params)
	log.Printf("[Runner] Starting run: %d tasks (max_pages=%d, max_properties=%d)",
		len(tasks), params.MaxPages, params.MaxProperties)

	workers := r.cfg.ConcurrentTasks
	if workers < 1 {
		workers = 1
	}

	var (
		mu        sync.Mutex
		aggregate models.RunResult
	)
	aggregate.StartedAt = time.Now()

	taskCh := make(chan crawler.Task)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				result := r.runTask(ctx, task)
				r.saveRunRecord(&result)

				mu.Lock()
				aggregate.Merge(result)
				mu.Unlock()
			}
		}()
	}

	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)
	wg.Wait()

	aggregate.EndedAt = time.Now()
	log.Printf("[Runner] Run finished: found=%d processed=%d saved=%d skipped=%d errors=%d",
		aggregate.TotalFound, aggregate.TotalProcessed,
		aggregate.Saved, aggregate.Skipped, aggregate.Errors)

	return &aggregate, nil
}

// runTask processes one portal/zone task sequentially. Failures are scoped
// to the single item; the task always returns a result.
func (r *Runner) runTask(ctx context.Context, task crawler.Task) models.RunResult {
	result := models.RunResult{
		Portal:    task.Portal,
		Zone:      task.Zone,
		StartedAt: time.Now(),
	}
	defer func() { result.EndedAt = time.Now() }()

	urls, err := r.crawler.Discover(ctx, task)
	if err != nil {
		// Partial discovery still yields work; the abort itself counts as
		// one task-level error so it is visible in the run counters.
		result.Errors++
		log.Printf("[Runner] Discovery aborted for %s/%s: %v (continuing with %d URLs)",
			task.Portal, task.Zone, err, len(urls))
	}
	result.TotalFound = len(urls)
	if len(urls) == 0 {
		return result
	}

	sess, err := r.broker.Acquire(ctx, task.Portal, urls[0])
	if err != nil {
		log.Printf("[Runner] Session acquisition failed for %s: %v (store fallback only)", task.Portal, err)
	} else {
		defer sess.Release()
	}

	for _, listingURL := range urls {
		if task.MaxProperties > 0 && result.TotalProcessed >= task.MaxProperties {
			break
		}
		if ctx.Err() != nil {
			break
		}

		result.TotalProcessed++
		outcome, err := r.processItem(ctx, sess, listingURL, task)
		if err != nil {
			result.Errors++
			log.Printf("[Runner] Item failed %s: %v", listingURL, err)
			continue
		}
		if outcome == store.OutcomeSkipped {
			result.Skipped++
		} else {
			result.Saved++
		}
	}

	return result
}

// processItem resolves one listing URL into a scored, persisted record.
// When the live fetch fails but a prior record exists, the stored values
// are reused as a degraded database-sourced result.
func (r *Runner) processItem(ctx context.Context, sess session.Session,
	listingURL string, task crawler.Task) (store.UpsertOutcome, error) {

	itemCtx, cancel := context.WithTimeout(ctx, r.cfg.GetItemTimeout())
	defer cancel()

	p, _, err := r.resolveListing(itemCtx, sess, listingURL, task.Portal)
	if err != nil {
		return "", err
	}

	if p.Zone == "" {
		p.Zone = task.Zone
	}
	r.score(p)

	outcome, err := r.gateway.Upsert(p, store.UpsertOptions{
		RunStartedAt: task.StartedAt,
	})
	if err != nil {
		return "", err
	}

	if r.search != nil && outcome != store.OutcomeSkipped {
		if err := r.search.IndexProperty(p); err != nil {
			log.Printf("[Runner] Search indexing failed for %s: %v", p.ID, err)
		}
	}
	return outcome, nil
}

// Provenance reports where an ingested record's field values came from: a
// live fetch that resolved every required field, a live fetch that left
// gaps, or the stored copy after a failed fetch.
type Provenance string

const (
	ProvenanceLive     Provenance = "live"
	ProvenancePartial  Provenance = "partial"
	ProvenanceDatabase Provenance = "database"
)

// resolveListing fetches one listing through the shared pacer and budget,
// falling back to the stored record when no session is available or the
// live fetch fails.
func (r *Runner) resolveListing(ctx context.Context, sess session.Session,
	listingURL string, portal models.Portal) (*models.Property, Provenance, error) {

	var p *models.Property
	var err error
	switch {
	case sess == nil:
		err = fmt.Errorf("no session available")
	case !r.budget.Allow():
		err = fmt.Errorf("request budget exhausted fetching %s", listingURL)
	default:
		if err = r.pacer.Acquire(ctx); err == nil {
			p, err = r.extractor.Extract(ctx, sess, listingURL, portal)
			r.pacer.Release()
		}
	}
	if err != nil {
		prior, lookupErr := r.gateway.FindByURL(listingURL)
		if lookupErr != nil {
			return nil, "", fmt.Errorf("extract %s: %w", listingURL, err)
		}
		log.Printf("[Runner] Using database-sourced record for %s after fetch failure: %v", listingURL, err)
		return prior, ProvenanceDatabase, nil
	}
	if p.ExtractionConfidence == models.ConfidencePartial {
		return p, ProvenancePartial, nil
	}
	return p, ProvenanceLive, nil
}

func (r *Runner) score(p *models.Property) {
	var ref *zones.Zone
	if r.zones != nil && p.Zone != "" {
		if z, ok := r.zones.Lookup(p.Zone); ok {
			ref = &z
		}
	}
	r.scorer.Apply(p, ref)
}

func (r *Runner) saveRunRecord(result *models.RunResult) {
	record := &models.RunRecord{
		Portal:         result.Portal,
		Zone:           result.Zone,
		TotalFound:     result.TotalFound,
		TotalProcessed: result.TotalProcessed,
		Saved:          result.Saved,
		Skipped:        result.Skipped,
		Errors:         result.Errors,
		StartedAt:      result.StartedAt,
		EndedAt:        result.EndedAt,
	}
	if err := r.gateway.Backend().SaveRun(record); err != nil {
		log.Printf("[Runner] Failed to persist run record for %s/%s: %v",
			result.Portal, result.Zone, err)
	}
}

// MarkStale transitions ACTIVE properties not seen since the cutoff to
// REMOVED. Called by the scheduler's removal sweep after daily runs.
func (r *Runner) MarkStale(cutoff time.Time) (int, error) {
	var marked int
	for _, portal := range models.KnownPortals {
		stale, err := r.gateway.Backend().FindStale(portal, cutoff)
		if err != nil {
			return marked, fmt.Errorf("find stale for %s: %w", portal, err)
		}
		for _, p := range stale {
			if err := r.gateway.UpdateStatus(p.SourceURL, models.PropertyStatusRemoved, "missing from fresh crawl"); err != nil {
				log.Printf("[Runner] Failed to mark %s removed: %v", p.SourceURL, err)
				continue
			}
			marked++
		}
	}
	if marked > 0 {
		log.Printf("[Runner] Removal sweep marked %d properties REMOVED", marked)
	}
	return marked, nil
}

// buildTasks expands the cross product of portals and zones. StartedAt is
// stamped per task so the same-run debounce window has a stable anchor.
func buildTasks(params RunParams) []crawler.Task {
	now := time.Now()
	zoneList := params.Zones
	if len(zoneList) == 0 {
		zoneList = []string{""}
	}

	var tasks []crawler.Task
	for _, portal := range params.Portals {
		for _, zone := range zoneList {
			tasks = append(tasks, crawler.Task{
				Portal:        portal,
				Zone:          zone,
				MaxPages:      params.MaxPages,
				MaxProperties: params.MaxProperties,
				StartedAt:     now,
			})
		}
	}
	return tasks
}

// PortalFromURL infers the portal from a listing URL's host.
func PortalFromURL(rawURL string) (models.Portal, bool) {
	lower := strings.ToLower(rawURL)
	for _, portal := range models.KnownPortals {
		if strings.Contains(lower, string(portal)) {
			return portal, true
		}
	}
	return "", false
}
