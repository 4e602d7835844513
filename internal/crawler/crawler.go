package crawler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"inmoradar/internal/config"
	"inmoradar/internal/models"
	"inmoradar/internal/ratelimit"
	"inmoradar/internal/session"
)

// Broker is the slice of the session broker the crawler needs.
type Broker interface {
	Acquire(ctx context.Context, portal models.Portal, targetURL string) (session.Session, error)
}

// Task bounds one discovery pass over a portal/zone. StartedAt anchors the
// same-run debounce window for upserts downstream of this task.
type Task struct {
	Portal        models.Portal
	Zone          string
	MaxPages      int
	MaxProperties int
	StartedAt     time.Time
}

// Crawler drives paginated discovery of listing URLs for one portal/zone.
// Discovery is finite and not restartable mid-stream: a fresh call re-scans
// from page 1.
type Crawler struct {
	broker  Broker
	pacer   *ratelimit.Pacer
	budget  *ratelimit.Budget
	breaker *CircuitBreaker
	cfg     config.CrawlerConfig
}

// New creates a crawler sharing the given pacer and budget across calls.
func New(broker Broker, pacer *ratelimit.Pacer, budget *ratelimit.Budget, cfg config.CrawlerConfig) *Crawler {
	return &Crawler{
		broker:  broker,
		pacer:   pacer,
		budget:  budget,
		breaker: NewCircuitBreaker(8, 1*time.Hour),
		cfg:     cfg,
	}
}

// Discover collects listing URLs page by page until a stop condition hits:
// maxPages, maxProperties, a page with zero new URLs, or an exhausted
// rate-limit retry budget. On rate-limit exhaustion the URLs found so far
// are returned together with the error so the run can continue partially.
func (c *Crawler) Discover(ctx context.Context, task Task) ([]string, error) {
	firstPage, err := searchURL(task.Portal, task.Zone, 1)
	if err != nil {
		return nil, err
	}

	if !c.breaker.CanProceed() {
		_, failures, total := c.breaker.GetStatus()
		return nil, fmt.Errorf("circuit breaker open for %s (%d/%d failures): %w",
			task.Portal, failures, total, session.ErrAntiBotBlocked)
	}

	sess, err := c.acquireWithRetry(ctx, task.Portal, firstPage)
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	seen := make(map[string]bool)
	var urls []string

	for page := 1; page <= task.MaxPages; page++ {
		if len(urls) >= task.MaxProperties {
			log.Printf("[Crawler] %s/%s: reached max properties (%d), stopping at page %d",
				task.Portal, task.Zone, task.MaxProperties, page)
			break
		}

		pageURL, err := searchURL(task.Portal, task.Zone, page)
		if err != nil {
			return urls, err
		}

		html, err := c.fetchPageWithBackoff(ctx, sess, pageURL)
		if err != nil {
			if session.IsRateLimited(err) {
				log.Printf("[Crawler] %s/%s: rate limited after retries, aborting with %d URLs",
					task.Portal, task.Zone, len(urls))
				return urls, err
			}
			c.breaker.RecordFailure(errors.Is(err, session.ErrAntiBotBlocked))
			return urls, err
		}
		c.breaker.RecordSuccess()

		newCount := c.collectLinks(task.Portal, html, seen, &urls, task.MaxProperties)
		log.Printf("[Crawler] %s/%s page %d: %d new URLs (total: %d)",
			task.Portal, task.Zone, page, newCount, len(urls))

		// Loop guard: portals sometimes serve the last page again for any
		// out-of-range page number.
		if newCount == 0 {
			log.Printf("[Crawler] %s/%s: page %d yielded nothing new, stopping", task.Portal, task.Zone, page)
			break
		}
	}

	return urls, nil
}

// acquireWithRetry retries session acquisition on transport failures with
// exponential backoff. Anti-bot exhaustion is not retried here: the broker
// already walked its whole strategy chain.
func (c *Crawler) acquireWithRetry(ctx context.Context, portal models.Portal, targetURL string) (session.Session, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffDelay(c.cfg.GetRetryDelay(), attempt)
			log.Printf("[Crawler] Session acquire retry %d/%d for %s after %v", attempt, c.cfg.MaxRetries, portal, backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		sess, err := c.broker.Acquire(ctx, portal, targetURL)
		if err == nil {
			return sess, nil
		}
		lastErr = err

		if !session.IsNetworkError(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("session acquisition failed after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

// fetchPageWithBackoff fetches one search-results page, backing off
// exponentially on upstream rate-limit signals up to the retry ceiling.
func (c *Crawler) fetchPageWithBackoff(ctx context.Context, sess session.Session, pageURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffDelay(c.cfg.GetRetryDelay(), attempt)
			log.Printf("[Crawler] Rate limited on %s, retry %d/%d after %v", pageURL, attempt, c.cfg.MaxRetries, backoff)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		if !c.budget.Allow() {
			return "", fmt.Errorf("request budget exhausted fetching %s", pageURL)
		}
		if err := c.pacer.Acquire(ctx); err != nil {
			return "", err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.GetItemTimeout())
		html, err := sess.FetchPage(fetchCtx, pageURL)
		cancel()
		c.pacer.Release()

		if err == nil {
			return html, nil
		}
		lastErr = err

		if !session.IsRateLimited(err) {
			return "", err
		}
	}
	return "", lastErr
}

// collectLinks extracts listing URLs from a results page, deduplicating
// against the in-run seen set. Returns how many URLs were new.
func (c *Crawler) collectLinks(portal models.Portal, html string, seen map[string]bool, urls *[]string, limit int) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Printf("[Crawler] Failed to parse results page for %s: %v", portal, err)
		return 0
	}

	p := profiles[portal]
	newCount := 0
	for _, selector := range p.linkSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			href, exists := s.Attr("href")
			if !exists {
				return
			}
			listingURL := absoluteURL(portal, href)
			if listingURL == "" || seen[listingURL] {
				return
			}
			if len(*urls) >= limit {
				return
			}
			seen[listingURL] = true
			*urls = append(*urls, listingURL)
			newCount++
		})
		// First selector that matched anything wins; fallbacks are for
		// markup variants, not for doubling up.
		if newCount > 0 {
			break
		}
	}
	return newCount
}

// backoffDelay computes exponential backoff capped at 60s.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * base
	if d > 60*time.Second {
		d = 60 * time.Second
	}
	return d
}
