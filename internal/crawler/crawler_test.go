package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inmoradar/internal/config"
	"inmoradar/internal/models"
	"inmoradar/internal/ratelimit"
	"inmoradar/internal/session"
)

// fakeSession serves canned HTML per URL and records every fetch.
type fakeSession struct {
	mu       sync.Mutex
	pages    map[string]string
	errs     map[string]error
	fetched  []string
	released bool
}

func (s *fakeSession) FetchPage(_ context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, url)
	if err, ok := s.errs[url]; ok {
		return "", err
	}
	if html, ok := s.pages[url]; ok {
		return html, nil
	}
	return resultsPage(), nil
}

func (s *fakeSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

func (s *fakeSession) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetched)
}

type fakeBroker struct {
	mu       sync.Mutex
	sess     *fakeSession
	errQueue []error
	calls    int
}

func (b *fakeBroker) Acquire(_ context.Context, _ models.Portal, _ string) (session.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if len(b.errQueue) > 0 {
		err := b.errQueue[0]
		b.errQueue = b.errQueue[1:]
		return nil, err
	}
	return b.sess, nil
}

// resultsPage renders an idealista-shaped search results page with one
// article per listing id.
func resultsPage(ids ...int) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&sb, `<article class="item"><a class="item-link" href="/inmueble/%d/">Piso</a></article>`, id)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func idealistaPageURL(t *testing.T, zone string, page int) string {
	t.Helper()
	u, err := searchURL(models.PortalIdealista, zone, page)
	require.NoError(t, err)
	return u
}

func testCrawlerConfig() config.CrawlerConfig {
	return config.CrawlerConfig{
		MaxRetries:         1,
		RetryDelaySeconds:  0,
		ItemTimeoutSeconds: 5,
	}
}

func newTestCrawler(broker Broker) *Crawler {
	return New(broker, ratelimit.NewPacer(1, 0, 0), ratelimit.NewBudget(0, 0, false), testCrawlerConfig())
}

func TestDiscoverStopsAtMaxPages(t *testing.T) {
	sess := &fakeSession{pages: map[string]string{}}
	for page := 1; page <= 10; page++ {
		sess.pages[idealistaPageURL(t, "lavapies", page)] = resultsPage(page*10, page*10+1, page*10+2)
	}
	c := newTestCrawler(&fakeBroker{sess: sess})

	urls, err := c.Discover(context.Background(), Task{
		Portal:        models.PortalIdealista,
		Zone:          "lavapies",
		MaxPages:      3,
		MaxProperties: 1000,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, sess.fetchCount(), "must never fetch more result pages than maxPages")
	assert.Len(t, urls, 9)
	assert.True(t, sess.released)
}

func TestDiscoverStopsAtMaxProperties(t *testing.T) {
	sess := &fakeSession{pages: map[string]string{}}
	for page := 1; page <= 10; page++ {
		sess.pages[idealistaPageURL(t, "lavapies", page)] = resultsPage(page*10, page*10+1, page*10+2, page*10+3)
	}
	c := newTestCrawler(&fakeBroker{sess: sess})

	urls, err := c.Discover(context.Background(), Task{
		Portal:        models.PortalIdealista,
		Zone:          "lavapies",
		MaxPages:      10,
		MaxProperties: 5,
	})

	require.NoError(t, err)
	assert.Len(t, urls, 5)
	// Page 1 yields 4 URLs, page 2 tops up to the cap; page 3 is never fetched.
	assert.Equal(t, 2, sess.fetchCount())
}

func TestDiscoverStopsWhenPageYieldsNothingNew(t *testing.T) {
	// Portals serve the last real page again for out-of-range page numbers.
	same := resultsPage(1, 2, 3)
	sess := &fakeSession{pages: map[string]string{
		idealistaPageURL(t, "lavapies", 1): same,
		idealistaPageURL(t, "lavapies", 2): same,
		idealistaPageURL(t, "lavapies", 3): same,
	}}
	c := newTestCrawler(&fakeBroker{sess: sess})

	urls, err := c.Discover(context.Background(), Task{
		Portal:        models.PortalIdealista,
		Zone:          "lavapies",
		MaxPages:      50,
		MaxProperties: 1000,
	})

	require.NoError(t, err)
	assert.Len(t, urls, 3)
	assert.Equal(t, 2, sess.fetchCount(), "one real page plus the repeat that triggers the stop")
}

func TestDiscoverDeduplicatesAcrossPages(t *testing.T) {
	sess := &fakeSession{pages: map[string]string{
		idealistaPageURL(t, "lavapies", 1): resultsPage(1, 2, 3),
		idealistaPageURL(t, "lavapies", 2): resultsPage(3, 4),
		idealistaPageURL(t, "lavapies", 3): resultsPage(3, 4),
	}}
	c := newTestCrawler(&fakeBroker{sess: sess})

	urls, err := c.Discover(context.Background(), Task{
		Portal:        models.PortalIdealista,
		Zone:          "lavapies",
		MaxPages:      10,
		MaxProperties: 1000,
	})

	require.NoError(t, err)
	assert.Len(t, urls, 4)
	seen := make(map[string]bool)
	for _, u := range urls {
		assert.False(t, seen[u], "duplicate URL %s", u)
		seen[u] = true
	}
}

func TestDiscoverRateLimitExhaustionReturnsPartialResults(t *testing.T) {
	page2 := idealistaPageURL(t, "lavapies", 2)
	sess := &fakeSession{
		pages: map[string]string{
			idealistaPageURL(t, "lavapies", 1): resultsPage(1, 2, 3),
		},
		errs: map[string]error{
			page2: &session.RateLimitedError{URL: page2, StatusCode: 429},
		},
	}
	c := newTestCrawler(&fakeBroker{sess: sess})

	urls, err := c.Discover(context.Background(), Task{
		Portal:        models.PortalIdealista,
		Zone:          "lavapies",
		MaxPages:      10,
		MaxProperties: 1000,
	})

	require.Error(t, err)
	assert.True(t, session.IsRateLimited(err))
	assert.Len(t, urls, 3, "URLs found before the rate limit must survive")
}

func TestDiscoverRetriesSessionAcquireOnNetworkErrors(t *testing.T) {
	sess := &fakeSession{pages: map[string]string{
		idealistaPageURL(t, "lavapies", 1): resultsPage(1, 2),
	}}
	broker := &fakeBroker{
		sess: sess,
		errQueue: []error{
			&session.NetworkError{URL: "https://www.idealista.com", Err: fmt.Errorf("connection reset")},
		},
	}
	c := newTestCrawler(broker)

	urls, err := c.Discover(context.Background(), Task{
		Portal:        models.PortalIdealista,
		Zone:          "lavapies",
		MaxPages:      1,
		MaxProperties: 10,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, broker.calls)
	assert.Len(t, urls, 2)
}

func TestDiscoverDoesNotRetryAntiBotExhaustion(t *testing.T) {
	broker := &fakeBroker{errQueue: []error{session.ErrAntiBotBlocked, session.ErrAntiBotBlocked}}
	c := newTestCrawler(broker)

	_, err := c.Discover(context.Background(), Task{
		Portal:        models.PortalIdealista,
		Zone:          "lavapies",
		MaxPages:      1,
		MaxProperties: 10,
	})

	require.Error(t, err)
	assert.Equal(t, 1, broker.calls, "the broker already walked its full strategy chain")
}

func TestDiscoverHonorsRequestBudget(t *testing.T) {
	sess := &fakeSession{pages: map[string]string{
		idealistaPageURL(t, "lavapies", 1): resultsPage(1),
		idealistaPageURL(t, "lavapies", 2): resultsPage(2),
	}}
	budget := ratelimit.NewBudget(1, 0, true)
	c := New(&fakeBroker{sess: sess}, ratelimit.NewPacer(1, 0, 0), budget, testCrawlerConfig())

	urls, err := c.Discover(context.Background(), Task{
		Portal:        models.PortalIdealista,
		Zone:          "lavapies",
		MaxPages:      5,
		MaxProperties: 100,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget exhausted")
	assert.Len(t, urls, 1)
}

func TestDiscoverUnknownPortal(t *testing.T) {
	c := newTestCrawler(&fakeBroker{sess: &fakeSession{}})

	_, err := c.Discover(context.Background(), Task{
		Portal:        models.Portal("zillow"),
		MaxPages:      1,
		MaxProperties: 1,
	})
	require.Error(t, err)
}

func TestAbsoluteURLStripsQueryAndFragment(t *testing.T) {
	got := absoluteURL(models.PortalIdealista, "/inmueble/12345/?ordenado-por=fecha#photos")
	assert.Equal(t, "https://www.idealista.com/inmueble/12345/", got)
}

func TestZoneSlug(t *testing.T) {
	assert.Equal(t, "lavapies", zoneSlug("Lavapiés"))
	assert.Equal(t, "puente-de-vallecas", zoneSlug("Puente de Vallecas"))
	assert.Equal(t, "madrid", zoneSlug(""))
}

// challengeErr hides the anti-bot sentinel behind an unrelated message, the
// way a wrapped fetch error reaches the breaker in practice.
type challengeErr struct{}

func (challengeErr) Error() string { return "challenge page served" }
func (challengeErr) Unwrap() error { return session.ErrAntiBotBlocked }

func TestBreakerClassifiesWrappedBlockErrors(t *testing.T) {
	page1 := idealistaPageURL(t, "lavapies", 1)
	sess := &fakeSession{errs: map[string]error{page1: challengeErr{}}}
	c := newTestCrawler(&fakeBroker{sess: sess})

	task := Task{
		Portal:        models.PortalIdealista,
		Zone:          "lavapies",
		MaxPages:      1,
		MaxProperties: 10,
	}
	for i := 0; i < 2; i++ {
		_, err := c.Discover(context.Background(), task)
		require.ErrorIs(t, err, session.ErrAntiBotBlocked)
	}

	// Two consecutive block-class fetch failures must open the breaker
	// even when the error text never says "blocked".
	_, err := c.Discover(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}
