package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"inmoradar/internal/config"
)

// browserSession is a chromedp session against a remote automation endpoint.
// Both the unblocker-brokered variant and the direct stealth variant share
// the same fetch path; they differ only in how the endpoint and cookies are
// obtained.
type browserSession struct {
	ctx     context.Context
	cancels []context.CancelFunc
	kind    string
}

// unblockerResponse is what the remote unblocking service returns: a ready
// DevTools endpoint plus the cookies it solved, valid for a bounded lifetime.
type unblockerResponse struct {
	WSEndpoint string            `json:"ws_endpoint"`
	Cookies    []unblockerCookie `json:"cookies"`
	TTLSeconds int               `json:"ttl_seconds"`
}

type unblockerCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// newUnblockerSession asks the unblocking service for a browser endpoint with
// pre-solved cookies and connects to it. The session expires with the
// service-reported TTL; callers must not hold it past a single listing batch.
func newUnblockerSession(ctx context.Context, cfg config.SessionConfig, targetURL string) (Session, error) {
	payload, err := json.Marshal(map[string]string{"url": targetURL})
	if err != nil {
		return nil, fmt.Errorf("failed to encode unblocker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.UnblockerEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create unblocker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.UnblockerToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.UnblockerToken)
	}

	client := &http.Client{Timeout: cfg.GetTimeout()}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: cfg.UnblockerEndpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unblocker returned status %d", resp.StatusCode)
	}

	var ub unblockerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ub); err != nil {
		return nil, fmt.Errorf("failed to decode unblocker response: %w", err)
	}
	if ub.WSEndpoint == "" {
		return nil, fmt.Errorf("unblocker response carries no endpoint")
	}

	ttl := cfg.GetUnblockerTTL()
	if ub.TTLSeconds > 0 {
		ttl = time.Duration(ub.TTLSeconds) * time.Second
	}

	sess, err := connectBrowser(ub.WSEndpoint, ttl, "unblocker")
	if err != nil {
		return nil, err
	}

	// Apply the pre-solved cookies before any navigation, otherwise the
	// first page load re-triggers the challenge the service already solved.
	if err := sess.applyCookies(ub.Cookies); err != nil {
		sess.Release()
		return nil, fmt.Errorf("failed to apply unblocker cookies: %w", err)
	}

	return sess, nil
}

// newStealthSession opens a chromedp session directly against the remote
// automation endpoint with the automation fingerprint masked. Last-resort
// strategy: no cookie pre-solving, only fingerprint hygiene.
func newStealthSession(ctx context.Context, cfg config.SessionConfig) (Session, error) {
	sess, err := connectBrowser(cfg.BrowserWSEndpoint, 0, "stealth")
	if err != nil {
		return nil, err
	}

	err = chromedp.Run(sess.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(
			`Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`,
		).Do(ctx)
		return err
	}))
	if err != nil {
		sess.Release()
		return nil, fmt.Errorf("failed to install stealth script: %w", err)
	}

	return sess, nil
}

// connectBrowser attaches to a remote DevTools endpoint. A zero ttl means no
// session deadline beyond per-fetch timeouts.
func connectBrowser(wsEndpoint string, ttl time.Duration, kind string) (*browserSession, error) {
	var cancels []context.CancelFunc

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), wsEndpoint)
	cancels = append(cancels, allocCancel)

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancels = append(cancels, browserCancel)

	if ttl > 0 {
		var ttlCancel context.CancelFunc
		browserCtx, ttlCancel = context.WithTimeout(browserCtx, ttl)
		cancels = append(cancels, ttlCancel)
	}

	// Force the browser connection open now so a dead endpoint fails at
	// acquisition rather than mid-crawl.
	if err := chromedp.Run(browserCtx); err != nil {
		for i := len(cancels) - 1; i >= 0; i-- {
			cancels[i]()
		}
		return nil, &NetworkError{URL: wsEndpoint, Err: err}
	}

	return &browserSession{ctx: browserCtx, cancels: cancels, kind: kind}, nil
}

func (s *browserSession) applyCookies(cookies []unblockerCookie) error {
	if len(cookies) == 0 {
		return nil
	}

	actions := []chromedp.Action{network.Enable()}
	for _, c := range cookies {
		c := c
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				Do(ctx)
		}))
	}

	return chromedp.Run(s.ctx, actions...)
}

func (s *browserSession) FetchPage(ctx context.Context, url string) (string, error) {
	fetchCtx := s.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithDeadline(s.ctx, deadline)
		defer cancel()
	}

	var htmlContent string
	err := chromedp.Run(fetchCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		// Give client-side rendering a moment to settle
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		return "", &NetworkError{URL: url, Err: fmt.Errorf("chromedp error: %w", err)}
	}

	if looksLikeBlockPage(htmlContent) {
		return "", fmt.Errorf("block page served for %s: %w", url, ErrAntiBotBlocked)
	}

	log.Printf("[Session] %s session fetched %s (%d bytes)", s.kind, url, len(htmlContent))
	return htmlContent, nil
}

// Release tears down the remote browser contexts. Must run on every exit
// path or remote browser capacity leaks until the endpoint reaps it.
func (s *browserSession) Release() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
}
