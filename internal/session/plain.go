package session

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"inmoradar/internal/config"
	"inmoradar/internal/models"
)

// plainSession fetches pages with a cookie-jar HTTP client and a realistic
// browser header set. Cheapest strategy: no remote browser capacity involved.
type plainSession struct {
	client *http.Client
	cfg    config.SessionConfig
}

func newPlainSession(cfg config.SessionConfig) *plainSession {
	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Printf("[Session] Warning: failed to create cookie jar: %v", err)
		jar = nil
	}

	return &plainSession{
		client: &http.Client{
			Timeout: cfg.GetTimeout(),
			Jar:     jar,
		},
		cfg: cfg,
	}
}

// probe visits the portal homepage to establish cookies and verify the
// portal serves real content to this client.
func (s *plainSession) probe(ctx context.Context, portal models.Portal) error {
	home := portalHome(portal)
	if home == "" {
		return fmt.Errorf("no homepage known for portal %q", portal)
	}
	_, err := s.FetchPage(ctx, home)
	return err
}

func (s *plainSession) FetchPage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	applyBrowserHeaders(req, s.cfg)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return "", &RateLimitedError{URL: url, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("status 403 fetching %s: %w", url, ErrAntiBotBlocked)
	case resp.StatusCode >= 500:
		return "", &NetworkError{URL: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", &NetworkError{URL: url, Err: err}
	}

	html := string(body)
	if looksLikeBlockPage(html) {
		return "", fmt.Errorf("block page served for %s: %w", url, ErrAntiBotBlocked)
	}

	return html, nil
}

// Release closes idle connections. Plain sessions hold no remote resources.
func (s *plainSession) Release() {
	s.client.CloseIdleConnections()
}

// applyBrowserHeaders sets browser-like headers to avoid bot detection
func applyBrowserHeaders(req *http.Request, cfg config.SessionConfig) {
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", cfg.AcceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("sec-ch-ua", `"Not A(Brand";v="99", "Google Chrome";v="122", "Chromium";v="122"`)
	req.Header.Set("sec-ch-ua-mobile", "?0")
	req.Header.Set("sec-ch-ua-platform", `"Windows"`)
}

// looksLikeBlockPage checks the body for anti-bot interstitial markers.
// Selector extraction on these pages would silently yield nothing, so they
// must be classified as blocks here.
func looksLikeBlockPage(html string) bool {
	lowered := strings.ToLower(html)
	markers := []string{
		"geo.captcha-delivery.com",
		"px-captcha",
		"_incapsula_",
		"cf-challenge",
		"datadome",
		"¿eres humano?",
		"are you a robot",
	}
	for _, m := range markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}
