package session

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inmoradar/internal/config"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		AcceptLanguage: "es-ES,es;q=0.9",
		TimeoutSeconds: 5,
	}
}

func TestPlainSessionFetchesContent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("<html><body>piso en venta</body></html>"))
	}))
	defer srv.Close()

	s := newPlainSession(testSessionConfig())
	defer s.Release()

	html, err := s.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, html, "piso en venta")
	assert.Contains(t, gotUA, "Mozilla")
}

func TestPlainSessionDecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("<html>comprimido</html>"))
		gz.Close()
	}))
	defer srv.Close()

	s := newPlainSession(testSessionConfig())
	defer s.Release()

	html, err := s.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, html, "comprimido")
}

func TestPlainSessionClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := newPlainSession(testSessionConfig())
	defer s.Release()

	_, err := s.FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsNetworkError(err))
}

func TestPlainSessionClassifiesForbiddenAsBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := newPlainSession(testSessionConfig())
	defer s.Release()

	_, err := s.FetchPage(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrAntiBotBlocked)
}

func TestPlainSessionClassifiesServerErrorAsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newPlainSession(testSessionConfig())
	defer s.Release()

	_, err := s.FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

func TestPlainSessionDetectsBlockPageBody(t *testing.T) {
	// A 200 carrying a captcha interstitial instead of the listing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><script src="https://geo.captcha-delivery.com/captcha.js"></script></html>`))
	}))
	defer srv.Close()

	s := newPlainSession(testSessionConfig())
	defer s.Release()

	_, err := s.FetchPage(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrAntiBotBlocked)
}

func TestPlainSessionConnectionFailureIsNetworkError(t *testing.T) {
	s := newPlainSession(testSessionConfig())
	defer s.Release()

	_, err := s.FetchPage(context.Background(), "http://127.0.0.1:1/unreachable")
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

func TestLooksLikeBlockPage(t *testing.T) {
	assert.True(t, looksLikeBlockPage(`<div id="px-captcha"></div>`))
	assert.True(t, looksLikeBlockPage(`<h1>¿Eres humano?</h1>`))
	assert.True(t, looksLikeBlockPage(`<script>window.dataDome={}</script>`))
	assert.False(t, looksLikeBlockPage(`<html><body>Piso en venta en Lavapiés</body></html>`))
}
