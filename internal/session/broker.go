package session

import (
	"context"
	"log"

	"inmoradar/internal/config"
	"inmoradar/internal/models"
)

// Session is a fetch-capable lease against one portal. Callers must invoke
// Release on every exit path: browser-backed sessions hold remote capacity
// until released.
type Session interface {
	FetchPage(ctx context.Context, url string) (string, error)
	Release()
}

// Broker acquires sessions by trying strategies in escalation order:
// plain HTTP first, then the remote unblocking service, then a stealth
// browser session as last resort.
type Broker struct {
	cfg config.SessionConfig
}

// NewBroker creates a session broker
func NewBroker(cfg config.SessionConfig) *Broker {
	return &Broker{cfg: cfg}
}

// Acquire returns the first session whose probe against the portal succeeds.
// Transport failures surface as *NetworkError (retriable); exhausting every
// strategy surfaces ErrAntiBotBlocked.
func (b *Broker) Acquire(ctx context.Context, portal models.Portal, targetURL string) (Session, error) {
	// Strategy a: plain HTTP with realistic browser headers
	plain := newPlainSession(b.cfg)
	err := plain.probe(ctx, portal)
	if err == nil {
		log.Printf("[SessionBroker] Acquired plain HTTP session for %s", portal)
		return plain, nil
	}
	plain.Release()

	if IsNetworkError(err) {
		return nil, err
	}
	log.Printf("[SessionBroker] Plain fetch blocked for %s (%v), escalating", portal, err)

	// Strategy b: remote unblocking service with pre-solved cookies
	if b.cfg.UnblockerEndpoint != "" {
		sess, err := newUnblockerSession(ctx, b.cfg, targetURL)
		if err == nil {
			log.Printf("[SessionBroker] Acquired unblocker session for %s (ttl=%v)", portal, b.cfg.GetUnblockerTTL())
			return sess, nil
		}
		if IsNetworkError(err) {
			return nil, err
		}
		log.Printf("[SessionBroker] Unblocker acquisition failed for %s: %v", portal, err)
	}

	// Strategy c: stealth browser directly against the automation endpoint
	if b.cfg.BrowserWSEndpoint != "" {
		sess, err := newStealthSession(ctx, b.cfg)
		if err == nil {
			log.Printf("[SessionBroker] Acquired stealth browser session for %s", portal)
			return sess, nil
		}
		log.Printf("[SessionBroker] Stealth acquisition failed for %s: %v", portal, err)
	}

	return nil, ErrAntiBotBlocked
}

// portalHome returns the homepage used to probe a portal before committing
// to a strategy. Establishing cookies on the homepage first mimics a real
// browsing flow.
func portalHome(portal models.Portal) string {
	switch portal {
	case models.PortalIdealista:
		return "https://www.idealista.com/"
	case models.PortalFotocasa:
		return "https://www.fotocasa.es/es/"
	case models.PortalPisos:
		return "https://www.pisos.com/"
	}
	return ""
}
