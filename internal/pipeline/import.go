package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"inmoradar/internal/freetext"
	"inmoradar/internal/models"
	"inmoradar/internal/store"
)

// ImportText ingests a pasted listing description without any network
// access. The record gets a synthetic manual:// source URL derived from the
// text so re-pasting the same description upserts the same row.
func (r *Runner) ImportText(rawText, zone string) (*models.Property, store.UpsertOutcome, error) {
	cleaned := strings.TrimSpace(rawText)
	if cleaned == "" {
		return nil, "", &ValidationError{Field: "text", Reason: "must not be empty"}
	}

	p := freetext.Extract(cleaned)
	hash := md5.Sum([]byte(freetext.Clean(cleaned)))
	p.SourceURL = "manual://" + hex.EncodeToString(hash[:])
	p.Portal = models.PortalManual

	if zone != "" {
		p.Zone = zone
	}
	r.score(p)

	outcome, err := r.gateway.Upsert(p, store.UpsertOptions{RunStartedAt: time.Now()})
	if err != nil {
		return nil, "", err
	}
	log.Printf("[Runner] Text import %s: %s (confidence=%s)", outcome, p.SourceURL, p.ExtractionConfidence)

	if r.search != nil && outcome != store.OutcomeSkipped {
		if err := r.search.IndexProperty(p); err != nil {
			log.Printf("[Runner] Search indexing failed for %s: %v", p.ID, err)
		}
	}
	return p, outcome, nil
}

// ImportURL ingests a single listing URL outside of a crawl run. The
// returned provenance tells the caller whether the values are live,
// partial, or reused from the stored record after a failed fetch.
func (r *Runner) ImportURL(ctx context.Context, listingURL, zone string) (*models.Property, store.UpsertOutcome, Provenance, error) {
	if listingURL == "" {
		return nil, "", "", &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	portal, ok := PortalFromURL(listingURL)
	if !ok {
		return nil, "", "", &ValidationError{Field: "url", Reason: "no known portal matches this URL"}
	}

	sess, err := r.broker.Acquire(ctx, portal, listingURL)
	if err != nil {
		return nil, "", "", fmt.Errorf("acquire session for %s: %w", portal, err)
	}
	defer sess.Release()

	itemCtx, cancel := context.WithTimeout(ctx, r.cfg.GetItemTimeout())
	defer cancel()

	p, provenance, err := r.resolveListing(itemCtx, sess, listingURL, portal)
	if err != nil {
		return nil, "", "", err
	}

	if p.Zone == "" {
		p.Zone = zone
	}
	r.score(p)

	outcome, err := r.gateway.Upsert(p, store.UpsertOptions{RunStartedAt: time.Now()})
	if err != nil {
		return nil, "", "", err
	}

	if r.search != nil && outcome != store.OutcomeSkipped {
		if err := r.search.IndexProperty(p); err != nil {
			log.Printf("[Runner] Search indexing failed for %s: %v", p.ID, err)
		}
	}
	return p, outcome, provenance, nil
}
