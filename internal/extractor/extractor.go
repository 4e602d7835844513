// Package extractor resolves a listing page into the canonical property
// record. Every field runs an ordered strategy chain (structural selector
// first, then fallbacks); unresolved price or surface downgrades the record
// to partial confidence instead of discarding it.
package extractor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"inmoradar/internal/freetext"
	"inmoradar/internal/models"
	"inmoradar/internal/session"
)

// Extractor pulls canonical records out of live listing HTML.
type Extractor struct{}

// New creates an extractor
func New() *Extractor {
	return &Extractor{}
}

// Extract fetches a listing page through the session and resolves the
// canonical record. A fetch failure is returned to the caller (which may
// fall back to the stored record); missing fields are not failures.
func (e *Extractor) Extract(ctx context.Context, sess session.Session, listingURL string, portal models.Portal) (*models.Property, error) {
	html, err := sess.FetchPage(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing %s: %w", listingURL, err)
	}
	return e.ExtractFromHTML(html, listingURL, portal)
}

// ExtractFromHTML resolves the canonical record from already-fetched HTML.
func (e *Extractor) ExtractFromHTML(html, listingURL string, portal models.Portal) (*models.Property, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing HTML: %w", err)
	}

	fc, ok := chains[portal]
	if !ok {
		return nil, fmt.Errorf("no extraction chains for portal %q", portal)
	}

	p := &models.Property{
		SourceURL: listingURL,
		Portal:    portal,
		Status:    models.PropertyStatusActive,
		Title:     runChain(doc, fc.title),
		Address:   runChain(doc, fc.address),
	}

	if raw := runChain(doc, fc.price); raw != "" {
		if v, ok := freetext.ParseLocaleNumber(raw); ok && v > 0 {
			p.Price = &v
		}
	}
	if raw := runChain(doc, fc.surface); raw != "" {
		if v, ok := freetext.ParseLocaleNumber(raw); ok && v > 0 {
			p.SurfaceM2 = &v
		}
	}
	if raw := runChain(doc, fc.rooms); raw != "" {
		if v, ok := freetext.ParseLocaleInt(raw); ok {
			p.Rooms = &v
		}
	}
	if raw := runChain(doc, fc.bathrooms); raw != "" {
		if v, ok := freetext.ParseLocaleInt(raw); ok {
			p.Bathrooms = &v
		}
	}

	p.Images = collectImages(doc, fc)

	// The description paragraph carries the signals the structured markup
	// does not: condition keywords, features, floor, penthouse.
	description := freetext.Clean(runChain(doc, fc.description))
	if description != "" {
		p.Condition = freetext.ClassifyCondition(description)
		freetext.ApplyFeatures(description, p)
		if floor, ok := freetext.ExtractFloor(description); ok {
			p.Floor = &floor
		}
		p.IsPenthouse = p.IsPenthouse || freetext.IsPenthouse(description)
	} else {
		p.Condition = models.ConditionGood
	}

	// Title often carries "ático"/"bajo" when the description does not
	if freetext.IsPenthouse(p.Title) {
		p.IsPenthouse = true
	}
	if p.Floor == nil {
		if floor, ok := freetext.ExtractFloor(p.Title); ok {
			p.Floor = &floor
		}
	}

	p.ComputeDerived()
	p.ResolveConfidence()

	if p.ExtractionConfidence == models.ConfidencePartial {
		log.Printf("[Extractor] Partial extraction for %s (price=%v surface=%v)", listingURL, p.Price != nil, p.SurfaceM2 != nil)
	}

	return p, nil
}
