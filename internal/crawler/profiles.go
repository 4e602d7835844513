package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"inmoradar/internal/models"
)

// profile describes how one portal paginates search results and where its
// listing links live. Selector chains are ordered: the first selector that
// yields hrefs wins, the rest cover markup variants the portal A/B tests.
type profile struct {
	baseURL       string
	searchPath    func(zone string, page int) string
	linkSelectors []string
}

var profiles = map[models.Portal]profile{
	models.PortalIdealista: {
		baseURL: "https://www.idealista.com",
		searchPath: func(zone string, page int) string {
			if page <= 1 {
				return fmt.Sprintf("/venta-viviendas/%s/", zoneSlug(zone))
			}
			return fmt.Sprintf("/venta-viviendas/%s/pagina-%d.htm", zoneSlug(zone), page)
		},
		linkSelectors: []string{
			"article.item a.item-link",
			"a.item-link",
		},
	},
	models.PortalFotocasa: {
		baseURL: "https://www.fotocasa.es",
		searchPath: func(zone string, page int) string {
			if page <= 1 {
				return fmt.Sprintf("/es/comprar/viviendas/%s/todas-las-zonas/l", zoneSlug(zone))
			}
			return fmt.Sprintf("/es/comprar/viviendas/%s/todas-las-zonas/l/%d", zoneSlug(zone), page)
		},
		linkSelectors: []string{
			"article a[href*='/vivienda/']",
			"a.re-CardPackMinimal-info-container",
		},
	},
	models.PortalPisos: {
		baseURL: "https://www.pisos.com",
		searchPath: func(zone string, page int) string {
			if page <= 1 {
				return fmt.Sprintf("/venta/pisos-%s/", zoneSlug(zone))
			}
			return fmt.Sprintf("/venta/pisos-%s/%d/", zoneSlug(zone), page)
		},
		linkSelectors: []string{
			"a.ad-preview__title",
			"div.ad-preview a[href*='/comprar/']",
		},
	},
}

// zoneSlug converts a zone name to the URL slug portals use.
// Empty zones fall back to the city-wide search.
func zoneSlug(zone string) string {
	if zone == "" {
		return "madrid"
	}
	slug := strings.ToLower(strings.TrimSpace(zone))
	replacer := strings.NewReplacer(
		" ", "-",
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n",
	)
	return replacer.Replace(slug)
}

// searchURL builds the absolute search-results URL for a portal page.
func searchURL(portal models.Portal, zone string, page int) (string, error) {
	p, ok := profiles[portal]
	if !ok {
		return "", fmt.Errorf("no crawl profile for portal %q", portal)
	}
	return p.baseURL + p.searchPath(zone, page), nil
}

// absoluteURL resolves a listing href against the portal base, dropping
// query strings and fragments so the same listing always yields one URL.
func absoluteURL(portal models.Portal, href string) string {
	p := profiles[portal]

	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil || parsed.Path == "" {
		return ""
	}

	base, err := url.Parse(p.baseURL)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)
	resolved.RawQuery = ""
	resolved.Fragment = ""
	return resolved.String()
}
