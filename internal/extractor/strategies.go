package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"inmoradar/internal/models"
)

// strategy is one way of pulling a field out of a listing page: a selector,
// optionally an attribute instead of text, optionally a capture pattern.
// Fields run an ordered chain of strategies and take the first non-empty hit.
type strategy struct {
	selector string
	attr     string
	pattern  *regexp.Regexp
}

func (s strategy) extract(doc *goquery.Document) string {
	sel := doc.Find(s.selector).First()
	if sel.Length() == 0 {
		return ""
	}

	var raw string
	if s.attr != "" {
		raw, _ = sel.Attr(s.attr)
	} else {
		raw = sel.Text()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if s.pattern != nil {
		m := s.pattern.FindStringSubmatch(raw)
		if len(m) < 2 {
			return ""
		}
		return strings.TrimSpace(m[1])
	}
	return raw
}

// runChain returns the first non-empty extraction in the chain.
func runChain(doc *goquery.Document, chain []strategy) string {
	for _, s := range chain {
		if v := s.extract(doc); v != "" {
			return v
		}
	}
	return ""
}

// fieldChains holds per-portal strategy chains for the structural fields.
// Primary selectors come first; attribute and substring fallbacks afterwards.
type fieldChains struct {
	title       []strategy
	price       []strategy
	surface     []strategy
	rooms       []strategy
	bathrooms   []strategy
	address     []strategy
	description []strategy
	imageSel    string
	imageAttrs  []string
}

var (
	surfacePattern = regexp.MustCompile(`([\d.,]+)\s*m²`)
	roomsPattern   = regexp.MustCompile(`(\d+)\s*hab`)
	bathsPattern   = regexp.MustCompile(`(\d+)\s*baño`)
)

var chains = map[models.Portal]fieldChains{
	models.PortalIdealista: {
		title: []strategy{
			{selector: "span.main-info__title-main"},
			{selector: "meta[property='og:title']", attr: "content"},
			{selector: "h1"},
		},
		price: []strategy{
			{selector: "span.info-data-price span.txt-bold"},
			{selector: "span.info-data-price"},
			{selector: "meta[itemprop='price']", attr: "content"},
		},
		surface: []strategy{
			{selector: "div.info-features", pattern: surfacePattern},
			{selector: "section#details", pattern: surfacePattern},
		},
		rooms: []strategy{
			{selector: "div.info-features", pattern: roomsPattern},
			{selector: "section#details", pattern: roomsPattern},
		},
		bathrooms: []strategy{
			{selector: "section#details", pattern: bathsPattern},
			{selector: "div.info-features", pattern: bathsPattern},
		},
		address: []strategy{
			{selector: "span.main-info__title-minor"},
			{selector: "div#headerMap li"},
		},
		description: []strategy{
			{selector: "div.comment"},
			{selector: "div.adCommentsLanguage"},
		},
		imageSel:   "div.detail-multimedia img, section.detail-image-gallery img",
		imageAttrs: []string{"data-ondemand-img", "src"},
	},
	models.PortalFotocasa: {
		title: []strategy{
			{selector: "h1.re-DetailHeader-propertyTitle"},
			{selector: "meta[property='og:title']", attr: "content"},
			{selector: "h1"},
		},
		price: []strategy{
			{selector: "span.re-DetailHeader-price"},
			{selector: "meta[name='twitter:data1']", attr: "content"},
		},
		surface: []strategy{
			{selector: "ul.re-DetailHeader-features", pattern: surfacePattern},
			{selector: "div.re-DetailFeaturesList", pattern: surfacePattern},
		},
		rooms: []strategy{
			{selector: "ul.re-DetailHeader-features", pattern: roomsPattern},
			{selector: "div.re-DetailFeaturesList", pattern: roomsPattern},
		},
		bathrooms: []strategy{
			{selector: "ul.re-DetailHeader-features", pattern: bathsPattern},
			{selector: "div.re-DetailFeaturesList", pattern: bathsPattern},
		},
		address: []strategy{
			{selector: "h2.re-DetailMap-address"},
			{selector: "p.re-DetailHeader-municipalityTitle"},
		},
		description: []strategy{
			{selector: "p.fc-DetailDescription"},
			{selector: "div.re-DetailDescription"},
		},
		imageSel:   "section.re-DetailMosaicPhoto img, div.re-DetailMultimediaShort img",
		imageAttrs: []string{"src"},
	},
	models.PortalPisos: {
		title: []strategy{
			{selector: "h1.maindata-info--title"},
			{selector: "meta[property='og:title']", attr: "content"},
			{selector: "h1"},
		},
		price: []strategy{
			{selector: "div.maindata-info--price span.h1"},
			{selector: "div.priceBox-price"},
		},
		surface: []strategy{
			{selector: "div.basicdata", pattern: surfacePattern},
			{selector: "div.charblock", pattern: surfacePattern},
		},
		rooms: []strategy{
			{selector: "div.basicdata", pattern: roomsPattern},
			{selector: "div.charblock", pattern: roomsPattern},
		},
		bathrooms: []strategy{
			{selector: "div.basicdata", pattern: bathsPattern},
			{selector: "div.charblock", pattern: bathsPattern},
		},
		address: []strategy{
			{selector: "div.maindata-info--address"},
			{selector: "h2.position"},
		},
		description: []strategy{
			{selector: "div.description-container"},
			{selector: "div.description"},
		},
		imageSel:   "div.masonry img, div.gallery img",
		imageAttrs: []string{"data-src", "src"},
	},
}

// collectImages gathers the ordered gallery image URLs for a portal page,
// falling back to og:image when the gallery markup is absent.
func collectImages(doc *goquery.Document, fc fieldChains) []string {
	var images []string
	seen := make(map[string]bool)

	doc.Find(fc.imageSel).Each(func(_ int, s *goquery.Selection) {
		for _, attr := range fc.imageAttrs {
			src, exists := s.Attr(attr)
			src = strings.TrimSpace(src)
			if exists && strings.HasPrefix(src, "http") && !seen[src] {
				seen[src] = true
				images = append(images, src)
				return
			}
		}
	})

	if len(images) == 0 {
		if og, exists := doc.Find("meta[property='og:image']").Attr("content"); exists {
			og = strings.TrimSpace(og)
			if og != "" {
				images = append(images, og)
			}
		}
	}

	return images
}
