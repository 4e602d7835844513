package extractor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inmoradar/internal/models"
)

const idealistaListing = `<html><head>
<meta property="og:image" content="https://img3.idealista.com/photo/1.jpg">
</head><body>
<span class="main-info__title-main">Ático en venta en Calle Argumosa</span>
<span class="main-info__title-minor">Lavapiés, Madrid</span>
<span class="info-data-price"><span class="txt-bold">320.000</span> €</span>
<div class="info-features"><span>95 m²</span> <span>3 hab.</span></div>
<section id="details">95 m² construidos, 3 habitaciones, 2 baños</section>
<div class="comment">Ático exterior completamente reformado, Planta 5ª con ascensor y trastero.</div>
<div class="detail-multimedia">
  <img src="https://img3.idealista.com/photo/2.jpg">
  <img data-ondemand-img="https://img3.idealista.com/photo/3.jpg" src="data:image/gif;base64,x">
</div>
</body></html>`

func TestExtractFromHTMLIdealista(t *testing.T) {
	e := New()
	p, err := e.ExtractFromHTML(idealistaListing, "https://www.idealista.com/inmueble/1/", models.PortalIdealista)
	require.NoError(t, err)

	assert.Equal(t, models.PortalIdealista, p.Portal)
	assert.Equal(t, "https://www.idealista.com/inmueble/1/", p.SourceURL)
	assert.Equal(t, "Ático en venta en Calle Argumosa", p.Title)
	assert.Equal(t, "Lavapiés, Madrid", p.Address)

	require.NotNil(t, p.Price)
	assert.Equal(t, 320000.0, *p.Price)
	require.NotNil(t, p.SurfaceM2)
	assert.Equal(t, 95.0, *p.SurfaceM2)
	require.NotNil(t, p.PricePerM2)
	assert.InDelta(t, 3368.42, *p.PricePerM2, 0.01)

	require.NotNil(t, p.Rooms)
	assert.Equal(t, 3, *p.Rooms)
	require.NotNil(t, p.Bathrooms)
	assert.Equal(t, 2, *p.Bathrooms)

	assert.Equal(t, models.ConditionReformed, p.Condition)
	assert.True(t, p.IsPenthouse)
	assert.True(t, p.IsExterior)
	assert.True(t, p.HasLift)
	assert.True(t, p.HasStorage)
	require.NotNil(t, p.Floor)
	assert.Equal(t, 5, *p.Floor)

	assert.Equal(t, models.ConfidenceFull, p.ExtractionConfidence)
	assert.Equal(t, models.PropertyStatusActive, p.Status)
	assert.Equal(t, []string{
		"https://img3.idealista.com/photo/2.jpg",
		"https://img3.idealista.com/photo/3.jpg",
	}, p.Images)
}

func TestExtractFromHTMLFallbackSelectors(t *testing.T) {
	// Stripped-down markup: only the meta fallbacks are present.
	html := `<html><head>
<meta property="og:title" content="Piso en venta en Malasaña">
<meta itemprop="price" content="250000">
<meta property="og:image" content="https://img3.idealista.com/photo/og.jpg">
</head><body></body></html>`

	e := New()
	p, err := e.ExtractFromHTML(html, "https://www.idealista.com/inmueble/2/", models.PortalIdealista)
	require.NoError(t, err)

	assert.Equal(t, "Piso en venta en Malasaña", p.Title)
	require.NotNil(t, p.Price)
	assert.Equal(t, 250000.0, *p.Price)
	assert.Equal(t, []string{"https://img3.idealista.com/photo/og.jpg"}, p.Images)
}

func TestExtractFromHTMLMissingSurfaceIsPartial(t *testing.T) {
	html := `<html><body>
<span class="main-info__title-main">Piso en venta</span>
<span class="info-data-price"><span class="txt-bold">180.000</span> €</span>
</body></html>`

	e := New()
	p, err := e.ExtractFromHTML(html, "https://www.idealista.com/inmueble/3/", models.PortalIdealista)
	require.NoError(t, err)

	require.NotNil(t, p.Price)
	assert.Nil(t, p.SurfaceM2)
	assert.Nil(t, p.PricePerM2)
	assert.Equal(t, models.ConfidencePartial, p.ExtractionConfidence)
}

func TestExtractFromHTMLTitleCarriesPenthouseAndFloor(t *testing.T) {
	html := `<html><body>
<span class="main-info__title-main">Ático en planta 7 en venta en Chamberí</span>
</body></html>`

	e := New()
	p, err := e.ExtractFromHTML(html, "https://www.idealista.com/inmueble/4/", models.PortalIdealista)
	require.NoError(t, err)

	assert.True(t, p.IsPenthouse)
	require.NotNil(t, p.Floor)
	assert.Equal(t, 7, *p.Floor)
	assert.Equal(t, models.ConditionGood, p.Condition, "no description defaults to good")
}

func TestExtractFromHTMLUnaccentedAtico(t *testing.T) {
	// Portals and sellers frequently drop the accent.
	html := `<html><body>
<span class="main-info__title-main">Atico en venta en Malasana</span>
<div class="comment">Atico luminoso con terraza en planta 6.</div>
</body></html>`

	e := New()
	p, err := e.ExtractFromHTML(html, "https://www.idealista.com/inmueble/5/", models.PortalIdealista)
	require.NoError(t, err)

	assert.True(t, p.IsPenthouse)
	require.NotNil(t, p.Floor)
	assert.Equal(t, 6, *p.Floor)
}

func TestExtractFromHTMLFotocasa(t *testing.T) {
	html := `<html><body>
<h1 class="re-DetailHeader-propertyTitle">Piso en venta en Delicias</h1>
<span class="re-DetailHeader-price">210.000 €</span>
<ul class="re-DetailHeader-features"><li>70 m²</li><li>2 hab.</li><li>1 baño</li></ul>
<h2 class="re-DetailMap-address">Calle Bustamante, Delicias</h2>
<p class="fc-DetailDescription">Piso para reformar, interior, planta baja.</p>
</body></html>`

	e := New()
	p, err := e.ExtractFromHTML(html, "https://www.fotocasa.es/es/comprar/vivienda/5/d", models.PortalFotocasa)
	require.NoError(t, err)

	require.NotNil(t, p.Price)
	assert.Equal(t, 210000.0, *p.Price)
	require.NotNil(t, p.SurfaceM2)
	assert.Equal(t, 70.0, *p.SurfaceM2)
	require.NotNil(t, p.Rooms)
	assert.Equal(t, 2, *p.Rooms)
	require.NotNil(t, p.Bathrooms)
	assert.Equal(t, 1, *p.Bathrooms)
	assert.Equal(t, "Calle Bustamante, Delicias", p.Address)
	assert.Equal(t, models.ConditionNeedsReform, p.Condition)
	require.NotNil(t, p.Floor)
	assert.Equal(t, 0, *p.Floor)
	assert.False(t, p.IsExterior)
}

func TestExtractFromHTMLUnknownPortal(t *testing.T) {
	e := New()
	_, err := e.ExtractFromHTML("<html></html>", "https://example.com/1", models.Portal("zillow"))
	require.Error(t, err)
}

type failingSession struct{}

func (failingSession) FetchPage(context.Context, string) (string, error) {
	return "", fmt.Errorf("network unreachable")
}

func (failingSession) Release() {}

func TestExtractSurfacesFetchFailure(t *testing.T) {
	e := New()
	_, err := e.Extract(context.Background(), failingSession{}, "https://www.idealista.com/inmueble/6/", models.PortalIdealista)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch")
}
