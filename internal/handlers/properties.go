package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"inmoradar/internal/models"
	"inmoradar/internal/search"
	"inmoradar/internal/store"
)

// PropertyHandler serves read access to the property store
type PropertyHandler struct {
	gateway *store.Gateway
	search  *search.SearchClient
}

// NewPropertyHandler creates a new property handler. search may be nil.
func NewPropertyHandler(gateway *store.Gateway, sc *search.SearchClient) *PropertyHandler {
	return &PropertyHandler{gateway: gateway, search: sc}
}

// ListProperties returns filtered properties from the store
func (h *PropertyHandler) ListProperties(c *gin.Context) {
	filter := store.ListFilter{
		Portal:  models.Portal(c.Query("portal")),
		Zone:    c.Query("zone"),
		Status:  models.PropertyStatus(c.Query("status")),
		OrderBy: c.DefaultQuery("order_by", "score_desc"),
	}

	if v := c.Query("min_price"); v != "" {
		if price, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinPrice = &price
		}
	}
	if v := c.Query("max_price"); v != "" {
		if price, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxPrice = &price
		}
	}
	if v := c.Query("min_score"); v != "" {
		if score, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinScore = &score
		}
	}

	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	properties, err := h.gateway.List(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total, err := h.gateway.Count(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"properties": properties,
		"count":      len(properties),
		"total":      total,
	})
}

// GetProperty returns one property by source URL
func (h *PropertyHandler) GetProperty(c *gin.Context) {
	sourceURL := c.Query("source_url")
	if sourceURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_url query parameter required"})
		return
	}

	property, err := h.gateway.FindByURL(sourceURL)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, property)
}

// GetPropertyHistory returns the append-only history for a property
func (h *PropertyHandler) GetPropertyHistory(c *gin.Context) {
	propertyID := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))

	history, err := h.gateway.History(propertyID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property_id": propertyID,
		"history":     history,
		"count":       len(history),
	})
}

// SearchProperties performs a full-text search via Meilisearch
func (h *PropertyHandler) SearchProperties(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search engine not configured"})
		return
	}

	params := search.FilterParams{
		Query:     c.Query("q"),
		Portal:    c.Query("portal"),
		Condition: c.Query("condition"),
		Status:    c.Query("status"),
		SortBy:    c.Query("sort_by"),
	}
	if zones := c.QueryArray("zone"); len(zones) > 0 {
		params.Zones = zones
	}
	if v := c.Query("min_price"); v != "" {
		if price, err := strconv.ParseFloat(v, 64); err == nil {
			params.MinPrice = &price
		}
	}
	if v := c.Query("max_price"); v != "" {
		if price, err := strconv.ParseFloat(v, 64); err == nil {
			params.MaxPrice = &price
		}
	}
	if v := c.Query("min_score"); v != "" {
		if score, err := strconv.ParseFloat(v, 64); err == nil {
			params.MinScore = &score
		}
	}
	if limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64); err == nil {
		params.Limit = limit
	}

	properties, err := h.search.FilterSearch(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"properties": properties,
		"count":      len(properties),
	})
}
