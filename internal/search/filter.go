package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meilisearch/meilisearch-go"

	"inmoradar/internal/models"
)

type FilterParams struct {
	Query      string
	Portal     string
	Zones      []string
	MinPrice   *float64
	MaxPrice   *float64
	MinSurface *float64
	MinRooms   *int
	Condition  string
	MinScore   *float64
	Status     string
	SortBy     string
	Limit      int64
}

// FilterSearch performs advanced search with filters
func (s *SearchClient) FilterSearch(params FilterParams) ([]models.Property, error) {
	var filters []string

	if params.Portal != "" {
		filters = append(filters, fmt.Sprintf("portal = '%s'", params.Portal))
	}

	if len(params.Zones) > 0 {
		zoneFilters := make([]string, len(params.Zones))
		for i, zone := range params.Zones {
			zoneFilters[i] = fmt.Sprintf("zone = '%s'", zone)
		}
		filters = append(filters, fmt.Sprintf("(%s)", strings.Join(zoneFilters, " OR ")))
	}

	// Price range filter
	if params.MinPrice != nil {
		filters = append(filters, fmt.Sprintf("price >= %.0f", *params.MinPrice))
	}
	if params.MaxPrice != nil {
		filters = append(filters, fmt.Sprintf("price <= %.0f", *params.MaxPrice))
	}

	if params.MinSurface != nil {
		filters = append(filters, fmt.Sprintf("surface_m2 >= %.0f", *params.MinSurface))
	}
	if params.MinRooms != nil {
		filters = append(filters, fmt.Sprintf("rooms >= %d", *params.MinRooms))
	}
	if params.Condition != "" {
		filters = append(filters, fmt.Sprintf("condition = '%s'", params.Condition))
	}
	if params.MinScore != nil {
		filters = append(filters, fmt.Sprintf("score >= %.1f", *params.MinScore))
	}
	if params.Status != "" {
		filters = append(filters, fmt.Sprintf("status = '%s'", params.Status))
	}

	var filterStr string
	if len(filters) > 0 {
		filterStr = strings.Join(filters, " AND ")
	}

	var sort []string
	if params.SortBy != "" {
		sort = []string{params.SortBy}
	}

	if params.Limit == 0 {
		params.Limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit: params.Limit,
	}

	if filterStr != "" {
		searchReq.Filter = filterStr
	}
	if len(sort) > 0 {
		searchReq.Sort = sort
	}

	searchRes, err := s.client.Index(s.index).Search(params.Query, searchReq)
	if err != nil {
		return nil, err
	}

	// Convert hits to properties via JSON round-trip
	var properties []models.Property
	for _, hit := range searchRes.Hits {
		hitJSON, err := json.Marshal(hit)
		if err != nil {
			continue
		}

		var property models.Property
		if err := json.Unmarshal(hitJSON, &property); err != nil {
			continue
		}

		properties = append(properties, property)
	}

	return properties, nil
}
