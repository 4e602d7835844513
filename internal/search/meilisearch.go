package search

import (
	"strings"

	"github.com/meilisearch/meilisearch-go"

	"inmoradar/internal/models"
)

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})

	return &SearchClient{
		client: client,
		index:  "properties",
	}
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	// Create index if it doesn't exist
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && err.Error() != "index already exists" {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"title",
		"address",
		"zone",
		"district",
		"city",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"id",
		"portal",
		"zone",
		"district",
		"price",
		"surface_m2",
		"price_per_m2",
		"rooms",
		"condition",
		"status",
		"score",
		"extraction_confidence",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"price",
		"surface_m2",
		"price_per_m2",
		"score",
		"created_at",
	})
	if err != nil {
		return err
	}

	return nil
}

// IndexProperty indexes a single property
func (s *SearchClient) IndexProperty(property *models.Property) error {
	_, err := s.client.Index(s.index).AddDocuments([]models.Property{*property})
	return err
}

// IndexProperties indexes multiple properties
func (s *SearchClient) IndexProperties(properties []models.Property) error {
	if len(properties) == 0 {
		return nil
	}
	_, err := s.client.Index(s.index).AddDocuments(properties)
	return err
}

// DeleteProperty removes a property from the index. Called by the cleanup
// job when an expired REMOVED row is purged from the store.
func (s *SearchClient) DeleteProperty(id string) error {
	_, err := s.client.Index(s.index).DeleteDocument(id)
	return err
}

// SearchRequest represents advanced search parameters
type SearchRequest struct {
	Query  string
	Limit  int64
	Offset int64
	Filter []string
	Sort   []string
	Facets []string
}

// SearchResult represents search results with facets
type SearchResult struct {
	Hits           []models.Property
	TotalHits      int64
	Facets         map[string]interface{}
	ProcessingTime int64
}

// Search searches for properties with basic options
func (s *SearchClient) Search(query string, limit int64) ([]models.Property, error) {
	result, err := s.AdvancedSearch(SearchRequest{
		Query: query,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	return result.Hits, nil
}

// AdvancedSearch performs search with filters, sorting and facets
func (s *SearchClient) AdvancedSearch(req SearchRequest) (*SearchResult, error) {
	if req.Limit == 0 {
		req.Limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:  req.Limit,
		Offset: req.Offset,
	}

	if len(req.Filter) > 0 {
		searchReq.Filter = strings.Join(req.Filter, " AND ")
	}
	if len(req.Sort) > 0 {
		searchReq.Sort = req.Sort
	}
	if len(req.Facets) > 0 {
		searchReq.Facets = req.Facets
	}

	searchRes, err := s.client.Index(s.index).Search(req.Query, searchReq)
	if err != nil {
		return nil, err
	}

	properties := make([]models.Property, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		properties = append(properties, parsePropertyFromHit(hit))
	}

	var facets map[string]interface{}
	if searchRes.FacetDistribution != nil {
		facets, _ = searchRes.FacetDistribution.(map[string]interface{})
	}

	return &SearchResult{
		Hits:           properties,
		TotalHits:      searchRes.EstimatedTotalHits,
		Facets:         facets,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}, nil
}

// parsePropertyFromHit converts a search hit to a Property
func parsePropertyFromHit(hit interface{}) models.Property {
	hitMap, ok := hit.(map[string]interface{})
	if !ok {
		return models.Property{}
	}

	property := models.Property{
		ID:                   getString(hitMap, "id"),
		SourceURL:            getString(hitMap, "source_url"),
		Portal:               models.Portal(getString(hitMap, "portal")),
		Title:                getString(hitMap, "title"),
		Address:              getString(hitMap, "address"),
		Zone:                 getString(hitMap, "zone"),
		District:             getString(hitMap, "district"),
		City:                 getString(hitMap, "city"),
		Condition:            models.Condition(getString(hitMap, "condition")),
		Status:               models.PropertyStatus(getString(hitMap, "status")),
		ExtractionConfidence: models.ExtractionConfidence(getString(hitMap, "extraction_confidence")),
	}

	if price, ok := hitMap["price"].(float64); ok {
		property.Price = &price
	}
	if surface, ok := hitMap["surface_m2"].(float64); ok {
		property.SurfaceM2 = &surface
	}
	if ppm2, ok := hitMap["price_per_m2"].(float64); ok {
		property.PricePerM2 = &ppm2
	}
	if rooms, ok := hitMap["rooms"].(float64); ok {
		roomsInt := int(rooms)
		property.Rooms = &roomsInt
	}
	if baths, ok := hitMap["bathrooms"].(float64); ok {
		bathsInt := int(baths)
		property.Bathrooms = &bathsInt
	}
	if floor, ok := hitMap["floor"].(float64); ok {
		floorInt := int(floor)
		property.Floor = &floorInt
	}
	if score, ok := hitMap["score"].(float64); ok {
		property.Score = score
	}

	return property
}

// getString safely extracts a string from map
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

// GetFacets retrieves facet distribution for specified fields
func (s *SearchClient) GetFacets(facets []string) (map[string]interface{}, error) {
	searchRes, err := s.client.Index(s.index).Search("", &meilisearch.SearchRequest{
		Limit:  0,
		Facets: facets,
	})
	if err != nil {
		return nil, err
	}

	if searchRes.FacetDistribution != nil {
		if facetMap, ok := searchRes.FacetDistribution.(map[string]interface{}); ok {
			return facetMap, nil
		}
	}
	return map[string]interface{}{}, nil
}
