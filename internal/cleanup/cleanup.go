// Package cleanup physically deletes removed listings once their retention
// window expires.
package cleanup

import (
	"fmt"
	"log"
	"time"

	"inmoradar/internal/models"
	"inmoradar/internal/store"
)

// Deindexer removes purged records from the search index. Optional.
type Deindexer interface {
	DeleteProperty(id string) error
}

// Service handles physical deletion of old removed properties
type Service struct {
	backend store.Backend
	search  Deindexer
}

// NewService creates a new cleanup service. search may be nil.
func NewService(backend store.Backend, search Deindexer) *Service {
	return &Service{backend: backend, search: search}
}

// CleanupConfig holds configuration for cleanup operations
type CleanupConfig struct {
	RetentionDays    int  // Days to keep removed properties before physical deletion
	MaxDeletionCount int  // Maximum number of properties to delete in one run (safety limit)
	DryRun           bool // If true, only log what would be deleted without actually deleting
}

// DefaultCleanupConfig returns default configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		RetentionDays:    90,
		MaxDeletionCount: 10000,
		DryRun:           false,
	}
}

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	TargetCount       int       `json:"target_count"`
	DeletedCount      int       `json:"deleted_count"`
	ErrorCount        int       `json:"error_count"`
	DryRun            bool      `json:"dry_run"`
	ExecutedAt        time.Time `json:"executed_at"`
	DeletedProperties []string  `json:"deleted_properties"`
	Errors            []string  `json:"errors,omitempty"`
}

// FindExpiredProperties finds REMOVED properties whose last update is older
// than the retention window.
func (s *Service) FindExpiredProperties(retentionDays int) ([]models.Property, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	properties, err := s.backend.FindExpired(cutoff, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired properties: %w", err)
	}

	log.Printf("[Cleanup] Found %d properties expired before %s", len(properties), cutoff.Format("2006-01-02"))
	return properties, nil
}

// PhysicallyDelete purges expired properties from the store and the search
// index. History rows go with the property.
func (s *Service) PhysicallyDelete(config CleanupConfig) (*CleanupResult, error) {
	result := &CleanupResult{
		DryRun:     config.DryRun,
		ExecutedAt: time.Now(),
	}

	expired, err := s.FindExpiredProperties(config.RetentionDays)
	if err != nil {
		return nil, err
	}

	result.TargetCount = len(expired)
	if result.TargetCount == 0 {
		log.Println("[Cleanup] No expired properties found for deletion")
		return result, nil
	}

	// Safety check: abort if too many properties would be deleted
	if config.MaxDeletionCount > 0 && result.TargetCount > config.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d properties exceed max deletion limit of %d",
			result.TargetCount, config.MaxDeletionCount)
	}

	log.Printf("[Cleanup] Starting cleanup: %d properties to delete (retention: %d days, dry-run: %v)",
		result.TargetCount, config.RetentionDays, config.DryRun)

	for _, prop := range expired {
		if config.DryRun {
			log.Printf("[Cleanup] [DRY-RUN] Would delete property %s (Title: %s, UpdatedAt: %s)",
				prop.ID, prop.Title, prop.UpdatedAt.Format("2006-01-02"))
			result.DeletedProperties = append(result.DeletedProperties, prop.ID)
			result.DeletedCount++
			continue
		}

		if err := s.backend.Delete(prop.ID); err != nil {
			errMsg := fmt.Sprintf("Failed to delete property %s: %v", prop.ID, err)
			log.Printf("[Cleanup] ERROR: %s", errMsg)
			result.Errors = append(result.Errors, errMsg)
			result.ErrorCount++
			continue
		}

		if s.search != nil {
			if err := s.search.DeleteProperty(prop.ID); err != nil {
				log.Printf("[Cleanup] Failed to de-index property %s: %v", prop.ID, err)
			}
		}

		log.Printf("[Cleanup] Physically deleted property %s (Title: %s)", prop.ID, prop.Title)
		result.DeletedProperties = append(result.DeletedProperties, prop.ID)
		result.DeletedCount++
	}

	log.Printf("[Cleanup] Cleanup completed: %d/%d deleted, %d errors (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.ErrorCount, config.DryRun)

	return result, nil
}

// GetStats returns counts relevant to the cleanup job
func (s *Service) GetStats(retentionDays int) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	currentRemoved, err := s.backend.Count(store.ListFilter{Status: models.PropertyStatusRemoved})
	if err != nil {
		return nil, err
	}
	stats["currently_removed"] = currentRemoved

	expired, err := s.FindExpiredProperties(retentionDays)
	if err != nil {
		return nil, err
	}
	stats["expired_ready_for_deletion"] = len(expired)
	stats["retention_days"] = retentionDays

	return stats, nil
}
