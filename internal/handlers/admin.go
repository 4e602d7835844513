package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"inmoradar/internal/cleanup"
	"inmoradar/internal/models"
	"inmoradar/internal/scheduler"
	"inmoradar/internal/store"
)

// AdminHandler handles admin-related requests
type AdminHandler struct {
	gateway        *store.Gateway
	scheduler      *scheduler.Scheduler
	cleanupService *cleanup.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(gateway *store.Gateway, sched *scheduler.Scheduler, cleanupService *cleanup.Service) *AdminHandler {
	return &AdminHandler{
		gateway:        gateway,
		scheduler:      sched,
		cleanupService: cleanupService,
	}
}

// GetStats returns system statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats := make(map[string]interface{})

	byStatus := make(map[string]int64)
	var total int64
	for _, status := range []models.PropertyStatus{
		models.PropertyStatusActive,
		models.PropertyStatusSold,
		models.PropertyStatusRemoved,
		models.PropertyStatusArchived,
	} {
		count, err := h.gateway.Count(store.ListFilter{Status: status})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		byStatus[string(status)] = count
		total += count
	}
	byStatus["total"] = total
	stats["properties"] = byStatus

	perPortal := make(map[string]int64)
	for _, portal := range models.KnownPortals {
		count, err := h.gateway.Count(store.ListFilter{Portal: portal})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		perPortal[string(portal)] = count
	}
	stats["by_portal"] = perPortal

	if h.cleanupService != nil {
		cleanupStats, err := h.cleanupService.GetStats(cleanup.DefaultCleanupConfig().RetentionDays)
		if err != nil {
			log.Printf("[API] Failed to get cleanup stats: %v", err)
		} else {
			stats["cleanup"] = cleanupStats
		}
	}

	stats["generated_at"] = time.Now()
	c.JSON(http.StatusOK, stats)
}

// TriggerDailyRun manually triggers the scheduled daily job
func (h *AdminHandler) TriggerDailyRun(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not available"})
		return
	}

	log.Println("[API] Manual daily run trigger requested")
	go func() {
		if err := h.scheduler.RunNow(); err != nil {
			log.Printf("[API] Manual daily run failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Daily job started",
		"status":  "running",
	})
}

// RunCleanup executes physical deletion of old removed properties
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req struct {
		RetentionDays    int  `json:"retention_days"`
		MaxDeletionCount int  `json:"max_deletion_count"`
		DryRun           bool `json:"dry_run"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	config := cleanup.DefaultCleanupConfig()
	if req.RetentionDays > 0 {
		config.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		config.MaxDeletionCount = req.MaxDeletionCount
	}
	config.DryRun = req.DryRun

	log.Printf("[API] Running cleanup (retention: %d days, max: %d, dry-run: %v)",
		config.RetentionDays, config.MaxDeletionCount, config.DryRun)

	result, err := h.cleanupService.PhysicallyDelete(config)
	if err != nil {
		log.Printf("[API] Cleanup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ReviewComparable records a manual reform classification on a comparable
func (h *AdminHandler) ReviewComparable(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comparable id"})
		return
	}

	var req struct {
		WasReformed   *bool  `json:"was_reformed" binding:"required"`
		ReformQuality string `json:"reform_quality"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comparable, err := h.gateway.Backend().GetComparable(uint(id))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "comparable not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	comparable.WasReformed = req.WasReformed
	comparable.ReformQuality = models.ReformQuality(req.ReformQuality)
	now := time.Now()
	comparable.ReviewedAt = &now

	if err := h.gateway.Backend().SaveComparable(comparable); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, comparable)
}
