package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"inmoradar/internal/models"
	"inmoradar/internal/pipeline"
)

// RunHandler triggers ingestion runs and one-off imports
type RunHandler struct {
	runner *pipeline.Runner
}

// NewRunHandler creates a new run handler
func NewRunHandler(runner *pipeline.Runner) *RunHandler {
	return &RunHandler{runner: runner}
}

// StartRun triggers an ingestion run. The run executes asynchronously;
// invalid parameters are rejected before any work starts.
func (h *RunHandler) StartRun(c *gin.Context) {
	var req struct {
		Portals       []string `json:"portals"`
		Zones         []string `json:"zones"`
		MaxPages      int      `json:"max_pages"`
		MaxProperties int      `json:"max_properties"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := pipeline.RunParams{
		Zones:         req.Zones,
		MaxPages:      req.MaxPages,
		MaxProperties: req.MaxProperties,
	}
	for _, p := range req.Portals {
		params.Portals = append(params.Portals, models.Portal(p))
	}
	if len(params.Portals) == 0 {
		params.Portals = models.KnownPortals
	}

	if err := h.runner.Validate(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Printf("[API] Run requested: portals=%v zones=%v", params.Portals, params.Zones)
	go func() {
		result, err := h.runner.Run(context.Background(), params)
		if err != nil {
			log.Printf("[API] Run failed: %v", err)
			return
		}
		log.Printf("[API] Run finished: processed=%d saved=%d skipped=%d errors=%d",
			result.TotalProcessed, result.Saved, result.Skipped, result.Errors)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Run started",
		"status":  "running",
	})
}

// ImportText ingests a pasted listing description
func (h *RunHandler) ImportText(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
		Zone string `json:"zone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	property, outcome, err := h.runner.ImportText(req.Text, req.Zone)
	if err != nil {
		var verr *pipeline.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":  outcome,
		"property": property,
	})
}

// ImportURL ingests a single listing URL
func (h *RunHandler) ImportURL(c *gin.Context) {
	var req struct {
		URL  string `json:"url" binding:"required"`
		Zone string `json:"zone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	property, outcome, provenance, err := h.runner.ImportURL(c.Request.Context(), req.URL, req.Zone)
	if err != nil {
		var verr *pipeline.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":  outcome,
		"source":   provenance,
		"property": property,
	})
}
