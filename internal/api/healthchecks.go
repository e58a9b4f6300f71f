package api

import (
	"net/http"

	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/gin-gonic/gin"
)

type setHealthCheckRequest struct {
	Path               string `json:"path"`
	IntervalSeconds    int    `json:"interval_seconds"`
	TimeoutSeconds     int    `json:"timeout_seconds"`
	HealthyThreshold   int    `json:"healthy_threshold"`
	UnhealthyThreshold int    `json:"unhealthy_threshold"`
}

func (h *Handlers) SetHealthCheck(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	var req setHealthCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hc := store.HealthCheck{
		ApplicationID:      appID,
		Path:               req.Path,
		IntervalSeconds:    req.IntervalSeconds,
		TimeoutSeconds:     req.TimeoutSeconds,
		HealthyThreshold:   req.HealthyThreshold,
		UnhealthyThreshold: req.UnhealthyThreshold,
	}
	saved, err := h.store.UpsertHealthCheck(c.Request.Context(), hc)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GetHealthCheck returns the application's configured check, or the
// default if none has been set (spec.md §3: "defaults apply if absent").
func (h *Handlers) GetHealthCheck(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	hc, err := h.store.GetHealthCheck(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hc)
}

func (h *Handlers) ListHealthCheckResults(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	results, err := h.store.RecentHealthCheckResults(c.Request.Context(), appID, 100)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
