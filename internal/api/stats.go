package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GetStats returns container resource samples from the last N hours
// (default 24, the full retention window per spec.md §4.7).
func (h *Handlers) GetStats(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	hours := 24
	if raw := c.Query("hours"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			hours = n
		}
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour).Unix()
	stats, err := h.store.RecentContainerStats(c.Request.Context(), appID, since)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
