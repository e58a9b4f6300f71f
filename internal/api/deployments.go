package api

import (
	"net/http"
	"strconv"

	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/gin-gonic/gin"
)

// TriggerDeployment enqueues a new manual deployment for an application.
func (h *Handlers) TriggerDeployment(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	deployment, err := h.orchestrator.Enqueue(c.Request.Context(), appID, store.TriggerManual)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, deployment)
}

// ListDeployments lists deployments for ?application_id=….
func (h *Handlers) ListDeployments(c *gin.Context) {
	appIDStr := c.Query("application_id")
	appID, err := strconv.ParseInt(appIDStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "application_id query parameter required"})
		return
	}

	deployments, err := h.store.ListDeployments(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deployments)
}

func (h *Handlers) GetDeployment(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	deployment, err := h.store.GetDeployment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deployment)
}

func (h *Handlers) CancelDeployment(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	if err := h.orchestrator.Cancel(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
