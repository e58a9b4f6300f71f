package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type putWebhookRequest struct {
	Provider string `json:"provider" binding:"required"`
	Enabled  bool   `json:"enabled"`
}

// PutWebhook creates or replaces the application's webhook configuration.
// The secret is always generated server-side (spec.md §3: "secret (random
// token)") rather than accepted from the caller — the response is the only
// place the plaintext secret is returned, for the caller to paste into the
// provider's webhook settings.
func (h *Handlers) PutWebhook(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	var req putWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	secret := uuid.NewString()
	webhook, err := h.store.PutWebhook(c.Request.Context(), appID, req.Provider, secret, req.Enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, webhook)
}

func (h *Handlers) GetWebhook(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	webhook, err := h.store.GetWebhook(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, webhook)
}

func (h *Handlers) DeleteWebhook(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteWebhook(c.Request.Context(), appID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ListWebhookDeliveries(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	deliveries, err := h.store.ListWebhookDeliveries(c.Request.Context(), appID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deliveries)
}
