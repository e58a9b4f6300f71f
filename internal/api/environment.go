package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type setEnvironmentVariableRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

func (h *Handlers) ListEnvironmentVariables(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	vars, err := h.store.ListEnvironmentVariables(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vars)
}

// SetEnvironmentVariable creates or updates a single (application, key)
// pair; value travels plaintext on the wire and is sealed before storage
// (spec.md §4.6).
func (h *Handlers) SetEnvironmentVariable(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	var req setEnvironmentVariableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := h.store.SetEnvironmentVariable(c.Request.Context(), h.box, appID, req.Key, req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handlers) DeleteEnvironmentVariable(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	key := c.Param("key")
	if err := h.store.DeleteEnvironmentVariable(c.Request.Context(), appID, key); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
