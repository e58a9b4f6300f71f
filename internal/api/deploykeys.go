package api

import (
	"net/http"

	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/GLINCKER/glinrdock/internal/gitx"
	"github.com/gin-gonic/gin"
)

// GetDeployKey returns the application's current public deploy key.
func (h *Handlers) GetDeployKey(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	key, err := h.store.GetDeployKey(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": key.PublicKey, "created_at": key.CreatedAt})
}

// RotateDeployKey generates a fresh key pair and atomically replaces
// whatever key the application previously had (spec.md §6.1).
func (h *Handlers) RotateDeployKey(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	pair, err := gitx.GenerateKeyPair()
	if err != nil {
		respondError(c, apperror.Wrap(apperror.Internal, "failed to generate deploy key", err))
		return
	}

	key, err := h.store.PutDeployKey(c.Request.Context(), h.box, appID, pair.PublicKey, pair.PrivateKey)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": key.PublicKey, "created_at": key.CreatedAt})
}
