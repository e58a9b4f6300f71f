package api

import (
	"net/http"

	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/gin-gonic/gin"
)

type createTokenRequest struct {
	Name  string `json:"name" binding:"required"`
	Plain string `json:"plain" binding:"required"`
	Role  string `json:"role"`
}

// CreateToken mints a new bearer credential; admin-only (auth.AuthService
// gates the route with RequireAdminRole).
func (h *Handlers) CreateToken(c *gin.Context) {
	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = store.RoleUser
	}
	if !store.IsRoleValid(req.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role: must be admin or user"})
		return
	}

	token, err := h.store.CreateToken(c.Request.Context(), req.Name, req.Plain, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

func (h *Handlers) ListTokens(c *gin.Context) {
	tokens, err := h.store.ListTokens(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *Handlers) DeleteToken(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.DeleteTokenByName(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
