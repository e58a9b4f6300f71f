package api

import (
	"net/http"

	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/GLINCKER/glinrdock/internal/proxy"
	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/gin-gonic/gin"
)

type addDomainRequest struct {
	Hostname string `json:"hostname" binding:"required"`
	Primary  bool   `json:"primary"`
}

func (h *Handlers) ListDomains(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	domains, err := h.store.ListDomains(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, domains)
}

func (h *Handlers) AddDomain(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	var req addDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	domain, err := h.store.AddDomain(c.Request.Context(), appID, req.Hostname, req.Primary)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, domain)
}

// findDomain looks up a Domain by (applicationID, hostname); the store has
// no dedicated lookup so this scans the application's (small) domain list.
func (h *Handlers) findDomain(c *gin.Context, appID int64, hostname string) (store.Domain, error) {
	domains, err := h.store.ListDomains(c.Request.Context(), appID)
	if err != nil {
		return store.Domain{}, err
	}
	for _, d := range domains {
		if d.Hostname == hostname {
			return d, nil
		}
	}
	return store.Domain{}, apperror.New(apperror.NotFound, "domain not found")
}

func (h *Handlers) RemoveDomain(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	domain, err := h.findDomain(c, appID, c.Param("host"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.RemoveDomain(c.Request.Context(), domain.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) SetPrimaryDomain(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	domain, err := h.findDomain(c, appID, c.Param("host"))
	if err != nil {
		respondError(c, err)
		return
	}
	updated, err := h.store.SetPrimaryDomain(c.Request.Context(), domain.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// VerifyDomain polls the proxy adapter for hostname's certificate state
// and persists the result (spec.md §6.1: "recomputes ssl_active by
// polling F").
func (h *Handlers) VerifyDomain(c *gin.Context) {
	appID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	domain, err := h.findDomain(c, appID, c.Param("host"))
	if err != nil {
		respondError(c, err)
		return
	}

	status, err := h.proxy.CertStatus(c.Request.Context(), domain.Hostname)
	if err != nil {
		respondError(c, err)
		return
	}

	active := status == proxy.CertActive
	if err := h.store.SetDomainSSLActive(c.Request.Context(), domain.ID, active); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hostname": domain.Hostname, "ssl_active": active, "cert_status": status})
}
