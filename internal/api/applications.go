package api

import (
	"net/http"
	"strconv"

	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/gin-gonic/gin"
)

func parsePathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// createApplicationRequest is the wire shape for POST /applications.
type createApplicationRequest struct {
	Name           string  `json:"name" binding:"required"`
	ServerID       int64   `json:"server_id" binding:"required"`
	GitURL         *string `json:"git_url"`
	GitBranch      *string `json:"git_branch"`
	BuildStrategy  string  `json:"build_strategy"`
	DockerfilePath *string `json:"dockerfile_path"`
	Port           *int    `json:"port"`
	AutoDeploy     bool    `json:"auto_deploy"`
}

func (h *Handlers) CreateApplication(c *gin.Context) {
	var req createApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.store.CreateApplication(c.Request.Context(), store.CreateApplicationInput{
		Name:           req.Name,
		ServerID:       req.ServerID,
		GitURL:         req.GitURL,
		GitBranch:      req.GitBranch,
		BuildStrategy:  req.BuildStrategy,
		DockerfilePath: req.DockerfilePath,
		Port:           req.Port,
		AutoDeploy:     req.AutoDeploy,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

func (h *Handlers) ListApplications(c *gin.Context) {
	apps, err := h.store.ListApplications(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}

func (h *Handlers) GetApplication(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	app, err := h.store.GetApplication(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// updateApplicationRequest carries the double-pointer partial-update
// fields spec.md §6.1 requires ("omitted fields unchanged"): a field that
// is omitted or set to JSON null leaves the stored value untouched, because
// encoding/json sets the outer pointer to nil in both cases. These fields
// cannot be cleared through this request.
type updateApplicationRequest struct {
	GitURL         **string `json:"git_url"`
	GitBranch      **string `json:"git_branch"`
	BuildStrategy  *string  `json:"build_strategy"`
	DockerfilePath **string `json:"dockerfile_path"`
	Port           **int    `json:"port"`
	AutoDeploy     *bool    `json:"auto_deploy"`
}

func (h *Handlers) UpdateApplication(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	var req updateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.store.UpdateApplication(c.Request.Context(), id, store.UpdateApplicationInput{
		GitURL:         req.GitURL,
		GitBranch:      req.GitBranch,
		BuildStrategy:  req.BuildStrategy,
		DockerfilePath: req.DockerfilePath,
		Port:           req.Port,
		AutoDeploy:     req.AutoDeploy,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// DeleteApplication removes the application, cancelling any in-flight
// deployment and tearing down its currently-owned container first
// (spec.md §3 Application lifecycle; §9 Open Question 4, decided in
// DESIGN.md: cancel-and-remove).
func (h *Handlers) DeleteApplication(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if deployment, err := h.store.CurrentDeployment(ctx, id); err == nil && !store.IsTerminalDeploymentStatus(deployment.Status) {
		if err := h.orchestrator.Cancel(ctx, deployment.ID); err != nil && apperror.KindOf(err) != apperror.Conflict {
			respondError(c, err)
			return
		}
	}

	if h.fleet != nil {
		if err := h.fleet.Remove(ctx, id); err != nil && apperror.KindOf(err) != apperror.NotFound {
			respondError(c, err)
			return
		}
	}

	if err := h.store.DeleteApplication(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
