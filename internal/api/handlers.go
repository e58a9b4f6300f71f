// Package api is the HTTP binding for the Ployer core (spec §6.1). It is
// out of scope for correctness per the specification, but is implemented
// to exercise the core end to end, following the teacher's
// handler-per-resource file layout and bearer-token middleware shape.
package api

import (
	"net/http"
	"time"

	"github.com/GLINCKER/glinrdock/internal/auth"
	"github.com/GLINCKER/glinrdock/internal/crypto"
	"github.com/GLINCKER/glinrdock/internal/deploy"
	"github.com/GLINCKER/glinrdock/internal/events"
	"github.com/GLINCKER/glinrdock/internal/fleet"
	"github.com/GLINCKER/glinrdock/internal/metrics"
	"github.com/GLINCKER/glinrdock/internal/proxy"
	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/GLINCKER/glinrdock/internal/webhookingress"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startedAt = time.Now()

// Handlers holds every dependency the resource handler files need.
type Handlers struct {
	store        *store.Store
	box          *crypto.SecretBox
	orchestrator *deploy.Orchestrator
	fleet        *fleet.Controller
	proxy        *proxy.Adapter
	webhooks     *webhookingress.Handler
	collector    *metrics.Collector
	bus          *events.Bus
}

// NewHandlers wires the resource handlers to their shared dependencies.
func NewHandlers(st *store.Store, box *crypto.SecretBox, orchestrator *deploy.Orchestrator, fc *fleet.Controller, proxyAdapter *proxy.Adapter, webhooks *webhookingress.Handler, collector *metrics.Collector, bus *events.Bus) *Handlers {
	return &Handlers{
		store:        st,
		box:          box,
		orchestrator: orchestrator,
		fleet:        fc,
		proxy:        proxyAdapter,
		webhooks:     webhooks,
		collector:    collector,
		bus:          bus,
	}
}

// Health is the unauthenticated liveness probe.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(startedAt).String(),
	})
}

// Metrics exposes the Prometheus registry in the standard exposition
// format.
func (h *Handlers) Metrics(c *gin.Context) {
	promhttp.HandlerFor(h.collector.Registry(), promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

// SetupRoutes wires every resource group behind the v1 prefix, mirroring
// the teacher's flat route-table layout in internal/api/routes.go.
func SetupRoutes(r *gin.Engine, h *Handlers, corsOrigins []string, authService *auth.AuthService) {
	if len(corsOrigins) > 0 {
		config := cors.DefaultConfig()
		config.AllowOrigins = corsOrigins
		config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
		r.Use(cors.New(config))
	}

	v1 := r.Group("/v1")

	v1.GET("/health", h.Health)
	v1.HEAD("/health", h.Health)
	v1.GET("/metrics", h.Metrics)

	v1.POST("/webhooks/github", h.webhooks.Handle)
	v1.POST("/webhooks/gitlab", h.webhooks.Handle)

	protected := v1.Group("")
	protected.Use(authService.Middleware())
	{
		protected.GET("/events", h.Events)

		tokens := protected.Group("/tokens")
		tokens.Use(authService.RequireAdminRole())
		{
			tokens.POST("", h.CreateToken)
			tokens.GET("", h.ListTokens)
			tokens.DELETE("/:name", h.DeleteToken)
		}

		apps := protected.Group("/applications")
		{
			apps.POST("", h.CreateApplication)
			apps.GET("", h.ListApplications)
			apps.GET("/:id", h.GetApplication)
			apps.PUT("/:id", h.UpdateApplication)
			apps.DELETE("/:id", h.DeleteApplication)

			apps.GET("/:id/envs", h.ListEnvironmentVariables)
			apps.POST("/:id/envs", h.SetEnvironmentVariable)
			apps.DELETE("/:id/envs/:key", h.DeleteEnvironmentVariable)

			apps.GET("/:id/deploy-key", h.GetDeployKey)
			apps.POST("/:id/deploy-key", h.RotateDeployKey)

			apps.POST("/:id/deploy", h.TriggerDeployment)

			apps.GET("/:id/domains", h.ListDomains)
			apps.POST("/:id/domains", h.AddDomain)
			apps.DELETE("/:id/domains/:host", h.RemoveDomain)
			apps.POST("/:id/domains/:host/primary", h.SetPrimaryDomain)
			apps.POST("/:id/domains/:host/verify", h.VerifyDomain)

			apps.POST("/:id/webhooks", h.PutWebhook)
			apps.GET("/:id/webhooks", h.GetWebhook)
			apps.DELETE("/:id/webhooks", h.DeleteWebhook)
			apps.GET("/:id/webhooks/deliveries", h.ListWebhookDeliveries)

			apps.POST("/:id/health-check", h.SetHealthCheck)
			apps.GET("/:id/health-check", h.GetHealthCheck)
			apps.GET("/:id/health-check/results", h.ListHealthCheckResults)

			apps.GET("/:id/stats", h.GetStats)
		}

		deployments := protected.Group("/deployments")
		{
			deployments.GET("", h.ListDeployments)
			deployments.GET("/:id", h.GetDeployment)
			deployments.POST("/:id/cancel", h.CancelDeployment)
		}
	}
}
