package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GLINCKER/glinrdock/internal/api"
	"github.com/GLINCKER/glinrdock/internal/auth"
	"github.com/GLINCKER/glinrdock/internal/crypto"
	"github.com/GLINCKER/glinrdock/internal/deploy"
	"github.com/GLINCKER/glinrdock/internal/dockerx"
	"github.com/GLINCKER/glinrdock/internal/events"
	"github.com/GLINCKER/glinrdock/internal/fleet"
	"github.com/GLINCKER/glinrdock/internal/health"
	"github.com/GLINCKER/glinrdock/internal/metrics"
	"github.com/GLINCKER/glinrdock/internal/proxy"
	"github.com/GLINCKER/glinrdock/internal/reconcile"
	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/GLINCKER/glinrdock/internal/util"
	"github.com/GLINCKER/glinrdock/internal/webhookingress"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	config := util.LoadConfig()
	util.SetupLogger(config.LogLevel, config.LogFormat)

	storeInstance, err := store.Open(config.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer storeInstance.Close()

	ctx := context.Background()
	if err := storeInstance.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate store")
	}
	if _, err := storeInstance.EnsureLocalServer(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure local server")
	}

	box, err := crypto.NewSecretBox(config.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize secret box")
	}

	authService := auth.NewAuthService(storeInstance)
	if err := authService.BootstrapAdminToken(ctx, config.AdminToken); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin token")
	}

	var engine dockerx.Engine
	if config.ContainerSocketPath != "" {
		moby, err := dockerx.NewMobyEngine()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to container daemon")
		}
		engine = moby
	} else {
		engine = dockerx.NewMockEngine()
	}

	bus := events.NewBus()
	proxyAdapter := proxy.NewAdapter(config.ProxyAdminURL)
	fleetController := fleet.NewController(engine, proxyAdapter)
	prober := health.NewProber()

	workDir := config.DataDir + "/builds"
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create build work directory")
	}

	orchestrator := deploy.New(storeInstance, box, engine, fleetController, bus, prober, workDir, config.BaseDomain)

	monitor := health.NewMonitor(storeInstance, prober, engine, fleetController, bus)
	monitor.Start(ctx)
	defer monitor.Stop()

	reconciler := reconcile.New(storeInstance, fleetController, engine, proxyAdapter, bus)
	if err := reconciler.Boot(ctx); err != nil {
		log.Error().Err(err).Msg("boot-time reconciliation failed")
	}
	reconciler.Start(ctx)
	defer reconciler.Stop()

	metrics.InitGlobal()

	webhookHandler := webhookingress.New(storeInstance, orchestrator)
	handlers := api.NewHandlers(storeInstance, box, orchestrator, fleetController, proxyAdapter, webhookHandler, metrics.DefaultCollector, bus)

	r := gin.New()
	r.Use(gin.Recovery())
	api.SetupRoutes(r, handlers, config.CORSOrigins, authService)

	srv := &http.Server{
		Addr:    config.HTTPAddr,
		Handler: r,
	}

	log.Info().Str("addr", config.HTTPAddr).Msg("starting ployerd")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
