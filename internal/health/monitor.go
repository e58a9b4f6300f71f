package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GLINCKER/glinrdock/internal/dockerx"
	"github.com/GLINCKER/glinrdock/internal/events"
	"github.com/GLINCKER/glinrdock/internal/fleet"
	"github.com/GLINCKER/glinrdock/internal/metrics"
	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/rs/zerolog/log"
)

// statsSampleInterval is how often running containers are sampled for
// resource usage (spec.md §4.7).
const statsSampleInterval = 60 * time.Second

// pruneInterval is how often expired ContainerStats rows are swept.
const pruneInterval = 1 * time.Hour

// Monitor drives the Health & Stats Monitor (spec component I): it probes
// every running application on its own configured interval, tracks
// consecutive success/failure streaks against the configured thresholds,
// restarts the application's container through the Fleet Controller on a
// sustained-unhealthy transition, and separately samples container resource
// stats with a 24h retention sweep.
type Monitor struct {
	store  *store.Store
	prober *Prober
	engine dockerx.Engine
	fleet  *fleet.Controller
	bus    *events.Bus

	mu         sync.Mutex
	streaks    map[int64]*streak
	lastTick   map[int64]time.Time
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

type streak struct {
	consecutiveSuccess int
	consecutiveFail    int
	healthy            bool
}

// NewMonitor creates a Monitor. engine and fc are used to sample stats and
// restart unhealthy applications respectively; bus carries app:{id} status
// events onward to websocket subscribers.
func NewMonitor(st *store.Store, prober *Prober, engine dockerx.Engine, fc *fleet.Controller, bus *events.Bus) *Monitor {
	return &Monitor{
		store:    st,
		prober:   prober,
		engine:   engine,
		fleet:    fc,
		bus:      bus,
		streaks:  make(map[int64]*streak),
		lastTick: make(map[int64]time.Time),
	}
}

// Start launches the probe loop, the stats sampling loop, and the stats
// retention sweep as background goroutines, returning immediately.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(3)
	go m.probeLoop(ctx)
	go m.statsLoop(ctx)
	go m.pruneLoop(ctx)

	log.Info().Msg("health monitor started")
}

// Stop cancels all background loops and waits for them to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	log.Info().Msg("health monitor stopped")
}

// probeLoop ticks once a second, and for each running application probes it
// once its own configured interval has elapsed since its last check — a
// single coarse ticker driving many independently-timed per-app checks,
// rather than one goroutine per application.
func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	apps, err := m.store.ListApplications(ctx)
	if err != nil {
		log.Error().Err(err).Msg("health monitor: failed to list applications")
		return
	}

	for _, app := range apps {
		if app.Status != store.AppRunning {
			continue
		}

		hc, err := m.store.GetHealthCheck(ctx, app.ID)
		if err != nil {
			continue
		}

		m.mu.Lock()
		due := time.Since(m.lastTick[app.ID]) >= time.Duration(hc.IntervalSeconds)*time.Second
		m.mu.Unlock()
		if !due {
			continue
		}

		m.mu.Lock()
		m.lastTick[app.ID] = time.Now()
		m.mu.Unlock()

		go m.probeOne(ctx, app, hc)
	}
}

func (m *Monitor) probeOne(ctx context.Context, app store.Application, hc store.HealthCheck) {
	containerID := m.fleet.Current(app.ID)
	if containerID == "" {
		return
	}

	hostPort := 0
	if dep, err := m.store.CurrentDeployment(ctx, app.ID); err == nil && dep.HostPort != nil {
		hostPort = *dep.HostPort
	}
	if hostPort == 0 {
		return
	}

	result := m.prober.Probe(ctx, hostPort, hc)

	var statusCode *int
	var errMsg *string
	if result.StatusCode != 0 {
		statusCode = &result.StatusCode
	}
	if result.Err != nil {
		msg := result.Err.Error()
		errMsg = &msg
	}

	if err := m.store.RecordHealthCheckResult(ctx, store.HealthCheckResult{
		ApplicationID:  app.ID,
		ContainerID:    containerID,
		Status:         result.Status,
		ResponseTimeMs: result.ResponseTimeMs,
		StatusCode:     statusCode,
		ErrorMessage:   errMsg,
		CheckedAt:      time.Now(),
	}); err != nil {
		log.Warn().Err(err).Int64("application_id", app.ID).Msg("failed to record health check result")
	}

	m.evaluateTransition(ctx, app, hc, result)
}

// evaluateTransition updates the consecutive success/fail streak for app
// and, on crossing the configured threshold, flips its health state and —
// on a transition into unhealthy — restarts its container (spec.md §4.7).
func (m *Monitor) evaluateTransition(ctx context.Context, app store.Application, hc store.HealthCheck, result ProbeResult) {
	m.mu.Lock()
	st, ok := m.streaks[app.ID]
	if !ok {
		st = &streak{healthy: true}
		m.streaks[app.ID] = st
	}

	if result.Status == store.HealthHealthy {
		st.consecutiveSuccess++
		st.consecutiveFail = 0
	} else {
		st.consecutiveFail++
		st.consecutiveSuccess = 0
	}

	becameUnhealthy := st.healthy && st.consecutiveFail >= hc.UnhealthyThreshold
	becameHealthy := !st.healthy && st.consecutiveSuccess >= hc.HealthyThreshold
	if becameUnhealthy {
		st.healthy = false
	}
	if becameHealthy {
		st.healthy = true
	}
	m.mu.Unlock()

	if becameUnhealthy {
		log.Warn().Int64("application_id", app.ID).Int("fail_streak", hc.UnhealthyThreshold).
			Msg("application transitioned to unhealthy, restarting container")
		if m.bus != nil {
			m.bus.Publish(fmt.Sprintf("app:%d", app.ID), "unhealthy")
		}
		if err := m.fleet.Restart(ctx, app.ID); err != nil {
			log.Error().Err(err).Int64("application_id", app.ID).Msg("failed to restart unhealthy application")
		}
		return
	}
	if becameHealthy && m.bus != nil {
		m.bus.Publish(fmt.Sprintf("app:%d", app.ID), "healthy")
	}
}

// statsLoop samples every running application's current container once per
// statsSampleInterval.
func (m *Monitor) statsLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(statsSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleAll(ctx)
		}
	}
}

func (m *Monitor) sampleAll(ctx context.Context) {
	apps, err := m.store.ListApplications(ctx)
	if err != nil {
		return
	}

	running := 0
	for _, app := range apps {
		if app.Status != store.AppRunning {
			continue
		}
		containerID := m.fleet.Current(app.ID)
		if containerID == "" {
			continue
		}
		running++
		m.sampleOne(ctx, app.ID, containerID)
	}
	metrics.SetRunningContainers(running)
}

func (m *Monitor) sampleOne(ctx context.Context, appID int64, containerID string) {
	// Engine.Stats may stream until its context ends; only the first sample
	// is recorded, and the deferred cancel stops the stream.
	sampleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	statsCh, errCh := m.engine.Stats(sampleCtx, containerID)
	if stat, ok := <-statsCh; ok {
		if err := m.store.RecordContainerStats(ctx, store.ContainerStats{
			ContainerID:   containerID,
			ApplicationID: &appID,
			CPUPercent:    stat.CPUPercent,
			MemoryMB:      float64(stat.MemoryUsage) / (1024 * 1024),
			MemoryLimitMB: float64(stat.MemoryLimit) / (1024 * 1024),
			NetworkRxMB:   float64(stat.NetworkRx) / (1024 * 1024),
			NetworkTxMB:   float64(stat.NetworkTx) / (1024 * 1024),
			RecordedAt:    time.Now(),
		}); err != nil {
			log.Warn().Err(err).Int64("application_id", appID).Msg("failed to record container stats")
		}
		return
	}
	if err := <-errCh; err != nil {
		log.Debug().Err(err).Int64("application_id", appID).Msg("failed to sample container stats")
	}
}

// pruneLoop sweeps ContainerStats rows older than store.StatsRetention.
func (m *Monitor) pruneLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-store.StatsRetention).Unix()
			if n, err := m.store.PruneContainerStats(ctx, cutoff); err != nil {
				log.Warn().Err(err).Msg("failed to prune container stats")
			} else if n > 0 {
				log.Debug().Int64("rows", n).Msg("pruned expired container stats")
			}
		}
	}
}
