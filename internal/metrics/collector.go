package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

var (
	DefaultCollector *Collector
	once             sync.Once
)

// Collector exposes the Prometheus gauges/counters/histograms for the
// Ployer supplemented-feature metrics endpoint (SPEC_FULL.md's ambient
// stack section).
type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	uptimeSeconds      prometheus.Gauge
	runningContainers  prometheus.Gauge
	activeDeployments  prometheus.Gauge
	hostCPUPercent     prometheus.Gauge
	hostMemoryPercent  prometheus.Gauge

	buildsTotal      *prometheus.CounterVec
	deploymentsTotal *prometheus.CounterVec
	restartsTotal    *prometheus.CounterVec

	buildDuration  prometheus.Histogram
	deployDuration prometheus.Histogram
}

// NewCollector builds and registers every metric on a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	startTime := time.Now()

	uptimeSeconds := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ployer_uptime_seconds",
		Help: "Number of seconds since the ployerd process started",
	})

	runningContainers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ployer_running_containers",
		Help: "Number of application containers currently running",
	})

	activeDeployments := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ployer_active_deployments",
		Help: "Number of deployments currently in a non-terminal state",
	})

	hostCPUPercent := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ployer_host_cpu_percent",
		Help: "Host CPU utilization percent, sampled from the machine running ployerd",
	})

	hostMemoryPercent := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ployer_host_memory_used_percent",
		Help: "Host memory utilization percent, sampled from the machine running ployerd",
	})

	buildsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ployer_builds_total",
		Help: "Total number of image builds by outcome",
	}, []string{"status"})

	deploymentsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ployer_deployments_total",
		Help: "Total number of deployment pipeline runs by outcome",
	}, []string{"status"})

	restartsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ployer_restarts_total",
		Help: "Total number of container restarts triggered by the health monitor",
	}, []string{"application_id"})

	buildDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ployer_build_duration_seconds",
		Help:    "Duration of image builds in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	deployDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ployer_deploy_duration_seconds",
		Help:    "Duration of full deployment pipeline runs in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	registry.MustRegister(
		uptimeSeconds,
		runningContainers,
		activeDeployments,
		hostCPUPercent,
		hostMemoryPercent,
		buildsTotal,
		deploymentsTotal,
		restartsTotal,
		buildDuration,
		deployDuration,
	)

	collector := &Collector{
		registry:          registry,
		startTime:         startTime,
		uptimeSeconds:     uptimeSeconds,
		runningContainers: runningContainers,
		activeDeployments: activeDeployments,
		hostCPUPercent:    hostCPUPercent,
		hostMemoryPercent: hostMemoryPercent,
		buildsTotal:       buildsTotal,
		deploymentsTotal:  deploymentsTotal,
		restartsTotal:     restartsTotal,
		buildDuration:     buildDuration,
		deployDuration:    deployDuration,
	}

	go collector.updateUptime()
	go collector.sampleHostStats()

	return collector
}

// InitGlobal initializes DefaultCollector exactly once.
func InitGlobal() {
	once.Do(func() {
		DefaultCollector = NewCollector()
	})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) updateUptime() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		c.uptimeSeconds.Set(time.Since(c.startTime).Seconds())
	}
}

// sampleHostStats periodically samples host-level CPU and memory
// utilization via gopsutil, distinct from per-container stats (those come
// from the container daemon's own stats API per spec §4.7) — this gauges
// the health of the machine ployerd itself runs on.
func (c *Collector) sampleHostStats() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
			c.hostCPUPercent.Set(pct[0])
		} else if err != nil {
			log.Debug().Err(err).Msg("failed to sample host cpu percent")
		}

		if vm, err := mem.VirtualMemory(); err == nil {
			c.hostMemoryPercent.Set(vm.UsedPercent)
		} else {
			log.Debug().Err(err).Msg("failed to sample host memory percent")
		}
	}
}

func (c *Collector) SetRunningContainers(count int) {
	c.runningContainers.Set(float64(count))
}

func (c *Collector) SetActiveDeployments(count int) {
	c.activeDeployments.Set(float64(count))
}

func (c *Collector) RecordBuild(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	c.buildsTotal.WithLabelValues(status).Inc()
	c.buildDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordDeployment(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	c.deploymentsTotal.WithLabelValues(status).Inc()
	c.deployDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordRestart(applicationID string) {
	c.restartsTotal.WithLabelValues(applicationID).Inc()
}

// Global convenience functions, mirroring the teacher's package-level
// wrappers around DefaultCollector.

func SetRunningContainers(count int) {
	if DefaultCollector != nil {
		DefaultCollector.SetRunningContainers(count)
	}
}

func SetActiveDeployments(count int) {
	if DefaultCollector != nil {
		DefaultCollector.SetActiveDeployments(count)
	}
}

func RecordBuild(success bool, duration time.Duration) {
	if DefaultCollector != nil {
		DefaultCollector.RecordBuild(success, duration)
	}
}

func RecordDeployment(success bool, duration time.Duration) {
	if DefaultCollector != nil {
		DefaultCollector.RecordDeployment(success, duration)
	}
}

func RecordRestart(applicationID string) {
	if DefaultCollector != nil {
		DefaultCollector.RecordRestart(applicationID)
	}
}
