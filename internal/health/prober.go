// Package health is the Health & Stats Monitor (spec component I): it
// periodically probes each running application's configured HTTP health
// endpoint, tracks consecutive success/failure streaks, drives a restart
// through the Fleet Controller on sustained failure, and samples container
// resource stats into the store.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/GLINCKER/glinrdock/internal/store"
)

// Prober issues HTTP health checks against a container's published host
// port. The teacher's TCP/Postgres/MySQL/Redis probe kinds are dropped —
// spec's HealthCheck entity describes a single HTTP probe, so those are
// dead code against this schema rather than unexercised generality.
type Prober struct {
	client *http.Client
}

// NewProber creates a Prober with a dedicated client carrying short,
// explicit timeouts so a slow application never ties up connections any
// other subsystem needs.
func NewProber() *Prober {
	return &Prober{
		client: &http.Client{
			Transport: &http.Transport{
				DisableKeepAlives:     true,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
	}
}

// ProbeResult is the outcome of a single liveness check.
type ProbeResult struct {
	Status         string
	ResponseTimeMs int
	StatusCode     int
	Err            error
}

// Probe issues one HTTP GET to the container's published host port at hc's
// configured path, bounded by hc's configured timeout.
func (p *Prober) Probe(ctx context.Context, hostPort int, hc store.HealthCheck) ProbeResult {
	timeout := time.Duration(hc.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d%s", hostPort, hc.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{Status: store.HealthUnhealthy, Err: err}
	}
	req.Header.Set("User-Agent", "ployer-healthcheck/1.0")

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return ProbeResult{Status: store.HealthUnhealthy, ResponseTimeMs: int(elapsed.Milliseconds()), Err: err}
	}
	defer resp.Body.Close()

	status := store.HealthUnhealthy
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		status = store.HealthHealthy
	}

	return ProbeResult{
		Status:         status,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		StatusCode:     resp.StatusCode,
	}
}

// ProbeHostPort runs Probe once and reduces it to a pass/fail error, the
// shape the Fleet Controller's deploy-time health gate needs — a single
// signal, not a persisted result row.
func (p *Prober) ProbeHostPort(ctx context.Context, hostPort int, hc store.HealthCheck) error {
	r := p.Probe(ctx, hostPort, hc)
	if r.Status != store.HealthHealthy {
		if r.Err != nil {
			return r.Err
		}
		return fmt.Errorf("health probe returned status %d", r.StatusCode)
	}
	return nil
}
