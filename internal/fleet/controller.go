// Package fleet is the Container Fleet Controller (spec component H). It
// owns container lifecycle and rolling replacement on top of the Container
// Runtime Adapter (internal/dockerx), serializing mutating operations per
// application the way the teacher serializes its master-key operations
// with a per-resource mutex (internal/store/store.go's keyMutex).
package fleet

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/GLINCKER/glinrdock/internal/dockerx"
	"github.com/GLINCKER/glinrdock/internal/metrics"
	"github.com/GLINCKER/glinrdock/internal/proxy"
	"github.com/rs/zerolog/log"
)

// AppLabel is the container label carrying the owning application's id,
// the key the reconciler uses to recover ownership of containers still
// running after a process restart.
const AppLabel = "ployer.app_id"

// DeploymentLabel carries the deployment id that produced a container.
const DeploymentLabel = "ployer.deployment_id"

// HealthProbeFunc performs a single liveness check against a freshly
// started container's published host port. The fleet controller is
// agnostic to the probe's own semantics (HTTP, grace period, consecutive
// threshold) — those live in internal/health; the controller only needs
// to know whether the new container passed before switching routes.
type HealthProbeFunc func(ctx context.Context, hostPort int) error

// RollInput describes a new container the Fleet Controller should roll an
// application onto.
type RollInput struct {
	ApplicationID   int64
	ApplicationName string
	DeploymentID    int64
	ImageTag        string
	Env             map[string]string
	ContainerPort   int // 0 means the application publishes nothing
	Hostname        string
}

// RollResult is what roll hands back to the deployment orchestrator.
type RollResult struct {
	ContainerID string
	HostPort    int
}

// Controller serializes roll/rollback/stop/remove per application and
// tracks each application's current container.
type Controller struct {
	engine dockerx.Engine
	proxy  *proxy.Adapter

	locks   sync.Map // int64 appID -> *sync.Mutex
	current sync.Map // int64 appID -> string containerID
	pending sync.Map // int64 appID -> string containerID (roll candidate awaiting promotion)
}

// NewController creates a Controller driving engine and publishing routes
// through adapter.
func NewController(engine dockerx.Engine, adapter *proxy.Adapter) *Controller {
	return &Controller{engine: engine, proxy: adapter}
}

func (c *Controller) lockFor(appID int64) *sync.Mutex {
	mu, _ := c.locks.LoadOrStore(appID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Current returns the container id currently serving app, or "" if none.
func (c *Controller) Current(appID int64) string {
	if v, ok := c.current.Load(appID); ok {
		return v.(string)
	}
	return ""
}

// SetCurrent records containerID as the container currently serving app,
// without creating or starting anything. The reconciler calls this on
// boot after recovering ownership of a still-running container via its
// AppLabel.
func (c *Controller) SetCurrent(appID int64, containerID string) {
	if containerID == "" {
		c.current.Delete(appID)
		return
	}
	c.current.Store(appID, containerID)
}

// Roll creates and starts a new container for in.ImageTag, probes it with
// probe, and on success switches the proxy route to the new container
// before stopping and removing the previous one. On probe failure the new
// container is removed and the previous one is left serving untouched;
// the caller (the deployment orchestrator) observes the returned error and
// marks the deployment failed.
func (c *Controller) Roll(ctx context.Context, in RollInput, probe HealthProbeFunc) (RollResult, error) {
	mu := c.lockFor(in.ApplicationID)
	mu.Lock()
	defer mu.Unlock()

	previous := c.Current(in.ApplicationID)

	hostPort := 0
	var ports []dockerx.PortBinding
	if in.ContainerPort != 0 {
		p, err := allocatePort()
		if err != nil {
			return RollResult{}, apperror.Wrap(apperror.Internal, "failed to allocate host port", err)
		}
		hostPort = p
		ports = []dockerx.PortBinding{{Container: in.ContainerPort, Host: p}}
	}

	name := fmt.Sprintf("%s-%d", in.ApplicationName, in.DeploymentID)
	labels := map[string]string{
		AppLabel:        fmt.Sprintf("%d", in.ApplicationID),
		DeploymentLabel: fmt.Sprintf("%d", in.DeploymentID),
	}

	containerID, err := c.engine.Create(ctx, name, dockerx.ContainerSpec{
		Image: in.ImageTag,
		Env:   in.Env,
		Ports: ports,
	}, labels)
	if err != nil {
		return RollResult{}, apperror.Wrap(apperror.Upstream, "failed to create container", err)
	}
	c.pending.Store(in.ApplicationID, containerID)

	if err := c.engine.Start(ctx, containerID); err != nil {
		c.cleanupFailedCandidate(ctx, in.ApplicationID, containerID)
		return RollResult{}, apperror.Wrap(apperror.Upstream, "failed to start container", err)
	}

	if probe != nil && hostPort != 0 {
		if err := probe(ctx, hostPort); err != nil {
			log.Warn().Int64("application_id", in.ApplicationID).Str("container_id", containerID).
				Err(err).Msg("new container failed health gate, rolling back")
			c.cleanupFailedCandidate(ctx, in.ApplicationID, containerID)
			return RollResult{}, apperror.Wrap(apperror.Upstream, "health gate failed", err)
		}
	}

	if c.proxy != nil && in.Hostname != "" && hostPort != 0 {
		if err := c.proxy.SetRoute(ctx, in.Hostname, "127.0.0.1", hostPort); err != nil {
			log.Error().Err(err).Str("hostname", in.Hostname).Msg("failed to publish route for new container")
		}
	}

	if previous != "" && previous != containerID {
		if err := c.engine.Stop(ctx, previous); err != nil {
			log.Warn().Str("container_id", previous).Err(err).Msg("failed to stop previous container")
		}
		if err := c.engine.Remove(ctx, previous); err != nil {
			log.Warn().Str("container_id", previous).Err(err).Msg("failed to remove previous container")
		}
	}

	c.pending.Delete(in.ApplicationID)
	c.current.Store(in.ApplicationID, containerID)

	return RollResult{ContainerID: containerID, HostPort: hostPort}, nil
}

// cleanupFailedCandidate removes a roll candidate that failed to start or
// pass its health gate, leaving the previously-serving container (if any)
// untouched.
func (c *Controller) cleanupFailedCandidate(ctx context.Context, appID int64, containerID string) {
	if err := c.engine.Remove(ctx, containerID); err != nil {
		log.Warn().Str("container_id", containerID).Err(err).Msg("failed to remove rolled-back container")
	}
	c.pending.Delete(appID)
}

// Rollback discards app's pending roll candidate, if any, leaving the
// previously-serving container in place. It is a no-op if no roll is in
// flight for app.
func (c *Controller) Rollback(ctx context.Context, appID int64) error {
	mu := c.lockFor(appID)
	mu.Lock()
	defer mu.Unlock()

	v, ok := c.pending.Load(appID)
	if !ok {
		return nil
	}
	containerID := v.(string)
	c.cleanupFailedCandidate(ctx, appID, containerID)
	return nil
}

// Stop stops app's current container without removing it.
func (c *Controller) Stop(ctx context.Context, appID int64) error {
	mu := c.lockFor(appID)
	mu.Lock()
	defer mu.Unlock()

	containerID := c.Current(appID)
	if containerID == "" {
		return apperror.New(apperror.NotFound, "no current container for application")
	}
	if err := c.engine.Stop(ctx, containerID); err != nil {
		return apperror.Wrap(apperror.Upstream, "failed to stop container", err)
	}
	return nil
}

// Remove stops and removes app's current container and forgets it.
func (c *Controller) Remove(ctx context.Context, appID int64) error {
	mu := c.lockFor(appID)
	mu.Lock()
	defer mu.Unlock()

	containerID := c.Current(appID)
	if containerID == "" {
		return nil
	}
	_ = c.engine.Stop(ctx, containerID)
	if err := c.engine.Remove(ctx, containerID); err != nil {
		return apperror.Wrap(apperror.Upstream, "failed to remove container", err)
	}
	c.current.Delete(appID)
	return nil
}

// Restart restarts app's current container in place, used by the health
// monitor when an application transitions to unhealthy (spec §4.7). Unlike
// Roll, this does not allocate a new port or switch routes — the container
// keeps its identity and published port, it is simply bounced.
func (c *Controller) Restart(ctx context.Context, appID int64) error {
	mu := c.lockFor(appID)
	mu.Lock()
	defer mu.Unlock()

	containerID := c.Current(appID)
	if containerID == "" {
		return apperror.New(apperror.NotFound, "no current container for application")
	}
	if err := c.engine.Restart(ctx, containerID); err != nil {
		return apperror.Wrap(apperror.Upstream, "failed to restart container", err)
	}
	metrics.RecordRestart(fmt.Sprintf("%d", appID))
	log.Info().Int64("application_id", appID).Str("container_id", containerID).Msg("container restarted after unhealthy transition")
	return nil
}

// allocatePort asks the OS for an ephemeral free port by briefly binding
// to :0. There is a small window between release and the container daemon
// binding the same port; acceptable for a single-node deployment target.
func allocatePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
