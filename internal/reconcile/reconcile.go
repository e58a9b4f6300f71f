// Package reconcile is the Reconciler (spec component K). On boot it
// recovers or demotes applications against the containers actually
// running, prunes containers whose owning application no longer exists,
// and rebuilds the proxy's route set from the Domains table. A periodic
// loop repeats the route reconciliation step only, the same
// stage-desired/diff-against-actual/apply-the-delta shape the teacher's
// internal/nginx.Manager used for its own Apply/reconcile cycle, just
// against an HTTP admin API instead of local nginx config files.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/GLINCKER/glinrdock/internal/dockerx"
	"github.com/GLINCKER/glinrdock/internal/events"
	"github.com/GLINCKER/glinrdock/internal/fleet"
	"github.com/GLINCKER/glinrdock/internal/proxy"
	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/rs/zerolog/log"
)

// routeInterval is how often the periodic loop re-derives the desired
// route set and diffs it against the proxy's actual routes (spec.md §4.8:
// "every 60 s").
const routeInterval = 60 * time.Second

// Reconciler owns the boot-time recovery sequence and the periodic route
// convergence loop.
type Reconciler struct {
	store  *store.Store
	fleet  *fleet.Controller
	engine dockerx.Engine
	proxy  *proxy.Adapter
	bus    *events.Bus

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Reconciler. It takes no base domain: auto-subdomains are
// already persisted as primary Domains by the orchestrator, and routes are
// derived purely from the Domains table and each application's current
// deployment.
func New(st *store.Store, fc *fleet.Controller, engine dockerx.Engine, adapter *proxy.Adapter, bus *events.Bus) *Reconciler {
	return &Reconciler{store: st, fleet: fc, engine: engine, proxy: adapter, bus: bus}
}

// Boot runs the one-time startup sequence: recover ownership of
// still-running containers, prune orphaned ones, and install the full
// route set. Call this once before Start.
func (r *Reconciler) Boot(ctx context.Context) error {
	apps, err := r.store.ListApplications(ctx)
	if err != nil {
		return err
	}

	if err := r.recoverContainers(ctx, apps); err != nil {
		return err
	}
	if err := r.pruneOrphans(ctx, apps); err != nil {
		return err
	}
	return r.reconcileRoutes(ctx)
}

// Start launches the periodic route-reconciliation loop. Call Stop to
// terminate it.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(routeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.reconcileRoutes(ctx); err != nil {
					log.Error().Err(err).Msg("periodic route reconciliation failed")
				}
			}
		}
	}()
}

// Stop cancels the periodic loop and waits for it to exit.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// recoverContainers accepts a still-running container as an application's
// current one if its most recent deployment's recorded container is still
// running; otherwise the application is transitioned to stopped and
// published, never auto-redeployed (spec.md §4.8).
func (r *Reconciler) recoverContainers(ctx context.Context, apps []store.Application) error {
	for _, app := range apps {
		if app.Status != store.AppRunning {
			continue
		}

		deployment, err := r.store.CurrentDeployment(ctx, app.ID)
		if err != nil || deployment.Status != store.DeployRunning || deployment.ContainerID == nil {
			r.demote(ctx, app)
			continue
		}

		status, err := r.engine.Inspect(ctx, *deployment.ContainerID)
		if err != nil || status.State != "running" {
			r.demote(ctx, app)
			continue
		}

		r.fleet.SetCurrent(app.ID, *deployment.ContainerID)
		log.Info().Int64("application_id", app.ID).Str("container_id", *deployment.ContainerID).
			Msg("recovered ownership of running container")
	}
	return nil
}

func (r *Reconciler) demote(ctx context.Context, app store.Application) {
	if err := r.store.SetApplicationStatus(ctx, app.ID, store.AppStopped); err != nil {
		log.Error().Err(err).Int64("application_id", app.ID).Msg("failed to demote application to stopped")
		return
	}
	r.bus.Publish(fmt.Sprintf("app:%d", app.ID), store.AppStopped)
	log.Warn().Int64("application_id", app.ID).Msg("expected container missing on boot, application marked stopped")
}

// pruneOrphans removes containers carrying fleet.AppLabel whose referenced
// application no longer exists.
func (r *Reconciler) pruneOrphans(ctx context.Context, apps []store.Application) error {
	live := make(map[string]bool, len(apps))
	for _, app := range apps {
		live[fmt.Sprintf("%d", app.ID)] = true
	}

	containers, err := r.engine.List(ctx, nil)
	if err != nil {
		return err
	}

	for _, c := range containers {
		appID, ok := c.Labels[fleet.AppLabel]
		if !ok || live[appID] {
			continue
		}
		log.Warn().Str("container_id", c.ID).Str("application_id", appID).
			Msg("removing orphaned container, owning application no longer exists")
		if err := r.engine.Stop(ctx, c.ID); err != nil {
			log.Warn().Err(err).Str("container_id", c.ID).Msg("failed to stop orphaned container")
		}
		if err := r.engine.Remove(ctx, c.ID); err != nil {
			log.Warn().Err(err).Str("container_id", c.ID).Msg("failed to remove orphaned container")
		}
	}
	return nil
}

// reconcileRoutes derives the desired route set (every Domain belonging to
// a running application, backed by that application's current host port)
// and diffs it against the proxy's actual routes, adding what's missing
// and removing what's orphaned.
func (r *Reconciler) reconcileRoutes(ctx context.Context) error {
	domains, err := r.store.ListAllDomains(ctx)
	if err != nil {
		return err
	}

	desired := make(map[string]int) // hostname -> host port
	for _, d := range domains {
		app, err := r.store.GetApplication(ctx, d.ApplicationID)
		if err != nil || app.Status != store.AppRunning {
			continue
		}
		deployment, err := r.store.CurrentDeployment(ctx, app.ID)
		if err != nil || deployment.HostPort == nil {
			continue
		}
		desired[d.Hostname] = *deployment.HostPort
	}

	actual, err := r.proxy.ListRoutes(ctx)
	if err != nil {
		return err
	}
	actualByHost := make(map[string]proxy.Route, len(actual))
	for _, route := range actual {
		actualByHost[route.Hostname] = route
	}

	for hostname, port := range desired {
		if route, ok := actualByHost[hostname]; ok && route.BackendPort == port && route.BackendHost == "127.0.0.1" {
			continue
		}
		if err := r.proxy.SetRoute(ctx, hostname, "127.0.0.1", port); err != nil {
			log.Error().Err(err).Str("hostname", hostname).Msg("failed to install route during reconciliation")
		}
	}

	for hostname := range actualByHost {
		if _, ok := desired[hostname]; ok {
			continue
		}
		if err := r.proxy.RemoveRoute(ctx, hostname); err != nil {
			log.Error().Err(err).Str("hostname", hostname).Msg("failed to remove orphaned route during reconciliation")
		}
	}

	return nil
}
