// Package deploy is the Deployment Orchestrator (spec component G): the
// pipeline state machine that drives an application from queued through
// clone, build, and deploy to running. It generalizes the teacher's
// internal/jobs.Queue (a fixed worker pool draining one shared channel)
// into a per-application FIFO: each application gets its own lazily
// created worker goroutine, giving "at most one active deployment per
// application" as a structural property rather than a lock developers must
// remember to take.
package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/GLINCKER/glinrdock/internal/crypto"
	"github.com/GLINCKER/glinrdock/internal/dockerx"
	"github.com/GLINCKER/glinrdock/internal/events"
	"github.com/GLINCKER/glinrdock/internal/fleet"
	"github.com/GLINCKER/glinrdock/internal/gitx"
	"github.com/GLINCKER/glinrdock/internal/health"
	"github.com/GLINCKER/glinrdock/internal/metrics"
	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	cloneTimeout   = 5 * time.Minute
	buildTimeout   = 30 * time.Minute
	containerGrace = 5 * time.Second

	queueDrainIdle = 30 * time.Second
)

// Orchestrator owns the deployment pipeline for every application, one
// per-application FIFO worker at a time.
type Orchestrator struct {
	store      *store.Store
	box        *crypto.SecretBox
	engine     dockerx.Engine
	fleet      *fleet.Controller
	bus        *events.Bus
	prober     *health.Prober
	workDir    string
	baseDomain string

	mu     sync.Mutex
	queues map[int64]chan int64
}

// New creates an Orchestrator. workDir is the root directory under which
// per-deployment clone/build working directories are created and removed.
func New(st *store.Store, box *crypto.SecretBox, engine dockerx.Engine, fc *fleet.Controller, bus *events.Bus, prober *health.Prober, workDir, baseDomain string) *Orchestrator {
	return &Orchestrator{
		store:      st,
		box:        box,
		engine:     engine,
		fleet:      fc,
		bus:        bus,
		prober:     prober,
		workDir:    workDir,
		baseDomain: baseDomain,
		queues:     make(map[int64]chan int64),
	}
}

// Enqueue queues a new deployment for app, returning the created record in
// status "queued". CreateDeployment rejects the call with
// apperror.Conflict if the application already has a non-terminal
// deployment; the caller (the API layer, or webhook ingress) surfaces that
// as-is — it is not this package's job to coalesce trigger sources.
func (o *Orchestrator) Enqueue(ctx context.Context, appID int64, trigger string) (store.Deployment, error) {
	dep, err := o.store.CreateDeployment(ctx, store.CreateDeploymentInput{
		ApplicationID: appID,
		Trigger:       trigger,
	})
	if err != nil {
		return store.Deployment{}, err
	}

	o.dispatch(appID, dep.ID)
	return dep, nil
}

// Cancel requests cooperative cancellation of a deployment still in one of
// the four non-terminal pre-running states. The pipeline observes the flag
// between stages and between build log lines. A deployment that is already
// terminal (including "running") is refused with apperror.Conflict.
func (o *Orchestrator) Cancel(ctx context.Context, deploymentID int64) error {
	dep, err := o.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return err
	}
	if store.IsTerminalDeploymentStatus(dep.Status) {
		return apperror.New(apperror.Conflict, "deployment has already finished")
	}
	return o.store.RequestDeploymentCancellation(ctx, deploymentID)
}

func (o *Orchestrator) dispatch(appID, deploymentID int64) {
	o.mu.Lock()
	ch, ok := o.queues[appID]
	if !ok {
		ch = make(chan int64, 64)
		o.queues[appID] = ch
		go o.worker(appID, ch)
	}
	o.mu.Unlock()

	ch <- deploymentID
}

// worker drains appID's queue until it sits empty for queueDrainIdle, then
// tears itself down; dispatch recreates it lazily on the next Enqueue.
func (o *Orchestrator) worker(appID int64, ch chan int64) {
	idle := time.NewTimer(queueDrainIdle)
	defer idle.Stop()

	for {
		select {
		case deploymentID := <-ch:
			idle.Stop()
			o.run(context.Background(), appID, deploymentID)
			idle.Reset(queueDrainIdle)
		case <-idle.C:
			o.mu.Lock()
			if len(ch) == 0 {
				delete(o.queues, appID)
				o.mu.Unlock()
				return
			}
			o.mu.Unlock()
			idle.Reset(queueDrainIdle)
		}
	}
}

// run advances one deployment through the full pipeline. Any error at any
// stage short-circuits to "failed"; cancellation requests are polled
// between stages.
func (o *Orchestrator) run(ctx context.Context, appID, deploymentID int64) {
	topic := fmt.Sprintf("deployment:%d", deploymentID)

	app, err := o.store.GetApplication(ctx, appID)
	if err != nil {
		log.Error().Err(err).Int64("application_id", appID).Msg("failed to load application for deployment")
		return
	}

	_ = o.store.MarkDeploymentStarted(ctx, deploymentID)
	started := time.Now()

	workDir := filepath.Join(o.workDir, fmt.Sprintf("deployment-%d", deploymentID))
	defer os.RemoveAll(workDir)

	if o.cancelled(ctx, deploymentID, topic) {
		metrics.RecordDeployment(false, time.Since(started))
		return
	}

	if !o.stageClone(ctx, &app, deploymentID, workDir, topic) {
		metrics.RecordDeployment(false, time.Since(started))
		return
	}
	if o.cancelled(ctx, deploymentID, topic) {
		metrics.RecordDeployment(false, time.Since(started))
		return
	}

	imageTag := fmt.Sprintf("ployer-%s:%d", app.Name, deploymentID)
	if !o.stageBuild(ctx, &app, deploymentID, workDir, imageTag, topic) {
		metrics.RecordDeployment(false, time.Since(started))
		return
	}
	if o.cancelled(ctx, deploymentID, topic) {
		metrics.RecordDeployment(false, time.Since(started))
		return
	}

	if !o.stageDeploy(ctx, &app, deploymentID, imageTag, topic) {
		metrics.RecordDeployment(false, time.Since(started))
		return
	}
	metrics.RecordDeployment(true, time.Since(started))
}

func (o *Orchestrator) cancelled(ctx context.Context, deploymentID int64, topic string) bool {
	flag, err := o.store.IsCancellationRequested(ctx, deploymentID)
	if err != nil || !flag {
		return false
	}
	o.fail(ctx, deploymentID, topic, store.DeployCancelled, nil)
	return true
}

func (o *Orchestrator) fail(ctx context.Context, deploymentID int64, topic, status string, cause error) {
	if cause != nil {
		log.Error().Err(cause).Int64("deployment_id", deploymentID).Msg("deployment pipeline step failed")
	}
	if err := o.store.SetDeploymentStatus(ctx, deploymentID, status); err != nil {
		log.Error().Err(err).Int64("deployment_id", deploymentID).Msg("failed to record deployment status")
	}
	o.bus.Publish(topic, status)
}

func (o *Orchestrator) stageClone(ctx context.Context, app *store.Application, deploymentID int64, workDir, topic string) bool {
	if err := o.store.SetDeploymentStatus(ctx, deploymentID, store.DeployCloning); err != nil {
		log.Error().Err(err).Msg("failed to set deployment status")
	}
	o.bus.Publish(topic, store.DeployCloning)

	if app.GitURL == nil {
		o.fail(ctx, deploymentID, topic, store.DeployFailed, fmt.Errorf("application has no git_url configured"))
		return false
	}
	branch := "main"
	if app.GitBranch != nil && *app.GitBranch != "" {
		branch = *app.GitBranch
	}

	var privateKeyPEM string
	if dk, err := o.store.OpenDeployKeyPrivate(ctx, o.box, app.ID); err == nil {
		privateKeyPEM = dk
	} else if apperror.KindOf(err) != apperror.NotFound {
		o.fail(ctx, deploymentID, topic, store.DeployFailed, err)
		return false
	}

	cloneCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	commit, err := gitx.Clone(cloneCtx, *app.GitURL, branch, privateKeyPEM, workDir)
	if err != nil {
		o.fail(ctx, deploymentID, topic, store.DeployFailed, err)
		return false
	}

	if err := o.store.SetDeploymentCommit(ctx, deploymentID, commit.SHA, commit.Message); err != nil {
		log.Error().Err(err).Msg("failed to record resolved commit")
	}
	o.bus.Publish(topic, fmt.Sprintf("cloned %s", commit.SHA))
	return true
}

func (o *Orchestrator) stageBuild(ctx context.Context, app *store.Application, deploymentID int64, workDir, imageTag, topic string) bool {
	if err := o.store.SetDeploymentStatus(ctx, deploymentID, store.DeployBuilding); err != nil {
		log.Error().Err(err).Msg("failed to set deployment status")
	}
	o.bus.Publish(topic, store.DeployBuilding)

	buildCtx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	appendLine := func(line string) {
		_ = o.store.AppendBuildLog(ctx, deploymentID, line)
		o.bus.Publish(topic, line)
		// A cancel request stops the running build through buildCtx.
		if requested, err := o.store.IsCancellationRequested(ctx, deploymentID); err == nil && requested {
			cancel()
		}
	}

	buildStarted := time.Now()
	var buildErr error
	switch app.BuildStrategy {
	case store.BuildNixpacks:
		buildErr = buildWithNixpacks(buildCtx, workDir, imageTag, appendLine)
	case store.BuildDockerCompose:
		buildErr = o.buildCompose(buildCtx, app, workDir, imageTag, appendLine)
	default:
		buildErr = o.buildDockerfile(buildCtx, app, workDir, imageTag, appendLine)
	}
	metrics.RecordBuild(buildErr == nil, time.Since(buildStarted))

	if buildErr != nil {
		if o.cancelled(ctx, deploymentID, topic) {
			return false
		}
		o.fail(ctx, deploymentID, topic, store.DeployFailed, buildErr)
		return false
	}
	return true
}

func (o *Orchestrator) buildDockerfile(ctx context.Context, app *store.Application, workDir, imageTag string, appendLine func(string)) error {
	dockerfilePath := "Dockerfile"
	if app.DockerfilePath != nil && *app.DockerfilePath != "" {
		dockerfilePath = *app.DockerfilePath
	}

	tarball, err := tarDirectory(workDir)
	if err != nil {
		return apperror.Wrap(apperror.Internal, "failed to package build context", err)
	}

	return o.runEngineBuild(ctx, dockerx.BuildSpec{Context: tarball, Dockerfile: dockerfilePath, Tag: imageTag}, appendLine)
}

func (o *Orchestrator) buildCompose(ctx context.Context, app *store.Application, workDir, imageTag string, appendLine func(string)) error {
	target, err := resolveComposeBuildTarget(workDir)
	if err != nil {
		return apperror.Wrap(apperror.Validation, "failed to resolve docker-compose build target", err)
	}
	appendLine(fmt.Sprintf("building compose service %q\n", target.ServiceName))

	tarball, err := tarDirectory(target.Context)
	if err != nil {
		return apperror.Wrap(apperror.Internal, "failed to package build context", err)
	}

	return o.runEngineBuild(ctx, dockerx.BuildSpec{Context: tarball, Dockerfile: target.Dockerfile, Tag: imageTag}, appendLine)
}

func (o *Orchestrator) runEngineBuild(ctx context.Context, spec dockerx.BuildSpec, appendLine func(string)) error {
	logCh, errCh := o.engine.Build(ctx, spec)
	for line := range logCh {
		appendLine(line.Text)
	}
	if err := <-errCh; err != nil {
		return apperror.Wrap(apperror.Upstream, "image build failed", err)
	}
	return nil
}

func (o *Orchestrator) stageDeploy(ctx context.Context, app *store.Application, deploymentID int64, imageTag, topic string) bool {
	if err := o.store.SetDeploymentStatus(ctx, deploymentID, store.DeployDeploying); err != nil {
		log.Error().Err(err).Msg("failed to set deployment status")
	}
	o.bus.Publish(topic, store.DeployDeploying)

	env, err := o.store.OpenEnvironmentVariables(ctx, o.box, app.ID)
	if err != nil {
		o.fail(ctx, deploymentID, topic, store.DeployFailed, err)
		return false
	}

	hostname, err := o.ensurePrimaryDomain(ctx, app)
	if err != nil {
		o.fail(ctx, deploymentID, topic, store.DeployFailed, err)
		return false
	}

	containerPort := 0
	if app.Port != nil {
		containerPort = *app.Port
	}

	probe := o.healthProbe(app)

	result, err := o.fleet.Roll(ctx, fleet.RollInput{
		ApplicationID:   app.ID,
		ApplicationName: app.Name,
		DeploymentID:    deploymentID,
		ImageTag:        imageTag,
		Env:             env,
		ContainerPort:   containerPort,
		Hostname:        hostname,
	}, probe)
	if err != nil {
		o.fail(ctx, deploymentID, topic, store.DeployFailed, err)
		return false
	}

	if err := o.store.SetDeploymentContainer(ctx, deploymentID, result.ContainerID, result.HostPort); err != nil {
		log.Error().Err(err).Msg("failed to record rolled container")
	}
	if err := o.store.SetDeploymentStatus(ctx, deploymentID, store.DeployRunning); err != nil {
		log.Error().Err(err).Msg("failed to set deployment status")
	}
	if err := o.store.SetApplicationStatus(ctx, app.ID, store.AppRunning); err != nil {
		log.Error().Err(err).Msg("failed to set application status")
	}
	o.bus.Publish(topic, store.DeployRunning)
	o.bus.Publish(fmt.Sprintf("app:%d", app.ID), "running")
	return true
}

// ensurePrimaryDomain creates the app's auto-subdomain if it has no domain
// configured yet, and returns the hostname that should carry its route.
func (o *Orchestrator) ensurePrimaryDomain(ctx context.Context, app *store.Application) (string, error) {
	domains, err := o.store.ListDomains(ctx, app.ID)
	if err != nil {
		return "", err
	}
	for _, d := range domains {
		if d.IsPrimary {
			return d.Hostname, nil
		}
	}
	if len(domains) > 0 {
		return domains[0].Hostname, nil
	}

	hostname := fmt.Sprintf("%s.%s", app.Name, o.baseDomain)
	d, err := o.store.AddDomain(ctx, app.ID, hostname, true)
	if err != nil {
		return "", err
	}
	return d.Hostname, nil
}

func (o *Orchestrator) healthProbe(app *store.Application) fleet.HealthProbeFunc {
	if o.prober == nil {
		return nil
	}
	hc, err := o.store.GetHealthCheck(context.Background(), app.ID)
	if err != nil {
		log.Warn().Err(err).Int64("application_id", app.ID).Msg("failed to load health check config, using default")
		hc = store.DefaultHealthCheck(app.ID)
	}
	return func(ctx context.Context, hostPort int) error {
		time.Sleep(containerGrace)
		return o.prober.ProbeHostPort(ctx, hostPort, hc)
	}
}
