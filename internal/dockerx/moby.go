package dockerx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// MobyEngine implements Engine against a real Docker daemon via the Moby
// client SDK.
type MobyEngine struct {
	client *client.Client
}

// NewMobyEngine creates a Docker engine using the local daemon socket
// (respecting DOCKER_HOST and friends via client.FromEnv, same as the
// teacher).
func NewMobyEngine() (*MobyEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &MobyEngine{client: cli}, nil
}

// Build streams a docker build of spec.Context, tagging the result
// spec.Tag. Build log lines mirror the image build JSON stream so the
// orchestrator can forward them into a deployment's build log as they
// arrive rather than buffering the whole build.
func (e *MobyEngine) Build(ctx context.Context, spec BuildSpec) (<-chan BuildLogLine, <-chan error) {
	logCh := make(chan BuildLogLine, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(logCh)
		defer close(errCh)

		resp, err := e.client.ImageBuild(ctx, spec.Context, types.ImageBuildOptions{
			Dockerfile: spec.Dockerfile,
			Tags:       []string{spec.Tag},
			Remove:     true,
		})
		if err != nil {
			errCh <- fmt.Errorf("failed to build image %s: %w", spec.Tag, err)
			return
		}
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			var msg struct {
				Stream string `json:"stream"`
				Error  string `json:"error"`
			}
			if decErr := decoder.Decode(&msg); decErr != nil {
				if decErr == io.EOF {
					return
				}
				errCh <- fmt.Errorf("failed to decode build output: %w", decErr)
				return
			}

			if msg.Error != "" {
				errCh <- fmt.Errorf("build error: %s", msg.Error)
				return
			}

			if msg.Stream == "" {
				continue
			}

			select {
			case logCh <- BuildLogLine{Text: msg.Stream}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return logCh, errCh
}

// Pull pulls a Docker image anonymously. Private registry authentication is
// not wired: applications are built from source (Dockerfile, Nixpacks or
// Compose) rather than deployed from pre-built private images.
func (e *MobyEngine) Pull(ctx context.Context, imageName string) error {
	reader, err := e.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to read pull response for %s: %w", imageName, err)
	}
	return nil
}

// Create creates a container from spec, publishing each port binding on
// 0.0.0.0.
func (e *MobyEngine) Create(ctx context.Context, name string, spec ContainerSpec, labels map[string]string) (string, error) {
	env := make([]string, 0, len(spec.Env))
	for key, value := range spec.Env {
		env = append(env, key+"="+value)
	}

	exposedPorts := make(nat.PortSet)
	portBindings := make(nat.PortMap)
	for _, port := range spec.Ports {
		containerPort := nat.Port(strconv.Itoa(port.Container) + "/tcp")
		exposedPorts[containerPort] = struct{}{}
		portBindings[containerPort] = []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: strconv.Itoa(port.Host)},
		}
	}

	config := &container.Config{
		Image:        spec.Image,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels:       labels,
	}
	hostConfig := &container.HostConfig{PortBindings: portBindings}

	resp, err := e.client.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", name, err)
	}
	return resp.ID, nil
}

func (e *MobyEngine) Remove(ctx context.Context, id string) error {
	if err := e.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}

func (e *MobyEngine) Start(ctx context.Context, id string) error {
	if err := e.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", id, err)
	}
	return nil
}

func (e *MobyEngine) Stop(ctx context.Context, id string) error {
	timeout := 30
	if err := e.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	return nil
}

func (e *MobyEngine) Restart(ctx context.Context, id string) error {
	timeout := 30
	if err := e.client.ContainerRestart(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", id, err)
	}
	return nil
}

func (e *MobyEngine) Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	reader, err := e.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for container %s: %w", id, err)
	}
	return reader, nil
}

// dockerStatsJSON is the subset of the daemon's stats stream this package
// reads; the full structure carries many fields we don't use.
type dockerStatsJSON struct {
	CPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemUsage uint64 `json:"system_cpu_usage"`
		OnlineCPUs  uint64 `json:"online_cpus"`
	} `json:"cpu_stats"`
	PreCPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemUsage uint64 `json:"system_cpu_usage"`
	} `json:"precpu_stats"`
	MemoryStats struct {
		Usage uint64 `json:"usage"`
		Limit uint64 `json:"limit"`
	} `json:"memory_stats"`
	Networks map[string]struct {
		RxBytes uint64 `json:"rx_bytes"`
		TxBytes uint64 `json:"tx_bytes"`
	} `json:"networks"`
}

func cpuPercent(s dockerStatsJSON) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if sysDelta <= 0 || cpuDelta <= 0 {
		return 0
	}
	cpus := float64(s.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = 1
	}
	return (cpuDelta / sysDelta) * cpus * 100.0
}

// Stats streams decoded resource samples for a running container, one per
// daemon tick (Docker's stats API sends one JSON object per second by
// default when streamed).
func (e *MobyEngine) Stats(ctx context.Context, id string) (<-chan ContainerStats, <-chan error) {
	statsCh := make(chan ContainerStats)
	errCh := make(chan error, 1)

	go func() {
		defer close(statsCh)
		defer close(errCh)

		resp, err := e.client.ContainerStats(ctx, id, true)
		if err != nil {
			errCh <- fmt.Errorf("failed to get stats for container %s: %w", id, err)
			return
		}
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			var raw dockerStatsJSON
			if err := decoder.Decode(&raw); err != nil {
				if err == io.EOF {
					return
				}
				errCh <- fmt.Errorf("failed to decode stats for container %s: %w", id, err)
				return
			}

			var rx, tx uint64
			for _, n := range raw.Networks {
				rx += n.RxBytes
				tx += n.TxBytes
			}

			stats := ContainerStats{
				CPUPercent:  cpuPercent(raw),
				MemoryUsage: raw.MemoryStats.Usage,
				MemoryLimit: raw.MemoryStats.Limit,
				NetworkRx:   rx,
				NetworkTx:   tx,
			}
			if stats.MemoryLimit > 0 {
				stats.MemoryPercent = float64(stats.MemoryUsage) / float64(stats.MemoryLimit) * 100
			}

			select {
			case statsCh <- stats:
			case <-ctx.Done():
				return
			}
		}
	}()

	return statsCh, errCh
}

func (e *MobyEngine) Inspect(ctx context.Context, id string) (ContainerStatus, error) {
	c, err := e.client.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerStatus{}, fmt.Errorf("failed to inspect container %s: %w", id, err)
	}

	var startedAt *time.Time
	if c.State.Status == "running" && c.State.StartedAt != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, c.State.StartedAt); err == nil {
			startedAt = &parsed
		}
	}

	return ContainerStatus{
		ID:        c.ID,
		Name:      c.Name,
		State:     c.State.Status,
		Status:    c.State.Status,
		StartedAt: startedAt,
		Env:       c.Config.Env,
		Labels:    c.Config.Labels,
	}, nil
}

// List enumerates containers (running and stopped) carrying every key/value
// pair in labelFilter; a nil filter lists every container. The reconciler
// calls it on boot with a nil filter and prunes containers whose
// ployer.app_id label names an application that no longer exists.
func (e *MobyEngine) List(ctx context.Context, labelFilter map[string]string) ([]ContainerStatus, error) {
	filterArgs := filters.NewArgs()
	for key, value := range labelFilter {
		filterArgs.Add("label", key+"="+value)
	}

	containers, err := e.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	statuses := make([]ContainerStatus, 0, len(containers))
	for _, c := range containers {
		var name string
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		statuses = append(statuses, ContainerStatus{
			ID:     c.ID,
			Name:   name,
			State:  c.State,
			Status: c.Status,
			Labels: c.Labels,
		})
	}
	return statuses, nil
}

// Close closes the underlying Docker client connection.
func (e *MobyEngine) Close() error {
	return e.client.Close()
}
