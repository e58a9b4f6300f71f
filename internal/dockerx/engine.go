package dockerx

import (
	"context"
	"io"
	"strings"
	"time"
)

// PortBinding maps a container port to a host port, published on 0.0.0.0.
type PortBinding struct {
	Container int
	Host      int
}

// ContainerSpec configures a container the fleet controller starts.
type ContainerSpec struct {
	Image string
	Env   map[string]string
	Ports []PortBinding
}

// BuildSpec configures an image build. Context is a tar stream (the git
// adapter's checkout, tarred by the caller); Dockerfile names the path
// within that context.
type BuildSpec struct {
	Context    io.Reader
	Dockerfile string
	Tag        string
}

// BuildLogLine is one line of build output, streamed to the deployment's
// build log as the image builds.
type BuildLogLine struct {
	Text string
}

// ContainerStats is one resource-usage sample.
type ContainerStats struct {
	CPUPercent    float64
	MemoryUsage   uint64
	MemoryLimit   uint64
	MemoryPercent float64
	NetworkRx     uint64
	NetworkTx     uint64
}

// ContainerStatus is the outcome of inspecting a container.
type ContainerStatus struct {
	ID        string
	Name      string
	State     string // "created", "running", "paused", "restarting", "removing", "exited", "dead"
	Status    string
	StartedAt *time.Time
	Env       []string
	Labels    map[string]string
}

// Engine is the container runtime adapter (spec.md component D). MobyEngine
// implements it against a real Docker daemon; MockEngine backs orchestrator
// and fleet controller tests.
type Engine interface {
	Build(ctx context.Context, spec BuildSpec) (<-chan BuildLogLine, <-chan error)
	Pull(ctx context.Context, image string) error
	Create(ctx context.Context, name string, spec ContainerSpec, labels map[string]string) (string, error)
	Remove(ctx context.Context, id string) error
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error)
	Stats(ctx context.Context, id string) (<-chan ContainerStats, <-chan error)
	Inspect(ctx context.Context, id string) (ContainerStatus, error)
	List(ctx context.Context, labelFilter map[string]string) ([]ContainerStatus, error)
}

// MockEngine implements Engine without a Docker daemon, for orchestrator,
// fleet controller and health monitor tests.
type MockEngine struct {
	buildError             error
	pullError              error
	createError            error
	removeError            error
	startError             error
	stopError              error
	restartError           error
	logsError              error
	statsError             error
	inspectError           error
	createID               string
	mockLogs               string
	mockBuildLog           []string
	mockStats              []ContainerStats
	mockStatus             ContainerStatus
	listError              error
	mockList               []ContainerStatus
}

// NewMockEngine creates a new mock container runtime.
func NewMockEngine() *MockEngine {
	startedAt := time.Now().Add(-5 * time.Minute)
	return &MockEngine{
		createID: "mock-container-id",
		mockStatus: ContainerStatus{
			ID:        "mock-container-id",
			Name:      "mock-container",
			State:     "running",
			Status:    "running",
			StartedAt: &startedAt,
		},
	}
}

func (m *MockEngine) Build(ctx context.Context, spec BuildSpec) (<-chan BuildLogLine, <-chan error) {
	logCh := make(chan BuildLogLine, len(m.mockBuildLog)+1)
	errCh := make(chan error, 1)

	go func() {
		defer close(logCh)
		defer close(errCh)

		if m.buildError != nil {
			errCh <- m.buildError
			return
		}

		lines := m.mockBuildLog
		if len(lines) == 0 {
			lines = []string{"Successfully built " + spec.Tag}
		}
		for _, line := range lines {
			select {
			case logCh <- BuildLogLine{Text: line}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return logCh, errCh
}

func (m *MockEngine) Pull(ctx context.Context, image string) error { return m.pullError }

func (m *MockEngine) Create(ctx context.Context, name string, spec ContainerSpec, labels map[string]string) (string, error) {
	if m.createError != nil {
		return "", m.createError
	}
	return m.createID, nil
}

func (m *MockEngine) Remove(ctx context.Context, id string) error   { return m.removeError }
func (m *MockEngine) Start(ctx context.Context, id string) error    { return m.startError }
func (m *MockEngine) Stop(ctx context.Context, id string) error     { return m.stopError }
func (m *MockEngine) Restart(ctx context.Context, id string) error  { return m.restartError }

func (m *MockEngine) Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	if m.logsError != nil {
		return nil, m.logsError
	}
	return io.NopCloser(strings.NewReader(m.mockLogs)), nil
}

func (m *MockEngine) Stats(ctx context.Context, id string) (<-chan ContainerStats, <-chan error) {
	statsCh := make(chan ContainerStats, len(m.mockStats))
	errCh := make(chan error, 1)

	go func() {
		defer close(statsCh)
		defer close(errCh)

		if m.statsError != nil {
			errCh <- m.statsError
			return
		}

		for _, stat := range m.mockStats {
			select {
			case statsCh <- stat:
			case <-ctx.Done():
				return
			}
		}
	}()

	return statsCh, errCh
}

func (m *MockEngine) Inspect(ctx context.Context, id string) (ContainerStatus, error) {
	if m.inspectError != nil {
		return ContainerStatus{}, m.inspectError
	}
	status := m.mockStatus
	status.ID = id
	return status, nil
}

func (m *MockEngine) List(ctx context.Context, labelFilter map[string]string) ([]ContainerStatus, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	return m.mockList, nil
}

func (m *MockEngine) SetBuildError(err error)              { m.buildError = err }
func (m *MockEngine) SetMockBuildLog(lines []string)       { m.mockBuildLog = lines }
func (m *MockEngine) SetPullError(err error)                { m.pullError = err }
func (m *MockEngine) SetCreateError(err error)              { m.createError = err }
func (m *MockEngine) SetRemoveError(err error)              { m.removeError = err }
func (m *MockEngine) SetCreateID(id string)                 { m.createID = id }
func (m *MockEngine) SetStartError(err error)               { m.startError = err }
func (m *MockEngine) SetStopError(err error)                { m.stopError = err }
func (m *MockEngine) SetRestartError(err error)             { m.restartError = err }
func (m *MockEngine) SetLogsError(err error)                { m.logsError = err }
func (m *MockEngine) SetStatsError(err error)                { m.statsError = err }
func (m *MockEngine) SetMockLogs(logs string)               { m.mockLogs = logs }
func (m *MockEngine) SetMockStats(stats []ContainerStats)   { m.mockStats = stats }
func (m *MockEngine) SetInspectError(err error)              { m.inspectError = err }
func (m *MockEngine) SetMockStatus(status ContainerStatus)   { m.mockStatus = status }
func (m *MockEngine) SetListError(err error)                 { m.listError = err }
func (m *MockEngine) SetMockList(list []ContainerStatus)     { m.mockList = list }
