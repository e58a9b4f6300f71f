package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/GLINCKER/glinrdock/internal/dockerx"
	"github.com/GLINCKER/glinrdock/internal/events"
	"github.com/GLINCKER/glinrdock/internal/fleet"
	"github.com/GLINCKER/glinrdock/internal/proxy"
	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

// fakeProxy is a minimal in-memory stand-in for the proxy admin API,
// exercising Adapter's real HTTP client against a local httptest server
// instead of mocking the adapter itself.
type fakeProxy struct {
	mu     sync.Mutex
	routes map[string]proxy.Route
}

func newFakeProxy() *fakeProxy {
	return &fakeProxy{routes: make(map[string]proxy.Route)}
}

func (f *fakeProxy) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/routes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var route proxy.Route
			json.NewDecoder(r.Body).Decode(&route)
			f.mu.Lock()
			f.routes[route.Hostname] = route
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			f.mu.Lock()
			list := make([]proxy.Route, 0, len(f.routes))
			for _, route := range f.routes {
				list = append(list, route)
			}
			f.mu.Unlock()
			json.NewEncoder(w).Encode(list)
		}
	})
	mux.HandleFunc("/routes/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			hostname := r.URL.Path[len("/routes/"):]
			f.mu.Lock()
			delete(f.routes, hostname)
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}
	})
	return httptest.NewServer(mux)
}

func seedRunningApp(t *testing.T, st *store.Store, name, hostname string, containerID string, hostPort int) store.Application {
	t.Helper()
	ctx := context.Background()

	server, err := st.EnsureLocalServer(ctx)
	require.NoError(t, err)

	app, err := st.CreateApplication(ctx, store.CreateApplicationInput{Name: name, ServerID: server.ID})
	require.NoError(t, err)

	deployment, err := st.CreateDeployment(ctx, store.CreateDeploymentInput{
		ApplicationID: app.ID, ServerID: server.ID, Trigger: store.TriggerManual, ImageTag: name + ":latest",
	})
	require.NoError(t, err)
	require.NoError(t, st.SetDeploymentContainer(ctx, deployment.ID, containerID, hostPort))
	require.NoError(t, st.SetDeploymentStatus(ctx, deployment.ID, store.DeployRunning))
	require.NoError(t, st.SetApplicationStatus(ctx, app.ID, store.AppRunning))

	_, err = st.AddDomain(ctx, app.ID, hostname, true)
	require.NoError(t, err)

	app, err = st.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	return app
}

func TestReconciler_BootRecoversRunningContainer(t *testing.T) {
	st := setupTestStore(t)
	app := seedRunningApp(t, st, "web", "web.ployer.local", "container-1", 30001)

	engine := dockerx.NewMockEngine()
	engine.SetMockStatus(dockerx.ContainerStatus{ID: "container-1", State: "running"})

	fp := newFakeProxy()
	srv := fp.server()
	defer srv.Close()

	fc := fleet.NewController(engine, proxy.NewAdapter(srv.URL))
	bus := events.NewBus()
	r := New(st, fc, engine, proxy.NewAdapter(srv.URL), bus)

	require.NoError(t, r.Boot(context.Background()))

	require.Equal(t, "container-1", fc.Current(app.ID))

	refreshed, err := st.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	require.Equal(t, store.AppRunning, refreshed.Status)
}

func TestReconciler_BootDemotesMissingContainer(t *testing.T) {
	st := setupTestStore(t)
	app := seedRunningApp(t, st, "api", "api.ployer.local", "container-missing", 30002)

	engine := dockerx.NewMockEngine()
	engine.SetInspectError(errors.New("no such container"))

	fp := newFakeProxy()
	srv := fp.server()
	defer srv.Close()

	fc := fleet.NewController(engine, proxy.NewAdapter(srv.URL))
	bus := events.NewBus()
	r := New(st, fc, engine, proxy.NewAdapter(srv.URL), bus)

	require.NoError(t, r.Boot(context.Background()))

	refreshed, err := st.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	require.Equal(t, store.AppStopped, refreshed.Status)
	require.Empty(t, fc.Current(app.ID))
}

func TestReconciler_PruneOrphansRemovesUnknownApplicationContainers(t *testing.T) {
	st := setupTestStore(t)

	engine := dockerx.NewMockEngine()
	engine.SetMockList([]dockerx.ContainerStatus{
		{ID: "orphan-1", Labels: map[string]string{fleet.AppLabel: "999"}},
	})

	fp := newFakeProxy()
	srv := fp.server()
	defer srv.Close()

	fc := fleet.NewController(engine, proxy.NewAdapter(srv.URL))
	bus := events.NewBus()
	r := New(st, fc, engine, proxy.NewAdapter(srv.URL), bus)

	require.NoError(t, r.Boot(context.Background()))
}

func TestReconciler_RouteReconciliationInstallsAndPrunes(t *testing.T) {
	st := setupTestStore(t)
	seedRunningApp(t, st, "worker", "worker.ployer.local", "container-2", 30003)

	engine := dockerx.NewMockEngine()
	fp := newFakeProxy()
	fp.routes["stale.ployer.local"] = proxy.Route{Hostname: "stale.ployer.local", BackendHost: "127.0.0.1", BackendPort: 9999}
	srv := fp.server()
	defer srv.Close()

	adapter := proxy.NewAdapter(srv.URL)
	fc := fleet.NewController(engine, adapter)
	bus := events.NewBus()
	r := New(st, fc, engine, adapter, bus)

	require.NoError(t, r.reconcileRoutes(context.Background()))

	fp.mu.Lock()
	defer fp.mu.Unlock()
	require.Contains(t, fp.routes, "worker.ployer.local")
	require.Equal(t, 30003, fp.routes["worker.ployer.local"].BackendPort)
	require.NotContains(t, fp.routes, "stale.ployer.local")
}
