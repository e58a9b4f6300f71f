package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedApplication(t *testing.T, st *Store) Application {
	t.Helper()
	ctx := context.Background()

	srv, err := st.EnsureLocalServer(ctx)
	require.NoError(t, err)

	app, err := st.CreateApplication(ctx, CreateApplicationInput{Name: "api", ServerID: srv.ID})
	require.NoError(t, err)
	return app
}

func TestStore_CreateDeployment_RejectsConcurrentNonTerminal(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	app := seedApplication(t, st)

	_, err := st.CreateDeployment(ctx, CreateDeploymentInput{
		ApplicationID: app.ID,
		ServerID:      app.ServerID,
		ImageTag:      "api:1",
	})
	require.NoError(t, err)

	_, err = st.CreateDeployment(ctx, CreateDeploymentInput{
		ApplicationID: app.ID,
		ServerID:      app.ServerID,
		ImageTag:      "api:2",
	})
	assert.ErrorIs(t, err, ErrDeploymentInProgress)
}

func TestStore_CreateDeployment_AllowedAfterPriorTerminal(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	app := seedApplication(t, st)

	d1, err := st.CreateDeployment(ctx, CreateDeploymentInput{
		ApplicationID: app.ID,
		ServerID:      app.ServerID,
		ImageTag:      "api:1",
	})
	require.NoError(t, err)

	require.NoError(t, st.SetDeploymentStatus(ctx, d1.ID, DeployFailed))

	d2, err := st.CreateDeployment(ctx, CreateDeploymentInput{
		ApplicationID: app.ID,
		ServerID:      app.ServerID,
		ImageTag:      "api:2",
	})
	require.NoError(t, err)
	assert.NotEqual(t, d1.ID, d2.ID)
}

func TestStore_AppendBuildLog_CapsAtMaxSize(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	app := seedApplication(t, st)

	d, err := st.CreateDeployment(ctx, CreateDeploymentInput{
		ApplicationID: app.ID,
		ServerID:      app.ServerID,
		ImageTag:      "api:1",
	})
	require.NoError(t, err)

	chunk := strings.Repeat("x", 1<<19)
	require.NoError(t, st.AppendBuildLog(ctx, d.ID, chunk))
	require.NoError(t, st.AppendBuildLog(ctx, d.ID, chunk))
	require.NoError(t, st.AppendBuildLog(ctx, d.ID, chunk))

	got, err := st.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.BuildLog), maxBuildLogBytes)
	assert.True(t, got.BuildLogTruncated)
}

func TestStore_RequestDeploymentCancellation_SetsFlag(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	app := seedApplication(t, st)

	d, err := st.CreateDeployment(ctx, CreateDeploymentInput{
		ApplicationID: app.ID,
		ServerID:      app.ServerID,
		ImageTag:      "api:1",
	})
	require.NoError(t, err)

	flag, err := st.IsCancellationRequested(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, flag)

	require.NoError(t, st.RequestDeploymentCancellation(ctx, d.ID))

	flag, err = st.IsCancellationRequested(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, flag)
}
