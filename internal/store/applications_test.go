package store

import (
	"context"
	"testing"

	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateApplication_DefaultsBuildStrategy(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	srv, err := st.EnsureLocalServer(ctx)
	require.NoError(t, err)

	app, err := st.CreateApplication(ctx, CreateApplicationInput{
		Name:     "api",
		ServerID: srv.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, BuildDockerfile, app.BuildStrategy)
	assert.Equal(t, AppPending, app.Status)
}

func TestStore_CreateApplication_DuplicateNameConflicts(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	srv, err := st.EnsureLocalServer(ctx)
	require.NoError(t, err)

	_, err = st.CreateApplication(ctx, CreateApplicationInput{Name: "api", ServerID: srv.ID})
	require.NoError(t, err)

	_, err = st.CreateApplication(ctx, CreateApplicationInput{Name: "api", ServerID: srv.ID})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.Conflict))
}

func TestStore_UpdateApplication_PartialUpdateLeavesOtherFieldsUnchanged(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	srv, err := st.EnsureLocalServer(ctx)
	require.NoError(t, err)

	branch := "main"
	app, err := st.CreateApplication(ctx, CreateApplicationInput{
		Name:      "api",
		ServerID:  srv.ID,
		GitBranch: &branch,
	})
	require.NoError(t, err)

	newStrategy := BuildNixpacks
	updated, err := st.UpdateApplication(ctx, app.ID, UpdateApplicationInput{
		BuildStrategy: &newStrategy,
	})
	require.NoError(t, err)

	assert.Equal(t, BuildNixpacks, updated.BuildStrategy)
	require.NotNil(t, updated.GitBranch)
	assert.Equal(t, "main", *updated.GitBranch)
}

func TestStore_DeleteApplication_NotFound(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	err := st.DeleteApplication(ctx, 999)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.NotFound))
}
