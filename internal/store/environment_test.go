package store

import (
	"context"
	"testing"

	"github.com/GLINCKER/glinrdock/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetEnvironmentVariable_RoundTripsThroughSecretBox(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	app := seedApplication(t, st)

	box, err := crypto.NewSecretBox("test-root-secret")
	require.NoError(t, err)

	ev, err := st.SetEnvironmentVariable(ctx, box, app.ID, "DATABASE_URL", "postgres://localhost/db")
	require.NoError(t, err)
	assert.NotContains(t, ev.Value, "postgres://")

	values, err := st.OpenEnvironmentVariables(ctx, box, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/db", values["DATABASE_URL"])
}

func TestStore_SetEnvironmentVariable_UpsertReplacesValue(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	app := seedApplication(t, st)

	box, err := crypto.NewSecretBox("test-root-secret")
	require.NoError(t, err)

	_, err = st.SetEnvironmentVariable(ctx, box, app.ID, "KEY", "first")
	require.NoError(t, err)
	_, err = st.SetEnvironmentVariable(ctx, box, app.ID, "KEY", "second")
	require.NoError(t, err)

	values, err := st.OpenEnvironmentVariables(ctx, box, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", values["KEY"])
	assert.Len(t, values, 1)
}

func TestStore_OpenEnvironmentVariables_WrongBoxFailsClosed(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	app := seedApplication(t, st)

	box, err := crypto.NewSecretBox("root-a")
	require.NoError(t, err)
	_, err = st.SetEnvironmentVariable(ctx, box, app.ID, "KEY", "value")
	require.NoError(t, err)

	otherBox, err := crypto.NewSecretBox("root-b")
	require.NoError(t, err)

	_, err = st.OpenEnvironmentVariables(ctx, otherBox, app.ID)
	assert.Error(t, err)
}
