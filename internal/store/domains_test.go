package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddDomain_NewPrimaryDemotesOld(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	app := seedApplication(t, st)

	d1, err := st.AddDomain(ctx, app.ID, "old.example.com", true)
	require.NoError(t, err)
	assert.True(t, d1.IsPrimary)

	d2, err := st.AddDomain(ctx, app.ID, "new.example.com", true)
	require.NoError(t, err)
	assert.True(t, d2.IsPrimary)

	reloaded, err := st.GetDomain(ctx, d1.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsPrimary)
}

func TestStore_SetPrimaryDomain_SwapsSlot(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	app := seedApplication(t, st)

	d1, err := st.AddDomain(ctx, app.ID, "one.example.com", true)
	require.NoError(t, err)
	d2, err := st.AddDomain(ctx, app.ID, "two.example.com", false)
	require.NoError(t, err)

	_, err = st.SetPrimaryDomain(ctx, d2.ID)
	require.NoError(t, err)

	reloadedOne, err := st.GetDomain(ctx, d1.ID)
	require.NoError(t, err)
	reloadedTwo, err := st.GetDomain(ctx, d2.ID)
	require.NoError(t, err)

	assert.False(t, reloadedOne.IsPrimary)
	assert.True(t, reloadedTwo.IsPrimary)
}

func TestStore_AddDomain_DuplicateHostnameConflicts(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	app := seedApplication(t, st)

	_, err := st.AddDomain(ctx, app.ID, "shared.example.com", false)
	require.NoError(t, err)

	_, err = st.AddDomain(ctx, app.ID, "shared.example.com", false)
	assert.Error(t, err)
}
