package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestStore opens a fresh migrated database under the test's temp
// directory, matching the teacher's per-test isolation pattern.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, st.Migrate(context.Background()))

	t.Cleanup(func() { st.Close() })
	return st
}
