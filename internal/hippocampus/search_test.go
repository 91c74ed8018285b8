package hippocampus

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roasbeef/lethe/internal/memory"
	"github.com/stretchr/testify/require"
)

func TestStoreSearchFormatsHits(t *testing.T) {
	t.Parallel()

	store, err := memory.NewStore(filepath.Join(t.TempDir(), "lethe.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.SaveMessage(
		ctx, "chat", "user", "the database password is in vault", nil,
	)
	require.NoError(t, err)
	_, err = store.SaveMessage(
		ctx, "chat", "assistant", "noted, vault it is", nil,
	)
	require.NoError(t, err)

	search := StoreSearch(store)

	out, err := search(ctx, "vault password", 5)
	require.NoError(t, err)
	require.Contains(t, out, "[user] the database password is in vault")

	out, err = search(ctx, "zanzibar", 5)
	require.NoError(t, err)
	require.Empty(t, out)
}
