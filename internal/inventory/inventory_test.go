package inventory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JDHayesBC/Awareness-sub005/internal/capture"
	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cap, err := capture.Open(filepath.Join(t.TempDir(), "pps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cap.Close() })
	inv, err := Open(cap)
	require.NoError(t, err)
	return inv
}

func TestAddGetDeleteRoundTrip(t *testing.T) {
	inv := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, inv.Add(ctx, "clothing", "red coat", map[string]any{"color": "red"}, "a long red coat"))

	it, err := inv.Get(ctx, "clothing", "red coat")
	require.NoError(t, err)
	require.Equal(t, "a long red coat", it.Description)
	require.Equal(t, "red", it.Attributes["color"])

	require.NoError(t, inv.Delete(ctx, "clothing", "red coat"))
	_, err = inv.Get(ctx, "clothing", "red coat")
	require.Error(t, err)
	require.Equal(t, ppserr.NotFound, ppserr.KindOf(err))
}

func TestCategoryUniqueness(t *testing.T) {
	inv := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, inv.Add(ctx, "space", "library", map[string]any{"sensory_description": "dusty shelves"}, "the library"))
	require.NoError(t, inv.Add(ctx, "space", "library", map[string]any{"sensory_description": "updated"}, "the library, renovated"))

	it, err := inv.EnterSpace(ctx, "library")
	require.NoError(t, err)
	require.Equal(t, "the library, renovated", it.Description)
}

func TestListSpacesAndCategories(t *testing.T) {
	inv := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, inv.Add(ctx, "space", "library", nil, "the library"))
	require.NoError(t, inv.Add(ctx, "clothing", "coat", nil, "a coat"))

	spaces, err := inv.ListSpaces(ctx)
	require.NoError(t, err)
	require.Len(t, spaces, 1)

	cats, err := inv.Categories(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"clothing", "space"}, cats)
}
