package anchors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JDHayesBC/Awareness-sub005/internal/embedclient"
)

// openTestStore connects to a live qdrant instance and embedding service,
// mirroring the teacher's env-gated skip idiom (EMBED_BASE_URL/EMBED_API_KEY
// in internal/agent/memory/evolving_test.go) plus PPS_QDRANT_TEST_DSN for
// the vector backend this layer adds.
func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	qdrantDSN := os.Getenv("PPS_QDRANT_TEST_DSN")
	embedHost := os.Getenv("EMBED_BASE_URL")
	if qdrantDSN == "" || embedHost == "" {
		t.Skip("PPS_QDRANT_TEST_DSN or EMBED_BASE_URL not set; skipping anchors integration test")
	}
	embed := embedclient.New(embedHost, os.Getenv("EMBED_API_KEY"), os.Getenv("EMBED_MODEL"), 768)
	s, err := Open(context.Background(), qdrantDSN, "pps_anchors_test", embed, dir)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// TestScenarioS6_AnchorResyncRoundTrip implements the spec's scenario S6
// verbatim: write two markdown files, sync (added=2), modify one (updated=1),
// delete one and prune (removed=1), then confirm exactly one anchor remains.
func TestScenarioS6_AnchorResyncRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	ctx := context.Background()

	pathA := filepath.Join(dir, "a.md")
	pathB := filepath.Join(dir, "b.md")
	require.NoError(t, os.WriteFile(pathA, []byte("---\ntitle: A\n---\n\nFirst anchor body."), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("---\ntitle: B\n---\n\nSecond anchor body."), 0o644))

	result, err := s.Sync(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 2, result.Added)

	require.NoError(t, os.WriteFile(pathA, []byte("---\ntitle: A\n---\n\nFirst anchor body, revised."), 0o644))
	result, err = s.Sync(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	require.NoError(t, os.Remove(pathB))
	result, err = s.Sync(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 1, result.Removed)

	hits, err := s.Search(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestSaveThenDeleteReturnsToPreSaveState(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	ctx := context.Background()

	a, err := s.Save(ctx, "Saved Anchor", "a saved body", []string{"test"})
	require.NoError(t, err)
	require.FileExists(t, a.SourcePath)

	require.NoError(t, s.Delete(ctx, a.ID, true))
	require.NoFileExists(t, a.SourcePath)

	err = s.Delete(ctx, a.ID, true)
	require.Error(t, err)
}
