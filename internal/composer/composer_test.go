package composer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JDHayesBC/Awareness-sub005/internal/capture"
	"github.com/JDHayesBC/Awareness-sub005/internal/crystallize"
)

func TestDedupeRemovesContentHashDuplicates(t *testing.T) {
	t.Parallel()

	items := []item{newItem("same"), newItem("same"), newItem("different")}
	out := dedupe(items)
	require.Len(t, out, 2)
}

func TestTruncateToBudgetStopsAtItemBoundary(t *testing.T) {
	t.Parallel()

	items := []item{newItem("12345"), newItem("67890"), newItem("abcde")}
	kept, used, remaining := truncateToBudget(items, 12)
	require.Len(t, kept, 2) // third item (5 chars) would overflow a budget of 12
	require.Equal(t, 10, used)
	require.Equal(t, 2, remaining)
}

func TestTruncateToBudgetZeroYieldsNothing(t *testing.T) {
	t.Parallel()

	kept, used, remaining := truncateToBudget([]item{newItem("x")}, 0)
	require.Empty(t, kept)
	require.Equal(t, 0, used)
	require.Equal(t, 0, remaining)
}

func TestSummarizeHealth(t *testing.T) {
	t.Parallel()

	require.Equal(t, "all caught up", summarizeHealth(0, 0))
	require.Contains(t, summarizeHealth(3, 0), "crystallization")
	require.Contains(t, summarizeHealth(0, 5), "graph ingestion")
	require.Contains(t, summarizeHealth(3, 5), "crystallization")
}

func openTestComposer(t *testing.T) *Composer {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "pps.db")
	cap, err := capture.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { cap.Close() })

	cz, err := crystallize.Open(cap)
	require.NoError(t, err)

	return &Composer{Capture: cap, Crystallize: cz}
}

// TestBoundaryLimitPerLayerZeroYieldsClockAndHealthOnly exercises §8's
// documented boundary: limit_per_layer=0 (normalized to the default) with no
// context string and no configured anchors/texture still returns a clock
// block and memory health, with all layer slices empty.
func TestBoundaryLimitPerLayerZeroYieldsClockAndHealthOnly(t *testing.T) {
	c := openTestComposer(t)
	ctx := context.Background()

	result, err := c.Recall(ctx, Request{LimitPerLayer: 0})
	require.NoError(t, err)
	require.NotEmpty(t, result.Clock.Display)
	require.NotEmpty(t, result.MemoryHealth)
	require.Equal(t, 0, result.Manifest.WordPhotos.Items)
	require.Equal(t, 0, result.Manifest.RichTexture.Items)
	require.Equal(t, 0, result.Manifest.RecentTurns.Items, "normal mode never includes raw turns")
}

func TestScenarioS4_ComposerUnderPartialFailure(t *testing.T) {
	c := openTestComposer(t)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 25; i++ {
		_, err := c.Capture.Append(ctx, "default", "alice", capture.RoleUser, "hello there", now, false)
		require.NoError(t, err)
	}
	req, err := c.Crystallize.SummarizeRequest(ctx, crystallize.KindWork, 25)
	require.NoError(t, err)
	require.Empty(t, req.Reason)
	_, err = c.Crystallize.StoreSummary(ctx, "a summary of greetings", req.StartMessage, req.EndMessage, req.Channels, crystallize.KindWork)
	require.NoError(t, err)

	// Anchors and Texture are nil: those layers must degrade to empty slices,
	// not fail the whole recall.
	result, err := c.Recall(ctx, Request{Context: "greetings", LimitPerLayer: 5})
	require.NoError(t, err)
	require.Equal(t, 0, result.Manifest.WordPhotos.Items)
	require.Equal(t, 0, result.Manifest.RichTexture.Items)
	require.NotEmpty(t, result.FormattedContext)
}

func TestStartupModeIncludesRecentTurns(t *testing.T) {
	c := openTestComposer(t)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 5; i++ {
		_, err := c.Capture.Append(ctx, "default", "alice", capture.RoleUser, fmt.Sprintf("turn %d", i), now, false)
		require.NoError(t, err)
	}

	result, err := c.Recall(ctx, Request{Mode: ModeStartup, LimitPerLayer: 5})
	require.NoError(t, err)
	require.Equal(t, 5, result.Manifest.RecentTurns.Items)
}
