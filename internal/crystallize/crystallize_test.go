package crystallize

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JDHayesBC/Awareness-sub005/internal/capture"
	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

func openTestStores(t *testing.T) (*capture.Store, *Store) {
	t.Helper()
	cap, err := capture.Open(filepath.Join(t.TempDir(), "pps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cap.Close() })
	cry, err := Open(cap)
	require.NoError(t, err)
	return cap, cry
}

func appendN(t *testing.T, cap *capture.Store, n int, channel string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	role := capture.RoleUser
	for i := 0; i < n; i++ {
		if role == capture.RoleUser {
			role = capture.RoleAssistant
		} else {
			role = capture.RoleUser
		}
		_, err := cap.Append(ctx, channel, "x", role, "hello", now.Add(time.Duration(i)*time.Second), false)
		require.NoError(t, err)
	}
}

func TestScenarioS1_CaptureSummarizeRecall(t *testing.T) {
	cap, cry := openTestStores(t)
	ctx := context.Background()
	appendN(t, cap, 50, "c1")

	req, err := cry.SummarizeRequest(ctx, KindWork, 50)
	require.NoError(t, err)
	require.Empty(t, req.Reason)
	require.Equal(t, int64(1), req.StartMessage)
	require.Equal(t, int64(50), req.EndMessage)

	_, err = cry.StoreSummary(ctx, "S1", req.StartMessage, req.EndMessage, req.Channels, KindWork)
	require.NoError(t, err)

	recent, err := cry.Recent(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "S1", recent[0].Text)
	require.Equal(t, int64(1), recent[0].StartMessageID)
	require.Equal(t, int64(50), recent[0].EndMessageID)
	require.ElementsMatch(t, []string{"c1"}, recent[0].Channels)

	n, err := cap.CountUnsummarized(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestStoreSummaryRejectsOverlapWithinSameKind(t *testing.T) {
	cap, cry := openTestStores(t)
	ctx := context.Background()
	appendN(t, cap, 20, "c1")

	_, err := cry.StoreSummary(ctx, "first", 1, 20, []string{"c1"}, KindWork)
	require.NoError(t, err)

	_, err = cry.StoreSummary(ctx, "dup", 1, 20, []string{"c1"}, KindWork)
	require.Error(t, err)
	require.Equal(t, ppserr.Invariant, ppserr.KindOf(err))
}

func TestSummarizeRequestInsufficientMessages(t *testing.T) {
	cap, cry := openTestStores(t)
	ctx := context.Background()
	appendN(t, cap, 3, "c1")

	req, err := cry.SummarizeRequest(ctx, KindWork, 50)
	require.NoError(t, err)
	require.Equal(t, "insufficient_messages", req.Reason)
}
