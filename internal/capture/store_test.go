package capture

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pps.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id1, err := s.Append(ctx, "c1", "alice", RoleUser, "hello", now, false)
	require.NoError(t, err)
	id2, err := s.Append(ctx, "c1", "bot", RoleAssistant, "hi there", now.Add(time.Second), false)
	require.NoError(t, err)
	require.Greater(t, id2, id1)
}

func TestFTSSearchFindsContent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.Append(ctx, "c1", "alice", RoleUser, "Alice likes Bob", now, false)
	require.NoError(t, err)
	_, err = s.Append(ctx, "c1", "alice", RoleUser, "unrelated content about weather", now, false)
	require.NoError(t, err)

	results, err := s.FTSSearch(ctx, "Bob", 10, "", nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Content, "Bob")
}

func TestWindowAroundReturnsStrictIDOrderAcrossChannels(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	var mid int64
	for i, ch := range []string{"c1", "c2", "c3", "c1", "c2", "c3", "c1", "c2", "c3", "c1", "c2"} {
		id, err := s.Append(ctx, ch, "x", RoleUser, "msg", now.Add(time.Duration(i)*time.Second), false)
		require.NoError(t, err)
		if i == 5 {
			mid = id
		}
	}

	msgs, err := s.WindowAround(ctx, mid, 5, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 11)
	for i := 1; i < len(msgs); i++ {
		require.Greater(t, msgs[i].ID, msgs[i-1].ID)
	}
}

func TestMarkSummarizedUpdatesAndIsExcludedFromUnsummarized(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.Append(ctx, "c1", "x", RoleUser, "msg", now, false)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	n, err := s.CountUnsummarized(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, s.MarkSummarized(ctx, ids, 42))

	n, err = s.CountUnsummarized(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	msgs, err := s.Range(ctx, ids[0], ids[len(ids)-1])
	require.NoError(t, err)
	for _, m := range msgs {
		require.NotNil(t, m.SummaryID)
		require.Equal(t, int64(42), *m.SummaryID)
	}
}

func TestSelectUnungestedRespectsBatchSize(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, "c1", "x", RoleUser, "msg", now, false)
		require.NoError(t, err)
	}

	batch, err := s.SelectUnungested(ctx, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	ids := make([]int64, len(batch))
	for i, m := range batch {
		ids[i] = m.ID
	}
	require.NoError(t, s.MarkIngested(ctx, ids, 7))

	remaining, err := s.CountUnungested(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, remaining)
}
