package ppserr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	require.Equal(t, 400, New(InputShape, "op", "bad").Status())
	require.Equal(t, 404, New(NotFound, "op", "missing").Status())
	require.Equal(t, 409, New(Invariant, "op", "violated").Status())
	require.Equal(t, 503, New(DependencyDown, "op", "down").Status())
	require.Equal(t, 503, New(Timeout, "op", "slow").Status())
	require.Equal(t, 207, New(Partial, "op", "partial").Status())
	require.Equal(t, 500, New(Internal, "op", "boom").Status())
}

func TestOfUnwrapsWrappedError(t *testing.T) {
	base := Wrap(DependencyDown, "capture.Append", "sqlite write failed", errors.New("disk full"))
	wrapped := fmt.Errorf("ingest batch 4: %w", base)

	found, ok := Of(wrapped)
	require.True(t, ok)
	require.Equal(t, DependencyDown, found.Kind)
	require.Equal(t, DependencyDown, KindOf(wrapped))
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	require.Equal(t, Internal, KindOf(errors.New("plain error")))
}
