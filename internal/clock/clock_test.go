package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNoteBoundaries(t *testing.T) {
	cases := []struct {
		hour int
		note string
	}{
		{6, "early morning"},
		{9, "morning"},
		{13, "midday"},
		{15, "afternoon"},
		{18, "evening"},
		{21, "late evening"},
		{2, "overnight"},
	}
	for _, c := range cases {
		ts := time.Date(2026, 7, 31, c.hour, 0, 0, 0, time.UTC)
		b := Now(ts)
		require.Equal(t, c.note, b.Note, "hour %d", c.hour)
		require.Equal(t, c.hour, b.Hour)
	}
}
