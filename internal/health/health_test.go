package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	ok     bool
	detail string
}

func (f fakeProber) Probe(ctx context.Context) (bool, string, time.Duration) {
	return f.ok, f.detail, time.Millisecond
}

func TestCheckAllLayersHealthy(t *testing.T) {
	a := &Aggregator{
		L1: fakeProber{ok: true, detail: "ok"},
		L2: fakeProber{ok: true, detail: "ok"},
		L3: fakeProber{ok: true, detail: "ok"},
		L4: fakeProber{ok: true, detail: "ok"},
		L5: fakeProber{ok: true, detail: "ok"},
	}
	r := a.Check(context.Background())
	require.Equal(t, "healthy", r.Status)
	for name, l := range r.Layers {
		require.Truef(t, l.Configured, "layer %s should be configured", name)
		require.True(t, l.OK)
	}
}

func TestCheckRequiredLayerDownMakesOverallUnhealthy(t *testing.T) {
	a := &Aggregator{
		L1: fakeProber{ok: true, detail: "ok"},
		L2: fakeProber{ok: true, detail: "ok"},
		L3: fakeProber{ok: false, detail: "connection refused"},
		L4: fakeProber{ok: true, detail: "ok"},
		L5: fakeProber{ok: true, detail: "ok"},
	}
	r := a.Check(context.Background())
	require.Equal(t, "unhealthy", r.Status)
	require.False(t, r.Layers["L3"].OK)
}

func TestCheckAdvisoryLayerDownDoesNotAffectOverall(t *testing.T) {
	a := &Aggregator{
		L1: fakeProber{ok: true, detail: "ok"},
		L2: fakeProber{ok: false, detail: "connection refused"},
		L3: fakeProber{ok: true, detail: "ok"},
		L4: fakeProber{ok: true, detail: "ok"},
		L5: fakeProber{ok: false, detail: "connection refused"},
	}
	r := a.Check(context.Background())
	require.Equal(t, "healthy", r.Status)
	require.False(t, r.Layers["L2"].OK)
	require.False(t, r.Layers["L5"].OK)
	require.True(t, r.Layers["L2"].Advisory)
	require.True(t, r.Layers["L5"].Advisory)
}

func TestCheckUnconfiguredAdvisoryLayerReportsOK(t *testing.T) {
	a := &Aggregator{
		L1: fakeProber{ok: true, detail: "ok"},
		L3: fakeProber{ok: true, detail: "ok"},
		L4: fakeProber{ok: true, detail: "ok"},
	}
	r := a.Check(context.Background())
	require.Equal(t, "healthy", r.Status)
	require.True(t, r.Layers["L2"].OK)
	require.False(t, r.Layers["L2"].Configured)
	require.True(t, r.Layers["L5"].OK)
	require.False(t, r.Layers["L5"].Configured)
}

func TestCheckUnconfiguredRequiredLayerReportsNotOKAndUnhealthy(t *testing.T) {
	a := &Aggregator{
		L2: fakeProber{ok: true, detail: "ok"},
		L3: fakeProber{ok: true, detail: "ok"},
		L4: fakeProber{ok: true, detail: "ok"},
		L5: fakeProber{ok: true, detail: "ok"},
	}
	r := a.Check(context.Background())
	require.Equal(t, "unhealthy", r.Status)
	require.False(t, r.Layers["L1"].OK)
	require.False(t, r.Layers["L1"].Configured)
}

func TestCheckReportsLatencyFromProbe(t *testing.T) {
	a := &Aggregator{
		L1: fakeProber{ok: true, detail: "ok"},
		L3: fakeProber{ok: true, detail: "ok"},
		L4: fakeProber{ok: true, detail: "ok"},
	}
	r := a.Check(context.Background())
	require.GreaterOrEqual(t, r.Layers["L1"].LastOpMS, 0.0)
}
