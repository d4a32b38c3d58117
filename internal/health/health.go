// Package health implements the deterministic health aggregator (H):
// pps_health -> {status, layers}. Grounded on the teacher's
// internal/persistence/databases.Manager.Close optional-capability pattern
// (type-asserting an interface{ Close() } off a concrete backend), adapted
// here to an interface{ Probe(ctx) (bool, string, time.Duration) } capability
// any layer may implement.
package health

import (
	"context"
	"time"
)

// Prober is the cheap capability-check interface each layer may implement.
type Prober interface {
	Probe(ctx context.Context) (ok bool, detail string, elapsed time.Duration)
}

// LayerStatus is one layer's entry in the health report.
type LayerStatus struct {
	OK        bool
	Detail    string
	LastOpMS  float64
	Advisory  bool // true for L2/L5: their absence doesn't break conversation
	Configured bool
}

// Report is pps_health's output shape.
type Report struct {
	Status string
	Layers map[string]LayerStatus
}

// Aggregator holds each layer's prober (nil if that layer isn't configured).
type Aggregator struct {
	L1 Prober
	L2 Prober
	L3 Prober
	L4 Prober
	L5 Prober
}

// Check runs every configured layer's probe and computes the deterministic
// aggregate: overall ok iff L1, L3, L4 are ok (L2, L5 are advisory) (§4.8).
func (a *Aggregator) Check(ctx context.Context) Report {
	layers := map[string]LayerStatus{
		"L1": probeLayer(ctx, a.L1, false),
		"L2": probeLayer(ctx, a.L2, true),
		"L3": probeLayer(ctx, a.L3, false),
		"L4": probeLayer(ctx, a.L4, false),
		"L5": probeLayer(ctx, a.L5, true),
	}

	overall := layers["L1"].OK && layers["L3"].OK && layers["L4"].OK
	status := "healthy"
	if !overall {
		status = "unhealthy"
	}
	return Report{Status: status, Layers: layers}
}

func probeLayer(ctx context.Context, p Prober, advisory bool) LayerStatus {
	if p == nil {
		return LayerStatus{OK: advisory, Detail: "not configured", Advisory: advisory, Configured: false}
	}
	ok, detail, elapsed := p.Probe(ctx)
	return LayerStatus{
		OK:         ok,
		Detail:     detail,
		LastOpMS:   float64(elapsed.Microseconds()) / 1000.0,
		Advisory:   advisory,
		Configured: true,
	}
}
