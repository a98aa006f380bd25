// Package simulation models degraded networks and injected faults in front
// of a real transport. Conditions and scenarios are immutable values; the
// Simulator owns all mutable state and the Interceptor splices the two into
// an existing request path.
package simulation

import (
	"context"
	"time"
)

// Condition describes a simulated network impairment. Loss and drop rates
// are percentages in [0,100]. The zero value is a pass-through.
type Condition struct {
	Name               string
	MinLatency         time.Duration
	MaxLatency         time.Duration
	Bandwidth          int64 // bytes/sec, informational only
	PacketLossRate     float64
	Jitter             time.Duration
	ConnectionDropRate float64
}

// Common condition presets.
var (
	PerfectNetwork = Condition{Name: "perfect"}

	Broadband = Condition{
		Name:       "broadband",
		MinLatency: 5 * time.Millisecond,
		MaxLatency: 30 * time.Millisecond,
		Bandwidth:  12_500_000,
		Jitter:     5 * time.Millisecond,
	}

	Mobile3G = Condition{
		Name:           "mobile-3g",
		MinLatency:     100 * time.Millisecond,
		MaxLatency:     400 * time.Millisecond,
		Bandwidth:      93_750,
		PacketLossRate: 1,
		Jitter:         50 * time.Millisecond,
	}

	Flaky = Condition{
		Name:               "flaky",
		MinLatency:         50 * time.Millisecond,
		MaxLatency:         800 * time.Millisecond,
		Bandwidth:          125_000,
		PacketLossRate:     8,
		Jitter:             150 * time.Millisecond,
		ConnectionDropRate: 4,
	}

	Satellite = Condition{
		Name:           "satellite",
		MinLatency:     500 * time.Millisecond,
		MaxLatency:     900 * time.Millisecond,
		Bandwidth:      250_000,
		PacketLossRate: 2,
		Jitter:         100 * time.Millisecond,
	}
)

// IsZero reports whether the condition is a pass-through.
func (c Condition) IsZero() bool {
	return c.MinLatency == 0 && c.MaxLatency == 0 && c.PacketLossRate == 0 &&
		c.Jitter == 0 && c.ConnectionDropRate == 0
}

// Apply suspends for the condition's latency plus jitter, then fails with a
// *NetworkError with probability PacketLossRate% or ConnectionDropRate%,
// each checked independently. A zero condition returns immediately.
func (c Condition) Apply(ctx context.Context, rng Source) error {
	if c.IsZero() {
		return nil
	}

	if delay := c.delay(rng); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if c.PacketLossRate > 0 && rng.Float64()*100 < c.PacketLossRate {
		return &NetworkError{Condition: c.Name, Reason: "packet loss"}
	}
	if c.ConnectionDropRate > 0 && rng.Float64()*100 < c.ConnectionDropRate {
		return &NetworkError{Condition: c.Name, Reason: "connection dropped"}
	}
	return nil
}

// delay picks a latency in [MinLatency, MaxLatency] and adds a jitter offset
// in [-Jitter, +Jitter], clamped at zero.
func (c Condition) delay(rng Source) time.Duration {
	latency := c.MinLatency
	if span := c.MaxLatency - c.MinLatency; span > 0 {
		latency += time.Duration(rng.Int63n(int64(span) + 1))
	}
	if c.Jitter > 0 {
		latency += time.Duration(rng.Int63n(2*int64(c.Jitter)+1)) - c.Jitter
	}
	if latency < 0 {
		latency = 0
	}
	return latency
}
