package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/faultline/internal/transport"
)

// installed tracks which transports already carry an active interceptor.
// Only one interceptor may wrap a given transport at a time.
var (
	installedMu sync.Mutex
	installed   = map[transport.Transport]*Interceptor{}
)

// Interceptor splices the condition model and the injector in front of a
// real transport. It is an explicit handle: Start activates it, Stop
// restores the original call path. Both are idempotent.
type Interceptor struct {
	sim   *Simulator
	inner transport.Transport

	mu     sync.Mutex
	active bool
}

// NewInterceptor wraps inner. The interceptor is inert until Start is
// called; an inert interceptor delegates every call unchanged.
func NewInterceptor(sim *Simulator, inner transport.Transport) *Interceptor {
	return &Interceptor{sim: sim, inner: inner}
}

// Start activates interception. Calling Start on an already-active
// interceptor is a no-op; activating a second interceptor on the same
// transport is an error.
func (i *Interceptor) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active {
		return nil
	}

	installedMu.Lock()
	defer installedMu.Unlock()
	if owner, ok := installed[i.inner]; ok && owner != i {
		return fmt.Errorf("transport already has an active interceptor")
	}
	installed[i.inner] = i
	i.active = true
	return nil
}

// Stop deactivates interception and emits a final stats snapshot. Calling
// Stop on an inactive interceptor is a no-op.
func (i *Interceptor) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.active {
		return
	}

	installedMu.Lock()
	if installed[i.inner] == i {
		delete(installed, i.inner)
	}
	installedMu.Unlock()
	i.active = false

	stats := i.sim.Stats()
	i.sim.logger.Info("interceptor removed",
		zap.Int64("total_requests", stats.TotalRequests),
		zap.Int64("simulated_errors", stats.SimulatedErrors),
		zap.Float64("error_rate", stats.ErrorRate),
		zap.Duration("avg_latency", stats.AverageLatency))
}

// Active reports whether the interceptor is installed.
func (i *Interceptor) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// Do runs one request through the simulated path: network condition first,
// then scenario injection, then the real call. Each call gets its own delay
// timers, so concurrent requests do not serialize.
func (i *Interceptor) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	if !i.Active() || !i.sim.Enabled() {
		return i.inner.Do(ctx, req)
	}

	start := time.Now()
	i.sim.recordRequest()

	if cond := i.sim.networkCondition(); cond != nil {
		if err := cond.Apply(ctx, i.sim.source()); err != nil {
			if _, ok := err.(*NetworkError); ok {
				i.sim.recordNetworkFailure(cond.Name, req.URL, req.Method, time.Since(start))
			}
			return nil, err
		}
	}

	if resp, err := i.sim.Evaluate(ctx, req.URL, req.Method, start); resp != nil || err != nil {
		return resp, err
	}

	resp, err := i.inner.Do(ctx, req)
	if err == nil && resp != nil {
		i.sim.recordSuccess(resp.Duration)
	}
	return resp, err
}
