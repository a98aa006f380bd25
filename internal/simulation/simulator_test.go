package simulation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/faultline/internal/events"
	"github.com/FairForge/faultline/internal/metrics"
	"github.com/FairForge/faultline/internal/transport"
)

// fakeTransport counts calls and returns a canned response.
type fakeTransport struct {
	mu     sync.Mutex
	calls  int
	status int
	err    error
}

func (f *fakeTransport) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &transport.Response{
		Status:     status,
		Headers:    http.Header{},
		Duration:   time.Millisecond,
		ReceivedAt: time.Now(),
	}, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func certainScenario(name string, status int) Scenario {
	return Scenario{
		Name:        name,
		Probability: 1.0,
		Type:        ErrorServer,
		StatusCode:  status,
		Retryable:   true,
	}
}

func TestSimulator_CertainScenarioAlwaysFires(t *testing.T) {
	sim := NewSimulator(Config{
		Scenarios: []Scenario{certainScenario("always-500", 500)},
	}, NewSequenceSource(0.99, 0.0), zap.NewNop(), nil, nil)
	sim.Start()

	inner := &fakeTransport{}
	ic := NewInterceptor(sim, inner)
	require.NoError(t, ic.Start())
	defer ic.Stop()

	const n = 20
	for i := 0; i < n; i++ {
		resp, err := ic.Do(context.Background(), transport.Request{URL: "/orders", Method: "GET"})
		require.NoError(t, err)
		assert.Equal(t, 500, resp.Status)
		assert.Equal(t, "always-500", resp.Header(MarkerHeader))
	}

	stats := sim.Stats()
	assert.Equal(t, int64(n), stats.TotalRequests)
	assert.Equal(t, stats.TotalRequests, stats.SimulatedErrors)
	assert.Equal(t, 0, inner.callCount(), "real transport must never be reached")
	assert.Len(t, sim.ErrorLogs(), n)
}

func TestSimulator_GlobalErrorRatePicksRetryable(t *testing.T) {
	sim := NewSimulator(Config{
		GlobalErrorRate: 1.0,
		Scenarios: []Scenario{
			{Name: "non-retryable", Probability: 0, Type: ErrorClient, StatusCode: 400},
			{Name: "retryable", Probability: 0, Type: ErrorServer, StatusCode: 503, Retryable: true},
		},
	}, NewSequenceSource(0.0), zap.NewNop(), nil, nil)
	sim.Start()

	resp, err := sim.Evaluate(context.Background(), "/x", "GET", time.Now())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "retryable", resp.Header(MarkerHeader))
}

func TestSimulator_FirstMatchWinsInOrder(t *testing.T) {
	sim := NewSimulator(Config{
		Scenarios: []Scenario{
			{Name: "first", Probability: 0.5, Type: ErrorServer, StatusCode: 500},
			{Name: "second", Probability: 1.0, Type: ErrorServer, StatusCode: 502},
		},
	}, NewSequenceSource(0.4), zap.NewNop(), nil, nil)
	sim.Start()

	// 0.4 < 0.5 fires the first scenario even though the second is certain.
	resp, err := sim.Evaluate(context.Background(), "/x", "GET", time.Now())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "first", resp.Header(MarkerHeader))
}

func TestSimulator_ScenarioWithoutStatusRaisesTypedError(t *testing.T) {
	sim := NewSimulator(Config{
		Scenarios: []Scenario{{
			Name:        "conn-reset",
			Probability: 1.0,
			Type:        ErrorNetwork,
			Message:     "connection reset by peer",
			Retryable:   true,
		}},
	}, NewSequenceSource(0.0), zap.NewNop(), nil, nil)
	sim.Start()

	resp, err := sim.Evaluate(context.Background(), "/x", "GET", time.Now())
	assert.Nil(t, resp)
	var scErr *ScenarioError
	require.ErrorAs(t, err, &scErr)
	assert.True(t, scErr.Retryable())
	assert.Equal(t, "connection reset by peer", scErr.Error())

	stats := sim.Stats()
	assert.Equal(t, int64(1), stats.NetworkErrors)
}

func TestSimulator_CustomErrorPropagates(t *testing.T) {
	custom := errors.New("boom")
	sim := NewSimulator(Config{
		Scenarios: []Scenario{{Name: "custom", Probability: 1.0, Type: ErrorCustom, Err: custom}},
	}, NewSequenceSource(0.0), zap.NewNop(), nil, nil)
	sim.Start()

	_, err := sim.Evaluate(context.Background(), "/x", "GET", time.Now())
	assert.ErrorIs(t, err, custom)
}

func TestSimulator_ScenarioDelaySuspends(t *testing.T) {
	sim := NewSimulator(Config{
		Scenarios: []Scenario{{
			Name:        "slow-503",
			Probability: 1.0,
			Type:        ErrorServer,
			StatusCode:  503,
			Delay:       40 * time.Millisecond,
		}},
	}, NewSequenceSource(0.0), zap.NewNop(), nil, nil)
	sim.Start()

	start := time.Now()
	resp, err := sim.Evaluate(context.Background(), "/x", "GET", start)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSimulator_DisabledNeverInjects(t *testing.T) {
	sim := NewSimulator(Config{
		Scenarios: []Scenario{certainScenario("always", 500)},
	}, NewSequenceSource(0.0), zap.NewNop(), nil, nil)

	resp, err := sim.Evaluate(context.Background(), "/x", "GET", time.Now())
	assert.Nil(t, resp)
	assert.NoError(t, err)
}

func TestSimulator_AddRemoveScenario(t *testing.T) {
	sim := NewSimulator(Config{}, NewSequenceSource(0.0), zap.NewNop(), nil, nil)
	sim.Start()

	sim.AddScenario(certainScenario("extra", 500))
	resp, err := sim.Evaluate(context.Background(), "/x", "GET", time.Now())
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, sim.RemoveScenario("extra"))
	assert.False(t, sim.RemoveScenario("extra"))

	resp, err = sim.Evaluate(context.Background(), "/x", "GET", time.Now())
	assert.Nil(t, resp)
	assert.NoError(t, err)
}

func TestSimulator_ProbabilitiesClamped(t *testing.T) {
	sim := NewSimulator(Config{
		GlobalErrorRate: 3.5,
		Scenarios:       []Scenario{{Name: "hot", Probability: 12}},
	}, NewSequenceSource(0.0), zap.NewNop(), nil, nil)

	sim.mu.Lock()
	defer sim.mu.Unlock()
	assert.Equal(t, 1.0, sim.cfg.GlobalErrorRate)
	assert.Equal(t, 1.0, sim.cfg.Scenarios[0].Probability)
}

func TestSimulator_ClearLogsAndResetStats(t *testing.T) {
	sim := NewSimulator(Config{
		Scenarios: []Scenario{certainScenario("x", 500)},
	}, NewSequenceSource(0.99, 0.0), zap.NewNop(), nil, nil)
	sim.Start()

	_, _ = sim.Evaluate(context.Background(), "/x", "GET", time.Now())
	require.NotEmpty(t, sim.ErrorLogs())
	require.NotZero(t, sim.Stats().SimulatedErrors)

	sim.ClearLogs()
	assert.Empty(t, sim.ErrorLogs())

	sim.ResetStats()
	assert.Zero(t, sim.Stats().SimulatedErrors)
	assert.Zero(t, sim.Stats().TotalRequests)
}

func TestSimulator_StopEmitsSnapshotEvent(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.SimulatorStopped)
	defer sub.Unsubscribe()

	sim := NewSimulator(Config{}, NewSequenceSource(0.0), zap.NewNop(), bus, nil)
	sim.Start()
	sim.Stop()

	ev := <-sub.C
	assert.Equal(t, events.SimulatorStopped, ev.Type)
	assert.Contains(t, ev.Fields, "total_requests")
}

func TestSimulator_InjectedFaultsReachCollector(t *testing.T) {
	collector := metrics.NewCollector()
	sim := NewSimulator(Config{
		Scenarios: []Scenario{certainScenario("overloaded", http.StatusServiceUnavailable)},
	}, NewSequenceSource(0.0), zap.NewNop(), nil, collector)
	sim.Start()

	for i := 0; i < 3; i++ {
		resp, err := sim.Evaluate(context.Background(), "/orders", "GET", time.Now())
		require.NoError(t, err)
		require.NotNil(t, resp)
	}

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `faultline_simulated_faults_total{type="server"} 3`)
}
