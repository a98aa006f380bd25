// Package stress drives sustained concurrent load for stress and soak
// testing. Each worker owns its counters; results are merged only after
// every worker has stopped, so the hot path needs no locking.
package stress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FairForge/faultline/internal/events"
	"github.com/FairForge/faultline/internal/metrics"
	"github.com/FairForge/faultline/internal/ratelimit"
	"github.com/FairForge/faultline/internal/transport"
)

// Scenario describes one sustained-load phase.
type Scenario struct {
	Name        string
	Duration    time.Duration
	Concurrency int // number of worker loops
	TargetRPS   int // aggregate rate shared across workers
}

func (s Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario requires a name")
	}
	if s.Duration <= 0 {
		return fmt.Errorf("scenario %q: duration must be positive", s.Name)
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("scenario %q: concurrency must be at least 1", s.Name)
	}
	if s.TargetRPS < 1 {
		return fmt.Errorf("scenario %q: target RPS must be at least 1", s.Name)
	}
	return nil
}

// workerResult is one worker's private tally.
type workerResult struct {
	requests     int
	successes    int
	failures     int
	rateLimited  int
	totalLatency time.Duration
	statusCodes  map[int]int
}

// ScenarioResult is the merged outcome of one scenario.
type ScenarioResult struct {
	Scenario string
	RunID    string
	Start    time.Time
	Duration time.Duration

	TotalRequests       int
	SuccessfulRequests  int
	FailedRequests      int
	RateLimitedRequests int
	StatusCodes         map[int]int
	AvgLatency          time.Duration
	RequestsPerSec      float64
}

// Runner executes stress scenarios sequentially.
type Runner struct {
	transport transport.Transport
	headers   ratelimit.HeaderMapping
	logger    *zap.Logger
	bus       *events.Bus
	metrics   *metrics.Collector

	// Cooldown separates scenarios so one phase's backpressure does not
	// bleed into the next.
	Cooldown time.Duration
}

// NewRunner creates a stress runner. Bus and metrics may be nil.
func NewRunner(tr transport.Transport, headers ratelimit.HeaderMapping, logger *zap.Logger, bus *events.Bus, m *metrics.Collector) *Runner {
	if headers == (ratelimit.HeaderMapping{}) {
		headers = ratelimit.DefaultHeaderMapping()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		transport: tr,
		headers:   headers,
		logger:    logger,
		bus:       bus,
		metrics:   m,
		Cooldown:  2 * time.Second,
	}
}

// Run executes the scenarios in order. Malformed scenario configuration is
// a fatal error before any load is generated; per-request faults are only
// counted.
func (r *Runner) Run(ctx context.Context, endpoint string, scenarios []Scenario) ([]*ScenarioResult, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no stress scenarios supplied")
	}
	for _, sc := range scenarios {
		if err := sc.validate(); err != nil {
			return nil, err
		}
	}

	results := make([]*ScenarioResult, 0, len(scenarios))
	for i, sc := range scenarios {
		if i > 0 && r.Cooldown > 0 {
			timer := time.NewTimer(r.Cooldown)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return results, ctx.Err()
			}
		}

		res, err := r.runScenario(ctx, endpoint, sc)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// runScenario spins up the scenario's workers and merges their tallies
// once all of them have hit the deadline.
func (r *Runner) runScenario(ctx context.Context, endpoint string, sc Scenario) (*ScenarioResult, error) {
	res := &ScenarioResult{
		Scenario: sc.Name,
		RunID:    uuid.New().String(),
		Start:    time.Now(),
	}
	r.logger.Info("stress scenario started",
		zap.String("scenario", sc.Name),
		zap.Int("workers", sc.Concurrency),
		zap.Int("target_rps", sc.TargetRPS),
		zap.Duration("duration", sc.Duration))
	r.bus.Publish(events.TestStarted, map[string]interface{}{
		"scenario": sc.Name,
		"run_id":   res.RunID,
	})

	deadline := res.Start.Add(sc.Duration)
	perWorker := rate.Limit(float64(sc.TargetRPS) / float64(sc.Concurrency))

	tallies := make([]workerResult, sc.Concurrency)
	var wg sync.WaitGroup
	for w := 0; w < sc.Concurrency; w++ {
		wg.Add(1)
		go func(tally *workerResult) {
			defer wg.Done()
			r.workerLoop(ctx, endpoint, deadline, perWorker, tally)
		}(&tallies[w])
	}
	wg.Wait()

	res.Duration = time.Since(res.Start)
	res.StatusCodes = make(map[int]int)
	var totalLatency time.Duration
	for i := range tallies {
		t := &tallies[i]
		res.TotalRequests += t.requests
		res.SuccessfulRequests += t.successes
		res.FailedRequests += t.failures
		res.RateLimitedRequests += t.rateLimited
		totalLatency += t.totalLatency
		for code, n := range t.statusCodes {
			res.StatusCodes[code] += n
		}
	}
	if responded := res.TotalRequests - res.FailedRequests; responded > 0 {
		res.AvgLatency = totalLatency / time.Duration(responded)
	}
	if secs := res.Duration.Seconds(); secs > 0 {
		res.RequestsPerSec = float64(res.TotalRequests) / secs
	}

	r.logger.Info("stress scenario finished",
		zap.String("scenario", sc.Name),
		zap.Int("requests", res.TotalRequests),
		zap.Int("rate_limited", res.RateLimitedRequests),
		zap.Float64("rps", res.RequestsPerSec))
	r.bus.Publish(events.TestCompleted, map[string]interface{}{
		"scenario":     sc.Name,
		"run_id":       res.RunID,
		"requests":     res.TotalRequests,
		"rate_limited": res.RateLimitedRequests,
	})
	return res, nil
}

// workerLoop issues paced requests into its private tally until the
// deadline. No shared state is touched while the loop runs.
func (r *Runner) workerLoop(ctx context.Context, endpoint string, deadline time.Time, pace rate.Limit, tally *workerResult) {
	tally.statusCodes = make(map[int]int)
	limiter := rate.NewLimiter(pace, 1)

	for time.Now().Before(deadline) {
		waitCtx, cancel := context.WithDeadline(ctx, deadline)
		err := limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			return
		}

		start := time.Now()
		resp, err := r.transport.Do(ctx, transport.Request{Method: "GET", URL: endpoint})
		tally.requests++
		if err != nil {
			tally.failures++
			r.metrics.RecordRequest("error", 0, time.Since(start).Seconds())
			continue
		}

		tally.totalLatency += resp.Duration
		tally.statusCodes[resp.Status]++
		switch {
		case ratelimit.IsRateLimited(resp, r.headers):
			tally.rateLimited++
			r.metrics.RecordRateLimitHit()
			r.metrics.RecordRequest("rate_limited", resp.Status, resp.Duration.Seconds())
		case resp.Status >= 200 && resp.Status < 400:
			tally.successes++
			r.metrics.RecordRequest("success", resp.Status, resp.Duration.Seconds())
		default:
			tally.failures++
			r.metrics.RecordRequest("error", resp.Status, resp.Duration.Seconds())
		}
	}
}
