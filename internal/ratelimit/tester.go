package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/faultline/internal/events"
	"github.com/FairForge/faultline/internal/metrics"
	"github.com/FairForge/faultline/internal/transport"
)

// recoveryBurstFloor is the minimum burst used to trigger throttling when
// the configured window is small.
const recoveryBurstFloor = 50

// Tester drives rate-limit tests against a target endpoint through the
// transport collaborator.
type Tester struct {
	transport transport.Transport
	cfg       Config
	analyzer  *Analyzer
	logger    *zap.Logger
	bus       *events.Bus
	metrics   *metrics.Collector

	// Cooldown separates suite tests so one test's throttling window does
	// not contaminate the next.
	Cooldown time.Duration
}

// NewTester creates a tester. Bus and metrics may be nil.
func NewTester(tr transport.Transport, cfg Config, logger *zap.Logger, bus *events.Bus, m *metrics.Collector) *Tester {
	if cfg.Headers == (HeaderMapping{}) {
		cfg.Headers = DefaultHeaderMapping()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tester{
		transport: tr,
		cfg:       cfg,
		analyzer:  NewAnalyzer(),
		logger:    logger,
		bus:       bus,
		metrics:   m,
		Cooldown:  2 * time.Second,
	}
}

// RunTest executes one test: the schedule is generated up front, requests
// run strictly in schedule order, and per-request faults are folded into
// the result rather than aborting the run. Only a malformed pattern is an
// error.
func (t *Tester) RunTest(ctx context.Context, endpoint string, test Test) (*Result, error) {
	schedule, err := BuildSchedule(test.Pattern)
	if err != nil {
		return nil, fmt.Errorf("test %q: %w", test.Name, err)
	}

	if test.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, test.Timeout)
		defer cancel()
	}

	res := &Result{
		Name:  test.Name,
		RunID: uuid.New().String(),
		Start: time.Now(),
	}
	t.logger.Info("rate limit test started",
		zap.String("test", test.Name),
		zap.String("run_id", res.RunID),
		zap.String("pattern", string(test.Pattern.Type)),
		zap.Int("requests", test.Pattern.RequestCount))
	t.bus.Publish(events.TestStarted, map[string]interface{}{
		"test":   test.Name,
		"run_id": res.RunID,
	})

	var firstLimit time.Time
	for i, delay := range schedule {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				// Deadline reached mid-run: fold the remaining schedule
				// into failed records so the report stays complete.
				for j := i; j < len(schedule); j++ {
					res.Records = append(res.Records, Record{
						Index:     j,
						Timestamp: time.Now(),
						Err:       ctx.Err(),
					})
				}
				goto done
			}
		}

		rec := t.issue(ctx, endpoint, i)
		res.Records = append(res.Records, rec)
		if rec.RateLimited && firstLimit.IsZero() {
			firstLimit = rec.Timestamp
		}
	}

done:
	res.End = time.Now()
	res.Duration = res.End.Sub(res.Start)
	if !firstLimit.IsZero() {
		res.TimeToFirstLimit = firstLimit.Sub(res.Start)
	}

	t.analyzer.Summarize(res)
	Evaluate(res, test.Expect)

	t.logger.Info("rate limit test finished",
		zap.String("test", test.Name),
		zap.Bool("passed", res.Passed),
		zap.Int("successful", res.SuccessfulRequests),
		zap.Int("rate_limited", res.RateLimitedRequests),
		zap.Strings("violations", res.Violations))
	t.bus.Publish(events.TestCompleted, map[string]interface{}{
		"test":         test.Name,
		"run_id":       res.RunID,
		"passed":       res.Passed,
		"rate_limited": res.RateLimitedRequests,
	})
	return res, nil
}

// issue performs one scheduled request and classifies the outcome.
func (t *Tester) issue(ctx context.Context, endpoint string, index int) Record {
	start := time.Now()
	resp, err := t.transport.Do(ctx, transport.Request{Method: "GET", URL: endpoint})
	rec := Record{
		Index:     index,
		Timestamp: start,
		Duration:  time.Since(start),
		Err:       err,
	}

	if err != nil {
		t.metrics.RecordRequest("error", 0, rec.Duration.Seconds())
		t.bus.Publish(events.RequestFailed, map[string]interface{}{
			"index": index,
			"error": err.Error(),
		})
		return rec
	}

	rec.Status = resp.Status
	rec.Duration = resp.Duration
	rec.RateLimited = IsRateLimited(resp, t.cfg.Headers)
	rec.Headers = ExtractHeaders(resp, t.cfg.Headers)

	outcome := "success"
	if rec.RateLimited {
		outcome = "rate_limited"
		t.metrics.RecordRateLimitHit()
	}
	t.metrics.RecordRequest(outcome, resp.Status, resp.Duration.Seconds())
	t.bus.Publish(events.RequestCompleted, map[string]interface{}{
		"index":        index,
		"status":       resp.Status,
		"rate_limited": rec.RateLimited,
	})
	return rec
}

// RunSuite executes tests sequentially with a cool-down between them. An
// error from one test becomes a failed entry; the remaining tests still
// run.
func (t *Tester) RunSuite(ctx context.Context, endpoint string, tests []Test) (*SuiteResult, error) {
	suite := &SuiteResult{}
	start := time.Now()

	for i, test := range tests {
		if i > 0 && t.Cooldown > 0 {
			timer := time.NewTimer(t.Cooldown)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		res, err := t.RunTest(ctx, endpoint, test)
		if err != nil {
			t.logger.Warn("test errored, continuing suite",
				zap.String("test", test.Name), zap.Error(err))
			res = &Result{
				Name:       test.Name,
				RunID:      uuid.New().String(),
				Violations: []string{fmt.Sprintf("test execution failed: %v", err)},
			}
		}
		suite.Results = append(suite.Results, res)
		suite.Total++
		if res.Passed {
			suite.Passed++
		} else {
			suite.Failed++
		}
	}

	suite.Duration = time.Since(start)
	return suite, nil
}

// TestRecovery optionally provokes throttling with an oversized burst, then
// waits out the caller-supplied recovery window and issues one verification
// request.
func (t *Tester) TestRecovery(ctx context.Context, endpoint string, opts RecoveryOptions) (*RecoveryResult, error) {
	res := &RecoveryResult{RecoveryTime: opts.WaitTime}

	if opts.TriggerRateLimit {
		budget := 2 * t.cfg.MaxRequests
		if budget < recoveryBurstFloor {
			budget = recoveryBurstFloor
		}
		t.logger.Info("triggering rate limit", zap.Int("burst_budget", budget))

		for i := 0; i < budget; i++ {
			rec := t.issue(ctx, endpoint, i)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if rec.RateLimited {
				res.RateLimitTriggered = true
				res.RequestsBeforeLimit = i
				break
			}
		}
		if !res.RateLimitTriggered {
			res.Details = fmt.Sprintf("rate limit not triggered within %d requests", budget)
			return res, nil
		}
	}

	if opts.WaitTime > 0 {
		timer := time.NewTimer(opts.WaitTime)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	if opts.VerifyRecovery {
		rec := t.issue(ctx, endpoint, 0)
		res.VerificationStatus = rec.Status
		res.RecoverySuccessful = rec.Err == nil && !rec.RateLimited && rec.Status >= 200 && rec.Status < 400
		switch {
		case res.RecoverySuccessful:
			res.Details = fmt.Sprintf("service recovered after %v; verification request returned %d",
				opts.WaitTime, rec.Status)
		case rec.Err != nil:
			res.Details = fmt.Sprintf("verification request failed after %v wait: %v", opts.WaitTime, rec.Err)
		default:
			res.Details = fmt.Sprintf("service still throttling after %v; verification request returned %d",
				opts.WaitTime, rec.Status)
		}
	} else if res.Details == "" {
		res.Details = fmt.Sprintf("waited %v after throttling; verification skipped", opts.WaitTime)
	}

	return res, nil
}
