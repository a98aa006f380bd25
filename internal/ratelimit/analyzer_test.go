package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/FairForge/faultline/internal/transport"
)

func respWith(status int, headers map[string]string) *transport.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &transport.Response{Status: status, Headers: h}
}

func TestIsRateLimited(t *testing.T) {
	mapping := DefaultHeaderMapping()

	assert.True(t, IsRateLimited(respWith(429, nil), mapping))
	assert.True(t, IsRateLimited(respWith(503, nil), mapping))
	assert.True(t, IsRateLimited(respWith(200, map[string]string{"Retry-After": "5"}), mapping),
		"retry-after implies throttling regardless of status")
	assert.False(t, IsRateLimited(respWith(200, nil), mapping))
	assert.False(t, IsRateLimited(nil, mapping))
}

func TestExtractHeaders_UsesMapping(t *testing.T) {
	mapping := HeaderMapping{
		Limit:      "X-Quota-Limit",
		Remaining:  "X-Quota-Left",
		Reset:      "X-Quota-Reset",
		RetryAfter: "X-Try-Later",
	}
	resp := respWith(429, map[string]string{
		"X-Quota-Limit": "100",
		"X-Quota-Left":  "0",
		"X-Quota-Reset": "1700000000",
		"X-Try-Later":   "30",
	})

	values := ExtractHeaders(resp, mapping)
	assert.Equal(t, "100", values.Limit)
	assert.Equal(t, "0", values.Remaining)
	assert.Equal(t, "1700000000", values.Reset)
	assert.Equal(t, "30", values.RetryAfter)

	// Classification follows the mapping too.
	assert.True(t, IsRateLimited(respWith(200, map[string]string{"X-Try-Later": "30"}), mapping))
}

func recordsWithResets(resets ...string) []Record {
	records := make([]Record, len(resets))
	for i, r := range resets {
		records[i] = Record{Headers: HeaderValues{Reset: r}}
	}
	return records
}

func TestDetectStrategy_FixedWindow(t *testing.T) {
	a := NewAnalyzer()

	// Evenly stepping reset timestamps: a fixed window.
	got := a.DetectStrategy(recordsWithResets("1000", "1060", "1120", "1180"))
	assert.Equal(t, "fixed-window", got)

	// Identical reset instants are the degenerate fixed window.
	got = a.DetectStrategy(recordsWithResets("1000", "1000", "1000"))
	assert.Equal(t, "fixed-window", got)
}

func TestDetectStrategy_Unknown(t *testing.T) {
	a := NewAnalyzer()

	assert.Equal(t, "unknown", a.DetectStrategy(recordsWithResets("1000", "1031", "1090", "1300")))
	assert.Equal(t, "unknown", a.DetectStrategy(recordsWithResets("1000")), "one sample is not a pattern")
	assert.Equal(t, "unknown", a.DetectStrategy(recordsWithResets("soon", "later")))
	assert.Equal(t, "unknown", a.DetectStrategy(nil))
}

func TestSummarize_Aggregates(t *testing.T) {
	a := NewAnalyzer()
	res := &Result{
		Duration: 2 * time.Second,
		Records: []Record{
			{Status: 200, Duration: 100 * time.Millisecond},
			{Status: 200, Duration: 300 * time.Millisecond},
			{Status: 429, Duration: 20 * time.Millisecond, RateLimited: true,
				Headers: HeaderValues{Limit: "2", RetryAfter: "1"}},
			{Err: assert.AnError},
		},
	}

	a.Summarize(res)

	assert.Equal(t, 4, res.TotalRequests)
	assert.Equal(t, 2, res.SuccessfulRequests)
	assert.Equal(t, 1, res.RateLimitedRequests)
	assert.Equal(t, 1, res.FailedRequests)
	assert.Equal(t, 2, res.StatusCodes[200])
	assert.Equal(t, 1, res.StatusCodes[429])
	assert.Equal(t, 140*time.Millisecond, res.AvgResponseTime)
	assert.InDelta(t, 2.0, res.RequestsPerSec, 0.001)
	assert.InDelta(t, 0.5, res.SuccessRate, 0.001)
	assert.InDelta(t, 0.25, res.RateLimitRate, 0.001)
	assert.Equal(t, "2", res.Headers.Limit, "last detected header values are kept")
}

func TestEvaluate_Violations(t *testing.T) {
	// Expected throttling never observed.
	res := &Result{SuccessfulRequests: 5}
	Evaluate(res, Expectation{ShouldHitRateLimit: true})
	assert.False(t, res.Passed)
	assert.Len(t, res.Violations, 1)

	// Unexpected throttling observed.
	res = &Result{RateLimitedRequests: 1}
	Evaluate(res, Expectation{ShouldHitRateLimit: false})
	assert.False(t, res.Passed)

	// Too many successes.
	res = &Result{SuccessfulRequests: 11, RateLimitedRequests: 9}
	Evaluate(res, Expectation{ShouldHitRateLimit: true, MaxSuccessfulRequests: 10})
	assert.False(t, res.Passed)
	assert.Len(t, res.Violations, 1)

	// Clean pass.
	res = &Result{SuccessfulRequests: 10, RateLimitedRequests: 10}
	Evaluate(res, Expectation{ShouldHitRateLimit: true, MaxSuccessfulRequests: 10})
	assert.True(t, res.Passed)
	assert.Empty(t, res.Violations)

	// A zero cap is unset, not "no successes allowed".
	res = &Result{SuccessfulRequests: 7, RateLimitedRequests: 3}
	Evaluate(res, Expectation{ShouldHitRateLimit: true})
	assert.True(t, res.Passed)
	assert.Empty(t, res.Violations)
}
