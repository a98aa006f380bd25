package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/FairForge/faultline/internal/transport"
)

// IsRateLimited classifies a response as throttled: status 429 or 503, or a
// retry-after-equivalent header present regardless of status.
func IsRateLimited(resp *transport.Response, headers HeaderMapping) bool {
	if resp == nil {
		return false
	}
	if resp.Status == http.StatusTooManyRequests || resp.Status == http.StatusServiceUnavailable {
		return true
	}
	return headers.RetryAfter != "" && resp.Header(headers.RetryAfter) != ""
}

// ExtractHeaders pulls the mapped rate-limit header values off a response.
func ExtractHeaders(resp *transport.Response, headers HeaderMapping) HeaderValues {
	if resp == nil {
		return HeaderValues{}
	}
	return HeaderValues{
		Limit:      resp.Header(headers.Limit),
		Remaining:  resp.Header(headers.Remaining),
		Reset:      resp.Header(headers.Reset),
		RetryAfter: resp.Header(headers.RetryAfter),
	}
}

// Analyzer derives aggregate statistics and a best-effort strategy guess
// from a run's records. Strategy detection is heuristic pattern matching,
// deliberately isolated from pass/fail determination.
type Analyzer struct {
	// ResetVarianceTolerance bounds the relative spread of reset-delta
	// values still considered a fixed window. Unvalidated tunable.
	ResetVarianceTolerance float64
}

// NewAnalyzer returns an analyzer with the default 10% tolerance.
func NewAnalyzer() *Analyzer {
	return &Analyzer{ResetVarianceTolerance: 0.10}
}

// Summarize fills the aggregate fields of a result from its records.
func (a *Analyzer) Summarize(res *Result) {
	res.StatusCodes = make(map[int]int)
	var totalDuration time.Duration
	responded := 0

	for _, rec := range res.Records {
		res.TotalRequests++
		if rec.Err != nil {
			res.FailedRequests++
			continue
		}
		res.StatusCodes[rec.Status]++
		totalDuration += rec.Duration
		responded++

		switch {
		case rec.RateLimited:
			res.RateLimitedRequests++
		case rec.Status >= 200 && rec.Status < 400:
			res.SuccessfulRequests++
		default:
			res.FailedRequests++
		}

		if !rec.Headers.empty() {
			res.Headers = rec.Headers
		}
	}

	if responded > 0 {
		res.AvgResponseTime = totalDuration / time.Duration(responded)
	}
	if secs := res.Duration.Seconds(); secs > 0 {
		res.RequestsPerSec = float64(res.TotalRequests) / secs
	}
	if res.TotalRequests > 0 {
		res.SuccessRate = float64(res.SuccessfulRequests) / float64(res.TotalRequests)
		res.RateLimitRate = float64(res.RateLimitedRequests) / float64(res.TotalRequests)
	}

	res.DetectedStrategy = a.DetectStrategy(res.Records)
}

// DetectStrategy guesses the server's throttling algorithm from captured
// reset header values: near-constant deltas between successive resets look
// like a fixed window. Anything else is "unknown".
func (a *Analyzer) DetectStrategy(records []Record) string {
	var resets []float64
	for _, rec := range records {
		if rec.Headers.Reset == "" {
			continue
		}
		v, err := strconv.ParseFloat(rec.Headers.Reset, 64)
		if err != nil {
			continue
		}
		resets = append(resets, v)
	}
	if len(resets) < 2 {
		return "unknown"
	}

	deltas := make([]float64, 0, len(resets)-1)
	for i := 1; i < len(resets); i++ {
		deltas = append(deltas, math.Abs(resets[i]-resets[i-1]))
	}

	var sum float64
	for _, d := range deltas {
		sum += d
	}
	mean := sum / float64(len(deltas))
	if mean == 0 {
		// Every response pointed at the same reset instant.
		return "fixed-window"
	}

	var variance float64
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(deltas))

	if math.Sqrt(variance) <= a.ResetVarianceTolerance*mean {
		return "fixed-window"
	}
	return "unknown"
}

// Evaluate records violations of the expectation contract and sets Passed.
// It is a pure function of the observed counters.
func Evaluate(res *Result, expect Expectation) {
	if expect.ShouldHitRateLimit && res.RateLimitedRequests == 0 {
		res.Violations = append(res.Violations,
			"expected to hit the rate limit but no rate-limited responses were observed")
	}
	if !expect.ShouldHitRateLimit && res.RateLimitedRequests > 0 {
		res.Violations = append(res.Violations,
			"expected no rate limiting but "+strconv.Itoa(res.RateLimitedRequests)+" rate-limited responses were observed")
	}
	if expect.MaxSuccessfulRequests > 0 && res.SuccessfulRequests > expect.MaxSuccessfulRequests {
		res.Violations = append(res.Violations,
			"successful requests ("+strconv.Itoa(res.SuccessfulRequests)+
				") exceeded the allowed maximum ("+strconv.Itoa(expect.MaxSuccessfulRequests)+")")
	}
	res.Passed = len(res.Violations) == 0
}
