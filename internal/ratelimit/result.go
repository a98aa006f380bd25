package ratelimit

import (
	"time"

	"github.com/FairForge/faultline/internal/retry"
)

// HeaderMapping names the rate-limit headers a service uses. Services vary
// (X-RateLimit-*, IETF RateLimit-*, custom), so the tester never hardcodes
// header names.
type HeaderMapping struct {
	Limit      string `yaml:"limit"`
	Remaining  string `yaml:"remaining"`
	Reset      string `yaml:"reset"`
	RetryAfter string `yaml:"retry_after"`
}

// DefaultHeaderMapping covers the traditional X- prefixed headers.
func DefaultHeaderMapping() HeaderMapping {
	return HeaderMapping{
		Limit:      "X-RateLimit-Limit",
		Remaining:  "X-RateLimit-Remaining",
		Reset:      "X-RateLimit-Reset",
		RetryAfter: "Retry-After",
	}
}

// IETFHeaderMapping covers the IETF draft headers without the X- prefix.
func IETFHeaderMapping() HeaderMapping {
	return HeaderMapping{
		Limit:      "RateLimit-Limit",
		Remaining:  "RateLimit-Remaining",
		Reset:      "RateLimit-Reset",
		RetryAfter: "Retry-After",
	}
}

// Config describes the throttling contract under test.
type Config struct {
	Strategy    string
	Window      time.Duration
	MaxRequests int
	BurstSize   int
	Backoff     retry.Strategy
	Headers     HeaderMapping
}

// Expectation is the pass/fail contract for one test.
type Expectation struct {
	// MaxSuccessfulRequests caps the successes a passing run may record.
	// Zero means no cap: a yaml expectation that omits the field decodes
	// to zero, so "no successes allowed" cannot be expressed.
	MaxSuccessfulRequests int
	ExpectedStatus        int
	ShouldHitRateLimit    bool
	RetryAfterExpected    bool
	ResetTimeExpected     bool
	BackoffExpected       bool
}

// Test couples a request pattern with its expectation.
type Test struct {
	Name        string
	Description string
	Pattern     Pattern
	Expect      Expectation
	Timeout     time.Duration
}

// HeaderValues holds the raw rate-limit header values seen on a response.
type HeaderValues struct {
	Limit      string
	Remaining  string
	Reset      string
	RetryAfter string
}

func (h HeaderValues) empty() bool {
	return h.Limit == "" && h.Remaining == "" && h.Reset == "" && h.RetryAfter == ""
}

// Record captures one request's outcome.
type Record struct {
	Index       int
	Timestamp   time.Time
	Status      int
	Duration    time.Duration
	Err         error
	RateLimited bool
	Headers     HeaderValues
}

// Result is the immutable report for one test run.
type Result struct {
	Name     string
	RunID    string
	Start    time.Time
	End      time.Time
	Duration time.Duration

	TotalRequests       int
	SuccessfulRequests  int
	RateLimitedRequests int
	FailedRequests      int
	StatusCodes         map[int]int

	AvgResponseTime  time.Duration
	RequestsPerSec   float64
	SuccessRate      float64
	RateLimitRate    float64
	TimeToFirstLimit time.Duration // zero when no limit was observed

	Headers          HeaderValues // last values detected on the wire
	DetectedStrategy string       // informational heuristic, never affects Passed

	Passed     bool
	Violations []string

	Records []Record
}

// SuiteResult aggregates a sequential run of multiple tests.
type SuiteResult struct {
	Results  []*Result
	Total    int
	Passed   int
	Failed   int
	Duration time.Duration
}

// RecoveryOptions controls a recovery probe.
type RecoveryOptions struct {
	TriggerRateLimit bool
	WaitTime         time.Duration
	VerifyRecovery   bool
}

// RecoveryResult reports how the service behaved after its throttling
// window elapsed.
type RecoveryResult struct {
	RateLimitTriggered  bool
	RecoveryTime        time.Duration
	RecoverySuccessful  bool
	VerificationStatus  int
	RequestsBeforeLimit int
	Details             string
}
