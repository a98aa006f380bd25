// Package ratelimit probes server-side throttling: it drives time-shaped
// request schedules against an endpoint, classifies the responses, and
// checks the observed behavior against an expectation contract.
package ratelimit

import (
	"fmt"
	"time"
)

// PatternType names a request schedule shape.
type PatternType string

const (
	PatternBurst     PatternType = "burst"
	PatternSustained PatternType = "sustained"
	PatternGradual   PatternType = "gradual"
	PatternSpike     PatternType = "spike"
	PatternCustom    PatternType = "custom"
)

// Pattern describes how a run's requests are spread over time. Delay only
// applies to custom patterns: it is the uniform inter-request delay when no
// explicit list is given, and the pad value past the end of one.
type Pattern struct {
	Type         PatternType
	RequestCount int
	Timeframe    time.Duration
	Delay        time.Duration
	Custom       []time.Duration // explicit inter-request delays
}

// BuildSchedule turns a pattern into an ordered list of inter-request
// delays with exactly RequestCount entries. A RequestCount below one is a
// configuration error; a single-request schedule is one immediate request
// regardless of type.
func BuildSchedule(p Pattern) ([]time.Duration, error) {
	n := p.RequestCount
	if n < 1 {
		return nil, fmt.Errorf("request count must be at least 1, got %d", n)
	}
	if n == 1 {
		return []time.Duration{0}, nil
	}

	switch p.Type {
	case PatternBurst:
		return make([]time.Duration, n), nil

	case PatternSustained:
		interval := p.Timeframe / time.Duration(n)
		schedule := make([]time.Duration, n)
		for i := 1; i < n; i++ {
			schedule[i] = interval
		}
		return schedule, nil

	case PatternGradual:
		// Delays shrink linearly from twice the mean sustained interval
		// down to zero, so the request rate rises over the run.
		mean := p.Timeframe / time.Duration(n)
		schedule := make([]time.Duration, n)
		for i := 0; i < n; i++ {
			schedule[i] = 2 * mean * time.Duration(n-1-i) / time.Duration(n-1)
		}
		return schedule, nil

	case PatternSpike:
		// An immediate burst of ~30% of the requests, then the remainder
		// spread evenly across the timeframe.
		burst := n * 30 / 100
		if burst < 1 {
			burst = 1
		}
		rest := n - burst
		schedule := make([]time.Duration, n)
		if rest > 0 {
			interval := p.Timeframe / time.Duration(rest)
			for i := burst; i < n; i++ {
				schedule[i] = interval
			}
		}
		return schedule, nil

	case PatternCustom:
		if len(p.Custom) == 0 && p.Delay <= 0 {
			return nil, fmt.Errorf("custom pattern requires an explicit delay list or a fixed delay")
		}
		schedule := make([]time.Duration, n)
		if len(p.Custom) == 0 {
			// Uniform pacing at the fixed delay, first request immediate.
			for i := 1; i < n; i++ {
				schedule[i] = p.Delay
			}
			return schedule, nil
		}
		for i := 0; i < n; i++ {
			if i < len(p.Custom) {
				schedule[i] = p.Custom[i]
				continue
			}
			// Entries beyond the supplied list pad at the fixed delay
			// (zero when unset); extras are clipped.
			schedule[i] = p.Delay
		}
		return schedule, nil

	default:
		return nil, fmt.Errorf("unknown pattern type %q", p.Type)
	}
}
