// Package retry re-invokes failing operations with configurable backoff.
// Attempt counters are keyed so independent logical operations can retry
// concurrently without interfering with one another.
package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/faultline/internal/events"
)

// Strategy selects the backoff curve.
type Strategy string

const (
	BackoffFixed       Strategy = "fixed"       // base
	BackoffLinear      Strategy = "linear"      // base * n
	BackoffExponential Strategy = "exponential" // base * 2^(n-1)
)

// DefaultKey is used when the caller does not name the operation.
const DefaultKey = "default"

// ErrMaxAttempts wraps the last failure once the attempt budget for a key
// is exhausted.
var ErrMaxAttempts = errors.New("maximum retry attempts exceeded")

// Config tunes a Retrier.
type Config struct {
	MaxAttempts int           // 1 means no retry
	BaseDelay   time.Duration // delay unit fed into the strategy
	Strategy    Strategy
}

// DefaultConfig returns three fixed 100ms attempts.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Strategy: BackoffFixed}
}

// Operation is one unit of retryable work.
type Operation func(ctx context.Context) (interface{}, error)

// Retrier executes operations with retry-and-backoff semantics.
type Retrier struct {
	cfg    Config
	logger *zap.Logger
	bus    *events.Bus

	mu       sync.Mutex
	attempts map[string]int
}

// NewRetrier creates a retrier. A nil bus disables notifications.
func NewRetrier(cfg Config, logger *zap.Logger, bus *events.Bus) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Strategy == "" {
		cfg.Strategy = BackoffFixed
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		attempts: make(map[string]int),
	}
}

// Do runs op under the default key.
func (r *Retrier) Do(ctx context.Context, op Operation) (interface{}, error) {
	return r.DoKeyed(ctx, DefaultKey, op)
}

// DoKeyed runs op, retrying on failure until the configured attempt budget
// for key is spent, then propagates the last failure wrapped in
// ErrMaxAttempts. The key's counter is cleared on terminal success or
// failure so the key can immediately begin a fresh sequence.
func (r *Retrier) DoKeyed(ctx context.Context, key string, op Operation) (interface{}, error) {
	defer r.Reset(key)

	for {
		attempt := r.bump(key)
		r.bus.Publish(events.RetryAttempt, map[string]interface{}{
			"key":     key,
			"attempt": attempt,
		})

		result, err := op(ctx)
		if err == nil {
			r.bus.Publish(events.RetrySuccess, map[string]interface{}{
				"key":      key,
				"attempts": attempt,
			})
			return result, nil
		}

		if attempt >= r.cfg.MaxAttempts {
			r.logger.Debug("retries exhausted",
				zap.String("key", key),
				zap.Int("attempts", attempt),
				zap.Error(err))
			r.bus.Publish(events.RetryFailed, map[string]interface{}{
				"key":      key,
				"attempts": attempt,
				"error":    err.Error(),
			})
			return nil, errors.Join(ErrMaxAttempts, err)
		}

		delay := r.Delay(attempt)
		r.bus.Publish(events.RetryRetry, map[string]interface{}{
			"key":     key,
			"attempt": attempt,
			"delay":   delay.String(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// Delay returns the wait after the given attempt number (1-based).
func (r *Retrier) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch r.cfg.Strategy {
	case BackoffExponential:
		return r.cfg.BaseDelay * time.Duration(1<<(attempt-1))
	case BackoffLinear:
		return r.cfg.BaseDelay * time.Duration(attempt)
	default:
		return r.cfg.BaseDelay
	}
}

// AttemptCount returns the in-flight attempt count for key.
func (r *Retrier) AttemptCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[key]
}

// Reset clears the counter for key.
func (r *Retrier) Reset(key string) {
	r.mu.Lock()
	delete(r.attempts, key)
	r.mu.Unlock()
}

// ResetAll clears every counter.
func (r *Retrier) ResetAll() {
	r.mu.Lock()
	r.attempts = make(map[string]int)
	r.mu.Unlock()
}

func (r *Retrier) bump(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[key]++
	return r.attempts[key]
}
