// Package retry wraps fallible operations in bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the retry loop. MaxRetries counts retries after the first
// attempt, so an operation runs at most MaxRetries+1 times.
type Config struct {
	MaxRetries int           `json:"max_retries" koanf:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" koanf:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay" koanf:"max_delay"`
	Multiplier float64       `json:"multiplier" koanf:"multiplier"`
	Jitter     bool          `json:"jitter" koanf:"jitter"`
}

// DefaultConfig returns sensible retry defaults for fast operations.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// OracleConfig returns retry defaults tuned for oracle calls, which are
// slower and rate limited more aggressively than local work.
func OracleConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

// InvocationError reports that every attempt at an operation failed.
type InvocationError struct {
	Attempts int
	LastErr  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *InvocationError) Unwrap() error { return e.LastErr }

// Invoker retries an operation with exponential backoff between attempts.
type Invoker struct {
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an Invoker that sleeps on the real clock.
func New(cfg Config, log zerolog.Logger) *Invoker {
	return &Invoker{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// WithSleeper replaces the backoff sleeper so tests can run without waiting.
func (i *Invoker) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) *Invoker {
	i.sleep = sleep
	return i
}

// WithClock replaces the time source used for duration accounting.
func (i *Invoker) WithClock(now func() time.Time) *Invoker {
	i.now = now
	return i
}

// Do runs op until it succeeds or the attempt budget is spent. It returns
// nil on success, the context's error if the context ends first, and an
// *InvocationError wrapping the last failure once retries are exhausted.
func (i *Invoker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	start := i.now()
	attempts := 0
	var lastErr error

	for attempt := 0; attempt <= i.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				i.log.Debug().
					Int("attempts", attempts).
					Dur("elapsed", i.now().Sub(start)).
					Msg("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if attempt == i.cfg.MaxRetries {
			break
		}

		delay := i.delay(attempt)
		i.log.Debug().
			Err(err).
			Int("attempt", attempts).
			Dur("backoff", delay).
			Msg("operation failed, backing off")

		if serr := i.sleep(ctx, delay); serr != nil {
			return serr
		}
	}

	i.log.Warn().
		Err(lastErr).
		Int("attempts", attempts).
		Dur("elapsed", i.now().Sub(start)).
		Msg("operation failed, retries exhausted")

	return &InvocationError{Attempts: attempts, LastErr: lastErr}
}

// delay computes the backoff before the next attempt: base * multiplier^n,
// capped at MaxDelay, with optional ±10% jitter.
func (i *Invoker) delay(attempt int) time.Duration {
	d := float64(i.cfg.BaseDelay) * math.Pow(i.cfg.Multiplier, float64(attempt))
	if d > float64(i.cfg.MaxDelay) {
		d = float64(i.cfg.MaxDelay)
	}

	if i.cfg.Jitter {
		span := d * 0.1
		d += (rand.Float64()*2 - 1) * span
		if d < 0 {
			d = float64(i.cfg.BaseDelay)
		}
	}

	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
