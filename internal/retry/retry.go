// Package retry centralizes the per-unit retry state machine for provider
// calls.
//
// Every unit of work (one sentence at one speed) moves through
// Pending → Attempting → {Succeeded | Retrying → Attempting | Failed}. The
// policy lives in one place: bounded attempts, linear backoff between them,
// a hard timeout around every attempt, and failure-kind classification
// deciding whether another attempt is worthwhile. Callers get back a single
// Outcome per unit and carry on; a failed unit never aborts its siblings.
//
// All functions are safe for concurrent use; Config is read-only after New.
package retry

import (
	"context"
	"time"

	"github.com/withleedh/learning-youtube-sub000/pkg/tts"
)

// State represents where a unit of work is in its retry lifecycle.
type State int

const (
	// StatePending means no attempt has started yet.
	StatePending State = iota

	// StateAttempting means a provider call is in flight.
	StateAttempting

	// StateRetrying means the last attempt failed with a retryable kind and
	// the unit is waiting out its backoff delay.
	StateRetrying

	// StateSucceeded is terminal: some attempt returned a result.
	StateSucceeded

	// StateFailed is terminal: attempts were exhausted, the failure kind was
	// not retryable, or the run was cancelled.
	StateFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case. Injectable so tests can observe delays without waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Notice is delivered to the Notify hook after a failed attempt, before the
// backoff wait for the next one.
type Notice struct {
	// Attempt is the 1-based number of the attempt that just failed.
	Attempt int

	// MaxAttempts is the configured attempt budget.
	MaxAttempts int

	// Kind is the classified failure kind of the attempt.
	Kind tts.Kind

	// Delay is the backoff wait before the next attempt.
	Delay time.Duration

	// Err is the attempt's error.
	Err error
}

// Config holds the retry policy. Zero-value fields are replaced with
// defaults by [Do].
type Config struct {
	// MaxAttempts is the attempt budget per unit. Default: 3.
	MaxAttempts int

	// BaseDelay scales the linear backoff: after failed attempt n the unit
	// waits n * BaseDelay. Default: 2s.
	BaseDelay time.Duration

	// AttemptTimeout bounds each individual provider call, independent of
	// the backoff. Default: 30s.
	AttemptTimeout time.Duration

	// Notify, when set, observes every retryable failure before its backoff
	// wait. Quota kinds are the caller's cue that a key was rotated.
	Notify func(Notice)

	// Sleep performs the backoff wait. Default: context-aware timer sleep.
	Sleep SleepFunc
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.Sleep == nil {
		c.Sleep = sleepWithContext
	}
	return c
}

// Outcome is the terminal result of driving one unit through the state
// machine.
type Outcome struct {
	// State is StateSucceeded or StateFailed.
	State State

	// Attempts is how many provider calls were made.
	Attempts int

	// Err is the last attempt's error when State is StateFailed, nil
	// otherwise.
	Err error
}

// Do drives fn through the retry state machine and returns its value along
// with the unit's outcome.
//
// Auth failures are terminal on the spot. Every other failure kind is
// retried until the attempt budget is spent, waiting attempt*BaseDelay in
// between. Each call to fn runs under its own AttemptTimeout. Cancellation
// of ctx ends the unit immediately with the context's error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, Outcome) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, Outcome{State: StateFailed, Attempts: attempt - 1, Err: err}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, cfg.AttemptTimeout)
		val, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return val, Outcome{State: StateSucceeded, Attempts: attempt}
		}
		lastErr = err

		kind, _ := tts.KindOf(err)
		if !kind.Retryable() || attempt == cfg.MaxAttempts {
			return zero, Outcome{State: StateFailed, Attempts: attempt, Err: lastErr}
		}

		delay := time.Duration(attempt) * cfg.BaseDelay
		if cfg.Notify != nil {
			cfg.Notify(Notice{
				Attempt:     attempt,
				MaxAttempts: cfg.MaxAttempts,
				Kind:        kind,
				Delay:       delay,
				Err:         err,
			})
		}
		if err := cfg.Sleep(ctx, delay); err != nil {
			return zero, Outcome{State: StateFailed, Attempts: attempt, Err: err}
		}
	}

	// Unreachable: the loop always returns.
	return zero, Outcome{State: StateFailed, Attempts: cfg.MaxAttempts, Err: lastErr}
}

// sleepWithContext waits for d unless ctx is done first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
