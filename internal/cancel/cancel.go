// Package cancel implements the cooperative cancellation token every
// long-running step needs: a single atomic "stop requested" flag plus
// a pause flag, polled at every suspension point (condition polls,
// pre-command yields, soft-start ramp steps, explicit waits).
package cancel

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrCancelled is returned by CheckStopOrPause once Stop has been
// requested.
var ErrCancelled = errors.New("cancelled")

// pollInterval bounds how long a paused goroutine can go without
// re-checking for a resume or an escalation to stop.
const pollInterval = 20 * time.Millisecond

// Token is a shared pause/stop pair threaded through the scheduler and
// every primitive executor it dispatches.
type Token struct {
	stopped atomic.Bool
	paused  atomic.Bool
}

// NewToken returns a fresh, unstopped, unpaused Token.
func NewToken() *Token { return &Token{} }

// RequestStop sets the stop bit. Idempotent.
func (t *Token) RequestStop() { t.stopped.Store(true) }

// RequestPause sets the pause bit. Idempotent.
func (t *Token) RequestPause() { t.paused.Store(true) }

// Resume clears the pause bit.
func (t *Token) Resume() { t.paused.Store(false) }

// Reset clears both bits, used between runs of the same scheduler.
func (t *Token) Reset() {
	t.stopped.Store(false)
	t.paused.Store(false)
}

// IsStopped reports whether stop has been requested.
func (t *Token) IsStopped() bool { return t.stopped.Load() }

// IsPaused reports whether pause is currently in effect.
func (t *Token) IsPaused() bool { return t.paused.Load() }

// CheckStopOrPause is the cooperative yield hook every executor calls
// before emitting a command and on every poll cycle, so primitives and
// the scheduler react promptly to a stop/pause request. It blocks
// while paused, waking periodically to re-check for a pause->stop
// escalation or context cancellation, and returns ErrCancelled the
// instant stop is set.
func (t *Token) CheckStopOrPause(ctx context.Context) error {
	for {
		if t.stopped.Load() {
			return ErrCancelled
		}
		if !t.paused.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
