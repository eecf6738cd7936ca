// Package events defines the event-sink contract the control core
// publishes to: typed events describing state transitions, phase
// markers, step lifecycle, validation completion, and sweep cycle
// completion.
//
// The default emitter is a buffered channel with a sync.RWMutex-guarded
// closed flag, so Emit never panics on a closed sink and Subscribe can
// be called more than once.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/enose-rig/enosectl/internal/program"
)

// Kind discriminates the Event union.
type Kind int

const (
	KindStateChanged Kind = iota
	KindPhaseMarker
	KindStepStarted
	KindStepCompleted
	KindStepFailed
	KindValidationCompleted
	KindTestCycleCompleted
)

// Event is the single typed value pushed through the sink. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind Kind
	At   time.Time

	// state_changed
	OldState program.CoarseState
	NewState program.CoarseState
	Level    program.ActivityState

	// phase_marker
	PhaseName string
	IsStart   bool

	// step_started / step_completed / step_failed
	StepPath string
	StepName string
	Duration time.Duration
	Code     string
	Message  string

	// validation_completed
	Validation *program.ValidationResult

	// test_cycle_completed
	CycleResult any
}

// Emitter is the produced side of the event sink.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
	Subscribe() Subscriber
	Close()
}

// Subscriber reads events published to an Emitter.
type Subscriber interface {
	Events() <-chan Event
	Close()
}

// ChanEmitter is the default Emitter: a shared buffered channel fed by
// Emit and drained by every Subscriber (subscribers share the single
// channel rather than fanning out — callers that need independent feeds
// should wrap with their own broadcast).
type ChanEmitter struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

// NewChanEmitter creates a ChanEmitter with the given channel buffer
// size. A buffer of 0 makes Emit block until a subscriber reads.
func NewChanEmitter(buffer int) *ChanEmitter {
	return &ChanEmitter{ch: make(chan Event, buffer)}
}

// Emit publishes ev, respecting ctx cancellation and silently dropping
// the event if the sink is already closed.
func (e *ChanEmitter) Emit(ctx context.Context, ev Event) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return
	}
	e.mu.RUnlock()

	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	select {
	case e.ch <- ev:
	case <-ctx.Done():
	}
}

// Subscribe returns a Subscriber over the shared channel.
func (e *ChanEmitter) Subscribe() Subscriber {
	return &chanSubscriber{ch: e.ch}
}

// Close closes the underlying channel; subsequent Emit calls are no-ops.
func (e *ChanEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}

type chanSubscriber struct {
	ch <-chan Event
}

func (s *chanSubscriber) Events() <-chan Event { return s.ch }

// Close is a no-op: the channel is shared and only ChanEmitter.Close
// actually closes it.
func (s *chanSubscriber) Close() {}
