// Package executor implements the action-executor framework: a
// registry-keyed dispatch surface over the nine primitive actions,
// with preconditions, execution, and duration estimation split into
// separate methods so each concern can be tested independently.
package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enose-rig/enosectl/internal/program"
)

// Executor is the capability surface every primitive implements
// (one Executor per action kind).
type Executor interface {
	// Name is the unique registry key, e.g. "inject".
	Name() string

	// CheckPreconditions is a pure predicate over step and machine
	// state.
	CheckPreconditions(ctx context.Context, step program.Step) program.PreconditionResult

	// Execute performs the action.
	Execute(ctx context.Context, step program.Step) program.ExecutionResult

	// EstimateDuration is a side-effect-free estimate in seconds, used
	// by the validator.
	EstimateDuration(step program.Step) float64

	// IsIdempotent reports whether re-execution with the same
	// idempotency id is safe.
	IsIdempotent() bool

	// RequiredResources lists abstract resource tags the action
	// acquires (e.g. "liquid_pump", "air_pump", "heater").
	RequiredResources() []string
}

// Registry is a thread-safe, process-wide collection of Executors keyed
// by action tag.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	counter   atomic.Int64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor under its own Name(), overwriting any
// previous registration under the same name.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Name()] = e
}

// Get looks up the executor for the given step's action tag. Unknown or
// unset actions return (nil, false), which callers treat as a
// no_executor condition.
func (r *Registry) Get(step program.Step) (Executor, bool) {
	tag := step.Action.Tag()
	if tag == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[tag]
	return e, ok
}

// ByTag looks up an executor directly by registry key, used by tests
// and by the validator to estimate a tag's duration without a full
// Step.
func (r *Registry) ByTag(tag string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[tag]
	return e, ok
}

// NextExecutionID generates an advisory,
// "<name>_<millis_since_epoch>_<counter>" identifier suitable for an
// external persistence layer to deduplicate at-most-once semantics.
// Idempotency ids are never checked by this package itself — they are
// advisory only, left for an external persistence layer to dedupe on.
func (r *Registry) NextExecutionID(name string) string {
	n := r.counter.Add(1)
	return fmt.Sprintf("%s_%d_%d", name, time.Now().UnixMilli(), n)
}
