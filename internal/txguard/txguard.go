// Package txguard implements a scoped transaction guard: a resource
// capturing the state a machine was in before a change, that
// force-rolls-back to it unless explicitly committed before the guard
// goes out of scope. It is structured as an explicit scope block with
// a committed flag checked at Close, which callers invoke via defer.
package txguard

import (
	"context"
	"fmt"

	"github.com/enose-rig/enosectl/internal/logging"
)

// Guard is a scoped capture of a machine's state at open time, generic
// over the state type so the same implementation serves both L0
// (program.CoarseState) and L1 (program.ActivityState) guards: two
// parallel guards exist, one over L0 and one over L1.
//
// Guard is conceptually non-copyable: copying a Guard value and closing
// both copies would roll back twice. Callers should only ever hold a
// *Guard and call Release when ownership needs to move (e.g. into a
// longer-lived scope), never copy the value.
type Guard[T any] struct {
	name      string
	initial   T
	committed bool
	logger    *logging.Logger
	forceTo   func(ctx context.Context, target T)
}

// New opens a guard over initial, logging begin. It does not itself
// perform a transition; use NewAt to also move to a target state at
// construction.
func New[T any](logger *logging.Logger, name string, initial T, forceTo func(context.Context, T)) *Guard[T] {
	logger.Info("guard begin", "action", name, "initial", fmt.Sprint(initial))
	return &Guard[T]{name: name, initial: initial, logger: logger, forceTo: forceTo}
}

// NewAt opens a guard over initial and immediately force-transitions to
// target.
func NewAt[T any](ctx context.Context, logger *logging.Logger, name string, initial, target T, forceTo func(context.Context, T)) *Guard[T] {
	g := New(logger, name, initial, forceTo)
	g.forceTo(ctx, target)
	return g
}

// Commit marks the guard committed without any further transition; on
// Close the current state is logged and left as-is.
func (g *Guard[T]) Commit() {
	g.committed = true
}

// CommitWithState transitions to target and marks the guard committed.
func (g *Guard[T]) CommitWithState(ctx context.Context, target T) {
	g.forceTo(ctx, target)
	g.committed = true
}

// CommitAndRestore force-transitions back to the initial state and
// marks the guard committed (a deliberate, successful return to start,
// as opposed to an unplanned rollback).
func (g *Guard[T]) CommitAndRestore(ctx context.Context) {
	g.forceTo(ctx, g.initial)
	g.committed = true
}

// Committed reports whether the guard has been committed.
func (g *Guard[T]) Committed() bool { return g.committed }

// Release marks g as inert (committed, without transitioning) and
// returns g, giving move semantics: the moved-from guard becomes inert
// so a second Close on the old handle is a no-op.
func (g *Guard[T]) Release() *Guard[T] {
	g.committed = true
	return g
}

// Close performs the scope-exit behavior: force-rollback to the initial
// state and a rollback warning if not committed, or a commit log line
// at the current state if it was.
func (g *Guard[T]) Close(ctx context.Context) {
	if g.committed {
		g.logger.Info("guard commit", "action", g.name)
		return
	}
	g.logger.Warn("guard rollback", "action", g.name, "to", fmt.Sprint(g.initial))
	g.forceTo(ctx, g.initial)
	g.committed = true // idempotent: a second Close (e.g. double-defer) is a no-op
}
