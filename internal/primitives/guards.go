package primitives

import (
	"context"

	"github.com/enose-rig/enosectl/internal/hwstate"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
	"github.com/enose-rig/enosectl/internal/txguard"
)

// guardPair opens two parallel guards: one
// over L1 (the fine-grained phase, whose rollback actually drives
// hardware via Rig.ForceActivity) and one over L0. L0's guard can't
// independently force a rollback of its own — CoarseState is always
// derived from ActivityState via program.Project, and an L0-only
// transition here would desynchronize the two and violate that
// invariant. Its forceTo is a verifying no-op: by the time it runs, L1's
// guard has already restored L0 through the normal cascade, so this
// guard's Close only records the intended symmetry in the log.
type guardPair struct {
	l1 *txguard.Guard[program.ActivityState]
	l0 *txguard.Guard[program.CoarseState]
}

func openGuards(logger *logging.Logger, name string, rig *hwstate.Rig) *guardPair {
	snap := rig.Snapshot()
	l1 := txguard.New(logger, name, snap.Activity, func(ctx context.Context, target program.ActivityState) {
		rig.ForceActivity(ctx, target)
	})
	l0 := txguard.New(logger, name+"_l0", snap.Coarse, func(context.Context, program.CoarseState) {})
	return &guardPair{l1: l1, l0: l0}
}

// requestPhase advances L1 via the checked admissibility path: the
// normal forward step through a primitive's phases.
func (g *guardPair) requestPhase(ctx context.Context, rig *hwstate.Rig, target program.ActivityState) error {
	return rig.RequestActivity(ctx, target)
}

// commitIdle commits both guards with L1 landing back at ActivityIdle,
// the common case for every primitive's success path.
func (g *guardPair) commitIdle(ctx context.Context) {
	g.l1.CommitWithState(ctx, program.ActivityIdle)
	g.l0.Commit()
}

// close runs both guards' scope-exit behavior; safe to call after an
// explicit commit (idempotent) or on the failure path where neither was
// committed, triggering rollback.
func (g *guardPair) close(ctx context.Context) {
	g.l1.Close(ctx)
	g.l0.Close(ctx)
}
