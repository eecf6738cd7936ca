package primitives

import "github.com/enose-rig/enosectl/internal/executor"

// RegisterAll constructs and registers all nine primitive executors
// against reg, sharing the same deps. Callers that need a borrowed
// Deps.Dispatch reference for Loop should set it before calling this.
func RegisterAll(reg *executor.Registry, deps Deps) {
	reg.Register(NewInject(deps))
	reg.Register(NewDrain(deps))
	reg.Register(NewAcquire(deps))
	reg.Register(NewWash(deps))
	reg.Register(NewWait(deps))
	reg.Register(NewSetState(deps))
	reg.Register(NewSetGasPump(deps))
	reg.Register(NewLoop(deps))
	reg.Register(NewPhaseMarker(deps))
}
