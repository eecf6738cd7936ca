// Package sensor specifies the external load-cell / scale and
// gas-sensor-board contracts consumed by the control core.
// Both are producer-consumer push sources in the real rig; this package
// only defines the contract and a small in-memory fake useful for
// tests.
package sensor

import "context"

// LoadCell is the consumed contract for the gravimetric scale.
type LoadCell interface {
	// GetWeight returns the current reading in grams and whether the
	// driver's own smoothing reports it as stable.
	GetWeight(ctx context.Context) (grams float64, stable bool, err error)
}

// HeaterCycleCounter is the consumed contract for counting heater-cycle
// phase markers pushed by the sensor board, used by Acquire's
// heater_cycles termination mode.
type HeaterCycleCounter interface {
	// HeaterCycles returns the number of full heater cycles observed
	// since the counter was last reset.
	HeaterCycles(ctx context.Context) (int, error)
}

// Fake is an in-memory LoadCell/HeaterCycleCounter for tests: the
// weight and stability are set directly by the test.
type Fake struct {
	Grams  float64
	Stable bool
	Cycles int
	Err    error
}

func (f *Fake) GetWeight(ctx context.Context) (float64, bool, error) {
	return f.Grams, f.Stable, f.Err
}

func (f *Fake) HeaterCycles(ctx context.Context) (int, error) {
	return f.Cycles, f.Err
}
