package app

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/enose-rig/enosectl/internal/calibration"
	"github.com/enose-rig/enosectl/internal/cancel"
	"github.com/enose-rig/enosectl/internal/hwstate"
	"github.com/enose-rig/enosectl/internal/peripheral"
	"github.com/enose-rig/enosectl/internal/primitives"
	"github.com/enose-rig/enosectl/internal/program"
	"github.com/enose-rig/enosectl/internal/sensor"
	"github.com/enose-rig/enosectl/internal/sweep"
)

// sweepPollInterval is how often waitForEmptyBottle re-samples the load
// cell while waiting for the bottle to settle at empty.
const sweepPollInterval = 200 * time.Millisecond

// errSweepWaitTimeout is returned by waitForEmptyBottle when its
// deadline elapses before the reading settles.
var errSweepWaitTimeout = errors.New("sweep_wait_for_empty_bottle_timeout")

// sweepCallbacks adapts the rig, load cell, and volume calibration into
// the five collaborator hooks the Test/Sweep Controller's per-cycle
// state machine drives off of.
func sweepCallbacks(rig *hwstate.Rig, loadCell sensor.LoadCell, volume calibration.VolumeToDistance, ew *primitives.EmptyWeightTracker) sweep.Callbacks {
	tok := cancel.NewToken()

	return sweep.Callbacks{
		SetSystemState: func(ctx context.Context, target program.CoarseState) error {
			rig.ForceActivity(ctx, program.Lift(target))
			return nil
		},
		StartInjection: func(ctx context.Context, pumpVolumesML [program.PumpCount]float64, speedMMPerS float64) error {
			var distances [program.PumpCount]float64
			for i, ml := range pumpVolumesML {
				distances[i] = volume.MMForML(i, ml)
			}
			rig.StartInject(ctx, peripheral.InjectParams{DistancesMM: distances, SpeedMMPerS: speedMMPerS})
			return nil
		},
		WaitForEmptyBottle: func(ctx context.Context, toleranceG, windowS, timeoutS float64) error {
			return waitForEmptyBottle(ctx, tok, loadCell, ew, toleranceG, windowS, timeoutS)
		},
		GetWeight: func(ctx context.Context) (float64, bool, error) {
			return loadCell.GetWeight(ctx)
		},
		ResetDynamicEmptyWeight: func() {
			ew.Reset()
		},
	}
}

// waitForEmptyBottle polls loadCell until its reading sits within
// tolerance of the running empty-weight baseline for windowS consecutive
// seconds, or until timeoutS elapses. With no baseline yet set it falls
// back to the load cell driver's own stability flag, mirroring Drain's
// observation algorithm exactly (see internal/primitives/stability.go's
// observeEmptyStable), since a sweep's first cycle has no prior empty
// reading to compare against.
func waitForEmptyBottle(ctx context.Context, tok *cancel.Token, loadCell sensor.LoadCell, ew *primitives.EmptyWeightTracker, tolerance, windowS, timeoutS float64) error {
	deadline := time.Now().Add(time.Duration(timeoutS * float64(time.Second)))
	var stableSince time.Time

	for {
		if err := tok.CheckStopOrPause(ctx); err != nil {
			return err
		}

		grams, stable, err := loadCell.GetWeight(ctx)
		if err != nil {
			return err
		}

		baseline, hasBaseline := ew.Get()
		withinTolerance := stable
		if hasBaseline {
			withinTolerance = math.Abs(grams-baseline) <= tolerance
		}

		if withinTolerance {
			if stableSince.IsZero() {
				stableSince = time.Now()
			}
			if time.Since(stableSince).Seconds() >= windowS {
				return nil
			}
		} else {
			stableSince = time.Time{}
		}

		if time.Now().After(deadline) {
			return errSweepWaitTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sweepPollInterval):
		}
	}
}
