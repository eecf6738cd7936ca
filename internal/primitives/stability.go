package primitives

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/enose-rig/enosectl/internal/cancel"
	"github.com/enose-rig/enosectl/internal/sensor"
)

// ErrTimeout is returned by the observation helpers below when their
// deadline elapses before the termination condition is met.
var ErrTimeout = errors.New("weight_stability_timeout")

// sleepOrCancel waits pollInterval, returning early with an error if the
// token requests stop/pause-then-stop or ctx is cancelled.
func sleepOrCancel(ctx context.Context, tok *cancel.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pollInterval):
	}
	return tok.CheckStopOrPause(ctx)
}

// observeEmptyStable polls loadCell until its reading sits within
// tolerance of baseline for windowS consecutive seconds, or until
// timeoutS elapses. With no baseline yet set it falls back to the load
// cell driver's own stability flag, since Drain's very first cycle has
// no prior empty-weight observation to compare against.
// Shared by Drain and Wait's kEmpty condition, so kEmpty mirrors
// Drain's own observation algorithm exactly.
func observeEmptyStable(ctx context.Context, tok *cancel.Token, loadCell sensor.LoadCell, tracker *EmptyWeightTracker, tolerance, windowS, timeoutS float64) (float64, error) {
	deadline := time.Now().Add(time.Duration(timeoutS * float64(time.Second)))
	var stableSince time.Time

	for {
		if err := tok.CheckStopOrPause(ctx); err != nil {
			return 0, err
		}

		grams, stable, err := loadCell.GetWeight(ctx)
		if err != nil {
			return 0, err
		}

		baseline, hasBaseline := tracker.Get()
		withinTolerance := stable
		if hasBaseline {
			withinTolerance = math.Abs(grams-baseline) <= tolerance
		}

		if withinTolerance {
			if stableSince.IsZero() {
				stableSince = time.Now()
			}
			if time.Since(stableSince).Seconds() >= windowS {
				return grams, nil
			}
		} else {
			stableSince = time.Time{}
		}

		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		if err := sleepOrCancel(ctx, tok); err != nil {
			return 0, err
		}
	}
}

// observeWeightTarget polls loadCell until its reading is within
// tolerance of target, or until timeoutS elapses.
func observeWeightTarget(ctx context.Context, tok *cancel.Token, loadCell sensor.LoadCell, target, tolerance, timeoutS float64) (float64, error) {
	deadline := time.Now().Add(time.Duration(timeoutS * float64(time.Second)))

	for {
		if err := tok.CheckStopOrPause(ctx); err != nil {
			return 0, err
		}

		grams, _, err := loadCell.GetWeight(ctx)
		if err != nil {
			return 0, err
		}
		if math.Abs(grams-target) <= tolerance {
			return grams, nil
		}

		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		if err := sleepOrCancel(ctx, tok); err != nil {
			return 0, err
		}
	}
}

// weightSample is one (time, grams) pair kept in observeSlopeStable's
// sliding window.
type weightSample struct {
	at    time.Time
	grams float64
}

// observeSlopeStable polls loadCell until the slope of its readings over
// the trailing windowS seconds falls at or below maxSlope (grams/sec),
// requiring a full window of samples (never fewer than the two most
// recent) before it can conclude, or until
// timeoutS elapses. This is Acquire's stability-mode termination,
// distinct from Drain/Wait's fixed-tolerance criterion because Acquire
// cares about the rate of change flattening out, not an absolute target.
func observeSlopeStable(ctx context.Context, tok *cancel.Token, loadCell sensor.LoadCell, maxSlope, windowS, timeoutS float64) (float64, error) {
	deadline := time.Now().Add(time.Duration(timeoutS * float64(time.Second)))
	window := time.Duration(windowS * float64(time.Second))
	var samples []weightSample

	for {
		if err := tok.CheckStopOrPause(ctx); err != nil {
			return 0, err
		}

		grams, _, err := loadCell.GetWeight(ctx)
		if err != nil {
			return 0, err
		}
		now := time.Now()
		samples = append(samples, weightSample{at: now, grams: grams})

		cutoff := now.Add(-window)
		i := 0
		for i < len(samples)-2 && samples[i].at.Before(cutoff) {
			i++
		}
		samples = samples[i:]

		windowFull := len(samples) >= 2 && now.Sub(samples[0].at) >= window-pollInterval
		if windowFull {
			elapsed := samples[len(samples)-1].at.Sub(samples[0].at).Seconds()
			if elapsed > 0 {
				slope := (samples[len(samples)-1].grams - samples[0].grams) / elapsed
				if math.Abs(slope) <= maxSlope {
					return grams, nil
				}
			}
		}

		if now.After(deadline) {
			return 0, ErrTimeout
		}
		if err := sleepOrCancel(ctx, tok); err != nil {
			return 0, err
		}
	}
}

// observeLoadCellStable polls loadCell until its own stability flag is
// true, used when Inject has no computable expected-weight target to
// compare against (every volume-mode injection).
func observeLoadCellStable(ctx context.Context, tok *cancel.Token, loadCell sensor.LoadCell, timeoutS float64) (float64, error) {
	deadline := time.Now().Add(time.Duration(timeoutS * float64(time.Second)))

	for {
		if err := tok.CheckStopOrPause(ctx); err != nil {
			return 0, err
		}

		grams, stable, err := loadCell.GetWeight(ctx)
		if err != nil {
			return 0, err
		}
		if stable {
			return grams, nil
		}

		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		if err := sleepOrCancel(ctx, tok); err != nil {
			return 0, err
		}
	}
}

// observeHeaterCycles polls counter until it reports at least target
// cycles, or until timeoutS elapses.
func observeHeaterCycles(ctx context.Context, tok *cancel.Token, counter sensor.HeaterCycleCounter, target int, timeoutS float64) error {
	deadline := time.Now().Add(time.Duration(timeoutS * float64(time.Second)))

	for {
		if err := tok.CheckStopOrPause(ctx); err != nil {
			return err
		}

		n, err := counter.HeaterCycles(ctx)
		if err != nil {
			return err
		}
		if n >= target {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrTimeout
		}
		if err := sleepOrCancel(ctx, tok); err != nil {
			return err
		}
	}
}

// observeDuration sleeps for durationS, checking for cancellation every
// pollInterval rather than blocking the whole span in one sleep.
func observeDuration(ctx context.Context, tok *cancel.Token, durationS float64) error {
	deadline := time.Now().Add(time.Duration(durationS * float64(time.Second)))
	for time.Now().Before(deadline) {
		if err := tok.CheckStopOrPause(ctx); err != nil {
			return err
		}
		if err := sleepOrCancel(ctx, tok); err != nil {
			return err
		}
	}
	return tok.CheckStopOrPause(ctx)
}
