// Package actuator specifies the external actuator driver contract
// consumed by the control core: a textual G-code-dialect
// command sender, plus the command builders the core uses to talk to
// it. The driver implementation itself — the serial link, the MCU
// firmware's dialect quirks — is an external collaborator; this package
// only owns the command vocabulary and the rate limiter that paces
// emission.
package actuator

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

// Driver is the consumed contract: send one command line, get back
// success or a typed error. Implementations own their own internal
// command queueing (commands are a shared resource).
type Driver interface {
	SendCommand(ctx context.Context, line string) error
}

// Limiter wraps a Driver with a token-bucket rate limit
// (golang.org/x/time/rate), protecting the serial link from the
// soft-start ramp's 100ms-spaced bursts and any pathological validated
// program that emits commands faster than the MCU can drain its motion
// queue.
type Limiter struct {
	driver  Driver
	limiter *rate.Limiter
}

// NewLimiter wraps driver with a limiter allowing up to burst commands
// immediately and ratePerSec thereafter.
func NewLimiter(driver Driver, ratePerSec float64, burst int) *Limiter {
	return &Limiter{
		driver:  driver,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// SendCommand waits for a token (or ctx cancellation) before delegating
// to the wrapped driver.
func (l *Limiter) SendCommand(ctx context.Context, line string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return l.driver.SendCommand(ctx, line)
}

// Pin names used by SetPin, matching the firmware's G-code dialect.
const (
	PinValveWaste  = "VALVE_WASTE"
	PinValvePinch  = "VALVE_PINCH"
	PinValvePinchFanA = "VALVE_PINCH_FAN_A"
	PinValvePinchFanB = "VALVE_PINCH_FAN_B"
	PinValveGas    = "VALVE_GAS"
	PinValveRinse  = "VALVE_RINSE"
	PinAirPump     = "AIR_PUMP"
	PinCleanPump   = "CLEAN_PUMP"
	PinHeater      = "HEATER"
)

// MeteringAxis returns the G-code axis letter for metering pump index i
// (0..7 -> A, B, C, D, H, I, J, K), following the "A.. B.. C.. D.. H.. I.. J.. K.."
// eight-axis parallel move.
func MeteringAxis(i int) byte {
	axes := []byte{'A', 'B', 'C', 'D', 'H', 'I', 'J', 'K'}
	return axes[i]
}

// SetPinInt builds "SET_PIN PIN=<name> VALUE=<int>".
func SetPinInt(pin string, value int) string {
	return fmt.Sprintf("SET_PIN PIN=%s VALUE=%d", pin, value)
}

// SetPinFloat builds "SET_PIN PIN=<name> VALUE=<float>".
func SetPinFloat(pin string, value float64) string {
	return fmt.Sprintf("SET_PIN PIN=%s VALUE=%.4f", pin, value)
}

// ManualStepperDisable builds "MANUAL_STEPPER STEPPER=<name> ENABLE=0".
func ManualStepperDisable(name string) string {
	return fmt.Sprintf("MANUAL_STEPPER STEPPER=%s ENABLE=0", name)
}

// RegisterPumpsToAxis builds the REGISTER_PUMPS_TO_AXIS command.
func RegisterPumpsToAxis() string {
	return "REGISTER_PUMPS_TO_AXIS"
}

// AsyncStop builds the out-of-band ENOSE_ASYNC_STOP command that
// bypasses the motion queue and clears the trapezoid queue.
func AsyncStop() string {
	return "ENOSE_ASYNC_STOP"
}

// ParallelMove builds the multi-axis G1 move with one distance per
// metering pump axis and a feedrate derived from speed*60, per
// the start_inject sequence.
func ParallelMove(distancesMM [8]float64, feedrate float64) string {
	var b strings.Builder
	b.WriteString("G1")
	for i, d := range distancesMM {
		fmt.Fprintf(&b, " %c%.4f", MeteringAxis(i), d)
	}
	fmt.Fprintf(&b, " F%.2f", feedrate)
	return b.String()
}
