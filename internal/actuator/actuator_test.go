package actuator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDriver struct {
	mu    sync.Mutex
	sent  []string
	calls int
}

func (d *recordingDriver) SendCommand(_ context.Context, line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, line)
	d.calls++
	return nil
}

func TestMeteringAxisMapsIndexToTheEightAxisLetters(t *testing.T) {
	want := []byte{'A', 'B', 'C', 'D', 'H', 'I', 'J', 'K'}
	for i, w := range want {
		assert.Equal(t, w, MeteringAxis(i))
	}
}

func TestSetPinIntFormatsTheCommandLine(t *testing.T) {
	assert.Equal(t, "SET_PIN PIN=AIR_PUMP VALUE=1", SetPinInt(PinAirPump, 1))
}

func TestSetPinFloatFormatsFourDecimalPlaces(t *testing.T) {
	assert.Equal(t, "SET_PIN PIN=VALVE_WASTE VALUE=0.5000", SetPinFloat(PinValveWaste, 0.5))
}

func TestParallelMoveEmitsOneAxisPerPumpPlusFeedrate(t *testing.T) {
	var distances [8]float64
	distances[0] = 10
	distances[4] = 5
	cmd := ParallelMove(distances, 120)

	assert.Contains(t, cmd, "A10.0000")
	assert.Contains(t, cmd, "H5.0000")
	assert.Contains(t, cmd, "F120.00")
	assert.Equal(t, byte('G'), cmd[0])
}

func TestAsyncStopAndRegisterPumpsToAxisAreFixedLiterals(t *testing.T) {
	assert.Equal(t, "ENOSE_ASYNC_STOP", AsyncStop())
	assert.Equal(t, "REGISTER_PUMPS_TO_AXIS", RegisterPumpsToAxis())
}

func TestLimiterDelegatesToTheWrappedDriver(t *testing.T) {
	driver := &recordingDriver{}
	l := NewLimiter(driver, 1000, 10)

	require.NoError(t, l.SendCommand(context.Background(), "SET_PIN PIN=AIR_PUMP VALUE=1"))
	assert.Equal(t, []string{"SET_PIN PIN=AIR_PUMP VALUE=1"}, driver.sent)
}

func TestLimiterBlocksBeyondItsBurstUntilTokensReplenish(t *testing.T) {
	driver := &recordingDriver{}
	l := NewLimiter(driver, 10, 1) // 1 burst, 10/sec refill => ~100ms per token

	require.NoError(t, l.SendCommand(context.Background(), "a"))

	start := time.Now()
	require.NoError(t, l.SendCommand(context.Background(), "b"))
	assert.Greater(t, time.Since(start), 50*time.Millisecond, "second send beyond burst should wait for a token")
}

func TestLimiterReturnsErrorOnContextCancellationWhileWaiting(t *testing.T) {
	driver := &recordingDriver{}
	l := NewLimiter(driver, 1, 1)
	require.NoError(t, l.SendCommand(context.Background(), "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.SendCommand(ctx, "b")
	assert.Error(t, err)
}
