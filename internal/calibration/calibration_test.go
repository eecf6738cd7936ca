package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearScalesByTheSharedMMPerMLConstant(t *testing.T) {
	l := Linear{MMPerML: 2.5}
	assert.Equal(t, 25.0, l.MMForML(0, 10))
	assert.Equal(t, 25.0, l.MMForML(7, 10), "Linear ignores pump index")
}

func TestLinearZeroVolumeIsZeroDistance(t *testing.T) {
	l := Linear{MMPerML: 3}
	assert.Equal(t, 0.0, l.MMForML(0, 0))
}
