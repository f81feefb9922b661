package ptz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPanTiltError(t *testing.T) {
	s := DefaultScaling()

	pan, tilt := s.PanTiltError(640, 360, 1280, 720)
	assert.Equal(t, 0.0, pan)
	assert.Equal(t, 0.0, tilt)

	pan, tilt = s.PanTiltError(540, 420, 1280, 720)
	assert.Equal(t, 2.0, pan)
	assert.Equal(t, -2.0, tilt)

	// Odd sizes use the integer centre.
	pan, tilt = s.PanTiltError(0, 0, 101, 61)
	assert.Equal(t, 1.0, pan)
	assert.Equal(t, 1.0, tilt)
}

func TestPanTiltError_ZeroScalingUsesDefaults(t *testing.T) {
	pan, tilt := Scaling{}.PanTiltError(590, 330, 1280, 720)
	assert.Equal(t, 1.0, pan)
	assert.Equal(t, 1.0, tilt)

	pan, _ = Scaling{PanDivisor: 10}.PanTiltError(590, 330, 1280, 720)
	assert.Equal(t, 5.0, pan)
}

func TestZoomError(t *testing.T) {
	s := DefaultScaling()
	assert.Equal(t, 0.0, s.ZoomError(240, 720))
	assert.Equal(t, 2.0, s.ZoomError(180, 720))
	assert.Equal(t, -1.0, s.ZoomError(270, 720))
}
