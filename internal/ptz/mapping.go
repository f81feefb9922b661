package ptz

// Scaling holds the empirical factors that turn pixel measurements into
// controller errors.
type Scaling struct {
	PanDivisor   float64 // default 50
	TiltDivisor  float64 // default 30
	ZoomFraction float64 // target size is height/ZoomFraction, default 3
	ZoomDivisor  float64 // default 30
}

// DefaultScaling returns the factors the gains were tuned with.
func DefaultScaling() Scaling {
	return Scaling{PanDivisor: 50, TiltDivisor: 30, ZoomFraction: 3, ZoomDivisor: 30}
}

func (s Scaling) withDefaults() Scaling {
	d := DefaultScaling()
	if s.PanDivisor == 0 {
		s.PanDivisor = d.PanDivisor
	}
	if s.TiltDivisor == 0 {
		s.TiltDivisor = d.TiltDivisor
	}
	if s.ZoomFraction == 0 {
		s.ZoomFraction = d.ZoomFraction
	}
	if s.ZoomDivisor == 0 {
		s.ZoomDivisor = d.ZoomDivisor
	}
	return s
}

// PanTiltError maps a target centre in pixels to pan and tilt errors. A
// positive pan error means the target is left of centre, a positive tilt
// error that it is above centre.
func (s Scaling) PanTiltError(x, y float64, width, height int) (pan, tilt float64) {
	s = s.withDefaults()
	pan = (float64(width/2) - x) / s.PanDivisor
	tilt = (float64(height/2) - y) / s.TiltDivisor
	return pan, tilt
}

// ZoomError maps a target size in pixels to a zoom error; positive means the
// target is smaller than wanted.
func (s Scaling) ZoomError(size float64, height int) float64 {
	s = s.withDefaults()
	target := float64(height) / s.ZoomFraction
	return (target - size) / s.ZoomDivisor
}
