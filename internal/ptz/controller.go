package ptz

import "ptz-tracker/internal/visca"

// Mover is the set of motion directives the orchestrator issues. Speeds are
// protocol units: 0-24 for pan/tilt, 0-7 for zoom.
type Mover interface {
	// Stop halts pan/tilt motion.
	Stop() error

	Up(speed int) error
	Down(speed int) error
	Left(speed int) error
	Right(speed int) error

	LeftUp(pan, tilt int) error
	LeftDown(pan, tilt int) error
	RightUp(pan, tilt int) error
	RightDown(pan, tilt int) error

	ZoomStop() error
	ZoomIn(speed int) error
	ZoomOut(speed int) error
}

// Positioner moves to absolute positions and reports where the camera is.
type Positioner interface {
	Goto(pan, tilt, speed int) error
	PanTiltPosition() (visca.PanTilt, error)
}

// Axis turns an error sample into a control command. *pid.Controller
// implements it.
type Axis interface {
	Compute(err float64) float64
}

var (
	_ Mover      = (*visca.Client)(nil)
	_ Positioner = (*visca.Client)(nil)
)
