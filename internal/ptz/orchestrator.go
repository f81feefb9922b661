// Package ptz turns tracking errors into discrete camera motion.
//
// The Orchestrator runs one PID Axis per degree of freedom, limits the
// commands to what the motors accept and picks one of nine pan/tilt
// directives or one of three zoom directives for the Mover.
package ptz

import (
	"math"
	"sync"
	"time"

	"ptz-tracker/internal/logging"
	"ptz-tracker/internal/timeutil"
)

const (
	DefaultPanMax  = 24
	DefaultTiltMax = 18
	DefaultZoomMax = 1
	DefaultPacing  = time.Millisecond
)

// Config for the orchestrator. Zero values take the defaults above.
type Config struct {
	PanMax  int
	TiltMax int
	ZoomMax int

	// Pacing is the pause after each directive so the command channel is
	// not flooded.
	Pacing time.Duration

	Clock timeutil.Clock
}

// Result describes one pan/tilt control step.
type Result struct {
	PanCommand  float64   `json:"pan_command"`
	TiltCommand float64   `json:"tilt_command"`
	PanSpeed    int       `json:"pan_speed"`
	TiltSpeed   int       `json:"tilt_speed"`
	Directive   Directive `json:"directive"`
}

// ZoomResult describes one zoom control step.
type ZoomResult struct {
	Command   float64       `json:"command"`
	Speed     int           `json:"speed"`
	Directive ZoomDirective `json:"directive"`
}

// Orchestrator combines the three axis controllers with one Mover. Control
// and ControlZoom are meant to be driven from a single control goroutine.
type Orchestrator struct {
	pan, tilt, zoom Axis
	mover           Mover
	cfg             Config

	mu       sync.Mutex
	last     Result
	lastZoom ZoomResult
}

// New returns an orchestrator driving mover.
func New(pan, tilt, zoom Axis, mover Mover, cfg Config) *Orchestrator {
	if cfg.PanMax <= 0 {
		cfg.PanMax = DefaultPanMax
	}
	if cfg.TiltMax <= 0 {
		cfg.TiltMax = DefaultTiltMax
	}
	if cfg.ZoomMax <= 0 {
		cfg.ZoomMax = DefaultZoomMax
	}
	if cfg.Pacing <= 0 {
		cfg.Pacing = DefaultPacing
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Orchestrator{pan: pan, tilt: tilt, zoom: zoom, mover: mover, cfg: cfg}
}

// Limit converts a signed command into a speed: max when |value| exceeds
// it, otherwise |value| rounded. Direction is carried separately.
func Limit(value float64, max int) int {
	a := math.Abs(value)
	if a > float64(max) {
		return max
	}
	return int(math.Round(a))
}

// Control runs one pan/tilt step and returns the speeds issued.
func (o *Orchestrator) Control(panErr, tiltErr float64) (panSpeed, tiltSpeed int) {
	r := o.Step(panErr, tiltErr)
	return r.PanSpeed, r.TiltSpeed
}

// Step is Control with the full step details.
func (o *Orchestrator) Step(panErr, tiltErr float64) Result {
	panCmd := o.pan.Compute(panErr)
	tiltCmd := o.tilt.Compute(tiltErr)

	r := Result{
		PanCommand:  panCmd,
		TiltCommand: tiltCmd,
		PanSpeed:    Limit(panCmd, o.cfg.PanMax),
		TiltSpeed:   Limit(tiltCmd, o.cfg.TiltMax),
	}

	key := [2]Sign{Zero, Zero}
	if r.PanSpeed != 0 {
		key[0] = signOf(panCmd)
	}
	if r.TiltSpeed != 0 {
		key[1] = signOf(tiltCmd)
	}
	r.Directive = directiveTable[key]

	if err := o.issue(r); err != nil {
		logging.Logf("PTZ: %s: %v", r.Directive, err)
	}
	o.cfg.Clock.Sleep(o.cfg.Pacing)

	o.mu.Lock()
	o.last = r
	o.mu.Unlock()
	return r
}

func (o *Orchestrator) issue(r Result) error {
	switch r.Directive {
	case DirUp:
		return o.mover.Up(r.TiltSpeed)
	case DirDown:
		return o.mover.Down(r.TiltSpeed)
	case DirLeft:
		return o.mover.Left(r.PanSpeed)
	case DirRight:
		return o.mover.Right(r.PanSpeed)
	case DirLeftUp:
		return o.mover.LeftUp(r.PanSpeed, r.TiltSpeed)
	case DirLeftDown:
		return o.mover.LeftDown(r.PanSpeed, r.TiltSpeed)
	case DirRightUp:
		return o.mover.RightUp(r.PanSpeed, r.TiltSpeed)
	case DirRightDown:
		return o.mover.RightDown(r.PanSpeed, r.TiltSpeed)
	}
	return o.mover.Stop()
}

// ControlZoom runs one zoom step and returns the speed issued. A command
// that limits to speed zero stops the zoom.
func (o *Orchestrator) ControlZoom(zoomErr float64) int {
	return o.StepZoom(zoomErr).Speed
}

// StepZoom is ControlZoom with the full step details.
func (o *Orchestrator) StepZoom(zoomErr float64) ZoomResult {
	cmd := o.zoom.Compute(zoomErr)
	r := ZoomResult{Command: cmd, Speed: Limit(cmd, o.cfg.ZoomMax)}

	var err error
	switch {
	case r.Speed == 0:
		r.Directive = ZoomHold
		err = o.mover.ZoomStop()
	case cmd > 0:
		r.Directive = ZoomIn
		err = o.mover.ZoomIn(r.Speed)
	default:
		r.Directive = ZoomOut
		err = o.mover.ZoomOut(r.Speed)
	}
	if err != nil {
		logging.Logf("PTZ: %s: %v", r.Directive, err)
	}
	o.cfg.Clock.Sleep(o.cfg.Pacing)

	o.mu.Lock()
	o.lastZoom = r
	o.mu.Unlock()
	return r
}

// Halt stops pan/tilt and zoom without running the controllers.
func (o *Orchestrator) Halt() error {
	perr := o.mover.Stop()
	o.cfg.Clock.Sleep(o.cfg.Pacing)
	zerr := o.mover.ZoomStop()
	o.cfg.Clock.Sleep(o.cfg.Pacing)

	o.mu.Lock()
	o.last = Result{Directive: DirStop}
	o.lastZoom = ZoomResult{Directive: ZoomHold}
	o.mu.Unlock()

	if perr != nil {
		return perr
	}
	return zerr
}

// Last returns the most recent pan/tilt and zoom steps.
func (o *Orchestrator) Last() (Result, ZoomResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last, o.lastZoom
}
