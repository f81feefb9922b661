package ptztracker

import (
	"sync"

	"ptz-tracker/internal/panasonic"
	"ptz-tracker/internal/ptz"
	"ptz-tracker/internal/server"
	"ptz-tracker/internal/visca"
)

// camera is what the tracker needs from a driver.
type camera interface {
	ptz.Mover
	server.Commander
	Close() error
}

type motionFlags interface {
	PanTiltContinuous() bool
	ZoomContinuous() bool
}

var (
	_ camera = (*visca.Client)(nil)
	_ camera = (*panasonic.Controller)(nil)
)

var openCamera = func(cfg Config) (camera, error) {
	if cfg.Driver == DriverPanasonic {
		c, err := panasonic.NewController(cfg.PanasonicHead)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	var (
		c   *visca.Client
		err error
	)
	if cfg.SerialPort != "" {
		c, err = visca.OpenSerial(cfg.SerialPort, cfg.Serial)
	} else {
		c, err = visca.Connect(cfg.Camera)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// lockedCamera serialises calls into the driver. The control loop, Search
// and monitor overrides share one connection, and on a serial line one port.
type lockedCamera struct {
	mu  sync.Mutex
	cam camera
}

var (
	_ camera         = (*lockedCamera)(nil)
	_ ptz.Positioner = (*lockedCamera)(nil)
)

func (l *lockedCamera) do(fn func(c camera) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.cam)
}

func (l *lockedCamera) Stop() error {
	return l.do(func(c camera) error { return c.Stop() })
}
func (l *lockedCamera) Up(s int) error {
	return l.do(func(c camera) error { return c.Up(s) })
}
func (l *lockedCamera) Down(s int) error {
	return l.do(func(c camera) error { return c.Down(s) })
}
func (l *lockedCamera) Left(s int) error {
	return l.do(func(c camera) error { return c.Left(s) })
}
func (l *lockedCamera) Right(s int) error {
	return l.do(func(c camera) error { return c.Right(s) })
}
func (l *lockedCamera) LeftUp(p, t int) error {
	return l.do(func(c camera) error { return c.LeftUp(p, t) })
}
func (l *lockedCamera) LeftDown(p, t int) error {
	return l.do(func(c camera) error { return c.LeftDown(p, t) })
}
func (l *lockedCamera) RightUp(p, t int) error {
	return l.do(func(c camera) error { return c.RightUp(p, t) })
}
func (l *lockedCamera) RightDown(p, t int) error {
	return l.do(func(c camera) error { return c.RightDown(p, t) })
}
func (l *lockedCamera) ZoomStop() error {
	return l.do(func(c camera) error { return c.ZoomStop() })
}
func (l *lockedCamera) ZoomIn(s int) error {
	return l.do(func(c camera) error { return c.ZoomIn(s) })
}
func (l *lockedCamera) ZoomOut(s int) error {
	return l.do(func(c camera) error { return c.ZoomOut(s) })
}
func (l *lockedCamera) Home() error {
	return l.do(func(c camera) error { return c.Home() })
}
func (l *lockedCamera) RecallPreset(n int) error {
	return l.do(func(c camera) error { return c.RecallPreset(n) })
}
func (l *lockedCamera) SavePreset(n int) error {
	return l.do(func(c camera) error { return c.SavePreset(n) })
}
func (l *lockedCamera) Close() error {
	return l.do(func(c camera) error { return c.Close() })
}

func (l *lockedCamera) canPosition() bool {
	_, ok := l.cam.(ptz.Positioner)
	return ok
}

func (l *lockedCamera) Goto(pan, tilt, speed int) error {
	return l.do(func(c camera) error {
		p, ok := c.(ptz.Positioner)
		if !ok {
			return ErrSearchUnsupported
		}
		return p.Goto(pan, tilt, speed)
	})
}

func (l *lockedCamera) PanTiltPosition() (visca.PanTilt, error) {
	var pos visca.PanTilt
	err := l.do(func(c camera) error {
		p, ok := c.(ptz.Positioner)
		if !ok {
			return ErrSearchUnsupported
		}
		var err error
		pos, err = p.PanTiltPosition()
		return err
	})
	return pos, err
}

// The flags are atomics in the driver and need no lock.
func (l *lockedCamera) PanTiltContinuous() bool {
	f, ok := l.cam.(motionFlags)
	return ok && f.PanTiltContinuous()
}

func (l *lockedCamera) ZoomContinuous() bool {
	f, ok := l.cam.(motionFlags)
	return ok && f.ZoomContinuous()
}
