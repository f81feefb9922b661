// Package panasonic drives Panasonic AW-series cameras over their HTTP CGI
// interface. Controller satisfies ptz.Mover so the tracker can steer these
// cameras in place of a VISCA head.
package panasonic

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"ptz-tracker/internal/logging"
	"ptz-tracker/internal/ptz"
	"ptz-tracker/internal/visca"
)

var _ ptz.Mover = (*Controller)(nil)

const (
	minInterval = 50 * time.Millisecond // ~20 commands/sec max

	// neutral is the CGI speed value meaning "not moving".
	neutral  = 50
	maxDelta = 49

	homePosition = "#APC80008000"
)

// throttle coalesces rapid updates, sending immediately when possible
// and scheduling a trailing edge send for updates during cooldown
type throttle struct {
	mu           sync.Mutex
	lastSendTime time.Time
	timerRunning bool
	stopCh       <-chan struct{}
	flush        func()
}

func (t *throttle) trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.Sub(t.lastSendTime) >= minInterval {
		t.flush()
		t.lastSendTime = now
		return
	}
	if t.timerRunning {
		return
	}
	t.timerRunning = true
	remaining := minInterval - now.Sub(t.lastSendTime)
	go func() {
		select {
		case <-time.After(remaining):
			t.mu.Lock()
			t.flush()
			t.lastSendTime = time.Now()
			t.timerRunning = false
			t.mu.Unlock()
		case <-t.stopCh:
		}
	}()
}

// velocity is a pair of CGI speed values, 1-99 with 50 at rest.
type velocity struct{ pan, tilt int }

var rest = velocity{neutral, neutral}

// Config for Panasonic controller
type Config struct {
	Address string // camera host or host:port
	Timeout time.Duration
}

// Controller manages HTTP CGI communication with a Panasonic PTZ camera
type Controller struct {
	baseURL string
	client  *http.Client
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once

	panTilt struct {
		throttle
		pending, sent velocity
	}

	zoom struct {
		throttle
		pending, sent int
	}
}

// NewController creates a new Panasonic controller
func NewController(cfg Config) (*Controller, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("camera address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	c := &Controller{
		baseURL: fmt.Sprintf("http://%s/cgi-bin/aw_ptz", cfg.Address),
		client:  &http.Client{Timeout: cfg.Timeout},
		stopCh:  make(chan struct{}),
	}
	c.panTilt.pending, c.panTilt.sent = rest, rest
	c.zoom.pending, c.zoom.sent = neutral, neutral

	// flush runs with the throttle lock held
	c.panTilt.stopCh = c.stopCh
	c.panTilt.flush = func() {
		if c.panTilt.pending == c.panTilt.sent {
			return
		}
		v := c.panTilt.pending
		c.logErr(c.sendCommand(fmt.Sprintf("#PTS%02d%02d", v.pan, v.tilt)))
		c.panTilt.sent = v
	}

	c.zoom.stopCh = c.stopCh
	c.zoom.flush = func() {
		if c.zoom.pending == c.zoom.sent {
			return
		}
		v := c.zoom.pending
		c.logErr(c.sendCommand(fmt.Sprintf("#Z%02d", v)))
		c.zoom.sent = v
	}

	return c, nil
}

func (c *Controller) logErr(err error) {
	if err != nil {
		logging.Logf("Panasonic: %v", err)
	}
}

// Close stops pending trailing-edge sends.
func (c *Controller) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return nil
}

// scale maps a protocol speed in [0, max] onto the CGI offset from neutral.
// Any non-zero speed moves at least one step.
func scale(speed, max int) int {
	if speed <= 0 {
		return 0
	}
	if speed >= max {
		return maxDelta
	}
	return (speed*maxDelta + max - 1) / max
}

func checkSpeeds(pan, tilt int) error {
	if pan < 0 || pan > visca.MaxPanTiltSpeed || tilt < 0 || tilt > visca.MaxPanTiltSpeed {
		return fmt.Errorf("%w: %d/%d", visca.ErrSpeedRange, pan, tilt)
	}
	return nil
}

func (c *Controller) move(v velocity) {
	c.panTilt.mu.Lock()
	c.panTilt.pending = v
	changed := c.panTilt.pending != c.panTilt.sent
	c.panTilt.mu.Unlock()

	if changed {
		c.panTilt.trigger()
	}
}

// directional sends a move where panDir and tiltDir are -1, 0 or +1.
func (c *Controller) directional(panDir, tiltDir, pan, tilt int) error {
	if err := checkSpeeds(pan, tilt); err != nil {
		return err
	}
	c.move(velocity{
		pan:  neutral + panDir*scale(pan, visca.MaxPanTiltSpeed),
		tilt: neutral + tiltDir*scale(tilt, visca.MaxPanTiltSpeed),
	})
	return nil
}

func (c *Controller) Left(speed int) error  { return c.directional(-1, 0, speed, 0) }
func (c *Controller) Right(speed int) error { return c.directional(1, 0, speed, 0) }
func (c *Controller) Up(speed int) error    { return c.directional(0, 1, 0, speed) }
func (c *Controller) Down(speed int) error  { return c.directional(0, -1, 0, speed) }

func (c *Controller) LeftUp(pan, tilt int) error    { return c.directional(-1, 1, pan, tilt) }
func (c *Controller) LeftDown(pan, tilt int) error  { return c.directional(-1, -1, pan, tilt) }
func (c *Controller) RightUp(pan, tilt int) error   { return c.directional(1, 1, pan, tilt) }
func (c *Controller) RightDown(pan, tilt int) error { return c.directional(1, -1, pan, tilt) }

// Stop halts pan/tilt immediately, bypassing the throttle.
func (c *Controller) Stop() error {
	c.panTilt.mu.Lock()
	c.panTilt.pending, c.panTilt.sent = rest, rest
	c.panTilt.mu.Unlock()
	return c.sendCommand(fmt.Sprintf("#PTS%02d%02d", neutral, neutral))
}

func (c *Controller) zoomTo(v int) {
	c.zoom.mu.Lock()
	c.zoom.pending = v
	changed := c.zoom.pending != c.zoom.sent
	c.zoom.mu.Unlock()

	if changed {
		c.zoom.trigger()
	}
}

func (c *Controller) zoomMove(dir, speed int) error {
	if speed < 0 || speed > visca.MaxZoomSpeed {
		return fmt.Errorf("%w: zoom %d", visca.ErrSpeedRange, speed)
	}
	c.zoomTo(neutral + dir*scale(speed, visca.MaxZoomSpeed))
	return nil
}

func (c *Controller) ZoomIn(speed int) error  { return c.zoomMove(1, speed) }
func (c *Controller) ZoomOut(speed int) error { return c.zoomMove(-1, speed) }

// ZoomStop halts zoom immediately, bypassing the throttle.
func (c *Controller) ZoomStop() error {
	c.zoom.mu.Lock()
	c.zoom.pending, c.zoom.sent = neutral, neutral
	c.zoom.mu.Unlock()
	return c.sendCommand(fmt.Sprintf("#Z%02d", neutral))
}

// Home drives to the centre of the pan/tilt range.
func (c *Controller) Home() error {
	return c.sendCommand(homePosition)
}

// RecallPreset recalls a preset position (0-99 for Panasonic)
func (c *Controller) RecallPreset(preset int) error {
	if preset < 0 || preset > 99 {
		return fmt.Errorf("%w: preset %d (0-99)", visca.ErrValueRange, preset)
	}
	return c.sendCommand(fmt.Sprintf("#R%02d", preset))
}

// SavePreset saves current position to a preset (0-99 for Panasonic)
func (c *Controller) SavePreset(preset int) error {
	if preset < 0 || preset > 99 {
		return fmt.Errorf("%w: preset %d (0-99)", visca.ErrValueRange, preset)
	}
	return c.sendCommand(fmt.Sprintf("#M%02d", preset))
}

// sendCommand sends a command to the camera via HTTP CGI
func (c *Controller) sendCommand(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.client.Get(c.baseURL + "?cmd=" + url.QueryEscape(cmd) + "&res=1")
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("camera rejected %s: %s", cmd, resp.Status)
	}
	return nil
}
