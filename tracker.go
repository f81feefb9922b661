// Package ptztracker keeps a detected target centred and framed by steering
// a PTZ camera.
//
// A Tracker pulls frames into a frames.Channel, asks a Detector where the
// target is and feeds the pixel errors through one PID controller per axis
// into the camera's motion commands. Detection and the surrounding
// search/identify state machine are supplied by the caller.
package ptztracker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"ptz-tracker/internal/frames"
	"ptz-tracker/internal/logging"
	"ptz-tracker/internal/pid"
	"ptz-tracker/internal/protocol"
	"ptz-tracker/internal/ptz"
	"ptz-tracker/internal/rtsp"
	"ptz-tracker/internal/server"
)

// ErrSearchUnsupported is returned by Search when the camera driver cannot
// report its position.
var ErrSearchUnsupported = errors.New("ptztracker: driver cannot search")

const previewBuffer = 500

// Detection locates the target in one frame, in pixels.
type Detection struct {
	X, Y float64 // centre
	Size float64
}

// Detector finds the target in a frame. It returns false when the target
// is not visible.
type Detector interface {
	Detect(frames.Frame) (Detection, bool)
}

// DetectorFunc adapts a function to a Detector.
type DetectorFunc func(frames.Frame) (Detection, bool)

func (f DetectorFunc) Detect(fr frames.Frame) (Detection, bool) { return f(fr) }

// Tracker is the assembled control loop.
type Tracker struct {
	cfg    Config
	cam    *lockedCamera
	src    frames.Source
	det    Detector
	video  *rtsp.Client
	frames *frames.Channel
	orch   *ptz.Orchestrator
	axes   [3]*pid.Controller
	mon    *server.Server
	rand   *rand.Rand

	tracking bool

	mu   sync.Mutex
	last protocol.TelemetryPayload

	closeOnce sync.Once
}

// New connects the camera and assembles the tracker. When src is nil the
// tracker reads cfg.Video.URL over RTSP. A camera that cannot be reached
// fails New before anything runs.
func New(cfg Config, src frames.Source, det Detector) (*Tracker, error) {
	if det == nil {
		return nil, errors.New("ptztracker: detector is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ptztracker: invalid config: %w", err)
	}
	if src == nil && cfg.Video.URL == "" {
		return nil, errors.New("ptztracker: no frame source and no video URL")
	}

	driver, err := openCamera(cfg)
	if err != nil {
		return nil, fmt.Errorf("ptztracker: camera: %w", err)
	}
	cam := &lockedCamera{cam: driver}

	t := &Tracker{
		cfg:    cfg,
		cam:    cam,
		src:    src,
		det:    det,
		frames: frames.NewChannel(cfg.Clock),
		rand:   rand.New(rand.NewSource(cfg.Clock.Now().UnixNano())),
		axes:   [3]*pid.Controller{pid.New(cfg.Pan), pid.New(cfg.Tilt), pid.New(cfg.Zoom)},
	}
	t.orch = ptz.New(t.axes[0], t.axes[1], t.axes[2], cam, cfg.Limits)

	if err := t.openVideo(); err != nil {
		cam.Close()
		return nil, err
	}

	if cfg.Monitor.ListenAddr != "" {
		var rtp <-chan []byte
		if t.video != nil {
			rtp = t.video.RTPChannel()
		}
		t.mon = server.New(server.Config{
			ListenAddr: cfg.Monitor.ListenAddr,
			VideoURL:   cfg.Video.URL,
		}, cam, rtp)
		if err := t.mon.Start(); err != nil {
			t.closeVideo()
			cam.Close()
			return nil, fmt.Errorf("ptztracker: monitor: %w", err)
		}
	}

	return t, nil
}

func (t *Tracker) openVideo() error {
	if t.src != nil {
		return nil
	}
	rc := rtsp.Config{URL: t.cfg.Video.URL, Timeout: t.cfg.Video.Timeout, Clock: t.cfg.Clock}
	if t.cfg.Monitor.Preview {
		rc.PreviewBuffer = previewBuffer
	}
	client, err := rtsp.NewClient(rc)
	if err != nil {
		return fmt.Errorf("ptztracker: video: %w", err)
	}
	if err := client.Connect(); err != nil {
		client.Close()
		return fmt.Errorf("ptztracker: video: %w", err)
	}
	t.video = client
	t.src = client
	return nil
}

func (t *Tracker) closeVideo() {
	if t.video != nil {
		t.video.Close()
	}
}

// Run drives the control loop until ctx ends. Only one Run may be active
// and Close must not be called before it returns.
func (t *Tracker) Run(ctx context.Context) error {
	t.frames.Start(t.src)
	defer t.frames.Stop()

	logging.Logf("Tracker: running every %v", t.cfg.LoopInterval)
	ticker := time.NewTicker(t.cfg.LoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.tick()
		}
	}
}

// tick runs one control step on the newest unseen frame, if any.
func (t *Tracker) tick() {
	frame, ok := t.frames.Read()
	if !ok {
		return
	}

	tel := protocol.TelemetryPayload{
		Timestamp:     t.cfg.Clock.Now().UnixMilli(),
		FrameRate:     t.frames.FrameRate(),
		Directive:     ptz.DirStop.String(),
		ZoomDirective: ptz.ZoomHold.String(),
	}

	det, found := t.det.Detect(frame)
	if found && (frame.Width <= 0 || frame.Height <= 0) {
		logging.Logf("Tracker: frame without dimensions, skipping")
		found = false
	}

	if found {
		panErr, tiltErr := t.cfg.Scaling.PanTiltError(det.X, det.Y, frame.Width, frame.Height)
		zoomErr := t.cfg.Scaling.ZoomError(det.Size, frame.Height)

		r := t.orch.Step(panErr, tiltErr)
		z := t.orch.StepZoom(zoomErr)
		t.tracking = true

		tel.Tracking = true
		tel.Target = &protocol.TargetPayload{X: det.X, Y: det.Y, Size: det.Size}
		tel.PanError, tel.TiltError, tel.ZoomError = panErr, tiltErr, zoomErr
		tel.PanSpeed, tel.TiltSpeed = r.PanSpeed, r.TiltSpeed
		tel.Directive = r.Directive.String()
		tel.ZoomSpeed = z.Speed
		tel.ZoomDirective = z.Directive.String()
	} else if t.tracking {
		t.lost()
	}

	tel.PanTiltContinuous = t.cam.PanTiltContinuous()
	tel.ZoomContinuous = t.cam.ZoomContinuous()

	t.mu.Lock()
	t.last = tel
	t.mu.Unlock()

	if t.mon != nil {
		t.mon.Publish(tel)
	}
}

// lost stops all motion once and clears controller memory so a
// reacquired target starts from rest.
func (t *Tracker) lost() {
	t.tracking = false
	logging.Logf("Tracker: target lost")
	if err := t.orch.Halt(); err != nil {
		logging.Logf("Tracker: halt: %v", err)
	}
	for _, a := range t.axes {
		a.Reset()
	}
}

// Telemetry returns the most recent control step.
func (t *Tracker) Telemetry() protocol.TelemetryPayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Search sends the camera to a random pan position and waits until it
// gets there. It must not run concurrently with Run.
func (t *Tracker) Search(ctx context.Context) error {
	if !t.cam.canPosition() {
		return ErrSearchUnsupported
	}
	pan := ptz.SweepPan(t.rand)
	logging.Logf("Tracker: searching at pan %d", pan)
	return ptz.GotoAndWait(ctx, t.cam, pan, 0, t.cfg.SearchSpeed, t.cfg.SearchPoll)
}

// Close stops the loop's frame reader, halts the camera and releases the
// video, monitor and camera connections.
func (t *Tracker) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.frames.Stop()
		if herr := t.orch.Halt(); herr != nil {
			logging.Logf("Tracker: halt: %v", herr)
		}
		t.closeVideo()
		if t.mon != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if merr := t.mon.Stop(ctx); merr != nil {
				logging.Logf("Tracker: monitor stop: %v", merr)
			}
			cancel()
		}
		err = t.cam.Close()
	})
	return err
}
