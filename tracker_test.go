package ptztracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptz-tracker/internal/frames"
	"ptz-tracker/internal/logging"
	"ptz-tracker/internal/pid"
	"ptz-tracker/internal/protocol"
	"ptz-tracker/internal/ptz"
	"ptz-tracker/internal/timeutil"
	"ptz-tracker/internal/visca"
)

func TestMain(m *testing.M) {
	logging.SetLogger(nil)
	m.Run()
}

type fakeCamera struct {
	mu     sync.Mutex
	calls  []string
	pos    visca.PanTilt
	closed int

	// inflight counts calls currently inside the driver; overlap is set
	// if two ever were.
	inflight atomic.Int32
	overlap  atomic.Bool
	dwell    time.Duration
}

func (f *fakeCamera) enter() func() {
	if f.inflight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	time.Sleep(f.dwell)
	return func() { f.inflight.Add(-1) }
}

func (f *fakeCamera) record(format string, args ...any) error {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return nil
}

func (f *fakeCamera) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCamera) Stop() error              { return f.record("stop") }
func (f *fakeCamera) Up(s int) error           { return f.record("up %d", s) }
func (f *fakeCamera) Down(s int) error         { return f.record("down %d", s) }
func (f *fakeCamera) Left(s int) error         { return f.record("left %d", s) }
func (f *fakeCamera) Right(s int) error        { return f.record("right %d", s) }
func (f *fakeCamera) LeftUp(p, t int) error    { return f.record("left_up %d %d", p, t) }
func (f *fakeCamera) LeftDown(p, t int) error  { return f.record("left_down %d %d", p, t) }
func (f *fakeCamera) RightUp(p, t int) error   { return f.record("right_up %d %d", p, t) }
func (f *fakeCamera) RightDown(p, t int) error { return f.record("right_down %d %d", p, t) }
func (f *fakeCamera) ZoomStop() error          { return f.record("zoom_stop") }
func (f *fakeCamera) ZoomIn(s int) error       { return f.record("zoom_in %d", s) }
func (f *fakeCamera) ZoomOut(s int) error      { return f.record("zoom_out %d", s) }
func (f *fakeCamera) Home() error              { return f.record("home") }
func (f *fakeCamera) RecallPreset(n int) error { return f.record("recall %d", n) }
func (f *fakeCamera) SavePreset(n int) error   { return f.record("save %d", n) }
func (f *fakeCamera) PanTiltContinuous() bool  { return true }
func (f *fakeCamera) ZoomContinuous() bool     { return false }

func (f *fakeCamera) Goto(pan, tilt, speed int) error {
	f.mu.Lock()
	f.pos = visca.PanTilt{Pan: int(uint16(pan)), Tilt: int(uint16(tilt))}
	f.mu.Unlock()
	return f.record("goto %d %d %d", pan, tilt, speed)
}

func (f *fakeCamera) PanTiltPosition() (visca.PanTilt, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos, nil
}

func (f *fakeCamera) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// noPosition hides the Positioner methods of the wrapped camera.
type noPosition struct{ camera }

func withCamera(t *testing.T, cam camera, err error) {
	t.Helper()
	orig := openCamera
	openCamera = func(Config) (camera, error) { return cam, err }
	t.Cleanup(func() { openCamera = orig })
}

type chanSource chan frames.Frame

func (c chanSource) Read() (frames.Frame, bool) {
	f, ok := <-c
	return f, ok
}

type scriptedDetector struct {
	mu    sync.Mutex
	det   Detection
	found bool
}

func (d *scriptedDetector) set(det Detection, found bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.det, d.found = det, found
}

func (d *scriptedDetector) Detect(frames.Frame) (Detection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.det, d.found
}

func testConfig(clock timeutil.Clock) Config {
	gain := pid.Config{Kp: 1, T: 0.033}
	return Config{
		Camera:       visca.Config{Host: "camera"},
		Pan:          gain,
		Tilt:         gain,
		Zoom:         gain,
		LoopInterval: time.Millisecond,
		SearchPoll:   time.Millisecond,
		Clock:        clock,
	}
}

type harness struct {
	tr    *Tracker
	cam   *fakeCamera
	src   chanSource
	det   *scriptedDetector
	clock *timeutil.MockClock
	next  time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		cam:   &fakeCamera{},
		src:   make(chanSource),
		det:   &scriptedDetector{},
		clock: timeutil.NewMockClock(time.Unix(1700000000, 0)),
	}
	h.next = h.clock.Now()
	if cfg.Clock == nil {
		cfg.Clock = h.clock
	}
	withCamera(t, h.cam, nil)

	tr, err := New(cfg, h.src, h.det)
	require.NoError(t, err)
	h.tr = tr
	t.Cleanup(func() {
		tr.Close()
		close(h.src)
	})
	return h
}

// push delivers a 640x480 frame and waits until the channel holds it.
func (h *harness) push(t *testing.T) {
	h.pushSized(t, 640, 480)
}

func (h *harness) pushSized(t *testing.T, w, ht int) {
	t.Helper()
	h.next = h.next.Add(time.Second)
	ts := h.next
	h.src <- frames.Frame{Width: w, Height: ht, Timestamp: ts}
	require.Eventually(t, func() bool {
		f, ok := h.tr.frames.ReadLast()
		return ok && f.Timestamp.Equal(ts)
	}, time.Second, time.Millisecond)
}

func TestNew_Errors(t *testing.T) {
	src := make(chanSource)
	det := &scriptedDetector{}

	_, err := New(testConfig(nil), src, nil)
	assert.Error(t, err)

	bad := testConfig(nil)
	bad.Camera.Host = ""
	_, err = New(bad, src, det)
	assert.Error(t, err)

	_, err = New(testConfig(nil), nil, det)
	assert.Error(t, err)

	refused := errors.New("refused")
	withCamera(t, nil, refused)
	_, err = New(testConfig(nil), src, det)
	assert.ErrorIs(t, err, refused)
}

func TestTick_TracksTarget(t *testing.T) {
	h := newHarness(t, testConfig(nil))
	h.tr.frames.Start(h.src)

	// right of centre, on the horizon line, at the wanted size
	h.det.set(Detection{X: 440, Y: 240, Size: 160}, true)
	h.push(t)
	start := h.clock.Now()
	h.tr.tick()

	if diff := cmp.Diff([]string{"right 2", "zoom_stop"}, h.cam.Calls()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}

	tel := h.tr.Telemetry()
	assert.True(t, tel.Tracking)
	require.NotNil(t, tel.Target)
	assert.Equal(t, 440.0, tel.Target.X)
	assert.InDelta(t, -2.4, tel.PanError, 1e-9)
	assert.Equal(t, 0.0, tel.TiltError)
	assert.Equal(t, 2, tel.PanSpeed)
	assert.Equal(t, 0, tel.TiltSpeed)
	assert.Equal(t, "right", tel.Directive)
	assert.Equal(t, "zoom_stop", tel.ZoomDirective)
	assert.True(t, tel.PanTiltContinuous)
	assert.False(t, tel.ZoomContinuous)
	assert.Equal(t, start.UnixMilli(), tel.Timestamp)
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, h.clock.Sleeps())
}

func TestTick_DiagonalAndZoom(t *testing.T) {
	h := newHarness(t, testConfig(nil))
	h.tr.frames.Start(h.src)

	// up-left of centre and small: zoom error (160-100)/30 = 2 limits to 1
	h.det.set(Detection{X: 120, Y: 90, Size: 100}, true)
	h.push(t)
	h.tr.tick()

	assert.Equal(t, []string{"left_up 4 5", "zoom_in 1"}, h.cam.Calls())
}

func TestTick_LostStopsOnce(t *testing.T) {
	h := newHarness(t, testConfig(nil))
	h.tr.frames.Start(h.src)

	h.det.set(Detection{X: 440, Y: 240, Size: 160}, true)
	h.push(t)
	h.tr.tick()

	h.det.set(Detection{}, false)
	h.push(t)
	h.tr.tick()
	h.push(t)
	h.tr.tick()

	assert.Equal(t, []string{"right 2", "zoom_stop", "stop", "zoom_stop"}, h.cam.Calls())

	tel := h.tr.Telemetry()
	assert.False(t, tel.Tracking)
	assert.Nil(t, tel.Target)
	assert.Equal(t, "stop", tel.Directive)
}

func TestTick_LostResetsControllers(t *testing.T) {
	cfg := testConfig(nil)
	cfg.Pan = pid.Config{Kp: 1, Ki: 10, T: 0.1}
	h := newHarness(t, cfg)
	h.tr.frames.Start(h.src)

	h.det.set(Detection{X: 440, Y: 240, Size: 160}, true)
	h.push(t)
	h.tr.tick()
	require.NotZero(t, h.tr.axes[0].State().Integral)

	h.det.set(Detection{}, false)
	h.push(t)
	h.tr.tick()
	assert.Equal(t, pid.State{}, h.tr.axes[0].State())
}

func TestTick_NothingBeforeTracking(t *testing.T) {
	h := newHarness(t, testConfig(nil))
	h.tr.frames.Start(h.src)

	h.push(t)
	h.tr.tick()
	assert.Empty(t, h.cam.Calls())
	assert.False(t, h.tr.Telemetry().Tracking)
}

func TestTick_NoFreshFrame(t *testing.T) {
	h := newHarness(t, testConfig(nil))
	h.tr.frames.Start(h.src)

	h.det.set(Detection{X: 440, Y: 240, Size: 160}, true)
	h.push(t)
	h.tr.tick()
	before := h.tr.Telemetry()

	h.clock.Advance(time.Second)
	h.tr.tick()
	assert.Len(t, h.cam.Calls(), 2)
	assert.Equal(t, before, h.tr.Telemetry())
}

func TestTick_SkipsFramesWithoutSize(t *testing.T) {
	h := newHarness(t, testConfig(nil))
	h.tr.frames.Start(h.src)

	h.det.set(Detection{X: 440, Y: 240, Size: 160}, true)
	h.pushSized(t, 0, 0)
	h.tr.tick()
	assert.Empty(t, h.cam.Calls())
	assert.False(t, h.tr.Telemetry().Tracking)
}

func TestRun(t *testing.T) {
	h := newHarness(t, testConfig(timeutil.RealClock{}))
	h.det.set(Detection{X: 440, Y: 240, Size: 160}, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.tr.Run(ctx) }()

	h.src <- frames.Frame{Width: 640, Height: 480, Timestamp: time.Now()}
	require.Eventually(t, func() bool { return h.tr.Telemetry().Tracking }, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []string{"right 2", "zoom_stop"}, h.cam.Calls()[:2])
}

func TestSearch(t *testing.T) {
	h := newHarness(t, testConfig(nil))
	h.tr.rand = rand.New(rand.NewSource(7))
	want := ptz.SweepPan(rand.New(rand.NewSource(7)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.tr.Search(ctx))

	assert.Equal(t, []string{fmt.Sprintf("goto %d 0 24", want)}, h.cam.Calls())
}

func TestSearch_Unsupported(t *testing.T) {
	withCamera(t, noPosition{&fakeCamera{}}, nil)
	src := make(chanSource)
	tr, err := New(testConfig(nil), src, &scriptedDetector{})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })

	assert.ErrorIs(t, tr.Search(context.Background()), ErrSearchUnsupported)
}

func TestClose(t *testing.T) {
	h := newHarness(t, testConfig(nil))

	require.NoError(t, h.tr.Close())
	require.NoError(t, h.tr.Close())

	assert.Equal(t, []string{"stop", "zoom_stop"}, h.cam.Calls())
	assert.Equal(t, 1, h.cam.closed)
}

func TestMonitorPublishesTelemetry(t *testing.T) {
	cfg := testConfig(nil)
	cfg.Monitor.ListenAddr = "127.0.0.1:0"
	h := newHarness(t, cfg)
	require.NotNil(t, h.tr.mon)
	h.tr.frames.Start(h.src)

	h.det.set(Detection{X: 440, Y: 240, Size: 160}, true)
	h.push(t)
	h.tr.tick()

	resp, err := http.Get("http://" + h.tr.mon.Addr().String() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status struct {
		CameraConnected bool                       `json:"camera_connected"`
		Telemetry       *protocol.TelemetryPayload `json:"telemetry"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.CameraConnected)
	require.NotNil(t, status.Telemetry)
	assert.Equal(t, "right", status.Telemetry.Directive)
}

func TestRun_AgainAfterCancel(t *testing.T) {
	h := newHarness(t, testConfig(timeutil.RealClock{}))
	h.det.set(Detection{X: 440, Y: 240, Size: 160}, true)

	run := func() (context.CancelFunc, chan error) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- h.tr.Run(ctx) }()
		return cancel, done
	}
	send := func(f frames.Frame) {
		select {
		case h.src <- f:
		case <-time.After(2 * time.Second):
			t.Fatal("nobody reading the source")
		}
	}

	cancel, done := run()
	send(frames.Frame{Width: 640, Height: 480, Timestamp: time.Now()})
	require.Eventually(t, func() bool { return h.tr.Telemetry().Directive == "right" }, 2*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// Target now left of centre; the second run must see new frames.
	h.det.set(Detection{X: 200, Y: 240, Size: 160}, true)
	cancel, done = run()
	defer func() {
		cancel()
		<-done
	}()
	for i := 0; i < 3; i++ {
		send(frames.Frame{Width: 640, Height: 480, Timestamp: time.Now()})
	}
	require.Eventually(t, func() bool { return h.tr.Telemetry().Directive == "left" }, 2*time.Second, time.Millisecond)
}

func TestCameraCallsAreSerialised(t *testing.T) {
	h := newHarness(t, testConfig(nil))
	h.cam.dwell = time.Millisecond

	var wg sync.WaitGroup
	calls := []func() error{
		func() error { return h.tr.cam.Stop() },
		func() error { return h.tr.cam.Home() },
		func() error { return h.tr.cam.RecallPreset(1) },
		func() error { _, err := h.tr.cam.PanTiltPosition(); return err },
		func() error { return h.tr.cam.Left(3) },
		func() error { return h.tr.cam.ZoomIn(1) },
	}
	for i := 0; i < 4; i++ {
		for _, call := range calls {
			wg.Add(1)
			go func(call func() error) {
				defer wg.Done()
				assert.NoError(t, call())
			}(call)
		}
	}
	wg.Wait()
	assert.False(t, h.cam.overlap.Load())
}
