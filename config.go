package ptztracker

import (
	"errors"
	"fmt"
	"time"

	"ptz-tracker/internal/panasonic"
	"ptz-tracker/internal/pid"
	"ptz-tracker/internal/ptz"
	"ptz-tracker/internal/timeutil"
	"ptz-tracker/internal/visca"
)

// Driver selects how the camera head is steered.
type Driver string

const (
	DriverVISCA     Driver = "visca"
	DriverPanasonic Driver = "panasonic"
)

// VideoConfig describes the RTSP stream used when New is not handed a
// frame source.
type VideoConfig struct {
	URL     string
	Timeout time.Duration
}

// MonitorConfig enables the websocket monitor when ListenAddr is set.
type MonitorConfig struct {
	ListenAddr string
	// Preview offers a WebRTC view of the RTSP stream to monitors.
	Preview bool
}

// Config assembles a tracker.
type Config struct {
	Driver Driver

	// Camera is the VISCA network endpoint. It is ignored when SerialPort
	// is set or Driver is DriverPanasonic.
	Camera        visca.Config
	SerialPort    string
	Serial        visca.SerialOptions
	PanasonicHead panasonic.Config

	Pan, Tilt, Zoom pid.Config
	Scaling         ptz.Scaling
	Limits          ptz.Config

	// LoopInterval is the control period, default 33ms. Axis configs with
	// no sample period T inherit it.
	LoopInterval time.Duration

	// SearchSpeed and SearchPoll drive Search, defaults 24 and 500ms.
	SearchSpeed int
	SearchPoll  time.Duration

	Video   VideoConfig
	Monitor MonitorConfig

	Clock timeutil.Clock
}

// DefaultConfig returns a configuration with gains suited to a 30fps
// stream. The camera address still has to be filled in.
func DefaultConfig() Config {
	return Config{
		Driver:       DriverVISCA,
		Pan:          pid.Config{Kp: 0.8, Kd: 0.05, Ki: 0.02, OmegaC: 10},
		Tilt:         pid.Config{Kp: 0.8, Kd: 0.05, Ki: 0.02, OmegaC: 10},
		Zoom:         pid.Config{Kp: 0.5, OmegaC: 10},
		Scaling:      ptz.DefaultScaling(),
		LoopInterval: 33 * time.Millisecond,
	}
}

var errNoGains = errors.New("all gains are zero")

// Validate fills defaults and rejects configurations the tracker cannot
// run with.
func (cfg *Config) Validate() error {
	if cfg.Driver == "" {
		cfg.Driver = DriverVISCA
	}
	switch cfg.Driver {
	case DriverVISCA:
		if cfg.SerialPort == "" && cfg.Camera.Host == "" {
			return errors.New("camera host or serial port is required")
		}
	case DriverPanasonic:
		if cfg.PanasonicHead.Address == "" {
			return errors.New("panasonic address is required")
		}
	default:
		return fmt.Errorf("unknown driver %q", cfg.Driver)
	}

	if cfg.LoopInterval == 0 {
		cfg.LoopInterval = 33 * time.Millisecond
	}
	if cfg.LoopInterval < 0 {
		return errors.New("loop interval must be positive")
	}

	axes := []struct {
		name string
		cfg  *pid.Config
	}{{"pan", &cfg.Pan}, {"tilt", &cfg.Tilt}, {"zoom", &cfg.Zoom}}
	for _, a := range axes {
		if a.cfg.Kp == 0 && a.cfg.Kd == 0 && a.cfg.Ki == 0 {
			return fmt.Errorf("%s: %w", a.name, errNoGains)
		}
		if a.cfg.T == 0 {
			a.cfg.T = cfg.LoopInterval.Seconds()
		}
		if a.cfg.T < 0 || a.cfg.OmegaC < 0 {
			return fmt.Errorf("%s: sample period and corner frequency must not be negative", a.name)
		}
		if a.cfg.Min > a.cfg.Max {
			return fmt.Errorf("%s: min %v above max %v", a.name, a.cfg.Min, a.cfg.Max)
		}
	}

	if cfg.Limits.PanMax > visca.MaxPanTiltSpeed || cfg.Limits.TiltMax > visca.MaxPanTiltSpeed {
		return fmt.Errorf("pan/tilt limit above %d", visca.MaxPanTiltSpeed)
	}
	if cfg.Limits.ZoomMax > visca.MaxZoomSpeed {
		return fmt.Errorf("zoom limit above %d", visca.MaxZoomSpeed)
	}

	if cfg.SearchSpeed == 0 {
		cfg.SearchSpeed = visca.MaxPanTiltSpeed
	}
	if cfg.SearchSpeed < 0 || cfg.SearchSpeed > visca.MaxPanTiltSpeed {
		return fmt.Errorf("search speed %d out of range", cfg.SearchSpeed)
	}
	if cfg.SearchPoll <= 0 {
		cfg.SearchPoll = 500 * time.Millisecond
	}

	if cfg.Monitor.Preview && cfg.Video.URL == "" {
		return errors.New("monitor preview needs a video URL")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	cfg.Limits.Clock = cfg.Clock
	return nil
}
