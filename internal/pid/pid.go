// Package pid implements the discrete PID controller used for each camera axis.
//
// The controller is discretised with the bilinear (Tustin) transform and
// low-pass filters its derivative term. The integral is only committed while
// the unsaturated output stays strictly inside the configured bounds.
package pid

// Config holds the fixed gains and sample parameters of one axis.
type Config struct {
	Kp, Kd, Ki float64

	// T is the sample period in seconds.
	T float64
	// OmegaC is the derivative low-pass corner frequency in rad/s.
	OmegaC float64

	// Min and Max bound the output for anti-windup purposes only. When both
	// are zero they default to -24 and 24.
	Min, Max float64
}

// State is a snapshot of the controller memory.
type State struct {
	Error      float64 `json:"error"`
	Derivative float64 `json:"derivative"`
	Filtered   float64 `json:"filtered"`
	Integral   float64 `json:"integral"`
}

// Controller is a discrete PID controller.
//
// Not safe for concurrent use.
type Controller struct {
	cfg  Config
	past State
}

// New returns a controller with zeroed state.
func New(cfg Config) *Controller {
	if cfg.Min == 0 && cfg.Max == 0 {
		cfg.Min = -24
		cfg.Max = 24
	}
	return &Controller{cfg: cfg}
}

// Compute feeds one error sample and returns the unsaturated output.
func (c *Controller) Compute(err float64) float64 {
	T, wc := c.cfg.T, c.cfg.OmegaC

	diff := -c.past.Derivative + (err-c.past.Error)*(2/T)
	filt := ((2-T*wc)/(2+T*wc))*c.past.Filtered + T*wc*(diff+c.past.Derivative)/(2+T*wc)
	integ := c.past.Integral + (err+c.past.Error)*(T/2)

	out := c.cfg.Kp*err + c.cfg.Kd*filt + c.cfg.Ki*integ

	c.past.Error = err
	c.past.Derivative = diff
	c.past.Filtered = filt

	// Anti-windup: hold the integral while the output is saturated.
	if out > c.cfg.Min && out < c.cfg.Max {
		c.past.Integral = integ
	}

	return out
}

// State returns the current controller memory.
func (c *Controller) State() State {
	return c.past
}

// Config returns the controller parameters, defaults applied.
func (c *Controller) Config() Config {
	return c.cfg
}

// Reset clears the controller memory.
func (c *Controller) Reset() {
	c.past = State{}
}
