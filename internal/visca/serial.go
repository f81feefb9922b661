package visca

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"ptz-tracker/internal/logging"
)

// SerialOptions describes the RS-232 line to a camera. Zero values take the
// VISCA defaults of 9600 8N1.
type SerialOptions struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // N, E or O

	// IOTimeout bounds every read once connected, default 200ms.
	IOTimeout time.Duration
}

// Normalize validates the options and applies defaults for any unset values.
func (o SerialOptions) Normalize() (SerialOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 9600
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	switch p := strings.ToUpper(strings.TrimSpace(o.Parity)); p {
	case "", "N", "NONE":
		o.Parity = "N"
	case "E", "EVEN":
		o.Parity = "E"
	case "O", "ODD":
		o.Parity = "O"
	default:
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = 200 * time.Millisecond
	}
	return o, nil
}

// Mode converts the options into the structure go.bug.st/serial opens ports with.
func (o SerialOptions) Mode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}
	return mode, nil
}

// serialPort is the part of serial.Port the client needs.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

var openSerialFn = func(path string, mode *serial.Mode) (serialPort, error) {
	return serial.Open(path, mode)
}

// serialLink reports a zero-byte read as a timeout, which is how
// go.bug.st/serial signals an expired read timeout.
type serialLink struct {
	port serialPort
}

func (l *serialLink) SetTimeout(d time.Duration) error {
	return l.port.SetReadTimeout(d)
}

func (l *serialLink) Read(p []byte) (int, error) {
	n, err := l.port.Read(p)
	if n == 0 && err == nil {
		return 0, errLinkTimeout
	}
	return n, err
}

func (l *serialLink) Write(p []byte) (int, error) { return l.port.Write(p) }
func (l *serialLink) Close() error                { return l.port.Close() }

// OpenSerial connects to a camera over RS-232. The single port carries both
// inquiries and motion commands.
func OpenSerial(path string, opts SerialOptions) (*Client, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, &ConnectError{Channel: UDP, Addr: path, Err: err}
	}
	mode, err := opts.Mode()
	if err != nil {
		return nil, &ConnectError{Channel: UDP, Addr: path, Err: err}
	}
	port, err := openSerialFn(path, mode)
	if err != nil {
		logging.Logf("VISCA: could not open serial port %s: %v", path, err)
		return nil, &ConnectError{Channel: UDP, Addr: path, Err: err}
	}
	l := &serialLink{port: port}
	if err := l.SetTimeout(opts.IOTimeout); err != nil {
		port.Close()
		return nil, &ConnectError{Channel: UDP, Addr: path, Err: err}
	}
	logging.Logf("VISCA: connected on %s (%d %d%s%d)", path, opts.BaudRate, opts.DataBits, opts.Parity, opts.StopBits)
	return &Client{query: l, command: l, ioTimeout: opts.IOTimeout}, nil
}
