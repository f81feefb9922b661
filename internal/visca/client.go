// Package visca drives a PTZOptics-style camera over the VISCA protocol.
//
// Motion commands go over UDP and are fire-and-forget; position inquiries go
// over TCP and are answered with a 0xFF terminated reply. Commands are built
// as hex strings from a fixed template table and converted to bytes on send.
package visca

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ptz-tracker/internal/logging"
)

// Config for the VISCA client
type Config struct {
	Host    string
	TCPPort int // inquiries, default 5678
	UDPPort int // commands, default 1259

	// ConnectTimeout bounds the dial of each channel, default 600ms.
	ConnectTimeout time.Duration
	// IOTimeout bounds every read and write once connected, default 200ms.
	IOTimeout time.Duration

	// OverIP wraps UDP commands in the 8-byte VISCA-over-IP header used by
	// cameras listening on port 52381.
	OverIP bool
}

func (c Config) withDefaults() Config {
	if c.TCPPort == 0 {
		c.TCPPort = 5678
	}
	if c.UDPPort == 0 {
		c.UDPPort = 1259
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 600 * time.Millisecond
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = 200 * time.Millisecond
	}
	return c
}

// Client manages the query and command channels to one camera.
//
// The continuous-motion flags reflect issued commands, not camera
// acknowledgements. Concurrent Send or Read calls on the same channel must
// be serialised by the caller.
type Client struct {
	query     link
	command   link
	overIP    bool
	ioTimeout time.Duration

	seqMu  sync.Mutex
	seqNum uint32

	ptContinuous   atomic.Bool
	zoomContinuous atomic.Bool
}

// Connect opens both channels. If either fails nothing stays open.
func Connect(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Host == "" {
		return nil, &ConnectError{Channel: TCP, Err: errors.New("host is required")}
	}

	logging.Logf("VISCA: connecting to %s", cfg.Host)

	tcpAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	query, err := dialLink(TCP, tcpAddr, cfg.ConnectTimeout)
	if err != nil {
		logging.Logf("VISCA: could not connect on tcp channel: %v", err)
		return nil, &ConnectError{Channel: TCP, Addr: tcpAddr, Err: err}
	}

	udpAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.UDPPort))
	command, err := dialLink(UDP, udpAddr, cfg.ConnectTimeout)
	if err != nil {
		query.Close()
		logging.Logf("VISCA: could not connect on udp channel: %v", err)
		return nil, &ConnectError{Channel: UDP, Addr: udpAddr, Err: err}
	}

	query.SetTimeout(cfg.IOTimeout)
	command.SetTimeout(cfg.IOTimeout)

	logging.Logf("VISCA: connected (tcp %s, udp %s)", tcpAddr, udpAddr)
	return &Client{query: query, command: command, overIP: cfg.OverIP, ioTimeout: cfg.IOTimeout}, nil
}

// Close closes both channels.
func (c *Client) Close() error {
	var errs []error
	if c.query != nil {
		errs = append(errs, c.query.Close())
	}
	if c.command != nil && c.command != c.query {
		errs = append(errs, c.command.Close())
	}
	return errors.Join(errs...)
}

func (c *Client) link(ch Channel) link {
	if ch == TCP {
		return c.query
	}
	return c.command
}

// wrapOverIP prefixes a raw command with the VISCA-over-IP header:
// message type (2 bytes), payload length (2 bytes), sequence number (4 bytes).
func (c *Client) wrapOverIP(raw []byte) []byte {
	c.seqMu.Lock()
	seq := c.seqNum
	c.seqNum++
	c.seqMu.Unlock()

	packet := make([]byte, 8, 8+len(raw))
	packet[0] = 0x01
	packet[1] = 0x00
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(raw)))
	binary.BigEndian.PutUint32(packet[4:8], seq)
	return append(packet, raw...)
}

// Send writes a hex command string to the chosen channel. Failures are not
// retried.
func (c *Client) Send(cmd string, ch Channel) error {
	raw, err := hex.DecodeString(cmd)
	if err != nil {
		return &SendError{Channel: ch, Command: cmd, Err: err}
	}
	if ch == UDP && c.overIP {
		raw = c.wrapOverIP(raw)
	}
	if _, err := c.link(ch).Write(raw); err != nil {
		logging.Logf("VISCA: %s: %v", cmd, err)
		return &SendError{Channel: ch, Command: cmd, Err: err}
	}
	return nil
}

// Read collects a reply from the query channel until it ends with the
// terminator byte. On timeout or error the partial reply is returned along
// with the error. The reply is lowercase hex.
func (c *Client) Read(terminator byte) (string, error) {
	suffix := fmt.Sprintf("%02x", terminator)
	var total strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := c.query.Read(buf)
		if n > 0 {
			total.WriteString(hex.EncodeToString(buf[:n]))
			if strings.HasSuffix(total.String(), suffix) {
				return total.String(), nil
			}
		}
		if err != nil {
			if errors.Is(err, errLinkTimeout) {
				logging.Logf("VISCA: no data from camera socket")
				return total.String(), ErrReadTimeout
			}
			logging.Logf("VISCA: camera socket read error: %v", err)
			return total.String(), fmt.Errorf("visca: read: %w", err)
		}
	}
}

// PanTiltContinuous reports whether a continuous pan/tilt command is outstanding.
func (c *Client) PanTiltContinuous() bool { return c.ptContinuous.Load() }

// ZoomContinuous reports whether a continuous zoom command is outstanding.
func (c *Client) ZoomContinuous() bool { return c.zoomContinuous.Load() }

// Stop halts pan/tilt motion.
func (c *Client) Stop() error {
	c.ptContinuous.Store(false)
	return c.Send(render(OpStop), UDP)
}

// Cancel aborts the command in progress.
func (c *Client) Cancel() error {
	c.ptContinuous.Store(false)
	c.zoomContinuous.Store(false)
	return c.Send(render(OpCancel), UDP)
}

// Reset re-initialises the pan/tilt mechanics.
func (c *Client) Reset() error {
	c.ptContinuous.Store(false)
	c.zoomContinuous.Store(false)
	return c.Send(render(OpReset), UDP)
}

// Home moves to the home position.
func (c *Client) Home() error {
	c.ptContinuous.Store(false)
	return c.Send(render(OpHome), UDP)
}

// Goto moves to an absolute pan/tilt position at speed 0-24.
func (c *Client) Goto(pan, tilt, speed int) error {
	cmd, err := EncodeGoto(OpGoto, pan, tilt, speed)
	if err != nil {
		return err
	}
	c.ptContinuous.Store(false)
	return c.Send(cmd, UDP)
}

// GotoRelative moves by a pan/tilt offset at speed 0-24.
func (c *Client) GotoRelative(pan, tilt, speed int) error {
	cmd, err := EncodeGoto(OpGotoRelative, pan, tilt, speed)
	if err != nil {
		return err
	}
	c.ptContinuous.Store(false)
	return c.Send(cmd, UDP)
}

func (c *Client) cardinal(op Op, speed int) error {
	cmd, err := EncodeCardinal(op, speed)
	if err != nil {
		return err
	}
	c.ptContinuous.Store(true)
	return c.Send(cmd, UDP)
}

func (c *Client) diagonal(op Op, pan, tilt int) error {
	cmd, err := EncodeDiagonal(op, pan, tilt)
	if err != nil {
		return err
	}
	c.ptContinuous.Store(true)
	return c.Send(cmd, UDP)
}

func (c *Client) Left(speed int) error  { return c.cardinal(OpLeft, speed) }
func (c *Client) Right(speed int) error { return c.cardinal(OpRight, speed) }
func (c *Client) Up(speed int) error    { return c.cardinal(OpUp, speed) }
func (c *Client) Down(speed int) error  { return c.cardinal(OpDown, speed) }

func (c *Client) LeftUp(pan, tilt int) error    { return c.diagonal(OpLeftUp, pan, tilt) }
func (c *Client) RightUp(pan, tilt int) error   { return c.diagonal(OpRightUp, pan, tilt) }
func (c *Client) LeftDown(pan, tilt int) error  { return c.diagonal(OpLeftDown, pan, tilt) }
func (c *Client) RightDown(pan, tilt int) error { return c.diagonal(OpRightDown, pan, tilt) }

// ZoomStop halts the zoom motor.
func (c *Client) ZoomStop() error {
	c.zoomContinuous.Store(false)
	return c.Send(render(OpZoomStop), UDP)
}

// ZoomIn starts a tele zoom at speed 0-7.
func (c *Client) ZoomIn(speed int) error {
	return c.zoom(OpZoomIn, speed)
}

// ZoomOut starts a wide zoom at speed 0-7.
func (c *Client) ZoomOut(speed int) error {
	return c.zoom(OpZoomOut, speed)
}

func (c *Client) zoom(op Op, speed int) error {
	cmd, err := EncodeZoom(op, speed)
	if err != nil {
		return err
	}
	c.zoomContinuous.Store(true)
	return c.Send(cmd, UDP)
}

// ZoomTo moves to an absolute zoom position (0-16384 on 20x models).
func (c *Client) ZoomTo(zoom int) error {
	cmd, err := EncodeZoomTo(zoom)
	if err != nil {
		return err
	}
	c.zoomContinuous.Store(false)
	return c.Send(cmd, UDP)
}

// RecallPreset recalls a preset position (0-255).
func (c *Client) RecallPreset(preset int) error {
	cmd, err := EncodePreset(OpPresetRecall, preset)
	if err != nil {
		return err
	}
	c.ptContinuous.Store(false)
	return c.Send(cmd, UDP)
}

// SavePreset stores the current position in a preset (0-255).
func (c *Client) SavePreset(preset int) error {
	cmd, err := EncodePreset(OpPresetSet, preset)
	if err != nil {
		return err
	}
	return c.Send(cmd, UDP)
}

const (
	// drainTimeout bounds each read that clears stale bytes before a query.
	drainTimeout  = 5 * time.Millisecond
	maxDrainReads = 64
	// maxSkippedReplies bounds how many command acknowledgements a query
	// will step over while waiting for its answer.
	maxSkippedReplies = 4
)

// drain discards whatever is already waiting on the query channel: late
// answers to timed-out queries and, on a shared serial line, the
// acknowledgements of earlier commands.
func (c *Client) drain() {
	if err := c.query.SetTimeout(drainTimeout); err != nil {
		return
	}
	defer c.query.SetTimeout(c.ioTimeout)

	buf := make([]byte, 64)
	for i := 0; i < maxDrainReads; i++ {
		n, err := c.query.Read(buf)
		if n > 0 {
			logging.Logf("VISCA: discarded stale reply %x", buf[:n])
		}
		if err != nil || n == 0 {
			return
		}
	}
}

// isCommandReply reports whether resp is an ACK (x0 4y FF) or completion
// (x0 5y FF) rather than an inquiry answer.
func isCommandReply(resp string) bool {
	return len(resp) == 6 && (resp[2] == '4' || resp[2] == '5')
}

// inquire sends an inquiry and returns its answer. Read failures are
// reported as ErrPositionUnavailable wrapping the cause.
func (c *Client) inquire(op Op) (string, error) {
	c.drain()
	if err := c.Send(render(op), TCP); err != nil {
		return "", err
	}
	for skipped := 0; ; skipped++ {
		resp, err := c.Read(0xFF)
		if err != nil {
			return resp, fmt.Errorf("%w: %w", ErrPositionUnavailable, err)
		}
		if !isCommandReply(resp) || skipped == maxSkippedReplies {
			return resp, nil
		}
	}
}

// ZoomPosition queries the current zoom position. A reply that cannot be
// read or decoded yields an error matching ErrPositionUnavailable.
func (c *Client) ZoomPosition() (int, error) {
	resp, err := c.inquire(OpQueryZoom)
	if err != nil {
		return 0, err
	}
	return DecodeZoom(resp)
}

// PanTiltPosition queries the current pan/tilt position. A reply that
// cannot be read or decoded yields an error matching ErrPositionUnavailable.
func (c *Client) PanTiltPosition() (PanTilt, error) {
	resp, err := c.inquire(OpQueryPanTilt)
	if err != nil {
		return PanTilt{}, err
	}
	return DecodePanTilt(resp)
}
