// Package rtsp pulls the camera's video stream over RTSP and hands it to the
// tracker as frames.
//
// Every complete H264/H265 access unit becomes one frames.Frame in Annex-B
// form. Raw RTP packets can also be teed off for a browser preview.
package rtsp

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/pion/rtp"

	"ptz-tracker/internal/frames"
	"ptz-tracker/internal/logging"
	"ptz-tracker/internal/timeutil"
)

// ErrNoVideo is returned when the stream has no usable video media.
var ErrNoVideo = errors.New("rtsp: no H264/H265 video track")

// Config for the RTSP source
type Config struct {
	URL string

	// Timeout bounds RTSP reads and writes, default 10s.
	Timeout time.Duration

	// PreviewBuffer is the capacity of the raw RTP channel; zero disables
	// the preview tee.
	PreviewBuffer int

	Clock timeutil.Clock
}

type auDecoder interface {
	Decode(pkt *rtp.Packet) ([][]byte, error)
}

// Client handles the RTSP session and implements frames.Source.
type Client struct {
	cfg     Config
	frameCh chan frames.Frame
	rtpChan chan []byte
	stopCh  chan struct{}

	// teeOn is set once the stream's codec is known to suit the H264
	// preview track.
	teeOn atomic.Bool

	mu      sync.Mutex
	client  *gortsplib.Client
	stopped bool
	width   int
	height  int
	codec   string
}

var _ frames.Source = (*Client)(nil)

// NewClient validates the URL and prepares a client; nothing is dialled yet.
func NewClient(cfg Config) (*Client, error) {
	if _, err := base.ParseURL(cfg.URL); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	c := &Client{
		cfg:     cfg,
		frameCh: make(chan frames.Frame, 1),
		stopCh:  make(chan struct{}),
	}
	if cfg.PreviewBuffer > 0 {
		c.rtpChan = make(chan []byte, cfg.PreviewBuffer)
	}
	return c, nil
}

// Connect establishes the RTSP session and starts playing. A lost session
// is re-established in the background.
func (c *Client) Connect() error {
	return c.connect()
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client := &gortsplib.Client{
		Transport: func() *gortsplib.Transport {
			t := gortsplib.TransportTCP
			return &t
		}(),
		ReadTimeout:  c.cfg.Timeout,
		WriteTimeout: c.cfg.Timeout,
		OnDecodeError: func(err error) {
			logging.Logf("RTSP: decode error: %v", err)
		},
	}

	u, err := base.ParseURL(c.cfg.URL)
	if err != nil {
		return err
	}
	if err := client.Start(u.Scheme, u.Host); err != nil {
		return err
	}

	desc, _, err := client.Describe(u)
	if err != nil {
		client.Close()
		return err
	}

	media, forma, dec, err := c.pickVideo(desc)
	if err != nil {
		client.Close()
		return err
	}

	c.updateTee()

	if _, err := client.Setup(desc.BaseURL, media, 0, 0); err != nil {
		client.Close()
		return err
	}

	client.OnPacketRTP(media, forma, func(pkt *rtp.Packet) {
		c.tee(pkt)

		au, err := dec.Decode(pkt)
		if err != nil {
			// Most often the access unit spans more packets.
			return
		}
		c.publish(au)
	})

	if _, err := client.Play(nil); err != nil {
		client.Close()
		return err
	}

	c.client = client
	logging.Logf("RTSP: playing %s (%s %dx%d)", c.cfg.URL, c.codec, c.width, c.height)

	go c.monitorConnection()
	return nil
}

func (c *Client) pickVideo(desc *description.Session) (*description.Media, format.Format, auDecoder, error) {
	for _, media := range desc.Medias {
		for _, forma := range media.Formats {
			switch f := forma.(type) {
			case *format.H264:
				dec, err := f.CreateDecoder()
				if err != nil {
					return nil, nil, nil, err
				}
				c.codec = "h264"
				sps, _ := f.SafeParams()
				c.width, c.height = spsSize(sps)
				return media, f, dec, nil
			case *format.H265:
				dec, err := f.CreateDecoder()
				if err != nil {
					return nil, nil, nil, err
				}
				c.codec = "h265"
				_, sps, _ := f.SafeParams()
				c.width, c.height = h265Size(sps)
				return media, f, dec, nil
			}
		}
	}
	return nil, nil, nil, ErrNoVideo
}

// spsSize reads the frame size from an H264 SPS; zero if unknown.
func spsSize(buf []byte) (int, int) {
	if len(buf) == 0 {
		return 0, 0
	}
	var sps h264.SPS
	if err := sps.Unmarshal(buf); err != nil {
		logging.Logf("RTSP: invalid SPS: %v", err)
		return 0, 0
	}
	return sps.Width(), sps.Height()
}

func h265Size(buf []byte) (int, int) {
	if len(buf) == 0 {
		return 0, 0
	}
	var sps h265.SPS
	if err := sps.Unmarshal(buf); err != nil {
		logging.Logf("RTSP: invalid SPS: %v", err)
		return 0, 0
	}
	return sps.Width(), sps.Height()
}

// updateTee enables the preview tee for H264 streams only; the preview
// track cannot carry anything else. Called with c.mu held.
func (c *Client) updateTee() {
	on := c.rtpChan != nil && c.codec == "h264"
	if c.rtpChan != nil && !on {
		logging.Logf("RTSP: preview disabled for %s stream", c.codec)
	}
	c.teeOn.Store(on)
}

func (c *Client) tee(pkt *rtp.Packet) {
	if !c.teeOn.Load() {
		return
	}
	buf, err := pkt.Marshal()
	if err != nil {
		return
	}
	select {
	case c.rtpChan <- buf:
	default:
		// Preview is behind; drop.
	}
}

// publish turns an access unit into a frame, replacing any frame nobody
// has picked up yet.
func (c *Client) publish(au [][]byte) {
	data, err := h264.AnnexBMarshal(au)
	if err != nil {
		return
	}

	c.mu.Lock()
	f := frames.Frame{
		Data:      data,
		Width:     c.width,
		Height:    c.height,
		Format:    c.codec,
		Timestamp: c.cfg.Clock.Now(),
	}
	c.mu.Unlock()

	c.offer(f)
}

func (c *Client) offer(f frames.Frame) {
	for {
		select {
		case <-c.stopCh:
			return
		case c.frameCh <- f:
			return
		default:
		}
		select {
		case <-c.frameCh:
		default:
		}
	}
}

// Read blocks until the next frame arrives. It returns false once the
// client is closed.
func (c *Client) Read() (frames.Frame, bool) {
	select {
	case f := <-c.frameCh:
		return f, true
	case <-c.stopCh:
		return frames.Frame{}, false
	}
}

// monitorConnection watches for disconnection and reconnects
func (c *Client) monitorConnection() {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil {
		return
	}

	err := client.Wait()

	select {
	case <-c.stopCh:
		return
	default:
	}

	if err != nil {
		logging.Logf("RTSP: connection lost: %v", err)
	}

	for attempt := 1; ; attempt++ {
		delay := backoff(attempt)
		logging.Logf("RTSP: reconnect attempt %d in %v", attempt, delay)

		select {
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			logging.Logf("RTSP: reconnect failed: %v", err)
			continue
		}

		logging.Logf("RTSP: reconnected")
		return
	}
}

func backoff(attempt int) time.Duration {
	if attempt > 6 {
		return 30 * time.Second
	}
	return min(time.Duration(1<<uint(attempt-1))*time.Second, 30*time.Second)
}

// RTPChannel returns raw RTP packets for the preview, or nil when the tee
// is disabled or the stream is not H264. Call it after Connect.
func (c *Client) RTPChannel() <-chan []byte {
	if !c.teeOn.Load() {
		return nil
	}
	return c.rtpChan
}

// Close ends the session. Pending and future Reads return false.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	client := c.client
	c.mu.Unlock()

	close(c.stopCh)
	if client != nil {
		client.Close()
	}
	return nil
}
