package visca

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Channel selects the socket a command travels on.
type Channel int

const (
	// UDP carries motion commands.
	UDP Channel = iota
	// TCP carries inquiries and their replies.
	TCP
)

func (c Channel) String() string {
	if c == TCP {
		return "tcp"
	}
	return "udp"
}

// link is one byte pipe to the camera with a per-call I/O timeout.
type link interface {
	io.ReadWriteCloser
	SetTimeout(d time.Duration) error
}

// errLinkTimeout is returned by link reads that hit their timeout.
var errLinkTimeout = errors.New("link timeout")

// netLink applies a fresh deadline to every read and write of a net.Conn.
type netLink struct {
	conn    net.Conn
	timeout time.Duration
}

func (l *netLink) SetTimeout(d time.Duration) error {
	l.timeout = d
	return nil
}

func (l *netLink) Read(p []byte) (int, error) {
	if l.timeout > 0 {
		l.conn.SetReadDeadline(time.Now().Add(l.timeout))
	}
	n, err := l.conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, errLinkTimeout
	}
	return n, err
}

func (l *netLink) Write(p []byte) (int, error) {
	if l.timeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(l.timeout))
	}
	return l.conn.Write(p)
}

func (l *netLink) Close() error {
	return l.conn.Close()
}

var dialFn = net.DialTimeout

func dialLink(ch Channel, addr string, timeout time.Duration) (link, error) {
	conn, err := dialFn(ch.String(), addr, timeout)
	if err != nil {
		return nil, err
	}
	return &netLink{conn: conn, timeout: timeout}, nil
}
