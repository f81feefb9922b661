package webrtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptz-tracker/internal/logging"
)

func TestMain(m *testing.M) {
	logging.SetLogger(nil)
	m.Run()
}

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, DefaultConfig().ICEServers)
}

func TestSession_ForwardStopsOnClose(t *testing.T) {
	s, err := NewSession(Config{}, nil)
	require.NoError(t, err)

	packets := make(chan []byte)
	done := make(chan struct{})
	go func() {
		s.Forward(packets)
		close(done)
	}()

	require.NoError(t, s.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Forward did not return after Close")
	}
	assert.NoError(t, s.Close())
}

func TestSession_ForwardStopsOnClosedChannel(t *testing.T) {
	s, err := NewSession(Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	packets := make(chan []byte)
	close(packets)
	s.Forward(packets)
}
