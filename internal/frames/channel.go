// Package frames decouples a blocking frame source from the control loop.
//
// A Channel runs one acquisition goroutine that keeps only the newest frame.
// Consumers either take the frame once (Read) or peek at it (ReadLast).
package frames

import (
	"sync"
	"sync/atomic"

	"ptz-tracker/internal/timeutil"
)

// Channel holds the most recent frame produced by a Source.
type Channel struct {
	clock timeutil.Clock

	mu       sync.Mutex
	frame    Frame
	hasFrame bool
	consumed bool
	fps      rateCounter

	// stop belongs to the current run; each Start gets a fresh one so a
	// producer still blocked from an earlier run cannot cancel it.
	runMu     sync.Mutex
	stop      *atomic.Bool
	producers atomic.Int32
}

// NewChannel returns an idle Channel. A nil clock uses the wall clock.
func NewChannel(clock timeutil.Clock) *Channel {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Channel{clock: clock}
}

// Start launches the acquisition goroutine reading from src. It returns
// immediately. Calling Start on a running Channel is a no-op; after Stop it
// launches a new goroutine even if the previous one is still blocked in
// src.Read.
func (c *Channel) Start(src Source) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.stop != nil && !c.stop.Load() {
		return
	}
	stop := new(atomic.Bool)
	c.stop = stop

	c.mu.Lock()
	c.frame = Frame{}
	c.hasFrame = false
	c.consumed = false
	c.fps = rateCounter{}
	c.mu.Unlock()

	c.producers.Add(1)
	go c.acquire(src, stop)
}

// Stop asks the acquisition goroutine to exit after its current read. It
// does not wait and does not release the source.
func (c *Channel) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.stop != nil {
		c.stop.Store(true)
	}
}

func (c *Channel) acquire(src Source, stop *atomic.Bool) {
	defer c.producers.Add(-1)

	for !stop.Load() {
		frame, ok := src.Read()
		if !ok {
			continue
		}
		c.store(frame)
	}
}

func (c *Channel) store(frame Frame) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps.tick(now)
	c.frame = frame
	c.hasFrame = true
	c.consumed = false
}

// Read returns the newest frame if it has not been read yet.
func (c *Channel) Read() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasFrame || c.consumed {
		return Frame{}, false
	}
	c.consumed = true
	return c.frame, true
}

// ReadLast returns the newest frame whether or not it was already read. It
// reports false only if no frame was ever produced.
func (c *Channel) ReadLast() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame, c.hasFrame
}

// FrameRate returns the smoothed acquisition rate in frames per second.
func (c *Channel) FrameRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps.rate
}

// Running reports whether any acquisition goroutine is alive, including
// one that was stopped but is still blocked in its last read.
func (c *Channel) Running() bool {
	return c.producers.Load() > 0
}
