package frames

import "time"

const rateSmoothing = 0.95

// rateCounter is an exponentially weighted frames-per-second estimate.
type rateCounter struct {
	last time.Time
	rate float64
}

func (r *rateCounter) tick(now time.Time) {
	if r.last.IsZero() {
		r.last = now
		return
	}
	dt := now.Sub(r.last).Seconds()
	r.last = now
	if dt <= 0 {
		return
	}
	r.rate = r.rate*rateSmoothing + (1/dt)*(1-rateSmoothing)
}
