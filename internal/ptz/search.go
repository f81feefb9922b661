package ptz

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"ptz-tracker/internal/logging"
)

// sweepScale converts a random step into pan position units.
const sweepScale = 4.894

// SweepPan picks a random absolute pan position for a search sweep, spread
// over roughly ±2448 units around home. Positions left of home wrap from 65535.
func SweepPan(r *rand.Rand) int {
	step := r.Intn(1000) + 1
	if step > 500 {
		return int(float64(step-500) * sweepScale)
	}
	return int(65535 - float64(step)*sweepScale)
}

// GotoAndWait issues an absolute move and polls the camera every poll
// interval until it reports the requested pan position. Failed queries are
// retried until ctx ends.
func GotoAndWait(ctx context.Context, p Positioner, pan, tilt, speed int, poll time.Duration) error {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	if err := p.Goto(pan, tilt, speed); err != nil {
		return fmt.Errorf("goto %d,%d: %w", pan, tilt, err)
	}

	want := int(uint16(pan))
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		pos, err := p.PanTiltPosition()
		if err != nil {
			logging.Logf("PTZ: position query: %v", err)
			continue
		}
		if pos.Pan == want {
			return nil
		}
	}
}
