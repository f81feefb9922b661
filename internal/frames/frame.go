package frames

import "time"

// Frame is one image handed from a Source to consumers. Data is opaque to
// this package: raw pixels for capture devices, an Annex-B access unit for
// network streams.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    string
	Timestamp time.Time
}

// Source is a blocking producer of frames. Read returns false when no valid
// frame could be obtained; callers simply try again. Right after a Channel
// is stopped and started again, Read may be called from the retiring
// goroutine and its replacement at the same time.
type Source interface {
	Read() (Frame, bool)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func() (Frame, bool)

func (f SourceFunc) Read() (Frame, bool) { return f() }
