package ptz

import "fmt"

// Sign classifies a control command.
type Sign int

const (
	Negative Sign = iota - 1
	Zero
	Positive
)

func signOf(v float64) Sign {
	switch {
	case v > 0:
		return Positive
	case v < 0:
		return Negative
	}
	return Zero
}

// Directive is one of the nine pan/tilt motion commands.
type Directive int

const (
	DirStop Directive = iota
	DirUp
	DirDown
	DirLeft
	DirRight
	DirLeftUp
	DirLeftDown
	DirRightUp
	DirRightDown
)

func (d Directive) String() string {
	switch d {
	case DirStop:
		return "stop"
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	case DirLeftUp:
		return "left_up"
	case DirLeftDown:
		return "left_down"
	case DirRightUp:
		return "right_up"
	case DirRightDown:
		return "right_down"
	}
	return fmt.Sprintf("directive(%d)", int(d))
}

// A positive pan command turns left, a positive tilt command moves up.
// Keyed by [pan sign, tilt sign]; an axis whose limited speed is zero is
// classified Zero.
var directiveTable = map[[2]Sign]Directive{
	{Zero, Zero}:         DirStop,
	{Zero, Positive}:     DirUp,
	{Zero, Negative}:     DirDown,
	{Positive, Zero}:     DirLeft,
	{Negative, Zero}:     DirRight,
	{Positive, Positive}: DirLeftUp,
	{Positive, Negative}: DirLeftDown,
	{Negative, Positive}: DirRightUp,
	{Negative, Negative}: DirRightDown,
}

// ZoomDirective is one of the three zoom commands.
type ZoomDirective int

const (
	ZoomHold ZoomDirective = iota
	ZoomIn
	ZoomOut
)

func (z ZoomDirective) String() string {
	switch z {
	case ZoomHold:
		return "zoom_stop"
	case ZoomIn:
		return "zoom_in"
	case ZoomOut:
		return "zoom_out"
	}
	return fmt.Sprintf("zoom_directive(%d)", int(z))
}

func (d Directive) MarshalText() ([]byte, error)     { return []byte(d.String()), nil }
func (z ZoomDirective) MarshalText() ([]byte, error) { return []byte(z.String()), nil }
