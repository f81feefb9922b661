package visca

import (
	"fmt"
	"strconv"
	"strings"
)

// Op names a command template.
type Op int

const (
	OpStop Op = iota
	OpCancel
	OpReset
	OpHome
	OpGoto
	OpGotoRelative
	OpLeft
	OpRight
	OpUp
	OpDown
	OpLeftUp
	OpRightUp
	OpLeftDown
	OpRightDown
	OpZoomStop
	OpZoomIn
	OpZoomOut
	OpZoomTo
	OpPresetRecall
	OpPresetSet
	OpQueryZoom
	OpQueryPanTilt
)

// Slots: VV pan speed, WW tilt speed, YYYY pan, ZZZZ tilt, p zoom speed,
// pqrs zoom position, PP preset.
var templates = map[Op]string{
	OpStop:         "8101060115150303FF",
	OpCancel:       "81010001FF",
	OpReset:        "81010605FF",
	OpHome:         "81010604FF",
	OpGoto:         "81010602VVWWYYYYZZZZFF",
	OpGotoRelative: "81010603VVWWYYYYZZZZFF",
	OpLeft:         "81010601VVWW0103FF",
	OpRight:        "81010601VVWW0203FF",
	OpUp:           "81010601VVWW0301FF",
	OpDown:         "81010601VVWW0302FF",
	OpLeftUp:       "81010601VVWW0101FF",
	OpRightUp:      "81010601VVWW0201FF",
	OpLeftDown:     "81010601VVWW0102FF",
	OpRightDown:    "81010601VVWW0202FF",
	OpZoomStop:     "8101040700FF",
	OpZoomIn:       "810104072pFF",
	OpZoomOut:      "810104073pFF",
	OpZoomTo:       "81010447pqrsFF",
	OpPresetRecall: "8101043F02PPFF",
	OpPresetSet:    "8101043F01PPFF",
	OpQueryZoom:    "81090447FF",
	OpQueryPanTilt: "81090612FF",
}

func (op Op) String() string {
	switch op {
	case OpStop:
		return "stop"
	case OpCancel:
		return "cancel"
	case OpReset:
		return "reset"
	case OpHome:
		return "home"
	case OpGoto:
		return "goto"
	case OpGotoRelative:
		return "goto_relative"
	case OpLeft:
		return "left"
	case OpRight:
		return "right"
	case OpUp:
		return "up"
	case OpDown:
		return "down"
	case OpLeftUp:
		return "left_up"
	case OpRightUp:
		return "right_up"
	case OpLeftDown:
		return "left_down"
	case OpRightDown:
		return "right_down"
	case OpZoomStop:
		return "zoom_stop"
	case OpZoomIn:
		return "zoom_in"
	case OpZoomOut:
		return "zoom_out"
	case OpZoomTo:
		return "zoom_to"
	case OpPresetRecall:
		return "preset_recall"
	case OpPresetSet:
		return "preset_set"
	case OpQueryZoom:
		return "query_zoom"
	case OpQueryPanTilt:
		return "query_pan_tilt"
	}
	return fmt.Sprintf("op(%d)", int(op))
}

const (
	MaxPanTiltSpeed = 24
	MaxZoomSpeed    = 7

	// idleSpeed fills the speed byte of the axis that does not move in a
	// cardinal pan or tilt command.
	idleSpeed = 0x15
)

// render substitutes slot/value pairs into the template for op.
func render(op Op, slots ...string) string {
	tpl, ok := templates[op]
	if !ok {
		panic(fmt.Sprintf("visca: no template for %s", op))
	}
	if len(slots) == 0 {
		return tpl
	}
	return strings.NewReplacer(slots...).Replace(tpl)
}

// speedHex encodes a speed as one zero-padded byte.
func speedHex(speed int) string {
	return fmt.Sprintf("%02X", speed)
}

// nibbleHex spreads the four nibbles of a 16-bit value over four bytes with
// the high nibble of each byte cleared: 0x1234 becomes "01020304". Negative
// values down to -32768 are sent as two's complement.
func nibbleHex(v int) (string, error) {
	if v < -0x8000 || v > 0xFFFF {
		return "", fmt.Errorf("%w: %d does not fit 16 bits", ErrValueRange, v)
	}
	digits := fmt.Sprintf("%04X", uint16(v))
	var b strings.Builder
	b.Grow(8)
	for _, d := range digits {
		b.WriteByte('0')
		b.WriteRune(d)
	}
	return b.String(), nil
}

// unnibble reverses nibbleHex for one 8-digit field by taking every odd
// indexed digit.
func unnibble(field string) (int, error) {
	var b strings.Builder
	b.Grow(len(field) / 2)
	for i := 1; i < len(field); i += 2 {
		b.WriteByte(field[i])
	}
	v, err := strconv.ParseUint(b.String(), 16, 16)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func checkPanTiltSpeed(speed int) error {
	if speed < 0 || speed > MaxPanTiltSpeed {
		return fmt.Errorf("%w: pan/tilt speed %d not in 0-%d", ErrSpeedRange, speed, MaxPanTiltSpeed)
	}
	return nil
}

// EncodeCardinal builds a single-axis continuous move. op must be one of
// OpLeft, OpRight, OpUp or OpDown.
func EncodeCardinal(op Op, speed int) (string, error) {
	if err := checkPanTiltSpeed(speed); err != nil {
		return "", err
	}
	switch op {
	case OpLeft, OpRight:
		return render(op, "VV", speedHex(speed), "WW", speedHex(idleSpeed)), nil
	case OpUp, OpDown:
		return render(op, "VV", speedHex(idleSpeed), "WW", speedHex(speed)), nil
	}
	return "", fmt.Errorf("visca: %s is not a cardinal move", op)
}

// EncodeDiagonal builds a two-axis continuous move. op must be one of the
// four diagonal ops.
func EncodeDiagonal(op Op, panSpeed, tiltSpeed int) (string, error) {
	switch op {
	case OpLeftUp, OpRightUp, OpLeftDown, OpRightDown:
	default:
		return "", fmt.Errorf("visca: %s is not a diagonal move", op)
	}
	if err := checkPanTiltSpeed(panSpeed); err != nil {
		return "", err
	}
	if err := checkPanTiltSpeed(tiltSpeed); err != nil {
		return "", err
	}
	return render(op, "VV", speedHex(panSpeed), "WW", speedHex(tiltSpeed)), nil
}

// EncodeGoto builds an absolute (OpGoto) or relative (OpGotoRelative)
// pan/tilt move. The single speed is used for both axes.
func EncodeGoto(op Op, pan, tilt, speed int) (string, error) {
	if op != OpGoto && op != OpGotoRelative {
		return "", fmt.Errorf("visca: %s is not a goto", op)
	}
	if err := checkPanTiltSpeed(speed); err != nil {
		return "", err
	}
	p, err := nibbleHex(pan)
	if err != nil {
		return "", fmt.Errorf("pan: %w", err)
	}
	t, err := nibbleHex(tilt)
	if err != nil {
		return "", fmt.Errorf("tilt: %w", err)
	}
	s := speedHex(speed)
	return render(op, "VV", s, "WW", s, "YYYY", p, "ZZZZ", t), nil
}

// EncodeZoom builds a continuous zoom in (OpZoomIn) or out (OpZoomOut).
func EncodeZoom(op Op, speed int) (string, error) {
	if op != OpZoomIn && op != OpZoomOut {
		return "", fmt.Errorf("visca: %s is not a continuous zoom", op)
	}
	if speed < 0 || speed > MaxZoomSpeed {
		return "", fmt.Errorf("%w: zoom speed %d not in 0-%d", ErrSpeedRange, speed, MaxZoomSpeed)
	}
	return render(op, "p", strconv.Itoa(speed)), nil
}

// EncodeZoomTo builds an absolute zoom move.
func EncodeZoomTo(zoom int) (string, error) {
	if zoom < 0 {
		return "", fmt.Errorf("%w: zoom %d is negative", ErrValueRange, zoom)
	}
	z, err := nibbleHex(zoom)
	if err != nil {
		return "", err
	}
	return render(OpZoomTo, "pqrs", z), nil
}

// EncodePreset builds a preset recall (OpPresetRecall) or set (OpPresetSet).
func EncodePreset(op Op, preset int) (string, error) {
	if op != OpPresetRecall && op != OpPresetSet {
		return "", fmt.Errorf("visca: %s is not a preset command", op)
	}
	if preset < 0 || preset > 0xFF {
		return "", fmt.Errorf("%w: preset %d not in 0-255", ErrValueRange, preset)
	}
	return render(op, "PP", fmt.Sprintf("%02X", preset)), nil
}

const (
	responseHeader  = 4
	responseTrailer = 2
)

// payload strips the reply header and terminator.
func payload(resp string) string {
	if len(resp) < responseHeader+responseTrailer {
		return ""
	}
	return resp[responseHeader : len(resp)-responseTrailer]
}

// DecodeZoom parses a zoom position inquiry reply.
func DecodeZoom(resp string) (int, error) {
	msg := payload(resp)
	if len(msg) != 8 {
		return 0, &DecodeError{Response: resp, Want: 8, Got: len(msg)}
	}
	z, err := unnibble(msg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	return z, nil
}

// PanTilt is a raw pan/tilt position as reported by the camera. Both values
// are unsigned 16-bit; positions left of or below home wrap around from 65535.
type PanTilt struct {
	Pan  int `json:"pan"`
	Tilt int `json:"tilt"`
}

// DecodePanTilt parses a pan/tilt position inquiry reply.
func DecodePanTilt(resp string) (PanTilt, error) {
	msg := payload(resp)
	if len(msg) != 16 {
		return PanTilt{}, &DecodeError{Response: resp, Want: 16, Got: len(msg)}
	}
	pan, err := unnibble(msg[:8])
	if err != nil {
		return PanTilt{}, fmt.Errorf("%w: pan: %v", ErrPositionUnavailable, err)
	}
	tilt, err := unnibble(msg[8:])
	if err != nil {
		return PanTilt{}, fmt.Errorf("%w: tilt: %v", ErrPositionUnavailable, err)
	}
	return PanTilt{Pan: pan, Tilt: tilt}, nil
}
