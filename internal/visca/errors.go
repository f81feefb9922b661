package visca

import (
	"errors"
	"fmt"
)

var (
	// ErrReadTimeout is returned by Read when the camera stopped answering
	// before the terminator arrived.
	ErrReadTimeout = errors.New("visca: read timeout")

	// ErrPositionUnavailable is returned by position queries whose response
	// could not be decoded.
	ErrPositionUnavailable = errors.New("visca: position unavailable")

	// ErrSpeedRange is returned when a speed is outside what the command accepts.
	ErrSpeedRange = errors.New("visca: speed out of range")

	// ErrValueRange is returned when a position or preset does not fit its field.
	ErrValueRange = errors.New("visca: value out of range")
)

// ConnectError reports a failed connect on one of the two channels.
type ConnectError struct {
	Channel Channel
	Addr    string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("visca: connect %s %s: %v", e.Channel, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError reports a command that could not be written.
type SendError struct {
	Channel Channel
	Command string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("visca: send %s over %s: %v", e.Command, e.Channel, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// DecodeError reports a query response of unexpected length.
type DecodeError struct {
	Response string
	Want     int
	Got      int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("visca: decode %q: want %d payload digits, got %d", e.Response, e.Want, e.Got)
}

func (e *DecodeError) Is(target error) bool { return target == ErrPositionUnavailable }
