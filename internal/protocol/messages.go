// Package protocol defines the JSON envelopes exchanged with monitor clients.
package protocol

import "encoding/json"

// Message types
const (
	TypePing         = "ping"
	TypePong         = "pong"
	TypeStatus       = "status"
	TypeTelemetry    = "telemetry"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
	TypePTZStop      = "ptz_stop"
	TypePTZHome      = "ptz_home"
	TypePTZPreset    = "ptz_preset"
	TypeError        = "error"
)

// Error codes
const (
	ErrCameraDisconnected = "CAMERA_DISCONNECTED"
	ErrVISCA              = "VISCA_ERROR"
	ErrInvalidMessage     = "INVALID_MESSAGE"
	ErrUnknownType        = "UNKNOWN_TYPE"
)

// Message is the base envelope for all WebSocket messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PingPayload for ping messages
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload for pong messages
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// StatusPayload is sent once when a monitor connects.
type StatusPayload struct {
	ClientID        string `json:"client_id"`
	CameraConnected bool   `json:"camera_connected"`
	VideoURL        string `json:"video_url,omitempty"`
	Preview         bool   `json:"preview"`
}

// TargetPayload is the detection the control step acted on.
type TargetPayload struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

// TelemetryPayload is broadcast after every control tick.
type TelemetryPayload struct {
	Timestamp int64          `json:"timestamp"`
	FrameRate float64        `json:"frame_rate"`
	Tracking  bool           `json:"tracking"`
	Target    *TargetPayload `json:"target,omitempty"`

	PanError  float64 `json:"pan_error"`
	TiltError float64 `json:"tilt_error"`
	ZoomError float64 `json:"zoom_error"`

	PanSpeed      int    `json:"pan_speed"`
	TiltSpeed     int    `json:"tilt_speed"`
	Directive     string `json:"directive"`
	ZoomSpeed     int    `json:"zoom_speed"`
	ZoomDirective string `json:"zoom_directive"`

	PanTiltContinuous bool `json:"pan_tilt_continuous"`
	ZoomContinuous    bool `json:"zoom_continuous"`
}

// SDPPayload for offer/answer messages
type SDPPayload struct {
	SDP string `json:"sdp"`
}

// ICECandidatePayload for ICE candidate messages
type ICECandidatePayload struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid"`
	SDPMLineIndex uint16 `json:"sdp_mline_index"`
}

// PTZPresetPayload for preset recall/save
type PTZPresetPayload struct {
	Action       string `json:"action"`
	PresetNumber int    `json:"preset_number"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// ParsePayload unmarshals the payload into the given struct
func (m *Message) ParsePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}
