package domain

// FrameType tags a realtime chat frame.
type FrameType string

const (
	// client -> server
	FrameAuth FrameType = "auth"
	FrameSend FrameType = "send"
	FramePing FrameType = "ping"

	// server -> client
	FrameReady   FrameType = "ready"
	FrameMessage FrameType = "message"
	FramePong    FrameType = "pong"
	FrameError   FrameType = "error"
)

// Frame is the single JSON shape exchanged on the realtime channel of one order.
//
// The first client frame must be auth; the server answers ready or error. A message
// frame carries the persisted message and echoes the sender's ClientID, so it doubles
// as the acknowledgement of a send.
type Frame struct {
	Type     FrameType `json:"type"`
	Token    string    `json:"token,omitempty"`
	ClientID string    `json:"client_id,omitempty"`
	Body     string    `json:"body,omitempty"`
	Message  *Message  `json:"message,omitempty"`
	Code     string    `json:"code,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func NewMessageFrame(m *Message) *Frame {
	return &Frame{Type: FrameMessage, Message: m}
}

func NewErrorFrame(code, message string) *Frame {
	return &Frame{Type: FrameError, Code: code, Error: message}
}
