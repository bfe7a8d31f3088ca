package gateway

import "encoding/json"

// ProtocolVersion is announced in the hello event.
const ProtocolVersion = 1

// Frame types for the dashboard socket.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// EventHello is the first event sent on every connection.
const EventHello = "hello"

// Error codes carried in ErrorShape.Code.
const (
	CodeMethodNotFound = "method_not_found"
	CodeUnavailable    = "unavailable"
	CodeSendFailed     = "send_failed"
	CodeMarkReadFailed = "mark_read_failed"
	CodeHistoryFailed  = "history_failed"
	CodeInternal       = "internal"
)

// Frame is the envelope of every socket message. Dashboards send requests;
// the server answers with responses and pushes events.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// IsRequest reports whether f is a request with a method to dispatch.
func (f Frame) IsRequest() bool {
	return f.Type == FrameTypeRequest && f.Method != ""
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Hello is the payload of the hello event.
type Hello struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies the server and the connection.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features lists the RPC methods and events the server knows.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy tells dashboards the size limits in force.
type ServerPolicy struct {
	MaxPayload     int   `json:"maxPayload"`
	MaxUploadBytes int64 `json:"maxUploadBytes"`
}

func boolPtr(b bool) *bool { return &b }

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeResponse, ID: id, OK: boolPtr(true), Payload: raw}, nil
}

// NewErrorResponse creates a failed response frame.
func NewErrorResponse(id string, errShape ErrorShape) Frame {
	return Frame{Type: FrameTypeResponse, ID: id, OK: boolPtr(false), Error: &errShape}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}
