// Package ipc carries the editor-plugin and control protocol of imeswitchd.
//
// The wire format is newline-delimited JSON envelopes over a local socket.
// Editor plugins are often written in editor scripting languages, so the
// protocol avoids binary framing: one JSON object per line, a type tag, a
// client-chosen sequence number echoed in the response, and a payload.
package ipc

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion is bumped on incompatible envelope changes.
const ProtocolVersion = 1

// Envelope types.
const (
	// Requests from plugins and control clients.
	TypeHello           = "hello"
	TypeSurfaceOpened   = "surface_opened"
	TypeSurfaceClosed   = "surface_closed"
	TypeCursorMoved     = "cursor_moved"
	TypeFocusGained     = "focus_gained"
	TypeFocusLost       = "focus_lost"
	TypeDocumentChanged = "document_changed"
	TypeStatus          = "status"
	TypeEnable          = "enable"
	TypeDisable         = "disable"
	TypeHistory         = "history"
	TypeSubscribe       = "subscribe"
	TypePing            = "ping"

	// Responses.
	TypeHelloAck     = "hello_ack"
	TypeOK           = "ok"
	TypeError        = "error"
	TypeStatusReply  = "status_reply"
	TypeHistoryReply = "history_reply"
	TypePong         = "pong"

	// Events pushed to subscribers.
	TypeModeChanged  = "mode_changed"
	TypeSwitchFailed = "switch_failed"
	TypeFocusEvent   = "focus_changed"
)

// Envelope is one protocol message.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope with a marshaled payload. A nil payload
// yields an envelope without one.
func NewEnvelope(msgType string, seq uint64, payload any) (*Envelope, error) {
	env := &Envelope{Type: msgType, Seq: seq}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = data
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Hello is the first message a client sends.
type Hello struct {
	ClientName      string `json:"client_name"`
	ClientVersion   string `json:"client_version,omitempty"`
	ProtocolVersion int    `json:"protocol_version"`
}

// HelloAck acknowledges a hello.
type HelloAck struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion int    `json:"protocol_version"`
}

// SurfaceOpened announces a new editor surface.
type SurfaceOpened struct {
	SurfaceID string `json:"surface_id"`
	Language  string `json:"language"`
	App       string `json:"app,omitempty"`
	Text      string `json:"text"`
}

// SurfaceClosed announces a surface going away.
type SurfaceClosed struct {
	SurfaceID string `json:"surface_id"`
}

// CursorMoved reports a cursor position change. Line and column are
// zero-based; the column counts bytes within the line.
type CursorMoved struct {
	SurfaceID string `json:"surface_id"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
}

// FocusChanged reports focus entering or leaving a surface.
type FocusChanged struct {
	SurfaceID string `json:"surface_id"`
}

// DocumentChanged carries the full replacement text of a surface.
type DocumentChanged struct {
	SurfaceID string `json:"surface_id"`
	Text      string `json:"text"`
}

// ErrorReply reports a failed request.
type ErrorReply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeInvalidRequest = 1
	ErrCodeNotFound       = 2
	ErrCodeInternal       = 3
	ErrCodeUnavailable    = 4
)

// SurfaceInfo summarizes one surface for status replies.
type SurfaceInfo struct {
	ID          string    `json:"id"`
	App         string    `json:"app,omitempty"`
	Language    string    `json:"language"`
	Focused     bool      `json:"focused"`
	OpenedAt    time.Time `json:"opened_at"`
	LogicalMode string    `json:"logical_mode"`
	LastRegion  string    `json:"last_region"`
	Cycles      uint64    `json:"cycles"`
}

// StatusReply is the daemon status.
type StatusReply struct {
	Version      string            `json:"version"`
	StartedAt    time.Time         `json:"started_at"`
	UptimeSec    int64             `json:"uptime_sec"`
	Enabled      bool              `json:"enabled"`
	Backend      string            `json:"backend"`
	Available    bool              `json:"backend_available"`
	Surfaces     []SurfaceInfo     `json:"surfaces"`
	Suppressions map[string]uint64 `json:"suppressions,omitempty"`
}

// HistoryRequest asks for recent switch entries.
type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// HistoryEntry is one recorded switch in a history reply.
type HistoryEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	SurfaceID  string    `json:"surface_id"`
	Language   string    `json:"language"`
	Region     string    `json:"region"`
	Target     string    `json:"target"`
	Decision   string    `json:"decision"`
	Confidence float64   `json:"confidence"`
}

// HistoryReply carries recent switch entries, newest first.
type HistoryReply struct {
	Entries []HistoryEntry `json:"entries"`
}

// ModeChangedEvent is pushed when a switch executes.
type ModeChangedEvent struct {
	SurfaceID  string    `json:"surface_id"`
	Mode       string    `json:"mode"`
	Region     string    `json:"region"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// FocusChangedEvent is pushed when a surface gains or loses focus, so an
// indicator can hide on focus loss without waiting for a decision cycle.
type FocusChangedEvent struct {
	SurfaceID string    `json:"surface_id"`
	Focused   bool      `json:"focused"`
	Timestamp time.Time `json:"timestamp"`
}

// SwitchFailedEvent is pushed when the platform backend rejects a switch.
type SwitchFailedEvent struct {
	SurfaceID string    `json:"surface_id"`
	Mode      string    `json:"mode"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorEnvelope builds an error reply.
func NewErrorEnvelope(seq uint64, code int, message string) *Envelope {
	env, _ := NewEnvelope(TypeError, seq, &ErrorReply{Code: code, Message: message})
	return env
}
