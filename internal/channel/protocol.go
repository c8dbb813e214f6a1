// Package channel maintains the live event channel to the AgroVision server:
// a Socket.IO v4 session carried over a single WebSocket, with reconnection,
// baseline re-sync and typed event dispatch.
package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound event names.
const (
	EventConnect          = "connect"
	EventConnectError     = "connect_error"
	EventDisconnect       = "disconnect"
	EventReconnectAttempt = "reconnect_attempt"
	EventReconnectFailed  = "reconnect_failed"
	EventInitialData      = "initial_data"
	EventNewAlert         = "new_alert"
	EventCameraFrame      = "camera_frame"
)

// Outbound event names.
const (
	EventGetAlerts    = "get_alerts"
	EventStartStreams = "start_streams"
)

// Event is a named event with its raw JSON payload.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s: empty payload", e.Name)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("event %s: %w", e.Name, err)
	}
	return nil
}

// NewEvent builds an Event, marshalling payload. Used for synthetic events and
// by tests injecting events without a live channel.
func NewEvent(name string, payload any) Event {
	ev := Event{Name: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// StatusPayload accompanies the synthetic connection lifecycle events.
type StatusPayload struct {
	State   string `json:"state"`
	Attempt int    `json:"attempt,omitempty"`
	Max     int    `json:"max,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Engine.IO packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// Socket.IO packet types, carried inside Engine.IO message packets.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

// openPacket is the Engine.IO handshake sent by the server.
type openPacket struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// readTimeout is how long to wait for any packet before treating the server as
// gone.
func (o openPacket) readTimeout() time.Duration {
	if o.PingInterval <= 0 {
		return 0
	}
	return time.Duration(o.PingInterval+o.PingTimeout) * time.Millisecond
}

type packetKind int

const (
	kindOpen packetKind = iota
	kindClose
	kindPing
	kindPong
	kindNoop
	kindConnect
	kindDisconnect
	kindEvent
	kindAck
	kindConnectError
)

// packet is a decoded frame.
type packet struct {
	kind  packetKind
	open  openPacket
	event Event
	err   string
}

var (
	errEmptyPacket   = errors.New("empty packet")
	errUnknownPacket = errors.New("unknown packet type")
)

// decodePacket parses one Engine.IO text frame.
func decodePacket(data []byte) (packet, error) {
	if len(data) == 0 {
		return packet{}, errEmptyPacket
	}

	switch data[0] {
	case eioOpen:
		var op openPacket
		if err := json.Unmarshal(data[1:], &op); err != nil {
			return packet{}, fmt.Errorf("decode open packet: %w", err)
		}
		return packet{kind: kindOpen, open: op}, nil
	case eioClose:
		return packet{kind: kindClose}, nil
	case eioPing:
		return packet{kind: kindPing}, nil
	case eioPong:
		return packet{kind: kindPong}, nil
	case eioNoop:
		return packet{kind: kindNoop}, nil
	case eioMessage:
		return decodeSocketPacket(data[1:])
	}
	return packet{}, fmt.Errorf("%w %q", errUnknownPacket, data[0])
}

func decodeSocketPacket(data []byte) (packet, error) {
	if len(data) == 0 {
		return packet{}, errEmptyPacket
	}
	typ := data[0]
	body := skipNamespace(data[1:])

	switch typ {
	case sioConnect:
		return packet{kind: kindConnect}, nil
	case sioDisconnect:
		return packet{kind: kindDisconnect}, nil
	case sioConnectError:
		var ce struct {
			Message string `json:"message"`
		}
		if len(body) > 0 && json.Unmarshal(body, &ce) == nil && ce.Message != "" {
			return packet{kind: kindConnectError, err: ce.Message}, nil
		}
		return packet{kind: kindConnectError, err: string(body)}, nil
	case sioEvent, sioAck:
		body = skipAckID(body)
		var parts []json.RawMessage
		if err := json.Unmarshal(body, &parts); err != nil {
			return packet{}, fmt.Errorf("decode event packet: %w", err)
		}
		if typ == sioAck {
			return packet{kind: kindAck}, nil
		}
		if len(parts) == 0 {
			return packet{}, errors.New("event packet without name")
		}
		var name string
		if err := json.Unmarshal(parts[0], &name); err != nil {
			return packet{}, fmt.Errorf("decode event name: %w", err)
		}
		ev := Event{Name: name}
		if len(parts) > 1 {
			ev.Payload = parts[1]
		}
		return packet{kind: kindEvent, event: ev}, nil
	}
	return packet{}, fmt.Errorf("%w 4%q", errUnknownPacket, typ)
}

// skipNamespace drops a "/ns," prefix. Only the default namespace is used.
func skipNamespace(data []byte) []byte {
	if len(data) == 0 || data[0] != '/' {
		return data
	}
	if i := bytes.IndexByte(data, ','); i >= 0 {
		return data[i+1:]
	}
	return nil
}

func skipAckID(data []byte) []byte {
	i := 0
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}
	return data[i:]
}

// encodeEvent frames an outbound event: 42["name",payload].
func encodeEvent(name string, payload any) ([]byte, error) {
	parts := []any{name}
	if payload != nil {
		parts = append(parts, payload)
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", name, err)
	}
	return append([]byte{eioMessage, sioEvent}, data...), nil
}

var (
	pongPacket    = []byte{eioPong}
	connectPacket = []byte{eioMessage, sioConnect}
)

// engineQuery restricts the session to the WebSocket transport.
const engineQuery = "EIO=4&transport=websocket"

// FlexString is a JSON string that also accepts a bare number, for ids the
// server sends as integers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// InitialData is the initial_data baseline. Alerts stay raw so one malformed
// entry does not discard the rest.
type InitialData struct {
	Cameras []FlexString      `json:"cameras"`
	Alerts  []json.RawMessage `json:"alerts"`
}

// CameraIDs returns the non-empty camera ids as strings.
func (d InitialData) CameraIDs() []string {
	ids := make([]string, 0, len(d.Cameras))
	for _, c := range d.Cameras {
		if c != "" {
			ids = append(ids, string(c))
		}
	}
	return ids
}
