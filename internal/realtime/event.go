// ABOUTME: Wire frame and event types for the pusher-style broadcast protocol
// ABOUTME: Frames are untrusted; payload validation happens in the session layer

package realtime

import (
	"encoding/json"
	"strings"
)

// Event is one application event delivered on a subscribed channel. Data
// is the raw payload; consumers must parse and validate it before use.
type Event struct {
	Channel string
	Name    string
	Data    json.RawMessage
}

// Handler receives events for a single channel. Handlers run on the
// connection's read goroutine and must not block.
type Handler func(Event)

// frame is the wire envelope for every protocol message in both
// directions. Data arrives either as an object or as a JSON-encoded
// string containing an object, depending on the server.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Protocol event names.
const (
	evConnectionEstablished = "pusher:connection_established"
	evSubscribe             = "pusher:subscribe"
	evUnsubscribe           = "pusher:unsubscribe"
	evSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	evSubscriptionError     = "pusher:subscription_error"
	evPing                  = "pusher:ping"
	evPong                  = "pusher:pong"
	evError                 = "pusher:error"
)

// isProtocolEvent reports whether the event name belongs to the transport
// protocol rather than the application.
func isProtocolEvent(name string) bool {
	return strings.HasPrefix(name, "pusher:") || strings.HasPrefix(name, "pusher_internal:")
}

// unwrapData normalizes a frame's data field: servers deliver payloads
// either inline or double-encoded as a JSON string.
func unwrapData(data json.RawMessage) json.RawMessage {
	if len(data) == 0 || data[0] != '"' {
		return data
	}
	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return data
	}
	return json.RawMessage(inner)
}
