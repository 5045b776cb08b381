package iframe

import (
	"encoding/json"
	"math"
)

// Envelope is a message posted by a frame to its parent: an app message
// {message, frameId, instanceId} or a lifecycle notification
// {type: "dom-event", name, frameId, instanceId}.
type Envelope struct {
	Type       string `json:"type,omitempty"`
	Name       string `json:"name,omitempty"`
	Message    any    `json:"message"`
	FrameID    int    `json:"frameId"`
	InstanceID int    `json:"instanceId"`
}

// IsDOMEvent reports whether e is a lifecycle notification.
func (e Envelope) IsDOMEvent() bool {
	return e.Type == DOMEventType
}

// ParseEnvelope reads the envelope out of message event data, as exported
// from a script (map[string]any) or received as JSON text. It reports
// false for data that does not carry both ids.
func ParseEnvelope(data any) (Envelope, bool) {
	var fields map[string]any
	switch d := data.(type) {
	case map[string]any:
		fields = d
	case string:
		if err := json.Unmarshal([]byte(d), &fields); err != nil {
			return Envelope{}, false
		}
	case []byte:
		if err := json.Unmarshal(d, &fields); err != nil {
			return Envelope{}, false
		}
	default:
		return Envelope{}, false
	}
	frameID, ok1 := integer(fields["frameId"])
	instanceID, ok2 := integer(fields["instanceId"])
	if !ok1 || !ok2 {
		return Envelope{}, false
	}
	e := Envelope{Message: fields["message"], FrameID: frameID, InstanceID: instanceID}
	e.Type, _ = fields["type"].(string)
	e.Name, _ = fields["name"].(string)
	return e, true
}

func integer(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// Bridge filters the messages received by the host window for one frame.
type Bridge struct {
	FrameID int
	// Origin is the host's own origin.
	Origin string
}

// Accept returns the envelope of data when it was sent by the frame's
// generation instanceID from the host origin.
func (b Bridge) Accept(data any, origin string, instanceID int) (Envelope, bool) {
	if origin != b.Origin {
		return Envelope{}, false
	}
	e, ok := ParseEnvelope(data)
	if !ok || e.FrameID != b.FrameID || e.InstanceID != instanceID {
		return Envelope{}, false
	}
	return e, true
}
