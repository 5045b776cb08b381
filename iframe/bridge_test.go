package iframe

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/ersatz/network"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name string
		data any
		want Envelope
		ok   bool
	}{
		{"exported object", map[string]any{"message": "hi", "frameId": int64(1), "instanceId": int64(0)}, Envelope{Message: "hi", FrameID: 1}, true},
		{"float ids", map[string]any{"message": "hi", "frameId": 2.0, "instanceId": 3.0}, Envelope{Message: "hi", FrameID: 2, InstanceID: 3}, true},
		{"json text", `{"type":"dom-event","name":"load","frameId":1,"instanceId":1}`, Envelope{Type: DOMEventType, Name: EventLoad, FrameID: 1, InstanceID: 1}, true},
		{"json bytes", []byte(`{"message":{"a":1},"frameId":1,"instanceId":1}`), Envelope{Message: map[string]any{"a": 1.0}, FrameID: 1, InstanceID: 1}, true},
		{"missing instance", map[string]any{"message": "hi", "frameId": int64(1)}, Envelope{}, false},
		{"fractional id", map[string]any{"frameId": 1.5, "instanceId": int64(0)}, Envelope{}, false},
		{"string id", map[string]any{"frameId": "1", "instanceId": int64(0)}, Envelope{}, false},
		{"plain string", "hello", Envelope{}, false},
		{"nil", nil, Envelope{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseEnvelope(tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBridgeAccept(t *testing.T) {
	b := Bridge{FrameID: 1, Origin: "http://localhost"}
	data := func(frameID, instanceID int) any {
		return map[string]any{"message": "hi", "frameId": int64(frameID), "instanceId": int64(instanceID)}
	}

	env, ok := b.Accept(data(1, 2), "http://localhost", 2)
	require.True(t, ok)
	assert.Equal(t, "hi", env.Message)

	_, ok = b.Accept(data(2, 2), "http://localhost", 2)
	assert.False(t, ok, "other frame")
	_, ok = b.Accept(data(1, 1), "http://localhost", 2)
	assert.False(t, ok, "previous generation")
	_, ok = b.Accept(data(1, 2), "null", 2)
	assert.False(t, ok, "opaque origin")
	_, ok = b.Accept(data(1, 2), "https://evil.test", 2)
	assert.False(t, ok, "foreign origin")
}

func TestProbe(t *testing.T) {
	var method, accept string
	client, err := network.NewClient(network.WithTransport(network.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		method, accept = req.Method, req.Header.Get("Accept")
		return network.Routes{
			"https://foo.bar/404": {Status: http.StatusNotFound},
			"https://down.test/":  {Err: errors.New("connection refused")},
		}.RoundTrip(req)
	})))
	require.NoError(t, err)

	assert.NoError(t, Probe(context.Background(), client, "https://foo.bar/404"), "HTTP errors count as reachable")
	assert.Equal(t, http.MethodHead, method)
	assert.Equal(t, "*/*", accept)

	err = Probe(context.Background(), client, "https://down.test/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
