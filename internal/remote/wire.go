// Package remote speaks the session state HTTP contract: the wire
// envelopes shared with the server, and a Client that implements the
// persistence manager's remote tier.
package remote

import (
	"net/url"

	"github.com/roach88/actsim/internal/sim"
)

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// OriginHeader carries the writer's client id on pushes, so broadcast
// followers can skip their own updates.
const OriginHeader = "X-Actsim-Origin"

// StateEnvelope is the response body of a state read.
type StateEnvelope struct {
	Status string     `json:"status"`
	Data   *StateData `json:"data,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// StateData wraps the snapshot inside a StateEnvelope.
type StateData struct {
	State sim.State `json:"state"`
}

// EventsEnvelope is the response body of an event log read.
type EventsEnvelope struct {
	Status string      `json:"status"`
	Data   *EventsData `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// EventsData wraps the event log inside an EventsEnvelope.
type EventsData struct {
	Events []sim.Event `json:"events"`
}

// PushRequest is the request body of a state write.
type PushRequest struct {
	StateSnapshot sim.State `json:"stateSnapshot"`
}

// StatusResponse is the body of a write acknowledgement or an error.
type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StatePath returns the state resource path for sessionID.
func StatePath(sessionID string) string {
	return sessionPath(sessionID) + "/state"
}

// EventsPath returns the event log resource path for sessionID.
func EventsPath(sessionID string) string {
	return sessionPath(sessionID) + "/events"
}

// RebuildPath returns the server-side rebuild resource path for sessionID.
func RebuildPath(sessionID string) string {
	return sessionPath(sessionID) + "/rebuild"
}

func sessionPath(sessionID string) string {
	return "/api/sessions/" + url.PathEscape(sessionID)
}
