package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/actsim/internal/canonical"
	"github.com/roach88/actsim/internal/sim"
)

// marshalPayload converts an event payload to canonical JSON TEXT for
// storage. A nil payload is stored as {}.
func marshalPayload(payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := canonical.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload converts stored JSON TEXT back to a payload map.
// Empty text decodes to an empty map.
func unmarshalPayload(text string) (map[string]any, error) {
	payload := map[string]any{}
	if text == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

// marshalSnapshot encodes a state in the wire format.
func marshalSnapshot(state sim.State) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}

// unmarshalSnapshot decodes a stored snapshot.
func unmarshalSnapshot(text string) (sim.State, error) {
	var state sim.State
	if err := json.Unmarshal([]byte(text), &state); err != nil {
		return sim.State{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return state, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
