package sim

import (
	"encoding/json"
	"time"
)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type decisionsJSON struct {
	Act1 *string `json:"act1"`
	Act2 *string `json:"act2"`
	Act3 *string `json:"act3"`
	Act4 *string `json:"act4"`
}

// MarshalJSON encodes undecided Acts as null.
func (d Decisions) MarshalJSON() ([]byte, error) {
	return json.Marshal(decisionsJSON{
		Act1: nullable(d.Act1),
		Act2: nullable(d.Act2),
		Act3: nullable(d.Act3),
		Act4: nullable(d.Act4),
	})
}

// UnmarshalJSON accepts null or missing Acts as undecided.
func (d *Decisions) UnmarshalJSON(data []byte) error {
	var raw decisionsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Decisions{
		Act1: deref(raw.Act1),
		Act2: deref(raw.Act2),
		Act3: deref(raw.Act3),
		Act4: deref(raw.Act4),
	}
	return nil
}

type derivedJSON struct {
	Act2Branch       *string `json:"act2Branch"`
	Act3ContextGroup *string `json:"act3ContextGroup"`
	Act4Track        *string `json:"act4Track"`
}

// MarshalJSON encodes absent branches as null.
func (d Derived) MarshalJSON() ([]byte, error) {
	return json.Marshal(derivedJSON{
		Act2Branch:       nullable(d.Act2Branch),
		Act3ContextGroup: nullable(d.Act3ContextGroup),
		Act4Track:        nullable(d.Act4Track),
	})
}

// UnmarshalJSON accepts null or missing branches as absent.
func (d *Derived) UnmarshalJSON(data []byte) error {
	var raw derivedJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Derived{
		Act2Branch:       deref(raw.Act2Branch),
		Act3ContextGroup: deref(raw.Act3ContextGroup),
		Act4Track:        deref(raw.Act4Track),
	}
	return nil
}

type stateJSON struct {
	ParticipantID string    `json:"participantId"`
	SessionID     *string   `json:"sessionId"`
	Mode          Mode      `json:"mode"`
	StartedAt     time.Time `json:"startedAt"`
	CurrentAct    int       `json:"currentAct"`
	Decisions     Decisions `json:"decisions"`
	Derived       Derived   `json:"derived"`
	Events        []Event   `json:"events"`
	Version       string    `json:"version"`
}

// MarshalJSON encodes the snapshot in the camelCase wire format shared with
// the remote store and the local cache.
func (s State) MarshalJSON() ([]byte, error) {
	events := s.Events
	if events == nil {
		events = []Event{}
	}
	return json.Marshal(stateJSON{
		ParticipantID: s.ParticipantID,
		SessionID:     nullable(s.SessionID),
		Mode:          s.Mode,
		StartedAt:     s.StartedAt,
		CurrentAct:    s.CurrentAct,
		Decisions:     s.Decisions,
		Derived:       s.Derived,
		Events:        events,
		Version:       s.Version,
	})
}

// UnmarshalJSON decodes the wire format. Timestamps are converted to UTC.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	events := raw.Events
	if events == nil {
		events = []Event{}
	}
	for i := range events {
		events[i].Timestamp = events[i].Timestamp.UTC()
	}
	*s = State{
		ParticipantID: raw.ParticipantID,
		SessionID:     deref(raw.SessionID),
		Mode:          raw.Mode,
		StartedAt:     raw.StartedAt.UTC(),
		CurrentAct:    raw.CurrentAct,
		Decisions:     raw.Decisions,
		Derived:       raw.Derived,
		Events:        events,
		Version:       raw.Version,
	}
	return nil
}
