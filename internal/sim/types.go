package sim

import (
	"fmt"
	"slices"
	"time"
)

// SchemaVersion tags serialized snapshots for forward compatibility.
const SchemaVersion = "1.0"

// Act bounds.
const (
	FirstAct = 1
	FinalAct = 4
)

// Mode is the assistance condition a participant runs under.
type Mode string

const (
	ModeNoAssistance     Mode = "no-assistance"
	ModeGenerativeAssist Mode = "generative-assist"
	ModeAgenticAssist    Mode = "agentic-assist"
)

// Modes lists every valid Mode.
var Modes = []Mode{ModeNoAssistance, ModeGenerativeAssist, ModeAgenticAssist}

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !slices.Contains(Modes, m) {
		return "", fmt.Errorf("invalid mode %q: must be one of %v", s, Modes)
	}
	return m, nil
}

// EventType enumerates the kinds of SimulationEvent.
type EventType string

const (
	EventDecision     EventType = "decision"
	EventActStarted   EventType = "act_started"
	EventActCompleted EventType = "act_completed"
	EventStateSync    EventType = "state_sync"
	EventError        EventType = "error"
)

// PayloadOptionID is the payload key carrying a decision's choice code.
const PayloadOptionID = "optionId"

// Event is one entry in the append-only simulation log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Act       int            `json:"act"`
	Payload   map[string]any `json:"payload"`
}

// NewDecisionEvent builds a decision event for act with the given choice code.
func NewDecisionEvent(at time.Time, act int, optionID string) Event {
	return Event{
		Timestamp: at.UTC(),
		Type:      EventDecision,
		Act:       act,
		Payload:   map[string]any{PayloadOptionID: optionID},
	}
}

// NewActStartedEvent builds an act_started event.
func NewActStartedEvent(at time.Time, act int) Event {
	return Event{
		Timestamp: at.UTC(),
		Type:      EventActStarted,
		Act:       act,
		Payload:   map[string]any{},
	}
}

// OptionID returns the payload's choice code, or "" when absent or not a string.
func (e Event) OptionID() string {
	s, _ := e.Payload[PayloadOptionID].(string)
	return s
}

// Decisions holds the accepted choice code per Act. Empty means undecided.
type Decisions struct {
	Act1 string
	Act2 string
	Act3 string
	Act4 string
}

// Get returns the decision for act, or "" for an undecided or out-of-range act.
func (d Decisions) Get(act int) string {
	switch act {
	case 1:
		return d.Act1
	case 2:
		return d.Act2
	case 3:
		return d.Act3
	case 4:
		return d.Act4
	}
	return ""
}

// Set records code for act. Out-of-range acts are ignored.
func (d *Decisions) Set(act int, code string) {
	switch act {
	case 1:
		d.Act1 = code
	case 2:
		d.Act2 = code
	case 3:
		d.Act3 = code
	case 4:
		d.Act4 = code
	}
}

// Derived holds the branch selectors computed from Decisions.
type Derived struct {
	Act2Branch       string
	Act3ContextGroup string
	Act4Track        string
}

// State is the SimulationState snapshot for one participant run.
type State struct {
	ParticipantID string
	// SessionID is empty for an ephemeral preview run.
	SessionID  string
	Mode       Mode
	StartedAt  time.Time
	CurrentAct int
	Decisions  Decisions
	Derived    Derived
	Events     []Event
	Version    string
}

// NewState returns the freshly initialized state of a run.
func NewState(participantID, sessionID string, mode Mode, startedAt time.Time) State {
	return State{
		ParticipantID: participantID,
		SessionID:     sessionID,
		Mode:          mode,
		StartedAt:     startedAt.UTC(),
		CurrentAct:    FirstAct,
		Events:        []Event{},
		Version:       SchemaVersion,
	}
}

// Ephemeral reports whether the run is a non-persisted preview.
func (s State) Ephemeral() bool {
	return s.SessionID == ""
}

// Complete reports whether the final Act's decision has been recorded.
func (s State) Complete() bool {
	return s.Decisions.Act4 != ""
}
