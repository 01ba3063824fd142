package harness

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/actsim/internal/sim"
	"github.com/roach88/actsim/internal/testutil"
)

// DefaultParticipant is used when a scenario names no participant.
const DefaultParticipant = "scenario-participant"

// Scenario defines one participant run and the state it must reach.
type Scenario struct {
	// Name uniquely identifies this scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Participant string `yaml:"participant,omitempty"`

	// Session is empty for an ephemeral preview run.
	Session string `yaml:"session,omitempty"`

	Mode string `yaml:"mode,omitempty"`

	// Events is the raw log, in file order. The rebuilder sorts it.
	Events []EventStep `yaml:"events"`

	Expect Expectation `yaml:"expect"`
}

// EventStep is one logged event.
type EventStep struct {
	// At is the offset in seconds from testutil.Epoch.
	At float64 `yaml:"at"`

	// Type defaults to decision.
	Type string `yaml:"type,omitempty"`

	Act int `yaml:"act"`

	// Option is the choice code carried as the payload's optionId.
	Option string `yaml:"option,omitempty"`
}

// Expectation lists the checks made against the rebuilt state. Nil and
// absent fields are not checked.
type Expectation struct {
	CurrentAct *int `yaml:"current_act,omitempty"`

	// Decisions is keyed act1..act4. An empty value requires the Act to be
	// undecided.
	Decisions map[string]string `yaml:"decisions,omitempty"`

	// Derived is keyed act2_branch, act3_context_group, act4_track. An empty
	// value requires the field to be absent.
	Derived map[string]string `yaml:"derived,omitempty"`

	Complete *bool `yaml:"complete,omitempty"`

	EventCount *int `yaml:"event_count,omitempty"`
}

// Derived field keys accepted in Expectation.Derived.
const (
	DerivedAct2Branch       = "act2_branch"
	DerivedAct3ContextGroup = "act3_context_group"
	DerivedAct4Track        = "act4_track"
)

var derivedKeys = []string{DerivedAct2Branch, DerivedAct3ContextGroup, DerivedAct4Track}

var eventTypes = []sim.EventType{
	sim.EventDecision,
	sim.EventActStarted,
	sim.EventActCompleted,
	sim.EventStateSync,
	sim.EventError,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML, applies defaults and validates it.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&scenario)
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, ordered by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func applyDefaults(s *Scenario) {
	if s.Participant == "" {
		s.Participant = DefaultParticipant
	}
	if s.Mode == "" {
		s.Mode = string(sim.ModeNoAssistance)
	}
	for i := range s.Events {
		if s.Events[i].Type == "" {
			s.Events[i].Type = string(sim.EventDecision)
		}
	}
}

// validateScenario checks that required fields are present and valid.
// Choice codes are not checked: scenarios may log invalid codes on purpose.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := sim.ParseMode(s.Mode); err != nil {
		return err
	}

	for i, e := range s.Events {
		if e.At < 0 {
			return fmt.Errorf("events[%d]: at must be non-negative", i)
		}
		if !slices.Contains(eventTypes, sim.EventType(e.Type)) {
			return fmt.Errorf("events[%d]: unknown event type %q", i, e.Type)
		}
	}

	for _, key := range slices.Sorted(maps.Keys(s.Expect.Decisions)) {
		if _, ok := decisionAct(key); !ok {
			return fmt.Errorf("expect.decisions: unknown key %q", key)
		}
	}
	for _, key := range slices.Sorted(maps.Keys(s.Expect.Derived)) {
		if !slices.Contains(derivedKeys, key) {
			return fmt.Errorf("expect.derived: unknown key %q", key)
		}
	}
	if s.Expect.EventCount != nil && *s.Expect.EventCount < 0 {
		return fmt.Errorf("expect.event_count must be non-negative")
	}
	return nil
}

// decisionAct maps act1..act4 onto its Act number.
func decisionAct(key string) (int, bool) {
	for act := sim.FirstAct; act <= sim.FinalAct; act++ {
		if key == fmt.Sprintf("act%d", act) {
			return act, true
		}
	}
	return 0, false
}

// Time returns the absolute timestamp of the step.
func (e EventStep) Time() time.Time {
	return testutil.Epoch.Add(time.Duration(e.At * float64(time.Second)))
}

// Event converts the step into a log event.
func (e EventStep) Event() sim.Event {
	payload := map[string]any{}
	if e.Option != "" {
		payload[sim.PayloadOptionID] = e.Option
	}
	return sim.Event{
		Timestamp: e.Time(),
		Type:      sim.EventType(e.Type),
		Act:       e.Act,
		Payload:   payload,
	}
}

// Log returns the scenario's events in file order.
func (s *Scenario) Log() []sim.Event {
	events := make([]sim.Event, len(s.Events))
	for i, step := range s.Events {
		events[i] = step.Event()
	}
	return events
}
