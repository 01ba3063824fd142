package rebuild

import (
	"maps"
	"slices"
	"time"

	"github.com/roach88/actsim/internal/branch"
	"github.com/roach88/actsim/internal/sim"
)

// Rebuild folds events into a fresh State for the given run.
func Rebuild(participantID, sessionID string, mode sim.Mode, startedAt time.Time, events []sim.Event) sim.State {
	state := sim.NewState(participantID, sessionID, mode, startedAt)

	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b sim.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	for _, e := range ordered {
		state = Apply(state, e)
	}
	return state
}

// Apply folds a single event into state and returns the result. state is
// not modified.
func Apply(state sim.State, e sim.Event) sim.State {
	e = normalizeEvent(e)

	switch e.Type {
	case sim.EventDecision:
		applyDecision(&state, e)
	case sim.EventActStarted:
		if sim.ValidAct(e.Act) && e.Act > state.CurrentAct {
			state.CurrentAct = e.Act
		}
	}

	state.Events = append(slices.Clip(state.Events), e)
	return state
}

func applyDecision(state *sim.State, e sim.Event) {
	code := e.OptionID()
	if !sim.ValidCode(e.Act, code) {
		return
	}
	// A recorded decision is immutable for the life of the run.
	if state.Decisions.Get(e.Act) != "" {
		return
	}

	state.Decisions.Set(e.Act, code)
	state.CurrentAct = max(state.CurrentAct, min(e.Act+1, sim.FinalAct))
	state.Derived = branch.Derive(state.Decisions)
}

// normalizeEvent pins the timestamp to UTC and detaches the payload map from
// the caller's copy.
func normalizeEvent(e sim.Event) sim.Event {
	e.Timestamp = e.Timestamp.UTC()
	if e.Payload == nil {
		e.Payload = map[string]any{}
	} else {
		e.Payload = maps.Clone(e.Payload)
	}
	return e
}

// Refold rebuilds s from its own event log.
func Refold(s sim.State) sim.State {
	return Rebuild(s.ParticipantID, s.SessionID, s.Mode, s.StartedAt, s.Events)
}

// Normalize repairs a snapshot read from a storage tier so that its
// materialized fields agree with its log. A snapshot carrying events is
// refolded. One without events is first given a synthetic log that
// reproduces its valid decisions and current Act, so later events are
// always folded on top of them.
func Normalize(s sim.State) sim.State {
	if len(s.Events) == 0 {
		s.Events = SynthesizeLog(s)
	}
	return Refold(s)
}

// SynthesizeLog returns an event log that folds to the decisions and
// currentAct of s. Decision events are stamped StartedAt plus the Act
// number in nanoseconds; an act_started event follows when currentAct is
// ahead of what the decisions imply. Invalid decision codes are dropped.
func SynthesizeLog(s sim.State) []sim.Event {
	events := []sim.Event{}
	implied := sim.FirstAct
	for act := sim.FirstAct; act <= sim.FinalAct; act++ {
		code := s.Decisions.Get(act)
		if !sim.ValidCode(act, code) {
			continue
		}
		events = append(events, sim.NewDecisionEvent(s.StartedAt.Add(time.Duration(act)), act, code))
		implied = max(implied, min(act+1, sim.FinalAct))
	}
	if sim.ValidAct(s.CurrentAct) && s.CurrentAct > implied {
		events = append(events, sim.NewActStartedEvent(s.StartedAt.Add(time.Duration(sim.FinalAct+1)), s.CurrentAct))
	}
	return events
}
