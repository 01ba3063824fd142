package harness

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/actsim/internal/branch"
	"github.com/roach88/actsim/internal/canonical"
	"github.com/roach88/actsim/internal/rebuild"
	"github.com/roach88/actsim/internal/schema"
	"github.com/roach88/actsim/internal/sim"
	"github.com/roach88/actsim/internal/testutil"
)

// Result captures the outcome of running a scenario.
type Result struct {
	// Scenario is the name of the scenario that produced this result.
	Scenario string `json:"scenario"`

	// Pass is true when every expectation held and the rebuild was
	// deterministic.
	Pass bool `json:"pass"`

	// Errors lists every failed check, in evaluation order.
	Errors []string `json:"errors,omitempty"`

	// State is the rebuilt snapshot.
	State sim.State `json:"state"`

	// Digest is the canonical digest of State.
	Digest string `json:"digest"`
}

// NewResult creates a passing Result for the named scenario.
func NewResult(name string) *Result {
	return &Result{Scenario: name, Pass: true, Errors: []string{}}
}

// AddError records a failed check and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Run folds the scenario's log into a state and evaluates it.
//
// Execution flow:
// 1. Rebuild the state from the log, started at testutil.Epoch
// 2. Validate the snapshot against the state schema
// 3. Check that derived fields agree with the decisions
// 4. Rebuild twice more (from the raw log and from the state's own log) and
// compare digests
// 5. Evaluate the scenario's expectations
//
// A returned error means the scenario could not be evaluated at all; failed
// checks are reported through Result.
func Run(s *Scenario) (*Result, error) {
	mode, err := sim.ParseMode(s.Mode)
	if err != nil {
		return nil, err
	}
	log := s.Log()

	state := rebuild.Rebuild(s.Participant, s.Session, mode, testutil.Epoch, log)
	digest, err := canonical.StateDigest(state)
	if err != nil {
		return nil, fmt.Errorf("failed to digest state: %w", err)
	}

	result := NewResult(s.Name)
	result.State = state
	result.Digest = digest

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	if err := schema.Validate(data); err != nil {
		result.AddError("snapshot: %v", err)
	}

	if !branch.Consistent(state) {
		result.AddError("derived %+v does not match decisions %+v", state.Derived, state.Decisions)
	}

	if err := checkDeterminism(s, mode, log, digest); err != nil {
		result.AddError("%v", err)
	}

	checkExpectations(&s.Expect, state, result)
	return result, nil
}

func checkDeterminism(s *Scenario, mode sim.Mode, log []sim.Event, want string) error {
	again := rebuild.Rebuild(s.Participant, s.Session, mode, testutil.Epoch, log)
	d1, err := canonical.StateDigest(again)
	if err != nil {
		return fmt.Errorf("determinism: %w", err)
	}
	if d1 != want {
		return fmt.Errorf("determinism: second rebuild digest %s, want %s", d1, want)
	}

	refolded := rebuild.Refold(again)
	d2, err := canonical.StateDigest(refolded)
	if err != nil {
		return fmt.Errorf("determinism: %w", err)
	}
	if d2 != want {
		return fmt.Errorf("determinism: refold digest %s, want %s", d2, want)
	}
	return nil
}

func checkExpectations(exp *Expectation, state sim.State, result *Result) {
	if exp.CurrentAct != nil && state.CurrentAct != *exp.CurrentAct {
		result.AddError("current_act = %d, want %d", state.CurrentAct, *exp.CurrentAct)
	}

	for _, key := range slices.Sorted(maps.Keys(exp.Decisions)) {
		act, _ := decisionAct(key)
		if got, want := state.Decisions.Get(act), exp.Decisions[key]; got != want {
			result.AddError("decisions.%s = %q, want %q", key, got, want)
		}
	}

	derived := map[string]string{
		DerivedAct2Branch:       state.Derived.Act2Branch,
		DerivedAct3ContextGroup: state.Derived.Act3ContextGroup,
		DerivedAct4Track:        state.Derived.Act4Track,
	}
	for _, key := range slices.Sorted(maps.Keys(exp.Derived)) {
		if got, want := derived[key], exp.Derived[key]; got != want {
			result.AddError("derived.%s = %q, want %q", key, got, want)
		}
	}

	if exp.Complete != nil && state.Complete() != *exp.Complete {
		result.AddError("complete = %t, want %t", state.Complete(), *exp.Complete)
	}

	if exp.EventCount != nil && len(state.Events) != *exp.EventCount {
		result.AddError("event_count = %d, want %d", len(state.Events), *exp.EventCount)
	}
}
