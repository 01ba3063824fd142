package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/actsim/internal/canonical"
	"github.com/roach88/actsim/internal/sim"
)

// Snapshot returns the canonical JSON written to a scenario's golden file.
func Snapshot(name string, state sim.State) ([]byte, error) {
	return canonical.Marshal(map[string]any{
		"scenario": name,
		"state":    state,
	})
}

// RunWithGolden executes a scenario and compares the rebuilt state against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. A snapshot mismatch fails t
// through goldie; failed expectations are left in the returned Result.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against the golden file
// for scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result.State)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
