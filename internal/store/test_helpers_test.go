package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/actsim/internal/rebuild"
	"github.com/roach88/actsim/internal/sim"
)

var testEpoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// decisionAt creates a decision event offset seconds after testEpoch.
func decisionAt(seconds, act int, code string) sim.Event {
	return sim.NewDecisionEvent(testEpoch.Add(time.Duration(seconds)*time.Second), act, code)
}

// createTestState folds events into a state for the given session.
func createTestState(sessionID string, events ...sim.Event) sim.State {
	return rebuild.Rebuild("participant-1", sessionID, sim.ModeNoAssistance, testEpoch, events)
}
