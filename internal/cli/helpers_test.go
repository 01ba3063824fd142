package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/actsim/internal/rebuild"
	"github.com/roach88/actsim/internal/sim"
	"github.com/roach88/actsim/internal/store"
	"github.com/roach88/actsim/internal/testutil"
)

func decisionAt(seconds, act int, code string) sim.Event {
	return sim.NewDecisionEvent(testutil.Epoch.Add(time.Duration(seconds)*time.Second), act, code)
}

func testState(sessionID string, events ...sim.Event) sim.State {
	return rebuild.Rebuild("p-1", sessionID, sim.ModeNoAssistance, testutil.Epoch, events)
}

// writeSnapshot writes state as an exported snapshot file.
func writeSnapshot(t *testing.T, dir, name string, state sim.State) string {
	t.Helper()
	data, err := json.Marshal(state)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// seedStore creates a database holding the given snapshots, saved in order.
func seedStore(t *testing.T, states ...sim.State) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actsim.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	for _, s := range states {
		_, err := st.SaveState(context.Background(), s)
		require.NoError(t, err)
	}
	return path
}
