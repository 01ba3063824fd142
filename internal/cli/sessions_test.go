package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/actsim/internal/rebuild"
	"github.com/roach88/actsim/internal/sim"
	"github.com/roach88/actsim/internal/testutil"
)

func TestSessions_Empty(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "sessions", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found.")
}

func TestSessions_List(t *testing.T) {
	other := rebuild.Rebuild("p-2", "s-2", sim.ModeAgenticAssist, testutil.Epoch,
		[]sim.Event{decisionAt(1, 1, "B")})
	db := seedStore(t,
		testState("s-1", decisionAt(1, 1, "A")),
		testState("s-1", decisionAt(1, 1, "A"), decisionAt(2, 2, "A2")),
		other,
	)

	out, err := execute(t, "--format", "json", "sessions", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   SessionList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Sessions, 2)

	bySession := map[string]SessionRow{}
	for _, row := range resp.Data.Sessions {
		bySession[row.SessionID] = row
	}
	assert.Equal(t, SessionRow{
		SessionID:     "s-1",
		ParticipantID: "p-1",
		Mode:          "no-assistance",
		CurrentAct:    3,
		Events:        2,
		Updates:       2,
	}, bySession["s-1"])
	assert.Equal(t, "agentic-assist", bySession["s-2"].Mode)
}

func TestSessions_FilterParticipant(t *testing.T) {
	other := rebuild.Rebuild("p-2", "s-2", sim.ModeNoAssistance, testutil.Epoch, nil)
	db := seedStore(t, testState("s-1", decisionAt(1, 1, "A")), other)

	out, err := execute(t, "sessions", "--db", db, "--participant", "p-2")
	require.NoError(t, err)
	assert.Contains(t, out, "1 session(s)")
	assert.Contains(t, out, "s-2")
	assert.NotContains(t, out, "s-1 ")
}

func TestSessions_DatabaseNotFound(t *testing.T) {
	_, err := execute(t, "sessions", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSessions_Delete(t *testing.T) {
	db := seedStore(t,
		testState("s-1", decisionAt(1, 1, "A")),
		testState("s-2", decisionAt(1, 1, "C")),
	)

	out, err := execute(t, "--format", "json", "sessions", "delete", "s-1", "--db", db)
	require.NoError(t, err)
	var resp struct {
		Status string       `json:"status"`
		Data   DeleteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, DeleteResult{SessionID: "s-1", Deleted: true}, resp.Data)

	out, err = execute(t, "sessions", "--db", db)
	require.NoError(t, err)
	assert.NotContains(t, out, "s-1")
	assert.Contains(t, out, "s-2")

	out, err = execute(t, "sessions", "delete", "s-1", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "not found")
}

func TestSessions_DeleteMissingDatabase(t *testing.T) {
	_, err := execute(t, "sessions", "delete", "s-1", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
