package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_Text(t *testing.T) {
	out, err := execute(t, "derive", "--act1", "B", "--act2", "b1", "--act3", "Z")
	require.NoError(t, err)

	assert.Contains(t, out, "act2Branch:       B")
	assert.Contains(t, out, "act3ContextGroup: tradition-first")
	assert.Contains(t, out, "act4Track:        Relational Foundation")
}

func TestDerive_Missing(t *testing.T) {
	out, err := execute(t, "derive", "--act1", "C")
	require.NoError(t, err)

	assert.Contains(t, out, "act2Branch:       C")
	assert.Contains(t, out, "act3ContextGroup: (none)")
	assert.Contains(t, out, "act4Track:        (none)")
}

func TestDerive_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "derive", "--act1", "A", "--act2", "A1", "--act3", "X")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   DeriveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, DeriveResult{
		Act2Branch:       "A",
		Act3ContextGroup: "efficiency-first",
		Act4Track:        "Efficiency at Scale",
	}, resp.Data)
}

func TestDerive_UnknownChoice(t *testing.T) {
	out, err := execute(t, "--format", "json", "derive", "--act2", "D9", "--act3", "W")
	require.NoError(t, err)

	var resp struct {
		Data DeriveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Data.Act3ContextGroup)
	assert.Empty(t, resp.Data.Act4Track)
}
