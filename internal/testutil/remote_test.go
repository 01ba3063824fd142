package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/actsim/internal/sim"
)

func TestMemoryRemote_PushFetch(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRemote()

	_, ok, err := r.Fetch(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, ok)

	s := sim.NewState("p", "s-1", sim.ModeNoAssistance, Epoch)
	require.NoError(t, r.Push(ctx, s))

	got, ok, err := r.Fetch(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, s, got)
	assert.Len(t, r.Pushes(), 1)
	assert.Equal(t, 2, r.Fetches())
}

func TestMemoryRemote_Failures(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRemote()
	r.Seed(sim.NewState("p", "s-1", sim.ModeNoAssistance, Epoch))

	r.FailFetch(true)
	_, _, err := r.Fetch(ctx, "s-1")
	assert.ErrorIs(t, err, ErrRemoteDown)

	r.FailPush(true)
	assert.ErrorIs(t, r.Push(ctx, sim.State{SessionID: "s-2"}), ErrRemoteDown)
	assert.Empty(t, r.Pushes())

	r.FailFetch(false)
	_, ok, err := r.Fetch(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
