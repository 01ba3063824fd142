package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/actsim/internal/sim"
)

// ErrRemoteDown is returned by MemoryRemote while failures are switched on.
var ErrRemoteDown = errors.New("remote store unavailable")

// MemoryRemote is an in-memory remote state store for tests.
//
// It records every pushed snapshot and can be switched into failure mode
// for fetches and pushes independently.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryRemote struct {
	mu        sync.Mutex
	states    map[string]sim.State
	pushes    []sim.State
	fetches   int
	failFetch bool
	failPush  bool
}

// NewMemoryRemote creates an empty remote store.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{states: make(map[string]sim.State)}
}

// Fetch returns the stored state for sessionID.
func (m *MemoryRemote) Fetch(ctx context.Context, sessionID string) (sim.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.failFetch {
		return sim.State{}, false, ErrRemoteDown
	}
	s, ok := m.states[sessionID]
	return s, ok, nil
}

// Push stores state under its session id.
func (m *MemoryRemote) Push(ctx context.Context, state sim.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPush {
		return ErrRemoteDown
	}
	m.states[state.SessionID] = state
	m.pushes = append(m.pushes, state)
	return nil
}

// Seed stores state without counting it as a push.
func (m *MemoryRemote) Seed(state sim.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.SessionID] = state
}

// Get returns the stored state for sessionID.
func (m *MemoryRemote) Get(sessionID string) (sim.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[sessionID]
	return s, ok
}

// Pushes returns a copy of every successfully pushed snapshot, in order.
func (m *MemoryRemote) Pushes() []sim.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sim.State(nil), m.pushes...)
}

// Fetches returns how many times Fetch was called.
func (m *MemoryRemote) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// FailFetch switches fetch failures on or off.
func (m *MemoryRemote) FailFetch(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFetch = fail
}

// FailPush switches push failures on or off.
func (m *MemoryRemote) FailPush(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPush = fail
}
