package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/actsim/internal/rebuild"
	"github.com/roach88/actsim/internal/schema"
	"github.com/roach88/actsim/internal/sim"
)

// DefaultSyncTimeout bounds a detached remote push.
const DefaultSyncTimeout = 15 * time.Second

// ErrNotLoaded is returned by operations that need a resolved state
// before Refresh has completed once.
var ErrNotLoaded = errors.New("persist: state not loaded; call Refresh first")

// Source names the tier a Refresh resolved its state from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
	SourceFresh  Source = "fresh"
)

// Options configures a Manager.
type Options struct {
	ParticipantID string
	// SessionID empty selects an ephemeral preview run.
	SessionID string
	Mode      sim.Mode

	// Remote may be nil, in which case session runs behave as if the
	// remote store were unreachable.
	Remote RemoteStateStore
	Cache  LocalStateCache

	Clock       Clock
	Logger      *slog.Logger
	SyncTimeout time.Duration
}

// Manager coordinates one run's state across the remote and local tiers.
//
// Thread-safety: All methods are safe for concurrent use. State mutations
// are serialized by an internal mutex; remote pushes run outside it.
type Manager struct {
	participantID string
	sessionID     string
	mode          sim.Mode

	remote      RemoteStateStore
	cache       LocalStateCache
	clock       Clock
	logger      *slog.Logger
	syncTimeout time.Duration

	mu     sync.Mutex
	state  sim.State
	loaded bool

	// restoring counts Refresh calls in flight. Receive drops broadcast
	// snapshots while it is non-zero.
	restoring atomic.Int32
	inflight  sync.WaitGroup
}

// New creates a Manager. Refresh must be called before any write.
func New(opts Options) (*Manager, error) {
	if opts.Cache == nil {
		return nil, errors.New("persist: cache is required")
	}
	if opts.ParticipantID == "" {
		return nil, errors.New("persist: participant id is required")
	}
	if _, err := sim.ParseMode(string(opts.Mode)); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}

	m := &Manager{
		participantID: opts.ParticipantID,
		sessionID:     opts.SessionID,
		mode:          opts.Mode,
		remote:        opts.Remote,
		cache:         opts.Cache,
		clock:         opts.Clock,
		logger:        opts.Logger,
		syncTimeout:   opts.SyncTimeout,
	}
	if m.clock == nil {
		m.clock = SystemClock{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.syncTimeout <= 0 {
		m.syncTimeout = DefaultSyncTimeout
	}
	return m, nil
}

// Ephemeral reports whether the run is a preview run.
func (m *Manager) Ephemeral() bool {
	return m.sessionID == ""
}

// SessionID returns the run's session id, empty for a preview run.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// State returns a copy of the current state.
func (m *Manager) State() sim.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneState(m.state)
}

// Refresh resolves the run's state and rewrites the local cache with it.
//
// Remote and cache failures never surface: each degrades to the next tier.
// The returned error reports only a failure to rewrite the local cache, in
// which case the resolved state is still adopted.
func (m *Manager) Refresh(ctx context.Context) (sim.State, Source, error) {
	m.restoring.Add(1)
	defer m.restoring.Add(-1)

	key := sim.CacheKey(m.sessionID)
	state, source := m.resolve(ctx, key)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.loaded = true

	if err := m.writeCache(ctx, state); err != nil {
		return cloneState(state), source, err
	}
	m.logger.Debug("state resolved",
		"session_id", m.sessionID,
		"source", source,
		"current_act", state.CurrentAct,
	)
	return cloneState(state), source, nil
}

func (m *Manager) resolve(ctx context.Context, key string) (sim.State, Source) {
	if m.Ephemeral() {
		// Every preview run starts from a clean slate.
		if err := m.cache.Delete(ctx, key); err != nil {
			m.logger.Warn("clear preview cache failed", "key", key, "error", err)
		}
		return m.fresh(), SourceFresh
	}

	if state, ok := m.fetchRemote(ctx); ok {
		return rebuild.Normalize(state), SourceRemote
	}
	if state, ok := m.readCache(ctx, key); ok {
		return rebuild.Normalize(state), SourceCache
	}
	return m.fresh(), SourceFresh
}

func (m *Manager) fetchRemote(ctx context.Context) (sim.State, bool) {
	if m.remote == nil {
		return sim.State{}, false
	}
	state, found, err := m.remote.Fetch(ctx, m.sessionID)
	if err != nil {
		m.logger.Warn("remote load failed, falling back to cache",
			"session_id", m.sessionID,
			"error", err,
		)
		return sim.State{}, false
	}
	if !found {
		return sim.State{}, false
	}
	if state.SessionID != m.sessionID {
		m.logger.Warn("remote returned another session, ignoring",
			"session_id", m.sessionID,
			"got", state.SessionID,
		)
		return sim.State{}, false
	}
	return state, true
}

// readCache decodes the cache entry under key. Unreadable, malformed or
// schema-invalid entries are treated as absent.
func (m *Manager) readCache(ctx context.Context, key string) (sim.State, bool) {
	data, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache read failed", "key", key, "error", err)
		return sim.State{}, false
	}
	if !ok {
		return sim.State{}, false
	}
	state, err := decodeSnapshot(data)
	if err != nil {
		m.logger.Warn("cache entry corrupt, ignoring", "key", key, "error", err)
		return sim.State{}, false
	}
	if state.SessionID != m.sessionID {
		m.logger.Warn("cache entry belongs to another session, ignoring",
			"key", key,
			"got", state.SessionID,
		)
		return sim.State{}, false
	}
	return state, true
}

func (m *Manager) fresh() sim.State {
	return sim.NewState(m.participantID, m.sessionID, m.mode, m.clock.Now())
}

// UpdateDecision records a decision for act and returns the rebuilt state.
//
// The event is always appended; an invalid code or an already decided act
// leaves decisions unchanged. The local cache is written before returning.
// For session runs the snapshot is then pushed to the remote store in the
// background.
func (m *Manager) UpdateDecision(ctx context.Context, act int, optionID string) (sim.State, error) {
	return m.record(ctx, func(at time.Time) sim.Event {
		return sim.NewDecisionEvent(at, act, optionID)
	})
}

// StartAct records an act_started event for act.
func (m *Manager) StartAct(ctx context.Context, act int) (sim.State, error) {
	return m.record(ctx, func(at time.Time) sim.Event {
		return sim.NewActStartedEvent(at, act)
	})
}

func (m *Manager) record(ctx context.Context, build func(time.Time) sim.Event) (sim.State, error) {
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return sim.State{}, ErrNotLoaded
	}

	e := build(m.clock.Now())
	events := append(slices.Clip(m.state.Events), e)
	next := rebuild.Rebuild(m.state.ParticipantID, m.state.SessionID, m.state.Mode, m.state.StartedAt, events)
	m.state = next
	err := m.writeCache(ctx, next)
	m.mu.Unlock()

	m.logger.Debug("event recorded",
		"session_id", m.sessionID,
		"type", e.Type,
		"act", e.Act,
		"current_act", next.CurrentAct,
	)

	if !m.Ephemeral() {
		m.syncDetached(ctx, next)
	}
	return cloneState(next), err
}

// SyncToServer pushes the current snapshot to the remote store and waits
// for the result. Preview runs and managers without a remote are a no-op.
func (m *Manager) SyncToServer(ctx context.Context) error {
	if m.Ephemeral() || m.remote == nil {
		return nil
	}
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	state := cloneState(m.state)
	m.mu.Unlock()

	if err := m.remote.Push(ctx, state); err != nil {
		return fmt.Errorf("sync session %s: %w", m.sessionID, err)
	}
	return nil
}

// syncDetached pushes state without blocking the caller. The push outlives
// ctx's cancellation but is bounded by the sync timeout.
func (m *Manager) syncDetached(ctx context.Context, state sim.State) {
	if m.remote == nil {
		return
	}
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()

		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.syncTimeout)
		defer cancel()

		if err := m.remote.Push(pushCtx, state); err != nil {
			m.logger.Warn("remote sync failed",
				"session_id", state.SessionID,
				"events", len(state.Events),
				"error", err,
			)
			return
		}
		m.logger.Debug("remote sync complete",
			"session_id", state.SessionID,
			"events", len(state.Events),
		)
	}()
}

// Wait blocks until every detached remote push has finished.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Receive adopts a snapshot broadcast by another client of the same
// session, overwriting the current state and the cache entry. It reports
// whether the snapshot was adopted.
//
// Snapshots are dropped for preview runs, for other sessions, before the
// first Refresh and while a Refresh is in flight.
func (m *Manager) Receive(ctx context.Context, state sim.State) bool {
	if m.Ephemeral() || state.SessionID != m.sessionID || m.restoring.Load() > 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded || m.restoring.Load() > 0 {
		return false
	}

	m.state = rebuild.Normalize(state)
	if err := m.writeCache(ctx, m.state); err != nil {
		m.logger.Warn("cache write after broadcast failed", "session_id", m.sessionID, "error", err)
	}
	m.logger.Debug("broadcast snapshot adopted",
		"session_id", m.sessionID,
		"current_act", m.state.CurrentAct,
	)
	return true
}

// writeCache must be called with mu held.
func (m *Manager) writeCache(ctx context.Context, state sim.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	key := sim.CacheKey(m.sessionID)
	if err := m.cache.Set(ctx, key, data); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}

// decodeSnapshot validates data against the snapshot schema and decodes it.
func decodeSnapshot(data []byte) (sim.State, error) {
	if err := schema.Validate(data); err != nil {
		return sim.State{}, err
	}
	var state sim.State
	if err := json.Unmarshal(data, &state); err != nil {
		return sim.State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return state, nil
}

func cloneState(s sim.State) sim.State {
	s.Events = slices.Clone(s.Events)
	if s.Events == nil {
		s.Events = []sim.Event{}
	}
	return s
}
