package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/actsim/internal/sim"
)

// StoredEvent is an event together with its storage identity.
type StoredEvent struct {
	ID    string
	Seq   int64
	Event sim.Event
}

// SessionSummary describes one stored session.
type SessionSummary struct {
	SessionID     string
	ParticipantID string
	Mode          sim.Mode
	CurrentAct    int
	Version       string
	Digest        string
	UpdatedSeq    int64
	EventCount    int
}

// LoadState returns the latest snapshot stored for sessionID, or
// ErrNotFound.
func (s *Store) LoadState(ctx context.Context, sessionID string) (sim.State, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot FROM simulation_states WHERE session_id = ?
	`, sessionID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return sim.State{}, fmt.Errorf("load state %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return sim.State{}, fmt.Errorf("load state %s: %w", sessionID, err)
	}
	return unmarshalSnapshot(snapshot)
}

// ReadEvents returns the session's event log.
// Results are ordered deterministically: ORDER BY ts_nanos ASC, seq ASC.
//
// Returns an empty slice (not nil) if no events exist for the session.
func (s *Store) ReadEvents(ctx context.Context, sessionID string) ([]sim.Event, error) {
	stored, err := s.ReadStoredEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	events := make([]sim.Event, len(stored))
	for i, se := range stored {
		events[i] = se.Event
	}
	return events, nil
}

// ReadStoredEvents is ReadEvents with ids and sequence numbers attached.
func (s *Store) ReadStoredEvents(ctx context.Context, sessionID string) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, ts_nanos, type, act, payload
		FROM simulation_events
		WHERE session_id = ?
		ORDER BY ts_nanos ASC, seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []StoredEvent{}
	for rows.Next() {
		var (
			se      StoredEvent
			nanos   int64
			typ     string
			payload string
		)
		if err := rows.Scan(&se.ID, &se.Seq, &nanos, &typ, &se.Event.Act, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		se.Event.Timestamp = fromNanos(nanos)
		se.Event.Type = sim.EventType(typ)
		if se.Event.Payload, err = unmarshalPayload(payload); err != nil {
			return nil, fmt.Errorf("event %s: %w", se.ID, err)
		}
		events = append(events, se)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ListSessions returns a summary of every stored session, ordered by
// session id.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	return s.listSessions(ctx, "", nil)
}

// ListParticipantSessions returns the sessions of one participant,
// ordered by session id.
func (s *Store) ListParticipantSessions(ctx context.Context, participantID string) ([]SessionSummary, error) {
	return s.listSessions(ctx, "WHERE st.participant_id = ?", []any{participantID})
}

func (s *Store) listSessions(ctx context.Context, where string, args []any) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.session_id, st.participant_id, st.mode, st.current_act, st.version,
		       st.digest, st.updated_seq,
		       (SELECT COUNT(*) FROM simulation_events ev WHERE ev.session_id = st.session_id)
		FROM simulation_states st
		`+where+`
		ORDER BY st.session_id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionSummary{}
	for rows.Next() {
		var (
			sum  SessionSummary
			mode string
		)
		if err := rows.Scan(&sum.SessionID, &sum.ParticipantID, &mode, &sum.CurrentAct,
			&sum.Version, &sum.Digest, &sum.UpdatedSeq, &sum.EventCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.Mode = sim.Mode(mode)
		sessions = append(sessions, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
