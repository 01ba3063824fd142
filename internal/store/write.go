package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/actsim/internal/canonical"
	"github.com/roach88/actsim/internal/sim"
)

// SaveResult reports what a SaveState call changed.
type SaveResult struct {
	// Updated is true if the stored snapshot was inserted or replaced.
	Updated bool
	// EventsInserted counts events not previously stored for the session.
	EventsInserted int
	// Digest is the snapshot digest now stored for the session.
	Digest string
}

// SaveState upserts a session snapshot and appends its events to the
// session log, in a single transaction.
//
// The snapshot row is replaced only when the digest changes, so saving the
// same state twice is a no-op. Events use ON CONFLICT DO NOTHING keyed by
// their content-addressed id; events already stored keep their original seq.
func (s *Store) SaveState(ctx context.Context, state sim.State) (SaveResult, error) {
	if state.SessionID == "" {
		return SaveResult{}, errors.New("save state: session id is required")
	}

	snapshot, err := marshalSnapshot(state)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save state: %w", err)
	}
	digest, err := canonical.StateDigest(state)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save state: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO simulation_states
		(session_id, participant_id, mode, current_act, version, snapshot, digest, updated_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(session_id) DO UPDATE SET
			participant_id = excluded.participant_id,
			mode           = excluded.mode,
			current_act    = excluded.current_act,
			version        = excluded.version,
			snapshot       = excluded.snapshot,
			digest         = excluded.digest,
			updated_seq    = simulation_states.updated_seq + 1
		WHERE simulation_states.digest != excluded.digest
	`,
		state.SessionID,
		state.ParticipantID,
		string(state.Mode),
		state.CurrentAct,
		state.Version,
		snapshot,
		digest,
	)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save state: upsert snapshot: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return SaveResult{}, fmt.Errorf("save state: rows affected: %w", err)
	}

	seq, err := lastSeq(ctx, tx, state.SessionID)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save state: %w", err)
	}

	inserted := 0
	for _, e := range state.Events {
		id, err := canonical.EventID(e)
		if err != nil {
			return SaveResult{}, fmt.Errorf("save state: %w", err)
		}
		payload, err := marshalPayload(e.Payload)
		if err != nil {
			return SaveResult{}, fmt.Errorf("save state: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO simulation_events
			(id, session_id, seq, ts_nanos, type, act, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, id) DO NOTHING
		`,
			id,
			state.SessionID,
			seq+1,
			toNanos(e.Timestamp),
			string(e.Type),
			e.Act,
			payload,
		)
		if err != nil {
			return SaveResult{}, fmt.Errorf("save state: insert event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return SaveResult{}, fmt.Errorf("save state: rows affected: %w", err)
		}
		if n > 0 {
			seq++
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("save state: commit: %w", err)
	}

	return SaveResult{
		Updated:        updated > 0,
		EventsInserted: inserted,
		Digest:         digest,
	}, nil
}

// DeleteSession removes a session's snapshot and event log.
// Deleting an unknown session is not an error.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete session: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM simulation_events WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM simulation_states WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete session: commit: %w", err)
	}
	return nil
}
