package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/roach88/actsim/internal/broadcast"
	"github.com/roach88/actsim/internal/rebuild"
	"github.com/roach88/actsim/internal/remote"
	"github.com/roach88/actsim/internal/schema"
	"github.com/roach88/actsim/internal/sim"
	"github.com/roach88/actsim/internal/store"
)

// SessionSummary is the wire form of store.SessionSummary.
type SessionSummary struct {
	SessionID     string   `json:"sessionId"`
	ParticipantID string   `json:"participantId"`
	Mode          sim.Mode `json:"mode"`
	CurrentAct    int      `json:"currentAct"`
	Version       string   `json:"version"`
	Digest        string   `json:"digest"`
	EventCount    int      `json:"eventCount"`
}

// SessionsEnvelope is the response body of the session listing.
type SessionsEnvelope struct {
	Status string `json:"status"`
	Data   struct {
		Sessions []SessionSummary `json:"sessions"`
	} `json:"data"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var (
		sums []store.SessionSummary
		err  error
	)
	if participant := r.URL.Query().Get("participant"); participant != "" {
		sums, err = s.store.ListParticipantSessions(r.Context(), participant)
	} else {
		sums, err = s.store.ListSessions(r.Context())
	}
	if err != nil {
		s.internalError(w, "list sessions", err)
		return
	}

	var env SessionsEnvelope
	env.Status = remote.StatusSuccess
	env.Data.Sessions = make([]SessionSummary, len(sums))
	for i, sum := range sums {
		env.Data.Sessions[i] = SessionSummary{
			SessionID:     sum.SessionID,
			ParticipantID: sum.ParticipantID,
			Mode:          sum.Mode,
			CurrentAct:    sum.CurrentAct,
			Version:       sum.Version,
			Digest:        sum.Digest,
			EventCount:    sum.EventCount,
		}
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	state, err := s.store.LoadState(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no state for session "+sessionID)
		return
	}
	if err != nil {
		s.internalError(w, "load state", err)
		return
	}
	writeJSON(w, http.StatusOK, remote.StateEnvelope{
		Status: remote.StatusSuccess,
		Data:   &remote.StateData{State: state},
	})
}

func (s *Server) handlePostState(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	state, err := decodePush(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if state.SessionID != sessionID {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("snapshot session %q does not match path session %q", state.SessionID, sessionID))
		return
	}

	state, res, err := s.save(r.Context(), state)
	if err != nil {
		s.internalError(w, "save state", err)
		return
	}

	origin := r.Header.Get(remote.OriginHeader)
	s.logger.Debug("state saved",
		"session_id", sessionID,
		"origin", origin,
		"updated", res.Updated,
		"events_inserted", res.EventsInserted,
	)

	if res.Updated {
		msg := broadcast.Message{Origin: origin, SessionID: sessionID, State: state}
		if err := s.hub.Publish(msg); err != nil {
			s.logger.Warn("broadcast failed", "session_id", sessionID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, remote.StatusResponse{Status: remote.StatusSuccess})
}

// save folds the pushed snapshot together with the log already stored for
// its session and stores the result. A push that arrives late, or from a
// client that missed another client's events, never drops stored events.
func (s *Server) save(ctx context.Context, pushed sim.State) (sim.State, store.SaveResult, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	stored, err := s.store.ReadEvents(ctx, pushed.SessionID)
	if err != nil {
		return sim.State{}, store.SaveResult{}, err
	}
	if len(stored) > 0 {
		if len(pushed.Events) == 0 {
			pushed.Events = rebuild.SynthesizeLog(pushed)
		}
		pushed.Events = rebuild.Merge(stored, pushed.Events)
	}
	state := rebuild.Normalize(pushed)

	res, err := s.store.SaveState(ctx, state)
	if err != nil {
		return sim.State{}, store.SaveResult{}, err
	}
	return state, res, nil
}

// decodePush reads a {stateSnapshot} body and validates the snapshot
// against the schema before decoding it.
func decodePush(body io.Reader) (sim.State, error) {
	var raw struct {
		StateSnapshot json.RawMessage `json:"stateSnapshot"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return sim.State{}, fmt.Errorf("invalid json: %w", err)
	}
	if len(raw.StateSnapshot) == 0 || string(raw.StateSnapshot) == "null" {
		return sim.State{}, errors.New("missing stateSnapshot")
	}
	if err := schema.Validate(raw.StateSnapshot); err != nil {
		return sim.State{}, err
	}
	var state sim.State
	if err := json.Unmarshal(raw.StateSnapshot, &state); err != nil {
		return sim.State{}, fmt.Errorf("invalid stateSnapshot: %w", err)
	}
	if state.SessionID == "" {
		return sim.State{}, errors.New("preview snapshots are not stored")
	}
	return state, nil
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if _, err := s.store.LoadState(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no state for session "+sessionID)
			return
		}
		s.internalError(w, "load state", err)
		return
	}

	events, err := s.store.ReadEvents(r.Context(), sessionID)
	if err != nil {
		s.internalError(w, "read events", err)
		return
	}
	writeJSON(w, http.StatusOK, remote.EventsEnvelope{
		Status: remote.StatusSuccess,
		Data:   &remote.EventsData{Events: events},
	})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	state, err := s.store.RebuildSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no state for session "+sessionID)
		return
	}
	if err != nil {
		s.internalError(w, "rebuild session", err)
		return
	}
	writeJSON(w, http.StatusOK, remote.StateEnvelope{
		Status: remote.StatusSuccess,
		Data:   &remote.StateData{State: state},
	})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, remote.StatusResponse{Status: remote.StatusError, Error: msg})
}
