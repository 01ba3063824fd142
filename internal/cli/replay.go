package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/actsim/internal/canonical"
	"github.com/roach88/actsim/internal/rebuild"
	"github.com/roach88/actsim/internal/remote"
	"github.com/roach88/actsim/internal/schema"
	"github.com/roach88/actsim/internal/sim"
	"github.com/roach88/actsim/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Files    []string
	Database string
	Remote   string
	Session  string
}

// ReplayResult holds the replay verdict for one session.
type ReplayResult struct {
	SessionID     string `json:"session_id,omitempty"`
	Sources       int    `json:"sources"`
	Events        int    `json:"events"`
	CurrentAct    int    `json:"current_act"`
	Digest        string `json:"digest"`
	Deterministic bool   `json:"deterministic"`

	// StoredDigest and Match are set in database and remote mode.
	StoredDigest string `json:"stored_digest,omitempty"`
	Match        *bool  `json:"match,omitempty"`

	// Remote and ServerDigest are set in remote mode only. ServerDigest is
	// the digest of the server's own rebuild of the session.
	Remote       string `json:"remote,omitempty"`
	ServerDigest string `json:"server_digest,omitempty"`
}

// OK reports whether the replay found no divergence.
func (r ReplayResult) OK() bool {
	return r.Deterministic &&
		(r.Match == nil || *r.Match) &&
		(r.ServerDigest == "" || r.ServerDigest == r.Digest)
}

func (r ReplayResult) String() string {
	var b strings.Builder
	session := r.SessionID
	if session == "" {
		session = "(preview)"
	}
	status := "✓"
	if !r.OK() {
		status = "✗"
	}
	fmt.Fprintf(&b, "%s Session: %s\n", status, session)
	if r.Remote != "" {
		fmt.Fprintf(&b, "  Remote: %s\n", r.Remote)
	}
	fmt.Fprintf(&b, "  Sources: %d, events: %d, current act: %d\n", r.Sources, r.Events, r.CurrentAct)
	fmt.Fprintf(&b, "  Digest: %s\n", r.Digest)
	if r.Match != nil {
		fmt.Fprintf(&b, "  Stored digest: %s\n", r.StoredDigest)
	}
	if r.ServerDigest != "" {
		fmt.Fprintf(&b, "  Server rebuild digest: %s\n", r.ServerDigest)
	}
	if !r.Deterministic {
		fmt.Fprintln(&b, "  Warning: Non-deterministic rebuild detected!")
	}
	if r.Match != nil && !*r.Match {
		fmt.Fprintln(&b, "  Warning: Stored snapshot differs from its event log!")
	}
	if r.ServerDigest != "" && r.ServerDigest != r.Digest {
		fmt.Fprintln(&b, "  Warning: Server rebuild differs from the local rebuild!")
	}
	if r.OK() {
		b.WriteString("✓ Replay verified")
	} else {
		b.WriteString("✗ Replay verification failed")
	}
	return b.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild state from an event log and verify determinism",
		Long: `Rebuild a run's state from its event log twice and compare digests.

With --file, each file holds an exported snapshot. Their event logs are
merged (duplicates dropped) and rebuilt using the first file's run identity.
With --db and --session, the stored log is rebuilt and also compared against
the stored snapshot. With --remote and --session, the log is fetched from a
running server, rebuilt locally and compared against both the server's
snapshot and the server's own rebuild.

Exit codes:
  0 - Rebuild is deterministic (and matches the stored snapshot)
  1 - Verification failed (differences detected)
  2 - Command error (file or database not found, etc.)

Examples:
  actsim replay --file tab-a.json --file tab-b.json
  actsim replay --db ./actsim.db --session 0194f3c2-...
  actsim replay --db ./actsim.db --session s-1 --format json
  actsim replay --remote http://localhost:8080 --session s-1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Files, "file", nil, "exported snapshot JSON file (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Remote, "remote", "", "API server URL to fetch the session from")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to replay from --db or --remote")
	cmd.MarkFlagsMutuallyExclusive("file", "db", "remote")
	cmd.MarkFlagsMutuallyExclusive("file", "session")
	cmd.MarkFlagsOneRequired("file", "db", "remote")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	if (opts.Database != "" || opts.Remote != "") && opts.Session == "" {
		return NewExitError(ExitCommandError, "--session is required with --db or --remote")
	}

	var (
		result ReplayResult
		err    error
	)
	switch {
	case opts.Database != "":
		result, err = replayDatabase(ctx, opts.Database, opts.Session)
	case opts.Remote != "":
		result, err = replayRemote(ctx, opts.Remote, opts.Session, opts.config().Client.RequestTimeout)
	default:
		result, err = replayFiles(opts.Files)
	}
	if err != nil {
		return err
	}

	out := opts.formatter(cmd)
	if result.OK() {
		return out.Success(result)
	}
	if err := out.Failure(CodeDeterminism, "replay verification failed", result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, "replay verification failed")
}

func replayFiles(paths []string) (ReplayResult, error) {
	states := make([]sim.State, 0, len(paths))
	for _, path := range paths {
		s, err := readSnapshotFile(path)
		if err != nil {
			return ReplayResult{}, WrapExitError(ExitCommandError, "failed to read snapshot", err)
		}
		states = append(states, s)
	}

	logs := make([][]sim.Event, len(states))
	for i, s := range states {
		logs[i] = s.Events
	}
	merged := rebuild.Merge(logs...)

	id := states[0]
	first := rebuild.Rebuild(id.ParticipantID, id.SessionID, id.Mode, id.StartedAt, merged)
	second := rebuild.Rebuild(id.ParticipantID, id.SessionID, id.Mode, id.StartedAt, merged)

	d1, err := canonical.StateDigest(first)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to digest state", err)
	}
	d2, err := canonical.StateDigest(second)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to digest state", err)
	}

	return ReplayResult{
		SessionID:     id.SessionID,
		Sources:       len(states),
		Events:        len(first.Events),
		CurrentAct:    first.CurrentAct,
		Digest:        d1,
		Deterministic: d1 == d2,
	}, nil
}

func readSnapshotFile(path string) (sim.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sim.State{}, err
	}
	if err := schema.Validate(data); err != nil {
		return sim.State{}, fmt.Errorf("%s: %w", path, err)
	}
	var s sim.State
	if err := json.Unmarshal(data, &s); err != nil {
		return sim.State{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func replayDatabase(ctx context.Context, dbPath, sessionID string) (ReplayResult, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	v, err := st.VerifySession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return ReplayResult{}, WrapExitError(ExitCommandError, "session not found", err)
	}
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to verify session", err)
	}

	rebuilt, err := st.RebuildSession(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to rebuild session", err)
	}

	match := v.Match
	return ReplayResult{
		SessionID:     sessionID,
		Sources:       1,
		Events:        len(rebuilt.Events),
		CurrentAct:    rebuilt.CurrentAct,
		Digest:        v.RebuiltDigest,
		Deterministic: v.Deterministic,
		StoredDigest:  v.StoredDigest,
		Match:         &match,
	}, nil
}

func replayRemote(ctx context.Context, baseURL, sessionID string, timeout time.Duration) (ReplayResult, error) {
	client, err := remote.NewClient(baseURL, remote.WithTimeout(timeout))
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "invalid remote URL", err)
	}

	snapshot, found, err := client.Fetch(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to fetch session", err)
	}
	if !found {
		return ReplayResult{}, NewExitError(ExitCommandError, "session not found: "+sessionID)
	}
	events, _, err := client.FetchEvents(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to fetch events", err)
	}
	serverRebuild, _, err := client.FetchRebuild(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to fetch server rebuild", err)
	}

	first := rebuild.Rebuild(snapshot.ParticipantID, snapshot.SessionID, snapshot.Mode, snapshot.StartedAt, events)
	second := rebuild.Rebuild(snapshot.ParticipantID, snapshot.SessionID, snapshot.Mode, snapshot.StartedAt, events)

	digests := make([]string, 0, 4)
	for _, s := range []sim.State{first, second, snapshot, serverRebuild} {
		d, err := canonical.StateDigest(s)
		if err != nil {
			return ReplayResult{}, WrapExitError(ExitCommandError, "failed to digest state", err)
		}
		digests = append(digests, d)
	}

	match := digests[0] == digests[2]
	return ReplayResult{
		SessionID:     sessionID,
		Sources:       1,
		Events:        len(first.Events),
		CurrentAct:    first.CurrentAct,
		Digest:        digests[0],
		Deterministic: digests[0] == digests[1],
		StoredDigest:  digests[2],
		Match:         &match,
		Remote:        client.BaseURL(),
		ServerDigest:  digests[3],
	}, nil
}
