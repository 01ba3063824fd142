package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/actsim/internal/store"
)

// SessionsOptions holds flags for the sessions command.
type SessionsOptions struct {
	*RootOptions
	Database    string
	Participant string
}

// SessionRow is one line of the sessions listing.
type SessionRow struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Mode          string `json:"mode"`
	CurrentAct    int    `json:"current_act"`
	Events        int    `json:"events"`
	Updates       int64  `json:"updates"`
}

// SessionList is the output of the sessions command.
type SessionList struct {
	Sessions []SessionRow `json:"sessions"`
}

func (l SessionList) String() string {
	if len(l.Sessions) == 0 {
		return "No sessions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d session(s)\n", len(l.Sessions))
	for _, s := range l.Sessions {
		fmt.Fprintf(&b, "  %s  participant=%s mode=%s act=%d events=%d updates=%d\n",
			s.SessionID, s.ParticipantID, s.Mode, s.CurrentAct, s.Events, s.Updates)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions in the authoritative store",
		Long: `List stored sessions with their progress.

Examples:
  actsim sessions --db ./actsim.db
  actsim sessions --db ./actsim.db --participant p-001 --format json
  actsim sessions delete s-1 --db ./actsim.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(opts, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Participant, "participant", "", "only list this participant's sessions")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete SESSION",
		Short: "Delete a session's snapshot and event log",
		Long: `Delete a stored session so its participant can start over.

Deleting a session that does not exist is not an error.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeleteSession(opts, cmd, args[0])
		},
	})

	return cmd
}

// DeleteResult is the output of "sessions delete".
type DeleteResult struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
}

func (r DeleteResult) String() string {
	if !r.Deleted {
		return fmt.Sprintf("Session %s not found; nothing deleted.", r.SessionID)
	}
	return fmt.Sprintf("Deleted session %s.", r.SessionID)
}

func (o *SessionsOptions) openStore() (*store.Store, error) {
	dbPath := o.Database
	if dbPath == "" {
		dbPath = o.config().Server.DBPath
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runDeleteSession(opts *SessionsOptions, cmd *cobra.Command, sessionID string) error {
	ctx := cmd.Context()
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	_, err = st.LoadState(ctx, sessionID)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitCommandError, "failed to load session", err)
	}
	if err := st.DeleteSession(ctx, sessionID); err != nil {
		return WrapExitError(ExitCommandError, "failed to delete session", err)
	}
	if found {
		opts.logger().Info("session deleted", "session_id", sessionID)
	}
	return opts.formatter(cmd).Success(DeleteResult{SessionID: sessionID, Deleted: found})
}

func runSessions(opts *SessionsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var summaries []store.SessionSummary
	if opts.Participant != "" {
		summaries, err = st.ListParticipantSessions(ctx, opts.Participant)
	} else {
		summaries, err = st.ListSessions(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	list := SessionList{Sessions: make([]SessionRow, 0, len(summaries))}
	for _, s := range summaries {
		list.Sessions = append(list.Sessions, SessionRow{
			SessionID:     s.SessionID,
			ParticipantID: s.ParticipantID,
			Mode:          string(s.Mode),
			CurrentAct:    s.CurrentAct,
			Events:        s.EventCount,
			Updates:       s.UpdatedSeq,
		})
	}
	return opts.formatter(cmd).Success(list)
}
