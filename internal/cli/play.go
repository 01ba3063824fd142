package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/actsim/internal/broadcast"
	"github.com/roach88/actsim/internal/localcache"
	"github.com/roach88/actsim/internal/persist"
	"github.com/roach88/actsim/internal/remote"
	"github.com/roach88/actsim/internal/sim"
)

// PlayOptions holds flags shared by the play subcommands.
type PlayOptions struct {
	*RootOptions
	Participant string
	Session     string
	Mode        string
	Preview     bool
	Remote      string
	Cache       string
}

// PlayResult is the output of a play subcommand.
type PlayResult struct {
	SessionID string         `json:"session_id,omitempty"`
	Source    persist.Source `json:"source"`
	State     sim.State      `json:"state"`
}

func (r PlayResult) String() string {
	var b strings.Builder
	session := r.SessionID
	if session == "" {
		session = "(preview)"
	}
	s := r.State
	fmt.Fprintf(&b, "Session: %s (source: %s)\n", session, r.Source)
	fmt.Fprintf(&b, "Participant: %s  Mode: %s\n", s.ParticipantID, s.Mode)
	fmt.Fprintf(&b, "Current act: %d\n", s.CurrentAct)
	fmt.Fprintf(&b, "Decisions: act1=%s act2=%s act3=%s act4=%s\n",
		dash(s.Decisions.Act1), dash(s.Decisions.Act2), dash(s.Decisions.Act3), dash(s.Decisions.Act4))
	fmt.Fprintf(&b, "Derived: act2Branch=%s act3ContextGroup=%s act4Track=%s\n",
		dash(s.Derived.Act2Branch), dash(s.Derived.Act3ContextGroup), dash(s.Derived.Act4Track))
	fmt.Fprintf(&b, "Events: %d", len(s.Events))
	if s.Complete() {
		b.WriteString("\nRun complete")
	}
	return b.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// playRun is one opened participant run.
type playRun struct {
	manager   *persist.Manager
	cache     *localcache.SQLite
	remoteURL string
	origin    string
}

func (r *playRun) Close() error {
	r.manager.Wait()
	return r.cache.Close()
}

// NewPlayCommand creates the play command group.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Drive a participant run through the persistence manager",
		Long: `Drive a participant run against the local cache and the remote store.

A run is identified by --session. Without --session a new session id is
generated; --preview starts an ephemeral run that is never synced and
starts fresh every time.

Examples:
  actsim play show --participant p-001 --session s-1 --remote http://localhost:8080
  actsim play decide 1 B --participant p-001 --session s-1
  actsim play start 2 --participant p-001 --session s-1
  actsim play decide 1 A --participant p-001 --preview
  actsim play watch --participant p-001 --session s-1 --remote http://localhost:8080`,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Participant, "participant", "", "participant id (required)")
	flags.StringVar(&opts.Session, "session", "", "session id (generated when omitted)")
	flags.StringVar(&opts.Mode, "mode", string(sim.ModeNoAssistance), "assistance mode (no-assistance|generative-assist|agentic-assist)")
	flags.BoolVar(&opts.Preview, "preview", false, "ephemeral preview run (no session, never synced)")
	flags.StringVar(&opts.Remote, "remote", "", "remote store URL (default from config)")
	flags.StringVar(&opts.Cache, "cache", "", "local cache SQLite path (default from config)")
	_ = cmd.MarkPersistentFlagRequired("participant")
	cmd.MarkFlagsMutuallyExclusive("session", "preview")

	cmd.AddCommand(newPlayShowCommand(opts))
	cmd.AddCommand(newPlayDecideCommand(opts))
	cmd.AddCommand(newPlayStartCommand(opts))
	cmd.AddCommand(newPlaySyncCommand(opts))
	cmd.AddCommand(newPlayWatchCommand(opts))

	return cmd
}

func newPlayShowCommand(opts *PlayOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Resolve and print the run's state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRun(cmd, func(ctx context.Context, run *playRun) (sim.State, error) {
				return run.manager.State(), nil
			})
		},
	}
}

func newPlayDecideCommand(opts *PlayOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decide ACT OPTION",
		Short: "Record a decision for an Act",
		Long: `Record a decision event and sync the run.

A choice code that is not valid for the Act is logged but does not change
the run's decisions.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := parseAct(args[0])
			if err != nil {
				return err
			}
			option := args[1]
			return opts.withRun(cmd, func(ctx context.Context, run *playRun) (sim.State, error) {
				if !sim.ValidCode(act, option) {
					opts.logger().Warn("choice not valid for act; recorded without effect",
						"act", act, "option", option, "valid", sim.ValidCodes(act))
				}
				return run.manager.UpdateDecision(ctx, act, option)
			})
		},
	}
}

func newPlayStartCommand(opts *PlayOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "start ACT",
		Short:         "Record that an Act has started",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := parseAct(args[0])
			if err != nil {
				return err
			}
			return opts.withRun(cmd, func(ctx context.Context, run *playRun) (sim.State, error) {
				return run.manager.StartAct(ctx, act)
			})
		},
	}
}

func newPlaySyncCommand(opts *PlayOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sync",
		Short:         "Push the run's current state to the remote store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRun(cmd, func(ctx context.Context, run *playRun) (sim.State, error) {
				if err := run.manager.SyncToServer(ctx); err != nil {
					return sim.State{}, WrapExitError(ExitFailure, "sync failed", err)
				}
				return run.manager.State(), nil
			})
		},
	}
}

func newPlayWatchCommand(opts *PlayOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow snapshots written by other clients of the session",
		Long: `Follow the session's broadcasts until interrupted.

Every snapshot adopted from another client is written to the local cache
and printed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return opts.watch(ctx, cmd)
		},
	}
}

func parseAct(s string) (int, error) {
	act, err := strconv.Atoi(s)
	if err != nil || !sim.ValidAct(act) {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid act %q: must be %d-%d", s, sim.FirstAct, sim.FinalAct))
	}
	return act, nil
}

// withRun opens the run, refreshes it, applies fn and prints the result.
func (o *PlayOptions) withRun(cmd *cobra.Command, fn func(context.Context, *playRun) (sim.State, error)) error {
	ctx := cmd.Context()
	run, err := o.open()
	if err != nil {
		return err
	}
	defer run.Close()

	_, source, err := run.manager.Refresh(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to refresh run", err)
	}
	state, err := fn(ctx, run)
	if err != nil {
		return asExitError(err, "play failed")
	}
	// Detached syncs must land before the process exits.
	run.manager.Wait()
	return o.formatter(cmd).Success(PlayResult{
		SessionID: run.manager.SessionID(),
		Source:    source,
		State:     state,
	})
}

func (o *PlayOptions) watch(ctx context.Context, cmd *cobra.Command) error {
	run, err := o.open()
	if err != nil {
		return err
	}
	defer run.Close()

	if run.manager.Ephemeral() {
		return NewExitError(ExitCommandError, "watch needs a session; preview runs are not shared")
	}
	if run.remoteURL == "" {
		return NewExitError(ExitCommandError, "watch needs a remote URL")
	}

	state, source, err := run.manager.Refresh(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to refresh run", err)
	}
	out := o.formatter(cmd)
	if err := out.Success(PlayResult{SessionID: run.manager.SessionID(), Source: source, State: state}); err != nil {
		return err
	}

	printer := &printingReceiver{
		manager: run.manager,
		format:  o.Format,
		w:       cmd.OutOrStdout(),
	}
	follower, err := broadcast.NewFollower(run.remoteURL, run.manager.SessionID(), run.origin, printer, o.logger())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to follow session", err)
	}
	o.logger().Info("watching session", "session_id", run.manager.SessionID(), "url", follower.URL())
	if err := follower.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "follow interrupted", err)
	}
	return nil
}

// open builds the Manager for the run described by the flags.
func (o *PlayOptions) open() (*playRun, error) {
	cfg := o.config().Client
	logger := o.logger()

	mode, err := sim.ParseMode(o.Mode)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid mode", err)
	}

	sessionID := o.Session
	if !o.Preview && sessionID == "" {
		sessionID = o.ids().Generate()
		logger.Info("starting new session", "session_id", sessionID)
	}

	origin := cfg.Origin
	if origin == "" {
		origin = sim.UUIDv7Generator{}.Generate()
	}

	remoteURL := cfg.RemoteURL
	if o.Remote != "" {
		remoteURL = o.Remote
	}
	var rs persist.RemoteStateStore
	if remoteURL != "" {
		client, err := remote.NewClient(remoteURL,
			remote.WithTimeout(cfg.RequestTimeout),
			remote.WithOrigin(origin),
		)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid remote URL", err)
		}
		rs = client
	}

	cachePath := cfg.CachePath
	if o.Cache != "" {
		cachePath = o.Cache
	}
	cache, err := localcache.OpenSQLite(cachePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open local cache", err)
	}

	manager, err := persist.New(persist.Options{
		ParticipantID: o.Participant,
		SessionID:     sessionID,
		Mode:          mode,
		Remote:        rs,
		Cache:         cache,
		Logger:        logger,
		SyncTimeout:   cfg.SyncTimeout,
	})
	if err != nil {
		cache.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start run", err)
	}

	return &playRun{
		manager:   manager,
		cache:     cache,
		remoteURL: remoteURL,
		origin:    origin,
	}, nil
}

// printingReceiver adopts broadcast snapshots and prints each one adopted.
type printingReceiver struct {
	manager *persist.Manager
	format  string
	w       io.Writer
}

func (p *printingReceiver) Receive(ctx context.Context, state sim.State) bool {
	if !p.manager.Receive(ctx, state) {
		return false
	}
	adopted := p.manager.State()
	if p.format == "json" {
		_ = json.NewEncoder(p.w).Encode(adopted)
		return true
	}
	fmt.Fprintf(p.w, "update: act=%d decisions=%s/%s/%s/%s events=%d\n",
		adopted.CurrentAct,
		dash(adopted.Decisions.Act1), dash(adopted.Decisions.Act2),
		dash(adopted.Decisions.Act3), dash(adopted.Decisions.Act4),
		len(adopted.Events))
	return true
}

func asExitError(err error, message string) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(ExitCommandError, message, err)
}
