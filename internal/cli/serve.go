package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/actsim/internal/server"
	"github.com/roach88/actsim/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session state API server",
		Long: `Run the authoritative session store over HTTP.

The server keeps every pushed snapshot and the union of their event logs in
SQLite, and relays accepted snapshots to websocket subscribers of the same
session. It stops gracefully on SIGINT or SIGTERM.

Examples:
  actsim serve
  actsim serve --addr :9090 --db ./sessions.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg := opts.config().Server
	logger := opts.logger()

	addr := cfg.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	dbPath := cfg.DBPath
	if opts.Database != "" {
		dbPath = opts.Database
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	srv := server.New(st, server.Options{
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		Logger:            logger,
	})

	logger.Info("serving", "addr", addr, "db", dbPath)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return WrapExitError(ExitCommandError, "server failed", err)
	}
	logger.Info("server stopped")
	return nil
}
