// Package cli implements the actsim command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/actsim/internal/config"
	"github.com/roach88/actsim/internal/logging"
	"github.com/roach88/actsim/internal/sim"
)

// RootOptions holds global flags for all commands, plus the configuration
// and logger resolved from them.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	LogLevel   string

	// Config and Logger are set before any subcommand runs. Commands built
	// on their own (as in tests) fall back to defaults.
	Config *config.Config
	Logger *slog.Logger

	// IDs generates session ids for runs started without one.
	IDs sim.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the actsim CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "actsim",
		Short: "actsim - branching CEO simulation",
		Long: `A four-act branching narrative simulation for leadership research.

Each participant decision is logged as an event. State is rebuilt from the
log, derived branches select the next act's content, and runs persist to a
local cache and a remote authoritative store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (info|debug|trace|warn|error); overrides config")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDeriveCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewPlayCommand(opts))
	cmd.AddCommand(NewSessionsCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// resolve validates global flags, loads configuration and builds the logger.
func (o *RootOptions) resolve(logOut io.Writer) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.LogLevel != "" {
		if !logging.ValidLevel(o.LogLevel) {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid log level %q: must be one of %v", o.LogLevel, logging.Levels))
		}
		cfg.Logging.Level = o.LogLevel
	}
	if o.Verbose && o.LogLevel == "" && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "debug"
	}

	o.Config = cfg
	o.Logger = logging.New(cfg.Logging.Format, cfg.Logging.Level, logOut)
	return nil
}

func (o *RootOptions) config() *config.Config {
	if o.Config == nil {
		return config.Default()
	}
	return o.Config
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o *RootOptions) ids() sim.IDGenerator {
	if o.IDs == nil {
		return sim.UUIDv7Generator{}
	}
	return o.IDs
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
