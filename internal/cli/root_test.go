package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "actsim", cmd.Use)
	assert.Contains(t, cmd.Long, "branching narrative")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"},
		{"derive"},
		{"replay"},
		{"sessions"},
		{"play", "show"},
		{"play", "decide"},
		{"play", "start"},
		{"play", "sync"},
		{"play", "watch"},
		{"scenario", "run"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestReplayCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	replayCmd, _, err := cmd.Find([]string{"replay"})
	require.NoError(t, err)

	require.NotNil(t, replayCmd.Flags().Lookup("db"))
	require.NotNil(t, replayCmd.Flags().Lookup("session"))
	require.NotNil(t, replayCmd.Flags().Lookup("file"))
}

func TestPlayCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	playCmd, _, err := cmd.Find([]string{"play"})
	require.NoError(t, err)

	modeFlag := playCmd.PersistentFlags().Lookup("mode")
	require.NotNil(t, modeFlag)
	assert.Equal(t, "no-assistance", modeFlag.DefValue)

	previewFlag := playCmd.PersistentFlags().Lookup("preview")
	require.NotNil(t, previewFlag)
	assert.Equal(t, "false", previewFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, "--format", "invalid", "derive", "--act1", "A")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLogLevelValidation(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "derive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644))

	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", path, "derive"})
	require.NoError(t, cmd.Execute())
}

func TestConfigFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  levle: debug\n"), 0644))

	_, err := execute(t, "--config", path, "derive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestResolve_LogLevelOverridesConfig(t *testing.T) {
	t.Setenv("ACTSIM_LOG_LEVEL", "warn")

	opts := &RootOptions{Format: "text", LogLevel: "trace"}
	require.NoError(t, opts.resolve(io.Discard))
	assert.Equal(t, "trace", opts.Config.Logging.Level)
	require.NotNil(t, opts.Logger)
}

func TestResolve_VerboseRaisesDefaultLevel(t *testing.T) {
	opts := &RootOptions{Format: "text", Verbose: true}
	require.NoError(t, opts.resolve(io.Discard))
	assert.Equal(t, "debug", opts.Config.Logging.Level)
}

func TestResolve_JSONLogFormatFromConfig(t *testing.T) {
	t.Setenv("ACTSIM_LOG_FORMAT", "json")

	var logs bytes.Buffer
	opts := &RootOptions{Format: "text"}
	require.NoError(t, opts.resolve(&logs))
	opts.Logger.Info("state resolved", "session_id", "s-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "s-1", entry["session_id"])
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := WrapExitError(ExitFailure, "replay failed", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Contains(t, wrapped.Error(), "replay failed")
}
