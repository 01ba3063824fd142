package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/actsim/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
}

// ScenarioOutcome is the result of one scenario.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Digest string   `json:"digest"`
	Errors []string `json:"errors,omitempty"`
}

// ScenarioReport is the output of "scenario run".
type ScenarioReport struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
}

func (r ScenarioReport) String() string {
	var b strings.Builder
	for _, s := range r.Scenarios {
		if s.Pass {
			fmt.Fprintf(&b, "✓ %s\n", s.Name)
			continue
		}
		fmt.Fprintf(&b, "✗ %s\n", s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "    %s\n", e)
		}
	}
	fmt.Fprintf(&b, "\n%d passed, %d failed", r.Passed, r.Failed)
	return b.String()
}

// NewScenarioCommand creates the scenario command group.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Work with narrative scenarios",
	}

	run := &cobra.Command{
		Use:   "run PATH...",
		Short: "Run scenario files and check their expectations",
		Long: `Run YAML scenarios through the state rebuilder.

Each PATH is a scenario file or a directory of *.yaml scenarios.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (file not found, invalid scenario, etc.)

Examples:
  actsim scenario run internal/harness/testdata/scenarios
  actsim scenario run tradition_track.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, cmd, args)
		},
	}
	cmd.AddCommand(run)

	return cmd
}

func runScenarios(opts *ScenarioOptions, cmd *cobra.Command, paths []string) error {
	out := opts.formatter(cmd)

	var scenarios []*harness.Scenario
	for _, path := range paths {
		loaded, err := loadScenarioPath(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load scenarios", err)
		}
		scenarios = append(scenarios, loaded...)
	}

	report := ScenarioReport{Scenarios: make([]ScenarioOutcome, 0, len(scenarios))}
	for _, s := range scenarios {
		out.VerboseLog("running %s", s.Name)
		result, err := harness.Run(s)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to run scenario %s", s.Name), err)
		}
		report.Scenarios = append(report.Scenarios, ScenarioOutcome{
			Name:   s.Name,
			Pass:   result.Pass,
			Digest: result.Digest,
			Errors: result.Errors,
		})
		if result.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	if report.Failed == 0 {
		return out.Success(report)
	}
	if err := out.Failure(CodeScenario, "scenarios failed", report); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
}

func loadScenarioPath(path string) ([]*harness.Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return harness.LoadScenarios(path)
	}
	s, err := harness.LoadScenario(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return []*harness.Scenario{s}, nil
}
