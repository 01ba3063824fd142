package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/actsim/internal/branch"
	"github.com/roach88/actsim/internal/sim"
)

// DeriveOptions holds flags for the derive command.
type DeriveOptions struct {
	*RootOptions
	Act1 string
	Act2 string
	Act3 string
}

// DeriveResult is the output of the derive command.
type DeriveResult struct {
	Act2Branch       string `json:"act2Branch"`
	Act3ContextGroup string `json:"act3ContextGroup"`
	Act4Track        string `json:"act4Track"`
}

func (r DeriveResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "act2Branch:       %s\n", orNone(r.Act2Branch))
	fmt.Fprintf(&b, "act3ContextGroup: %s\n", orNone(r.Act3ContextGroup))
	fmt.Fprintf(&b, "act4Track:        %s", orNone(r.Act4Track))
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// NewDeriveCommand creates the derive command.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeriveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Show the branches selected by a set of choices",
		Long: `Compute the derived branch fields for the given Act choices.

Unrecognized or missing choices derive no branch.

Examples:
  actsim derive --act1 B
  actsim derive --act1 A --act2 A1 --act3 X --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			derived := branch.Derive(sim.Decisions{
				Act1: opts.Act1,
				Act2: opts.Act2,
				Act3: opts.Act3,
			})
			return opts.formatter(cmd).Success(DeriveResult{
				Act2Branch:       derived.Act2Branch,
				Act3ContextGroup: derived.Act3ContextGroup,
				Act4Track:        derived.Act4Track,
			})
		},
	}

	cmd.Flags().StringVar(&opts.Act1, "act1", "", "Act 1 choice (A|B|C)")
	cmd.Flags().StringVar(&opts.Act2, "act2", "", "Act 2 choice (A1..C3)")
	cmd.Flags().StringVar(&opts.Act3, "act3", "", "Act 3 choice (X|Y|Z)")

	return cmd
}
