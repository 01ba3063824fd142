// Package branch maps one Act's choice onto the content selector of the next.
//
// Every function here is total and pure: no I/O, no hidden state, and an
// empty string (absent) for absent or unrecognized input. None of them ever
// substitutes a default branch.
package branch

import (
	"strings"

	"github.com/roach88/actsim/internal/sim"
)

// Act 3 context groups.
const (
	ContextEfficiencyFirst = "efficiency-first"
	ContextTraditionFirst  = "tradition-first"
	ContextBalanced        = "balanced"
)

// Act 4 tracks.
const (
	TrackEfficiencyAtScale    = "Efficiency at Scale"
	TrackManagedAdaptation    = "Managed Adaptation"
	TrackRelationalFoundation = "Relational Foundation"
)

var act3ContextGroups = map[string]string{
	"A1": ContextEfficiencyFirst,
	"C3": ContextEfficiencyFirst,
	"B1": ContextTraditionFirst,
	"C2": ContextTraditionFirst,
	"A2": ContextBalanced,
	"A3": ContextBalanced,
	"B2": ContextBalanced,
	"B3": ContextBalanced,
	"C1": ContextBalanced,
}

var act4Tracks = map[string]string{
	"X": TrackEfficiencyAtScale,
	"Y": TrackManagedAdaptation,
	"Z": TrackRelationalFoundation,
}

// DeriveAct2Branch returns the Act 2 branch for an Act 1 choice. The mapping
// is the identity: each Act 1 choice opens the Act 2 branch of the same label.
func DeriveAct2Branch(act1Choice string) string {
	return act1Choice
}

// DeriveAct3ContextGroup buckets an Act 2 choice into one of three context
// groups. Input is uppercased before lookup.
func DeriveAct3ContextGroup(act2Choice string) string {
	return act3ContextGroups[strings.ToUpper(act2Choice)]
}

// DeriveAct4Track maps an Act 3 choice onto its Act 4 track. Matching is exact.
func DeriveAct4Track(act3Choice string) string {
	return act4Tracks[act3Choice]
}

// Derive computes every derived field from decisions.
func Derive(d sim.Decisions) sim.Derived {
	return sim.Derived{
		Act2Branch:       DeriveAct2Branch(d.Act1),
		Act3ContextGroup: DeriveAct3ContextGroup(d.Act2),
		Act4Track:        DeriveAct4Track(d.Act3),
	}
}

// Consistent reports whether s.Derived agrees with a fresh derivation from
// s.Decisions.
func Consistent(s sim.State) bool {
	return s.Derived == Derive(s.Decisions)
}
