// Package harness runs narrative scenarios against the state rebuilder.
//
// A scenario is a participant run written down as a timed event log plus the
// state the run is expected to reach. The harness folds the log with
// rebuild.Rebuild, checks the expectations, and verifies that rebuilding the
// same log again yields a bit-identical state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: tradition_track
//	description: "What this scenario validates"
//	participant: p-001
//	session: sess-001        # empty for an ephemeral preview run
//	mode: generative-assist  # defaults to no-assistance
//	events:
//	  - at: 1                # seconds after the fixed epoch
//	    type: decision       # defaults to decision
//	    act: 1
//	    option: B
//	expect:
//	  current_act: 2
//	  decisions: { act1: B, act2: "" }   # "" means undecided
//	  derived: { act2_branch: B }
//	  complete: false
//	  event_count: 1
//
// Event timestamps are offsets from testutil.Epoch, so every run of a
// scenario produces the same snapshot bytes.
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON of the final state against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
