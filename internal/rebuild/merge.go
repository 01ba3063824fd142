package rebuild

import (
	"slices"

	"github.com/roach88/actsim/internal/canonical"
	"github.com/roach88/actsim/internal/sim"
)

// Merge combines event logs from several sources into one timestamp-ordered
// log. Events with the same content identity are kept once, at their first
// occurrence; the stable sort then keeps ties in source order.
func Merge(logs ...[]sim.Event) []sim.Event {
	seen := make(map[string]bool)
	merged := []sim.Event{}

	for _, log := range logs {
		for _, e := range log {
			id, err := canonical.EventID(e)
			if err == nil {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
			merged = append(merged, e)
		}
	}

	slices.SortStableFunc(merged, func(a, b sim.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return merged
}
