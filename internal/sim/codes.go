package sim

import "slices"

var validCodes = map[int][]string{
	1: {"A", "B", "C"},
	2: {"A1", "A2", "A3", "B1", "B2", "B3", "C1", "C2", "C3"},
	3: {"X", "Y", "Z"},
	4: {"Innovation", "Ecosystem", "Efficiency"},
}

// ValidCodes returns a copy of the choice codes accepted for act.
// Returns nil for an out-of-range act.
func ValidCodes(act int) []string {
	return slices.Clone(validCodes[act])
}

// ValidCode reports whether code is accepted for act. Matching is exact.
func ValidCode(act int, code string) bool {
	return slices.Contains(validCodes[act], code)
}

// ValidAct reports whether act is within FirstAct..FinalAct.
func ValidAct(act int) bool {
	return act >= FirstAct && act <= FinalAct
}
