package postprocess

import (
	"github.com/nvr-ai/go-cec/images"
)

// DefaultReconcileThreshold is the minimum overlap for a check object to
// confirm a main object.
const DefaultReconcileThreshold = 0.8

// ReconcileConfig defines parameters for cross-set reconciliation.
type ReconcileConfig struct {
	// OverlapThreshold is the minimum overlap proportion of a match.
	OverlapThreshold float64 `json:"overlap_threshold" yaml:"overlap_threshold"`
	// Classes limits reconciliation to these class names. Main objects of
	// other classes are kept without being checked. Empty checks every class.
	Classes []string `json:"classes" yaml:"classes"`
}

// DefaultReconcileConfig returns the default reconciliation configuration.
func DefaultReconcileConfig() *ReconcileConfig {
	return &ReconcileConfig{OverlapThreshold: DefaultReconcileThreshold}
}

// Match pairs a main object with the check object that confirmed it.
type Match struct {
	// Main is the index in the main set.
	Main int
	// Check is the index in the check set.
	Check int
	// Overlap is the overlap proportion of the two boxes.
	Overlap float64
}

// classGroup holds the main and check indices of one class.
type classGroup struct {
	main  []int
	check []int
}

// Reconcile keeps only the main objects confirmed by an overlapping object of
// the same class in the check set. The check set serves as evidence only.
//
// See ReconcileWithMatches for the matching rules.
//
// Arguments:
//   - main: The set to filter. It is not modified.
//   - check: The independently detected set used as evidence.
//   - config: Reconcile configuration. Nil uses DefaultReconcileConfig.
//
// Returns:
//   - Set: The retained main objects in source order.
//
// @example
// rgb = postprocess.Reconcile(rgb, depth, &postprocess.ReconcileConfig{OverlapThreshold: 0.8})
func Reconcile(main, check Set, config *ReconcileConfig) Set {
	kept, _ := ReconcileWithMatches(main, check, config)
	return kept
}

// ReconcileWithMatches filters main against check and also reports which
// check object confirmed each retained, evaluated main object.
//
// Main objects are grouped by class name, restricted to config.Classes when
// set. Check objects are grouped only for classes that have a main group.
// Within each class, main objects are visited in source order and each takes
// the remaining check candidate with the largest overlap that reaches the
// threshold; on equal overlap the earlier candidate wins. A matched candidate
// is consumed so no check object confirms two main objects. A main object
// with no qualifying candidate is dropped.
//
// The assignment is greedy: it commits to the best available candidate
// immediately instead of searching for a globally optimal matching.
//
// Arguments:
//   - main: The set to filter.
//   - check: The evidence set.
//   - config: Reconcile configuration. Nil uses DefaultReconcileConfig.
//
// Returns:
//   - Set: The retained main objects in source order.
//   - []Match: The matches, in the order they were made.
func ReconcileWithMatches(main, check Set, config *ReconcileConfig) (Set, []Match) {
	if config == nil {
		config = DefaultReconcileConfig()
	}

	var filter map[string]struct{}
	if len(config.Classes) > 0 {
		filter = make(map[string]struct{}, len(config.Classes))
		for _, c := range config.Classes {
			filter[c] = struct{}{}
		}
	}

	groups := make(map[string]*classGroup)
	var order []string
	for i, o := range main {
		if filter != nil {
			if _, ok := filter[o.ClassName]; !ok {
				continue
			}
		}
		g, ok := groups[o.ClassName]
		if !ok {
			g = &classGroup{}
			groups[o.ClassName] = g
			order = append(order, o.ClassName)
		}
		g.main = append(g.main, i)
	}
	for i, o := range check {
		if g, ok := groups[o.ClassName]; ok {
			g.check = append(g.check, i)
		}
	}

	retained := make([]bool, len(main))
	for i := range retained {
		retained[i] = true
	}

	var matches []Match
	for _, name := range order {
		g := groups[name]
		for _, mi := range g.main {
			best := -1
			bestOverlap := 0.0
			for ci, idx := range g.check {
				overlap := images.OverlapProportion(main[mi].Box, check[idx].Box)
				if overlap >= config.OverlapThreshold && overlap > bestOverlap {
					best = ci
					bestOverlap = overlap
				}
			}
			if best < 0 {
				retained[mi] = false
				continue
			}
			matches = append(matches, Match{Main: mi, Check: g.check[best], Overlap: bestOverlap})
			g.check = append(g.check[:best], g.check[best+1:]...)
		}
	}

	return compact(main, retained), matches
}
