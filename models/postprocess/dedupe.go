package postprocess

import (
	"github.com/nvr-ai/go-cec/images"
)

// DefaultDedupeThreshold is the overlap above which two same-class detections
// are treated as the same object.
const DefaultDedupeThreshold = 0.9

// DedupeConfig defines parameters for duplicate removal.
type DedupeConfig struct {
	// OverlapThreshold is the overlap proportion above which the lower
	// confidence detection of a same-class pair is discarded.
	OverlapThreshold float64 `json:"overlap_threshold" yaml:"overlap_threshold"`
}

// DefaultDedupeConfig returns the default duplicate removal configuration.
func DefaultDedupeConfig() *DedupeConfig {
	return &DedupeConfig{OverlapThreshold: DefaultDedupeThreshold}
}

// Dedupe removes near-duplicate detections of the same class, keeping the
// more confident one of each overlapping pair.
//
// Objects are grouped by ClassID. Within a group every pair (i, j), i before
// j, whose members are both still retained is compared; when their overlap
// exceeds the threshold the lower confidence object is discarded. On equal
// confidence the earlier object is kept. Discarded objects take no part in
// later comparisons, and the survivors are compacted once at the end in their
// original order.
//
// The input is not sorted by confidence first; pairs are visited in source
// order.
//
// Arguments:
//   - set: The detection set. It is not modified.
//   - config: Dedupe configuration. Nil uses DefaultDedupeConfig.
//
// Returns:
//   - Set: The retained objects in source order.
//
// @example
// deduped := postprocess.Dedupe(set, &postprocess.DedupeConfig{OverlapThreshold: 0.9})
func Dedupe(set Set, config *DedupeConfig) Set {
	if config == nil {
		config = DefaultDedupeConfig()
	}
	if len(set) == 0 {
		return Set{}
	}

	retained := make([]bool, len(set))
	for i := range retained {
		retained[i] = true
	}

	for _, group := range groupByClassID(set) {
		for a := 0; a < len(group); a++ {
			i := group[a]
			for b := a + 1; b < len(group) && retained[i]; b++ {
				j := group[b]
				if !retained[j] {
					continue
				}
				if images.OverlapProportion(set[i].Box, set[j].Box) <= config.OverlapThreshold {
					continue
				}
				if set[j].Confidence > set[i].Confidence {
					retained[i] = false
				} else {
					retained[j] = false
				}
			}
		}
	}

	return compact(set, retained)
}

// groupByClassID returns object indices grouped by class id, groups in order
// of first appearance.
func groupByClassID(set Set) [][]int {
	slot := make(map[int]int)
	var groups [][]int
	for i, o := range set {
		g, ok := slot[o.ClassID]
		if !ok {
			g = len(groups)
			slot[o.ClassID] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}
