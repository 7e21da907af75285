package activity

import "sort"

// CaptureGroup is a derived grouping of screenshots that share a
// capture-group key. Screenshots without a key form singleton groups.
type CaptureGroup struct {
	// Key is the shared capture-group key, or "" for a singleton group
	// of an ungrouped screenshot.
	Key         string
	Screenshots []Screenshot
}

// GroupByCaptureGroup partitions screenshots by capture-group key.
// Keyed groups come first in ascending key order (keys are tick
// timestamps, so ascending is chronological); within a group the input
// order is preserved. Screenshots with no key are appended after the
// keyed groups, one singleton group each, in input order.
func GroupByCaptureGroup(shots []Screenshot) []CaptureGroup {
	grouped := make(map[string][]Screenshot)
	var ungrouped []Screenshot

	for _, s := range shots {
		if s.CaptureGroup == nil || *s.CaptureGroup == "" {
			ungrouped = append(ungrouped, s)
			continue
		}
		key := *s.CaptureGroup
		grouped[key] = append(grouped[key], s)
	}

	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]CaptureGroup, 0, len(keys)+len(ungrouped))
	for _, k := range keys {
		groups = append(groups, CaptureGroup{Key: k, Screenshots: grouped[k]})
	}
	for _, s := range ungrouped {
		groups = append(groups, CaptureGroup{Screenshots: []Screenshot{s}})
	}

	return groups
}

// EarliestCapture returns the smallest captured_at in the group.
// Timestamps share a fixed-width layout, so string comparison is
// chronological comparison.
func (g CaptureGroup) EarliestCapture() string {
	if len(g.Screenshots) == 0 {
		return ""
	}
	earliest := g.Screenshots[0].CapturedAt
	for _, s := range g.Screenshots[1:] {
		if s.CapturedAt < earliest {
			earliest = s.CapturedAt
		}
	}
	return earliest
}

// MonitorIDs returns the distinct monitor ids in the group, in the
// order screenshots appear.
func (g CaptureGroup) MonitorIDs() []int {
	seen := make(map[int]bool)
	ids := make([]int, 0, len(g.Screenshots))
	for _, s := range g.Screenshots {
		if !seen[s.MonitorID] {
			seen[s.MonitorID] = true
			ids = append(ids, s.MonitorID)
		}
	}
	return ids
}
