package scene

import (
	"cmp"
	"slices"
)

// Placement is a widget's resolved slot: its anchor and its stacking
// index within that anchor.
type Placement struct {
	Widget Widget `json:"widget"`
	Anchor Anchor `json:"anchor"`
	Index  int    `json:"index"`
}

// Place resolves UI placement for widgets. Widgets sharing an anchor are
// stacked by ascending Order; widgets without one follow the ordered
// ones in declaration order. Anchors appear in order of first use.
func Place(widgets []Widget) []Placement {
	var anchors []Anchor
	groups := map[Anchor][]Widget{}
	for _, w := range widgets {
		if _, ok := groups[w.Anchor]; !ok {
			anchors = append(anchors, w.Anchor)
		}
		groups[w.Anchor] = append(groups[w.Anchor], w)
	}

	placements := make([]Placement, 0, len(widgets))
	for _, a := range anchors {
		group := groups[a]
		slices.SortStableFunc(group, compareOrder)
		for i, w := range group {
			placements = append(placements, Placement{Widget: w, Anchor: a, Index: i})
		}
	}
	return placements
}

func compareOrder(a, b Widget) int {
	switch {
	case a.Order == nil && b.Order == nil:
		return 0
	case a.Order == nil:
		return 1
	case b.Order == nil:
		return -1
	}
	return cmp.Compare(*a.Order, *b.Order)
}
