package iddag

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
)

// VerifyIntegrity cross-checks the stored segments and returns a list
// of human readable problems, empty when the dag is consistent.
//
// Checked invariants:
//   - flat segments of a group cover [min, next free id) without gaps
//     or overlaps
//   - parents reference covered ids strictly below their segment
//   - high level segments cover only flat-covered ids and end at a
//     lower level segment boundary
func (d *IdDag) VerifyIntegrity() []string {
	var problems []string

	covered := roaring64.New()
	for _, group := range model.AllGroups {
		for _, seg := range d.store.NextSegments(group.MinID(), 0) {
			r := roaring64.New()
			r.AddRange(uint64(seg.Low), uint64(seg.High)+1)
			if covered.Intersects(r) {
				problems = append(problems, fmt.Sprintf("flat segment %s overlaps another flat segment", seg))
			}
			covered.Or(r)
		}
	}

	for _, group := range model.AllGroups {
		free := d.store.NextFreeID(0, group)
		if free == group.MinID() {
			continue
		}
		groupRange := roaring64.New()
		groupRange.AddRange(uint64(group.MinID()), uint64(free))
		want := uint64(free - group.MinID())
		if got := groupRange.AndCardinality(covered); got != want {
			problems = append(problems, fmt.Sprintf(
				"flat segments of group %s leave gaps: %d of %d ids covered", group, got, want))
		}

		for _, seg := range d.store.NextSegments(group.MinID(), 0) {
			for _, p := range seg.Parents {
				if p >= seg.Low {
					problems = append(problems, fmt.Sprintf("flat segment %s has parent %s not below its low", seg, p))
				} else if !covered.Contains(uint64(p)) {
					problems = append(problems, fmt.Sprintf("flat segment %s has unassigned parent %s", seg, p))
				}
			}
		}
	}

	for level := 1; level <= d.store.MaxLevel(); level++ {
		for _, group := range model.AllGroups {
			for _, seg := range d.store.NextSegments(group.MinID(), level) {
				r := roaring64.New()
				r.AddRange(uint64(seg.Low), uint64(seg.High)+1)
				want := idset.SpanOf(seg.Low, seg.High).Count()
				if got := r.AndCardinality(covered); got != want {
					problems = append(problems, fmt.Sprintf(
						"level %d segment %s covers unassigned ids: %d of %d covered", level, seg, got, want))
				}
				if _, ok := d.store.FindSegmentByHead(seg.High, level-1); !ok {
					problems = append(problems, fmt.Sprintf(
						"level %d segment %s does not end at a level %d boundary", level, seg, level-1))
				}
				for _, p := range seg.Parents {
					if p >= seg.Low {
						problems = append(problems, fmt.Sprintf(
							"level %d segment %s has parent %s not below its low", level, seg, p))
					}
				}
			}
		}
	}

	return problems
}
