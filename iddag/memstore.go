package iddag

import (
	"sort"

	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
)

// Compile time check to ensure MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// parentChild is one entry of the parent index: the flat segment
// starting at ChildLow has Parent as a direct parent.
type parentChild struct {
	Parent   model.Id
	ChildLow model.Id
}

// MemStore keeps all segments in memory.
//
// Segments of each level are held in a slice sorted by low id. Segments
// never overlap and never cross group boundaries, so the slices are
// also sorted by high id. A flat parent index sorted by (parent,
// child low) answers child lookups.
type MemStore struct {
	levels  [][]model.Segment
	parents []parentChild
}

// NewMemStore creates an empty in-memory segment store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) segs(level int) []model.Segment {
	if level < 0 || level >= len(s.levels) {
		return nil
	}
	return s.levels[level]
}

// Insert adds a segment. It does not check whether the new segment
// overlaps an existing one.
func (s *MemStore) Insert(seg model.Segment) error {
	if seg.High < seg.Low {
		return errProgramming("segment %s has high below low", seg)
	}
	if seg.Low.Group() != seg.High.Group() {
		return errProgramming("segment %s crosses groups", seg)
	}
	for len(s.levels) <= seg.Level {
		s.levels = append(s.levels, nil)
	}
	segs := s.levels[seg.Level]
	i := sort.Search(len(segs), func(i int) bool { return segs[i].Low >= seg.Low })
	segs = append(segs, model.Segment{})
	copy(segs[i+1:], segs[i:])
	segs[i] = seg
	s.levels[seg.Level] = segs

	if seg.Level == 0 {
		for _, p := range seg.Parents {
			s.insertParentEntry(parentChild{Parent: p, ChildLow: seg.Low})
		}
	}
	return nil
}

func (s *MemStore) insertParentEntry(pc parentChild) {
	i := sort.Search(len(s.parents), func(i int) bool {
		e := s.parents[i]
		if e.Parent != pc.Parent {
			return e.Parent > pc.Parent
		}
		return e.ChildLow >= pc.ChildLow
	})
	s.parents = append(s.parents, parentChild{})
	copy(s.parents[i+1:], s.parents[i:])
	s.parents[i] = pc
}

// NextFreeID returns the lowest id of the group not covered by any
// segment at the given level.
func (s *MemStore) NextFreeID(level int, group model.Group) model.Id {
	segs := s.segs(level)
	i := sort.Search(len(segs), func(i int) bool { return segs[i].Low > group.MaxID() })
	if i == 0 {
		return group.MinID()
	}
	last := segs[i-1]
	if last.Low.Group() != group {
		return group.MinID()
	}
	return last.High + 1
}

// MaxLevel returns the highest level holding at least one segment.
func (s *MemStore) MaxLevel() int {
	for l := len(s.levels) - 1; l >= 0; l-- {
		if len(s.levels[l]) > 0 {
			return l
		}
	}
	return 0
}

// FindSegmentByHead returns the segment at the given level whose high
// id equals head.
func (s *MemStore) FindSegmentByHead(head model.Id, level int) (model.Segment, bool) {
	segs := s.segs(level)
	i := sort.Search(len(segs), func(i int) bool { return segs[i].Low > head })
	if i == 0 {
		return model.Segment{}, false
	}
	seg := segs[i-1]
	if seg.High != head {
		return model.Segment{}, false
	}
	return seg, true
}

// FindFlatSegmentIncluding returns the flat segment covering id.
func (s *MemStore) FindFlatSegmentIncluding(id model.Id) (model.Segment, bool) {
	segs := s.segs(0)
	i := sort.Search(len(segs), func(i int) bool { return segs[i].Low > id })
	if i == 0 {
		return model.Segment{}, false
	}
	seg := segs[i-1]
	if seg.High < id {
		return model.Segment{}, false
	}
	return seg, true
}

func (s *MemStore) findFlatByLow(low model.Id) (model.Segment, bool) {
	segs := s.segs(0)
	i := sort.Search(len(segs), func(i int) bool { return segs[i].Low >= low })
	if i == len(segs) || segs[i].Low != low {
		return model.Segment{}, false
	}
	return segs[i], true
}

// NextSegments returns the segments at the given level whose low id is
// at least low, restricted to low's group, in ascending order.
func (s *MemStore) NextSegments(low model.Id, level int) []model.Segment {
	segs := s.segs(level)
	maxID := low.Group().MaxID()
	i := sort.Search(len(segs), func(i int) bool { return segs[i].Low >= low })
	j := i
	for j < len(segs) && segs[j].Low <= maxID {
		j++
	}
	if i == j {
		return nil
	}
	return append([]model.Segment(nil), segs[i:j]...)
}

// IterSegmentsDescending visits segments at the given level whose high
// id is at most maxHigh, in descending order.
func (s *MemStore) IterSegmentsDescending(maxHigh model.Id, level int, fn func(seg model.Segment) (bool, error)) error {
	segs := s.segs(level)
	i := sort.Search(len(segs), func(i int) bool { return segs[i].High > maxHigh })
	for j := i - 1; j >= 0; j-- {
		cont, err := fn(segs[j])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// IterSegmentsAscending visits segments at the given level whose high
// id is at least minHigh, in ascending order.
func (s *MemStore) IterSegmentsAscending(minHigh model.Id, level int, fn func(seg model.Segment) (bool, error)) error {
	segs := s.segs(level)
	i := sort.Search(len(segs), func(i int) bool { return segs[i].High >= minHigh })
	for ; i < len(segs); i++ {
		cont, err := fn(segs[i])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// IterMasterFlatSegmentsWithParentSpan visits (parent, child) pairs
// where parent falls inside span and child is a master group flat
// segment, in ascending parent order.
func (s *MemStore) IterMasterFlatSegmentsWithParentSpan(span idset.Span, fn func(parent model.Id, seg model.Segment) (bool, error)) error {
	i := sort.Search(len(s.parents), func(i int) bool { return s.parents[i].Parent >= span.Low })
	for ; i < len(s.parents); i++ {
		pc := s.parents[i]
		if pc.Parent > span.High {
			return nil
		}
		if pc.ChildLow.Group() != model.GroupMaster {
			continue
		}
		seg, ok := s.findFlatByLow(pc.ChildLow)
		if !ok {
			return errProgramming("parent index entry %s -> %s has no flat segment", pc.Parent, pc.ChildLow)
		}
		cont, err := fn(pc.Parent, seg)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// IterFlatSegmentsWithParent visits flat segments of any group having
// the given direct parent, in ascending low order.
func (s *MemStore) IterFlatSegmentsWithParent(parent model.Id, fn func(seg model.Segment) (bool, error)) error {
	i := sort.Search(len(s.parents), func(i int) bool { return s.parents[i].Parent >= parent })
	for ; i < len(s.parents); i++ {
		pc := s.parents[i]
		if pc.Parent != parent {
			return nil
		}
		seg, ok := s.findFlatByLow(pc.ChildLow)
		if !ok {
			return errProgramming("parent index entry %s -> %s has no flat segment", pc.Parent, pc.ChildLow)
		}
		cont, err := fn(seg)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// AllIDsInGroups returns the set of ids covered by flat segments of the
// given groups.
func (s *MemStore) AllIDsInGroups(groups ...model.Group) idset.Set {
	segs := s.segs(0)
	result := idset.Empty()
	// Visit groups from the highest id range down so pushes hit the
	// ordered fast path.
	sorted := append([]model.Group(nil), groups...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	for _, group := range sorted {
		lo := sort.Search(len(segs), func(i int) bool { return segs[i].Low >= group.MinID() })
		hi := sort.Search(len(segs), func(i int) bool { return segs[i].Low > group.MaxID() })
		for j := hi - 1; j >= lo; j-- {
			result.Push(idset.SpanOf(segs[j].Low, segs[j].High))
		}
	}
	return result
}

// RemoveNonMasterIDs drops every segment of the non-master group.
func (s *MemStore) RemoveNonMasterIDs() error {
	nonMasterMin := model.GroupNonMaster.MinID()
	for l, segs := range s.levels {
		// Non-master segments form a suffix of each level.
		i := sort.Search(len(segs), func(i int) bool { return segs[i].Low >= nonMasterMin })
		s.levels[l] = segs[:i]
	}
	kept := s.parents[:0]
	for _, pc := range s.parents {
		if pc.ChildLow.Group() == model.GroupMaster {
			kept = append(kept, pc)
		}
	}
	s.parents = kept
	return nil
}

// CloneReadOnly returns a copy whose reads are unaffected by later
// mutations of the receiver.
func (s *MemStore) CloneReadOnly() Store {
	clone := &MemStore{
		levels:  make([][]model.Segment, len(s.levels)),
		parents: append([]parentChild(nil), s.parents...),
	}
	for l, segs := range s.levels {
		clone.levels[l] = append([]model.Segment(nil), segs...)
	}
	return clone
}
