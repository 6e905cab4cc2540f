package iddag

import (
	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
)

// Store provides ordered access to segments at every level.
//
// Implementations are not required to be safe for concurrent use;
// callers serialize access or work on read-only clones.
type Store interface {
	// Insert adds a segment. It does not check whether the new segment
	// overlaps an existing one; that is a logic error of the caller.
	Insert(seg model.Segment) error

	// NextFreeID returns the lowest id of the group not covered by any
	// segment at the given level.
	NextFreeID(level int, group model.Group) model.Id

	// MaxLevel returns the highest level holding at least one segment.
	MaxLevel() int

	// FindSegmentByHead returns the segment at the given level whose
	// high id equals head.
	FindSegmentByHead(head model.Id, level int) (model.Segment, bool)

	// FindFlatSegmentIncluding returns the flat segment covering id.
	FindFlatSegmentIncluding(id model.Id) (model.Segment, bool)

	// NextSegments returns the segments at the given level whose low id
	// is at least low, restricted to low's group, in ascending order.
	NextSegments(low model.Id, level int) []model.Segment

	// IterSegmentsDescending visits segments at the given level whose
	// high id is at most maxHigh, in descending order. The visitor
	// returns false to stop early.
	IterSegmentsDescending(maxHigh model.Id, level int, fn func(seg model.Segment) (bool, error)) error

	// IterSegmentsAscending visits segments at the given level whose
	// high id is at least minHigh, in ascending order. The visitor
	// returns false to stop early.
	IterSegmentsAscending(minHigh model.Id, level int, fn func(seg model.Segment) (bool, error)) error

	// IterMasterFlatSegmentsWithParentSpan visits (parent, child) pairs
	// where parent falls inside span and child is a master group flat
	// segment having that direct parent, in ascending parent order.
	IterMasterFlatSegmentsWithParentSpan(span idset.Span, fn func(parent model.Id, seg model.Segment) (bool, error)) error

	// IterFlatSegmentsWithParent visits flat segments of any group
	// having the given direct parent, in ascending low order.
	IterFlatSegmentsWithParent(parent model.Id, fn func(seg model.Segment) (bool, error)) error

	// AllIDsInGroups returns the set of ids covered by flat segments of
	// the given groups.
	AllIDsInGroups(groups ...model.Group) idset.Set

	// RemoveNonMasterIDs drops every segment of the non-master group.
	RemoveNonMasterIDs() error

	// CloneReadOnly returns a copy whose reads are unaffected by later
	// mutations of the receiver. Parent slices inside segments are
	// shared; they are never mutated after insert.
	CloneReadOnly() Store
}
