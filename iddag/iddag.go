// Package iddag implements the segmented graph index on the integer id
// space. It answers graph queries (ancestors, children, ranges, common
// ancestors) in O(merges) time by covering the id space with segments
// at multiple levels.
package iddag

import (
	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
)

const (
	// DefaultSegmentSize is the maximum number of lower level segments
	// merged into one higher level segment.
	DefaultSegmentSize = 16

	// maxMeaningfulLevel caps how many high levels get built. Levels
	// above it no longer reduce the segment count meaningfully.
	maxMeaningfulLevel = 4
)

// ParentsFunc describes a graph by returning the parent ids of an id.
// Parent ids are always lower than their child id. The returned slice
// is retained by the index and must not be reused by the caller.
type ParentsFunc func(id model.Id) ([]model.Id, error)

// Options contains configuration for an IdDag.
type Options struct {
	// Store holds the segments. Defaults to a fresh MemStore.
	Store Store

	// SegmentSize is the maximum number of lower level segments merged
	// into one higher level segment.
	SegmentSize int

	// Version seeds the version token so a reopened graph continues
	// its persisted lineage. The zero value starts a fresh lineage.
	Version model.VerLink
}

// DefaultOptions returns the default IdDag options.
var DefaultOptions = Options{
	SegmentSize: DefaultSegmentSize,
}

// IdDag is the segmented index over the id space. Mutations bump an
// opaque version token so read-only clones can detect staleness.
type IdDag struct {
	store       Store
	segmentSize int
	version     model.VerLink
}

// New creates an IdDag.
func New(optFns ...func(o *Options)) *IdDag {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	store := opts.Store
	if store == nil {
		store = NewMemStore()
	}
	size := opts.SegmentSize
	if size < 2 {
		size = DefaultSegmentSize
	}
	version := opts.Version
	if version.IsZero() {
		version = model.NewVerLink()
	}

	return &IdDag{
		store:       store,
		segmentSize: size,
		version:     version,
	}
}

// Version returns the current version token. It changes on every
// mutation. Append-only mutations keep the same lineage; non
// append-only mutations (like dropping the non-master group) start a
// new lineage.
func (d *IdDag) Version() model.VerLink {
	return d.version
}

// ContainsID reports whether segments cover the given id.
func (d *IdDag) ContainsID(id model.Id) bool {
	return d.store.NextFreeID(0, id.Group()) > id
}

// NextFreeID returns the lowest unassigned id of the group.
func (d *IdDag) NextFreeID(group model.Group) model.Id {
	return d.store.NextFreeID(0, group)
}

// CloneReadOnly returns a read-only copy of the dag at its current
// version.
func (d *IdDag) CloneReadOnly() *IdDag {
	return &IdDag{
		store:       d.store.CloneReadOnly(),
		segmentSize: d.segmentSize,
		version:     d.version,
	}
}

func (d *IdDag) insert(flags model.SegmentFlags, level int, low, high model.Id, parents []model.Id) error {
	d.version = d.version.Bump()
	return d.store.Insert(model.Segment{
		Level:   level,
		Low:     low,
		High:    high,
		Parents: parents,
		Flags:   flags,
	})
}

// BuildSegments covers every id up to high (inclusive) with segments,
// building flat segments on demand and high level segments on top.
// Returns the number of segments inserted.
func (d *IdDag) BuildSegments(high model.Id, parentsOf ParentsFunc) (int, error) {
	count, err := d.buildFlatSegments(high, parentsOf, 0)
	if err != nil {
		return count, err
	}
	if d.store.NextFreeID(0, high.Group()) <= high {
		return count, errProgramming("flat segments were not built up to %s", high)
	}
	n, err := d.buildAllHighLevelSegments(maxMeaningfulLevel)
	count += n
	return count, err
}

// BuildSegmentsFromPrepared inserts pre-assembled flat segments, then
// builds high level segments on top. The segments must be sorted by
// low id and start at the group's next free id.
// Returns the number of segments inserted.
func (d *IdDag) BuildSegmentsFromPrepared(segments []model.FlatSegment) (int, error) {
	if len(segments) == 0 {
		return 0, nil
	}

	master, err := d.Heads(d.MasterGroup())
	if err != nil {
		return 0, err
	}
	headIDs := make(map[model.Id]struct{})
	for _, id := range master.IDsDesc() {
		headIDs[id] = struct{}{}
	}

	getFlags := func(parents []model.Id, head model.Id) model.SegmentFlags {
		var flags model.SegmentFlags
		if len(parents) == 0 {
			flags |= model.SegmentHasRoot
		}
		if head.Group() == model.GroupMaster {
			for _, p := range parents {
				delete(headIDs, p)
			}
			if len(headIDs) == 0 {
				flags |= model.SegmentOnlyHead
			}
			headIDs[head] = struct{}{}
		}
		return flags
	}

	for _, seg := range segments {
		if free := d.store.NextFreeID(0, seg.Low.Group()); seg.Low != free {
			return 0, errProgramming("prepared segment %s does not start at next free id %s", seg, free)
		}
		flags := getFlags(seg.Parents, seg.High)
		if err := d.insert(flags, 0, seg.Low, seg.High, seg.Parents); err != nil {
			return 0, err
		}
	}

	count := len(segments)
	n, err := d.buildAllHighLevelSegments(maxMeaningfulLevel)
	count += n
	return count, err
}

// buildFlatSegments builds flat segments from the group's next free id
// up to high. lastThreshold is the minimal length for the trailing
// segment; zero makes segments cover everything up to high at the cost
// of fragmentation.
func (d *IdDag) buildFlatSegments(high model.Id, parentsOf ParentsFunc, lastThreshold uint64) (int, error) {
	group := high.Group()
	low := d.store.NextFreeID(0, group)

	headIDs := make(map[model.Id]struct{})
	if group == model.GroupMaster && low > model.MinID {
		heads, err := d.Heads(idset.FromSpans(idset.SpanOf(model.MinID, low-1)))
		if err != nil {
			return 0, err
		}
		for _, id := range heads.IDsDesc() {
			headIDs[id] = struct{}{}
		}
	}
	getFlags := func(parents []model.Id, head model.Id) model.SegmentFlags {
		var flags model.SegmentFlags
		if len(parents) == 0 {
			flags |= model.SegmentHasRoot
		}
		if group == model.GroupMaster {
			for _, p := range parents {
				delete(headIDs, p)
			}
			if len(headIDs) == 0 {
				flags |= model.SegmentOnlyHead
			}
			headIDs[head] = struct{}{}
		}
		return flags
	}

	var currentLow model.Id
	var currentParents []model.Id
	haveCurrent := false
	insertCount := 0

	for id := low; id <= high; id++ {
		parents, err := parentsOf(id)
		if err != nil {
			return insertCount, err
		}
		if len(parents) != 1 || parents[0]+1 != id || !haveCurrent {
			// Must start a new segment.
			if haveCurrent {
				flags := getFlags(currentParents, id-1)
				if err := d.insert(flags, 0, currentLow, id-1, currentParents); err != nil {
					return insertCount, err
				}
				insertCount++
			}
			currentParents = parents
			currentLow = id
			haveCurrent = true
		}
		if id == high {
			break
		}
	}

	// Only build the trailing segment if it is long enough.
	if haveCurrent && currentLow+model.Id(lastThreshold) <= high {
		flags := getFlags(currentParents, high)
		if err := d.insert(flags, 0, currentLow, high, currentParents); err != nil {
			return insertCount, err
		}
		insertCount++
	}

	return insertCount, nil
}

// highSegment is a candidate segment produced while merging lower
// level segments.
type highSegment struct {
	nextIdx     int
	low, high   model.Id
	parents     []model.Id
	parentCount int
	hasRoot     bool
}

// buildHighLevelSegments merges runs of level-1 segments into segments
// at the given level. The last new segment per group is dropped since
// it is likely still growing. Returns the number of segments inserted.
func (d *IdDag) buildHighLevelSegments(level int) (int, error) {
	if level == 0 {
		// Level 0 is not considered a high level.
		return 0, nil
	}
	size := d.segmentSize

	insertCount := 0
	var newSegmentsPerGroup [][]highSegment
	lowerSegmentsLen := 0
	for _, group := range model.AllGroups {
		getParents := func(head model.Id) ([]model.Id, error) {
			if seg, ok := d.store.FindSegmentByHead(head, level-1); ok {
				return seg.Parents, nil
			}
			return nil, errProgramming("no level %d segment with head %s", level-1, head)
		}

		low := d.store.NextFreeID(level, group)

		// All segments on the previous level not merged up yet.
		segments := d.store.NextSegments(low, level-1)
		lowerSegmentsLen += len(segments)

		for i := 1; i < len(segments); i++ {
			if segments[i-1].High+1 != segments[i].Low {
				return insertCount, errProgramming("level %d segments %s and %s are not connected", level-1, segments[i-1], segments[i])
			}
		}

		// findSegment merges up to size consecutive segments starting
		// at lowIdx into the largest single-head run, returning the
		// merged candidate. nextIdx is where the next run starts.
		findSegment := func(lowIdx int) (highSegment, error) {
			segmentLow := segments[lowIdx].Low
			heads := make(map[model.Id]struct{})
			var parents []model.Id
			parentSeen := make(map[model.Id]struct{})
			var candidate highSegment
			haveCandidate := false
			hasRoot := false
			end := len(segments)
			if lowIdx+size < end {
				end = lowIdx + size
			}
			for i := lowIdx; i < end; i++ {
				span := segments[i]
				head := span.High
				if !hasRoot && span.HasRoot() {
					hasRoot = true
				}
				heads[head] = struct{}{}
				directParents, err := getParents(head)
				if err != nil {
					return highSegment{}, err
				}
				for _, p := range directParents {
					if p >= span.Low {
						return highSegment{}, errProgramming("invalid level %d segment %s: parent %s not below low", level-1, span, p)
					}
					if p < segmentLow {
						// p cannot be a head, no need to remove it.
						if _, ok := parentSeen[p]; !ok {
							parentSeen[p] = struct{}{}
							parents = append(parents, p)
						}
					} else {
						delete(heads, p)
					}
				}
				if len(heads) == 1 {
					candidate = highSegment{
						nextIdx:     i + 1,
						low:         segmentLow,
						high:        head,
						parentCount: len(parents),
						hasRoot:     hasRoot,
					}
					haveCandidate = true
				}
			}
			// segments[lowIdx] alone always forms a valid candidate.
			if !haveCandidate {
				return highSegment{}, errProgramming("no single-head run found at level %d from %s", level-1, segmentLow)
			}
			candidate.parents = append([]model.Id(nil), parents[:candidate.parentCount]...)
			return candidate, nil
		}

		var newSegments []highSegment
		idx := 0
		for idx < len(segments) {
			seg, err := findSegment(idx)
			if err != nil {
				return insertCount, err
			}
			idx = seg.nextIdx
			newSegments = append(newSegments, seg)
		}

		newSegmentsPerGroup = append(newSegmentsPerGroup, newSegments)
	}

	// No point introducing a new level with the same segment count as
	// the level below.
	totalNew := 0
	for _, segs := range newSegmentsPerGroup {
		totalNew += len(segs)
	}
	if level > d.store.MaxLevel() && totalNew >= lowerSegmentsLen {
		return 0, nil
	}

	for _, newSegments := range newSegmentsPerGroup {
		if len(newSegments) == 0 {
			continue
		}
		// Drop the last segment; it could still grow.
		newSegments = newSegments[:len(newSegments)-1]
		insertCount += len(newSegments)

		for _, hs := range newSegments {
			var flags model.SegmentFlags
			if hs.hasRoot {
				flags = model.SegmentHasRoot
			}
			if err := d.insert(flags, level, hs.low, hs.high, hs.parents); err != nil {
				return insertCount, err
			}
		}
	}

	return insertCount, nil
}

// buildAllHighLevelSegments builds levels bottom-up until a level adds
// nothing new. Returns the number of segments inserted.
func (d *IdDag) buildAllHighLevelSegments(maxLevel int) (int, error) {
	total := 0
	for level := 1; level <= maxLevel; level++ {
		count, err := d.buildHighLevelSegments(level)
		if err != nil {
			return total, err
		}
		if count == 0 {
			break
		}
		total += count
	}
	return total, nil
}

// FlatSegments returns the flat segments of the group, sorted by low
// id.
func (d *IdDag) FlatSegments(group model.Group) ([]model.FlatSegment, error) {
	return d.flatSegmentsRange(group.MinID(), group.MaxID())
}

// DebugSegments renders the segments of one level and group, ascending
// by low id, for tests and debug dumps.
func (d *IdDag) DebugSegments(level int, group model.Group) []string {
	var lines []string
	for _, seg := range d.store.NextSegments(group.MinID(), level) {
		if seg.Low > group.MaxID() {
			break
		}
		lines = append(lines, seg.String())
	}
	return lines
}

// flatSegmentsRange returns all flat segments overlapping [min, max],
// uncut, in ascending order.
func (d *IdDag) flatSegmentsRange(min, max model.Id) ([]model.FlatSegment, error) {
	var segments []model.FlatSegment
	err := d.store.IterSegmentsAscending(min, 0, func(seg model.Segment) (bool, error) {
		if seg.Low > max {
			return false, nil
		}
		segments = append(segments, model.FlatSegment{
			Low:     seg.Low,
			High:    seg.High,
			Parents: seg.Parents,
		})
		return true, nil
	})
	return segments, err
}

// IDSetToFlatSegments extracts flat segments covering exactly the given
// set. Segments cut at a span boundary get the linear parent of their
// new low id.
func (d *IdDag) IDSetToFlatSegments(set idset.Set) ([]model.FlatSegment, error) {
	min, okMin := set.Min()
	max, okMax := set.Max()
	if !okMin || !okMax {
		return nil, nil
	}
	segs, err := d.flatSegmentsRange(min, max)
	if err != nil {
		return nil, err
	}

	var segments []model.FlatSegment
	spans := set.Spans()
	j := 0 // index into spans, descending order
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		for j < len(spans) && spans[j].Low > seg.High {
			j++
		}
		// Emit the overlaps of seg with every span it touches, from
		// high to low.
		for k := j; k < len(spans) && spans[k].High >= seg.Low; k++ {
			sp := spans[k]
			low := seg.Low
			if sp.Low > low {
				low = sp.Low
			}
			high := seg.High
			if sp.High < high {
				high = sp.High
			}
			parents := seg.Parents
			if low != seg.Low {
				parents = []model.Id{low - 1}
			}
			segments = append(segments, model.FlatSegment{Low: low, High: high, Parents: parents})
		}
	}

	// Ascending order by low id.
	for l, r := 0, len(segments)-1; l < r; l, r = l+1, r-1 {
		segments[l], segments[r] = segments[r], segments[l]
	}
	return segments, nil
}

// UniversalIDs returns ids that stay resolvable with only a sparse name
// map: heads of the master group and parents of master merges.
func (d *IdDag) UniversalIDs() (idset.Set, error) {
	result := idset.Empty()
	for _, seg := range d.store.NextSegments(model.MinID, 0) {
		if len(seg.Parents) >= 2 {
			for _, p := range seg.Parents {
				result.Push(idset.SpanOf(p, p))
			}
		}
	}
	heads, err := d.HeadsAncestors(d.MasterGroup())
	if err != nil {
		return idset.Set{}, err
	}
	result.PushSet(heads)
	return result, nil
}

// NonMasterParentIDs exports the non-master graph as a parent map. This
// can be expensive with many non-master ids; it is used to rebuild the
// non-master group after id reassignment.
func (d *IdDag) NonMasterParentIDs() map[model.Id][]model.Id {
	parents := make(map[model.Id][]model.Id)
	for _, seg := range d.store.NextSegments(model.GroupNonMaster.MinID(), 0) {
		parents[seg.Low] = seg.Parents
		for id := seg.Low + 1; id <= seg.High; id++ {
			parents[id] = []model.Id{id - 1}
		}
	}
	return parents
}

// RemoveNonMaster drops all non-master segments. The change is not
// append-only, so the version starts a new lineage.
func (d *IdDag) RemoveNonMaster() error {
	d.version = model.NewVerLink()
	return d.store.RemoveNonMasterIDs()
}
