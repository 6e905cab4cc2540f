package iddag

import (
	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
	"github.com/hupe1980/segdag/queue"
)

// All returns the set of every id covered by the dag.
func (d *IdDag) All() idset.Set {
	return d.store.AllIDsInGroups(model.AllGroups[:]...)
}

// MasterGroup returns the set of ids in the master group.
func (d *IdDag) MasterGroup() idset.Set {
	return d.store.AllIDsInGroups(model.GroupMaster)
}

// Ancestors calculates the union of ancestors(id) for every id in set,
// inclusive of set itself.
func (d *IdDag) Ancestors(set idset.Set) (idset.Set, error) {
	if set.Count() > 2 {
		// Reduce the set first to make the traversal cheaper.
		var err error
		set, err = d.HeadsAncestors(set)
		if err != nil {
			return idset.Set{}, err
		}
	}
	result := idset.Empty()
	toVisit := queue.NewMaxIdHeap(set.IDsDesc()...)
	maxLevel := d.store.MaxLevel()

outer:
	for toVisit.Len() > 0 {
		id, _ := toVisit.PopID()
		if result.Contains(id) {
			// ancestors(id) are already all in result.
			continue
		}
		flatSeg, haveFlat := d.store.FindFlatSegmentIncluding(id)
		if haveFlat && flatSeg.OnlyHead() {
			// Everything below id is an ancestor of id.
			result.Push(idset.SpanOf(model.MinID, id))
			break
		}
		for level := maxLevel; level >= 1; level-- {
			seg, ok := d.store.FindSegmentByHead(id, level)
			if !ok {
				continue
			}
			result.Push(idset.SpanOf(seg.Low, seg.High))
			for _, p := range seg.Parents {
				toVisit.PushID(p)
			}
			continue outer
		}
		if !haveFlat {
			return idset.Set{}, errProgramming("flat segments should cover %s", id)
		}
		result.Push(idset.SpanOf(flatSeg.Low, id))
		for _, p := range flatSeg.Parents {
			toVisit.PushID(p)
		}
	}

	return result, nil
}

// FirstAncestors is like Ancestors but follows only first parents.
func (d *IdDag) FirstAncestors(set idset.Set) (idset.Set, error) {
	result := idset.Empty()
	toVisit := queue.NewMaxIdHeap(set.IDsDesc()...)
	for toVisit.Len() > 0 {
		id, _ := toVisit.PopID()
		if result.Contains(id) {
			continue
		}
		seg, ok := d.store.FindFlatSegmentIncluding(id)
		if !ok {
			continue
		}
		result.Push(idset.SpanOf(seg.Low, id))
		if len(seg.Parents) > 0 {
			toVisit.PushID(seg.Parents[0])
		}
	}
	return result, nil
}

// Merges returns the ids in set having two or more parents. Merges can
// only be the low ids of flat segments.
func (d *IdDag) Merges(set idset.Set) (idset.Set, error) {
	result := idset.Empty()

	// processSeg handles one flat segment overlapping span. It returns
	// the next high id to look below, and false when the scan for this
	// span is done.
	processSeg := func(span idset.Span, seg model.Segment) (model.Id, bool) {
		if seg.Low < span.Low {
			return 0, false
		}
		if len(seg.Parents) >= 2 {
			result.Push(idset.SpanOf(seg.Low, seg.Low))
		}
		if seg.Low > 0 {
			return seg.Low - 1, true
		}
		return 0, false
	}

	for _, span := range set.Spans() {
		// The first overlapping segment may stick out of the span, so
		// it needs a direct lookup; the rest are fully below span.High
		// and a descending scan handles them.
		seg, ok := d.store.FindFlatSegmentIncluding(span.High)
		if !ok {
			continue
		}
		high, cont := processSeg(span, seg)
		if !cont {
			continue
		}
		err := d.store.IterSegmentsDescending(high, 0, func(seg model.Segment) (bool, error) {
			_, cont := processSeg(span, seg)
			return cont, nil
		})
		if err != nil {
			return idset.Set{}, err
		}
	}

	return result, nil
}

// Parents calculates the parents of every id in set. The result is a
// set; use ParentIDs when parent order matters.
func (d *IdDag) Parents(set idset.Set) (idset.Set, error) {
	result := idset.Empty()
	maxLevel := d.store.MaxLevel()

outer:
	for {
		head, ok := set.Max()
		if !ok {
			break
		}
		// If set covers an entire high level segment, its parents are
		// (the segment - its head + its parents).
		for level := maxLevel; level >= 1; level-- {
			seg, ok := d.store.FindSegmentByHead(head, level)
			if !ok {
				continue
			}
			segSpan := idset.SpanOf(seg.Low, seg.High)
			if !set.ContainsSpan(segSpan) {
				continue
			}
			segSet := idset.FromSpans(segSpan)
			parentSet := segSet.Difference(idset.FromSingle(head))
			parentSet.PushSet(idset.FromIDs(seg.Parents...))
			set = set.Difference(segSet)
			result = result.Union(parentSet)
			continue outer
		}

		// A flat segment has the information to calculate parents of
		// any subset of itself.
		seg, ok := d.store.FindFlatSegmentIncluding(head)
		if !ok {
			return idset.Set{}, &ErrIDNotFound{ID: head}
		}
		segLow := seg.Low
		segSet := idset.FromSpans(idset.SpanOf(seg.Low, seg.High)).Intersection(set)

		var parentSet idset.Set
		if segSet.Contains(segLow) {
			parentSet = parentsLinear(segSet.Difference(idset.FromSingle(segLow)))
			parentSet.PushSet(idset.FromIDs(seg.Parents...))
		} else {
			parentSet = parentsLinear(segSet)
		}

		set = set.Difference(segSet)
		result = result.Union(parentSet)
	}

	return result, nil
}

// parentsLinear shifts every span down by one. The set must not
// contain the low id of a flat segment or the minimum id.
func parentsLinear(set idset.Set) idset.Set {
	spans := set.Spans()
	shifted := make([]idset.Span, 0, len(spans))
	for _, sp := range spans {
		shifted = append(shifted, idset.SpanOf(sp.Low-1, sp.High-1))
	}
	return idset.FromSpans(shifted...)
}

// ParentIDs returns the parents of a single id, preserving order.
func (d *IdDag) ParentIDs(id model.Id) ([]model.Id, error) {
	seg, ok := d.store.FindFlatSegmentIncluding(id)
	if !ok {
		return nil, &ErrIDNotFound{ID: id}
	}
	if id == seg.Low {
		return seg.Parents, nil
	}
	return []model.Id{id - 1}, nil
}

// Heads returns the subset of set with no children inside set.
func (d *IdDag) Heads(set idset.Set) (idset.Set, error) {
	parents, err := d.Parents(set)
	if err != nil {
		return idset.Set{}, err
	}
	return set.Difference(parents), nil
}

// ChildrenID returns the children of a single id.
func (d *IdDag) ChildrenID(id model.Id) (idset.Set, error) {
	result := idset.Empty()
	err := d.store.IterFlatSegmentsWithParent(id, func(seg model.Segment) (bool, error) {
		result.Push(idset.SpanOf(seg.Low, seg.Low))
		return true, nil
	})
	if err != nil {
		return idset.Set{}, err
	}
	if seg, ok := d.store.FindFlatSegmentIncluding(id); ok && seg.High != id {
		result.Push(idset.SpanOf(id+1, id+1))
	}
	return result, nil
}

// Children calculates the children of every id in set.
func (d *IdDag) Children(set idset.Set) (idset.Set, error) {
	if set.Count() < 5 {
		result := idset.Empty()
		for _, id := range set.IDsDesc() {
			children, err := d.ChildrenID(id)
			if err != nil {
				return idset.Set{}, err
			}
			result = result.Union(children)
		}
		return result, nil
	}
	return d.childrenSet(set)
}

// childrenContext carries the state of a children traversal.
type childrenContext struct {
	store            Store
	set              idset.Set
	resultLowerBound model.Id
	result           idset.Set
}

func (d *IdDag) childrenSet(set idset.Set) (idset.Set, error) {
	// The traversal considers a segment S at level N:
	//  - If set covers (S - S.head + S.parents), take all of S.
	//  - If (S + S.parents) does not overlap set, skip S.
	//  - Otherwise recurse into the level N-1 segments under S, or
	//    compute children directly when S is flat.
	lowerBound := model.MaxID
	if min, ok := set.Min(); ok {
		lowerBound = min
	}
	ctx := &childrenContext{
		store:            d.store,
		set:              set,
		resultLowerBound: lowerBound,
		result:           idset.Empty(),
	}
	maxLevel := d.store.MaxLevel()
	for _, span := range d.All().Spans() {
		if err := ctx.visitSegments(span, maxLevel); err != nil {
			return idset.Set{}, err
		}
	}
	return ctx.result, nil
}

func (c *childrenContext) visitSegments(rng idset.Span, level int) error {
	return c.store.IterSegmentsDescending(rng.High, level, func(seg model.Segment) (bool, error) {
		span := idset.SpanOf(seg.Low, seg.High)

		// rng is fully covered at some level. If this level missed a
		// part, a lower level covers it.
		if span.High < rng.High {
			lowID := span.High + 1
			if rng.Low > lowID {
				lowID = rng.Low
			}
			if lowID > rng.High {
				return false, nil
			}
			missing := idset.SpanOf(lowID, rng.High)
			if level == 0 {
				return false, errProgramming("flat segments should cover %s", missing)
			}
			if err := c.visitSegments(missing, level-1); err != nil {
				return false, err
			}
		}

		// Look below this segment on the next iteration.
		if span.Low > 0 {
			rng.High = span.Low - 1
		} else {
			rng.High = 0
		}

		if span.High < rng.Low || span.High < c.resultLowerBound {
			return false, nil
		}

		parents := seg.Parents
		overlappedParents := 0
		for _, p := range parents {
			if c.set.Contains(p) {
				overlappedParents++
			}
		}

		// The head is excluded: this segment cannot compute
		// children(head). A segment having head as a parent computes
		// it instead.
		intersection := c.set.Intersection(idset.FromSpans(span)).Difference(idset.FromSingle(span.High))

		if !seg.HasRoot() {
			// A rootless segment has at least one parent. If set
			// covers all parents and the whole body, take the entire
			// span.
			if overlappedParents == len(parents) && intersection.Count()+1 == span.Count() {
				c.result.Push(span)
				return true, nil
			}
		}

		if !intersection.IsEmpty() {
			if level > 0 {
				if err := c.visitSegments(span, level-1); err != nil {
					return false, err
				}
				return true, nil
			}
			// children(x..=y) is (x+1)..=(y+1) inside a flat segment.
			for _, sp := range intersection.Spans() {
				c.result.Push(idset.SpanOf(sp.Low+1, sp.High+1))
			}
		}

		if overlappedParents > 0 {
			if level > 0 {
				if err := c.visitSegments(span, level-1); err != nil {
					return false, err
				}
			} else {
				// The child of any parent is this flat segment's low.
				c.result.Push(idset.SpanOf(span.Low, span.Low))
			}
		}

		return true, nil
	})
}

// Roots returns the subset of set with no parents inside set.
func (d *IdDag) Roots(set idset.Set) (idset.Set, error) {
	children, err := d.Children(set)
	if err != nil {
		return idset.Set{}, err
	}
	return set.Difference(children), nil
}

// GcaOne finds one greatest common ancestor of the set. If there are
// multiple, an arbitrary one wins; use GcaAll for all of them.
func (d *IdDag) GcaOne(set idset.Set) (model.Id, bool, error) {
	common, err := d.CommonAncestors(set)
	if err != nil {
		return 0, false, err
	}
	id, ok := common.Max()
	return id, ok, nil
}

// GcaAll finds all greatest common ancestors of the set.
func (d *IdDag) GcaAll(set idset.Set) (idset.Set, error) {
	common, err := d.CommonAncestors(set)
	if err != nil {
		return idset.Set{}, err
	}
	return d.HeadsAncestors(common)
}

// CommonAncestors calculates the intersection of ancestors(id) for
// every id in set.
func (d *IdDag) CommonAncestors(set idset.Set) (idset.Set, error) {
	switch set.Count() {
	case 0:
		return set, nil
	case 1:
		return d.Ancestors(set)
	case 2:
		// Skip the roots reduction for a pair.
		it := set.Iter()
		a, _ := it.Next()
		b, _ := it.Next()
		ancestorsA, err := d.Ancestors(idset.FromSingle(a))
		if err != nil {
			return idset.Set{}, err
		}
		ancestorsB, err := d.Ancestors(idset.FromSingle(b))
		if err != nil {
			return idset.Set{}, err
		}
		return ancestorsA.Intersection(ancestorsB), nil
	default:
		// common_ancestors(X) equals common_ancestors(roots(X)).
		roots, err := d.Roots(set)
		if err != nil {
			return idset.Set{}, err
		}
		result := idset.Full()
		for _, id := range roots.IDsDesc() {
			ancestors, err := d.Ancestors(idset.FromSingle(id))
			if err != nil {
				return idset.Set{}, err
			}
			result = result.Intersection(ancestors)
		}
		return result, nil
	}
}

// IsAncestor tests whether ancestor is reachable from descendant by
// following parents.
func (d *IdDag) IsAncestor(ancestor, descendant model.Id) (bool, error) {
	set, err := d.Ancestors(idset.FromSingle(descendant))
	if err != nil {
		return false, err
	}
	return set.Contains(ancestor), nil
}

// HeadsAncestors finds the smallest subset Y of set where ancestors(Y)
// equals ancestors(set).
//
// Unlike Heads, an id whose (indirect) descendant is also in set never
// survives here.
func (d *IdDag) HeadsAncestors(set idset.Set) (idset.Set, error) {
	remaining := set
	result := idset.Empty()
	for {
		id, ok := remaining.Max()
		if !ok {
			break
		}
		result.Push(idset.SpanOf(id, id))
		ancestors, err := d.Ancestors(idset.FromSingle(id))
		if err != nil {
			return idset.Set{}, err
		}
		remaining = remaining.Difference(ancestors)
	}
	return result, nil
}

// Range calculates ancestors(heads) intersected with
// descendants(roots).
func (d *IdDag) Range(roots, heads idset.Set) (idset.Set, error) {
	if roots.IsEmpty() || heads.IsEmpty() {
		return idset.Empty(), nil
	}

	// Heads below the lowest root can never be in the result.
	minRoot, _ := roots.Min()
	minHead, _ := heads.Min()
	if minHead < minRoot {
		heads = heads.Intersection(idset.FromSpans(idset.SpanOf(minRoot, model.MaxID)))
	}

	ancestorsOfHeads, err := d.Ancestors(heads)
	if err != nil {
		return idset.Set{}, err
	}
	return d.descendantsIntersection(roots, ancestorsOfHeads)
}

// Descendants calculates descendants of the set, inclusive.
func (d *IdDag) Descendants(set idset.Set) (idset.Set, error) {
	return d.descendantsIntersection(set, d.All())
}

// descendantsIntersection calculates descendants(roots) & ancestors.
// The ancestors set must be closed under ancestors. This is O(flat
// segments).
func (d *IdDag) descendantsIntersection(roots, ancestors idset.Set) (idset.Set, error) {
	// Roots unreachable from ancestors do not contribute.
	roots = ancestors.Intersection(roots)
	minRoot, ok := roots.Min()
	if !ok {
		return idset.Empty(), nil
	}
	maxRoot, _ := roots.Max()

	result := idset.Empty()

	// Master group: linear ascending scan over flat segments. The
	// master group usually has one head and most segments end up
	// included.
	masterMaxID := model.MinID
	if m, ok := ancestors.Max(); ok {
		masterMaxID = m
	}
	if masterMaxID > model.GroupMaster.MaxID() {
		masterMaxID = model.GroupMaster.MaxID()
	}
	err := d.store.IterSegmentsAscending(minRoot, 0, func(seg model.Segment) (bool, error) {
		if seg.Low > masterMaxID {
			return false, nil
		}
		segSpan := idset.SpanOf(seg.Low, seg.High)
		var low model.Id
		if len(seg.Parents) > 0 && anyIn(seg.Parents, result, roots) {
			// The whole segment is a descendant of its parents.
			low = seg.Low
		} else {
			if id, ok := result.IntersectionSpanMin(segSpan); ok {
				low = id
			} else if id, ok := roots.Intersection(idset.FromSpans(segSpan)).Min(); ok {
				low = id
			} else {
				return true, nil
			}
		}
		if low > masterMaxID {
			return false, nil
		}
		result.Push(idset.SpanOf(low, seg.High))
		return true, nil
	})
	if err != nil {
		return idset.Set{}, err
	}

	// Non-master group: only check flat segments covered by ancestors.
	// The group can hold many long-forgotten heads; scanning all of
	// them would be wasted work.
	nonMasterSpans := ancestors.Intersection(idset.FromSpans(idset.SpanOf(
		model.GroupNonMaster.MinID(), model.GroupNonMaster.MaxID())))
	spans := nonMasterSpans.Spans()
	i := len(spans) - 1 // visit in ascending order
	haveNext := i >= 0
	var nextSpan idset.Span
	if haveNext {
		nextSpan = spans[i]
		i--
	}
	for haveNext {
		seg, ok := d.store.FindFlatSegmentIncluding(nextSpan.Low)
		if !ok {
			break
		}
		overlapLow := seg.Low
		if nextSpan.Low > overlapLow {
			overlapLow = nextSpan.Low
		}
		overlapHigh := seg.High
		if nextSpan.High < overlapHigh {
			overlapHigh = nextSpan.High
		}
		overlap := idset.SpanOf(overlapLow, overlapHigh)

		if roots.Contains(overlap.Low) {
			result.Push(overlap)
		} else if nextSpan.Low == seg.Low {
			if len(seg.Parents) > 0 && anyIn(seg.Parents, result, roots) {
				result.Push(overlap)
			} else if overlap.Low <= maxRoot && overlap.High >= minRoot {
				// Part of the overlap below the first root inside it
				// is not a descendant.
				if id, ok := roots.Intersection(idset.FromSpans(overlap)).Min(); ok {
					result.Push(idset.SpanOf(id, overlap.High))
				}
			}
		} else {
			// ancestors was not closed under ancestors. Fall back to
			// checking the linear parent.
			p := nextSpan.Low - 1
			if result.Contains(p) || roots.Contains(p) {
				result.Push(overlap)
			}
		}

		if overlap.High != model.MaxID && overlap.High+1 <= nextSpan.High {
			nextSpan = idset.SpanOf(overlap.High+1, nextSpan.High)
		} else if i >= 0 {
			nextSpan = spans[i]
			i--
		} else {
			haveNext = false
		}
	}

	return result.Intersection(ancestors), nil
}

// anyIn reports whether any of the ids is in a or b.
func anyIn(ids []model.Id, a, b idset.Set) bool {
	for _, id := range ids {
		if a.Contains(id) || b.Contains(id) {
			return true
		}
	}
	return false
}
