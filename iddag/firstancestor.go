package iddag

import (
	"fmt"
	"strings"

	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
)

// FirstAncestorNth returns the n-th first ancestor of id. n zero is id
// itself, n one is its first parent. Walking past a root is a
// programming error; use TryFirstAncestorNth to probe.
func (d *IdDag) FirstAncestorNth(id model.Id, n uint64) (model.Id, error) {
	result, ok, err := d.TryFirstAncestorNth(id, n)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errProgramming("%s~%d cannot be resolved, no parents", id, n)
	}
	return result, nil
}

// TryFirstAncestorNth returns the n-th first ancestor of id, or false
// when n exceeds the first-parent distance between id and its root.
func (d *IdDag) TryFirstAncestorNth(id model.Id, n uint64) (model.Id, bool, error) {
	for n > 0 {
		seg, ok := d.store.FindFlatSegmentIncluding(id)
		if !ok {
			return 0, false, &ErrIDNotFound{ID: id}
		}
		// Inside the segment every step follows id-1.
		delta := uint64(id - seg.Low)
		step := delta
		if n < step {
			step = n
		}
		id -= model.Id(step)
		n -= step
		if n > 0 {
			if len(seg.Parents) == 0 {
				return 0, false, nil
			}
			id = seg.Parents[0]
			n--
		}
	}
	return id, true, nil
}

// ToFirstAncestorNth represents id in x~n form where x must be an id
// known universally: either one of heads, or a parent of a merge that
// is an ancestor of heads. Returns false when id is not an ancestor of
// heads.
func (d *IdDag) ToFirstAncestorNth(id model.Id, heads idset.Set) (model.Id, uint64, bool, error) {
	x, n, ok, err := d.toFirstAncestorNth(id, heads, nil)
	if err == nil {
		return x, n, ok, nil
	}
	// Retry with tracing to produce a useful error message.
	var details []string
	return d.toFirstAncestorNth(id, heads, &details)
}

func (d *IdDag) toFirstAncestorNth(id model.Id, heads idset.Set, details *[]string) (model.Id, uint64, bool, error) {
	// The walk looks at the flat segment containing id:
	//  - If the segment overlaps heads, the overlapped id is x.
	//  - A parent of a merge inside the segment can be x, if the merge
	//    is an ancestor of heads and n stays positive.
	//  - Otherwise follow the connected child segment, converting the
	//    x~n question into y~m, and start over.
	trace := func(format string, args ...any) {
		if details != nil {
			*details = append(*details, fmt.Sprintf(format, args...))
		}
	}

	ancestors, err := d.Ancestors(heads)
	if err != nil {
		return 0, 0, false, err
	}
	if !ancestors.Contains(id) {
		return 0, 0, false, nil
	}

	var n uint64
	for {
		seg, ok := d.store.FindFlatSegmentIncluding(id)
		if !ok {
			return 0, 0, false, &ErrIDNotFound{ID: id}
		}
		head := seg.High
		trace("in seg %s", seg)

		// An id from heads inside [id, head] can serve as x directly.
		intersected := heads.Intersection(idset.FromSpans(idset.SpanOf(id, head)))
		if h, ok := intersected.Min(); ok {
			n += uint64(h - id)
			trace("contains head (%s)", h)
			return h, n, true, nil
		}

		// The searched parent does not have to be the segment head:
		//
		//      1--2--3--4 (span 1..=4)
		//          \
		//           5--6  (span 5..=6, parents [2])
		//
		// Resolving 1 against head 6 must yield 6~3, looking at
		// parents anywhere in 1..=4.
		parentLow := seg.Low
		if id > parentLow {
			parentLow = id
		}
		var nextID model.Id
		var nextN uint64
		foundNext := false
		var doneX model.Id
		var doneN uint64
		done := false
		err := d.store.IterMasterFlatSegmentsWithParentSpan(idset.SpanOf(parentLow, seg.High), func(parentID model.Id, childSeg model.Segment) (bool, error) {
			trace("%s has child seg (%s)", parentID, childSeg)
			childLow := childSeg.Low
			if !ancestors.Contains(childLow) {
				// Outside ancestors(heads); neither the child nor its
				// parents can serve as references.
				trace("child seg out of range")
				return true, nil
			}
			if len(childSeg.Parents) > 1 {
				// parentID is the parent of a merge reachable from
				// heads, so it is universally known.
				if nn := n + uint64(parentID-id); nn > 0 {
					done = true
					doneX = parentID
					doneN = nn
					return false, nil
				}
				// Fragmented linear segments: x~0 is not a valid
				// answer, keep following the first parent only.
				if childSeg.Parents[0] != parentID {
					trace("child seg cannot be followed (%s is not p1)", parentID)
					return true, nil
				}
			}
			nextID = childLow
			nextN = n + 1 + uint64(parentID-id)
			trace("follow %s~%d", nextID, nextN)
			foundNext = true
			return false, nil
		})
		if err != nil {
			return 0, 0, false, err
		}
		if done {
			return doneX, doneN, true, nil
		}
		if !foundNext {
			msg := fmt.Sprintf(
				"cannot convert %s to x~n form (x must be in `H + parents(ancestors(H) & merge())` where H = %s)",
				id, heads)
			if details != nil && len(*details) > 0 {
				msg += fmt.Sprintf(" (trace: %s)", strings.Join(*details, ", "))
			}
			return 0, 0, false, errProgramming("%s", msg)
		}
		id = nextID
		n = nextN
	}
}
