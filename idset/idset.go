// Package idset implements sets of ids stored as sorted, disjoint,
// closed spans. Set operations cost time proportional to the number of
// spans, not the number of ids, which keeps ancestry computations cheap
// on mostly-linear history.
package idset

import (
	"math"
	"sort"
	"strings"

	"github.com/hupe1980/segdag/model"
)

// Span is a closed id interval [Low, High].
type Span struct {
	Low  model.Id
	High model.Id
}

// SpanOf builds a span from its bounds. Callers must pass low <= high.
func SpanOf(low, high model.Id) Span {
	return Span{Low: low, High: high}
}

// Contains reports whether id falls inside the span.
func (s Span) Contains(id model.Id) bool {
	return id >= s.Low && id <= s.High
}

// Count returns the number of ids covered by the span, saturating at
// the maximum uint64 value for the full id space.
func (s Span) Count() uint64 {
	n := uint64(s.High - s.Low)
	if n == math.MaxUint64 {
		return n
	}
	return n + 1
}

func (s Span) String() string {
	if s.Low == s.High {
		return s.Low.String()
	}
	return s.Low.String() + ".." + s.High.String()
}

// Set is a set of ids kept as spans sorted in descending order,
// pairwise disjoint and non-adjacent. The zero value is an empty set.
// Query methods never mutate; Push mutates the receiver.
type Set struct {
	// spans are sorted by Low descending. Adjacent spans are merged,
	// so spans[i].Low > spans[i+1].High+1 always holds.
	spans []Span
}

// Empty returns an empty set.
func Empty() Set {
	return Set{}
}

// Full returns the set covering the entire id space.
func Full() Set {
	return FromSpans(Span{Low: 0, High: model.Id(math.MaxUint64)})
}

// FromSingle returns a set containing exactly one id.
func FromSingle(id model.Id) Set {
	return Set{spans: []Span{{Low: id, High: id}}}
}

// FromSpans builds a set from spans in any order, merging overlaps.
func FromSpans(spans ...Span) Set {
	var s Set
	s.spans = make([]Span, 0, len(spans))
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Low > sorted[j].Low
	})
	for _, sp := range sorted {
		s.Push(sp)
	}
	return s
}

// FromIDs builds a set from individual ids given in any order.
func FromIDs(ids ...model.Id) Set {
	var s Set
	for _, id := range ids {
		s.Push(Span{Low: id, High: id})
	}
	return s
}

// Clone returns a copy that can be pushed to independently.
func (s Set) Clone() Set {
	spans := make([]Span, len(s.spans))
	copy(spans, s.spans)
	return Set{spans: spans}
}

// IsEmpty reports whether the set has no ids.
func (s Set) IsEmpty() bool {
	return len(s.spans) == 0
}

// SpanCount returns the number of spans backing the set.
func (s Set) SpanCount() int {
	return len(s.spans)
}

// Spans returns the backing spans in descending order. The slice is a
// read-only view; callers must not modify it.
func (s Set) Spans() []Span {
	return s.spans
}

// Count returns the number of ids in the set, saturating at the maximum
// uint64 value.
func (s Set) Count() uint64 {
	var total uint64
	for _, sp := range s.spans {
		c := sp.Count()
		if total+c < total {
			return math.MaxUint64
		}
		total += c
	}
	return total
}

// Min returns the smallest id in the set.
func (s Set) Min() (model.Id, bool) {
	if len(s.spans) == 0 {
		return 0, false
	}
	return s.spans[len(s.spans)-1].Low, true
}

// Max returns the largest id in the set.
func (s Set) Max() (model.Id, bool) {
	if len(s.spans) == 0 {
		return 0, false
	}
	return s.spans[0].High, true
}

// spanIndexFor returns the index of the first span (descending order)
// whose Low is <= id, or len(spans) if every span lies above id.
func (s Set) spanIndexFor(id model.Id) int {
	return sort.Search(len(s.spans), func(i int) bool {
		return s.spans[i].Low <= id
	})
}

// Contains reports whether id is in the set.
func (s Set) Contains(id model.Id) bool {
	i := s.spanIndexFor(id)
	return i < len(s.spans) && s.spans[i].High >= id
}

// ContainsSpan reports whether every id of sp is in the set.
func (s Set) ContainsSpan(sp Span) bool {
	i := s.spanIndexFor(sp.High)
	return i < len(s.spans) && s.spans[i].Low <= sp.Low && s.spans[i].High >= sp.High
}

// Push inserts a span, merging it with any overlapping or adjacent
// spans. Pushing at either end of the set is O(1) amortized.
func (s *Set) Push(sp Span) {
	if sp.Low > sp.High {
		return
	}
	n := len(s.spans)
	if n == 0 {
		s.spans = append(s.spans, sp)
		return
	}
	// Fast path: strictly below the current minimum, with a gap.
	last := s.spans[n-1]
	if last.Low > 0 && sp.High < last.Low-1 {
		s.spans = append(s.spans, sp)
		return
	}
	// Fast path: strictly above the current maximum, with a gap.
	first := s.spans[0]
	if sp.Low > 0 && first.High < sp.Low-1 {
		s.spans = append(s.spans, Span{})
		copy(s.spans[1:], s.spans)
		s.spans[0] = sp
		return
	}

	// General case: find the window of spans that overlap or touch sp
	// and replace them with one merged span. Touching means a gap of
	// zero ids, watching for overflow at the id-space edges.
	// lo = first index (desc order) whose span could merge with sp.
	hiBound := sp.High
	if hiBound != model.Id(math.MaxUint64) {
		hiBound++
	}
	lo := sort.Search(len(s.spans), func(i int) bool {
		return s.spans[i].Low <= hiBound
	})
	loBound := sp.Low
	if loBound != 0 {
		loBound--
	}
	hi := sort.Search(len(s.spans), func(i int) bool {
		return s.spans[i].High < loBound
	})
	// Spans in [lo, hi) merge with sp.
	merged := sp
	if lo < len(s.spans) && lo < hi {
		if s.spans[lo].High > merged.High {
			merged.High = s.spans[lo].High
		}
		if s.spans[hi-1].Low < merged.Low {
			merged.Low = s.spans[hi-1].Low
		}
	}
	// cap-limited so the tail copy still reads the original array
	out := append(s.spans[:lo:lo], merged)
	out = append(out, s.spans[hi:]...)
	s.spans = out
}

// PushSet inserts every span of other.
func (s *Set) PushSet(other Set) {
	for _, sp := range other.spans {
		s.Push(sp)
	}
}

// Union returns the set of ids in either set.
func (s Set) Union(other Set) Set {
	if len(s.spans) == 0 {
		return other.Clone()
	}
	if len(other.spans) == 0 {
		return s.Clone()
	}
	result := s.Clone()
	result.PushSet(other)
	return result
}

// Intersection returns the set of ids in both sets.
func (s Set) Intersection(other Set) Set {
	var result Set
	i, j := 0, 0
	for i < len(s.spans) && j < len(other.spans) {
		a, b := s.spans[i], other.spans[j]
		low := a.Low
		if b.Low > low {
			low = b.Low
		}
		high := a.High
		if b.High < high {
			high = b.High
		}
		if low <= high {
			result.spans = append(result.spans, Span{Low: low, High: high})
		}
		// Advance the span with the higher Low: it cannot intersect
		// anything further down the other list.
		if a.Low >= b.Low {
			i++
		} else {
			j++
		}
	}
	return result
}

// Difference returns the set of ids in s but not in other.
func (s Set) Difference(other Set) Set {
	var result Set
	j := 0
	for _, a := range s.spans {
		cur := a
		for {
			// Skip spans of other entirely above cur.
			for j < len(other.spans) && other.spans[j].Low > cur.High {
				j++
			}
			if j >= len(other.spans) || other.spans[j].High < cur.Low {
				result.spans = append(result.spans, cur)
				break
			}
			b := other.spans[j]
			if b.High < cur.High {
				result.spans = append(result.spans, Span{Low: b.High + 1, High: cur.High})
			}
			if b.Low > cur.Low {
				cur = Span{Low: cur.Low, High: b.Low - 1}
				// b is consumed for this region; move to the next
				// lower span of other.
				j++
				continue
			}
			break
		}
	}
	return result
}

// IntersectionSpanMin returns the smallest id in s ∩ span.
func (s Set) IntersectionSpanMin(span Span) (model.Id, bool) {
	got := s.Intersection(Set{spans: []Span{span}})
	return got.Min()
}

// String formats the set as descending spans.
func (s Set) String() string {
	parts := make([]string, len(s.spans))
	for i, sp := range s.spans {
		parts[i] = sp.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
