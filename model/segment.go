package model

import (
	"fmt"
	"strings"
)

// SegmentFlags annotate structural facts about a segment.
type SegmentFlags uint8

const (
	// SegmentHasRoot is set when the segment contains at least one id
	// with no parents at all.
	SegmentHasRoot SegmentFlags = 1 << 0

	// SegmentOnlyHead is set when the segment's high id was the unique
	// head of everything built so far. It enables an ancestor-query
	// fast path and is only ever set on master segments.
	SegmentOnlyHead SegmentFlags = 1 << 1
)

// Segment summarizes the ancestry structure of the id range [Low, High]
// at a given level. High is the sole sink inside the range and Parents
// are ids strictly below Low. At level 0 every id x in (Low, High] has
// exactly one parent, x-1. Segments are never mutated in place.
type Segment struct {
	Level   int
	Low     Id
	High    Id
	Parents []Id
	Flags   SegmentFlags
}

// HasRoot reports whether the SegmentHasRoot flag is set.
func (s Segment) HasRoot() bool {
	return s.Flags&SegmentHasRoot != 0
}

// OnlyHead reports whether the SegmentOnlyHead flag is set.
func (s Segment) OnlyHead() bool {
	return s.Flags&SegmentOnlyHead != 0
}

// Contains reports whether id falls inside [Low, High].
func (s Segment) Contains(id Id) bool {
	return id >= s.Low && id <= s.High
}

// String formats a segment as "R H low-high[p1, p2]" with flag markers
// only when set.
func (s Segment) String() string {
	var sb strings.Builder
	if s.HasRoot() {
		sb.WriteString("R")
	}
	if s.OnlyHead() {
		sb.WriteString("H")
	}
	fmt.Fprintf(&sb, "%s-%s[", s.Low, s.High)
	for i, p := range s.Parents {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteString("]")
	return sb.String()
}

// FlatSegment is the wire form of a level-0 segment, exchanged in
// clone/pull payloads.
type FlatSegment struct {
	Low     Id   `json:"low"`
	High    Id   `json:"high"`
	Parents []Id `json:"parents"`
}

// String returns a string representation of the FlatSegment.
func (s FlatSegment) String() string {
	return Segment{Level: 0, Low: s.Low, High: s.High, Parents: s.Parents}.String()
}
