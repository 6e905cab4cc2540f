package model

import (
	"fmt"
)

// Id is a dense integer identifier assigned to a vertex.
// Within a group, id order is a valid topological order: a vertex's id
// is greater than the id of every ancestor in the same group.
type Id uint64

// groupBits is the number of high bits reserved for the group tag.
const groupBits = 8

const (
	// MinID is the smallest valid id.
	MinID Id = 0

	// MaxID is the largest representable id.
	MaxID Id = ^Id(0)
)

// Group partitions the id space. Ids never move between groups without
// being reassigned.
type Group uint8

const (
	// GroupMaster holds stable, public history. Ids are densely packed
	// starting at 0 and are never reassigned.
	GroupMaster Group = 0

	// GroupNonMaster holds draft history. Ids live in a separate high
	// range and may be dropped and reassigned on flush.
	GroupNonMaster Group = 1

	groupCount = 2
)

// AllGroups lists the groups in ascending id order.
var AllGroups = [groupCount]Group{GroupMaster, GroupNonMaster}

// MinID returns the smallest id belonging to the group.
func (g Group) MinID() Id {
	return Id(uint64(g) << (64 - groupBits))
}

// MaxID returns the largest id belonging to the group.
func (g Group) MaxID() Id {
	return g.MinID() + Id(1<<(64-groupBits)) - 1
}

// String returns a string representation of the Group.
func (g Group) String() string {
	switch g {
	case GroupMaster:
		return "Master"
	case GroupNonMaster:
		return "NonMaster"
	default:
		return fmt.Sprintf("Group(%d)", uint8(g))
	}
}

// Group returns the group an id belongs to.
func (i Id) Group() Group {
	return Group(uint64(i) >> (64 - groupBits))
}

// String formats master ids as plain numbers and non-master ids with an
// "N" prefix and a group-relative offset.
func (i Id) String() string {
	g := i.Group()
	if g == GroupMaster {
		return fmt.Sprintf("%d", uint64(i))
	}
	return fmt.Sprintf("N%d", uint64(i-g.MinID()))
}
