// Package idmap maintains the bidirectional binding between vertex
// names (opaque commit hashes) and their dense integer ids.
//
// The map can be partially populated: a lazy graph only holds bindings
// for vertexes resolved so far, and the layer above fills gaps through
// remote lookups. Within a group, ids are handed out densely in
// topological order by AssignHead.
package idmap

import (
	"context"

	"github.com/hupe1980/segdag/model"
)

// IdMap is the id to vertex name binding consulted by graph queries.
// Implementations are safe for concurrent readers; mutation requires
// external coordination, matching the single-writer graph model.
type IdMap interface {
	// Insert adds the binding (id, name). Inserting the exact same
	// binding twice is a no-op; rebinding either side is an error.
	Insert(id model.Id, name model.Vertex) error

	// VertexID returns the id bound to name. Missing names report
	// *ErrVertexNotFound.
	VertexID(name model.Vertex) (model.Id, error)

	// VertexName returns the name bound to id. Missing ids report
	// *ErrIDNotFound.
	VertexName(id model.Id) (model.Vertex, error)

	// ContainsVertexName reports whether name has an id binding.
	ContainsVertexName(name model.Vertex) bool

	// NextFreeID returns the lowest unassigned id of the group.
	NextFreeID(group model.Group) model.Id

	// RemoveNonMaster drops every binding in the non-master group.
	RemoveNonMaster() error

	// CloneReadOnly returns a copy whose reads are unaffected by later
	// mutations of the receiver.
	CloneReadOnly() IdMap
}

// ParentsFunc returns the parent names of a vertex, first parent first.
type ParentsFunc func(ctx context.Context, name model.Vertex) ([]model.Vertex, error)

type visit struct {
	name     model.Vertex
	expanded bool
}

// AssignHead assigns ids to head and all its unassigned ancestors so
// that within the group every parent id precedes its children, and
// returns the new coverage as flat segments ordered by low id, ready
// for the segment build.
//
// The walk uses an explicit stack; histories are routinely deeper than
// native recursion could handle. Already assigned vertexes (in any
// group) terminate the walk and appear only as parent ids.
func AssignHead(ctx context.Context, m IdMap, parentsOf ParentsFunc, head model.Vertex, group model.Group) ([]model.FlatSegment, error) {
	var segments []model.FlatSegment

	// pending holds names whose assignment frame is already on the
	// stack, so diamond shapes do not assign twice.
	pending := make(map[string]struct{})
	parentCache := make(map[string][]model.Vertex)

	stack := []visit{{name: head}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		key := top.name.Key()

		if !top.expanded {
			if _, ok := pending[key]; ok {
				continue
			}
			if m.ContainsVertexName(top.name) {
				continue
			}

			parents, err := parentsOf(ctx, top.name)
			if err != nil {
				return nil, err
			}
			parentCache[key] = parents

			pending[key] = struct{}{}
			stack = append(stack, visit{name: top.name, expanded: true})
			// Reversed so the first parent is assigned first, keeping
			// first-parent chains contiguous in id space.
			for i := len(parents) - 1; i >= 0; i-- {
				stack = append(stack, visit{name: parents[i]})
			}
			continue
		}

		// All ancestors of top.name are assigned by now.
		delete(pending, key)
		id := m.NextFreeID(group)

		parents := parentCache[key]
		delete(parentCache, key)

		parentIDs := make([]model.Id, len(parents))
		for i, p := range parents {
			pid, err := m.VertexID(p)
			if err != nil {
				return nil, err
			}
			if pid >= id {
				return nil, errProgramming("parent %s of %s has id %s, not below %s", p, top.name, pid, id)
			}
			parentIDs[i] = pid
		}

		if err := m.Insert(id, top.name); err != nil {
			return nil, err
		}

		segments = appendAssigned(segments, id, parentIDs)
	}

	return segments, nil
}

// appendAssigned extends the last flat segment when id continues a
// first-parent chain, and starts a new one otherwise.
func appendAssigned(segments []model.FlatSegment, id model.Id, parents []model.Id) []model.FlatSegment {
	if n := len(segments); n > 0 {
		last := &segments[n-1]
		if id == last.High+1 && len(parents) == 1 && parents[0] == id-1 {
			last.High = id
			return segments
		}
	}

	return append(segments, model.FlatSegment{Low: id, High: id, Parents: parents})
}
