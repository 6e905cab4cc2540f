package segdag

import (
	"context"
	"errors"

	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
)

// Set is a vertex set backed by an id set. Membership and counting
// stay in id space and cost nothing per element; converting back to
// names is lazy and may touch the remote on a lazy graph.
//
// A Set stays valid until the next mutation of its graph.
type Set struct {
	d   *Dag
	ids idset.Set
}

func (d *Dag) newSet(ids idset.Set) *Set {
	return &Set{d: d, ids: ids}
}

// NewSet resolves names into a set, batching remote lookups.
func (d *Dag) NewSet(ctx context.Context, names ...model.Vertex) (*Set, error) {
	ids, err := d.VertexIDsBatch(ctx, names)
	if err != nil {
		return nil, err
	}
	return d.newSet(idset.FromIDs(ids...)), nil
}

// IDs exposes the underlying id set.
func (s *Set) IDs() idset.Set {
	return s.ids
}

// Count returns the number of vertexes in the set.
func (s *Set) Count() uint64 {
	return s.ids.Count()
}

// IsEmpty reports whether the set has no vertexes.
func (s *Set) IsEmpty() bool {
	return s.ids.IsEmpty()
}

// Contains reports whether name is in the set.
func (s *Set) Contains(ctx context.Context, name model.Vertex) (bool, error) {
	id, err := s.d.VertexID(ctx, name)
	if err != nil {
		var notFound *ErrVertexNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return s.ids.Contains(id), nil
}

// Names returns the vertex names in descending id order, which within
// a group is a reverse topological order. Unknown master names resolve
// in batched remote round trips.
func (s *Set) Names(ctx context.Context) ([]model.Vertex, error) {
	return s.d.VertexNamesBatch(ctx, s.ids.IDsDesc())
}

// String renders the underlying id spans, for logs and tests.
func (s *Set) String() string {
	return s.ids.String()
}
