package segdag

import (
	"context"

	"github.com/hupe1980/segdag/model"
)

// Builder accumulates vertexes and their parent edges before handing
// them to a graph in one AddHeads call. It tracks the head set
// incrementally: a vertex stops being a head the moment something
// names it as a parent.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	dag     *Dag
	parents map[string][]model.Vertex
	heads   map[string]model.Vertex
	order   []model.Vertex
}

// NewBuilder creates a Builder targeting d.
func NewBuilder(d *Dag) *Builder {
	return &Builder{
		dag:     d,
		parents: make(map[string][]model.Vertex),
		heads:   make(map[string]model.Vertex),
	}
}

// Add records a vertex with its parents, first parent first. Parents
// may be added later or already exist in the graph. Re-adding a vertex
// overwrites its parent list.
func (b *Builder) Add(name model.Vertex, parents ...model.Vertex) *Builder {
	key := name.Key()
	if _, ok := b.parents[key]; !ok {
		b.order = append(b.order, name)
		b.heads[key] = name
	}
	b.parents[key] = parents
	for _, p := range parents {
		delete(b.heads, p.Key())
	}
	return b
}

// Heads returns the recorded vertexes nothing else names as a parent,
// in insertion order.
func (b *Builder) Heads() []model.Vertex {
	heads := make([]model.Vertex, 0, len(b.heads))
	for _, name := range b.order {
		if _, ok := b.heads[name.Key()]; ok {
			heads = append(heads, name)
		}
	}
	return heads
}

// Compile time check to ensure Builder satisfies the Parents interface.
var _ Parents = (*Builder)(nil)

// ParentNames implements Parents over the recorded edges, falling back
// to the target graph for vertexes added there earlier.
func (b *Builder) ParentNames(ctx context.Context, name model.Vertex) ([]model.Vertex, error) {
	if parents, ok := b.parents[name.Key()]; ok {
		return parents, nil
	}
	return b.dag.ParentNames(ctx, name)
}

// Commit inserts everything recorded since the last Commit into the
// graph and resets the Builder for reuse.
func (b *Builder) Commit(ctx context.Context) error {
	heads := b.Heads()
	if len(heads) == 0 {
		return nil
	}
	if err := b.dag.AddHeads(ctx, b, heads...); err != nil {
		return err
	}
	b.parents = make(map[string][]model.Vertex)
	b.heads = make(map[string]model.Vertex)
	b.order = nil
	return nil
}
