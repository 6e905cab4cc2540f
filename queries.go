package segdag

import (
	"context"
	"sort"

	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
)

// All returns every vertex in the graph.
func (d *Dag) All() *Set {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newSet(d.dag.All())
}

// MasterGroup returns every vertex in the master group.
func (d *Dag) MasterGroup() *Set {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newSet(d.dag.MasterGroup())
}

// idQuery runs fn over the id graph and wraps the result.
func (d *Dag) idQuery(fn func() (idset.Set, error)) (*Set, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	ids, err := fn()
	if err != nil {
		return nil, translateError(err)
	}
	return d.newSet(ids), nil
}

// Ancestors returns everything reachable from set through parents,
// inclusive.
func (d *Dag) Ancestors(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.Ancestors(set.ids) })
}

// FirstAncestors returns the first-parent ancestry of set, inclusive.
func (d *Dag) FirstAncestors(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.FirstAncestors(set.ids) })
}

// Parents returns the direct parents of every vertex in set.
func (d *Dag) Parents(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.Parents(set.ids) })
}

// Heads returns the members of set that have no child in set.
func (d *Dag) Heads(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.Heads(set.ids) })
}

// HeadsAncestors returns the smallest subset of set whose ancestors
// cover the ancestors of the whole set.
func (d *Dag) HeadsAncestors(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.HeadsAncestors(set.ids) })
}

// Children returns the direct children of every vertex in set.
func (d *Dag) Children(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.Children(set.ids) })
}

// Roots returns the members of set that have no parent in set.
func (d *Dag) Roots(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.Roots(set.ids) })
}

// Merges returns the members of set with at least two parents.
func (d *Dag) Merges(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.Merges(set.ids) })
}

// CommonAncestors returns the vertexes reachable from every member of
// set.
func (d *Dag) CommonAncestors(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.CommonAncestors(set.ids) })
}

// GcaAll returns all greatest common ancestors of set.
func (d *Dag) GcaAll(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.GcaAll(set.ids) })
}

// GcaOne returns one greatest common ancestor of set, or ok false when
// the set shares no ancestor.
func (d *Dag) GcaOne(ctx context.Context, set *Set) (model.Vertex, bool, error) {
	d.mu.Lock()
	id, ok, err := d.dag.GcaOne(set.ids)
	d.mu.Unlock()
	if err != nil {
		return nil, false, translateError(err)
	}
	if !ok {
		return nil, false, nil
	}
	name, err := d.VertexName(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return name, true, nil
}

// IsAncestor reports whether ancestor is reachable from descendant
// through parents. A vertex is an ancestor of itself.
func (d *Dag) IsAncestor(ctx context.Context, ancestor, descendant model.Vertex) (bool, error) {
	ids, err := d.VertexIDsBatch(ctx, []model.Vertex{ancestor, descendant})
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	ok, err := d.dag.IsAncestor(ids[0], ids[1])
	return ok, translateError(err)
}

// Range returns the vertexes reachable from heads whose ancestry
// passes through roots: ancestors(heads) & descendants(roots).
func (d *Dag) Range(_ context.Context, roots, heads *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.Range(roots.ids, heads.ids) })
}

// Descendants returns everything reachable from set through children,
// inclusive.
func (d *Dag) Descendants(_ context.Context, set *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) { return d.dag.Descendants(set.ids) })
}

// Only returns ancestors(reachable) - ancestors(unreachable): the
// history exclusive to reachable.
func (d *Dag) Only(_ context.Context, reachable, unreachable *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) {
		return d.onlyLocked(reachable.ids, unreachable.ids)
	})
}

func (d *Dag) onlyLocked(reachable, unreachable idset.Set) (idset.Set, error) {
	reach, err := d.dag.Ancestors(reachable)
	if err != nil {
		return idset.Set{}, err
	}
	unreach, err := d.dag.Ancestors(unreachable)
	if err != nil {
		return idset.Set{}, err
	}
	return reach.Difference(unreach), nil
}

// OnlyBoth returns Only(reachable, unreachable) together with
// ancestors(unreachable), which callers usually need next anyway.
func (d *Dag) OnlyBoth(_ context.Context, reachable, unreachable *Set) (*Set, *Set, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, nil, ErrClosed
	}
	unreach, err := d.dag.Ancestors(unreachable.ids)
	if err != nil {
		return nil, nil, translateError(err)
	}
	reach, err := d.dag.Ancestors(reachable.ids)
	if err != nil {
		return nil, nil, translateError(err)
	}
	return d.newSet(reach.Difference(unreach)), d.newSet(unreach), nil
}

// ReachableRoots returns the members of roots reachable from heads
// without passing through another member of roots.
func (d *Dag) ReachableRoots(_ context.Context, roots, heads *Set) (*Set, error) {
	return d.idQuery(func() (idset.Set, error) {
		headsAncestors, err := d.dag.Ancestors(heads.ids)
		if err != nil {
			return idset.Set{}, err
		}
		reachable := roots.ids.Intersection(headsAncestors)
		rootsAncestors, err := d.dag.Ancestors(reachable)
		if err != nil {
			return idset.Set{}, err
		}
		only := headsAncestors.Difference(rootsAncestors)
		onlyParents, err := d.dag.Parents(only)
		if err != nil {
			return idset.Set{}, err
		}
		return reachable.Intersection(onlyParents.Union(heads.ids)), nil
	})
}

// Sort orders names by id, descending, which within a group is a
// reverse topological order: every vertex sorts before its ancestors.
func (d *Dag) Sort(ctx context.Context, names []model.Vertex) ([]model.Vertex, error) {
	ids, err := d.VertexIDsBatch(ctx, names)
	if err != nil {
		return nil, err
	}

	type pair struct {
		id   model.Id
		name model.Vertex
	}
	pairs := make([]pair, len(names))
	for i := range names {
		pairs[i] = pair{id: ids[i], name: names[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id > pairs[j].id })

	sorted := make([]model.Vertex, len(pairs))
	for i, p := range pairs {
		sorted[i] = p.name
	}
	return sorted, nil
}

// FirstAncestorNth returns the vertex n first-parent steps above name.
func (d *Dag) FirstAncestorNth(ctx context.Context, name model.Vertex, n uint64) (model.Vertex, error) {
	id, err := d.VertexID(ctx, name)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	target, err := d.dag.FirstAncestorNth(id, n)
	d.mu.Unlock()
	if err != nil {
		return nil, translateError(err)
	}

	return d.VertexName(ctx, target)
}

// ToFirstAncestorNth expresses name as x~n relative to the master
// heads, with x constrained to universally known vertexes. Returns ok
// false when name is not part of the master history.
func (d *Dag) ToFirstAncestorNth(ctx context.Context, name model.Vertex) (model.Vertex, uint64, bool, error) {
	id, err := d.VertexID(ctx, name)
	if err != nil {
		return nil, 0, false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	heads, _, err := d.masterHeadsLocked()
	if err != nil {
		return nil, 0, false, err
	}
	x, n, ok, err := d.dag.ToFirstAncestorNth(id, heads)
	if err != nil {
		return nil, 0, false, translateError(err)
	}
	if !ok {
		return nil, 0, false, nil
	}
	xName, err := d.vertexNameLocked(ctx, x)
	if err != nil {
		return nil, 0, false, err
	}
	return xName, n, true, nil
}

// VerifyIntegrity cross-checks segment coverage and the structural
// invariants of the graph, returning human readable problems. An empty
// result means the index is consistent.
func (d *Dag) VerifyIntegrity() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dag.VerifyIntegrity()
}

// DebugSegments renders the segments of one level and group for debug
// dumps and tests.
func (d *Dag) DebugSegments(level int, group model.Group) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dag.DebugSegments(level, group)
}
