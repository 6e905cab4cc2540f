package segdag

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
	"github.com/hupe1980/segdag/protocol"
)

// overlay caches id<->name bindings resolved remotely but not yet
// persisted. Entries are promoted into the durable map on flush and
// the whole overlay is dropped when the graph version changes lineage.
type overlay struct {
	base     model.VerLink
	idToName map[model.Id]model.Vertex
	nameToID map[string]model.Id
}

func newOverlay(base model.VerLink) *overlay {
	return &overlay{
		base:     base,
		idToName: make(map[model.Id]model.Vertex),
		nameToID: make(map[string]model.Id),
	}
}

func (o *overlay) insert(id model.Id, name model.Vertex) {
	o.idToName[id] = name
	o.nameToID[name.Key()] = id
}

func (o *overlay) idByName(name model.Vertex) (model.Id, bool) {
	if o == nil {
		return 0, false
	}
	id, ok := o.nameToID[name.Key()]
	return id, ok
}

func (o *overlay) nameByID(id model.Id) (model.Vertex, bool) {
	if o == nil {
		return nil, false
	}
	name, ok := o.idToName[id]
	return name, ok
}

func (d *Dag) overlayLocked() *overlay {
	if d.overlay == nil {
		d.overlay = newOverlay(d.dag.Version())
	}
	return d.overlay
}

// lookupIDLocked answers from the durable map and the overlay only.
func (d *Dag) lookupIDLocked(name model.Vertex) (model.Id, bool) {
	if id, err := d.names.VertexID(name); err == nil {
		return id, true
	}
	return d.overlay.idByName(name)
}

// lookupNameLocked answers from the durable map and the overlay only.
func (d *Dag) lookupNameLocked(id model.Id) (model.Vertex, bool) {
	if name, err := d.names.VertexName(id); err == nil {
		return name, true
	}
	return d.overlay.nameByID(id)
}

func (d *Dag) containsLocked(name model.Vertex) bool {
	_, ok := d.lookupIDLocked(name)
	return ok
}

func (d *Dag) isMissingLocked(name model.Vertex) bool {
	_, ok := d.missing[name.Key()]
	return ok
}

func (d *Dag) markMissingLocked(name model.Vertex) {
	if d.missing == nil {
		d.missing = make(map[string]struct{})
	}
	d.missing[name.Key()] = struct{}{}
}

// VertexID returns the id bound to name, resolving through the remote
// service on a lazy graph. Names the remote confirms absent land in a
// negative cache so repeated lookups stay local.
func (d *Dag) VertexID(ctx context.Context, name model.Vertex) (model.Id, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vertexIDLocked(ctx, name)
}

func (d *Dag) vertexIDLocked(ctx context.Context, name model.Vertex) (model.Id, error) {
	if d.closed {
		return 0, ErrClosed
	}
	d.ensureCachesLocked()

	if id, ok := d.lookupIDLocked(name); ok {
		return id, nil
	}
	if !d.IsLazy() || d.isMissingLocked(name) {
		return 0, &ErrVertexNotFound{Name: name}
	}

	if err := d.resolveNamesRemoteLocked(ctx, []model.Vertex{name}); err != nil {
		return 0, err
	}
	if id, ok := d.lookupIDLocked(name); ok {
		return id, nil
	}
	return 0, &ErrVertexNotFound{Name: name}
}

// VertexName returns the name bound to id, resolving through the
// remote service on a lazy graph.
func (d *Dag) VertexName(ctx context.Context, id model.Id) (model.Vertex, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vertexNameLocked(ctx, id)
}

func (d *Dag) vertexNameLocked(ctx context.Context, id model.Id) (model.Vertex, error) {
	if d.closed {
		return nil, ErrClosed
	}
	d.ensureCachesLocked()

	if name, ok := d.lookupNameLocked(id); ok {
		return name, nil
	}
	if !d.IsLazy() || id.Group() != model.GroupMaster {
		return nil, &ErrIDNotFound{ID: id}
	}

	if err := d.resolveIDsRemoteLocked(ctx, []model.Id{id}); err != nil {
		return nil, err
	}
	if name, ok := d.lookupNameLocked(id); ok {
		return name, nil
	}
	return nil, &ErrIDNotFound{ID: id}
}

// ContainsVertexName reports whether name is part of the graph,
// consulting the remote on a lazy graph.
func (d *Dag) ContainsVertexName(ctx context.Context, name model.Vertex) (bool, error) {
	_, err := d.VertexID(ctx, name)
	var notFound *ErrVertexNotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// VertexIDsBatch resolves several names in at most one remote round
// trip. The result order matches the input order.
func (d *Dag) VertexIDsBatch(ctx context.Context, names []model.Vertex) ([]model.Id, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vertexIDsBatchLocked(ctx, names)
}

func (d *Dag) vertexIDsBatchLocked(ctx context.Context, names []model.Vertex) ([]model.Id, error) {
	if d.closed {
		return nil, ErrClosed
	}
	d.ensureCachesLocked()

	if d.IsLazy() {
		var unknown []model.Vertex
		for _, name := range names {
			if !d.containsLocked(name) && !d.isMissingLocked(name) {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			if err := d.resolveNamesRemoteLocked(ctx, unknown); err != nil {
				return nil, err
			}
		}
	}

	ids := make([]model.Id, len(names))
	for i, name := range names {
		id, ok := d.lookupIDLocked(name)
		if !ok {
			return nil, &ErrVertexNotFound{Name: name}
		}
		ids[i] = id
	}
	return ids, nil
}

// VertexNamesBatch resolves several ids in at most one remote round
// trip. The result order matches the input order.
func (d *Dag) VertexNamesBatch(ctx context.Context, ids []model.Id) ([]model.Vertex, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vertexNamesBatchLocked(ctx, ids)
}

func (d *Dag) vertexNamesBatchLocked(ctx context.Context, ids []model.Id) ([]model.Vertex, error) {
	if d.closed {
		return nil, ErrClosed
	}
	d.ensureCachesLocked()

	if d.IsLazy() {
		var unknown []model.Id
		for _, id := range ids {
			if _, ok := d.lookupNameLocked(id); !ok && id.Group() == model.GroupMaster {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			if err := d.resolveIDsRemoteLocked(ctx, unknown); err != nil {
				return nil, err
			}
		}
	}

	names := make([]model.Vertex, len(ids))
	for i, id := range ids {
		name, ok := d.lookupNameLocked(id)
		if !ok {
			return nil, &ErrIDNotFound{ID: id}
		}
		names[i] = name
	}
	return names, nil
}

// masterHeadsLocked returns the minimal head set of the master group.
// These anchor every remote request.
func (d *Dag) masterHeadsLocked() (idset.Set, []model.Vertex, error) {
	heads, err := d.dag.HeadsAncestors(d.dag.MasterGroup())
	if err != nil {
		return idset.Set{}, nil, translateError(err)
	}

	names := make([]model.Vertex, 0, heads.SpanCount())
	for _, id := range heads.IDsDesc() {
		name, ok := d.lookupNameLocked(id)
		if !ok {
			// Heads are universal ids; a clone always carries their
			// bindings.
			return idset.Set{}, nil, errBug("master head %s has no name binding", id)
		}
		names = append(names, name)
	}
	return heads, names, nil
}

// resolveNamesRemoteLocked asks the remote to locate names within the
// master history, one round trip for the whole batch. Located names
// land in the overlay; names absent from the response land in the
// negative cache.
func (d *Dag) resolveNamesRemoteLocked(ctx context.Context, names []model.Vertex) error {
	_, headNames, err := d.masterHeadsLocked()
	if err != nil {
		return err
	}
	if len(headNames) == 0 {
		// Nothing to anchor paths on; treat everything as missing
		// without bothering the server.
		for _, name := range names {
			d.markMissingLocked(name)
		}
		return nil
	}

	start := time.Now()
	resolved, err := d.opts.remote.ResolveNamesToPaths(ctx, headNames, names)
	d.opts.metrics.RecordRemoteRoundTrip(len(names), time.Since(start), err)
	d.opts.logger.LogRemoteRoundTrip(ctx, "ResolveNamesToPaths", len(names), len(resolved), time.Since(start), err)
	if err != nil {
		return err
	}

	found := make(map[string]struct{}, len(resolved))
	for _, pn := range resolved {
		if err := d.insertPathNamesLocked(pn); err != nil {
			return err
		}
		for _, name := range pn.Names {
			found[name.Key()] = struct{}{}
		}
	}
	for _, name := range names {
		if _, ok := found[name.Key()]; !ok {
			d.markMissingLocked(name)
		}
	}
	return nil
}

// resolveIDsRemoteLocked converts ids to x~n paths against the local
// segments, coalesces consecutive distances under one anchor, and asks
// the remote for the names in one round trip.
func (d *Dag) resolveIDsRemoteLocked(ctx context.Context, ids []model.Id) error {
	heads, _, err := d.masterHeadsLocked()
	if err != nil {
		return err
	}

	type anchored struct {
		x model.Vertex
		n uint64
	}
	requests := make([]anchored, 0, len(ids))
	for _, id := range ids {
		x, n, ok, err := d.dag.ToFirstAncestorNth(id, heads)
		if err != nil {
			return translateError(err)
		}
		if !ok {
			return &ErrIDNotFound{ID: id}
		}
		xName, okName := d.lookupNameLocked(x)
		if !okName {
			return errBug("universal id %s has no name binding", x)
		}
		requests = append(requests, anchored{x: xName, n: n})
	}

	// Consecutive distances under the same anchor collapse into one
	// path with a batch size.
	sort.Slice(requests, func(i, j int) bool {
		ki, kj := requests[i].x.Key(), requests[j].x.Key()
		if ki != kj {
			return ki < kj
		}
		return requests[i].n < requests[j].n
	})
	var paths []protocol.AncestorPath
	for _, req := range requests {
		if n := len(paths); n > 0 {
			last := &paths[n-1]
			if last.X.Equal(req.x) && req.n < last.N+last.BatchSize {
				continue // duplicate
			}
			if last.X.Equal(req.x) && req.n == last.N+last.BatchSize {
				last.BatchSize++
				continue
			}
		}
		paths = append(paths, protocol.AncestorPath{X: req.x, N: req.n, BatchSize: 1})
	}

	start := time.Now()
	resolved, err := d.opts.remote.ResolvePathsToNames(ctx, paths)
	d.opts.metrics.RecordRemoteRoundTrip(len(paths), time.Since(start), err)
	d.opts.logger.LogRemoteRoundTrip(ctx, "ResolvePathsToNames", len(paths), len(resolved), time.Since(start), err)
	if err != nil {
		return err
	}

	for _, pn := range resolved {
		if err := d.insertPathNamesLocked(pn); err != nil {
			return err
		}
	}
	return nil
}

// insertPathNamesLocked walks a server answer back into ids. Entry i
// of pn.Names is the vertex at distance pn.Path.N+i from the anchor.
func (d *Dag) insertPathNamesLocked(pn protocol.PathNames) error {
	anchorID, ok := d.lookupIDLocked(pn.Path.X)
	if !ok {
		return errBug("server answered with unknown anchor %s", pn.Path.X)
	}

	ov := d.overlayLocked()
	for i, name := range pn.Names {
		id, err := d.dag.FirstAncestorNth(anchorID, pn.Path.N+uint64(i))
		if err != nil {
			return translateError(err)
		}
		if _, err := d.names.VertexName(id); err == nil {
			continue // already durable
		}
		ov.insert(id, name)
	}
	return nil
}

// parentNamesLocked returns the parent names of an already assigned
// vertex, resolving lazily where needed.
func (d *Dag) parentNamesLocked(ctx context.Context, name model.Vertex) ([]model.Vertex, error) {
	id, err := d.vertexIDLocked(ctx, name)
	if err != nil {
		return nil, err
	}
	pids, err := d.dag.ParentIDs(id)
	if err != nil {
		return nil, translateError(err)
	}
	return d.vertexNamesBatchLocked(ctx, pids)
}

// Compile time check to ensure Dag satisfies the Parents interface.
var _ Parents = (*Dag)(nil)

// ParentNames returns the parents of name, first parent first. Dag
// itself therefore satisfies Parents, so one graph can feed another.
func (d *Dag) ParentNames(ctx context.Context, name model.Vertex) ([]model.Vertex, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parentNamesLocked(ctx, name)
}
