package segdag

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/segdag/iddag"
	"github.com/hupe1980/segdag/idmap"
	"github.com/hupe1980/segdag/model"
)

// Dag couples an id map and a segmented id graph into a commit graph
// queried by vertex name. One instance is a single writer: mutations
// (AddHeads, Flush, Import*) require exclusive access, while read
// concurrency comes from TrySnapshot clones.
type Dag struct {
	mu   sync.Mutex
	opts options

	names idmap.IdMap
	dag   *iddag.IdDag

	// Heads added since the last flush, in insertion order.
	pendingHeads []model.Vertex

	// Lazy resolution caches. Both are dropped whenever the graph
	// version leaves the lineage they were built against.
	overlay *overlay
	missing map[string]struct{}

	snapCache   *Dag
	snapVersion model.VerLink

	disk     *diskState
	readonly bool
	closed   bool
}

// NewMemDag creates a fully in-memory graph.
func NewMemDag(optFns ...Option) *Dag {
	opts := applyOptions(optFns)

	return &Dag{
		opts:  opts,
		names: idmap.NewMemIdMap(),
		dag: iddag.New(func(o *iddag.Options) {
			o.SegmentSize = opts.segmentSize
		}),
	}
}

// Version returns the graph's current version token. Any mutation
// changes it; non append-only mutations start a new lineage.
func (d *Dag) Version() model.VerLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dag.Version()
}

// IsLazy reports whether missed lookups reach out to a remote service.
func (d *Dag) IsLazy() bool {
	return d.opts.remote != nil
}

// Close releases the on-disk stores. Closing an in-memory graph or a
// snapshot only marks it unusable.
func (d *Dag) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.snapCache = nil

	if d.disk == nil {
		return nil
	}
	return d.disk.close()
}

// AddHeads assigns ids to the given heads and every unknown ancestor,
// walking parents through the supplied source. New vertexes always
// land in the NON_MASTER group; Flush later promotes chosen heads to
// MASTER. Heads already in the graph are skipped.
//
// On a lazy graph a conservative pre-filter first proves sub-graphs
// unassigned or resolves them remotely, so vertexes the server already
// knows are never assigned a second, local id.
func (d *Dag) AddHeads(ctx context.Context, parents Parents, heads ...model.Vertex) error {
	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	assigned, err := d.addHeadsLocked(ctx, parents, heads)

	d.opts.metrics.RecordAddHeads(assigned, time.Since(start), err)
	d.opts.logger.LogAddHeads(ctx, len(heads), assigned, err)
	return err
}

func (d *Dag) addHeadsLocked(ctx context.Context, parents Parents, heads []model.Vertex) (int, error) {
	if err := d.usableLocked(); err != nil {
		return 0, err
	}
	d.ensureCachesLocked()

	src := parents
	if hinter, ok := parents.(SubdagHinter); ok {
		sub, err := hinter.HintSubdagForInsertion(ctx, heads)
		if err != nil {
			return 0, err
		}
		if sub != nil {
			src = sub
		}
	}

	if d.IsLazy() {
		if err := d.prefilterAssignedLocked(ctx, src, heads); err != nil {
			return 0, err
		}
	}

	m := assignMap{IdMap: d.names, overlay: d.overlay}
	assigned := 0

	for _, head := range heads {
		if m.ContainsVertexName(head) {
			continue
		}

		segments, err := idmap.AssignHead(ctx, m, src.ParentNames, head, model.GroupNonMaster)
		if err != nil {
			return assigned, translateError(err)
		}

		built, err := d.dag.BuildSegmentsFromPrepared(segments)
		if err != nil {
			return assigned, translateError(err)
		}
		d.opts.metrics.RecordSegmentsBuilt(built)

		d.pendingHeads = append(d.pendingHeads, head)
		assigned++
	}

	d.snapCache = nil
	return assigned, nil
}

// usableLocked rejects operations on closed or read-only instances.
func (d *Dag) usableLocked() error {
	if d.closed {
		return ErrClosed
	}
	if d.readonly {
		return ErrReadOnly
	}
	return nil
}

// ensureCachesLocked drops the overlay and the negative cache when the
// graph version left the lineage they were built against.
func (d *Dag) ensureCachesLocked() {
	if d.overlay != nil && !d.dag.Version().SameLineage(d.overlay.base) {
		d.overlay = nil
		d.missing = nil
	}
}

// assignMap decorates an IdMap so AssignHead sees remotely resolved
// bindings from the overlay as assigned. Inserts go to the underlying
// map only; the overlay is never written through here.
type assignMap struct {
	idmap.IdMap
	overlay *overlay
}

func (m assignMap) ContainsVertexName(name model.Vertex) bool {
	if m.IdMap.ContainsVertexName(name) {
		return true
	}
	_, ok := m.overlay.idByName(name)
	return ok
}

func (m assignMap) VertexID(name model.Vertex) (model.Id, error) {
	id, err := m.IdMap.VertexID(name)
	if err == nil {
		return id, nil
	}
	if id, ok := m.overlay.idByName(name); ok {
		return id, nil
	}
	return 0, err
}

func (m assignMap) VertexName(id model.Id) (model.Vertex, error) {
	name, err := m.IdMap.VertexName(id)
	if err == nil {
		return name, nil
	}
	if name, ok := m.overlay.nameByID(id); ok {
		return name, nil
	}
	return nil, err
}
