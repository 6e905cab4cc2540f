package segdag

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/segdag/iddag"
	"github.com/hupe1980/segdag/idmap"
	"github.com/hupe1980/segdag/model"
)

// Flush re-derives the graph from its persisted state: the given heads
// get MASTER ids (walking any unassigned ancestors), every other
// current head is re-assigned in NON_MASTER, and the result is
// persisted and swapped in. The in-memory instance afterwards reflects
// exactly what was written, so changes applied concurrently by another
// process are either fully picked up or fully replayed over.
//
// For a durable graph the physical locks are held for the whole
// operation and a failing persist leaves the instance closed: the
// on-disk commit point is still the previous flush, and reopening
// recovers to it.
func (d *Dag) Flush(ctx context.Context, masterHeads ...model.Vertex) error {
	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.flushLocked(ctx, masterHeads)

	d.opts.metrics.RecordFlush(time.Since(start), err)
	d.opts.logger.LogFlush(ctx, len(masterHeads), time.Since(start), err)
	return err
}

// AddHeadsAndFlush inserts the heads and immediately makes them the
// new MASTER heads in one flush.
func (d *Dag) AddHeadsAndFlush(ctx context.Context, parents Parents, masterHeads ...model.Vertex) error {
	if err := d.AddHeads(ctx, parents, masterHeads...); err != nil {
		return err
	}
	return d.Flush(ctx, masterHeads...)
}

func (d *Dag) flushLocked(ctx context.Context, masterHeads []model.Vertex) error {
	if err := d.usableLocked(); err != nil {
		return err
	}
	d.ensureCachesLocked()

	// Read-only views of the current state drive the replay; they stay
	// valid while the live instance is rebuilt underneath.
	srcNames := d.names.CloneReadOnly()
	srcDag := d.dag.CloneReadOnly()
	srcOverlay := d.overlay

	replayHeads, err := d.replayHeadNamesLocked(srcDag, srcNames, srcOverlay, masterHeads)
	if err != nil {
		return err
	}

	prevVersion := d.dag.Version()

	var locks *graphLocks
	var baseNames idmap.IdMap
	var baseDag *iddag.IdDag

	if d.disk != nil {
		locks, err = lockGraphDir(d.disk.dir)
		if err != nil {
			return err
		}
		defer locks.release()

		// Reload the persisted state under the lock. Another process
		// may have flushed since this instance opened; its changes are
		// picked up here and our heads replay on top.
		if err := d.disk.close(); err != nil {
			d.closed = true
			return err
		}
		disk, dag, err := openDiskStores(d.disk.dir, d.opts)
		if err != nil {
			d.closed = true
			return err
		}
		d.disk = disk
		baseNames = disk.names
		baseDag = dag

		if baseDag.Version().SameLineage(prevVersion) {
			if err := promoteOverlay(srcOverlay, baseNames, baseDag); err != nil {
				d.closed = true
				return err
			}
		}
	} else {
		// In-memory: the master state is the persisted state. Promote
		// the overlay before the version lineage restarts, then drop
		// everything non-master for reassignment.
		if err := promoteOverlay(srcOverlay, d.names, d.dag); err != nil {
			return err
		}
		if err := d.names.RemoveNonMaster(); err != nil {
			return translateError(err)
		}
		if err := d.dag.RemoveNonMaster(); err != nil {
			return translateError(err)
		}
		baseNames = d.names
		baseDag = d.dag
	}

	assign := assignMap{IdMap: baseNames, overlay: srcOverlay}
	parentsOf := replayParents(srcDag, srcNames, srcOverlay)

	// Master first: ids must land below everything assigned afterwards.
	for _, head := range masterHeads {
		if err := d.replayHeadLocked(ctx, baseDag, assign, parentsOf, head, model.GroupMaster); err != nil {
			d.restoreAfterFailure(srcNames, srcDag)
			return err
		}
		// A cached remote binding that disagrees with the fresh
		// assignment means the replay produced a different graph than
		// the server's; continuing would corrupt x~n addressing.
		if cached, ok := srcOverlay.idByName(head); ok {
			fresh, err := baseNames.VertexID(head)
			if err == nil && fresh != cached {
				d.restoreAfterFailure(srcNames, srcDag)
				return errBug("flush assigned %s to %s, remote had %s", head, fresh, cached)
			}
		}
	}

	for _, head := range replayHeads {
		if assign.ContainsVertexName(head) {
			continue
		}
		if err := d.replayHeadLocked(ctx, baseDag, assign, parentsOf, head, model.GroupNonMaster); err != nil {
			d.restoreAfterFailure(srcNames, srcDag)
			return err
		}
	}

	if d.disk != nil {
		if err := d.persistLocked(ctx, baseDag); err != nil {
			d.closed = true
			return err
		}
	}

	// Swap. From here on the instance reflects exactly the new state.
	d.names = baseNames
	d.dag = baseDag
	d.pendingHeads = nil
	d.overlay = nil
	d.missing = nil
	d.snapCache = nil
	return nil
}

// promoteOverlay writes remotely resolved master bindings into the
// durable map. Only ids the segment index actually covers qualify; the
// rest would dangle after a concurrent truncation.
func promoteOverlay(ov *overlay, names idmap.IdMap, dag *iddag.IdDag) error {
	if ov == nil {
		return nil
	}
	for id, name := range ov.idToName {
		if id.Group() != model.GroupMaster || !dag.ContainsID(id) {
			continue
		}
		if names.ContainsVertexName(name) {
			continue
		}
		if err := names.Insert(id, name); err != nil {
			return translateError(err)
		}
	}
	return nil
}

// replayHeadNamesLocked collects the names of every current head that
// is not about to become a master head, in ascending id order so
// first-parent chains replay contiguously.
func (d *Dag) replayHeadNamesLocked(srcDag *iddag.IdDag, srcNames idmap.IdMap, srcOverlay *overlay, masterHeads []model.Vertex) ([]model.Vertex, error) {
	heads, err := srcDag.Heads(srcDag.All())
	if err != nil {
		return nil, translateError(err)
	}

	skip := make(map[string]struct{}, len(masterHeads))
	for _, h := range masterHeads {
		skip[h.Key()] = struct{}{}
	}

	ids := heads.IDsDesc()
	names := make([]model.Vertex, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		name, err := srcNames.VertexName(ids[i])
		if err != nil {
			if cached, ok := srcOverlay.nameByID(ids[i]); ok {
				name = cached
			} else {
				return nil, translateError(err)
			}
		}
		if _, ok := skip[name.Key()]; ok {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// replayParents resolves parent names against the pre-flush state.
func replayParents(srcDag *iddag.IdDag, srcNames idmap.IdMap, srcOverlay *overlay) idmap.ParentsFunc {
	lookupName := func(id model.Id) (model.Vertex, error) {
		name, err := srcNames.VertexName(id)
		if err == nil {
			return name, nil
		}
		if cached, ok := srcOverlay.nameByID(id); ok {
			return cached, nil
		}
		return nil, err
	}

	return func(ctx context.Context, name model.Vertex) ([]model.Vertex, error) {
		id, err := srcNames.VertexID(name)
		if err != nil {
			cached, ok := srcOverlay.idByName(name)
			if !ok {
				return nil, err
			}
			id = cached
		}
		pids, err := srcDag.ParentIDs(id)
		if err != nil {
			return nil, err
		}
		parents := make([]model.Vertex, len(pids))
		for i, pid := range pids {
			if parents[i], err = lookupName(pid); err != nil {
				return nil, err
			}
		}
		return parents, nil
	}
}

func (d *Dag) replayHeadLocked(ctx context.Context, baseDag *iddag.IdDag, assign assignMap, parentsOf idmap.ParentsFunc, head model.Vertex, group model.Group) error {
	if group == model.GroupMaster {
		if id, err := assign.VertexID(head); err == nil && id.Group() == model.GroupMaster {
			return nil // already master
		}
	}

	segments, err := idmap.AssignHead(ctx, assign, parentsOf, head, group)
	if err != nil {
		return translateError(err)
	}
	built, err := baseDag.BuildSegmentsFromPrepared(segments)
	if err != nil {
		return translateError(err)
	}
	d.opts.metrics.RecordSegmentsBuilt(built)
	return nil
}

// restoreAfterFailure unwinds a half-done flush. An in-memory graph
// swaps the pre-flush clones back in and stays usable. A durable graph
// closes: its handles may have replayed partial appends, while the
// on-disk commit point is still the previous flush, so reopening
// recovers cleanly.
func (d *Dag) restoreAfterFailure(srcNames idmap.IdMap, srcDag *iddag.IdDag) {
	if d.disk != nil {
		_ = d.disk.close()
		d.closed = true
		return
	}
	d.names = srcNames
	d.dag = srcDag
	d.overlay = nil
	d.missing = nil
	d.snapCache = nil
}

// persistLocked makes the rebuilt logs durable in parallel and then
// writes the manifest, the single commit point.
func (d *Dag) persistLocked(ctx context.Context, baseDag *iddag.IdDag) error {
	var namesSize, segmentsSize int64

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := d.disk.names.Flush()
		namesSize = n
		return err
	})
	g.Go(func() error {
		n, err := d.disk.store.Flush()
		segmentsSize = n
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	man := d.disk.current
	man.GraphVersion = baseDag.Version()
	man.NamesLogSize = namesSize
	man.SegmentsLogSize = segmentsSize
	if err := d.disk.manifests.Save(man); err != nil {
		return err
	}
	return nil
}
