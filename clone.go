package segdag

import (
	"context"
	"sort"

	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
	"github.com/hupe1980/segdag/protocol"
)

// ExportCloneData exports the complete master graph: every flat
// segment plus the universal id bindings (master heads and parents of
// merges) a lazy client needs to anchor remote lookups. Only a
// complete graph can serve clones.
func (d *Dag) ExportCloneData(ctx context.Context) (*protocol.CloneData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	segments, err := d.dag.FlatSegments(model.GroupMaster)
	if err != nil {
		return nil, translateError(err)
	}

	universal, err := d.dag.UniversalIDs()
	if err != nil {
		return nil, translateError(err)
	}

	bindings := make(map[model.Id]model.Vertex, universal.SpanCount())
	for _, id := range universal.IDsDesc() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Merge parents of pending non-master work are universal too,
		// but clones only carry the master group.
		if id.Group() != model.GroupMaster {
			continue
		}
		name, err := d.names.VertexName(id)
		if err != nil {
			return nil, translateError(err)
		}
		bindings[id] = name
	}

	return &protocol.CloneData{FlatSegments: segments, IDMap: bindings}, nil
}

// ImportCloneData seeds an empty graph from a clone payload without
// walking parents. The payload's segments become the master group
// as-is and the sparse bindings become the local map; everything else
// resolves lazily through the remote.
func (d *Dag) ImportCloneData(ctx context.Context, data *protocol.CloneData) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.importCloneLocked(ctx, data)
	d.opts.logger.LogImport(ctx, "clone", len(data.FlatSegments), len(data.IDMap), err)
	return err
}

func (d *Dag) importCloneLocked(_ context.Context, data *protocol.CloneData) error {
	if err := d.usableLocked(); err != nil {
		return err
	}
	if d.dag.NextFreeID(model.GroupMaster) != model.GroupMaster.MinID() ||
		d.dag.NextFreeID(model.GroupNonMaster) != model.GroupNonMaster.MinID() ||
		len(d.pendingHeads) > 0 {
		return ErrNotEmpty
	}

	if err := data.Validate(); err != nil {
		return errBug("invalid clone data: %s", err)
	}
	for _, seg := range data.FlatSegments {
		if seg.High.Group() != model.GroupMaster {
			return errBug("clone segment %s is not in the master group", seg)
		}
	}

	built, err := d.dag.BuildSegmentsFromPrepared(data.FlatSegments)
	if err != nil {
		return translateError(err)
	}
	d.opts.metrics.RecordSegmentsBuilt(built)

	for id, name := range data.IDMap {
		if !d.dag.ContainsID(id) {
			return errBug("clone binding %s -> %s outside the payload", id, name)
		}
		if err := d.names.Insert(id, name); err != nil {
			return translateError(err)
		}
	}

	// The sparse map must cover at least the universal ids, or x~n
	// anchoring breaks on first use.
	universal, err := d.dag.UniversalIDs()
	if err != nil {
		return translateError(err)
	}
	for _, id := range universal.IDsDesc() {
		if _, err := d.names.VertexName(id); err != nil {
			return errBug("clone data misses the universal id %s", id)
		}
	}

	d.overlay = nil
	d.missing = nil
	d.snapCache = nil
	return nil
}

// ImportPullData appends a fast-forward pull payload to the master
// group. Server ids are remapped by an additive per-segment offset
// onto the local free range, preserving the payload's relative
// structure while keeping local ids monotonic. Payloads that do not
// fast-forward cleanly return ErrNeedSlowPath and leave the graph
// untouched.
func (d *Dag) ImportPullData(ctx context.Context, data *protocol.CloneData, heads []model.Vertex) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.importPullLocked(ctx, data, heads)
	d.opts.logger.LogImport(ctx, "pull", len(data.FlatSegments), len(data.IDMap), err)
	return err
}

func (d *Dag) importPullLocked(_ context.Context, data *protocol.CloneData, heads []model.Vertex) error {
	if err := d.usableLocked(); err != nil {
		return err
	}
	d.ensureCachesLocked()

	if err := data.Validate(); err != nil {
		return errBug("invalid pull data: %s", err)
	}
	if len(data.FlatSegments) == 0 {
		return nil
	}
	min := data.FlatSegments[0].Low

	// The payload heads must be exactly what the caller asked to pull.
	payloadHeads, err := payloadHeadNames(data)
	if err != nil {
		return err
	}
	if len(payloadHeads) != len(heads) {
		return errNeedSlowPath("server sent %d heads, requested %d", len(payloadHeads), len(heads))
	}
	for _, h := range heads {
		if _, ok := payloadHeads[h.Key()]; !ok {
			return errNeedSlowPath("server heads do not include %s", h)
		}
	}

	// Segment lookup by server id, for remapping in-payload parents.
	segs := data.FlatSegments
	findSegment := func(id model.Id) (int, bool) {
		i := sort.Search(len(segs), func(i int) bool { return segs[i].High >= id })
		if i == len(segs) || segs[i].Low > id {
			return 0, false
		}
		return i, true
	}

	// Local target ranges, one contiguous block in payload order.
	localLows := make([]model.Id, len(segs))
	next := d.dag.NextFreeID(model.GroupMaster)
	for i, seg := range segs {
		localLows[i] = next
		next += seg.High - seg.Low + 1
	}
	remap := func(id model.Id) (model.Id, bool) {
		i, ok := findSegment(id)
		if !ok {
			return 0, false
		}
		return localLows[i] + (id - segs[i].Low), true
	}

	// A pulled vertex that already exists locally means this is not a
	// clean fast-forward; importing it would assign a duplicate id.
	for id, name := range data.IDMap {
		if id < min {
			continue
		}
		if _, ok := findSegment(id); !ok {
			return errBug("pull binding %s -> %s falls in a gap of the payload", id, name)
		}
		if d.containsLocked(name) {
			return errNeedSlowPath("pulled vertex %s already exists locally", name)
		}
	}

	// Remap every segment, resolving boundary parents by name.
	remapped := make([]model.FlatSegment, len(segs))
	for i, seg := range segs {
		parents := make([]model.Id, len(seg.Parents))
		for j, p := range seg.Parents {
			if p >= min {
				local, ok := remap(p)
				if !ok {
					return errBug("pull segment %s parent %s falls in a gap of the payload", seg, p)
				}
				parents[j] = local
				continue
			}
			name, ok := data.IDMap[p]
			if !ok {
				return errBug("pull segment %s parent %s has no name binding", seg, p)
			}
			local, ok := d.lookupIDLocked(name)
			if !ok {
				return errNeedSlowPath("pull parent %s is not known locally", name)
			}
			if local.Group() != model.GroupMaster {
				return errNeedSlowPath("pull parent %s is not master locally", name)
			}
			parents[j] = local
		}
		localHigh := localLows[i] + (seg.High - seg.Low)
		remapped[i] = model.FlatSegment{Low: localLows[i], High: localHigh, Parents: parents}
	}

	built, err := d.dag.BuildSegmentsFromPrepared(remapped)
	if err != nil {
		return translateError(err)
	}
	d.opts.metrics.RecordSegmentsBuilt(built)

	for id, name := range data.IDMap {
		if id < min {
			continue
		}
		local, _ := remap(id)
		if err := d.names.Insert(local, name); err != nil {
			return translateError(err)
		}
	}

	// New master history may invalidate confirmed misses.
	d.missing = nil
	d.snapCache = nil
	return nil
}

// payloadHeadNames returns the names of the payload's head ids: the
// segment highs no other payload segment uses as a parent.
func payloadHeadNames(data *protocol.CloneData) (map[string]struct{}, error) {
	parentSet := make(map[model.Id]struct{})
	for _, seg := range data.FlatSegments {
		for _, p := range seg.Parents {
			parentSet[p] = struct{}{}
		}
	}

	heads := make(map[string]struct{})
	for _, seg := range data.FlatSegments {
		if _, ok := parentSet[seg.High]; ok {
			continue
		}
		name, ok := data.IDMap[seg.High]
		if !ok {
			return nil, errBug("payload head %s has no name binding", seg.High)
		}
		heads[name.Key()] = struct{}{}
	}
	return heads, nil
}

// ExportPullData exports the segments covering set plus the bindings a
// client needs to stitch them in: every segment head and every parent,
// inside the payload or below it. The set must be closed under
// ancestors within itself, which Ancestors differences naturally are.
func (d *Dag) ExportPullData(ctx context.Context, set *Set) (*protocol.CloneData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exportPullLocked(ctx, set.ids)
}

func (d *Dag) exportPullLocked(_ context.Context, ids idset.Set) (*protocol.CloneData, error) {
	if d.closed {
		return nil, ErrClosed
	}

	segments, err := d.dag.IDSetToFlatSegments(ids)
	if err != nil {
		return nil, translateError(err)
	}

	bindings := make(map[model.Id]model.Vertex)
	bind := func(id model.Id) error {
		if _, ok := bindings[id]; ok {
			return nil
		}
		name, err := d.names.VertexName(id)
		if err != nil {
			return translateError(err)
		}
		bindings[id] = name
		return nil
	}

	for _, seg := range segments {
		if err := bind(seg.High); err != nil {
			return nil, err
		}
		for _, p := range seg.Parents {
			if err := bind(p); err != nil {
				return nil, err
			}
		}
	}

	return &protocol.CloneData{FlatSegments: segments, IDMap: bindings}, nil
}

// PullFastForwardMaster is the server side of an incremental pull: the
// segments and bindings covering ancestors(new) - ancestors(old).
// Returns ErrNeedSlowPath when old is not an ancestor of new, since
// the delta would not be a fast-forward.
func (d *Dag) PullFastForwardMaster(ctx context.Context, oldHead, newHead model.Vertex) (*protocol.CloneData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	oldID, ok := d.lookupIDLocked(oldHead)
	if !ok {
		return nil, errNeedSlowPath("old head %s is unknown", oldHead)
	}
	newID, ok := d.lookupIDLocked(newHead)
	if !ok {
		return nil, &ErrVertexNotFound{Name: newHead}
	}

	isAncestor, err := d.dag.IsAncestor(oldID, newID)
	if err != nil {
		return nil, translateError(err)
	}
	if !isAncestor {
		return nil, errNeedSlowPath("%s is not an ancestor of %s", oldHead, newHead)
	}

	newAncestors, err := d.dag.Ancestors(idset.FromSingle(newID))
	if err != nil {
		return nil, translateError(err)
	}
	oldAncestors, err := d.dag.Ancestors(idset.FromSingle(oldID))
	if err != nil {
		return nil, translateError(err)
	}

	return d.exportPullLocked(ctx, newAncestors.Difference(oldAncestors))
}
