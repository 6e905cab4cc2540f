package segdag

import (
	"context"

	"github.com/hupe1980/segdag/model"
)

// prefilterSampleLimit bounds how many names go into one probing round
// trip before switching to sampled bisection.
const prefilterSampleLimit = 30

// prefilterNode is one unknown vertex discovered while walking from
// the pending heads toward known history.
type prefilterNode struct {
	name    model.Vertex
	parents []model.Vertex

	// three-state: 0 unknown, 1 assigned remotely, 2 unassigned
	state int
}

const (
	stateUnknown = iota
	stateAssigned
	stateUnassigned
)

// prefilterAssignedLocked classifies the unknown ancestry of heads
// before non-master assignment. Vertexes the server already holds in
// master must not get a second, local id, so anything not provably
// unassigned is checked remotely, with batching and sampling keeping
// the round trips low.
//
// The proofs are conservative: an assigned vertex is never classified
// unassigned. The sampling order is a performance choice only.
func (d *Dag) prefilterAssignedLocked(ctx context.Context, parents Parents, heads []model.Vertex) error {
	masterIDs, _, err := d.masterHeadsLocked()
	if err != nil {
		return err
	}
	if masterIDs.IsEmpty() {
		// Without local master history no path can be anchored, and a
		// server match could not be translated to an id anyway.
		return nil
	}

	nodes, order, err := d.collectUnknownLocked(ctx, parents, heads)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}

	d.proveUnassignedLocked(nodes, order)

	if err := d.probeRemainingLocked(ctx, nodes, order); err != nil {
		return err
	}

	return d.resolveBoundaryLocked(ctx, nodes, order)
}

// collectUnknownLocked walks from heads through parents until it hits
// locally known vertexes, returning the unknown sub-graph in discovery
// (children before parents) order.
func (d *Dag) collectUnknownLocked(ctx context.Context, parents Parents, heads []model.Vertex) (map[string]*prefilterNode, []*prefilterNode, error) {
	nodes := make(map[string]*prefilterNode)
	var order []*prefilterNode

	queue := append([]model.Vertex(nil), heads...)
	seen := make(map[string]struct{})

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		name := queue[0]
		queue = queue[1:]
		key := name.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		if d.containsLocked(name) {
			continue
		}

		ps, err := parents.ParentNames(ctx, name)
		if err != nil {
			return nil, nil, err
		}

		n := &prefilterNode{name: name, parents: ps}
		if d.isMissingLocked(name) {
			n.state = stateUnassigned
		}
		nodes[key] = n
		order = append(order, n)
		queue = append(queue, ps...)
	}

	return nodes, order, nil
}

// proveUnassignedLocked applies the local proofs:
//
//   - a vertex with a NON_MASTER parent can never be in remote master
//   - a vertex whose parent is provably unassigned is unassigned too
//   - a vertex whose known MASTER parent has all of its master
//     children locally named cannot be one of those children
//
// Proofs propagate child-ward, so the loop runs to a fixpoint.
func (d *Dag) proveUnassignedLocked(nodes map[string]*prefilterNode, order []*prefilterNode) {
	for changed := true; changed; {
		changed = false
		for _, n := range order {
			if n.state != stateUnknown {
				continue
			}
			for _, p := range n.parents {
				if pn, ok := nodes[p.Key()]; ok {
					if pn.state == stateUnassigned {
						n.state = stateUnassigned
						changed = true
					}
					continue
				}
				pid, ok := d.lookupIDLocked(p)
				if !ok {
					continue
				}
				if pid.Group() == model.GroupNonMaster {
					n.state = stateUnassigned
					changed = true
					break
				}
				if d.allMasterChildrenKnownLocked(pid) {
					n.state = stateUnassigned
					changed = true
					break
				}
			}
		}
	}
}

// allMasterChildrenKnownLocked reports whether every master child of
// id carries a local name binding. When true, any locally unnamed
// child candidate of id cannot exist in remote master.
func (d *Dag) allMasterChildrenKnownLocked(id model.Id) bool {
	children, err := d.dag.ChildrenID(id)
	if err != nil {
		return false
	}
	for _, child := range children.IDsDesc() {
		if child.Group() != model.GroupMaster {
			continue
		}
		if _, ok := d.lookupNameLocked(child); !ok {
			return false
		}
	}
	return true
}

// probeRemainingLocked settles still-unknown candidates with remote
// round trips. Small batches go out whole; large ones are sampled at
// the roots, heads and midpoint of the remainder, and every answer is
// propagated through the graph (ancestors of an assigned vertex are
// assigned, descendants of a missing vertex are missing) before the
// next round.
func (d *Dag) probeRemainingLocked(ctx context.Context, nodes map[string]*prefilterNode, order []*prefilterNode) error {
	for {
		var remaining []*prefilterNode
		for _, n := range order {
			if n.state == stateUnknown {
				remaining = append(remaining, n)
			}
		}
		if len(remaining) == 0 {
			return nil
		}

		sample := remaining
		if len(remaining) > prefilterSampleLimit {
			sample = samplePrefilter(nodes, remaining)
		}

		names := make([]model.Vertex, len(sample))
		for i, n := range sample {
			names[i] = n.name
		}
		if err := d.resolveNamesRemoteLocked(ctx, names); err != nil {
			return err
		}

		for _, n := range sample {
			if d.containsLocked(n.name) {
				d.propagateAssigned(nodes, n)
			} else {
				d.propagateUnassigned(nodes, order, n)
			}
		}
	}
}

// samplePrefilter picks the roots, heads and the midpoint of the
// unknown remainder: roots settle fastest when the server knows the
// batch, heads settle fastest when it does not.
func samplePrefilter(nodes map[string]*prefilterNode, remaining []*prefilterNode) []*prefilterNode {
	remainingSet := make(map[string]struct{}, len(remaining))
	for _, n := range remaining {
		remainingSet[n.name.Key()] = struct{}{}
	}
	hasChild := make(map[string]struct{})
	for _, n := range remaining {
		for _, p := range n.parents {
			if _, ok := remainingSet[p.Key()]; ok {
				hasChild[p.Key()] = struct{}{}
			}
		}
	}

	picked := make(map[string]struct{})
	var sample []*prefilterNode
	add := func(n *prefilterNode) {
		if _, ok := picked[n.name.Key()]; ok {
			return
		}
		picked[n.name.Key()] = struct{}{}
		sample = append(sample, n)
	}

	for _, n := range remaining {
		isRoot := true
		for _, p := range n.parents {
			if _, ok := remainingSet[p.Key()]; ok {
				isRoot = false
				break
			}
		}
		if isRoot {
			add(n)
		}
		if _, ok := hasChild[n.name.Key()]; !ok {
			add(n)
		}
		if len(sample) >= prefilterSampleLimit {
			return sample
		}
	}
	add(remaining[len(remaining)/2])
	return sample
}

// propagateAssigned marks every candidate ancestor of n assigned: the
// master group is closed under ancestors.
func (d *Dag) propagateAssigned(nodes map[string]*prefilterNode, n *prefilterNode) {
	stack := []*prefilterNode{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.state == stateAssigned {
			continue
		}
		cur.state = stateAssigned
		for _, p := range cur.parents {
			if pn, ok := nodes[p.Key()]; ok {
				stack = append(stack, pn)
			}
		}
	}
}

// propagateUnassigned marks every candidate descendant of n
// unassigned: a vertex cannot exist remotely without its ancestors.
func (d *Dag) propagateUnassigned(nodes map[string]*prefilterNode, order []*prefilterNode, n *prefilterNode) {
	n.state = stateUnassigned
	for changed := true; changed; {
		changed = false
		for _, cand := range order {
			// Never downgrade a confirmed assignment.
			if cand.state != stateUnknown {
				continue
			}
			for _, p := range cand.parents {
				if pn, ok := nodes[p.Key()]; ok && pn.state == stateUnassigned {
					cand.state = stateUnassigned
					changed = true
					break
				}
			}
		}
	}
}

// resolveBoundaryLocked fetches ids for assigned candidates that sit
// directly below an unassigned one. AssignHead stops at those, so they
// must resolve to concrete ids before the walk starts.
func (d *Dag) resolveBoundaryLocked(ctx context.Context, nodes map[string]*prefilterNode, order []*prefilterNode) error {
	var boundary []model.Vertex
	seen := make(map[string]struct{})

	for _, n := range order {
		if n.state != stateUnassigned {
			continue
		}
		for _, p := range n.parents {
			pn, ok := nodes[p.Key()]
			if !ok || pn.state != stateAssigned {
				continue
			}
			if d.containsLocked(p) {
				continue
			}
			if _, dup := seen[p.Key()]; dup {
				continue
			}
			seen[p.Key()] = struct{}{}
			boundary = append(boundary, p)
		}
	}

	if len(boundary) == 0 {
		return nil
	}
	if err := d.resolveNamesRemoteLocked(ctx, boundary); err != nil {
		return err
	}
	for _, name := range boundary {
		if !d.containsLocked(name) {
			return errBug("server no longer resolves %s, marked assigned earlier", name)
		}
	}
	return nil
}
