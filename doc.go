// Package segdag implements a segmented commit-graph index.
//
// Every commit (vertex) gets a dense integer id, and a hierarchy of
// interval segments over those ids answers ancestry queries (ancestors,
// descendants, common ancestors, heads, roots, ranges) in time roughly
// proportional to the number of branch points, not the number of
// commits.
//
// The package is layered:
//
//   - idset: integer sets as sorted disjoint spans
//   - iddag: segment store and the query algorithms over ids
//   - idmap: the bidirectional vertex name <-> id binding
//   - segdag (this package): couples an idmap and an iddag, assigns
//     ids to new vertexes, translates name queries to id queries, and
//     handles persistence and lazy remote resolution
//
// # Quick start
//
// Build an in-memory graph and query it:
//
//	d := segdag.NewMemDag()
//	parents := segdag.ParentsFunc(func(ctx context.Context, name model.Vertex) ([]model.Vertex, error) {
//	    return repo.Parents(name), nil
//	})
//	if err := d.AddHeads(ctx, parents, heads...); err != nil {
//	    return err
//	}
//	set, err := d.NewSet(ctx, head)
//	ancestors, err := d.Ancestors(ctx, set)
//
// Open a durable graph and make a batch of commits permanent:
//
//	d, err := segdag.Open("/path/to/graph")
//	err = d.AddHeads(ctx, parents, draftHead)
//	err = d.Flush(ctx, publicHead)
//
// # Groups
//
// The id space is split into a MASTER group (stable public history,
// densely packed from 0, persisted) and a NON_MASTER group (draft
// history, reassigned on every flush). New vertexes always land in
// NON_MASTER first; Flush promotes the requested heads to MASTER.
//
// # Lazy graphs
//
// A graph cloned from a server keeps only a sparse name map (heads and
// merge parents). Configure a remote with WithRemote and lookups for
// unknown ids or names turn into batched x~n protocol round trips; see
// the protocol package.
package segdag
