package segdag

import (
	"context"

	"github.com/hupe1980/segdag/model"
)

// Parents is the capability the graph consumes to learn the topology
// of new vertexes. First parent first; the order is significant for
// x~n addressing.
type Parents interface {
	ParentNames(ctx context.Context, name model.Vertex) ([]model.Vertex, error)
}

// ParentsFunc adapts a plain function to the Parents interface.
type ParentsFunc func(ctx context.Context, name model.Vertex) ([]model.Vertex, error)

// ParentNames implements Parents.
func (f ParentsFunc) ParentNames(ctx context.Context, name model.Vertex) ([]model.Vertex, error) {
	return f(ctx, name)
}

// SubdagHinter is an optional upgrade of Parents. When implemented,
// AddHeads asks once for a pre-fetched sub-graph covering the pending
// heads instead of issuing one ParentNames call per vertex, which
// matters when the parent source sits behind a network.
type SubdagHinter interface {
	// HintSubdagForInsertion returns a Parents scoped to the ancestry
	// of heads that is not yet part of the graph. Returning a nil
	// Parents means no hint is available and the plain path is used.
	HintSubdagForInsertion(ctx context.Context, heads []model.Vertex) (Parents, error)
}
