package protocol

import (
	"context"
	"errors"

	"github.com/hupe1980/segdag/iddag"
	"github.com/hupe1980/segdag/idmap"
	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
)

// Compile time check to ensure LocalService satisfies the RemoteService interface.
var _ RemoteService = (*LocalService)(nil)

// LocalService answers protocol requests from a graph snapshot. It is
// the server half of the lazy protocol and the loopback used in tests.
//
// The snapshot must be read-only for the service's lifetime; hand it
// CloneReadOnly copies when the underlying graph keeps mutating.
type LocalService struct {
	m idmap.IdMap
	d *iddag.IdDag
}

// NewLocalService creates a service over an id map and segment graph
// snapshot pair.
func NewLocalService(m idmap.IdMap, d *iddag.IdDag) *LocalService {
	return &LocalService{m: m, d: d}
}

// ResolveNamesToPaths locates names within the ancestry of heads.
// Names the server does not know, or that are not reachable from
// heads, are left out of the response. Unknown heads are an error
// since no path can be anchored on them.
func (s *LocalService) ResolveNamesToPaths(ctx context.Context, heads []model.Vertex, names []model.Vertex) ([]PathNames, error) {
	ids := make([]model.Id, 0, len(heads))
	for _, head := range heads {
		id, err := s.m.VertexID(head)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	headIDs := idset.FromIDs(ids...)

	var result []PathNames

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, err := s.m.VertexID(name)
		if err != nil {
			var notFound *idmap.ErrVertexNotFound
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}

		x, n, ok, err := s.d.ToFirstAncestorNth(id, headIDs)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		xName, err := s.m.VertexName(x)
		if err != nil {
			return nil, err
		}

		result = append(result, PathNames{
			Path:  AncestorPath{X: xName, N: n, BatchSize: 1},
			Names: []model.Vertex{name},
		})
	}

	return result, nil
}

// ResolvePathsToNames returns the names at the requested locations.
// Paths anchored on unknown names are an error: clients only construct
// paths from server answers, so an unknown anchor means the two sides
// disagree about the graph. Batches are truncated at roots.
func (s *LocalService) ResolvePathsToNames(ctx context.Context, paths []AncestorPath) ([]PathNames, error) {
	result := make([]PathNames, 0, len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		x, err := s.m.VertexID(path.X)
		if err != nil {
			return nil, err
		}

		id, err := s.d.FirstAncestorNth(x, path.N)
		if err != nil {
			return nil, err
		}

		batch := path.BatchSize
		if batch == 0 {
			batch = 1
		}

		names := make([]model.Vertex, 0, batch)
		for i := uint64(0); i < batch; i++ {
			if i > 0 {
				next, ok, err := s.d.TryFirstAncestorNth(id, 1)
				if err != nil {
					return nil, err
				}
				if !ok {
					break
				}
				id = next
			}

			name, err := s.m.VertexName(id)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
		}

		result = append(result, PathNames{Path: path, Names: names})
	}

	return result, nil
}
