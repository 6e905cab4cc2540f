package segdag

import (
	"context"

	"github.com/hupe1980/segdag/iddag"
	"github.com/hupe1980/segdag/idmap"
	"github.com/hupe1980/segdag/model"
	"github.com/hupe1980/segdag/protocol"
)

// Service exposes a graph as the server side of the lazy protocol.
// Every request is answered from a consistent read-only view taken at
// call time, so serving and mutating the graph can interleave freely.
type Service struct {
	d *Dag
}

// Service returns the graph's protocol server. Hand it to
// protocol.Serve, or use it directly as an in-process RemoteService
// for a lazy client backed by this graph.
func (d *Dag) Service() *Service {
	return &Service{d: d}
}

func (s *Service) view() (idmap.IdMap, *iddag.IdDag, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	if s.d.closed {
		return nil, nil, ErrClosed
	}
	return s.d.names.CloneReadOnly(), s.d.dag.CloneReadOnly(), nil
}

// ResolveNamesToPaths implements protocol.RemoteService.
func (s *Service) ResolveNamesToPaths(ctx context.Context, heads []model.Vertex, names []model.Vertex) ([]protocol.PathNames, error) {
	m, d, err := s.view()
	if err != nil {
		return nil, err
	}
	return protocol.NewLocalService(m, d).ResolveNamesToPaths(ctx, heads, names)
}

// ResolvePathsToNames implements protocol.RemoteService.
func (s *Service) ResolvePathsToNames(ctx context.Context, paths []protocol.AncestorPath) ([]protocol.PathNames, error) {
	m, d, err := s.view()
	if err != nil {
		return nil, err
	}
	return protocol.NewLocalService(m, d).ResolvePathsToNames(ctx, paths)
}

// ExportCloneData implements protocol.CloneSource.
func (s *Service) ExportCloneData(ctx context.Context) (*protocol.CloneData, error) {
	return s.d.ExportCloneData(ctx)
}

var (
	_ protocol.RemoteService = (*Service)(nil)
	_ protocol.CloneSource   = (*Service)(nil)
)
