package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segdag/iddag"
	"github.com/hupe1980/segdag/idmap"
	"github.com/hupe1980/segdag/model"
)

func vertexes(names ...string) []model.Vertex {
	vs := make([]model.Vertex, 0, len(names))
	for _, n := range names {
		vs = append(vs, model.Vertex(n))
	}
	return vs
}

func parentsFromMap(parents map[string][]string) idmap.ParentsFunc {
	return func(_ context.Context, name model.Vertex) ([]model.Vertex, error) {
		return vertexes(parents[name.Key()]...), nil
	}
}

// buildGraph assigns heads in order and builds segments for them:
//
//	a--b--c--d--e
//	    \      /
//	     f----g
func buildGraph(t *testing.T, parents map[string][]string, heads ...string) (idmap.IdMap, *iddag.IdDag) {
	t.Helper()

	m := idmap.NewMemIdMap()
	d := iddag.New()
	parentsOf := parentsFromMap(parents)

	for _, head := range heads {
		segments, err := idmap.AssignHead(context.Background(), m, parentsOf, model.Vertex(head), model.GroupMaster)
		require.NoError(t, err)
		_, err = d.BuildSegmentsFromPrepared(segments)
		require.NoError(t, err)
	}

	return m, d
}

var testParents = map[string][]string{
	"b": {"a"}, "c": {"b"}, "d": {"c"},
	"f": {"b"}, "g": {"f"}, "e": {"d", "g"},
}

func TestLocalServiceRoundTrip(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	svc := NewLocalService(m, d)

	ctx := context.Background()
	heads := vertexes("e")
	names := vertexes("a", "b", "c", "d", "f", "g", "e")

	paths, err := svc.ResolveNamesToPaths(ctx, heads, names)
	require.NoError(t, err)
	require.Len(t, paths, len(names))

	// Anchors must be universally known: a head or a merge parent.
	universal := map[string]bool{"e": true, "d": true, "g": true}

	var asks []AncestorPath
	for i, pn := range paths {
		assert.Equal(t, names[i], pn.Names[0])
		assert.True(t, universal[pn.Path.X.Key()], "anchor %s is not universal", pn.Path.X)
		asks = append(asks, pn.Path)
	}

	back, err := svc.ResolvePathsToNames(ctx, asks)
	require.NoError(t, err)
	require.Len(t, back, len(names))

	for i, pn := range back {
		require.Len(t, pn.Names, 1)
		assert.Equal(t, names[i], pn.Names[0], "path %s", pn.Path)
	}
}

func TestLocalServiceHeadPath(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	svc := NewLocalService(m, d)

	paths, err := svc.ResolveNamesToPaths(context.Background(), vertexes("e"), vertexes("e"))
	require.NoError(t, err)
	require.Len(t, paths, 1)

	assert.Equal(t, model.Vertex("e"), paths[0].Path.X)
	assert.Equal(t, uint64(0), paths[0].Path.N)
}

func TestLocalServiceUnknownNameSkipped(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	svc := NewLocalService(m, d)

	paths, err := svc.ResolveNamesToPaths(context.Background(), vertexes("e"), vertexes("missing", "c"))
	require.NoError(t, err)

	// Only the known name answers; the caller records the miss.
	require.Len(t, paths, 1)
	assert.Equal(t, model.Vertex("c"), paths[0].Names[0])
}

func TestLocalServiceUnknownHead(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	svc := NewLocalService(m, d)

	_, err := svc.ResolveNamesToPaths(context.Background(), vertexes("missing"), vertexes("c"))

	var notFound *idmap.ErrVertexNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestLocalServiceNameOutsideHeads(t *testing.T) {
	// Two heads, resolve against the ancestry of d only: g is not
	// reachable from d and answers nothing.
	m, d := buildGraph(t, testParents, "d", "e")
	svc := NewLocalService(m, d)

	paths, err := svc.ResolveNamesToPaths(context.Background(), vertexes("d"), vertexes("g", "c"))
	require.NoError(t, err)

	require.Len(t, paths, 1)
	assert.Equal(t, model.Vertex("c"), paths[0].Names[0])
}

func TestLocalServiceBatchWalk(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	svc := NewLocalService(m, d)

	result, err := svc.ResolvePathsToNames(context.Background(), []AncestorPath{
		{X: model.Vertex("e"), N: 1, BatchSize: 3},
	})
	require.NoError(t, err)
	require.Len(t, result, 1)

	// e~1 = d, then first parents c, b.
	assert.Equal(t, vertexes("d", "c", "b"), result[0].Names)
}

func TestLocalServiceBatchTruncatedAtRoot(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	svc := NewLocalService(m, d)

	result, err := svc.ResolvePathsToNames(context.Background(), []AncestorPath{
		{X: model.Vertex("d"), N: 2, BatchSize: 10},
	})
	require.NoError(t, err)
	require.Len(t, result, 1)

	// d~2 = b, d~3 = a, then the walk hits the root.
	assert.Equal(t, vertexes("b", "a"), result[0].Names)
}

func TestLocalServiceBatchSizeZeroMeansOne(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	svc := NewLocalService(m, d)

	result, err := svc.ResolvePathsToNames(context.Background(), []AncestorPath{
		{X: model.Vertex("e"), N: 1},
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, vertexes("d"), result[0].Names)
}

func TestLocalServiceUnknownAnchor(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	svc := NewLocalService(m, d)

	_, err := svc.ResolvePathsToNames(context.Background(), []AncestorPath{
		{X: model.Vertex("missing"), N: 1},
	})

	var notFound *idmap.ErrVertexNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestLocalServicePathPastRoot(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	svc := NewLocalService(m, d)

	_, err := svc.ResolvePathsToNames(context.Background(), []AncestorPath{
		{X: model.Vertex("d"), N: 99},
	})
	require.ErrorIs(t, err, iddag.ErrProgramming)
}
