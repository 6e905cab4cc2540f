package protocol

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segdag/model"
)

// cloneServer adds a canned clone payload to a LocalService.
type cloneServer struct {
	*LocalService
	data *CloneData
}

func (s *cloneServer) ExportCloneData(_ context.Context) (*CloneData, error) {
	return s.data, nil
}

func startPair(t *testing.T, svc RemoteService) *JSONRPC2Client {
	t.Helper()

	serverSide, clientSide := net.Pipe()

	ctx := context.Background()
	serverConn := Serve(ctx, serverSide, svc)
	client := NewJSONRPC2Client(ctx, clientSide)

	t.Cleanup(func() {
		require.NoError(t, client.Close())
		<-serverConn.Done()
	})

	return client
}

func TestJSONRPC2RoundTrip(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	client := startPair(t, NewLocalService(m, d))

	ctx := context.Background()

	paths, err := client.ResolveNamesToPaths(ctx, vertexes("e"), vertexes("c", "f"))
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, model.Vertex("c"), paths[0].Names[0])
	assert.Equal(t, model.Vertex("f"), paths[1].Names[0])

	back, err := client.ResolvePathsToNames(ctx, []AncestorPath{paths[0].Path, paths[1].Path})
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, model.Vertex("c"), back[0].Names[0])
	assert.Equal(t, model.Vertex("f"), back[1].Names[0])
}

func TestJSONRPC2ServerError(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")
	client := startPair(t, NewLocalService(m, d))

	_, err := client.ResolvePathsToNames(context.Background(), []AncestorPath{
		{X: model.Vertex("missing"), N: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestJSONRPC2CloneData(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")

	want := &CloneData{
		FlatSegments: []model.FlatSegment{
			{Low: 0, High: 3, Parents: []model.Id{}},
			{Low: 4, High: 5, Parents: []model.Id{1}},
			{Low: 6, High: 6, Parents: []model.Id{3, 5}},
		},
		IDMap: map[model.Id]model.Vertex{
			3: model.Vertex("d"),
			5: model.Vertex("g"),
			6: model.Vertex("e"),
		},
	}

	client := startPair(t, &cloneServer{
		LocalService: NewLocalService(m, d),
		data:         want,
	})

	got, err := client.CloneData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, want.FlatSegments, got.FlatSegments)
	assert.Equal(t, want.IDMap, got.IDMap)
}

func TestJSONRPC2CloneDataUnsupported(t *testing.T) {
	m, d := buildGraph(t, testParents, "e")

	// A plain LocalService has no clone payload to serve.
	client := startPair(t, NewLocalService(m, d))

	_, err := client.CloneData(context.Background())
	require.Error(t, err)
}
