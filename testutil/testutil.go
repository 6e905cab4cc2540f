package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"lukechampine.com/blake3"

	"github.com/hupe1980/segdag/model"
	"github.com/hupe1980/segdag/protocol"
)

// V turns a plain string into a vertex name.
func V(s string) model.Vertex {
	return model.Vertex(s)
}

// Vs turns several plain strings into vertex names.
func Vs(ss ...string) []model.Vertex {
	names := make([]model.Vertex, len(ss))
	for i, s := range ss {
		names[i] = V(s)
	}
	return names
}

// HashedV derives a deterministic 20-byte vertex name from s, shaped
// like a real commit hash. The same s always yields the same name.
func HashedV(s string) model.Vertex {
	sum := blake3.Sum256([]byte(s))
	return model.Vertex(sum[:20])
}

// Graph is a parsed ASCII graph. It satisfies the Parents capability
// of the graph package, so it can feed AddHeads directly.
type Graph struct {
	parents map[string][]model.Vertex
	order   []model.Vertex
}

// DrawDag parses a whitespace separated graph description. Two forms
// combine freely, one per token or line:
//
//	A-B-C     a chain, A is the first parent of B, B of C
//	C: A B    explicit parents of C, first parent first
//
// Later "child: parents" lines override the parent order a chain
// implied. Vertex names are single words; they become plain byte
// names via V.
func DrawDag(text string) *Graph {
	g := &Graph{parents: make(map[string][]model.Vertex)}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if child, rest, ok := strings.Cut(line, ":"); ok {
			child = strings.TrimSpace(child)
			var parents []model.Vertex
			for _, p := range strings.Fields(rest) {
				parents = append(parents, V(p))
			}
			g.set(V(child), parents)
			continue
		}

		for _, token := range strings.Fields(line) {
			names := strings.Split(token, "-")
			g.touch(V(names[0]))
			for i := 1; i < len(names); i++ {
				g.addEdge(V(names[i]), V(names[i-1]))
			}
		}
	}

	return g
}

func (g *Graph) touch(name model.Vertex) {
	key := name.Key()
	if _, ok := g.parents[key]; !ok {
		g.parents[key] = nil
		g.order = append(g.order, name)
	}
}

func (g *Graph) set(child model.Vertex, parents []model.Vertex) {
	g.touch(child)
	for _, p := range parents {
		g.touch(p)
	}
	g.parents[child.Key()] = parents
}

func (g *Graph) addEdge(child, parent model.Vertex) {
	g.touch(parent)
	g.touch(child)
	for _, p := range g.parents[child.Key()] {
		if p.Equal(parent) {
			return
		}
	}
	g.parents[child.Key()] = append(g.parents[child.Key()], parent)
}

// ParentNames returns the parents of name, first parent first.
func (g *Graph) ParentNames(_ context.Context, name model.Vertex) ([]model.Vertex, error) {
	parents, ok := g.parents[name.Key()]
	if !ok {
		return nil, fmt.Errorf("testutil: vertex %s is not in the drawn graph", name)
	}
	return parents, nil
}

// Heads returns the vertexes nothing names as a parent, in drawing
// order.
func (g *Graph) Heads() []model.Vertex {
	isParent := make(map[string]struct{})
	for _, parents := range g.parents {
		for _, p := range parents {
			isParent[p.Key()] = struct{}{}
		}
	}

	var heads []model.Vertex
	for _, name := range g.order {
		if _, ok := isParent[name.Key()]; !ok {
			heads = append(heads, name)
		}
	}
	return heads
}

// All returns every drawn vertex, sorted by name for stable output.
func (g *Graph) All() []model.Vertex {
	all := append([]model.Vertex(nil), g.order...)
	sort.Slice(all, func(i, j int) bool { return all[i].Key() < all[j].Key() })
	return all
}

// CountingRemote wraps a RemoteService and counts round trips, so
// tests can assert that lazy operations stay within their network
// budget.
type CountingRemote struct {
	inner protocol.RemoteService

	nameCalls atomic.Int64
	pathCalls atomic.Int64

	mu        sync.Mutex
	lastPaths []protocol.AncestorPath
	lastNames []model.Vertex
}

// NewCountingRemote wraps inner.
func NewCountingRemote(inner protocol.RemoteService) *CountingRemote {
	return &CountingRemote{inner: inner}
}

// ResolveNamesToPaths implements protocol.RemoteService.
func (c *CountingRemote) ResolveNamesToPaths(ctx context.Context, heads []model.Vertex, names []model.Vertex) ([]protocol.PathNames, error) {
	c.nameCalls.Add(1)
	c.mu.Lock()
	c.lastNames = append([]model.Vertex(nil), names...)
	c.mu.Unlock()
	return c.inner.ResolveNamesToPaths(ctx, heads, names)
}

// ResolvePathsToNames implements protocol.RemoteService.
func (c *CountingRemote) ResolvePathsToNames(ctx context.Context, paths []protocol.AncestorPath) ([]protocol.PathNames, error) {
	c.pathCalls.Add(1)
	c.mu.Lock()
	c.lastPaths = append([]protocol.AncestorPath(nil), paths...)
	c.mu.Unlock()
	return c.inner.ResolvePathsToNames(ctx, paths)
}

// NameCalls returns the number of ResolveNamesToPaths round trips.
func (c *CountingRemote) NameCalls() int {
	return int(c.nameCalls.Load())
}

// PathCalls returns the number of ResolvePathsToNames round trips.
func (c *CountingRemote) PathCalls() int {
	return int(c.pathCalls.Load())
}

// LastPaths returns the paths of the most recent location request.
func (c *CountingRemote) LastPaths() []protocol.AncestorPath {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPaths
}

// LastNames returns the names of the most recent name request.
func (c *CountingRemote) LastNames() []model.Vertex {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastNames
}

// Reset clears the counters and recorded requests.
func (c *CountingRemote) Reset() {
	c.nameCalls.Store(0)
	c.pathCalls.Store(0)
	c.mu.Lock()
	c.lastPaths = nil
	c.lastNames = nil
	c.mu.Unlock()
}

// Compile time check to ensure CountingRemote satisfies the RemoteService interface.
var _ protocol.RemoteService = (*CountingRemote)(nil)
