// Package protocol defines the exchange between a lazy graph and the
// service that knows the full commit graph.
//
// Locations on the wire are relative: x~n names the commit n first
// parent steps above the anchor x, so both sides can talk about
// commits without agreeing on internal ids. Anchors are chosen
// universally (heads, or merge parents) so a path resolved against one
// server is valid against any server with the same master history.
package protocol

import (
	"context"
	"fmt"

	"github.com/hupe1980/segdag/model"
)

// AncestorPath is a relative location: the commit N first-parent steps
// above the anchor X. BatchSize asks for that many consecutive
// locations (N, N+1, ...) in one answer.
type AncestorPath struct {
	X         model.Vertex `json:"x"`
	N         uint64       `json:"n"`
	BatchSize uint64       `json:"batch_size"`
}

// String returns a short x~n representation for logs.
func (p AncestorPath) String() string {
	if p.BatchSize > 1 {
		return fmt.Sprintf("%s~%d(+%d)", p.X, p.N, p.BatchSize)
	}
	return fmt.Sprintf("%s~%d", p.X, p.N)
}

// RequestNameToLocation asks for the relative locations of Names
// within the ancestry of Heads.
type RequestNameToLocation struct {
	Names []model.Vertex `json:"names"`
	Heads []model.Vertex `json:"heads"`
}

// RequestLocationToName asks for the commit names at Paths.
type RequestLocationToName struct {
	Paths []AncestorPath `json:"paths"`
}

// PathNames pairs a path with the names it resolves to. Entry i of
// Names is the commit at distance Path.N+i.
type PathNames struct {
	Path  AncestorPath   `json:"path"`
	Names []model.Vertex `json:"names"`
}

// ResponseIDNamePair carries the answers of either request direction.
type ResponseIDNamePair struct {
	PathNames []PathNames `json:"path_names"`
}

// RemoteService resolves between names and relative locations. Names
// absent from the server's graph are left out of the response rather
// than reported as errors, so callers can cache confirmed misses.
type RemoteService interface {
	ResolveNamesToPaths(ctx context.Context, heads []model.Vertex, names []model.Vertex) ([]PathNames, error)
	ResolvePathsToNames(ctx context.Context, paths []AncestorPath) ([]PathNames, error)
}

// CloneSource additionally serves complete master graph payloads for
// initial clones.
type CloneSource interface {
	ExportCloneData(ctx context.Context) (*CloneData, error)
}
