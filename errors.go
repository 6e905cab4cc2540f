package segdag

import (
	"errors"
	"fmt"

	"github.com/hupe1980/segdag/iddag"
	"github.com/hupe1980/segdag/idmap"
	"github.com/hupe1980/segdag/model"
)

var (
	// ErrNotFound is returned when an id or vertex has no binding
	// anywhere: local map, overlay and (for lazy graphs) the remote.
	// It is an expected, recoverable condition.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when operating on a closed graph.
	ErrClosed = errors.New("graph is closed")

	// ErrReadOnly is returned when mutating a snapshot.
	ErrReadOnly = errors.New("graph is read-only")

	// ErrNotEmpty is returned by ImportCloneData when the graph already
	// holds assigned ids. Clone data can only seed an empty graph.
	ErrNotEmpty = errors.New("graph is not empty")

	// ErrNeedSlowPath signals that a fast incremental path cannot
	// proceed safely (for example pulled roots already exist locally)
	// and the caller must fall back to a full resync.
	ErrNeedSlowPath = errors.New("fast path cannot proceed")

	// ErrBug is returned when an internal invariant is violated:
	// missing segment coverage, a malformed server response, a
	// non-monotonic clone batch. It is never silently recovered.
	ErrBug = errors.New("bug")
)

// ErrVertexNotFound reports a vertex name with no id binding.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrVertexNotFound struct {
	Name  model.Vertex
	cause error
}

func (e *ErrVertexNotFound) Error() string {
	return fmt.Sprintf("vertex %s: %s", e.Name, ErrNotFound)
}

func (e *ErrVertexNotFound) Unwrap() error { return ErrNotFound }

// ErrIDNotFound reports an id with no name binding.
type ErrIDNotFound struct {
	ID    model.Id
	cause error
}

func (e *ErrIDNotFound) Error() string {
	return fmt.Sprintf("id %s: %s", e.ID, ErrNotFound)
}

func (e *ErrIDNotFound) Unwrap() error { return ErrNotFound }

func errBug(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBug, fmt.Sprintf(format, args...))
}

func errNeedSlowPath(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNeedSlowPath, fmt.Sprintf(format, args...))
}

// translateError maps internal package errors to the public taxonomy
// at the facade boundary.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	var vnf *idmap.ErrVertexNotFound
	if errors.As(err, &vnf) {
		return &ErrVertexNotFound{Name: vnf.Name, cause: err}
	}
	var inf *idmap.ErrIDNotFound
	if errors.As(err, &inf) {
		return &ErrIDNotFound{ID: inf.ID, cause: err}
	}
	var dnf *iddag.ErrIDNotFound
	if errors.As(err, &dnf) {
		return &ErrIDNotFound{ID: dnf.ID, cause: err}
	}

	// Invariant violations are bug class.
	if errors.Is(err, iddag.ErrProgramming) || errors.Is(err, idmap.ErrProgramming) {
		return fmt.Errorf("%w: %w", ErrBug, err)
	}

	return err
}
