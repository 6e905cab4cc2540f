package idmap

import (
	"errors"
	"fmt"

	"github.com/hupe1980/segdag/model"
)

var (
	// ErrProgramming is returned when an internal invariant is violated.
	// It indicates a corrupted map or a bug, never bad user input.
	ErrProgramming = errors.New("programming error")
)

// ErrVertexNotFound is returned when a vertex name has no id binding.
type ErrVertexNotFound struct {
	Name model.Vertex
}

func (e *ErrVertexNotFound) Error() string {
	return fmt.Sprintf("vertex %s not found", e.Name)
}

// ErrIDNotFound is returned when an id has no name binding.
type ErrIDNotFound struct {
	ID model.Id
}

func (e *ErrIDNotFound) Error() string {
	return fmt.Sprintf("id %s not found", e.ID)
}

func errProgramming(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProgramming, fmt.Sprintf(format, args...))
}
