package iddag

import (
	"errors"
	"fmt"

	"github.com/hupe1980/segdag/model"
)

var (
	// ErrProgramming is returned when an internal invariant is violated.
	// It indicates corrupted segments or a bug, never bad user input.
	ErrProgramming = errors.New("programming error")
)

// ErrIDNotFound is returned when an id is not covered by any segment.
type ErrIDNotFound struct {
	ID model.Id
}

func (e *ErrIDNotFound) Error() string {
	return fmt.Sprintf("id %s not found", e.ID)
}

func errProgramming(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProgramming, fmt.Sprintf(format, args...))
}
