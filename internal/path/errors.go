package path

import (
	"errors"
	"fmt"

	"github.com/roadops/operator-console/pkg/core"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the proposal's current status.
	ErrInvalidTransition = errors.New("invalid path transition")
	// ErrPointNotFound is returned when a point id is not part of the proposal.
	ErrPointNotFound = errors.New("path point not found")
	// ErrTooFewPoints is returned when submitting a draft with fewer than
	// MinPoints points.
	ErrTooFewPoints = errors.New("path has too few points")
	// ErrInvalidOutcome is returned when Resolve gets a status other than
	// accepted or rejected.
	ErrInvalidOutcome = errors.New("invalid path outcome")
)

// TransitionError describes an operation attempted from a status that does
// not allow it.
type TransitionError struct {
	Op   string
	From core.PathStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
