package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced node id is absent.
	ErrNotFound = errors.New("node not found")
	// ErrInvalidTarget is returned for structurally illegal operations such as
	// dropping into a leaf or into the dragged subtree.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrInvalidForest is returned when a forest payload is not well formed.
	ErrInvalidForest = errors.New("invalid forest")
)

func notFound(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}

func invalidTarget(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTarget, fmt.Sprintf(format, args...))
}

func invalidForest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidForest, fmt.Sprintf(format, args...))
}
