package coordinator

import (
	"context"
	"errors"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/monitoring"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/storage"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/types"
)

var (
	// ErrNotReady is returned before Start has loaded the forest.
	ErrNotReady = errors.New("coordinator not ready")
	// ErrShuttingDown is returned once Stop has been called.
	ErrShuttingDown = errors.New("coordinator shutting down")
	// ErrBadIntent means the payload could not be understood as an intent.
	ErrBadIntent = errors.New("bad intent")
)

// CodeOf classifies err for clients.
func CodeOf(err error) types.Code {
	switch {
	case errors.Is(err, tree.ErrNotFound):
		return types.CodeNotFound
	case errors.Is(err, tree.ErrInvalidTarget):
		return types.CodeInvalidTarget
	case errors.Is(err, tree.ErrInvalidForest):
		return types.CodeInvalidForest
	case errors.Is(err, ErrBadIntent):
		return types.CodeBadRequest
	case errors.Is(err, storage.ErrIO), errors.Is(err, storage.ErrCorrupt):
		return types.CodeIO
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrShuttingDown),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.CodeUnavailable
	default:
		return types.CodeInternal
	}
}

// outcome maps err to a metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return monitoring.OutcomeApplied
	case errors.Is(err, storage.ErrIO):
		return monitoring.OutcomeIOError
	default:
		return monitoring.OutcomeRejected
	}
}
