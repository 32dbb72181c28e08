package client

import (
	"errors"
	"fmt"

	"github.com/wfpaisa/plane-bookmarks/internal/shared/types"
)

var (
	// ErrOffline is returned by Update while disconnected. The change was
	// applied to the local forest only and will not be sent later.
	ErrOffline = errors.New("offline: change kept locally and not sent")
	// ErrAckTimeout means the server did not acknowledge an update in time.
	ErrAckTimeout = errors.New("no acknowledgement from server")
	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("session closed")
)

// RemoteError is a change the server rejected, or a failed REST call.
type RemoteError struct {
	Code    types.Code
	Message string
	// Status is the HTTP status for REST calls, 0 over the websocket.
	Status int
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("server rejected request (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server rejected change (%s): %s", e.Code, e.Message)
}

// IsCode reports whether err is a RemoteError with the given code.
func IsCode(err error, code types.Code) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == code
}
