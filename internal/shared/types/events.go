package types

import (
	"encoding/json"
)

// Event names carried in Envelope.Event.
const (
	EventUpdate  = "bookmarks:update"
	EventSaved   = "bookmarks:saved"
	EventError   = "bookmarks:error"
	EventUpdated = "bookmarks:updated"
	EventPing    = "ping"
	EventPong    = "pong"
)

// Envelope is one websocket frame.
type Envelope struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Code classifies a rejected change for clients.
type Code string

const (
	CodeNotFound      Code = "not_found"
	CodeInvalidTarget Code = "invalid_target"
	CodeInvalidForest Code = "invalid_forest"
	CodeBadRequest    Code = "bad_request"
	CodeIO            Code = "io_error"
	CodeUnavailable   Code = "unavailable"
	CodeInternal      Code = "internal"
)

// Saved acknowledges a persisted change to its originator. ID is set when
// the change created a node.
type Saved struct {
	Success  bool   `json:"success"`
	Revision uint64 `json:"revision"`
	ID       string `json:"id,omitempty"`
}

// Failure rejects a change. The authoritative forest is unchanged.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    Code   `json:"code"`
}

// Updated carries the authoritative forest after a change.
type Updated struct {
	Revision uint64          `json:"revision"`
	Data     json.RawMessage `json:"data"`
}
