// Package types defines the wire shapes shared by the server transports and
// the client session.
//
// Events:
//   - EventUpdate: client asks for a change (`bookmarks:update`)
//   - EventSaved: originator acknowledgement (`bookmarks:saved`)
//   - EventError: originator rejection (`bookmarks:error`)
//   - EventUpdated: authoritative forest pushed to sessions (`bookmarks:updated`)
//   - EventPing, EventPong: keepalive
//
// Every websocket frame is an Envelope whose Data is decoded according to
// Event.
package types
