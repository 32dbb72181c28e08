// Package client talks to the bookmark server.
//
// Two clients are provided:
//   - Session: a websocket replica of the forest with optimistic updates
//   - REST: request/response access via the HTTP endpoints
//
// Session Reconciliation:
//
//	confirmed  last forest known to be authoritative, at Revision()
//	acked      changes the server accepted whose base forest has not arrived
//	in flight  changes sent and not yet answered
//
// Forest() is confirmed + acked + in flight. A server forest replaces it
// wholesale; changes still in flight then show up again only once they are
// acknowledged. A rejected change is dropped and the forest recomputed. While disconnected, changes are applied locally and
// Update returns ErrOffline; the snapshot received on reconnect replaces them.
//
// Example Usage:
//
//	s, err := client.Dial(ctx, client.Options{URL: "ws://localhost:3001/ws"})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	res, err := s.Update(ctx, coordinator.Intent{Op: coordinator.OpInsert, Kind: "folder"})
package client
