// Package http provides the REST surface of the bookmark server.
//
// Routes (mounted at the root and again under /api):
//   - GET    /bookmarks         forest as a bare array
//   - POST   /bookmarks         replace the forest
//   - PUT    /bookmarks         replace the forest
//   - DELETE /bookmarks         clear the forest
//   - POST   /bookmarks/ops     apply one structured intent
//   - GET    /bookmarks/stats   counts for the sidebar
//   - GET    /bookmarks/tags    distinct tags
//   - GET    /bookmarks/search  ?q= ?glob= ?tag=
//
// Every mutation goes through the coordinator, so HTTP writes are persisted
// before they are broadcast to websocket sessions.
//
// Errors are answered as {"success": false, "error": "...", "code": "..."}
// with 404 for unknown ids, 400 for invalid targets or payloads, 503 while
// starting or stopping and 500 for storage failures.
package http
