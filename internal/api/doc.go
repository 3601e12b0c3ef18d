// Package api implements the typed REST client for the admin-dashboard
// backend.
//
// # Overview
//
// The backend is an external collaborator: this package only encodes the
// request/response contracts the console depends on. It covers the chat
// surfaces (conversations, message log, send/delete/mark-read, unreplied
// snapshot, broadcast channel authorization) and the remaining dashboard
// surfaces (users, admins, roles, banner, activity logs).
//
// # Error taxonomy
//
// Every call maps failures into three shapes:
//
//   - ErrUnauthorized: 401 from any endpoint. Session-fatal; the caller
//     must drop to the unauthenticated state.
//   - *ValidationError: 422 with per-field messages, recovered locally.
//   - *StatusError: anything else non-2xx, carrying status and body.
//
// Transport-level failures are returned wrapped and unclassified.
package api
