// Package realtime implements the subscriber side of the broadcast
// service: a single websocket connection speaking the pusher wire
// protocol, with per-channel authorization handshakes performed against
// the backend before events are delivered.
//
// The connection is a process-wide resource created once per session and
// owned by whoever dialed it. Disconnects are retried internally with
// backoff; existing channel subscriptions are re-established after a
// reconnect, and an optional reconnect hook lets the owner reconcile
// state fetched while the link was down.
package realtime
