// Package session implements the realtime chat session manager: the
// state containers and reconciliation logic that keep a conversation
// list, the active conversation's message log, and a cross-conversation
// unread aggregator consistent across paginated fetches, live push
// events, and optimistic local actions.
//
// # Components
//
//   - SubscriptionManager: per-conversation and global live-event
//     subscriptions over an injected broadcast transport.
//   - ConversationList: the set of conversations with preview messages
//     and unread counters, recency-ordered.
//   - MessageLog: the append-only message sequence of the currently open
//     conversation, with generation-guarded opens and idempotent inserts.
//   - UnreadAggregator: the set of conversations awaiting an operator
//     reply, feeding the navigation badge.
//   - Session: wires the above together with the permission gate and
//     routes validated live events into the stores.
//
// All stores are safe for concurrent reads while fetches are in flight;
// no half-applied write is ever observable.
package session
