// ABOUTME: Cross-conversation unread aggregator feeding the navigation badge
// ABOUTME: A set of conversations awaiting a reply, not a message counter

package session

import (
	"sort"
	"sync"
)

// UnreadAggregator tracks which conversations have a counterpart message
// that no operator has answered yet, independent of which conversation is
// open. Deliberately a set of distinct conversations, not a sum of unread
// message counts: repeated counterpart messages into one conversation
// count once.
type UnreadAggregator struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewUnreadAggregator creates an empty aggregator.
func NewUnreadAggregator() *UnreadAggregator {
	return &UnreadAggregator{ids: make(map[string]struct{})}
}

// Seed replaces the set from the backend's unreplied snapshot.
func (u *UnreadAggregator) Seed(conversationIDs []string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.ids = make(map[string]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		u.ids[id] = struct{}{}
	}
}

// MarkUnreplied records a counterpart message. Idempotent.
func (u *UnreadAggregator) MarkUnreplied(conversationID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ids[conversationID] = struct{}{}
}

// MarkReplied records an operator message, settling the conversation.
func (u *UnreadAggregator) MarkReplied(conversationID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.ids, conversationID)
}

// Count returns the number of conversations awaiting a reply.
func (u *UnreadAggregator) Count() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.ids)
}

// Contains reports whether the conversation awaits a reply.
func (u *UnreadAggregator) Contains(conversationID string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.ids[conversationID]
	return ok
}

// Snapshot returns the pending conversation ids, sorted for stable output.
func (u *UnreadAggregator) Snapshot() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make([]string, 0, len(u.ids))
	for id := range u.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
