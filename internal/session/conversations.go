// ABOUTME: Conversation list store: previews, unread counters, recency order
// ABOUTME: Reconciles authoritative load snapshots against fresher live updates

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opsdesk/chatdesk/internal/api"
)

// ConversationList holds the set of conversations, most recently touched
// first. It owns only the denormalized preview message per conversation;
// the full log of the open conversation belongs to MessageLog.
type ConversationList struct {
	mu       sync.RWMutex
	backend  ChatBackend
	logger   *slog.Logger
	order    []string
	byID     map[string]*api.Conversation
	activeID string
}

// NewConversationList creates an empty list backed by the given client.
func NewConversationList(backend ChatBackend, logger *slog.Logger) *ConversationList {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationList{
		backend: backend,
		logger:  logger.With("component", "conversations"),
		byID:    make(map[string]*api.Conversation),
	}
}

// Load replaces the list with an authoritative backend snapshot. A
// locally applied preview that is strictly newer than the fetched one is
// kept, together with its unread count: a fetch initiated before a live
// event must not silently overwrite the newer state. Resolution is by
// preview timestamp, never by call order.
func (l *ConversationList) Load(ctx context.Context) error {
	fetched, err := l.backend.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	order := make([]string, 0, len(fetched))
	byID := make(map[string]*api.Conversation, len(fetched))
	for i := range fetched {
		conv := fetched[i]
		if local, ok := l.byID[conv.ID]; ok && previewNewer(local.Preview, conv.Preview) {
			conv.Preview = local.Preview
			conv.UnreadCount = local.UnreadCount
			conv.LastMessageAt = local.LastMessageAt
		}
		if conv.ID == l.activeID {
			conv.UnreadCount = 0
		}
		byID[conv.ID] = &conv
		order = append(order, conv.ID)
	}

	l.order = order
	l.byID = byID
	return nil
}

// previewNewer reports whether local carries a strictly newer message
// than fetched.
func previewNewer(local, fetched *api.Preview) bool {
	if local == nil {
		return false
	}
	if fetched == nil {
		return true
	}
	return local.CreatedAt.After(fetched.CreatedAt)
}

// ApplyIncoming updates a conversation from a live-pushed message. A
// message for an unknown conversation is ignored (not yet loaded;
// acceptable staleness until the next Load). The unread counter grows by
// one only when the sender is the counterpart and the conversation is not
// the active one; operator-authored messages, including ones from another
// concurrent session, never increment it.
func (l *ConversationList) ApplyIncoming(msg api.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	conv, ok := l.byID[msg.ConversationID]
	if !ok {
		l.logger.Debug("ignoring message for unknown conversation", "conversation_id", msg.ConversationID)
		return false
	}

	conv.Preview = &api.Preview{
		Body:      msg.Body,
		ByAdmin:   msg.ByAdmin,
		Read:      msg.Read,
		CreatedAt: msg.CreatedAt,
	}
	conv.LastMessageAt = msg.CreatedAt

	if msg.SenderID == conv.CounterpartID && conv.ID != l.activeID {
		conv.UnreadCount++
	}

	l.moveToFront(conv.ID)
	return true
}

// MarkActive records the open conversation and zeroes its unread counter.
// This is the only client-side path that clears the counter; the
// server-side read-state mutation is a separate contract performed by the
// message log's fetch-and-mark.
func (l *ConversationList) MarkActive(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.activeID = conversationID
	if conv, ok := l.byID[conversationID]; ok {
		conv.UnreadCount = 0
	}
}

// ClearActive forgets the active conversation, e.g. when the chat view
// closes while the session stays up.
func (l *ConversationList) ClearActive() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeID = ""
}

// ActiveID returns the currently active conversation id, or empty.
func (l *ConversationList) ActiveID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.activeID
}

// Get returns a copy of one conversation.
func (l *ConversationList) Get(conversationID string) (api.Conversation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	conv, ok := l.byID[conversationID]
	if !ok {
		return api.Conversation{}, false
	}
	return *conv, true
}

// Snapshot returns copies of all conversations in display order. Safe to
// call mid-fetch; a snapshot never exposes a half-applied write.
func (l *ConversationList) Snapshot() []api.Conversation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]api.Conversation, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.byID[id])
	}
	return out
}

// IDs returns the conversation ids in display order.
func (l *ConversationList) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// moveToFront must be called with mu held.
func (l *ConversationList) moveToFront(conversationID string) {
	for i, id := range l.order {
		if id == conversationID {
			copy(l.order[1:i+1], l.order[:i])
			l.order[0] = conversationID
			return
		}
	}
}
