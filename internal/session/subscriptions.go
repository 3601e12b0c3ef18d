// ABOUTME: Channel subscription manager over the broadcast transport
// ABOUTME: Idempotent subscribes, isolated auth failures, scoped teardown

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opsdesk/chatdesk/internal/realtime"
)

// Channel naming convention of the backend: one channel per conversation
// plus one global feed for cross-conversation unread tracking.
const (
	conversationChannelPrefix = "chat.messages."
	globalChannel             = "chat.messagesent.global"
)

// conversationChannel returns the live channel name for a conversation.
func conversationChannel(conversationID string) string {
	return conversationChannelPrefix + conversationID
}

// ConversationHandler receives live events for one conversation.
type ConversationHandler func(conversationID string, ev realtime.Event)

// SubscriptionManager owns the broadcast connection for a session and
// tracks which conversation channels are established. A failed channel
// handshake marks that conversation unauthorized and suppresses its
// events without aborting the others.
type SubscriptionManager struct {
	mu           sync.Mutex
	transport    Transport
	logger       *slog.Logger
	subscribed   map[string]struct{}
	unauthorized map[string]struct{}
	globalOn     bool
}

// NewSubscriptionManager wraps the transport. The manager takes exclusive
// ownership: Close tears down every subscription and the connection.
func NewSubscriptionManager(transport Transport, logger *slog.Logger) *SubscriptionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionManager{
		transport:    transport,
		logger:       logger.With("component", "subscriptions"),
		subscribed:   make(map[string]struct{}),
		unauthorized: make(map[string]struct{}),
	}
}

// Subscribe establishes one live channel per conversation id. Idempotent:
// ids already subscribed are skipped. A handshake failure is logged,
// marks the id unauthorized, and does not affect other ids.
func (m *SubscriptionManager) Subscribe(ctx context.Context, conversationIDs []string, handler ConversationHandler) {
	for _, id := range conversationIDs {
		m.mu.Lock()
		if _, ok := m.subscribed[id]; ok {
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		id := id
		err := m.transport.Subscribe(ctx, conversationChannel(id), func(ev realtime.Event) {
			handler(id, ev)
		})

		m.mu.Lock()
		if err != nil {
			m.unauthorized[id] = struct{}{}
			m.logger.Warn("conversation channel unauthorized", "conversation_id", id, "error", err)
		} else {
			m.subscribed[id] = struct{}{}
			delete(m.unauthorized, id)
		}
		m.mu.Unlock()
	}
}

// SubscribeGlobal establishes the global feed used by the unread
// aggregator.
func (m *SubscriptionManager) SubscribeGlobal(ctx context.Context, handler realtime.Handler) error {
	m.mu.Lock()
	if m.globalOn {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.transport.Subscribe(ctx, globalChannel, handler); err != nil {
		return fmt.Errorf("subscribing global feed: %w", err)
	}

	m.mu.Lock()
	m.globalOn = true
	m.mu.Unlock()
	return nil
}

// Unsubscribe detaches a conversation's channel. The transport removes
// the handler before any later subscribe can reuse the slot, so a stale
// handler can never write into a new conversation's state.
func (m *SubscriptionManager) Unsubscribe(conversationID string) {
	m.mu.Lock()
	_, ok := m.subscribed[conversationID]
	delete(m.subscribed, conversationID)
	delete(m.unauthorized, conversationID)
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := m.transport.Unsubscribe(conversationChannel(conversationID)); err != nil {
		m.logger.Warn("unsubscribe failed", "conversation_id", conversationID, "error", err)
	}
}

// Reconcile aligns subscriptions with a refreshed conversation list:
// ids that disappeared are unsubscribed, new ids are subscribed. Channels
// the server revoked asynchronously since the last pass are detected here
// and re-established.
func (m *SubscriptionManager) Reconcile(ctx context.Context, conversationIDs []string, handler ConversationHandler) {
	desired := make(map[string]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		desired[id] = struct{}{}
	}

	m.mu.Lock()
	for id := range m.subscribed {
		if !m.transport.Subscribed(conversationChannel(id)) {
			delete(m.subscribed, id)
			m.logger.Warn("conversation channel revoked by server", "conversation_id", id)
		}
	}
	var stale []string
	for id := range m.subscribed {
		if _, keep := desired[id]; !keep {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.Unsubscribe(id)
	}
	m.Subscribe(ctx, conversationIDs, handler)
}

// TeardownAll detaches every subscription, including the global feed.
// It runs on every exit path of the owning session so no subscription
// outlives its owner.
func (m *SubscriptionManager) TeardownAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.subscribed))
	for id := range m.subscribed {
		ids = append(ids, id)
	}
	m.subscribed = make(map[string]struct{})
	m.unauthorized = make(map[string]struct{})
	globalOn := m.globalOn
	m.globalOn = false
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.transport.Unsubscribe(conversationChannel(id)); err != nil {
			m.logger.Warn("teardown unsubscribe failed", "conversation_id", id, "error", err)
		}
	}
	if globalOn {
		if err := m.transport.Unsubscribe(globalChannel); err != nil {
			m.logger.Warn("teardown unsubscribe failed", "channel", globalChannel, "error", err)
		}
	}
}

// Close tears down all subscriptions and closes the connection handle.
func (m *SubscriptionManager) Close() error {
	m.TeardownAll()
	return m.transport.Close()
}

// IsSubscribed reports whether the conversation's channel is established.
func (m *SubscriptionManager) IsSubscribed(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subscribed[conversationID]
	return ok
}

// IsUnauthorized reports whether the conversation's handshake was refused.
func (m *SubscriptionManager) IsUnauthorized(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.unauthorized[conversationID]
	return ok
}
