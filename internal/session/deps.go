// ABOUTME: Dependency interfaces the session consumes
// ABOUTME: Narrow views over the REST client and the broadcast transport

package session

import (
	"context"

	"github.com/opsdesk/chatdesk/internal/api"
	"github.com/opsdesk/chatdesk/internal/realtime"
)

// ChatBackend is the subset of the REST client the session depends on.
// *api.Client satisfies it; tests substitute fakes.
type ChatBackend interface {
	ListConversations(ctx context.Context) ([]api.Conversation, error)
	FetchMessages(ctx context.Context, conversationID string) ([]api.Message, error)
	SendMessage(ctx context.Context, conversationID string, send api.SendMessageRequest) (*api.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	UnrepliedConversations(ctx context.Context) ([]string, error)
}

// Transport is the subscribe surface of the broadcast connection. The
// session owns the handle through the SubscriptionManager; no other
// component touches it. *realtime.Conn satisfies it.
type Transport interface {
	Subscribe(ctx context.Context, channel string, handler realtime.Handler) error
	Subscribed(channel string) bool
	Unsubscribe(channel string) error
	Close() error
}
