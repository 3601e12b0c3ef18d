// ABOUTME: Shared fakes for session tests
// ABOUTME: Controllable backend and transport doubles with call recording

package session

import (
	"context"
	"sync"
	"time"

	"github.com/opsdesk/chatdesk/internal/api"
	"github.com/opsdesk/chatdesk/internal/realtime"
)

// fakeBackend is a controllable ChatBackend double. Responses are set per
// field; FetchMessages can be gated on a channel to simulate slow fetches.
type fakeBackend struct {
	mu sync.Mutex

	conversations []api.Conversation
	listErr       error

	// history maps conversation id to its message log.
	history  map[string][]api.Message
	fetchErr error
	// fetchGate, when non-nil, blocks FetchMessages until it receives a
	// value; the value is ignored.
	fetchGate chan struct{}

	sendErr   error
	deleteErr error

	unreplied    []string
	unrepliedErr error

	listCalls   int
	fetchCalls  []string
	sendCalls   []sendCall
	deleteCalls []string
}

type sendCall struct {
	conversationID string
	req            api.SendMessageRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{history: make(map[string][]api.Message)}
}

func (f *fakeBackend) ListConversations(ctx context.Context) ([]api.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]api.Conversation(nil), f.conversations...), nil
}

func (f *fakeBackend) FetchMessages(ctx context.Context, conversationID string) ([]api.Message, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.fetchCalls = append(f.fetchCalls, conversationID)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]api.Message(nil), f.history[conversationID]...), nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, conversationID string, send api.SendMessageRequest) (*api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls = append(f.sendCalls, sendCall{conversationID: conversationID, req: send})
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &api.Message{ID: "server-echo", ConversationID: conversationID}, nil
}

func (f *fakeBackend) DeleteMessage(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, messageID)
	return f.deleteErr
}

func (f *fakeBackend) UnrepliedConversations(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unrepliedErr != nil {
		return nil, f.unrepliedErr
	}
	return append([]string(nil), f.unreplied...), nil
}

func (f *fakeBackend) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sendCalls)
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetchCalls)
}

// fakeTransport records subscriptions and lets tests emit events into
// registered handlers. deny lists channels whose handshake must fail.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]realtime.Handler
	deny     map[string]bool
	// subscribes counts Subscribe calls per channel, including denied
	// and duplicate attempts.
	subscribes map[string]int
	closed     bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers:   make(map[string]realtime.Handler),
		deny:       make(map[string]bool),
		subscribes: make(map[string]int),
	}
}

func (f *fakeTransport) Subscribe(ctx context.Context, channel string, handler realtime.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes[channel]++
	if f.deny[channel] {
		return context.DeadlineExceeded
	}
	f.handlers[channel] = handler
	return nil
}

func (f *fakeTransport) Subscribed(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[channel]
	return ok
}

func (f *fakeTransport) Unsubscribe(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, channel)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.handlers = make(map[string]realtime.Handler)
	return nil
}

// revoke simulates a server-side subscription_error: the handler is
// dropped without the client asking.
func (f *fakeTransport) revoke(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, channel)
}

// emit delivers an event to the channel's handler, if registered.
func (f *fakeTransport) emit(ev realtime.Event) bool {
	f.mu.Lock()
	handler := f.handlers[ev.Channel]
	f.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(ev)
	return true
}

func (f *fakeTransport) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// conv builds a conversation fixture.
func conv(id, counterpartID string, unread int) api.Conversation {
	return api.Conversation{
		ID:            id,
		CounterpartID: counterpartID,
		UnreadCount:   unread,
	}
}

// msg builds a message fixture.
func msg(id, convID, senderID, body string, at time.Time) api.Message {
	return api.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      at,
	}
}
