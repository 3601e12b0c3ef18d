// ABOUTME: End-to-end session tests over fake backend and transport
// ABOUTME: Event routing, capability gating, and the session-fatal 401 hook

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/chatdesk/internal/api"
	"github.com/opsdesk/chatdesk/internal/perm"
	"github.com/opsdesk/chatdesk/internal/realtime"
)

func fullGate() *perm.Gate {
	return perm.NewGate([]string{perm.MessageView, perm.MessageSend, perm.MessageDelete})
}

// messageSentEvent builds a live MessageSent frame the way the backend
// broadcasts it.
func messageSentEvent(t *testing.T, channel, convID, senderID, body string, byAdmin bool) realtime.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"chat_id":          convID,
		"message_by_admin": byAdmin,
		"message": map[string]any{
			"id":         fmt.Sprintf("ev-%s-%d", convID, time.Now().UnixNano()),
			"chat_id":    convID,
			"sender_id":  senderID,
			"message":    body,
			"created_at": time.Now().Format(time.RFC3339Nano),
		},
	})
	require.NoError(t, err)
	return realtime.Event{Channel: channel, Name: `App\Events\MessageSent`, Data: payload}
}

func TestSessionStartEstablishesChannels(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = []api.Conversation{conv("1", "c1", 0), conv("2", "c2", 0)}
	backend.unreplied = []string{"2"}
	transport := newFakeTransport()

	sess := New(Options{Backend: backend, Transport: transport, Gate: fullGate()})
	defer sess.Close()
	require.NoError(t, sess.Start(context.Background()))

	transport.mu.Lock()
	assert.Equal(t, 1, transport.subscribes["chat.messagesent.global"])
	assert.Equal(t, 1, transport.subscribes["chat.messages.1"])
	assert.Equal(t, 1, transport.subscribes["chat.messages.2"])
	transport.mu.Unlock()

	assert.Equal(t, 1, sess.UnreadConversations())
	assert.Len(t, sess.Conversations(), 2)
}

func TestSessionLiveMessageFlowsIntoListAndLog(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = []api.Conversation{conv("1", "c1", 0), conv("2", "c2", 0)}
	transport := newFakeTransport()

	sess := New(Options{Backend: backend, Transport: transport, Gate: fullGate()})
	defer sess.Close()
	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, sess.Open(context.Background(), "1"))

	// Counterpart message into the open conversation: appended to the
	// log, preview updated, counter stays at zero.
	transport.emit(messageSentEvent(t, "chat.messages.1", "1", "c1", "hello there", false))
	require.Len(t, sess.Messages(), 1)
	got, _ := sess.list.Get("1")
	assert.Equal(t, 0, got.UnreadCount)
	assert.Equal(t, "hello there", got.Preview.Body)

	// Counterpart message into the other conversation: counted unread,
	// not appended to the open log.
	transport.emit(messageSentEvent(t, "chat.messages.2", "2", "c2", "anyone?", false))
	assert.Len(t, sess.Messages(), 1)
	got, _ = sess.list.Get("2")
	assert.Equal(t, 1, got.UnreadCount)
	assert.Equal(t, []string{"2", "1"}, sess.list.IDs())
}

func TestSessionOpeningConversationClearsItsCounter(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = []api.Conversation{conv("1", "c1", 0)}
	transport := newFakeTransport()

	sess := New(Options{Backend: backend, Transport: transport, Gate: fullGate()})
	defer sess.Close()
	require.NoError(t, sess.Start(context.Background()))

	transport.emit(messageSentEvent(t, "chat.messages.1", "1", "c1", "hello", false))
	got, _ := sess.list.Get("1")
	require.Equal(t, 1, got.UnreadCount)

	require.NoError(t, sess.Open(context.Background(), "1"))
	got, _ = sess.list.Get("1")
	assert.Equal(t, 0, got.UnreadCount)
	assert.Equal(t, []string{"1"}, backend.fetchCalls, "opening fetches and marks history read")
}

func TestSessionGlobalFeedDrivesBadge(t *testing.T) {
	backend := newFakeBackend()
	backend.unreplied = []string{"7", "9"}
	transport := newFakeTransport()

	sess := New(Options{Backend: backend, Transport: transport, Gate: fullGate()})
	defer sess.Close()
	require.NoError(t, sess.Start(context.Background()))
	require.Equal(t, 2, sess.UnreadConversations())

	// An operator anywhere replies to 7; a client pings a brand-new 11.
	transport.emit(messageSentEvent(t, "chat.messagesent.global", "7", "op-1", "answered", true))
	transport.emit(messageSentEvent(t, "chat.messagesent.global", "11", "c11", "hi", false))

	assert.Equal(t, 2, sess.UnreadConversations())
	assert.Equal(t, []string{"11", "9"}, sess.unread.Snapshot())
}

func TestSessionRejectsMalformedEvents(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = []api.Conversation{conv("1", "c1", 0)}
	transport := newFakeTransport()

	sess := New(Options{Backend: backend, Transport: transport, Gate: fullGate()})
	defer sess.Close()
	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, sess.Open(context.Background(), "1"))

	for _, data := range []string{
		`not json`,
		`{}`,
		`{"chat_id":"1"}`,
		`{"chat_id":"1","message":{"id":"x"}}`,
	} {
		transport.emit(realtime.Event{Channel: "chat.messages.1", Name: "MessageSent", Data: json.RawMessage(data)})
	}

	assert.Empty(t, sess.Messages())
	got, _ := sess.list.Get("1")
	assert.Equal(t, 0, got.UnreadCount)
}

func TestSessionIgnoresUnrelatedEventNames(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = []api.Conversation{conv("1", "c1", 0)}
	transport := newFakeTransport()

	sess := New(Options{Backend: backend, Transport: transport, Gate: fullGate()})
	defer sess.Close()
	require.NoError(t, sess.Start(context.Background()))

	ev := messageSentEvent(t, "chat.messages.1", "1", "c1", "typing", false)
	ev.Name = `App\Events\UserTyping`
	transport.emit(ev)

	got, _ := sess.list.Get("1")
	assert.Equal(t, 0, got.UnreadCount)
}

func TestSessionWithoutMessageViewDoesNothing(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = []api.Conversation{conv("1", "c1", 0)}
	transport := newFakeTransport()

	sess := New(Options{Backend: backend, Transport: transport, Gate: perm.NewGate(nil)})
	defer sess.Close()
	require.NoError(t, sess.Start(context.Background()))

	assert.Equal(t, 0, backend.listCalls)
	assert.Equal(t, 0, transport.handlerCount())

	require.ErrorIs(t, sess.Open(context.Background(), "1"), ErrDenied)
	require.ErrorIs(t, sess.Send(context.Background(), "hi"), ErrDenied)
	require.ErrorIs(t, sess.Delete(context.Background(), "m1"), ErrDenied)
	assert.Equal(t, 0, backend.sendCount())
}

func TestSessionSendRequiresSendCapability(t *testing.T) {
	backend := newFakeBackend()
	transport := newFakeTransport()
	gate := perm.NewGate([]string{perm.MessageView})

	sess := New(Options{Backend: backend, Transport: transport, Gate: gate})
	defer sess.Close()
	require.NoError(t, sess.Start(context.Background()))

	require.ErrorIs(t, sess.Send(context.Background(), "hi"), ErrDenied)
	assert.Equal(t, 0, backend.sendCount(), "a denied action issues no request")
}

func TestSessionUnauthorizedHookFires(t *testing.T) {
	backend := newFakeBackend()
	backend.unrepliedErr = fmt.Errorf("GET /api/chats/unreplied: %w", api.ErrUnauthorized)
	transport := newFakeTransport()

	var fired bool
	sess := New(Options{
		Backend:        backend,
		Transport:      transport,
		Gate:           fullGate(),
		OnUnauthorized: func() { fired = true },
	})
	defer sess.Close()

	err := sess.Start(context.Background())
	require.ErrorIs(t, err, api.ErrUnauthorized)
	assert.True(t, fired, "a 401 anywhere must drop the session")
}

func TestSessionRefreshReconcilesSubscriptions(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = []api.Conversation{conv("1", "c1", 0), conv("2", "c2", 0)}
	transport := newFakeTransport()

	sess := New(Options{Backend: backend, Transport: transport, Gate: fullGate()})
	defer sess.Close()
	require.NoError(t, sess.Start(context.Background()))

	backend.mu.Lock()
	backend.conversations = []api.Conversation{conv("2", "c2", 0), conv("3", "c3", 0)}
	backend.mu.Unlock()
	require.NoError(t, sess.Refresh(context.Background()))

	assert.False(t, sess.subs.IsSubscribed("1"))
	assert.True(t, sess.subs.IsSubscribed("2"))
	assert.True(t, sess.subs.IsSubscribed("3"))
}
