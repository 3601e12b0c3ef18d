// ABOUTME: Session object wiring stores, subscriptions, and the permission gate
// ABOUTME: Routes validated live events and enforces capability checks on actions

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opsdesk/chatdesk/internal/api"
	"github.com/opsdesk/chatdesk/internal/perm"
	"github.com/opsdesk/chatdesk/internal/realtime"
)

// ErrDenied is returned when the permission gate does not grant the
// capability an action requires. Callers normally never see it: denied
// actions are hidden, not attempted.
var ErrDenied = errors.New("capability not granted")

// Options configure a Session. All dependencies are injected explicitly;
// there is no ambient global state.
type Options struct {
	Backend ChatBackend
	Transport Transport
	Gate    *perm.Gate
	Logger  *slog.Logger

	// OnUnauthorized fires when any backend call reports a 401. The
	// condition is session-fatal: the owner must drop to the
	// unauthenticated state.
	OnUnauthorized func()
}

// Session is one operator's realtime chat session. It owns the
// conversation list, the active message log, the unread aggregator, and
// the channel subscriptions, and is the only writer to all of them.
type Session struct {
	backend ChatBackend
	gate    *perm.Gate
	logger  *slog.Logger

	list   *ConversationList
	log    *MessageLog
	unread *UnreadAggregator
	subs   *SubscriptionManager

	onUnauthorized func()
}

// New constructs a Session from its dependencies.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session")

	return &Session{
		backend:        opts.Backend,
		gate:           opts.Gate,
		logger:         logger,
		list:           NewConversationList(opts.Backend, logger),
		log:            NewMessageLog(opts.Backend, logger),
		unread:         NewUnreadAggregator(),
		subs:           NewSubscriptionManager(opts.Transport, logger),
		onUnauthorized: opts.OnUnauthorized,
	}
}

// Start seeds the unread aggregator, loads the conversation list, and
// establishes the global plus per-conversation subscriptions. Without the
// message-view capability the chat surfaces simply do not exist: Start
// subscribes to nothing and returns nil.
func (s *Session) Start(ctx context.Context) error {
	if !s.gate.Can(perm.MessageView) {
		s.logger.Debug("message-view not granted, chat disabled")
		return nil
	}

	ids, err := s.backend.UnrepliedConversations(ctx)
	if err != nil {
		return s.fatal(fmt.Errorf("seeding unread aggregator: %w", err))
	}
	s.unread.Seed(ids)

	if err := s.subs.SubscribeGlobal(ctx, s.handleGlobalEvent); err != nil {
		// The global feed failing is degraded service, not a dead session.
		s.logger.Warn("global feed unavailable", "error", err)
	}

	if err := s.list.Load(ctx); err != nil {
		return s.fatal(err)
	}
	s.subs.Subscribe(ctx, s.list.IDs(), s.handleConversationEvent)
	return nil
}

// Refresh re-fetches the conversation list and aligns subscriptions with
// it, dropping channels for conversations that disappeared. Also used as
// the reconciliation pass after a transport reconnect.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.list.Load(ctx); err != nil {
		return s.fatal(err)
	}
	s.subs.Reconcile(ctx, s.list.IDs(), s.handleConversationEvent)
	return nil
}

// Open makes a conversation active: zeroes its unread counter and loads
// its history. The history fetch doubles as the server-side mark-read.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	if !s.gate.Can(perm.MessageView) {
		return ErrDenied
	}
	s.list.MarkActive(conversationID)
	if err := s.log.Open(ctx, conversationID); err != nil {
		return s.fatal(err)
	}
	return nil
}

// Send submits a message to the open conversation.
func (s *Session) Send(ctx context.Context, body string) error {
	if !s.gate.Can(perm.MessageSend) {
		return ErrDenied
	}
	if err := s.log.Send(ctx, body); err != nil {
		if errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrNoConversation) {
			return err
		}
		return s.fatal(err)
	}
	return nil
}

// Delete removes a message from the open conversation.
func (s *Session) Delete(ctx context.Context, messageID string) error {
	if !s.gate.Can(perm.MessageDelete) {
		return ErrDenied
	}
	if err := s.log.Remove(ctx, messageID); err != nil {
		return s.fatal(err)
	}
	return nil
}

// StageAttachment stages a file on the draft of the open conversation.
func (s *Session) StageAttachment(upload api.Upload) { s.log.StageAttachment(upload) }

// StageVoice stages a recorded voice clip on the draft.
func (s *Session) StageVoice(upload api.Upload) { s.log.StageVoice(upload) }

// Conversations returns the current conversation list snapshot.
func (s *Session) Conversations() []api.Conversation { return s.list.Snapshot() }

// Messages returns the open conversation's log snapshot.
func (s *Session) Messages() []api.Message { return s.log.Messages() }

// ActiveConversation returns the open conversation id, or empty.
func (s *Session) ActiveConversation() string { return s.list.ActiveID() }

// UnreadConversations returns the navigation badge count: the number of
// distinct conversations awaiting an operator reply.
func (s *Session) UnreadConversations() int { return s.unread.Count() }

// Gate exposes the permission gate for the rendering layer.
func (s *Session) Gate() *perm.Gate { return s.gate }

// Close tears down every subscription and the transport, and releases
// log resources. It runs on every exit path: navigation away, logout, or
// permission revocation.
func (s *Session) Close() error {
	err := s.subs.Close()
	s.log.Close()
	return err
}

// handleConversationEvent routes a per-conversation live event: the
// payload is validated, appended to the log when the conversation is
// open, and folded into the list's preview and unread state.
func (s *Session) handleConversationEvent(conversationID string, ev realtime.Event) {
	if !isMessageSent(ev.Name) {
		return
	}
	msg, _, err := parseMessageEvent(ev.Data)
	if err != nil {
		s.logger.Warn("rejecting malformed live event", "channel", ev.Channel, "error", err)
		return
	}
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}

	s.log.AppendIncoming(msg)
	s.list.ApplyIncoming(msg)
}

// handleGlobalEvent feeds the unread aggregator from the global channel:
// counterpart messages mark a conversation unreplied, operator messages
// settle it.
func (s *Session) handleGlobalEvent(ev realtime.Event) {
	if !isMessageSent(ev.Name) {
		return
	}
	msg, byAdmin, err := parseMessageEvent(ev.Data)
	if err != nil {
		s.logger.Warn("rejecting malformed global event", "error", err)
		return
	}

	if byAdmin {
		s.unread.MarkReplied(msg.ConversationID)
	} else {
		s.unread.MarkUnreplied(msg.ConversationID)
	}
}

// fatal inspects an error for the session-fatal 401 condition and fires
// the unauthorized hook once detected.
func (s *Session) fatal(err error) error {
	if errors.Is(err, api.ErrUnauthorized) && s.onUnauthorized != nil {
		s.onUnauthorized()
	}
	return err
}
