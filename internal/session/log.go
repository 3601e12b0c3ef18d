// ABOUTME: Active conversation message log: generation-guarded opens,
// ABOUTME: idempotent live inserts, guarded sends, optimistic delete with rollback

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk/chatdesk/internal/api"
	"github.com/opsdesk/chatdesk/internal/dedupe"
)

// ErrEmptyMessage is returned by Send when there is nothing to send: a
// blank body with no attachments and no voice clip. No request is issued.
var ErrEmptyMessage = errors.New("nothing to send")

// ErrNoConversation is returned by Send when no conversation is open. No
// request is issued.
var ErrNoConversation = errors.New("no conversation open")

const (
	seenTTL = 10 * time.Minute
	seenMax = 4096
)

// MessageLog owns the in-memory message sequence of the currently open
// conversation. Ordering is strictly append order; the log never reorders
// after insertion. Inserts are idempotent by message id as a safety net
// against duplicate delivery.
type MessageLog struct {
	mu      sync.RWMutex
	backend ChatBackend
	seen    *dedupe.Cache
	logger  *slog.Logger

	conversationID string
	generation     uint64
	messages       []api.Message

	// Draft state, cleared on every Open.
	attachments []api.Upload
	voice       *api.Upload
}

// NewMessageLog creates an empty log backed by the given client.
func NewMessageLog(backend ChatBackend, logger *slog.Logger) *MessageLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageLog{
		backend: backend,
		seen:    dedupe.New(seenTTL, seenMax),
		logger:  logger.With("component", "messagelog"),
	}
}

// Open switches the log to a conversation: it clears the current log and
// draft state, then fetches the full history. The fetch is the backend's
// fetch-and-mark call, so the counterpart's unseen messages are marked
// read server-side in the same round trip.
//
// Open supersedes any in-flight Open: each call bumps a generation token,
// and a fetch result whose generation is stale by completion time is
// discarded, because it targets a conversation that is no longer open.
// Live messages appended while the fetch was in flight are merged after
// the fetched history rather than lost.
func (l *MessageLog) Open(ctx context.Context, conversationID string) error {
	l.mu.Lock()
	l.generation++
	gen := l.generation
	l.conversationID = conversationID
	l.messages = nil
	l.attachments = nil
	l.voice = nil
	l.mu.Unlock()

	history, err := l.backend.FetchMessages(ctx, conversationID)

	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.generation {
		// Superseded by a later Open; this result is stale, not an error.
		l.logger.Debug("discarding superseded history fetch", "conversation_id", conversationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading history for %s: %w", conversationID, err)
	}

	fetched := make(map[string]struct{}, len(history))
	for _, msg := range history {
		fetched[msg.ID] = struct{}{}
		l.seen.Record("msg:" + msg.ID)
	}
	// Keep live arrivals that beat the fetch response and are not already
	// part of the history.
	var live []api.Message
	for _, msg := range l.messages {
		if _, dup := fetched[msg.ID]; !dup {
			live = append(live, msg)
		}
	}
	l.messages = append(history, live...)
	return nil
}

// ConversationID returns the id of the open conversation, or empty.
func (l *MessageLog) ConversationID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conversationID
}

// Messages returns a copy of the log in append order.
func (l *MessageLog) Messages() []api.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]api.Message(nil), l.messages...)
}

// AppendIncoming appends a live-pushed message if it targets the open
// conversation. Messages for other conversations are not this log's
// concern. Returns whether the message was appended; a message id seen
// before is dropped.
func (l *MessageLog) AppendIncoming(msg api.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if msg.ConversationID == "" || msg.ConversationID != l.conversationID {
		return false
	}
	if l.seen.Seen("msg:" + msg.ID) {
		l.logger.Debug("dropping duplicate message delivery", "message_id", msg.ID)
		return false
	}
	l.messages = append(l.messages, msg)
	return true
}

// StageAttachment adds a file to the pending draft.
func (l *MessageLog) StageAttachment(upload api.Upload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attachments = append(l.attachments, upload)
}

// StageVoice sets the pending voice clip, replacing any previous one.
func (l *MessageLog) StageVoice(upload api.Upload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.voice = &upload
}

// ClearDraft drops staged attachments and the voice clip.
func (l *MessageLog) ClearDraft() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attachments = nil
	l.voice = nil
}

// Send submits the body plus staged attachments and voice clip as a
// single multipart request. A whitespace-only body with nothing staged is
// rejected without any request. The HTTP response's created message is
// deliberately not appended: the authoritative echo arrives through the
// live channel, so there is a brief gap between "submitted" and
// "visible". Every send carries a fresh idempotency key so a retry after
// a network failure cannot double-submit. On failure the draft is
// restored for retry.
func (l *MessageLog) Send(ctx context.Context, body string) error {
	l.mu.Lock()
	conversationID := l.conversationID
	if conversationID == "" {
		l.mu.Unlock()
		return ErrNoConversation
	}
	attachments := l.attachments
	voice := l.voice
	if strings.TrimSpace(body) == "" && len(attachments) == 0 && voice == nil {
		l.mu.Unlock()
		return ErrEmptyMessage
	}
	l.attachments = nil
	l.voice = nil
	l.mu.Unlock()

	_, err := l.backend.SendMessage(ctx, conversationID, api.SendMessageRequest{
		Body:           body,
		Attachments:    attachments,
		Voice:          voice,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		l.mu.Lock()
		if l.conversationID == conversationID {
			l.attachments = attachments
			l.voice = voice
		}
		l.mu.Unlock()
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Remove deletes a message optimistically: it disappears from the local
// log immediately, then the delete request is issued. If the request
// fails the message is restored at its original position.
func (l *MessageLog) Remove(ctx context.Context, messageID string) error {
	l.mu.Lock()
	idx := -1
	for i, msg := range l.messages {
		if msg.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return nil
	}
	removed := l.messages[idx]
	gen := l.generation
	l.messages = append(l.messages[:idx], l.messages[idx+1:]...)
	l.mu.Unlock()

	if err := l.backend.DeleteMessage(ctx, messageID); err != nil {
		l.mu.Lock()
		if gen == l.generation {
			if idx > len(l.messages) {
				idx = len(l.messages)
			}
			l.messages = append(l.messages[:idx], append([]api.Message{removed}, l.messages[idx:]...)...)
		}
		l.mu.Unlock()
		return fmt.Errorf("deleting message %s: %w", messageID, err)
	}
	return nil
}

// Close releases the dedupe cache.
func (l *MessageLog) Close() {
	l.seen.Close()
}
