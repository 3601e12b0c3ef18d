// ABOUTME: Chat endpoint contracts: conversation list, message log, send,
// ABOUTME: delete, mark-read, unreplied snapshot, broadcast channel auth

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// ListConversations fetches the authoritative conversation list snapshot,
// including nested preview messages.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := c.getJSON(ctx, "/api/chats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchMessages retrieves the full message log for a conversation. The
// backend exposes this as a fetch-and-mark PATCH: counterpart messages
// returned by this call are marked read server-side in the same round trip.
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var out []Message
	if err := c.sendJSON(ctx, http.MethodPatch, "/api/chats/"+conversationID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage submits a message as a single multipart request carrying the
// text body, attachments, and optional voice clip. The created message in
// the response is returned for completeness but callers must not install
// it into any log: the authoritative echo arrives via the live channel.
func (c *Client) SendMessage(ctx context.Context, conversationID string, send SendMessageRequest) (*Message, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if send.Body != "" {
		if err := w.WriteField("message", send.Body); err != nil {
			return nil, fmt.Errorf("encoding message field: %w", err)
		}
	}
	for _, att := range send.Attachments {
		if err := writeUploadPart(w, "attachments[]", att); err != nil {
			return nil, fmt.Errorf("encoding attachment %q: %w", att.FileName, err)
		}
	}
	if send.Voice != nil {
		if err := writeUploadPart(w, "voice_message", *send.Voice); err != nil {
			return nil, fmt.Errorf("encoding voice clip: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/chats/"+conversationID+"/messages", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if send.IdempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", send.IdempotencyKey)
	}

	var out Message
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// writeUploadPart writes one file part carrying the upload's declared
// content type, falling back to octet-stream when none was detected.
func writeUploadPart(w *multipart.Writer, field string, u Upload) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, u.FileName))
	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(u.Content)
	return err
}

// DeleteMessage removes a message. The response is status-only.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.delete(ctx, "/api/messages/"+messageID)
}

// MarkMessageRead marks a single message as read. The response is
// status-only.
func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	return c.sendJSON(ctx, http.MethodPatch, "/api/messages/"+messageID+"/read", nil, nil)
}

// UnrepliedConversations fetches the snapshot of conversation ids whose
// last message is from the counterpart and has not been answered. Seeds
// the unread aggregator at session start.
func (c *Client) UnrepliedConversations(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, "/api/chats/unreplied", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BroadcastAuth performs the one-shot per-channel authorization handshake:
// socket id and channel name in, signed grant out. The grant is opaque to
// the client and handed to the broadcast transport verbatim.
func (c *Client) BroadcastAuth(ctx context.Context, socketID, channelName string) (json.RawMessage, error) {
	in := map[string]string{
		"socket_id":    socketID,
		"channel_name": channelName,
	}
	var out json.RawMessage
	if err := c.sendJSON(ctx, http.MethodPost, "/api/broadcasting/auth", in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Capabilities fetches the operator's permission tokens. Called once at
// login; the result is cached for the session and checked synchronously
// thereafter.
func (c *Client) Capabilities(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, "/api/permissions", &out); err != nil {
		return nil, err
	}
	return out, nil
}
