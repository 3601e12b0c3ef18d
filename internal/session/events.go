// ABOUTME: Parsing and validation of inbound live-event payloads
// ABOUTME: Untrusted frames become typed messages or are rejected outright

package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/opsdesk/chatdesk/internal/api"
)

// eventMessageSent is the application event carrying a new chat message.
// Servers may deliver it bare or namespaced (for example
// "App\Events\MessageSent"); matching strips the namespace.
const eventMessageSent = "MessageSent"

var validate = validator.New(validator.WithRequiredStructEnabled())

// isMessageSent reports whether the event name denotes a MessageSent
// broadcast, regardless of namespacing.
func isMessageSent(name string) bool {
	if idx := strings.LastIndexAny(name, `\.`); idx >= 0 {
		name = name[idx+1:]
	}
	return name == eventMessageSent
}

// messageEnvelope is the wire shape of a MessageSent payload. Every field
// admitted to a store is validated here first.
type messageEnvelope struct {
	ChatID  string         `json:"chat_id" validate:"required"`
	ByAdmin bool           `json:"message_by_admin"`
	Message messagePayload `json:"message" validate:"required"`
}

type messagePayload struct {
	ID           string           `json:"id" validate:"required"`
	ChatID       string           `json:"chat_id"`
	SenderID     string           `json:"sender_id" validate:"required"`
	Body         string           `json:"message"`
	Attachments  []api.Attachment `json:"attachments"`
	VoiceClipURL string           `json:"voice_message_url"`
	Read         bool             `json:"is_read"`
	CreatedAt    time.Time        `json:"created_at"`
}

// parseMessageEvent validates an untrusted MessageSent payload and
// converts it to a Message. Malformed payloads are rejected rather than
// propagated with missing fields.
func parseMessageEvent(data []byte) (api.Message, bool, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return api.Message{}, false, fmt.Errorf("decoding message event: %w", err)
	}
	if err := validate.Struct(env); err != nil {
		return api.Message{}, false, fmt.Errorf("invalid message event: %w", err)
	}

	msg := api.Message{
		ID:             env.Message.ID,
		ConversationID: env.ChatID,
		SenderID:       env.Message.SenderID,
		Body:           env.Message.Body,
		Attachments:    env.Message.Attachments,
		VoiceClipURL:   env.Message.VoiceClipURL,
		ByAdmin:        env.ByAdmin,
		Read:           env.Message.Read,
		CreatedAt:      env.Message.CreatedAt,
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	return msg, env.ByAdmin, nil
}
