// ABOUTME: Wire types for the admin-dashboard backend contracts
// ABOUTME: Conversations, messages, identity, roles, banner, activity logs

package api

import "time"

// Conversation is one operator/client conversation as returned by the
// conversation list endpoint. Preview carries the denormalized most recent
// message; the full log is fetched separately.
type Conversation struct {
	ID              string    `json:"id"`
	CounterpartID   string    `json:"client_id"`
	CounterpartName string    `json:"client_name,omitempty"`
	Online          bool      `json:"is_online"`
	UnreadCount     int       `json:"unread_count"`
	LastMessageAt   time.Time `json:"last_message_at"`
	Preview         *Preview  `json:"preview_message,omitempty"`
}

// Preview is the denormalized most recent message of a conversation.
// TimeAgo is a server-rendered relative label and is treated as opaque.
type Preview struct {
	Body      string    `json:"message"`
	ByAdmin   bool      `json:"message_by_admin"`
	Read      bool      `json:"is_read"`
	TimeAgo   string    `json:"time_ago,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single chat message. Body may be empty when the message
// carries only attachments or a voice clip.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"chat_id"`
	SenderID       string       `json:"sender_id"`
	Body           string       `json:"message,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	VoiceClipURL   string       `json:"voice_message_url,omitempty"`
	ByAdmin        bool         `json:"message_by_admin"`
	Read           bool         `json:"is_read"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	MimeType string `json:"mime_type"`
}

// Upload is an outbound file payload for SendMessage. Content is opaque;
// voice clips recorded by the operator travel through the same shape.
type Upload struct {
	FileName    string
	ContentType string
	Content     []byte
}

// SendMessageRequest carries everything a single multipart send submits.
// IdempotencyKey is client-generated and sent as a header so a retry after
// a network failure cannot double-submit.
type SendMessageRequest struct {
	Body           string
	Attachments    []Upload
	Voice          *Upload
	IdempotencyKey string
}

// Identity is the authenticated operator as returned by the identity
// endpoint.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// User is a managed account row on the users/admins pages.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleOption is one entry of the role dropdown data.
type RoleOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Banner is the CTA feature banner content.
type Banner struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	LinkURL  string `json:"link_url,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// ActivityLog is one audit row from the activity-log browser.
type ActivityLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityLogQuery filters and paginates the activity-log listing.
// Zero values are omitted from the request.
type ActivityLogQuery struct {
	Search  string
	Action  string
	Page    int
	PerPage int
}

// ActivityLogPage is one page of activity-log results.
type ActivityLogPage struct {
	Logs    []ActivityLog `json:"data"`
	Page    int           `json:"current_page"`
	LastPage int          `json:"last_page"`
	Total   int           `json:"total"`
}
