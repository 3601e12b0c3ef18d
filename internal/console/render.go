// ABOUTME: Renderer writing colored conversation, message, and admin views
// ABOUTME: Uses fatih/color styles; honors NO_COLOR via the color package

package console

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/opsdesk/chatdesk/internal/api"
)

var (
	headerStyle   = color.New(color.FgCyan)
	unreadStyle   = color.New(color.FgYellow, color.Bold)
	onlineStyle   = color.New(color.FgGreen)
	operatorStyle = color.New(color.FgGreen)
	clientStyle   = color.New(color.FgWhite)
	faintStyle    = color.New(color.Faint)
	errorStyle    = color.New(color.FgRed)
)

// Renderer writes views to a single output stream.
type Renderer struct {
	w io.Writer
}

// New creates a renderer writing to w.
func New(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// ConversationList prints the conversation list in display order, with
// the aggregate badge count in the header. The active conversation is
// marked with an arrow.
func (r *Renderer) ConversationList(convs []api.Conversation, activeID string, badge int) {
	headerStyle.Fprintf(r.w, "  Conversations")
	if badge > 0 {
		unreadStyle.Fprintf(r.w, "  (%d awaiting reply)", badge)
	}
	fmt.Fprintln(r.w)
	headerStyle.Fprintln(r.w, "  -------------")

	if len(convs) == 0 {
		faintStyle.Fprintln(r.w, "  no conversations")
		return
	}

	for _, c := range convs {
		marker := "  "
		if c.ID == activeID {
			marker = "> "
		}
		fmt.Fprintf(r.w, "%s%s", marker, c.ID)
		if c.CounterpartName != "" {
			fmt.Fprintf(r.w, "  %s", c.CounterpartName)
		}
		if c.Online {
			onlineStyle.Fprintf(r.w, "  online")
		}
		if c.UnreadCount > 0 {
			unreadStyle.Fprintf(r.w, "  [%d]", c.UnreadCount)
		}
		fmt.Fprintln(r.w)

		if c.Preview != nil {
			label := c.Preview.TimeAgo
			if label == "" {
				label = relativeLabel(c.Preview.CreatedAt, time.Now())
			}
			who := "client"
			if c.Preview.ByAdmin {
				who = "you"
			}
			faintStyle.Fprintf(r.w, "    %s: %s  (%s)\n", who, c.Preview.Body, label)
		}
	}
}

// Messages prints the open conversation's log in arrival order.
func (r *Renderer) Messages(msgs []api.Message) {
	if len(msgs) == 0 {
		faintStyle.Fprintln(r.w, "  no messages")
		return
	}
	for _, m := range msgs {
		style := clientStyle
		who := m.SenderID
		if m.ByAdmin {
			style = operatorStyle
			who = "you"
		}
		style.Fprintf(r.w, "  %s", who)
		faintStyle.Fprintf(r.w, "  %s\n", m.CreatedAt.Local().Format("15:04"))
		if m.Body != "" {
			fmt.Fprintf(r.w, "    %s\n", m.Body)
		}
		for _, a := range m.Attachments {
			faintStyle.Fprintf(r.w, "    attachment: %s (%s)\n", a.FileName, a.FileURL)
		}
		if m.VoiceClipURL != "" {
			faintStyle.Fprintf(r.w, "    voice clip: %s\n", m.VoiceClipURL)
		}
	}
}

// Identity prints the logged-in operator and granted capabilities.
func (r *Renderer) Identity(id api.Identity, capabilities []string) {
	headerStyle.Fprintln(r.w, "  Identity")
	headerStyle.Fprintln(r.w, "  --------")
	fmt.Fprintf(r.w, "  Name:   %s\n", id.Name)
	fmt.Fprintf(r.w, "  Email:  %s\n", id.Email)
	if id.Role != "" {
		fmt.Fprintf(r.w, "  Role:   %s\n", id.Role)
	}
	if len(capabilities) > 0 {
		fmt.Fprintf(r.w, "  Grants: ")
		for i, cap := range capabilities {
			if i > 0 {
				fmt.Fprint(r.w, ", ")
			}
			fmt.Fprint(r.w, cap)
		}
		fmt.Fprintln(r.w)
	}
}

// Dashboard prints the landing-page stat cards.
func (r *Renderer) Dashboard(stats api.DashboardStats) {
	headerStyle.Fprintln(r.w, "  Dashboard")
	headerStyle.Fprintln(r.w, "  ---------")
	fmt.Fprintf(r.w, "  Admin users:   %d\n", stats.AdminUsers)
	fmt.Fprintf(r.w, "  Client users:  %d\n", stats.ClientUsers)
}

// Users prints a managed-accounts table.
func (r *Renderer) Users(users []api.User) {
	headerStyle.Fprintln(r.w, "  Users")
	headerStyle.Fprintln(r.w, "  -----")
	if len(users) == 0 {
		faintStyle.Fprintln(r.w, "  no users")
		return
	}
	for _, u := range users {
		fmt.Fprintf(r.w, "  %-12s %-24s %-28s %s\n", u.ID, u.Name, u.Email, u.Role)
	}
}

// Banner prints the CTA banner content and its enabled state.
func (r *Renderer) Banner(b api.Banner) {
	headerStyle.Fprintln(r.w, "  Feature Banner")
	headerStyle.Fprintln(r.w, "  --------------")
	state := "disabled"
	if b.Enabled {
		state = "enabled"
	}
	fmt.Fprintf(r.w, "  Title: %s (%s)\n", b.Title, state)
	if b.Body != "" {
		fmt.Fprintf(r.w, "  Body:  %s\n", b.Body)
	}
	if b.LinkURL != "" {
		fmt.Fprintf(r.w, "  Link:  %s\n", b.LinkURL)
	}
}

// ActivityLogs prints one page of the audit trail.
func (r *Renderer) ActivityLogs(page api.ActivityLogPage) {
	headerStyle.Fprintln(r.w, "  Activity")
	headerStyle.Fprintln(r.w, "  --------")
	for _, l := range page.Logs {
		fmt.Fprintf(r.w, "  %s  %-20s %s", l.CreatedAt.Local().Format("2006-01-02 15:04"), l.Action, l.UserName)
		if l.Detail != "" {
			faintStyle.Fprintf(r.w, "  %s", l.Detail)
		}
		fmt.Fprintln(r.w)
	}
	faintStyle.Fprintf(r.w, "  page %d of %d (%d total)\n", page.Page, page.LastPage, page.Total)
}

// Error prints a user-facing failure line.
func (r *Renderer) Error(err error) {
	errorStyle.Fprintf(r.w, "Error: %v\n", err)
}

// FieldErrors prints per-field validation failures from a rejected form.
func (r *Renderer) FieldErrors(fields map[string][]string) {
	for field, msgs := range fields {
		for _, msg := range msgs {
			errorStyle.Fprintf(r.w, "  %s: %s\n", field, msg)
		}
	}
}

// relativeLabel is the fallback when the server did not send a rendered
// time_ago label.
func relativeLabel(at, now time.Time) string {
	if at.IsZero() {
		return ""
	}
	d := now.Sub(at)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
