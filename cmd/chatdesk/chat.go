// ABOUTME: Interactive realtime chat loop for the operator console
// ABOUTME: Slash commands over a live session; plain input sends to the open conversation

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/opsdesk/chatdesk/internal/api"
	"github.com/opsdesk/chatdesk/internal/perm"
	"github.com/opsdesk/chatdesk/internal/session"
)

func (a *app) cmdChat(ctx context.Context) error {
	gate, err := a.gate(ctx)
	if err != nil {
		return err
	}
	if !gate.Can(perm.MessageView) {
		return errors.New("your role has no chat access")
	}

	conn, err := a.dialRealtime(ctx)
	if err != nil {
		return fmt.Errorf("connecting to broadcast service: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := session.New(session.Options{
		Backend:   a.client,
		Transport: conn,
		Gate:      gate,
		Logger:    a.logger,
		OnUnauthorized: func() {
			color.Red("Session expired, run login again.\n")
			cancel()
		},
	})
	defer sess.Close()

	// After a transport reconnect the list may have drifted; re-fetch and
	// realign subscriptions.
	conn.SetReconnectHandler(func() {
		if err := sess.Refresh(context.Background()); err != nil {
			a.logger.Warn("post-reconnect refresh failed", "error", err)
		}
	})

	if err := sess.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("Connected to %s\n", a.cfg.Backend.BaseURL)
	fmt.Println("Type a message to send to the open conversation. /help for commands.")
	fmt.Println()
	a.render.ConversationList(sess.Conversations(), sess.ActiveConversation(), sess.UnreadConversations())

	return a.chatLoop(ctx, sess)
}

func (a *app) chatLoop(ctx context.Context, sess *session.Session) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if active := sess.ActiveConversation(); active != "" {
			fmt.Printf("[%s]> ", active)
		} else {
			fmt.Print("> ")
		}

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if err := a.dispatch(ctx, sess, input); err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				return err
			}
			color.Red("[error] %v\n", err)
		}
		fmt.Println()
	}
}

func (a *app) dispatch(ctx context.Context, sess *session.Session, input string) error {
	if !strings.HasPrefix(input, "/") {
		return a.sendBody(ctx, sess, input)
	}

	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/list":
		a.render.ConversationList(sess.Conversations(), sess.ActiveConversation(), sess.UnreadConversations())
	case "/open":
		if args == "" {
			return errors.New("usage: /open <conversation-id>")
		}
		if err := sess.Open(ctx, args); err != nil {
			return err
		}
		a.render.Messages(sess.Messages())
	case "/messages":
		a.render.Messages(sess.Messages())
	case "/attach":
		if args == "" {
			return errors.New("usage: /attach <path>")
		}
		upload, err := readUpload(args)
		if err != nil {
			return err
		}
		sess.StageAttachment(upload)
		fmt.Printf("Staged %s, will be sent with the next message.\n", upload.FileName)
	case "/voice":
		if args == "" {
			return errors.New("usage: /voice <path>")
		}
		upload, err := readUpload(args)
		if err != nil {
			return err
		}
		sess.StageVoice(upload)
		fmt.Printf("Staged voice clip %s.\n", upload.FileName)
	case "/send":
		return a.sendBody(ctx, sess, args)
	case "/delete":
		if args == "" {
			return errors.New("usage: /delete <message-id>")
		}
		if err := sess.Delete(ctx, args); err != nil {
			return err
		}
		a.render.Messages(sess.Messages())
	case "/refresh":
		if err := sess.Refresh(ctx); err != nil {
			return err
		}
		a.render.ConversationList(sess.Conversations(), sess.ActiveConversation(), sess.UnreadConversations())
	case "/help":
		printChatHelp(sess.Gate())
	default:
		return fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return nil
}

func (a *app) sendBody(ctx context.Context, sess *session.Session, body string) error {
	if sess.ActiveConversation() == "" {
		return errors.New("no conversation open, use /open <id> first")
	}
	err := sess.Send(ctx, body)
	if errors.Is(err, session.ErrEmptyMessage) {
		return errors.New("nothing to send")
	}
	if errors.Is(err, session.ErrNoConversation) {
		return errors.New("no conversation open, use /open <id> first")
	}
	if errors.Is(err, session.ErrDenied) {
		return errors.New("your role cannot send messages")
	}
	return err
}

// printChatHelp lists only the commands the operator can actually use;
// denied actions are absent, not greyed out.
func printChatHelp(gate *perm.Gate) {
	fmt.Println("Commands:")
	fmt.Println("  /list            Show the conversation list")
	fmt.Println("  /open <id>       Open a conversation and mark it read")
	fmt.Println("  /messages        Reprint the open conversation")
	if gate.Can(perm.MessageSend) {
		fmt.Println("  /send <text>     Send to the open conversation")
		fmt.Println("  /attach <path>   Stage a file for the next message")
		fmt.Println("  /voice <path>    Stage a voice clip for the next message")
	}
	if gate.Can(perm.MessageDelete) {
		fmt.Println("  /delete <id>     Delete a message")
	}
	fmt.Println("  /refresh         Re-fetch the conversation list")
	fmt.Println("  /quit            Exit the chat console")
}

func readUpload(path string) (api.Upload, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return api.Upload{}, fmt.Errorf("reading %s: %w", path, err)
	}
	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return api.Upload{FileName: name, ContentType: contentType, Content: content}, nil
}
