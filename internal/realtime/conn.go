// ABOUTME: Websocket connection to the broadcast service with channel management
// ABOUTME: Handles handshake, per-channel auth, keepalive, and reconnect with backoff

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 30 * time.Second
	handshakeTimeout = 10 * time.Second
	maxBackoff       = 30 * time.Second
)

// ErrClosed is returned for operations on a closed connection.
var ErrClosed = errors.New("realtime: connection closed")

// Authorizer performs the one-shot per-channel authorization handshake
// with the backend: socket id and channel name in, signed grant out.
type Authorizer interface {
	Authorize(ctx context.Context, socketID, channel string) (json.RawMessage, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, socketID, channel string) (json.RawMessage, error)

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, socketID, channel string) (json.RawMessage, error) {
	return f(ctx, socketID, channel)
}

// Config locates the broadcast service.
type Config struct {
	Host   string
	Port   int
	Scheme string // "http" or "https"; selects ws or wss
	AppKey string
}

// wsURL builds the websocket endpoint for the app key.
func (c Config) wsURL() string {
	scheme := "wss"
	if c.Scheme == "http" {
		scheme = "ws"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/app/" + c.AppKey,
		RawQuery: "protocol=7&client=chatdesk&version=1",
	}
	return u.String()
}

// Conn is a live connection to the broadcast service. It is created once
// per session, owned by the subscription manager, and safe for concurrent
// use. Channel handlers survive reconnects: the connection re-authorizes
// and re-subscribes every registered channel after re-establishing the
// link.
type Conn struct {
	cfg    Config
	auth   Authorizer
	logger *slog.Logger

	mu          sync.Mutex
	ws          *websocket.Conn
	socketID    string
	handlers    map[string]Handler
	onReconnect func()
	closed      bool

	done chan struct{}
}

// Dial connects to the broadcast service and completes the connection
// handshake. The returned Conn has a running read loop and keepalive.
func Dial(ctx context.Context, cfg Config, auth Authorizer, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		cfg:      cfg,
		auth:     auth,
		logger:   logger.With("component", "realtime"),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}

	ws, socketID, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.ws = ws
	c.socketID = socketID

	go c.readLoop()
	go c.keepalive()

	c.logger.Debug("connected", "socket_id", socketID)
	return c, nil
}

// dial establishes the websocket and waits for the connection_established
// frame carrying the socket id.
func (c *Conn) dial(ctx context.Context) (*websocket.Conn, string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.wsURL(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("dialing broadcast service: %w", err)
	}

	ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			ws.Close()
			return nil, "", fmt.Errorf("waiting for connection handshake: %w", err)
		}
		if f.Event != evConnectionEstablished {
			continue
		}

		var payload struct {
			SocketID string `json:"socket_id"`
		}
		if err := json.Unmarshal(unwrapData(f.Data), &payload); err != nil || payload.SocketID == "" {
			ws.Close()
			return nil, "", fmt.Errorf("parsing connection handshake: %w", err)
		}

		ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			ws.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		return ws, payload.SocketID, nil
	}
}

// Subscribed reports whether the channel currently has a registered
// handler. The server can revoke a subscription asynchronously with a
// subscription_error frame; owners poll this to detect the revocation
// and re-establish the channel.
func (c *Conn) Subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[channel]
	return ok
}

// SocketID returns the socket id assigned by the current link.
func (c *Conn) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// SetReconnectHandler registers a hook invoked after the link is
// re-established and channels re-subscribed. The session uses it to run a
// reconciliation fetch for state pushed while the link was down.
func (c *Conn) SetReconnectHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = fn
}

// Subscribe authorizes the channel against the backend and registers the
// handler. Idempotent: subscribing an already-subscribed channel is a
// no-op. An authorization failure leaves the channel unsubscribed and
// does not affect other channels.
func (c *Conn) Subscribe(ctx context.Context, channel string, handler Handler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.handlers[channel]; ok {
		c.mu.Unlock()
		return nil
	}
	socketID := c.socketID
	c.mu.Unlock()

	grant, err := c.auth.Authorize(ctx, socketID, channel)
	if err != nil {
		return fmt.Errorf("authorizing channel %s: %w", channel, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	// Register before the subscribe frame goes out so no delivered event
	// can race past a missing handler.
	c.handlers[channel] = handler

	if err := c.writeSubscribeLocked(channel, grant); err != nil {
		delete(c.handlers, channel)
		return err
	}
	return nil
}

// writeSubscribeLocked sends the subscribe frame. Must hold mu.
func (c *Conn) writeSubscribeLocked(channel string, grant json.RawMessage) error {
	payload := map[string]json.RawMessage{}
	if len(grant) > 0 {
		if err := json.Unmarshal(grant, &payload); err != nil {
			return fmt.Errorf("parsing channel grant: %w", err)
		}
	}
	chName, _ := json.Marshal(channel)
	payload["channel"] = chName

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding subscribe frame: %w", err)
	}
	return c.writeFrameLocked(frame{Event: evSubscribe, Data: data})
}

// Unsubscribe detaches the channel handler and tells the server to stop
// delivering. The handler is removed before the frame is written, so no
// event can fire into the caller's state after Unsubscribe returns.
func (c *Conn) Unsubscribe(channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.handlers[channel]; !ok {
		return nil
	}
	delete(c.handlers, channel)

	if c.closed {
		return nil
	}
	data, _ := json.Marshal(map[string]string{"channel": channel})
	return c.writeFrameLocked(frame{Event: evUnsubscribe, Data: data})
}

// Close tears down the connection. All handlers are detached; no handler
// fires after Close returns. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.handlers = make(map[string]Handler)
	close(c.done)

	if c.ws != nil {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown"),
			time.Now().Add(writeWait))
		return c.ws.Close()
	}
	return nil
}

// writeFrameLocked writes a frame with a deadline. Must hold mu: gorilla
// connections permit one concurrent writer.
func (c *Conn) writeFrameLocked(f frame) error {
	if c.ws == nil {
		return ErrClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(f); err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Event, err)
	}
	return nil
}

// readLoop pumps frames from the websocket until Close. On a read error
// it attempts to reconnect with backoff.
func (c *Conn) readLoop() {
	for {
		c.mu.Lock()
		ws := c.ws
		closed := c.closed
		c.mu.Unlock()
		if closed || ws == nil {
			return
		}

		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Warn("connection lost, reconnecting", "error", err)
			if !c.reconnect() {
				return
			}
			continue
		}
		c.route(f)
	}
}

// route dispatches a single inbound frame.
func (c *Conn) route(f frame) {
	if f.Event == evPing {
		c.mu.Lock()
		c.writeFrameLocked(frame{Event: evPong})
		c.mu.Unlock()
		return
	}
	if f.Event == evSubscriptionError {
		c.logger.Warn("subscription rejected by server", "channel", f.Channel)
		c.mu.Lock()
		delete(c.handlers, f.Channel)
		c.mu.Unlock()
		return
	}
	if isProtocolEvent(f.Event) {
		return
	}

	c.mu.Lock()
	handler := c.handlers[f.Channel]
	c.mu.Unlock()
	if handler == nil {
		return
	}
	handler(Event{Channel: f.Channel, Name: f.Event, Data: unwrapData(f.Data)})
}

// reconnect redials with exponential backoff, re-authorizes and
// re-subscribes every registered channel, then fires the reconnect hook.
// Returns false when the connection was closed while retrying.
func (c *Conn) reconnect() bool {
	backoff := time.Second
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(backoff):
		}

		ws, socketID, err := c.dial(context.Background())
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "error", err, "backoff", backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			ws.Close()
			return false
		}
		if c.ws != nil {
			c.ws.Close()
		}
		c.ws = ws
		c.socketID = socketID

		channels := make([]string, 0, len(c.handlers))
		for ch := range c.handlers {
			channels = append(channels, ch)
		}
		hook := c.onReconnect
		c.mu.Unlock()

		c.resubscribe(channels)
		if hook != nil {
			go hook()
		}
		c.logger.Info("reconnected", "socket_id", socketID, "channels", len(channels))
		return true
	}
}

// resubscribe re-authorizes and re-subscribes channels on a fresh link.
// A channel whose authorization is now refused is dropped; the others
// proceed.
func (c *Conn) resubscribe(channels []string) {
	for _, channel := range channels {
		grant, err := c.auth.Authorize(context.Background(), c.SocketID(), channel)
		if err != nil {
			c.logger.Warn("channel authorization lost on reconnect", "channel", channel, "error", err)
			c.mu.Lock()
			delete(c.handlers, channel)
			c.mu.Unlock()
			continue
		}
		c.mu.Lock()
		if err := c.writeSubscribeLocked(channel, grant); err != nil {
			c.logger.Warn("resubscribe failed", "channel", channel, "error", err)
		}
		c.mu.Unlock()
	}
}

// keepalive sends websocket pings until Close.
func (c *Conn) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.ws != nil && !c.closed {
				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			}
			c.mu.Unlock()
		}
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
