package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// phoenix wire events.
const (
	evtJoin      = "phx_join"
	evtReply     = "phx_reply"
	evtError     = "phx_error"
	evtClose     = "phx_close"
	evtHeartbeat = "heartbeat"
	evtChanges   = "postgres_changes"
)

// socketMessage is the phoenix-framed envelope both directions use.
type socketMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// SocketFactory opens phoenix-style websocket channels that deliver
// row-level change notifications for a table.
type SocketFactory struct {
	endpoint  string
	apiKey    string
	dialer    *websocket.Dialer
	heartbeat time.Duration
	logger    *slog.Logger

	mu          sync.Mutex
	accessToken string
}

// SocketOption configures a SocketFactory.
type SocketOption func(*SocketFactory)

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) SocketOption {
	return func(f *SocketFactory) { f.dialer = d }
}

// WithHeartbeat sets the heartbeat interval. The server drops channels that
// miss heartbeats, so this should stay well under the server's timeout.
func WithHeartbeat(d time.Duration) SocketOption {
	return func(f *SocketFactory) { f.heartbeat = d }
}

// WithSocketLogger sets the diagnostics logger.
func WithSocketLogger(logger *slog.Logger) SocketOption {
	return func(f *SocketFactory) { f.logger = logger }
}

// NewSocketFactory creates a factory dialing the given websocket endpoint,
// e.g. wss://db.example.com/realtime/v1/websocket.
func NewSocketFactory(endpoint, apiKey string, opts ...SocketOption) *SocketFactory {
	f := &SocketFactory{
		endpoint:  endpoint,
		apiKey:    apiKey,
		dialer:    websocket.DefaultDialer,
		heartbeat: 25 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetAccessToken attaches the downstream session's access token to future
// channel joins, so row-level security applies to the subscribed user.
func (f *SocketFactory) SetAccessToken(token string) {
	f.mu.Lock()
	f.accessToken = token
	f.mu.Unlock()
}

// Open dials the socket and joins the change-events topic for table. Each
// call owns its own connection; closing the returned channel releases it.
func (f *SocketFactory) Open(ctx context.Context, table, filter string) (Channel, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.endpoint+"?vsn=1.0.0&apikey="+f.apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	topic := "realtime:public:" + table
	ch := &socketChannel{
		conn:     conn,
		topic:    topic,
		joinRef:  uuid.NewString(),
		logger:   f.logger,
		events:   make(chan ChangeEvent, 16),
		statuses: make(chan ChannelStatus, 4),
		quit:     make(chan struct{}),
	}

	change := map[string]any{"event": "*", "schema": "public", "table": table}
	if filter != "" {
		change["filter"] = filter
	}
	f.mu.Lock()
	token := f.accessToken
	f.mu.Unlock()
	joinPayload := map[string]any{
		"config": map[string]any{"postgres_changes": []any{change}},
	}
	if token != "" {
		joinPayload["access_token"] = token
	}
	if err := ch.send(evtJoin, joinPayload, ch.joinRef); err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime: join %s: %w", topic, err)
	}

	go ch.readLoop()
	go ch.heartbeatLoop(f.heartbeat)
	return ch, nil
}

var _ ChannelFactory = (*SocketFactory)(nil)

// socketChannel is one live websocket subscription.
type socketChannel struct {
	conn    *websocket.Conn
	topic   string
	joinRef string
	logger  *slog.Logger

	events   chan ChangeEvent
	statuses chan ChannelStatus

	writeMu   sync.Mutex
	quit      chan struct{}
	closeOnce sync.Once
}

var _ Channel = (*socketChannel)(nil)

func (c *socketChannel) Events() <-chan ChangeEvent { return c.events }

func (c *socketChannel) Statuses() <-chan ChannelStatus { return c.statuses }

// Close releases the connection. Idempotent.
func (c *socketChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		_ = c.conn.Close()
	})
	return nil
}

func (c *socketChannel) send(event string, payload any, ref string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	topic := c.topic
	if event == evtHeartbeat {
		topic = "phoenix"
	}
	msg := socketMessage{Topic: topic, Event: event, Payload: raw, Ref: ref}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// readLoop pumps wire messages into the Events and Statuses channels until
// the connection dies, then closes both.
func (c *socketChannel) readLoop() {
	defer close(c.events)
	defer close(c.statuses)

	for {
		var msg socketMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.quit:
				// Deliberate close; no status to report.
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.pushStatus(ChannelTimedOut)
			} else {
				c.pushStatus(ChannelClosed)
			}
			return
		}

		switch msg.Event {
		case evtReply:
			if msg.Ref != c.joinRef {
				continue
			}
			var reply struct {
				Status string `json:"status"`
			}
			_ = json.Unmarshal(msg.Payload, &reply)
			if reply.Status == "ok" {
				c.pushStatus(ChannelSubscribed)
			} else {
				c.logger.Warn("realtime join rejected", "topic", c.topic)
				c.pushStatus(ChannelError)
				return
			}

		case evtChanges:
			var payload struct {
				Data struct {
					Type      string         `json:"type"`
					Record    map[string]any `json:"record"`
					OldRecord map[string]any `json:"old_record"`
				} `json:"data"`
			}
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				c.logger.Warn("realtime: malformed change payload", "error", err)
				continue
			}
			ev := ChangeEvent{Type: payload.Data.Type, New: payload.Data.Record, Old: payload.Data.OldRecord}
			select {
			case c.events <- ev:
			case <-c.quit:
				return
			}

		case evtError:
			c.pushStatus(ChannelError)
			return

		case evtClose:
			c.pushStatus(ChannelClosed)
			return
		}
	}
}

// heartbeatLoop keeps the socket alive. A failed heartbeat write tears the
// connection down, which surfaces through readLoop.
func (c *socketChannel) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			if err := c.send(evtHeartbeat, map[string]any{}, uuid.NewString()); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

// pushStatus never blocks; the manager may already have stopped draining.
func (c *socketChannel) pushStatus(st ChannelStatus) {
	select {
	case c.statuses <- st:
	default:
	}
}
