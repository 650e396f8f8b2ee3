// Package bridge implements the session client against the local
// browser-automation sidecar. The sidecar owns the headless browser and the
// protocol client; this package speaks a small JSON frame protocol to it over
// a WebSocket: commands with correlation IDs in one direction, lifecycle and
// message events in the other.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wabridge/wabridge/internal/client"
	"github.com/wabridge/wabridge/internal/domain"
)

// ProtocolVersion is pinned; the sidecar refuses mismatched clients rather
// than silently degrading.
const ProtocolVersion = "1"

const (
	defaultCommandTimeout = 30 * time.Second
	destroyTimeout        = 5 * time.Second
	maxFrameSize          = 4 * 1024 * 1024
)

var (
	ErrNotConnected = errors.New("bridge not connected")
	ErrClosed       = errors.New("bridge closed")
)

// Config describes how to reach the sidecar and where it keeps the
// persistent session identity.
type Config struct {
	// URL is the sidecar's WebSocket endpoint, e.g. ws://127.0.0.1:8790.
	URL string
	// AuthDir is the credential store the sidecar loads the persisted
	// identity from.
	AuthDir string
	// ProfileDir is the browser profile directory.
	ProfileDir string
	// CommandTimeout bounds a single command round-trip.
	CommandTimeout time.Duration
}

// commandFrame is a request to the sidecar.
type commandFrame struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// responseFrame answers a commandFrame; eventFrame carries unsolicited
// lifecycle and message events. The sidecar multiplexes both on one socket,
// distinguished by which of ID/Event is set.
type frame struct {
	ID     string          `json:"id,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Bridge implements client.Client over the sidecar socket.
type Bridge struct {
	cfg    Config
	logger *zap.Logger
	events chan<- domain.Event

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan frame
	closed  bool

	readDone chan struct{}
}

// New constructs a Bridge that will report events on the given channel once
// connected.
func New(cfg Config, logger *zap.Logger, events chan<- domain.Event) *Bridge {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	return &Bridge{
		cfg:     cfg,
		logger:  logger,
		events:  events,
		pending: make(map[string]chan frame),
	}
}

// Factory returns a client.Factory producing a fresh Bridge per
// initialization attempt.
func Factory(cfg Config, logger *zap.Logger) client.Factory {
	return func(events chan<- domain.Event) (client.Client, error) {
		return New(cfg, logger, events), nil
	}
}

// Connect dials the sidecar and starts the session. Lifecycle events begin
// flowing on the event channel as soon as the init command is accepted.
func (b *Bridge) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial sidecar: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	b.conn = conn
	b.readDone = make(chan struct{})
	b.mu.Unlock()

	go b.readLoop(conn)

	_, err = b.call(ctx, "init", map[string]string{
		"protocolVersion": ProtocolVersion,
		"authDir":         b.cfg.AuthDir,
		"profileDir":      b.cfg.ProfileDir,
	})
	if err != nil {
		b.teardown()
		return fmt.Errorf("init session: %w", err)
	}
	return nil
}

// Destroy tears the session down. Safe to call on an already-dead handle:
// the destroy command is best-effort and socket close errors are ignored.
func (b *Bridge) Destroy(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	connected := b.conn != nil
	b.mu.Unlock()

	if connected {
		dctx, cancel := context.WithTimeout(ctx, destroyTimeout)
		defer cancel()
		if _, err := b.call(dctx, "destroy", nil); err != nil {
			b.logger.Debug("destroy command failed", zap.Error(err))
		}
	}
	b.teardown()
	return nil
}

func (b *Bridge) SendMessage(ctx context.Context, jid, body string, opts *client.SendOptions) (*client.SendResponse, error) {
	params := map[string]string{"jid": jid, "body": body}
	if opts != nil && opts.QuotedMessageID != "" {
		params["quotedMessageId"] = opts.QuotedMessageID
	}
	result, err := b.call(ctx, "sendMessage", params)
	if err != nil {
		return nil, err
	}
	var resp client.SendResponse
	if len(result) > 0 {
		if err := json.Unmarshal(result, &resp); err != nil {
			return nil, fmt.Errorf("decode send response: %w", err)
		}
	}
	return &resp, nil
}

func (b *Bridge) GetChats(ctx context.Context) ([]domain.Chat, error) {
	result, err := b.call(ctx, "listChats", nil)
	if err != nil {
		return nil, err
	}
	var chats []domain.Chat
	if err := json.Unmarshal(result, &chats); err != nil {
		return nil, fmt.Errorf("decode chat list: %w", err)
	}
	return chats, nil
}

// call sends one command and waits for its response or the context.
func (b *Bridge) call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", action, err)
		}
		raw = data
	}

	id := uuid.NewString()
	ch := make(chan frame, 1)

	b.mu.Lock()
	if b.closed || b.conn == nil {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	b.pending[id] = ch
	conn := b.conn
	err := conn.WriteJSON(commandFrame{ID: id, Action: action, Params: raw})
	b.mu.Unlock()

	if err != nil {
		b.dropPending(id)
		return nil, fmt.Errorf("write %s: %w", action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
	defer cancel()
	select {
	case <-ctx.Done():
		b.dropPending(id)
		return nil, fmt.Errorf("%s: %w", action, ctx.Err())
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if !resp.OK {
			return nil, fmt.Errorf("%s: sidecar error: %s", action, resp.Error)
		}
		return resp.Result, nil
	}
}

func (b *Bridge) dropPending(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// readLoop translates incoming frames into command responses and domain
// events until the socket dies. An unexpected read error surfaces as a
// disconnected event so the controller can recover.
func (b *Bridge) readLoop(conn *websocket.Conn) {
	defer close(b.readDone)
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			b.mu.Lock()
			closed := b.closed
			pending := b.pending
			b.pending = make(map[string]chan frame)
			b.mu.Unlock()
			for _, ch := range pending {
				close(ch)
			}
			if !closed {
				b.emit(domain.NewDisconnectedEvent(fmt.Sprintf("sidecar socket: %v", err)))
			}
			return
		}

		if f.ID != "" {
			b.mu.Lock()
			ch, ok := b.pending[f.ID]
			delete(b.pending, f.ID)
			b.mu.Unlock()
			if ok {
				ch <- f
			}
			continue
		}
		if f.Event != "" {
			b.handleEvent(f)
		}
	}
}

func (b *Bridge) handleEvent(f frame) {
	switch f.Event {
	case "qr":
		var data struct {
			QR string `json:"qr"`
		}
		if err := json.Unmarshal(f.Data, &data); err != nil {
			b.logger.Warn("malformed qr event", zap.Error(err))
			return
		}
		b.emit(domain.NewQREvent(data.QR))
	case "authenticated":
		b.emit(domain.NewAuthenticatedEvent())
	case "ready":
		b.emit(domain.NewReadyEvent())
	case "message":
		var data struct {
			From      string `json:"from"`
			Body      string `json:"body"`
			Timestamp int64  `json:"timestamp"`
			ChatID    string `json:"chatId"`
			HasMedia  bool   `json:"hasMedia"`
		}
		if err := json.Unmarshal(f.Data, &data); err != nil {
			b.logger.Warn("malformed message event", zap.Error(err))
			return
		}
		b.emit(domain.NewMessageEvent(domain.InboundMessage{
			From:      data.From,
			Body:      data.Body,
			Timestamp: time.Unix(data.Timestamp, 0),
			ChatID:    data.ChatID,
			HasMedia:  data.HasMedia,
		}))
	case "auth_failure":
		b.emit(domain.NewAuthFailureEvent(b.eventReason(f)))
	case "disconnected":
		b.emit(domain.NewDisconnectedEvent(b.eventReason(f)))
	default:
		b.logger.Debug("ignoring unknown sidecar event", zap.String("event", f.Event))
	}
}

func (b *Bridge) eventReason(f frame) string {
	var data struct {
		Reason string `json:"reason"`
	}
	if len(f.Data) > 0 {
		_ = json.Unmarshal(f.Data, &data)
	}
	return data.Reason
}

func (b *Bridge) emit(ev domain.Event) {
	b.events <- ev
}

// teardown closes the socket and marks the bridge unusable. Idempotent.
func (b *Bridge) teardown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	conn := b.conn
	b.conn = nil
	done := b.readDone
	b.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}
