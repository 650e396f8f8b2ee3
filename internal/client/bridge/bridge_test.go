package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wabridge/wabridge/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeSidecar implements just enough of the sidecar frame protocol for the
// bridge to connect and round-trip commands.
type fakeSidecar struct {
	t       *testing.T
	srv     *httptest.Server
	conns   chan *websocket.Conn
	handler func(conn *websocket.Conn, cmd commandFrame)
}

func newFakeSidecar(t *testing.T, handler func(conn *websocket.Conn, cmd commandFrame)) *fakeSidecar {
	t.Helper()
	fs := &fakeSidecar{t: t, conns: make(chan *websocket.Conn, 1), handler: handler}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
		for {
			var cmd commandFrame
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			fs.handler(conn, cmd)
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeSidecar) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

// ackAll acknowledges every command with an empty result.
func ackAll(conn *websocket.Conn, cmd commandFrame) {
	_ = conn.WriteJSON(frame{ID: cmd.ID, OK: true})
}

func newTestBridge(t *testing.T, fs *fakeSidecar) (*Bridge, chan domain.Event) {
	t.Helper()
	events := make(chan domain.Event, 16)
	b := New(Config{
		URL:            fs.wsURL(),
		AuthDir:        t.TempDir(),
		ProfileDir:     t.TempDir(),
		CommandTimeout: 2 * time.Second,
	}, zap.NewNop(), events)
	return b, events
}

func TestBridgeConnectSendsInit(t *testing.T) {
	inits := make(chan commandFrame, 1)
	fs := newFakeSidecar(t, func(conn *websocket.Conn, cmd commandFrame) {
		if cmd.Action == "init" {
			inits <- cmd
		}
		ackAll(conn, cmd)
	})

	b, _ := newTestBridge(t, fs)
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer b.Destroy(context.Background())

	select {
	case cmd := <-inits:
		var params map[string]string
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			t.Fatalf("decode init params: %v", err)
		}
		if params["protocolVersion"] != ProtocolVersion {
			t.Errorf("expected pinned protocol version %q, got %q", ProtocolVersion, params["protocolVersion"])
		}
		if params["authDir"] == "" {
			t.Error("expected authDir in init params")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sidecar never received init")
	}
}

func TestBridgeSendMessageRoundTrip(t *testing.T) {
	fs := newFakeSidecar(t, func(conn *websocket.Conn, cmd commandFrame) {
		switch cmd.Action {
		case "sendMessage":
			var params map[string]string
			_ = json.Unmarshal(cmd.Params, &params)
			if params["jid"] != "123@c.us" || params["body"] != "hello" {
				_ = conn.WriteJSON(frame{ID: cmd.ID, Error: "bad params"})
				return
			}
			result, _ := json.Marshal(map[string]any{"id": "msg-1", "ack": 1})
			_ = conn.WriteJSON(frame{ID: cmd.ID, OK: true, Result: result})
		default:
			ackAll(conn, cmd)
		}
	})

	b, _ := newTestBridge(t, fs)
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer b.Destroy(context.Background())

	resp, err := b.SendMessage(context.Background(), "123@c.us", "hello", nil)
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if resp.ID != "msg-1" || resp.Ack != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestBridgeGetChats(t *testing.T) {
	fs := newFakeSidecar(t, func(conn *websocket.Conn, cmd commandFrame) {
		if cmd.Action == "listChats" {
			result, _ := json.Marshal([]domain.Chat{
				{ID: "1@c.us", Name: "Alice", IsGroup: false},
				{ID: "1-2@g.us", Name: "Team", IsGroup: true},
			})
			_ = conn.WriteJSON(frame{ID: cmd.ID, OK: true, Result: result})
			return
		}
		ackAll(conn, cmd)
	})

	b, _ := newTestBridge(t, fs)
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer b.Destroy(context.Background())

	chats, err := b.GetChats(context.Background())
	if err != nil {
		t.Fatalf("GetChats() error: %v", err)
	}
	if len(chats) != 2 || !chats[1].IsGroup {
		t.Errorf("unexpected chats %+v", chats)
	}
}

func TestBridgeTranslatesEvents(t *testing.T) {
	fs := newFakeSidecar(t, ackAll)

	b, events := newTestBridge(t, fs)
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer b.Destroy(context.Background())

	conn := <-fs.conns
	qrData, _ := json.Marshal(map[string]string{"qr": "ABC"})
	_ = conn.WriteJSON(frame{Event: "qr", Data: qrData})
	msgData, _ := json.Marshal(map[string]any{
		"from": "123@c.us", "body": "hi", "timestamp": 1700000000, "chatId": "123@c.us",
	})
	_ = conn.WriteJSON(frame{Event: "message", Data: msgData})

	ev := waitEvent(t, events, domain.EventTypeQR)
	if data := ev.Data.(domain.QRData); data.Payload != "ABC" {
		t.Errorf("unexpected qr payload %q", data.Payload)
	}

	ev = waitEvent(t, events, domain.EventTypeMessage)
	msg := ev.Data.(domain.MessageData).Message
	if msg.From != "123@c.us" || msg.Body != "hi" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Timestamp.Unix() != 1700000000 {
		t.Errorf("unexpected timestamp %v", msg.Timestamp)
	}
}

func TestBridgeSocketDeathEmitsDisconnected(t *testing.T) {
	fs := newFakeSidecar(t, ackAll)

	b, events := newTestBridge(t, fs)
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	conn := <-fs.conns
	_ = conn.Close()

	waitEvent(t, events, domain.EventTypeDisconnected)
}

func TestBridgeDestroyIdempotent(t *testing.T) {
	fs := newFakeSidecar(t, ackAll)

	b, events := newTestBridge(t, fs)
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if err := b.Destroy(context.Background()); err != nil {
		t.Fatalf("first Destroy() error: %v", err)
	}
	if err := b.Destroy(context.Background()); err != nil {
		t.Fatalf("second Destroy() error: %v", err)
	}

	// An intentional teardown must not surface as a disconnect.
	select {
	case ev := <-events:
		if ev.Type == domain.EventTypeDisconnected {
			t.Error("Destroy must not emit a disconnected event")
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func waitEvent(t *testing.T, events chan domain.Event, typ domain.EventType) domain.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v event", typ)
		}
	}
}
