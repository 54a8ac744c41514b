package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type call struct {
	cid domain.ClientID
	cmd string
}

type fakeHandler struct {
	mu      sync.Mutex
	calls   []call
	removed chan domain.ClientID
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{removed: make(chan domain.ClientID, 1)}
}

func (h *fakeHandler) OnMessage(_ context.Context, c core.Client, cmd string, _ json.RawMessage) error {
	h.mu.Lock()
	h.calls = append(h.calls, call{cid: c.ID(), cmd: cmd})
	h.mu.Unlock()
	return c.Signal().TrySend(core.Frame(`{"id":"ack-` + cmd + `"}`))
}

func (h *fakeHandler) Remove(_ context.Context, c core.Client) {
	h.removed <- c.ID()
}

func (h *fakeHandler) Calls() []call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]call(nil), h.calls...)
}

func startServer(t *testing.T, ctl *SignalWSController) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(context.Background(), c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := ws.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestTestModeMessagesReachHandler(t *testing.T) {
	h := newFakeHandler()
	ws := startServer(t, &SignalWSController{Handler: h})

	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"kurento","mode":"other","id":"record"}`))
	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"kurento","mode":"test","id":"record","sdpOffer":"x"}`))

	if m := readJSON(t, ws); m["id"] != "ack-record" {
		t.Fatalf("unexpected reply %v", m)
	}
	calls := h.Calls()
	if len(calls) != 1 || calls[0].cmd != "record" || calls[0].cid == "" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestPingGetsPong(t *testing.T) {
	ws := startServer(t, &SignalWSController{Handler: newFakeHandler()})

	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))

	if m := readJSON(t, ws); m["type"] != "pong" {
		t.Errorf("unexpected reply %v", m)
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	h := newFakeHandler()
	ws := startServer(t, &SignalWSController{Handler: h})
	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"kurento","mode":"test","id":"wannaRecord"}`))
	readJSON(t, ws)

	_ = ws.Close()

	select {
	case cid := <-h.removed:
		if calls := h.Calls(); len(calls) != 1 || calls[0].cid != cid {
			t.Errorf("removed %s, calls %+v", cid, calls)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Remove not called after disconnect")
	}
}

func TestRateLimitedMessagesAreDropped(t *testing.T) {
	h := newFakeHandler()
	ws := startServer(t, &SignalWSController{Handler: h, Limiter: NewClientRateLimiter(1, time.Minute)})

	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"kurento","mode":"test","id":"wannaRecord"}`))
	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"kurento","mode":"test","id":"wannaPlay"}`))
	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))

	if m := readJSON(t, ws); m["id"] != "ack-wannaRecord" {
		t.Fatalf("unexpected reply %v", m)
	}
	if m := readJSON(t, ws); m["type"] != "pong" {
		t.Fatalf("expected pong after dropped message, got %v", m)
	}
	if n := len(h.Calls()); n != 1 {
		t.Errorf("expected 1 dispatched message, got %d", n)
	}
}

func TestClientRateLimiterWindow(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewClientRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two attempts refused")
	}
	if rl.Allow("a") {
		t.Fatal("third attempt allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("limit leaked across clients")
	}
	now = now.Add(1500 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatal("attempt after window refused")
	}
	rl.Forget("a")
	if _, ok := rl.history["a"]; ok {
		t.Error("history kept after Forget")
	}
}

func TestTrySendBackpressure(t *testing.T) {
	c := &WsSignalConn{send: make(chan core.Frame, 1)}

	if err := c.TrySend(core.Frame("1")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.TrySend(core.Frame("2")); !errors.Is(err, ErrBackpressure) {
		t.Errorf("expected ErrBackpressure, got %v", err)
	}
	c.closed = true
	if err := c.TrySend(core.Frame("3")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
