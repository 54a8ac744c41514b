package app

import (
	"errors"
	"testing"

	"github.com/dkeye/EchoTest/internal/core/coretest"
)

func TestReplierBackpressure(t *testing.T) {
	full := errors.New("queue full")

	t.Run("simple policy drops", func(t *testing.T) {
		c, conn := coretest.NewClient("a")
		conn.SendErr = full
		Replier{Policy: SimplePolicy{}}.SendClient(c, NewTestMessage(ReplyCanRecord))
		if conn.Closed() {
			t.Error("simple policy closed the connection")
		}
	})

	t.Run("strict policy disconnects", func(t *testing.T) {
		c, conn := coretest.NewClient("a")
		conn.SendErr = full
		Replier{Policy: StrictPolicy{}}.SendClient(c, NewTestMessage(ReplyCanRecord))
		if !conn.Closed() {
			t.Error("strict policy kept the connection")
		}
	})
}

func TestPolicyByName(t *testing.T) {
	tests := []struct {
		name string
		want BackpressureAction
	}{
		{"", DropReply},
		{PolicyDrop, DropReply},
		{PolicyDisconnect, Disconnect},
	}
	for _, tt := range tests {
		p, err := PolicyByName(tt.name)
		if err != nil {
			t.Fatalf("PolicyByName(%q): %v", tt.name, err)
		}
		if got := p.OnBackPressure(nil, errors.New("full")); got != tt.want {
			t.Errorf("PolicyByName(%q) action %d, want %d", tt.name, got, tt.want)
		}
	}
	if _, err := PolicyByName("kick"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestNewTestMessage(t *testing.T) {
	c, conn := coretest.NewClient("a")
	Replier{}.SendClient(c, NewTestMessage(ReplyCanPlay).Put(ParamIce, []string{"stun:x"}))

	msgs := conn.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m["type"] != "kurento" || m["mode"] != "test" || m["id"] != ReplyCanPlay {
		t.Errorf("unexpected envelope %v", m)
	}
	if ice, ok := m[ParamIce].([]any); !ok || len(ice) != 1 {
		t.Errorf("expected ice list, got %v", m[ParamIce])
	}
}
