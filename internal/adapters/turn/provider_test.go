package turn

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

var stun = webrtc.ICEServer{URLs: []string{"stun:stun.example.org:3478"}}

func TestStaticOnlyWithoutSecret(t *testing.T) {
	p := NewProvider(Options{Static: []webrtc.ICEServer{stun}, URLs: []string{"turn:turn.example.org"}})

	got := p.TurnServers("a", false)
	if len(got) != 1 || got[0].URLs[0] != stun.URLs[0] {
		t.Errorf("unexpected servers %+v", got)
	}
}

func TestCredentialFormat(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p := NewProvider(Options{URLs: []string{"turn:turn.example.org"}, Secret: "s3cret", TTL: time.Hour})
	p.now = func() time.Time { return now }

	got := p.TurnServers("client-1", false)
	if len(got) != 1 {
		t.Fatalf("expected 1 server, got %d", len(got))
	}
	srv := got[0]
	parts := strings.SplitN(srv.Username, ":", 2)
	if len(parts) != 2 || parts[1] != "client-1" {
		t.Fatalf("unexpected username %q", srv.Username)
	}
	if exp, _ := strconv.ParseInt(parts[0], 10, 64); exp != now.Add(time.Hour).Unix() {
		t.Errorf("unexpected expiry %s", parts[0])
	}
	if srv.Credential != Credential("s3cret", srv.Username) {
		t.Errorf("credential mismatch")
	}
}

func TestCredentialKnownValue(t *testing.T) {
	const want = "3nybhbi3iqa8ino29wqQcBydtNk="
	if got := Credential("key", "The quick brown fox jumps over the lazy dog"); got != want {
		t.Errorf("Credential = %q, want %q", got, want)
	}
}

func TestCredentialReuseAndForce(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p := NewProvider(Options{Static: []webrtc.ICEServer{stun}, URLs: []string{"turn:turn.example.org"}, Secret: "s", TTL: time.Hour})
	p.now = func() time.Time { return now }

	first := p.TurnServers("a", false)[1].Username
	now = now.Add(10 * time.Minute)
	if again := p.TurnServers("a", false)[1].Username; again != first {
		t.Errorf("credential not reused: %s vs %s", again, first)
	}
	if forced := p.TurnServers("a", true)[1].Username; forced == first {
		t.Error("force did not mint a new credential")
	}
	now = now.Add(40 * time.Minute)
	if later := p.TurnServers("b", false)[1].Username; !strings.HasSuffix(later, ":b") {
		t.Errorf("unexpected username %q", later)
	}
}
