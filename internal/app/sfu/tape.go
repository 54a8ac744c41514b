package sfu

import (
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Clip is one recorded packet and its offset from the start of the tape.
type Clip struct {
	At     time.Duration
	Packet *rtp.Packet
}

// TapeTrack holds what one remote track sent while recording.
type TapeTrack struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
	Codec    webrtc.RTPCodecCapability

	clips []Clip
}

// TrackSnapshot is a read-only copy of a TapeTrack.
type TrackSnapshot struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
	Codec    webrtc.RTPCodecCapability
	Clips    []Clip
}

// Tape is the in-memory recording of one record pipeline.
type Tape struct {
	mu          sync.RWMutex
	start       time.Time
	tracks      []*TapeTrack
	packets     int
	maxPackets  int
	maxDuration time.Duration
	full        bool
	now         func() time.Time
}

func NewTape(maxDuration time.Duration, maxPackets int) *Tape {
	return &Tape{maxDuration: maxDuration, maxPackets: maxPackets, now: time.Now}
}

func (t *Tape) AddTrack(id, streamID string, kind webrtc.RTPCodecType, codec webrtc.RTPCodecCapability) *TapeTrack {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr := &TapeTrack{ID: id, StreamID: streamID, Kind: kind, Codec: codec}
	t.tracks = append(t.tracks, tr)
	return tr
}

// Append stores pkt on tr. It returns false once a limit is reached; the tape
// accepts nothing after that.
func (t *Tape) Append(tr *TapeTrack, pkt *rtp.Packet) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return false
	}
	now := t.now()
	if t.start.IsZero() {
		t.start = now
	}
	at := now.Sub(t.start)
	if (t.maxDuration > 0 && at > t.maxDuration) || (t.maxPackets > 0 && t.packets >= t.maxPackets) {
		t.full = true
		return false
	}
	tr.clips = append(tr.clips, Clip{At: at, Packet: pkt.Clone()})
	t.packets++
	return true
}

func (t *Tape) Packets() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.packets
}

func (t *Tape) Empty() bool {
	return t.Packets() == 0
}

// Snapshot copies every non-empty track.
func (t *Tape) Snapshot() []TrackSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TrackSnapshot, 0, len(t.tracks))
	for _, tr := range t.tracks {
		if len(tr.clips) == 0 {
			continue
		}
		out = append(out, TrackSnapshot{
			ID:       tr.ID,
			StreamID: tr.StreamID,
			Kind:     tr.Kind,
			Codec:    tr.Codec,
			Clips:    append([]Clip(nil), tr.clips...),
		})
	}
	return out
}
