package sfu

import (
	"errors"
	"sync/atomic"

	"github.com/pion/rtp"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateDelete
)

// ErrTrackDeleted is returned by Write once the track is marked for deletion.
var ErrTrackDeleted = errors.New("outtrack deleted")

// RTPWriter is satisfied by *webrtc.TrackLocalStaticRTP.
type RTPWriter interface {
	WriteRTP(*rtp.Packet) error
}

// OutTrack is one playback destination on the client's answer leg.
type OutTrack struct {
	Track RTPWriter
	state atomic.Int32 // TrackStateOk when zero
	sent  atomic.Uint64
}

func NewOutTrack(track RTPWriter) *OutTrack {
	return &OutTrack{Track: track}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}

// Sent reports how many packets reached the writer.
func (ot *OutTrack) Sent() uint64 {
	return ot.sent.Load()
}

// Write forwards pkt unless the track is deleted. A writer error marks the
// track deleted.
func (ot *OutTrack) Write(pkt *rtp.Packet) error {
	if ot.GetState() == TrackStateDelete {
		return ErrTrackDeleted
	}
	if err := ot.Track.WriteRTP(pkt); err != nil {
		ot.MarkDelete()
		return err
	}
	ot.sent.Add(1)
	return nil
}
