package sfu

import (
	"context"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// RTPReader is satisfied by *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Recorder copies remote tracks onto a Tape until the tape is full or Stop is called.
type Recorder struct {
	tape *Tape

	ctx    context.Context
	cancel context.CancelFunc

	stopOnce  sync.Once
	onStopped func()
}

func NewRecorder(ctx context.Context, tape *Tape, onStopped func()) *Recorder {
	ctx, cancel := context.WithCancel(ctx)
	return &Recorder{tape: tape, ctx: ctx, cancel: cancel, onStopped: onStopped}
}

func (r *Recorder) Tape() *Tape { return r.tape }

// Loop reads RTP packets from src and appends them to track.
func (r *Recorder) Loop(track *TapeTrack, src RTPReader, logger *zerolog.Logger) {
	for {
		select {
		case <-r.ctx.Done():
			logger.Debug().Str("track_id", track.ID).Msg("recorder ctx done")
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Str("track_id", track.ID).Msg("recorder read RTP stopped")
			return
		}
		if !r.tape.Append(track, pkt) {
			logger.Info().Str("track_id", track.ID).Int("packets", r.tape.Packets()).Msg("tape full")
			r.Stop()
			return
		}
	}
}

// Stop ends recording and fires onStopped once.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		if r.onStopped != nil {
			r.onStopped()
		}
	})
}

// Halt ends recording without notifying.
func (r *Recorder) Halt() {
	r.stopOnce.Do(r.cancel)
}
