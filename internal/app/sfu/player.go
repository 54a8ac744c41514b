package sfu

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Player replays tape snapshots to OutTracks, keeping the recorded pacing.
type Player struct {
	tracks []TrackSnapshot

	mu        sync.RWMutex
	outTracks map[string]*OutTrack
}

func NewPlayer(tracks []TrackSnapshot) *Player {
	return &Player{
		tracks:    tracks,
		outTracks: make(map[string]*OutTrack),
	}
}

// AddOutTrack attaches the writer for the recorded track trackID.
func (p *Player) AddOutTrack(trackID string, ot *OutTrack) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outTracks[trackID] = ot
}

// Play blocks until every track is played out, ctx is done or all OutTracks failed.
func (p *Player) Play(ctx context.Context, logger *zerolog.Logger) {
	snapshot := make(map[string]*OutTrack)
	p.mu.RLock()
	maps.Copy(snapshot, p.outTracks)
	p.mu.RUnlock()

	start := time.Now()
	var wg sync.WaitGroup
	for _, tr := range p.tracks {
		ot, ok := snapshot[tr.ID]
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.playTrack(ctx, start, tr, ot, logger)
		}()
	}
	wg.Wait()
}

func (p *Player) playTrack(ctx context.Context, start time.Time, tr TrackSnapshot, ot *OutTrack, logger *zerolog.Logger) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, clip := range tr.Clips {
		if wait := clip.At - time.Since(start); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		if err := ot.Write(clip.Packet); err != nil {
			if !errors.Is(err, ErrTrackDeleted) {
				logger.Error().
					Err(err).
					Str("track_id", tr.ID).
					Msg("player write RTP error, outtrack deleted")
			}
			return
		}
	}
	logger.Debug().Str("track_id", tr.ID).Uint64("packets", ot.Sent()).Msg("track played out")
}
