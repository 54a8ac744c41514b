package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/EchoTest/internal/app/sfu"
	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	modeIdle   = "idle"
	modeRecord = "record"
	modePlay   = "play"
)

// Pipeline implements core.Pipeline over one PeerConnection.
type Pipeline struct {
	id     string
	engine *Engine

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	ctx       context.Context
	cancel    context.CancelFunc
	since     time.Time
	tags      map[string]string
	mode      string
	recorder  *sfu.Recorder
	stopTimer *time.Timer
	released  bool
	logger    zerolog.Logger

	releaseOnce sync.Once
}

var _ core.Pipeline = (*Pipeline)(nil)

func (p *Pipeline) ID() string { return p.id }

// AddTag stages key=value in tx. p must be committed or staged in tx.
func (p *Pipeline) AddTag(tx core.Transaction, key, value string) error {
	t, err := p.engine.ownTx(tx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	committed, released := p.pc != nil, p.released
	p.mu.Unlock()
	if released {
		return ErrPipelineReleased
	}
	if !committed && !t.has(p) {
		return ErrUnstaged
	}
	return t.stageTag(p, key, value)
}

// Record answers offer and records every incoming track onto a tape. The
// recording stops when the tape is full or MaxRecord elapsed; ev.OnStopped
// fires then.
func (p *Pipeline) Record(ctx context.Context, offer string, ev core.PipelineEvents) (string, error) {
	pc, err := p.claim(modeRecord)
	if err != nil {
		return "", err
	}

	opts := p.engine.opts
	tape := sfu.NewTape(opts.MaxRecord, opts.MaxPackets)
	rec := sfu.NewRecorder(p.ctx, tape, ev.OnStopped)
	p.mu.Lock()
	p.recorder = rec
	p.mu.Unlock()

	var timerOnce sync.Once
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("recording track")
		if opts.MaxRecord > 0 {
			timerOnce.Do(func() {
				t := time.AfterFunc(opts.MaxRecord, rec.Stop)
				p.mu.Lock()
				p.stopTimer = t
				p.mu.Unlock()
			})
		}
		tr := tape.AddTrack(track.ID(), track.StreamID(), track.Kind(), track.Codec().RTPCodecCapability)
		go rec.Loop(tr, track, &p.logger)
	})
	p.watch(pc, ev)

	return p.negotiate(ctx, pc, offer, nil)
}

// Play answers offer and sends source's tape back once ICE connects.
// ev.OnStopped fires when every track is played out.
func (p *Pipeline) Play(ctx context.Context, source core.Pipeline, offer string, ev core.PipelineEvents) (string, error) {
	src, ok := source.(*Pipeline)
	if !ok || src.engine != p.engine {
		return "", ErrForeignPipeline
	}
	tape := src.tape()
	if tape == nil || tape.Empty() {
		return "", ErrNothingRecorded
	}
	pc, err := p.claim(modePlay)
	if err != nil {
		return "", err
	}
	src.haltRecording()

	tracks := tape.Snapshot()
	player := sfu.NewPlayer(tracks)
	addTracks := func() error {
		for _, tr := range tracks {
			local, err := webrtc.NewTrackLocalStaticRTP(tr.Codec, tr.ID, tr.StreamID)
			if err != nil {
				return fmt.Errorf("local track %s: %w", tr.ID, err)
			}
			sender, err := pc.AddTrack(local)
			if err != nil {
				return fmt.Errorf("add track %s: %w", tr.ID, err)
			}
			go drainRTCP(sender)
			player.AddOutTrack(tr.ID, sfu.NewOutTrack(local))
		}
		return nil
	}

	var playOnce sync.Once
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		p.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		if s != webrtc.ICEConnectionStateConnected {
			return
		}
		playOnce.Do(func() {
			go func() {
				player.Play(p.ctx, &p.logger)
				if p.ctx.Err() == nil && ev.OnStopped != nil {
					ev.OnStopped()
				}
			}()
		})
	})
	p.watch(pc, ev)

	return p.negotiate(ctx, pc, offer, addTracks)
}

func (p *Pipeline) AddICECandidate(c domain.Candidate) error {
	p.mu.Lock()
	pc, released := p.pc, p.released
	p.mu.Unlock()
	if released {
		return ErrPipelineReleased
	}
	if pc == nil {
		return ErrNotCommitted
	}
	mid, idx := c.SDPMid, c.SDPMLineIndex
	return pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
}

// Release closes the PeerConnection and drops the pipeline from the engine.
// Later calls return nil.
func (p *Pipeline) Release(context.Context) error {
	var err error
	p.releaseOnce.Do(func() {
		p.mu.Lock()
		p.released = true
		pc, rec, timer, cancel := p.pc, p.recorder, p.stopTimer, p.cancel
		p.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if rec != nil {
			rec.Halt()
		}
		if cancel != nil {
			cancel()
		}
		if pc != nil {
			if err = pc.Close(); err != nil {
				p.logger.Error().Err(err).Msg("close error")
			} else {
				p.logger.Info().Msg("closed")
			}
		}
		p.engine.forget(p.id)
	})
	return err
}

// attach is called by Commit with the engine lock held. It reports false if
// p was released meanwhile.
func (p *Pipeline) attach(pc *webrtc.PeerConnection, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.pc = pc
	p.ctx, p.cancel = ctx, cancel
	p.since = now
	p.mode = modeIdle
	p.logger = p.engine.logger.With().Str("pipeline", p.id).Logger()
	return true
}

func (p *Pipeline) discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
}

func (p *Pipeline) isReleased() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *Pipeline) setTag(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tags[key] = value
}

func (p *Pipeline) info() PipelineInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PipelineInfo{ID: p.id, Mode: p.mode, Tags: copyTags(p.tags), Since: p.since}
}

func (p *Pipeline) tape() *sfu.Tape {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recorder == nil {
		return nil
	}
	return p.recorder.Tape()
}

func (p *Pipeline) haltRecording() {
	p.mu.Lock()
	rec, timer := p.recorder, p.stopTimer
	p.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	if rec != nil {
		rec.Halt()
	}
}

// claim switches an idle committed pipeline to mode.
func (p *Pipeline) claim(mode string) (*webrtc.PeerConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.released:
		return nil, ErrPipelineReleased
	case p.pc == nil:
		return nil, ErrNotCommitted
	case p.mode != modeIdle:
		return nil, ErrAlreadyNegotiated
	}
	p.mode = mode
	return p.pc, nil
}

func (p *Pipeline) watch(pc *webrtc.PeerConnection, ev core.PipelineEvents) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || ev.OnCandidate == nil {
			return
		}
		ci := c.ToJSON()
		cand := domain.Candidate{Candidate: ci.Candidate}
		if ci.SDPMid != nil {
			cand.SDPMid = *ci.SDPMid
		}
		if ci.SDPMLineIndex != nil {
			cand.SDPMLineIndex = *ci.SDPMLineIndex
		}
		ev.OnCandidate(cand)
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
	})
}

// negotiate applies offer, runs beforeAnswer and returns the local answer.
// Candidates trickle through OnICECandidate.
func (p *Pipeline) negotiate(ctx context.Context, pc *webrtc.PeerConnection, offer string, beforeAnswer func() error) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	if beforeAnswer != nil {
		if err := beforeAnswer(); err != nil {
			return "", err
		}
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return pc.LocalDescription().SDP, nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
