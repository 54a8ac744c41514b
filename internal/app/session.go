package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/dkeye/EchoTest/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotRecording    = errors.New("session is not recording")
	ErrSessionReleased = errors.New("session released")
	ErrNoOffer         = errors.New("payload has no sdpOffer")
)

type State int32

const (
	StateRecording State = iota
	StatePlaying
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePlaying:
		return "playing"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// leg is one media path of a session. Candidates wait in pending until the
// pipeline has answered the client's offer.
type leg struct {
	pipe    core.Pipeline
	ready   bool
	pending []domain.Candidate
}

// phase carries only the fields valid in its state.
type phase interface {
	state() State
	active() *leg
	pipelines() []core.Pipeline
}

type recordingPhase struct {
	rec *leg
}

func (p *recordingPhase) state() State               { return StateRecording }
func (p *recordingPhase) active() *leg               { return p.rec }
func (p *recordingPhase) pipelines() []core.Pipeline { return []core.Pipeline{p.rec.pipe} }

type playingPhase struct {
	rec  core.Pipeline
	play *leg
}

func (p *playingPhase) state() State               { return StatePlaying }
func (p *playingPhase) active() *leg               { return p.play }
func (p *playingPhase) pipelines() []core.Pipeline { return []core.Pipeline{p.play.pipe, p.rec} }

type releasedPhase struct{}

func (releasedPhase) state() State               { return StateReleased }
func (releasedPhase) active() *leg               { return nil }
func (releasedPhase) pipelines() []core.Pipeline { return nil }

// SessionDeps are the collaborators a Session talks to. Metrics must be set.
type SessionDeps struct {
	Sender  Sender
	Metrics *metrics.Metrics
	// Evict runs once, after the session released its pipelines.
	Evict func(*Session)
}

// Session is one client's echo test: record a clip, then play it back.
type Session struct {
	cid     domain.ClientID
	client  core.Client
	payload json.RawMessage
	deps    SessionDeps
	logger  zerolog.Logger

	mu    sync.Mutex
	phase phase

	releaseOnce sync.Once
}

// NewSession takes ownership of pipe as the record pipeline. Call Start to answer
// the client's offer.
func NewSession(c core.Client, payload json.RawMessage, pipe core.Pipeline, deps SessionDeps) *Session {
	return &Session{
		cid:     c.ID(),
		client:  c,
		payload: payload,
		deps:    deps,
		logger: log.With().
			Str("module", "app.session").
			Str("cid", string(c.ID())).
			Logger(),
		phase: &recordingPhase{rec: &leg{pipe: pipe}},
	}
}

func (s *Session) ClientID() domain.ClientID { return s.cid }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase.state()
}

// RecordPipeline returns nil once the session is released.
func (s *Session) RecordPipeline() core.Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p := s.phase.(type) {
	case *recordingPhase:
		return p.rec.pipe
	case *playingPhase:
		return p.rec
	}
	return nil
}

func (s *Session) PlayPipeline() (core.Pipeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.phase.(*playingPhase); ok {
		return p.play.pipe, true
	}
	return nil, false
}

// Start negotiates the record leg. On failure the session releases itself.
func (s *Session) Start(ctx context.Context) error {
	offer, err := sdpOffer(s.payload)
	if err != nil {
		s.Release(ctx, "record offer")
		return err
	}

	s.mu.Lock()
	rp, ok := s.phase.(*recordingPhase)
	s.mu.Unlock()
	if !ok {
		return ErrSessionReleased
	}

	pipe := rp.rec.pipe
	answer, err := pipe.Record(ctx, offer, core.PipelineEvents{
		OnCandidate: s.candidateRelay(s.client),
		OnStopped: func() {
			s.logger.Info().Str("pipeline", pipe.ID()).Msg("recording stopped")
			s.deps.Sender.SendClient(s.client, NewTestMessage(ReplyRecStopped))
		},
	})
	if err != nil {
		if s.State() == StateReleased {
			return ErrSessionReleased
		}
		s.Release(ctx, "record negotiation")
		return fmt.Errorf("record: %w", err)
	}

	s.deps.Sender.SendClient(s.client, NewTestMessage(ReplyStartResponse).Put(ParamSdpAnswer, answer))
	s.markReady(pipe)
	s.logger.Info().Str("pipeline", pipe.ID()).Msg("recording started")
	return nil
}

// Play switches a recording session to playback on pipe. It returns ErrNoOffer or
// ErrNotRecording without touching pipe; the caller keeps ownership of pipe then.
// Otherwise pipe belongs to the session and a negotiation failure releases the
// whole session.
func (s *Session) Play(ctx context.Context, c core.Client, payload json.RawMessage, pipe core.Pipeline) error {
	offer, err := sdpOffer(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	rp, ok := s.phase.(*recordingPhase)
	if !ok {
		s.mu.Unlock()
		return ErrNotRecording
	}
	rec := rp.rec.pipe
	s.phase = &playingPhase{rec: rec, play: &leg{pipe: pipe}}
	s.mu.Unlock()

	answer, err := pipe.Play(ctx, rec, offer, core.PipelineEvents{
		OnCandidate: s.candidateRelay(c),
		OnStopped: func() {
			s.logger.Info().Str("pipeline", pipe.ID()).Msg("playback finished")
			s.deps.Sender.SendClient(c, NewTestMessage(ReplyPlayStopped))
		},
	})
	if err != nil {
		if s.State() == StateReleased {
			return ErrSessionReleased
		}
		s.Release(ctx, "play negotiation")
		return fmt.Errorf("play: %w", err)
	}

	s.deps.Sender.SendClient(c, NewTestMessage(ReplyPlayResponse).Put(ParamSdpAnswer, answer))
	s.markReady(pipe)
	s.logger.Info().Str("pipeline", pipe.ID()).Msg("playback started")
	return nil
}

// AddCandidate forwards cand to the active pipeline, or buffers it until that
// pipeline is ready. It is a no-op on a released session.
func (s *Session) AddCandidate(cand domain.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.phase.active()
	if l == nil {
		return
	}
	if !l.ready {
		l.pending = append(l.pending, cand)
		s.deps.Metrics.CandidatesBuffered.Inc()
		return
	}
	s.forward(l.pipe, cand)
}

// Release tears down every pipeline the session owns. Only the first call has effect.
func (s *Session) Release(ctx context.Context, caller string) {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		pipes := s.phase.pipelines()
		s.phase = releasedPhase{}
		s.mu.Unlock()

		for _, p := range pipes {
			if err := p.Release(ctx); err != nil {
				s.logger.Error().Err(err).Str("pipeline", p.ID()).Msg("pipeline release")
			}
		}
		s.deps.Metrics.SessionsReleased.Inc()
		if s.deps.Evict != nil {
			s.deps.Evict(s)
		}
		s.logger.Info().Str("caller", caller).Int("pipelines", len(pipes)).Msg("session released")
	})
}

func (s *Session) markReady(pipe core.Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.phase.active()
	if l == nil || l.pipe != pipe {
		return
	}
	l.ready = true
	pending := l.pending
	l.pending = nil
	for _, cand := range pending {
		s.forward(pipe, cand)
	}
}

// forward is called with s.mu held so candidates reach the pipeline in arrival order.
func (s *Session) forward(pipe core.Pipeline, cand domain.Candidate) {
	if err := pipe.AddICECandidate(cand); err != nil {
		s.logger.Error().Err(err).Str("pipeline", pipe.ID()).Msg("add ice candidate")
	}
}

func (s *Session) candidateRelay(c core.Client) func(domain.Candidate) {
	return func(cand domain.Candidate) {
		s.deps.Sender.SendClient(c, NewTestMessage(ReplyIceCandidate).Put(ParamCandidate, cand))
	}
}

func sdpOffer(payload json.RawMessage) (string, error) {
	var p struct {
		SDPOffer string `json:"sdpOffer"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoOffer, err)
	}
	if p.SDPOffer == "" {
		return "", ErrNoOffer
	}
	return p.SDPOffer, nil
}
