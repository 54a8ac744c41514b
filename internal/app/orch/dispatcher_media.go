package orch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/EchoTest/internal/app"
	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/rs/zerolog/log"
)

// record replaces any session of the client with a new recording one.
func (d *Dispatcher) record(ctx context.Context, c core.Client, payload json.RawMessage) error {
	cid := c.ID()
	if !cid.Valid() {
		return nil
	}
	if old, ok := d.Registry.Get(cid); ok {
		old.Release(ctx, "re-record")
	}

	pipe, err := d.Provisioner.CreatePipeline(ctx, domain.TestTags(d.Kuid))
	if err != nil {
		return err
	}

	s := app.NewSession(c, payload, pipe, d.sessionDeps())
	if !d.Registry.PutReplacing(cid, s, func(old *app.Session) { old.Release(ctx, "replaced") }) {
		s.Release(ctx, "registry drained")
		return ErrShuttingDown
	}
	d.Metrics.SessionsCreated.Inc()
	d.syncGauge()
	log.Info().Str("module", "orch").Str("cid", string(cid)).Str("pipeline", pipe.ID()).Msg("test session registered")

	return s.Start(ctx)
}

func (d *Dispatcher) iceCandidate(c core.Client, payload json.RawMessage) error {
	s, ok := d.session(c)
	if !ok {
		return nil
	}
	cand, err := domain.ParseCandidate(payload)
	if err != nil {
		return err
	}
	s.AddCandidate(cand)
	return nil
}

// play provisions the playback pipeline of a recording session.
func (d *Dispatcher) play(ctx context.Context, c core.Client, payload json.RawMessage) error {
	s, ok := d.session(c)
	if !ok || s.State() != app.StateRecording {
		return nil
	}

	pipe, err := d.Provisioner.CreatePipeline(ctx, domain.TestTags(d.Kuid))
	if err != nil {
		return err
	}

	err = s.Play(ctx, c, payload, pipe)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, app.ErrNotRecording):
		d.releaseUnused(ctx, pipe)
		return nil
	case errors.Is(err, app.ErrNoOffer):
		d.releaseUnused(ctx, pipe)
		return err
	}
	return err
}

func (d *Dispatcher) releaseUnused(ctx context.Context, pipe core.Pipeline) {
	if err := pipe.Release(ctx); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("pipeline", pipe.ID()).Msg("release unused pipeline")
	}
}
