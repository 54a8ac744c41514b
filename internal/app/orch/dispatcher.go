package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/EchoTest/internal/app"
	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/dkeye/EchoTest/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Commands understood by the test stream dispatcher.
const (
	CmdWannaRecord  = "wannaRecord"
	CmdRecord       = "record"
	CmdIceCandidate = "iceCandidate"
	CmdWannaPlay    = "wannaPlay"
	CmdPlay         = "play"
)

var (
	ErrShuttingDown = errors.New("dispatcher shutting down")
	ErrPanic        = errors.New("message handler panic")
)

type PipelineProvisioner interface {
	CreatePipeline(ctx context.Context, tags domain.Tags) (core.Pipeline, error)
}

// Dispatcher routes test stream commands of every client to its Session.
type Dispatcher struct {
	Registry    *app.Registry
	Provisioner PipelineProvisioner
	Turn        core.TurnProvider
	Sender      app.Sender
	Metrics     *metrics.Metrics
	// Kuid tags every pipeline with the engine instance that owns it.
	Kuid string
	// ForceTurn makes the TurnProvider issue fresh TURN credentials on every
	// wannaRecord and wannaPlay probe. Off by default: a client keeps its
	// credential until half of its TTL has passed, instead of getting a new one
	// per probe.
	ForceTurn bool
	// ReleaseWorkers bounds parallel releases in DestroyAll.
	ReleaseWorkers int
}

// OnMessage handles one inbound message. Failures are logged and the message is
// dropped; the client only ever sees a reply or silence.
func (d *Dispatcher) OnMessage(ctx context.Context, c core.Client, cmd string, payload json.RawMessage) (err error) {
	d.Metrics.Messages.WithLabelValues(metricLabel(cmd)).Inc()
	var cid domain.ClientID
	if c != nil {
		cid = c.ID()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		if err != nil {
			d.Metrics.MessageFailures.WithLabelValues(metricLabel(cmd)).Inc()
			log.Error().Err(err).Str("module", "orch").Str("cid", string(cid)).Str("cmd", cmd).Msg("message dropped")
		}
	}()

	switch cmd {
	case CmdWannaRecord:
		d.sendTurn(c, app.ReplyCanRecord)
	case CmdRecord:
		return d.record(ctx, c, payload)
	case CmdIceCandidate:
		return d.iceCandidate(c, payload)
	case CmdWannaPlay:
		d.sendTurn(c, app.ReplyCanPlay)
	case CmdPlay:
		return d.play(ctx, c, payload)
	default:
		log.Debug().Str("module", "orch").Str("cid", string(cid)).Str("cmd", cmd).Msg("unknown command ignored")
	}
	return nil
}

func (d *Dispatcher) sendTurn(c core.Client, replyID string) {
	d.Sender.SendClient(c, app.NewTestMessage(replyID).
		Put(app.ParamIce, d.Turn.TurnServers(c.ID(), d.ForceTurn)))
}

func (d *Dispatcher) session(c core.Client) (*app.Session, bool) {
	return d.Registry.Get(c.ID())
}

func (d *Dispatcher) sessionDeps() app.SessionDeps {
	return app.SessionDeps{
		Sender:  d.Sender,
		Metrics: d.Metrics,
		Evict:   d.evict,
	}
}

func (d *Dispatcher) evict(s *app.Session) {
	d.Registry.RemoveIf(s)
	d.syncGauge()
}

func (d *Dispatcher) syncGauge() {
	d.Metrics.ActiveSessions.Set(float64(d.Registry.Len()))
}

func metricLabel(cmd string) string {
	switch cmd {
	case CmdWannaRecord, CmdRecord, CmdIceCandidate, CmdWannaPlay, CmdPlay:
		return cmd
	}
	return "unknown"
}
