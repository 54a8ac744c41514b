package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/dkeye/EchoTest/internal/metrics"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrProvision = errors.New("pipeline provisioning failed")

// Provisioner creates tagged pipelines in one engine transaction.
type Provisioner struct {
	engine  core.MediaEngine
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewProvisioner(engine core.MediaEngine, m *metrics.Metrics) *Provisioner {
	return &Provisioner{
		engine:  engine,
		metrics: m,
		tracer:  otel.Tracer("echotest-provisioner"),
	}
}

// CreatePipeline opens a transaction, creates a pipeline, tags it and commits.
// A handle is returned only if the commit succeeded.
func (p *Provisioner) CreatePipeline(ctx context.Context, tags domain.Tags) (core.Pipeline, error) {
	ctx, span := p.tracer.Start(ctx, "provision.CreatePipeline", trace.WithAttributes(
		attribute.String(domain.TagKuid, tags.Kuid),
		attribute.String(domain.TagMode, tags.Mode),
		attribute.String(domain.TagRoom, tags.Room),
	))
	defer span.End()
	start := time.Now()

	tx, err := p.engine.BeginTransaction(ctx)
	if err != nil {
		return nil, p.fail(span, "begin", err)
	}

	pipe, err := p.engine.CreatePipeline(ctx, tx)
	if err != nil {
		tx.Rollback()
		return nil, p.fail(span, "create", err)
	}

	for _, kv := range tags.Pairs() {
		if err := pipe.AddTag(tx, kv[0], kv[1]); err != nil {
			tx.Rollback()
			return nil, p.fail(span, "tag", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, p.fail(span, "commit", err)
	}

	p.metrics.PipelinesProvisioned.Inc()
	p.metrics.ProvisionDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("pipeline", pipe.ID()))
	log.Debug().Str("module", "app.provisioner").Str("pipeline", pipe.ID()).Dur("took", time.Since(start)).Msg("pipeline committed")
	return pipe, nil
}

func (p *Provisioner) fail(span trace.Span, stage string, err error) error {
	p.metrics.ProvisionFailures.WithLabelValues(stage).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	log.Error().Err(err).Str("module", "app.provisioner").Str("stage", stage).Msg("provisioning failed")
	return fmt.Errorf("%w: %s: %w", ErrProvision, stage, err)
}
