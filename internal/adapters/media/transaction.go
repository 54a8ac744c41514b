package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/pion/webrtc/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type stagedTag struct {
	pipe       *Pipeline
	key, value string
}

// Transaction stages pipeline creation and tagging. Nothing reaches the
// engine before Commit.
type Transaction struct {
	engine *Engine

	mu     sync.Mutex
	staged []*Pipeline
	tags   []stagedTag
	done   bool
}

var _ core.Transaction = (*Transaction)(nil)

func (t *Transaction) stage(p *Pipeline) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxClosed
	}
	t.staged = append(t.staged, p)
	return nil
}

func (t *Transaction) stageTag(p *Pipeline, key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxClosed
	}
	t.tags = append(t.tags, stagedTag{pipe: p, key: key, value: value})
	return nil
}

// Commit creates a PeerConnection for every staged pipeline, applies staged
// tags and registers the pipelines. On failure nothing stays registered.
func (t *Transaction) Commit(ctx context.Context) error {
	e := t.engine
	_, span := e.tracer.Start(ctx, "media.Commit")
	defer span.End()

	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTxClosed
	}
	t.done = true
	staged, tags := t.staged, t.tags
	t.staged, t.tags = nil, nil
	t.mu.Unlock()
	span.SetAttributes(attribute.Int("pipelines", len(staged)), attribute.Int("tags", len(tags)))

	pcs := make([]*webrtc.PeerConnection, 0, len(staged))
	closeAll := func() {
		for _, pc := range pcs {
			_ = pc.Close()
		}
	}
	for range staged {
		pc, err := e.newPeerConnection()
		if err != nil {
			closeAll()
			span.RecordError(err)
			span.SetStatus(codes.Error, "peer connection")
			return fmt.Errorf("commit: %w", err)
		}
		pcs = append(pcs, pc)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		closeAll()
		span.SetStatus(codes.Error, "engine closed")
		return ErrEngineClosed
	}
	for _, p := range staged {
		if p.isReleased() {
			e.mu.Unlock()
			closeAll()
			span.SetStatus(codes.Error, "released")
			return fmt.Errorf("commit: pipeline %s: %w", p.id, ErrPipelineReleased)
		}
	}
	for _, tg := range tags {
		if tg.pipe.isReleased() {
			e.mu.Unlock()
			closeAll()
			span.SetStatus(codes.Error, "tag")
			return fmt.Errorf("commit: tag %s: %w", tg.key, ErrPipelineReleased)
		}
	}
	now := time.Now()
	for i, p := range staged {
		if !p.attach(pcs[i], now) {
			_ = pcs[i].Close()
			continue
		}
		e.pipelines[p.id] = p
	}
	for _, tg := range tags {
		tg.pipe.setTag(tg.key, tg.value)
	}
	e.mu.Unlock()

	for _, p := range staged {
		e.logger.Debug().Str("pipeline", p.id).Msg("pipeline committed")
	}
	return nil
}

// Rollback discards staged work. It is a no-op after Commit.
func (t *Transaction) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	for _, p := range t.staged {
		p.discard()
	}
	t.staged, t.tags = nil, nil
}

func (t *Transaction) has(p *Pipeline) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.staged {
		if s == p {
			return true
		}
	}
	return false
}
