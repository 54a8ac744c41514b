package orch

import (
	"context"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

const defaultReleaseWorkers = 8

// Remove releases the session of a disconnected client, if any.
func (d *Dispatcher) Remove(ctx context.Context, c core.Client) {
	s, ok := d.session(c)
	if !ok {
		return
	}
	s.Release(ctx, "disconnect")
}

// DestroyAll drains the registry and releases every session. Sessions registered
// by a concurrent record after the drain are refused and released by that record.
func (d *Dispatcher) DestroyAll(ctx context.Context) {
	sessions := d.Registry.DrainAll()
	d.syncGauge()

	workers := d.ReleaseWorkers
	if workers <= 0 {
		workers = defaultReleaseWorkers
	}
	p := pool.New().WithMaxGoroutines(workers)
	for _, s := range sessions {
		p.Go(func() {
			s.Release(ctx, "shutdown")
		})
	}
	p.Wait()
	log.Info().Str("module", "orch").Int("sessions", len(sessions)).Msg("all test sessions destroyed")
}
