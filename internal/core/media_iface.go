package core

//go:generate mockgen -source=media_iface.go -destination=mocks/media_mock.go -package=mocks

import (
	"context"

	"github.com/dkeye/EchoTest/internal/domain"
)

// MediaEngine creates server-side pipelines inside transactions.
type MediaEngine interface {
	Kuid() string
	BeginTransaction(ctx context.Context) (Transaction, error)
	// CreatePipeline stages a pipeline; it becomes usable once tx commits.
	CreatePipeline(ctx context.Context, tx Transaction) (Pipeline, error)
}

type Transaction interface {
	Commit(ctx context.Context) error
	// Rollback discards staged work. It is a no-op after Commit.
	Rollback()
}

// PipelineEvents are invoked by the engine from its own goroutines.
type PipelineEvents struct {
	// OnCandidate receives locally gathered ICE candidates.
	OnCandidate func(domain.Candidate)
	// OnStopped fires once when recording reaches its limit or playback ends.
	OnStopped func()
}

type Pipeline interface {
	ID() string
	AddTag(tx Transaction, key, value string) error
	// Record answers offer and records incoming media.
	Record(ctx context.Context, offer string, ev PipelineEvents) (answer string, err error)
	// Play answers offer and plays back what source recorded.
	Play(ctx context.Context, source Pipeline, offer string, ev PipelineEvents) (answer string, err error)
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(domain.Candidate) error
	// Release should stop all underlying media resources.
	Release(ctx context.Context) error
}
