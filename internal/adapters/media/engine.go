// Package media is an in-process media engine. Each pipeline is one pion
// PeerConnection: a record pipeline keeps what the client sends on a tape, a
// play pipeline sends that tape back.
package media

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrTxClosed          = errors.New("transaction already finished")
	ErrNotCommitted      = errors.New("pipeline not committed")
	ErrPipelineReleased  = errors.New("pipeline released")
	ErrNothingRecorded   = errors.New("nothing recorded")
	ErrEngineClosed      = errors.New("media engine closed")
	ErrForeignTx         = errors.New("transaction belongs to another engine")
	ErrForeignPipeline   = errors.New("pipeline belongs to another engine")
	ErrAlreadyNegotiated = errors.New("pipeline already negotiated")
	ErrUnstaged          = errors.New("pipeline is neither committed nor staged in this transaction")
)

const DefaultPLIInterval = 3 * time.Second

type Options struct {
	Kuid       string
	ICEServers []webrtc.ICEServer
	MinPort    uint16
	MaxPort    uint16
	NAT1To1IPs []string
	// LogLevel is the pion log level: disabled, error, warn, info, debug or trace.
	LogLevel    string
	MaxRecord   time.Duration
	MaxPackets  int
	PLIInterval time.Duration
}

// PipelineInfo describes a live pipeline.
type PipelineInfo struct {
	ID    string            `json:"id"`
	Mode  string            `json:"mode"`
	Tags  map[string]string `json:"tags"`
	Since time.Time         `json:"since"`
}

// Engine implements core.MediaEngine.
type Engine struct {
	opts   Options
	api    *webrtc.API
	tracer trace.Tracer
	logger zerolog.Logger

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	closed    bool
}

var _ core.MediaEngine = (*Engine)(nil)

func NewEngine(opts Options) (*Engine, error) {
	if opts.Kuid == "" {
		opts.Kuid = uuid.NewString()
	}
	if opts.PLIInterval <= 0 {
		opts.PLIInterval = DefaultPLIInterval
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}
	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(opts.PLIInterval))
	if err != nil {
		return nil, fmt.Errorf("interval pli: %w", err)
	}
	registry.Add(pli)

	se := webrtc.SettingEngine{}
	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = pionLogLevel(opts.LogLevel)
	se.LoggerFactory = factory
	if len(opts.NAT1To1IPs) > 0 {
		se.SetNAT1To1IPs(opts.NAT1To1IPs, webrtc.ICECandidateTypeHost)
	}
	if opts.MinPort > 0 && opts.MaxPort > 0 {
		if err := se.SetEphemeralUDPPortRange(opts.MinPort, opts.MaxPort); err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
	}

	e := &Engine{
		opts: opts,
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(se),
		),
		tracer:    otel.Tracer("echotest-media"),
		logger:    log.With().Str("module", "media").Str("kuid", opts.Kuid).Logger(),
		pipelines: make(map[string]*Pipeline),
	}
	e.logger.Info().
		Uint16("min_port", opts.MinPort).
		Uint16("max_port", opts.MaxPort).
		Dur("max_record", opts.MaxRecord).
		Int("max_packets", opts.MaxPackets).
		Msg("media engine ready")
	return e, nil
}

func (e *Engine) Kuid() string { return e.opts.Kuid }

func (e *Engine) BeginTransaction(context.Context) (core.Transaction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	return &Transaction{engine: e}, nil
}

// CreatePipeline stages a pipeline in tx. It has no PeerConnection until tx commits.
func (e *Engine) CreatePipeline(_ context.Context, tx core.Transaction) (core.Pipeline, error) {
	t, err := e.ownTx(tx)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		id:     uuid.NewString(),
		engine: e,
		tags:   make(map[string]string),
	}
	if err := t.stage(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Pipelines lists live pipelines ordered by creation.
func (e *Engine) Pipelines() []PipelineInfo {
	e.mu.RLock()
	pipes := make([]*Pipeline, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		pipes = append(pipes, p)
	}
	e.mu.RUnlock()

	out := make([]PipelineInfo, 0, len(pipes))
	for _, p := range pipes {
		out = append(out, p.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out
}

// Close refuses new transactions and releases every live pipeline.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	pipes := make([]*Pipeline, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		pipes = append(pipes, p)
	}
	e.mu.Unlock()

	var errs []error
	for _, p := range pipes {
		if err := p.Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.logger.Info().Int("released", len(pipes)).Msg("media engine closed")
	return errors.Join(errs...)
}

func (e *Engine) ownTx(tx core.Transaction) (*Transaction, error) {
	t, ok := tx.(*Transaction)
	if !ok || t.engine != e {
		return nil, ErrForeignTx
	}
	return t, nil
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pipelines, id)
}

func (e *Engine) newPeerConnection() (*webrtc.PeerConnection, error) {
	return e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.opts.ICEServers})
}

func pionLogLevel(s string) logging.LogLevel {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled
	case "warn", "warning":
		return logging.LogLevelWarn
	case "info":
		return logging.LogLevelInfo
	case "debug":
		return logging.LogLevelDebug
	case "trace":
		return logging.LogLevelTrace
	}
	return logging.LogLevelError
}

func copyTags(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	maps.Copy(out, m)
	return out
}
