package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/EchoTest/internal/adapters/http"
	"github.com/dkeye/EchoTest/internal/adapters/media"
	wssignal "github.com/dkeye/EchoTest/internal/adapters/signal"
	"github.com/dkeye/EchoTest/internal/adapters/turn"
	"github.com/dkeye/EchoTest/internal/app"
	"github.com/dkeye/EchoTest/internal/app/orch"
	"github.com/dkeye/EchoTest/internal/config"
	"github.com/dkeye/EchoTest/internal/metrics"
	"github.com/dkeye/EchoTest/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}

	tp, err := telemetry.InitTracer(ctx, cfg.Telemetry.Endpoint, cfg.Kuid)
	if err != nil {
		return fmt.Errorf("telemetry init failed: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("tracer provider shutdown")
			}
		}()
		log.Info().Str("endpoint", cfg.Telemetry.Endpoint).Msg("telemetry enabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	engine, err := media.NewEngine(media.Options{
		Kuid:       cfg.Kuid,
		ICEServers: cfg.PionICEServers(),
		MinPort:    cfg.WebRTC.MinPort,
		MaxPort:    cfg.WebRTC.MaxPort,
		NAT1To1IPs: cfg.WebRTC.NATIPs,
		LogLevel:   cfg.WebRTC.LogLevel,
		MaxRecord:  cfg.Record.MaxDuration,
		MaxPackets: cfg.Record.MaxPackets,
	})
	if err != nil {
		return fmt.Errorf("media engine init failed: %w", err)
	}

	var turnURLs []string
	if cfg.Turn.URL != "" {
		turnURLs = strings.Split(cfg.Turn.URL, ",")
	}
	sender, err := newReplier(cfg)
	if err != nil {
		return err
	}
	registry := app.NewRegistry()
	dispatcher := &orch.Dispatcher{
		Registry:    registry,
		Provisioner: app.NewProvisioner(engine, m),
		Turn: turn.NewProvider(turn.Options{
			Static: cfg.PionICEServers(),
			URLs:   turnURLs,
			Secret: cfg.Turn.Secret,
			TTL:    cfg.Turn.TTL,
		}),
		Sender:    sender,
		Metrics:   m,
		Kuid:      engine.Kuid(),
		ForceTurn: cfg.Turn.Force,
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Signal: &wssignal.SignalWSController{
			Handler:    dispatcher,
			Limiter:    wssignal.NewClientRateLimiter(cfg.Rate.Limit, cfg.Rate.Interval),
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
		},
		Diagnostics: router.EngineDiagnostics{Registry: registry, Engine: engine},
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   cfg.CORS.Origins,
			AllowCredentials: true,
		}).Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("kuid", engine.Kuid()).Msg("EchoTest server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		dispatcher.DestroyAll(shutdownCtx)
		if err := engine.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("media engine close")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

// newReplier picks the backpressure policy named by cfg.Backpressure.
func newReplier(cfg *config.Config) (app.Replier, error) {
	policy, err := app.PolicyByName(cfg.Backpressure)
	if err != nil {
		return app.Replier{}, fmt.Errorf("reply policy: %w", err)
	}
	return app.Replier{Policy: policy}, nil
}
