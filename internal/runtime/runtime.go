package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lectorlabs/lector-core/internal/bus"
	"github.com/lectorlabs/lector-core/internal/capture"
	"github.com/lectorlabs/lector-core/internal/clipboard"
	"github.com/lectorlabs/lector-core/internal/config"
	"github.com/lectorlabs/lector-core/internal/eventstore"
	"github.com/lectorlabs/lector-core/internal/natsserver"
	"github.com/lectorlabs/lector-core/internal/record"
	"github.com/lectorlabs/lector-core/internal/session"
	"github.com/lectorlabs/lector-core/internal/speech"
	"github.com/lectorlabs/lector-core/internal/vision"
)

// Runtime wires config, telemetry, the message bus, the event store
// and the session manager together and runs until its context ends.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error

	natsServer *natsserver.EmbeddedServer
	busClient  *bus.Client
	store      *eventstore.Store
	manager    *session.Manager

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if r.cfg.Bus.Embedded {
		srv, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.natsServer = srv
	}

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store
	if err := store.Prune(ctx); err != nil {
		r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
	}

	deps, err := r.buildDeps()
	if err != nil {
		return err
	}
	r.manager = session.New(ctx, r.cfg, deps, r.logger)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("vision_mode", r.cfg.Vision.Mode),
		slog.String("speech_mode", r.cfg.Speech.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := r.manager.Close(shutdownCtx); err != nil {
		r.logger.Error("session teardown error", slog.String("error", err.Error()))
	}
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if err := r.store.Close(); err != nil {
		r.logger.Error("event store close error", slog.String("error", err.Error()))
	}
	r.busClient.Close()
	if r.natsServer != nil {
		r.natsServer.Shutdown()
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildDeps picks the concrete backends config asks for. The mock
// modes keep the daemon runnable on machines without a camera, a cloud
// key, or a speech engine.
func (r *Runtime) buildDeps() (session.Deps, error) {
	deps := session.Deps{
		Opener: capture.NewFFMPEGOpener(r.cfg.Capture),
		Events: session.NewBusSink(r.busClient, r.logger),
		Store:  r.store,
	}

	switch r.cfg.Vision.Mode {
	case "openai":
		if r.cfg.Vision.APIKey == "" {
			r.logger.Warn("vision.api_key is empty; recognition calls will fail with a credential error")
		}
		deps.Recognizer = vision.NewOpenAIRecognizer(r.cfg.Vision)
	default:
		deps.Recognizer = vision.NewMockRecognizer()
	}

	switch r.cfg.Speech.Mode {
	case "exec":
		synth, err := speech.NewExecSynth(r.cfg.Speech.Command, r.cfg.Speech.SampleRate, r.cfg.Speech.Channels)
		if err != nil {
			return deps, fmt.Errorf("failed to build speech synthesizer: %w", err)
		}
		deps.Synth = synth
	default:
		deps.Synth = speech.NewMockSynth(r.cfg.Speech.SampleRate, r.cfg.Speech.Channels)
	}

	switch r.cfg.Speech.Sink {
	case "exec":
		sink, err := speech.NewExecPlayer(r.cfg.Speech.PlayerCmd)
		if err != nil {
			return deps, fmt.Errorf("failed to build speech player: %w", err)
		}
		deps.SpeechSink = sink
	default:
		sink, err := speech.NewWavSink(r.cfg.Speech.WavDir)
		if err != nil {
			return deps, fmt.Errorf("failed to build speech sink: %w", err)
		}
		deps.SpeechSink = sink
	}

	switch r.cfg.Record.MuxerMode {
	case "exec":
		muxer, err := record.NewExecMuxer(r.cfg.Record.MuxerCmd)
		if err != nil {
			return deps, fmt.Errorf("failed to build recording muxer: %w", err)
		}
		deps.Muxer = muxer
	default:
		deps.Muxer = record.NewRawMuxer()
	}

	copier, err := clipboard.NewExecCopier(r.cfg.Clipboard.Command)
	if err != nil {
		return deps, fmt.Errorf("failed to build clipboard backend: %w", err)
	}
	deps.Copier = copier

	return deps, nil
}
