package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/eventstore"
	"github.com/loqalabs/loqa-tts/internal/natsserver"
	"github.com/loqalabs/loqa-tts/internal/stitch"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	tracerClose    func(context.Context) error
	metricsHandler http.Handler
	store          *eventstore.Store
	natsServer     *natsserver.EmbeddedServer
	bus            *bus.Client
	service        *stitch.Service
	busService     *stitch.BusService
	ready          atomic.Bool
	wg             sync.WaitGroup
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

	if err := r.setup(ctx); err != nil {
		r.teardown(context.Background())
		return err
	}

	addr := net.JoinHostPort(r.cfg.HTTP.Bind, strconv.Itoa(r.cfg.HTTP.Port))
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			serveErr <- err
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("environment", r.cfg.Environment),
		slog.Bool("debug", r.cfg.Debug),
		slog.String("tts_mode", r.cfg.TTS.Mode))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
	r.teardown(shutdownCtx)

	return runErr
}

// setup builds every component in dependency order. Anything built before a
// failure is released by teardown.
func (r *Runtime) setup(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	r.metricsHandler = metricsHandler

	synth, err := tts.New(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("failed to create synthesizer: %w", err)
	}

	stitcher, err := stitch.NewStitcher(synth, stitch.Options{
		TempDir:    r.cfg.Stitch.TempDir,
		SilenceGap: time.Duration(r.cfg.Stitch.SilenceGapMS) * time.Millisecond,
		Voice:      r.cfg.TTS.Voice,
		Format: audio.Format{
			SampleRate: r.cfg.TTS.SampleRate,
			Channels:   r.cfg.TTS.Channels,
			BitDepth:   16,
		},
	}, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create stitcher: %w", err)
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store
	reporters := []stitch.Reporter{store}

	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		ns, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return err
		}
		r.natsServer = ns
		if ns != nil {
			busCfg.Servers = []string{ns.ClientURL()}
		}
		client, err := bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger)
		if err != nil {
			return err
		}
		r.bus = client
		reporters = append(reporters, client)
	}

	r.service = stitch.NewService(stitcher, stitch.ServiceOptions{
		MaxTexts: r.cfg.Stitch.MaxTexts,
		Timeout:  time.Duration(r.cfg.Stitch.RequestTimeoutMS) * time.Millisecond,
	}, r.logger, reporters...)

	if r.bus != nil {
		r.busService = stitch.NewBusService(ctx, r.service, r.bus, r.logger)
		if err := r.busService.Start(); err != nil {
			return fmt.Errorf("failed to subscribe stitch requests: %w", err)
		}
	}
	return nil
}

func (r *Runtime) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/tts", stitch.NewHTTPHandler(r.service, r.cfg.Stitch.MaxBodyBytes, r.cfg.Stitch.DownloadName, r.logger))
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metricsHandler != nil && r.cfg.Telemetry.MetricsPath != "" {
		mux.Handle(r.cfg.Telemetry.MetricsPath, r.metricsHandler)
	}
	return mux
}

func (r *Runtime) teardown(ctx context.Context) {
	if r.busService != nil {
		r.busService.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.natsServer.Shutdown()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("event store close error", slog.String("error", err.Error()))
		}
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// busReady requires both the connection and the request subscription when
// the bus is enabled.
func (r *Runtime) busReady() bool {
	if r.bus == nil {
		return true
	}
	return r.bus.Healthy() && r.busService != nil && r.busService.Healthy()
}
