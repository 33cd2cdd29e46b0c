package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-pitch/internal/api"
	"github.com/loqalabs/loqa-pitch/internal/broadcast"
	"github.com/loqalabs/loqa-pitch/internal/bus"
	"github.com/loqalabs/loqa-pitch/internal/capability"
	"github.com/loqalabs/loqa-pitch/internal/config"
	"github.com/loqalabs/loqa-pitch/internal/natsserver"
	"github.com/loqalabs/loqa-pitch/internal/pipeline"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup
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

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	sentryEnabled, flushSentry := setupSentry(r.cfg, r.logger)
	defer flushSentry()
	var onFailure func(string, *pipeline.Error)
	if sentryEnabled {
		onFailure = reportFailure
	}

	var (
		embedded  *natsserver.EmbeddedServer
		busClient *bus.Client
	)
	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		embedded, err = natsserver.Start(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		if embedded != nil {
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		busClient, err = bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
	}

	p, err := BuildPipeline(ctx, r.cfg, onFailure, r.logger)
	if err != nil {
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	var (
		pub         capability.Publisher
		broadcaster *broadcast.Service
	)
	if busClient != nil {
		pub = busClient
		broadcaster = broadcast.NewService(ctx, p, busClient, r.logger)
		if err := broadcaster.Start(); err != nil {
			r.logger.Warn("failed to start session broadcast", slogError(err))
			broadcaster = nil
		}
	}
	registry := capability.NewRegistry(ctx, r.cfg.RuntimeName, p.Probes(), pub,
		time.Duration(r.cfg.Bus.AnnounceIntervalMS)*time.Millisecond, r.logger)

	router := api.NewRouter(api.Options{
		Pipeline:     p,
		Capabilities: registry,
		Metrics:      metricsHandler,
		Ready:        func() bool { return r.ready.Load() && (busClient == nil || busClient.Healthy()) },
	}, r.logger)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if metricsHandler != nil && r.cfg.Telemetry.PrometheusBind != addr {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.Bool("bus", busClient != nil))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
	}
	r.wg.Wait()

	registry.Close()
	if broadcaster != nil {
		broadcaster.Close()
	}
	p.Close()
	busClient.Close()
	embedded.Shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}

	return nil
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("server failed", slog.String("server", name), slogError(err))
		}
	}()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
