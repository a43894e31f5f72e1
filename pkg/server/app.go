package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SignalForge/internal/dispatch"
	"SignalForge/internal/usecase"
	pkgcache "SignalForge/pkg/cache"
	pkgch "SignalForge/pkg/clickhouse"
	"SignalForge/pkg/config"
	xhttp "SignalForge/pkg/http"
	pkgkafka "SignalForge/pkg/kafka"
	applogger "SignalForge/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	collector  *usecase.CandleCollector
	producer   *usecase.SignalProducer
	dispatcher *dispatch.Dispatcher
	httpServer *xhttp.Server

	chClient  *pkgch.Client
	kafkaProd *pkgkafka.Producer
	cache     pkgcache.Service
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.CandleCollector,
	producer *usecase.SignalProducer,
	dispatcher *dispatch.Dispatcher,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	kafkaProd *pkgkafka.Producer,
	cacheSvc pkgcache.Service,
) *App {
	httpServer := xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
	return &App{
		cfg:        cfg,
		log:        log,
		collector:  collector,
		producer:   producer,
		dispatcher: dispatcher,
		httpServer: httpServer,
		chClient:   chClient,
		kafkaProd:  kafkaProd,
		cache:      cacheSvc,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.dispatcher.Start(); err != nil {
		return err
	}
	a.log.Info("dispatcher started",
		applogger.Int("workers", a.cfg.Dispatch.Workers),
		applogger.Strings("channels", a.dispatcher.Channels()))

	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.log.Error("candle collector error", applogger.Error(err))
			}
		}()
		a.log.Info("candle collector started", applogger.Strings("pairs", a.cfg.Engine.Pairs))
	}

	a.producer.Start()
	a.log.Info("signal producer started",
		applogger.Strings("pairs", a.cfg.Engine.Pairs),
		applogger.Duration("interval", a.cfg.Engine.CycleInterval))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops services in reverse dependency order: producer first so
// no new signals enter the queues, then dispatcher, ingest, HTTP and
// finally infrastructure clients.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.producer.Stop(shutdownCtx); err != nil {
		a.log.Warn("signal producer stop error", applogger.Error(err))
	}

	if err := a.dispatcher.Stop(shutdownCtx); err != nil {
		a.log.Warn("dispatcher stop error", applogger.Error(err))
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("candle collector stop error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.kafkaProd != nil {
		if err := a.kafkaProd.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if closer, ok := a.cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
