package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/macrofleet/fieldops/internal/api"
	"github.com/macrofleet/fieldops/internal/config"
	"github.com/macrofleet/fieldops/internal/engine"
	"github.com/macrofleet/fieldops/internal/observability"
	"github.com/macrofleet/fieldops/internal/session"
	"github.com/macrofleet/fieldops/internal/storage"
	"github.com/macrofleet/fieldops/internal/transport"
)

func main() {
	cfgPath := flag.String("config", "fieldops.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracer, err := observability.InitTracer(cfg.Tracing.Enabled)
	if err != nil {
		logger.Fatal("init tracer", zap.Error(err))
	}

	store, err := storage.NewBadgerStore(cfg.Store.Path)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SeedFile != "" {
		if err := storage.LoadSeed(ctx, store, cfg.SeedFile); err != nil {
			logger.Fatal("apply seed file", zap.Error(err))
		}
		logger.Info("seed file applied", zap.String("path", cfg.SeedFile))
	}

	sessions := session.NewManager(cfg.Session.IdleTTL)
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry, sessions)

	var (
		sender   transport.Sender
		natsConn *transport.NATSConn
	)
	if cfg.NATS.URL != "" {
		natsConn, err = transport.NewNATSConn(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("connect nats", zap.Error(err))
		}
		defer natsConn.Close()
		sender = transport.NewNATSSender(natsConn, cfg.NATS.OutboundSubject)
	} else {
		sender = transport.NewHTTPSender(cfg.Gateway.BaseURL)
	}

	eng := engine.New(store, sessions, sender, logger, metrics)

	if natsConn != nil {
		sub, err := natsConn.Subscribe(cfg.NATS.InboundSubject, eng.HandleEvent)
		if err != nil {
			logger.Fatal("subscribe inbound subject", zap.Error(err))
		}
		defer sub.Unsubscribe()
		logger.Info("nats transport started", zap.String("subject", cfg.NATS.InboundSubject))
	}

	if cfg.Gateway.BaseURL != "" {
		poller := transport.NewPoller(cfg.Gateway.BaseURL, cfg.Gateway.PollInterval, logger)
		go poller.Run(ctx, eng.HandleEvent)
		logger.Info("gateway poller started", zap.String("base", cfg.Gateway.BaseURL))
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.NewHTTPHandler(eng, store, cfg.Linking.CodeTTL, logger),
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http listen", zap.Error(err))
		}
	}()

	metricsServer := &http.Server{Addr: cfg.Metrics.Addr}
	go func() {
		mux := http.NewServeMux()
		api.RegisterMetrics(mux, registry)
		metricsServer.Handler = mux
		logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown initiated")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
