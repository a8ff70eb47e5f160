package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/modelingevolution/numeric/internal/analytics"
	"github.com/modelingevolution/numeric/internal/persistence"
)

func main() {
	cfg := config{}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	logger, err := newLogger(os.Stderr, cfg.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		level.Error(logger).Log("msg", "invalid configuration", "err", err)
		os.Exit(1)
	}

	engine, err := analytics.NewAnalyzer(cfg.windowSize, cfg.threshold)
	if err != nil {
		level.Error(logger).Log("msg", "unable to create analyzer", "err", err)
		os.Exit(1)
	}

	store := persistence.NewMetricStore(cfg.redisAddr, cfg.redisPassword, cfg.redisDB)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Check(ctx); err != nil {
		level.Warn(logger).Log("msg", "redis ping failed", "addr", cfg.redisAddr, "err", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := newApp(ctx, store, engine, cfg.queueSize, logger, registry)
	go service.workerLoop()

	httpServer := &http.Server{
		Addr:              cfg.httpAddr,
		Handler:           service.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		level.Info(logger).Log("msg", "http server listening", "addr", cfg.httpAddr, "window", cfg.windowSize, "threshold", cfg.threshold)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "listen failed", "err", err)
			os.Exit(1)
		}
	}()

	awaitSignal(cancel, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "http shutdown error", "err", err)
	}
	if err := store.Stop(); err != nil {
		level.Error(logger).Log("msg", "redis close error", "err", err)
	}
}

func awaitSignal(cancel context.CancelFunc, logger log.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
	level.Info(logger).Log("msg", "shutdown signal received")
}
