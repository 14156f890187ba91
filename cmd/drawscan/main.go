// Package main runs the drawing scan service: the HTTP/WebSocket API, the
// session dispatcher, and the item worker in a single process.
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

	"go.uber.org/zap"

	"github.com/isotools/drawscan/internal/api"
	"github.com/isotools/drawscan/internal/app"
	clockSystem "github.com/isotools/drawscan/internal/clock/system"
	"github.com/isotools/drawscan/internal/config"
	"github.com/isotools/drawscan/internal/dispatcher"
	idUUID "github.com/isotools/drawscan/internal/id/uuid"
	"github.com/isotools/drawscan/internal/logging"
	"github.com/isotools/drawscan/internal/metrics"
	"github.com/isotools/drawscan/internal/resync"
	"github.com/isotools/drawscan/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("service init failed", zap.Error(err))
	}
	defer services.Close()

	clock := clockSystem.New()
	dispatch := dispatcher.New(
		services.Store,
		services.Publisher,
		services.Source,
		services.Reports,
		services.Registry,
		clock,
		idUUID.New(),
		cfg.Scan.BatchSize,
		logger.Named("dispatcher"),
	)
	itemWorker := worker.New(
		services.Consumer,
		services.Store,
		services.Processor,
		services.Reports,
		services.Registry,
		clock,
		worker.Config{
			ItemParallelism: cfg.Scan.ItemParallelism,
			ItemTimeout:     cfg.ItemTimeout(),
			ProgressCadence: cfg.Scan.ProgressCadence,
		},
		logger.Named("worker"),
	)
	resyncSvc := resync.New(services.Store, services.Registry, logger.Named("resync"))
	apiServer := api.NewServer(services.Store, dispatch, resyncSvc, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("worker started")
		if err := itemWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker stopped", zap.Error(err))
			stop()
		}
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	// Let in-flight fan-outs finish publishing before the queue closes.
	dispatch.Wait()
	logger.Info("shutdown complete")
}
