// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	clockSystem "github.com/isotools/drawscan/internal/clock/system"
	"github.com/isotools/drawscan/internal/config"
	"github.com/isotools/drawscan/internal/notify"
	"github.com/isotools/drawscan/internal/policy/ratelimit"
	"github.com/isotools/drawscan/internal/processor"
	queueMemory "github.com/isotools/drawscan/internal/queue/memory"
	queuePubSub "github.com/isotools/drawscan/internal/queue/pubsub"
	"github.com/isotools/drawscan/internal/report"
	"github.com/isotools/drawscan/internal/scan"
	"github.com/isotools/drawscan/internal/source"
	storeMemory "github.com/isotools/drawscan/internal/storage/memory"
	storePostgres "github.com/isotools/drawscan/internal/storage/postgres"
)

// App holds the shared, long-lived services for the scan service. Each
// dependency falls back to an in-process implementation when its backend is
// not configured, so a single binary serves both development and production.
type App struct {
	Store     scan.SessionStore
	Publisher scan.QueuePublisher
	Consumer  scan.QueueConsumer
	Source    scan.DocumentSource
	Processor scan.Processor
	Reports   scan.ReportBuilder
	Registry  *notify.Registry

	logger  *zap.Logger
	closers []func() error
}

// New creates and initializes an App from the configuration. It fails fast if
// any configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Registry: notify.NewRegistry(logger),
		logger:   logger,
	}

	if cfg.DB.DSN != "" {
		logger.Info("using postgres session store")
		store, err := storePostgres.NewSessionStore(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("initialize session store: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	} else {
		logger.Info("using in-memory session store")
		a.Store = storeMemory.NewSessionStore()
	}

	if cfg.PubSub.ProjectID != "" {
		logger.Info("using pubsub work queue",
			zap.String("topic", cfg.PubSub.TopicName),
			zap.String("subscription", cfg.PubSub.Subscription),
		)
		q, err := queuePubSub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, cfg.PubSub.Subscription, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize work queue: %w", err)
		}
		a.Publisher = q
		a.Consumer = q
		a.closers = append(a.closers, q.Close)
	} else {
		logger.Info("using in-memory work queue", zap.Int("depth", cfg.Scan.QueueDepth))
		q := queueMemory.NewQueue(cfg.Scan.QueueDepth)
		a.Publisher = q
		a.Consumer = q
		a.closers = append(a.closers, func() error {
			q.Close()
			return nil
		})
	}

	if cfg.Drive.CredentialsFile != "" {
		logger.Info("using drive document source")
		limiter := ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Drive.RequestsPerSecond,
			Burst:             cfg.Drive.RequestBurst,
		})
		a.Source = source.NewDriveSource(cfg.Drive.CredentialsFile, cfg.Drive.PageSize, limiter, logger)
	} else {
		logger.Info("using static document source, no documents registered")
		a.Source = source.NewStaticSource()
	}
	a.Processor = processor.NewPDFProcessor(a.Source, logger)

	var objects report.ObjectStore
	switch {
	case cfg.Storage.GCSBucket != "":
		logger.Info("using gcs report store", zap.String("bucket", cfg.Storage.GCSBucket))
		store, err := report.NewGCSStore(ctx, cfg.Storage.GCSBucket, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize report store: %w", err)
		}
		objects = store
		a.closers = append(a.closers, store.Close)
	case cfg.Storage.LocalDir != "":
		logger.Info("using local report store", zap.String("dir", cfg.Storage.LocalDir))
		store, err := report.NewLocalStore(cfg.Storage.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("initialize report store: %w", err)
		}
		objects = store
	default:
		logger.Info("using in-memory report store")
		objects = report.NewMemoryStore()
	}
	a.Reports = report.NewBuilder(objects, cfg.Storage.Prefix, cfg.ReportURLTTL(), clockSystem.New(), logger)

	return a, nil
}

// Close gracefully shuts down all backends the App opened.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
}
