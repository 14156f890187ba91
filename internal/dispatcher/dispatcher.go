// Package dispatcher accepts scan requests and fans the work out to the
// queue. The caller gets a session ID back immediately; enumeration and
// publishing continue in the background.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/isotools/drawscan/internal/metrics"
	"github.com/isotools/drawscan/internal/notify"
	"github.com/isotools/drawscan/internal/scan"
)

// Dispatcher creates sessions and publishes their work items in batches.
type Dispatcher struct {
	store     scan.SessionStore
	queue     scan.QueuePublisher
	source    scan.DocumentSource
	reports   scan.ReportBuilder
	notifier  notify.Notifier
	clock     scan.Clock
	idGen     scan.IDGenerator
	batchSize int
	logger    *zap.Logger

	wg sync.WaitGroup
}

// New creates a Dispatcher.
func New(
	store scan.SessionStore,
	queue scan.QueuePublisher,
	source scan.DocumentSource,
	reports scan.ReportBuilder,
	notifier notify.Notifier,
	clock scan.Clock,
	idGen scan.IDGenerator,
	batchSize int,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:     store,
		queue:     queue,
		source:    source,
		reports:   reports,
		notifier:  notifier,
		clock:     clock,
		idGen:     idGen,
		batchSize: batchSize,
		logger:    logger,
	}
}

// StartSession registers a new session and returns its ID without waiting for
// enumeration. The session row exists before this returns, so a client can
// attach its WebSocket right away.
func (d *Dispatcher) StartSession(ctx context.Context, sourceRef string, targetCodes []string) (string, error) {
	if sourceRef == "" {
		return "", fmt.Errorf("source reference is required")
	}
	if len(targetCodes) == 0 {
		return "", fmt.Errorf("at least one target code is required")
	}

	sessionID, err := d.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	session := scan.Session{
		ID:          sessionID,
		Status:      scan.SessionInProgress,
		TargetCodes: targetCodes,
		CreatedAt:   d.clock.Now(),
	}
	if err := d.store.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	metrics.ObserveSession("started")

	// The request context dies when the handler returns; the fan-out must
	// outlive it.
	bgCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.fanOut(bgCtx, sessionID, sourceRef, targetCodes)
	}()

	return sessionID, nil
}

// Wait blocks until all background fan-outs have finished. Used during
// shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) fanOut(ctx context.Context, sessionID, sourceRef string, targetCodes []string) {
	logger := d.logger.With(zap.String("session_id", sessionID))

	items, err := d.source.EnumerateItems(ctx, sourceRef)
	if err != nil {
		logger.Error("source enumeration failed", zap.String("source_ref", sourceRef), zap.Error(err))
		d.notifier.Send(ctx, sessionID, notify.NewError("failed to list documents in the requested folder"))
		return
	}

	if err := d.store.SetTotalItems(ctx, sessionID, len(items)); err != nil {
		logger.Error("failed to record item total", zap.Error(err))
		d.notifier.Send(ctx, sessionID, notify.NewError("failed to initialize the scan session"))
		return
	}

	d.notifier.Send(ctx, sessionID, notify.NewStarted(sessionID, len(items)))
	logger.Info("session dispatched", zap.Int("total_items", len(items)))

	if len(items) == 0 {
		d.completeEmpty(ctx, sessionID, logger)
		return
	}

	batch := make([]scan.WorkItem, 0, d.batchSize)
	for _, desc := range items {
		itemID, err := d.idGen.NewID()
		if err != nil {
			logger.Error("generate item id failed, dropping item", zap.String("doc_ref", desc.DocRef), zap.Error(err))
			continue
		}
		batch = append(batch, scan.WorkItem{
			ItemID:      itemID,
			SessionID:   sessionID,
			DocRef:      desc.DocRef,
			DocName:     desc.DocName,
			DocLink:     desc.DocLink,
			TargetCodes: targetCodes,
		})
		if len(batch) == d.batchSize {
			d.publishBatch(ctx, logger, batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		d.publishBatch(ctx, logger, batch)
	}
}

// publishBatch pushes one batch to the queue. A failed batch is logged and
// abandoned; the session total is never corrected afterward, so the session
// stalls short of completion rather than completing with missing items.
func (d *Dispatcher) publishBatch(ctx context.Context, logger *zap.Logger, batch []scan.WorkItem) {
	if err := d.queue.Publish(ctx, batch); err != nil {
		logger.Error("publish batch failed, items abandoned",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
	}
}

// completeEmpty finishes a session whose source held no documents: no queue
// traffic, an empty report, and an immediate COMPLETE event.
func (d *Dispatcher) completeEmpty(ctx context.Context, sessionID string, logger *zap.Logger) {
	transitioned, err := d.store.MarkComplete(ctx, sessionID)
	if err != nil {
		logger.Error("failed to complete empty session", zap.Error(err))
		return
	}
	if !transitioned {
		return
	}
	metrics.ObserveSession("completed")

	handle, err := d.reports.BuildReport(ctx, sessionID, nil)
	if err != nil {
		logger.Error("failed to build empty report", zap.Error(err))
		d.notifier.Send(ctx, sessionID, notify.NewError("failed to generate the scan report"))
		return
	}
	d.notifier.Send(ctx, sessionID, notify.NewComplete(handle, 0, 0))
	logger.Info("empty session completed")
}
