// Package worker implements the item processing loop: consume queued work
// items, scan each document, advance the session counter, and detect
// completion.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/isotools/drawscan/internal/metrics"
	"github.com/isotools/drawscan/internal/notify"
	"github.com/isotools/drawscan/internal/scan"
)

// Config controls Worker behavior.
type Config struct {
	// ItemParallelism bounds how many documents are processed at once.
	ItemParallelism int
	// ItemTimeout is the per-document processing budget.
	ItemTimeout time.Duration
	// ProgressCadence is how many processed items pass between PROGRESS
	// events. The final item always emits one regardless of cadence.
	ProgressCadence int
}

// Worker consumes queued work items and executes the scan pipeline.
type Worker struct {
	consumer  scan.QueueConsumer
	store     scan.SessionStore
	processor scan.Processor
	reports   scan.ReportBuilder
	notifier  notify.Notifier
	clock     scan.Clock
	cfg       Config
	sem       *semaphore.Weighted
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	consumer scan.QueueConsumer,
	store scan.SessionStore,
	processor scan.Processor,
	reports scan.ReportBuilder,
	notifier notify.Notifier,
	clock scan.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ItemParallelism <= 0 {
		cfg.ItemParallelism = 10
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 2 * time.Minute
	}
	if cfg.ProgressCadence <= 0 {
		cfg.ProgressCadence = 10
	}
	return &Worker{
		consumer:  consumer,
		store:     store,
		processor: processor,
		reports:   reports,
		notifier:  notifier,
		clock:     clock,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.ItemParallelism)),
		logger:    logger,
	}
}

// Run blocks, consuming queue payloads until the context finishes.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Receive(ctx, w.handleMessage)
}

// handleMessage is the queue boundary. Malformed payloads are acked after
// logging: redelivering them can never succeed, so they take the dead-letter
// path instead of poisoning the subscription.
func (w *Worker) handleMessage(ctx context.Context, data []byte) error {
	item, err := scan.DecodeItemMessage(data)
	if err != nil {
		metrics.ObserveDeadLetter()
		w.logger.Warn("discarding malformed queue payload", zap.Error(err))
		return nil
	}

	if err := w.sem.Acquire(ctx, 1); err != nil {
		// Shutdown while waiting for a slot; let the queue redeliver.
		return err
	}
	defer w.sem.Release(1)

	w.processItem(ctx, item)
	return nil
}

func (w *Worker) processItem(ctx context.Context, item scan.WorkItem) {
	metrics.IncActiveItemWorkers()
	defer metrics.DecActiveItemWorkers()

	logger := w.logger.With(
		zap.String("session_id", item.SessionID),
		zap.String("item_id", item.ItemID),
	)
	started := w.clock.Now()

	itemCtx, cancel := context.WithTimeout(ctx, w.cfg.ItemTimeout)
	result, err := w.processor.ProcessItem(itemCtx, item)
	cancel()
	if err != nil {
		// A failed document still advances the counter. The session must
		// reach completion even when individual items cannot be read.
		logger.Error("item processing failed, counting as no match",
			zap.String("doc_name", item.DocName),
			zap.Error(err),
		)
		result = scan.ItemResult{
			ItemID:    item.ItemID,
			SessionID: item.SessionID,
			Status:    scan.StatusNoMatch,
			DocName:   item.DocName,
			DocLink:   item.DocLink,
		}
		metrics.ObserveItem("failed", w.clock.Now().Sub(started))
	} else {
		metrics.ObserveItem("processed", w.clock.Now().Sub(started))
	}
	result.CompletedAt = w.clock.Now()

	matched := len(result.MatchedCodes) > 0
	firstDelivery := true
	if matched {
		inserted, err := w.store.PutResult(ctx, result)
		if err != nil {
			// Dropped on purpose. Retrying here would redeliver the item and
			// double-advance the counter, which is worse than a missing row.
			logger.Error("result write failed, dropping result", zap.Error(err))
		}
		firstDelivery = err != nil || inserted
		if inserted {
			metrics.ObserveMatch()
		}
	}

	count, err := w.store.IncrementProcessed(ctx, item.SessionID)
	if err != nil {
		logger.Error("progress increment failed", zap.Error(err))
		return
	}
	if count.Total > 0 && count.Processed > count.Total {
		logger.Warn("processed count exceeds session total",
			zap.Int("processed", count.Processed),
			zap.Int("total", count.Total),
		)
	}

	if matched && firstDelivery {
		w.notifier.Send(ctx, item.SessionID, notify.NewMatchFound(result))
	}
	if count.Processed%w.cfg.ProgressCadence == 0 || count.Processed == count.Total {
		w.notifier.Send(ctx, item.SessionID, notify.NewProgress(count.Processed, count.Total))
	}

	if count.Total > 0 && count.Processed == count.Total {
		w.completeSession(ctx, item.SessionID, count, logger)
	}
}

// completeSession runs at most once per session: only the goroutine that
// observed the final increment gets here, and the store transition guards
// against the counter overshooting the total on redelivery.
func (w *Worker) completeSession(ctx context.Context, sessionID string, count scan.SessionCount, logger *zap.Logger) {
	transitioned, err := w.store.MarkComplete(ctx, sessionID)
	if err != nil {
		logger.Error("completion transition failed", zap.Error(err))
		return
	}
	if !transitioned {
		return
	}
	metrics.ObserveSession("completed")
	logger.Info("session complete", zap.Int("total_processed", count.Processed))

	results, err := w.store.ListResults(ctx, sessionID)
	if err != nil {
		logger.Error("listing results for report failed", zap.Error(err))
		w.notifier.Send(ctx, sessionID, notify.NewError("failed to collect scan results for the report"))
		return
	}

	handle, err := w.reports.BuildReport(ctx, sessionID, results)
	if err != nil {
		logger.Error("report generation failed", zap.Error(err))
		w.notifier.Send(ctx, sessionID, notify.NewError("failed to generate the scan report"))
		return
	}

	w.notifier.Send(ctx, sessionID, notify.NewComplete(handle, len(results), count.Processed))
}
