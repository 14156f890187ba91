// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/isotools/drawscan/internal/scan"
)

// Queue is a bounded in-memory work queue with context-aware operations. It
// implements both scan.QueuePublisher and scan.QueueConsumer so a single
// process can run the whole pipeline without external infrastructure.
//
// Like the managed queue it stands in for, delivery is at-least-once: a
// handler error puts the payload back on the queue.
type Queue struct {
	ch      chan []byte
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan []byte, capacity),
	}
}

// Publish encodes and enqueues every item in the batch, or returns when the
// context ends. A partial batch is possible on cancellation; callers treat
// any error as the whole batch failing.
func (q *Queue) Publish(ctx context.Context, batch []scan.WorkItem) error {
	for _, item := range batch {
		data, err := scan.EncodeItemMessage(item)
		if err != nil {
			return err
		}
		if err := q.enqueue(ctx, data); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) enqueue(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- data:
		return nil
	}
}

// Receive delivers payloads to handle until the context ends or the queue is
// closed and drained. Each payload runs in its own goroutine; a handler error
// re-enqueues the payload for redelivery. Receive returns nil on a clean
// close and the context error on cancellation.
func (q *Queue) Receive(ctx context.Context, handle func(ctx context.Context, data []byte) error) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("receive canceled: %w", ctx.Err())
		case data, ok := <-q.ch:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func(payload []byte) {
				defer wg.Done()
				if err := handle(ctx, payload); err != nil {
					// Redeliver unless the queue went away underneath us.
					_ = q.requeue(ctx, payload)
				}
			}(data)
		}
	}
}

func (q *Queue) requeue(ctx context.Context, data []byte) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return errors.New("queue closed")
	}
	return q.enqueue(ctx, data)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
