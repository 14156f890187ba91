package scan

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound signals that the requested session does not exist or has
// expired. Callers must surface it explicitly, never as an empty snapshot.
var ErrSessionNotFound = errors.New("session not found")

// SessionCount is the post-increment view returned by the store's atomic
// increment, read in the same indivisible operation.
type SessionCount struct {
	Processed int
	Total     int
}

// SessionStore persists session metadata and item results. The increment and
// the conditional result write are the only synchronization primitives the
// pipeline relies on; no external locking is layered on top.
type SessionStore interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
	// SetTotalItems fixes the item count once enumeration finishes.
	SetTotalItems(ctx context.Context, sessionID string, total int) error
	// UpdateSubscriber replaces the connection handle for push delivery.
	UpdateSubscriber(ctx context.Context, sessionID, subscriberID string) error
	// IncrementProcessed atomically adds one to the processed count and
	// returns the post-increment count alongside the fixed total.
	IncrementProcessed(ctx context.Context, sessionID string) (SessionCount, error)
	// MarkComplete transitions IN_PROGRESS -> COMPLETE. It reports whether
	// this call performed the transition, so a second caller is a no-op.
	MarkComplete(ctx context.Context, sessionID string) (bool, error)
	// PutResult writes an item result keyed on (session_id, item_id). A
	// redelivered item reports false and leaves the original row untouched.
	PutResult(ctx context.Context, result ItemResult) (bool, error)
	ListResults(ctx context.Context, sessionID string) ([]ItemResult, error)
}

// QueuePublisher enqueues one publish batch per call. The queue delivers
// at-least-once; consumers must tolerate redelivery.
type QueuePublisher interface {
	Publish(ctx context.Context, batch []WorkItem) error
}

// QueueConsumer delivers raw queue payloads to the handler until the context
// ends. Implementations may invoke handle concurrently. A nil return from
// handle acknowledges the message; an error requests redelivery.
type QueueConsumer interface {
	Receive(ctx context.Context, handle func(ctx context.Context, data []byte) error) error
}

// DocumentSource enumerates work items and resolves document references to
// raw bytes. An empty folder is a valid enumeration result, not an error.
type DocumentSource interface {
	EnumerateItems(ctx context.Context, sourceRef string) ([]ItemDescriptor, error)
	FetchDocument(ctx context.Context, docRef string) ([]byte, error)
}

// Processor scans a single document for the item's target codes. A document
// with no matches is a successful result; only hard failures (unreachable
// source, corrupt document) return an error.
type Processor interface {
	ProcessItem(ctx context.Context, item WorkItem) (ItemResult, error)
}

// ReportBuilder renders and stores the final report for a session. It is
// invoked once per session by construction of the completion detection.
type ReportBuilder interface {
	BuildReport(ctx context.Context, sessionID string, results []ItemResult) (ReportHandle, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session and item IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
