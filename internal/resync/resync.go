// Package resync rebuilds a client's view of a session when it attaches or
// reattaches a connection.
package resync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/isotools/drawscan/internal/notify"
	"github.com/isotools/drawscan/internal/scan"
)

// Service wires a fresh connection to a session and replays its state.
type Service struct {
	store    scan.SessionStore
	registry *notify.Registry
	logger   *zap.Logger
}

// New creates a resync Service.
func New(store scan.SessionStore, registry *notify.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// Attach registers conn as the session's subscriber and pushes a full state
// snapshot over it. The snapshot is read from the store after attachment, so
// any event the client missed while disconnected is covered either by the
// snapshot or by live delivery that follows it.
//
// For an unknown session the connection still receives an ERROR event before
// the error return, so the client learns why it will get nothing else.
func (s *Service) Attach(ctx context.Context, sessionID, subscriberID string, conn notify.Conn) (scan.Snapshot, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, scan.ErrSessionNotFound) {
			s.registry.Attach(sessionID, conn)
			s.registry.Send(ctx, sessionID, notify.NewError("unknown or expired session"))
			s.registry.Detach(sessionID, conn)
			return scan.Snapshot{}, scan.ErrSessionNotFound
		}
		return scan.Snapshot{}, fmt.Errorf("load session: %w", err)
	}

	results, err := s.store.ListResults(ctx, sessionID)
	if err != nil {
		return scan.Snapshot{}, fmt.Errorf("load results: %w", err)
	}

	s.registry.Attach(sessionID, conn)
	if err := s.store.UpdateSubscriber(ctx, sessionID, subscriberID); err != nil {
		// The in-memory attachment already happened; a stale stored handle
		// only matters for delivery after a process restart.
		s.logger.Warn("failed to persist subscriber handle",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	snapshot := scan.Snapshot{
		Session:  session,
		Results:  results,
		Progress: scan.ProgressOf(session.ProcessedCount, session.TotalItems),
	}
	s.registry.Send(ctx, sessionID, notify.NewSyncState(snapshot))

	s.logger.Info("subscriber attached",
		zap.String("session_id", sessionID),
		zap.String("subscriber_id", subscriberID),
		zap.Int("replayed_results", len(results)),
	)
	return snapshot, nil
}

// Detach removes conn if it is still the session's registered subscriber.
func (s *Service) Detach(sessionID string, conn notify.Conn) {
	s.registry.Detach(sessionID, conn)
}
