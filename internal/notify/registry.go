package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/isotools/drawscan/internal/metrics"
)

// ErrGone signals that the subscriber connection is no longer usable. Senders
// swallow it; the session store remains the source of truth.
var ErrGone = errors.New("subscriber connection is gone")

// Conn is one live client connection. Implementations must be safe for
// concurrent WriteEvent calls.
type Conn interface {
	// WriteEvent delivers one encoded event. It returns ErrGone (possibly
	// wrapped) when the peer has disconnected.
	WriteEvent(ctx context.Context, data []byte) error
	Close() error
}

// Notifier pushes events toward whichever client is attached to a session.
// Delivery is best-effort by contract: implementations never return an error
// and never block the pipeline on a dead client.
type Notifier interface {
	Send(ctx context.Context, sessionID string, evt Event)
}

// Registry tracks at most one live connection per session. Attaching a new
// connection replaces the previous one, which covers the reconnect flow.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	logger *zap.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		conns:  make(map[string]Conn),
		logger: logger,
	}
}

// Attach registers conn as the session's subscriber, replacing any previous
// connection. The replaced connection is closed; its client is expected to
// have gone away.
func (r *Registry) Attach(sessionID string, conn Conn) {
	r.mu.Lock()
	prev := r.conns[sessionID]
	r.conns[sessionID] = conn
	r.mu.Unlock()
	if prev != nil && prev != conn {
		if err := prev.Close(); err != nil {
			r.logger.Debug("close replaced subscriber", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

// Detach removes conn if it is still the registered subscriber. A connection
// that was already replaced by a reconnect is left alone.
func (r *Registry) Detach(sessionID string, conn Conn) {
	r.mu.Lock()
	if r.conns[sessionID] == conn {
		delete(r.conns, sessionID)
	}
	r.mu.Unlock()
}

// Send delivers evt to the session's subscriber, if any. Invalid events,
// missing subscribers and gone connections are all swallowed: processing must
// run to completion whether or not anyone is listening.
func (r *Registry) Send(ctx context.Context, sessionID string, evt Event) {
	if err := evt.Validate(); err != nil {
		r.logger.Warn("discarding invalid notification",
			zap.String("session_id", sessionID),
			zap.String("event_type", string(evt.EventType())),
			zap.Error(err),
		)
		return
	}
	r.mu.RLock()
	conn := r.conns[sessionID]
	r.mu.RUnlock()
	if conn == nil {
		metrics.ObserveNotification(string(evt.EventType()), "no_subscriber")
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		r.logger.Error("marshal notification failed",
			zap.String("session_id", sessionID),
			zap.String("event_type", string(evt.EventType())),
			zap.Error(err),
		)
		return
	}
	if err := conn.WriteEvent(ctx, data); err != nil {
		outcome := "failed"
		if errors.Is(err, ErrGone) {
			outcome = "gone"
		}
		metrics.ObserveNotification(string(evt.EventType()), outcome)
		r.logger.Debug("notification delivery failed",
			zap.String("session_id", sessionID),
			zap.String("event_type", string(evt.EventType())),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveNotification(string(evt.EventType()), "sent")
}
