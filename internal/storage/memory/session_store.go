// Package memory provides storage implementations for development/testing.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/isotools/drawscan/internal/scan"
)

// SessionStore provides an in-memory scan.SessionStore for development and
// tests. All mutations run under one mutex, which gives the same atomicity
// the relational store gets from single-statement updates.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]scan.Session
	results  map[string]map[string]scan.ItemResult
	order    map[string][]string
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]scan.Session),
		results:  make(map[string]map[string]scan.ItemResult),
		order:    make(map[string][]string),
	}
}

// CreateSession stores a new session row.
func (s *SessionStore) CreateSession(_ context.Context, session scan.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return errors.New("session already exists")
	}
	s.sessions[session.ID] = session
	return nil
}

// GetSession fetches a session by ID.
func (s *SessionStore) GetSession(_ context.Context, sessionID string) (scan.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return scan.Session{}, scan.ErrSessionNotFound
	}
	return session, nil
}

// SetTotalItems fixes the item count once enumeration finishes.
func (s *SessionStore) SetTotalItems(_ context.Context, sessionID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return scan.ErrSessionNotFound
	}
	session.TotalItems = total
	s.sessions[sessionID] = session
	return nil
}

// UpdateSubscriber replaces the stored subscriber handle.
func (s *SessionStore) UpdateSubscriber(_ context.Context, sessionID, subscriberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return scan.ErrSessionNotFound
	}
	session.SubscriberID = subscriberID
	s.sessions[sessionID] = session
	return nil
}

// IncrementProcessed atomically adds one to the processed count and returns
// the post-increment counts.
func (s *SessionStore) IncrementProcessed(_ context.Context, sessionID string) (scan.SessionCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return scan.SessionCount{}, scan.ErrSessionNotFound
	}
	session.ProcessedCount++
	s.sessions[sessionID] = session
	return scan.SessionCount{
		Processed: session.ProcessedCount,
		Total:     session.TotalItems,
	}, nil
}

// MarkComplete transitions IN_PROGRESS -> COMPLETE and reports whether this
// call performed the transition.
func (s *SessionStore) MarkComplete(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, scan.ErrSessionNotFound
	}
	if session.Status != scan.SessionInProgress {
		return false, nil
	}
	session.Status = scan.SessionComplete
	s.sessions[sessionID] = session
	return true, nil
}

// PutResult writes an item result keyed on (session_id, item_id). Redelivered
// items report false and leave the original row untouched.
func (s *SessionStore) PutResult(_ context.Context, result scan.ItemResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[result.SessionID]; !ok {
		return false, scan.ErrSessionNotFound
	}
	byItem, ok := s.results[result.SessionID]
	if !ok {
		byItem = make(map[string]scan.ItemResult)
		s.results[result.SessionID] = byItem
	}
	if _, exists := byItem[result.ItemID]; exists {
		return false, nil
	}
	byItem[result.ItemID] = result
	s.order[result.SessionID] = append(s.order[result.SessionID], result.ItemID)
	return true, nil
}

// ListResults returns all recorded results for a session in insertion order.
func (s *SessionStore) ListResults(_ context.Context, sessionID string) ([]scan.ItemResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, scan.ErrSessionNotFound
	}
	ids := s.order[sessionID]
	out := make([]scan.ItemResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.results[sessionID][id])
	}
	return out, nil
}
