// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isotools/drawscan/internal/scan"
)

type sessionPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// SessionStore implements scan.SessionStore using Postgres. Counter updates
// and completion transitions are single statements, so concurrent workers
// need no locking beyond what the database provides.
type SessionStore struct {
	pool sessionPool
}

// NewSessionStore creates a new SessionStore backed by a fresh pool.
func NewSessionStore(ctx context.Context, dsn string) (*SessionStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &SessionStore{pool: pool}, nil
}

// NewSessionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSessionStoreWithPool(pool sessionPool) (*SessionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SessionStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *SessionStore) Close() {
	s.pool.Close()
}

// CreateSession inserts a new session row.
func (s *SessionStore) CreateSession(ctx context.Context, session scan.Session) error {
	query := `
		INSERT INTO scan_sessions (id, total_items, processed_count, status, subscriber_id, target_codes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		session.ID,
		session.TotalItems,
		session.ProcessedCount,
		session.Status,
		session.SubscriberID,
		session.TargetCodes,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a single session by its ID.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (scan.Session, error) {
	query := `
		SELECT id, total_items, processed_count, status, subscriber_id, target_codes, created_at
		FROM scan_sessions
		WHERE id = $1;
	`
	var session scan.Session
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.TotalItems,
		&session.ProcessedCount,
		&session.Status,
		&session.SubscriberID,
		&session.TargetCodes,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scan.Session{}, scan.ErrSessionNotFound
		}
		return scan.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// SetTotalItems fixes the item count once enumeration finishes.
func (s *SessionStore) SetTotalItems(ctx context.Context, sessionID string, total int) error {
	query := `UPDATE scan_sessions SET total_items = $1 WHERE id = $2;`
	res, err := s.pool.Exec(ctx, query, total, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set total items: %w", err)
	}
	if res.RowsAffected() == 0 {
		return scan.ErrSessionNotFound
	}
	return nil
}

// UpdateSubscriber replaces the stored subscriber handle.
func (s *SessionStore) UpdateSubscriber(ctx context.Context, sessionID, subscriberID string) error {
	query := `UPDATE scan_sessions SET subscriber_id = $1 WHERE id = $2;`
	res, err := s.pool.Exec(ctx, query, subscriberID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update subscriber: %w", err)
	}
	if res.RowsAffected() == 0 {
		return scan.ErrSessionNotFound
	}
	return nil
}

// IncrementProcessed atomically adds one to the processed count and reads the
// post-increment counts in the same statement.
func (s *SessionStore) IncrementProcessed(ctx context.Context, sessionID string) (scan.SessionCount, error) {
	query := `
		UPDATE scan_sessions
		SET processed_count = processed_count + 1
		WHERE id = $1
		RETURNING processed_count, total_items;
	`
	var count scan.SessionCount
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(&count.Processed, &count.Total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scan.SessionCount{}, scan.ErrSessionNotFound
		}
		return scan.SessionCount{}, fmt.Errorf("failed to increment processed count: %w", err)
	}
	return count, nil
}

// MarkComplete transitions IN_PROGRESS -> COMPLETE. The status guard in the
// WHERE clause makes a second call a no-op, which it reports via false.
func (s *SessionStore) MarkComplete(ctx context.Context, sessionID string) (bool, error) {
	query := `
		UPDATE scan_sessions
		SET status = $1
		WHERE id = $2 AND status = $3;
	`
	res, err := s.pool.Exec(ctx, query, scan.SessionComplete, sessionID, scan.SessionInProgress)
	if err != nil {
		return false, fmt.Errorf("failed to mark session complete: %w", err)
	}
	return res.RowsAffected() == 1, nil
}

// PutResult inserts an item result. ON CONFLICT DO NOTHING absorbs queue
// redeliveries; the return value reports whether this call inserted the row.
func (s *SessionStore) PutResult(ctx context.Context, result scan.ItemResult) (bool, error) {
	query := `
		INSERT INTO scan_results (session_id, item_id, matched_codes, status, doc_name, doc_link, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, item_id) DO NOTHING;
	`
	res, err := s.pool.Exec(
		ctx,
		query,
		result.SessionID,
		result.ItemID,
		result.MatchedCodes,
		result.Status,
		result.DocName,
		result.DocLink,
		result.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to put result: %w", err)
	}
	return res.RowsAffected() == 1, nil
}

// ListResults retrieves all recorded results for a session.
func (s *SessionStore) ListResults(ctx context.Context, sessionID string) ([]scan.ItemResult, error) {
	query := `
		SELECT session_id, item_id, matched_codes, status, doc_name, doc_link, completed_at
		FROM scan_results
		WHERE session_id = $1
		ORDER BY completed_at ASC;
	`
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []scan.ItemResult
	for rows.Next() {
		var result scan.ItemResult
		err := rows.Scan(
			&result.SessionID,
			&result.ItemID,
			&result.MatchedCodes,
			&result.Status,
			&result.DocName,
			&result.DocLink,
			&result.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result rows: %w", err)
	}
	return results, nil
}
