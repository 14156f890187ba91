// Package scan defines core types shared across subsystems.
package scan

import (
	"time"
)

// SessionStatus represents the lifecycle state of a scan session.
type SessionStatus string

// Session status values persisted in the session store. The transition
// IN_PROGRESS -> COMPLETE is one-way and happens at most once per session.
const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionComplete   SessionStatus = "COMPLETE"
)

// StatusNoMatch is the per-item status label recorded when a document contains
// none of the target codes (including documents that failed to process).
const StatusNoMatch = "No Match"

// Session is the metadata persisted for one batch of submitted work.
type Session struct {
	// ID is an opaque unique token identifying the batch.
	ID string `json:"id"`
	// TotalItems is fixed once enumeration finishes and never corrected,
	// even when a publish batch is lost.
	TotalItems int `json:"total_items"`
	// ProcessedCount is advanced only through the store's atomic increment.
	ProcessedCount int `json:"processed_count"`
	// Status is IN_PROGRESS until the final increment is observed.
	Status SessionStatus `json:"status"`
	// SubscriberID references the client connection currently attached for
	// push notifications. It may be stale; delivery to it is best-effort.
	SubscriberID string `json:"subscriber_id,omitempty"`
	// TargetCodes are the hole codes the batch is being scanned for.
	TargetCodes []string `json:"target_codes"`
	// CreatedAt is set by the dispatcher when the session row is written.
	CreatedAt time.Time `json:"created_at"`
}

// WorkItem is one unit of work: one document to scan for the session's target
// codes. The codes are denormalized into the message so a worker needs no
// session lookup before processing.
type WorkItem struct {
	ItemID      string   `json:"item_id"`
	SessionID   string   `json:"session_id"`
	DocRef      string   `json:"doc_ref"`
	DocName     string   `json:"doc_name"`
	DocLink     string   `json:"doc_link,omitempty"`
	TargetCodes []string `json:"target_codes"`
}

// ItemResult records the outcome of scanning one document. Results are only
// persisted for documents with at least one match; they are immutable once
// written.
type ItemResult struct {
	ItemID       string    `json:"item_id"`
	SessionID    string    `json:"session_id"`
	MatchedCodes []string  `json:"matched_codes"`
	Status       string    `json:"status"`
	DocName      string    `json:"doc_name"`
	DocLink      string    `json:"doc_link,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// ItemDescriptor is what source enumeration yields for each document.
type ItemDescriptor struct {
	DocRef  string
	DocName string
	DocLink string
}

// ReportHandle is the retrievable output of report generation. The URL is
// valid only until ExpiresAt.
type ReportHandle struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Snapshot is the full client-facing view of a session, sufficient to rebuild
// UI state without replaying queue messages.
type Snapshot struct {
	Session  Session      `json:"session"`
	Results  []ItemResult `json:"results"`
	Progress float64      `json:"progress"`
}

// ProgressOf computes the completion ratio for a session. A session with no
// items reports zero rather than dividing by zero.
func ProgressOf(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(processed) / float64(total)
}
