// Package notify defines the push event vocabulary and the per-session
// subscriber registry used to deliver it.
package notify

import (
	"errors"
	"fmt"

	"github.com/isotools/drawscan/internal/scan"
)

// EventType tags each wire event. The set and the field layout of each event
// are a stable contract with clients.
type EventType string

// Supported event types.
const (
	TypeStarted    EventType = "STARTED"
	TypeProgress   EventType = "PROGRESS"
	TypeMatchFound EventType = "MATCH_FOUND"
	TypeSyncState  EventType = "SYNC_STATE"
	TypeComplete   EventType = "COMPLETE"
	TypeError      EventType = "ERROR"
)

// Event is one typed push message. Each variant carries its own schema; there
// is no untyped payload map anywhere on the wire.
type Event interface {
	EventType() EventType
	Validate() error
}

// Started announces a dispatched session once enumeration has fixed the total.
type Started struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Total     int       `json:"total"`
}

// NewStarted builds a STARTED event.
func NewStarted(sessionID string, total int) Started {
	return Started{Type: TypeStarted, SessionID: sessionID, Total: total}
}

// EventType implements Event.
func (Started) EventType() EventType { return TypeStarted }

// Validate implements Event.
func (e Started) Validate() error {
	if e.SessionID == "" {
		return errors.New("started event requires session id")
	}
	if e.Total < 0 {
		return errors.New("total must be >= 0")
	}
	return nil
}

// Progress reports the aggregate processed count. Value is a whole percentage
// for clients driving a progress bar directly.
type Progress struct {
	Type      EventType `json:"type"`
	Value     int       `json:"value"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
}

// NewProgress builds a PROGRESS event from raw counts.
func NewProgress(processed, total int) Progress {
	value := 0
	if total > 0 {
		value = processed * 100 / total
		if value > 100 {
			value = 100
		}
	}
	return Progress{Type: TypeProgress, Value: value, Processed: processed, Total: total}
}

// EventType implements Event.
func (Progress) EventType() EventType { return TypeProgress }

// Validate implements Event.
func (e Progress) Validate() error {
	if e.Processed < 0 || e.Total < 0 {
		return errors.New("progress counts must be >= 0")
	}
	return nil
}

// MatchFound is pushed immediately when a document matched at least one code.
type MatchFound struct {
	Type    EventType `json:"type"`
	ItemID  string    `json:"item_id"`
	DocName string    `json:"doc_name"`
	Matches []string  `json:"matches"`
	Status  string    `json:"status"`
	DocLink string    `json:"doc_link,omitempty"`
}

// NewMatchFound builds a MATCH_FOUND event from a persisted result.
func NewMatchFound(result scan.ItemResult) MatchFound {
	return MatchFound{
		Type:    TypeMatchFound,
		ItemID:  result.ItemID,
		DocName: result.DocName,
		Matches: result.MatchedCodes,
		Status:  result.Status,
		DocLink: result.DocLink,
	}
}

// EventType implements Event.
func (MatchFound) EventType() EventType { return TypeMatchFound }

// Validate implements Event.
func (e MatchFound) Validate() error {
	if e.ItemID == "" {
		return errors.New("match event requires item id")
	}
	if len(e.Matches) == 0 {
		return errors.New("match event requires at least one match")
	}
	return nil
}

// SyncState is the one-shot snapshot emitted on (re)attach. It contains
// everything a client needs to rebuild its view from scratch.
type SyncState struct {
	Type        EventType         `json:"type"`
	SessionID   string            `json:"session_id"`
	Status      scan.SessionStatus `json:"status"`
	Total       int               `json:"total"`
	Processed   int               `json:"processed"`
	Progress    float64           `json:"progress"`
	TargetCodes []string          `json:"target_codes"`
	Results     []scan.ItemResult `json:"results"`
}

// NewSyncState builds a SYNC_STATE event from a store snapshot.
func NewSyncState(snapshot scan.Snapshot) SyncState {
	results := snapshot.Results
	if results == nil {
		results = []scan.ItemResult{}
	}
	return SyncState{
		Type:        TypeSyncState,
		SessionID:   snapshot.Session.ID,
		Status:      snapshot.Session.Status,
		Total:       snapshot.Session.TotalItems,
		Processed:   snapshot.Session.ProcessedCount,
		Progress:    snapshot.Progress,
		TargetCodes: snapshot.Session.TargetCodes,
		Results:     results,
	}
}

// EventType implements Event.
func (SyncState) EventType() EventType { return TypeSyncState }

// Validate implements Event.
func (e SyncState) Validate() error {
	if e.SessionID == "" {
		return errors.New("sync event requires session id")
	}
	switch e.Status {
	case scan.SessionInProgress, scan.SessionComplete:
	default:
		return fmt.Errorf("unknown session status %q", e.Status)
	}
	return nil
}

// Complete carries the report handle for a finished session.
type Complete struct {
	Type           EventType `json:"type"`
	DownloadURL    string    `json:"download_url"`
	TotalMatches   int       `json:"total_matches"`
	TotalProcessed int       `json:"total_processed"`
}

// NewComplete builds a COMPLETE event.
func NewComplete(handle scan.ReportHandle, totalMatches, totalProcessed int) Complete {
	return Complete{
		Type:           TypeComplete,
		DownloadURL:    handle.DownloadURL,
		TotalMatches:   totalMatches,
		TotalProcessed: totalProcessed,
	}
}

// EventType implements Event.
func (Complete) EventType() EventType { return TypeComplete }

// Validate implements Event.
func (e Complete) Validate() error {
	if e.TotalMatches < 0 || e.TotalProcessed < 0 {
		return errors.New("completion counts must be >= 0")
	}
	return nil
}

// Error is a user-visible failure event, e.g. resync of an unknown session.
type Error struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// NewError builds an ERROR event.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// EventType implements Event.
func (Error) EventType() EventType { return TypeError }

// Validate implements Event.
func (e Error) Validate() error {
	if e.Message == "" {
		return errors.New("error event requires a message")
	}
	return nil
}
