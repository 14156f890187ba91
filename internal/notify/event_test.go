package notify

import (
	"encoding/json"
	"testing"

	"github.com/isotools/drawscan/internal/scan"
)

func TestNewProgress_Value(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		processed int
		total     int
		want      int
	}{
		{name: "zero total", processed: 3, total: 0, want: 0},
		{name: "partial", processed: 25, total: 100, want: 25},
		{name: "rounds down", processed: 1, total: 3, want: 33},
		{name: "complete", processed: 10, total: 10, want: 100},
		{name: "overshoot capped", processed: 12, total: 10, want: 100},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewProgress(tt.processed, tt.total); got.Value != tt.want {
				t.Fatalf("NewProgress(%d, %d).Value = %d, want %d", tt.processed, tt.total, got.Value, tt.want)
			}
		})
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{name: "started ok", evt: NewStarted("s1", 5)},
		{name: "started missing session", evt: Started{Type: TypeStarted, Total: 5}, wantErr: true},
		{name: "started negative total", evt: Started{Type: TypeStarted, SessionID: "s1", Total: -1}, wantErr: true},
		{name: "progress ok", evt: NewProgress(2, 10)},
		{name: "progress negative", evt: Progress{Type: TypeProgress, Processed: -1}, wantErr: true},
		{
			name: "match ok",
			evt: NewMatchFound(scan.ItemResult{
				ItemID:       "i1",
				MatchedCodes: []string{"MH-01"},
				Status:       "1 Code",
			}),
		},
		{name: "match without codes", evt: NewMatchFound(scan.ItemResult{ItemID: "i1"}), wantErr: true},
		{
			name: "sync ok",
			evt: NewSyncState(scan.Snapshot{
				Session: scan.Session{ID: "s1", Status: scan.SessionInProgress},
			}),
		},
		{
			name: "sync unknown status",
			evt: NewSyncState(scan.Snapshot{
				Session: scan.Session{ID: "s1", Status: "PAUSED"},
			}),
			wantErr: true,
		},
		{name: "complete ok", evt: NewComplete(scan.ReportHandle{DownloadURL: "u"}, 1, 3)},
		{name: "error ok", evt: NewError("boom")},
		{name: "error empty message", evt: Error{Type: TypeError}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.evt.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSyncState_SerializesEmptyResults(t *testing.T) {
	t.Parallel()

	evt := NewSyncState(scan.Snapshot{
		Session: scan.Session{ID: "s1", Status: scan.SessionInProgress},
	})
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	results, ok := decoded["results"].([]any)
	if !ok {
		t.Fatalf("results = %v, want JSON array", decoded["results"])
	}
	if len(results) != 0 {
		t.Fatalf("results length = %d, want 0", len(results))
	}
}
