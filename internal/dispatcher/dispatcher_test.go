package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/isotools/drawscan/internal/metrics"
	"github.com/isotools/drawscan/internal/notify"
	"github.com/isotools/drawscan/internal/scan"
	"github.com/isotools/drawscan/internal/storage/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type recordingQueue struct {
	mu      sync.Mutex
	batches [][]scan.WorkItem
	err     error
}

func (q *recordingQueue) Publish(_ context.Context, batch []scan.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	copied := make([]scan.WorkItem, len(batch))
	copy(copied, batch)
	q.batches = append(q.batches, copied)
	return nil
}

func (q *recordingQueue) all() []scan.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []scan.WorkItem
	for _, b := range q.batches {
		out = append(out, b...)
	}
	return out
}

type staticSource struct {
	items []scan.ItemDescriptor
	err   error
}

func (s *staticSource) EnumerateItems(_ context.Context, _ string) ([]scan.ItemDescriptor, error) {
	return s.items, s.err
}

func (s *staticSource) FetchDocument(_ context.Context, _ string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

type countingReports struct {
	mu    sync.Mutex
	calls int
}

func (r *countingReports) BuildReport(_ context.Context, sessionID string, _ []scan.ItemResult) (scan.ReportHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return scan.ReportHandle{DownloadURL: "https://reports.example/" + sessionID}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Send(_ context.Context, _ string, evt notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) types() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.EventType, len(n.events))
	for i, evt := range n.events {
		out[i] = evt.EventType()
	}
	return out
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%04d", g.n), nil
}

func descriptors(n int) []scan.ItemDescriptor {
	out := make([]scan.ItemDescriptor, n)
	for i := range out {
		out[i] = scan.ItemDescriptor{
			DocRef:  fmt.Sprintf("ref-%d", i),
			DocName: fmt.Sprintf("doc-%d.pdf", i),
		}
	}
	return out
}

func newTestDispatcher(
	store scan.SessionStore,
	queue *recordingQueue,
	source *staticSource,
	reports *countingReports,
	notifier *recordingNotifier,
	batchSize int,
) *Dispatcher {
	return New(
		store,
		queue,
		source,
		reports,
		notifier,
		fixedClock{now: time.Unix(1700000000, 0).UTC()},
		&seqIDGen{},
		batchSize,
		nil,
	)
}

func TestStartSessionPublishesAllItemsInBatches(t *testing.T) {
	t.Parallel()

	store := memory.NewSessionStore()
	queue := &recordingQueue{}
	source := &staticSource{items: descriptors(23)}
	reports := &countingReports{}
	notifier := &recordingNotifier{}

	d := newTestDispatcher(store, queue, source, reports, notifier, 10)

	sessionID, err := d.StartSession(context.Background(), "folder-ref", []string{"AB12"})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	d.Wait()

	items := queue.all()
	if len(items) != 23 {
		t.Fatalf("expected 23 published items, got %d", len(items))
	}
	if got := len(queue.batches); got != 3 {
		t.Fatalf("expected 3 batches, got %d", got)
	}
	for _, item := range items {
		if item.SessionID != sessionID {
			t.Fatalf("expected item session %q, got %q", sessionID, item.SessionID)
		}
		if len(item.TargetCodes) != 1 || item.TargetCodes[0] != "AB12" {
			t.Fatalf("expected denormalized target codes, got %v", item.TargetCodes)
		}
	}

	session, err := store.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if session.TotalItems != 23 {
		t.Fatalf("expected total 23, got %d", session.TotalItems)
	}
	if session.Status != scan.SessionInProgress {
		t.Fatalf("expected session to stay in progress, got %v", session.Status)
	}

	types := notifier.types()
	if len(types) != 1 || types[0] != notify.TypeStarted {
		t.Fatalf("expected a single STARTED event, got %v", types)
	}
}

func TestStartSessionEmptyFolderCompletesImmediately(t *testing.T) {
	t.Parallel()

	store := memory.NewSessionStore()
	queue := &recordingQueue{}
	source := &staticSource{}
	reports := &countingReports{}
	notifier := &recordingNotifier{}

	d := newTestDispatcher(store, queue, source, reports, notifier, 10)

	sessionID, err := d.StartSession(context.Background(), "folder-ref", []string{"AB12"})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	d.Wait()

	if len(queue.all()) != 0 {
		t.Fatal("expected no queue traffic for an empty folder")
	}
	if reports.calls != 1 {
		t.Fatalf("expected exactly one report build, got %d", reports.calls)
	}

	session, err := store.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if session.Status != scan.SessionComplete {
		t.Fatalf("expected COMPLETE, got %v", session.Status)
	}

	types := notifier.types()
	if len(types) != 2 || types[0] != notify.TypeStarted || types[1] != notify.TypeComplete {
		t.Fatalf("expected STARTED then COMPLETE, got %v", types)
	}
}

func TestStartSessionEnumerationFailureNotifiesError(t *testing.T) {
	t.Parallel()

	store := memory.NewSessionStore()
	queue := &recordingQueue{}
	source := &staticSource{err: errors.New("folder unreachable")}
	reports := &countingReports{}
	notifier := &recordingNotifier{}

	d := newTestDispatcher(store, queue, source, reports, notifier, 10)

	if _, err := d.StartSession(context.Background(), "folder-ref", []string{"AB12"}); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	d.Wait()

	types := notifier.types()
	if len(types) != 1 || types[0] != notify.TypeError {
		t.Fatalf("expected a single ERROR event, got %v", types)
	}
	if len(queue.all()) != 0 {
		t.Fatal("expected no queue traffic after enumeration failure")
	}
}

func TestStartSessionFailedBatchDoesNotCorrectTotal(t *testing.T) {
	t.Parallel()

	store := memory.NewSessionStore()
	queue := &recordingQueue{err: errors.New("broker down")}
	source := &staticSource{items: descriptors(5)}
	reports := &countingReports{}
	notifier := &recordingNotifier{}

	d := newTestDispatcher(store, queue, source, reports, notifier, 10)

	sessionID, err := d.StartSession(context.Background(), "folder-ref", []string{"AB12"})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	d.Wait()

	session, err := store.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if session.TotalItems != 5 {
		t.Fatalf("expected total to remain 5 after a lost batch, got %d", session.TotalItems)
	}
	if session.Status != scan.SessionInProgress {
		t.Fatalf("expected session to remain in progress, got %v", session.Status)
	}
}

func TestStartSessionValidatesInput(t *testing.T) {
	t.Parallel()

	store := memory.NewSessionStore()
	d := newTestDispatcher(store, &recordingQueue{}, &staticSource{}, &countingReports{}, &recordingNotifier{}, 10)

	if _, err := d.StartSession(context.Background(), "", []string{"AB12"}); err == nil {
		t.Fatal("expected error for missing source reference")
	}
	if _, err := d.StartSession(context.Background(), "folder-ref", nil); err == nil {
		t.Fatal("expected error for missing target codes")
	}
}
