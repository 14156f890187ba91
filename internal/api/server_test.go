package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/isotools/drawscan/internal/config"
	"github.com/isotools/drawscan/internal/dispatcher"
	"github.com/isotools/drawscan/internal/metrics"
	"github.com/isotools/drawscan/internal/notify"
	"github.com/isotools/drawscan/internal/report"
	"github.com/isotools/drawscan/internal/resync"
	"github.com/isotools/drawscan/internal/scan"
	clockSystem "github.com/isotools/drawscan/internal/clock/system"
	idUUID "github.com/isotools/drawscan/internal/id/uuid"
	queueMemory "github.com/isotools/drawscan/internal/queue/memory"
	"github.com/isotools/drawscan/internal/source"
	storeMemory "github.com/isotools/drawscan/internal/storage/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type serverFixture struct {
	server   *Server
	store    *storeMemory.SessionStore
	registry *notify.Registry
	disp     *dispatcher.Dispatcher
}

func newFixture(t *testing.T, cfg config.Config) *serverFixture {
	t.Helper()

	store := storeMemory.NewSessionStore()
	registry := notify.NewRegistry(zap.NewNop())
	src := source.NewStaticSource()
	src.AddDocument("ref-1", "a.pdf", []byte("stub"))
	reports := report.NewBuilder(report.NewMemoryStore(), "reports", time.Hour, clockSystem.New(), zap.NewNop())
	disp := dispatcher.New(
		store,
		queueMemory.NewQueue(16),
		src,
		reports,
		registry,
		clockSystem.New(),
		idUUID.New(),
		10,
		zap.NewNop(),
	)
	resyncSvc := resync.New(store, registry, zap.NewNop())
	server := NewServer(store, disp, resyncSvc, cfg, zap.NewNop())
	return &serverFixture{server: server, store: store, registry: registry, disp: disp}
}

func TestServer_CreateSession_Succeeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	reqBody := []byte(`{"folder_link":"https://drive.google.com/drive/folders/1AbC","target_codes":["MH-01"]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	f.server.Handler().ServeHTTP(rec, req)
	f.disp.Wait()

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["session_id"])

	session, err := f.store.GetSession(context.Background(), resp["session_id"])
	require.NoError(t, err)
	require.Equal(t, 1, session.TotalItems)
}

func TestServer_CreateSession_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "missing folder link", body: `{"target_codes":["MH-01"]}`},
		{name: "missing target codes", body: `{"folder_link":"https://drive.google.com/drive/folders/1AbC"}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/v1/sessions/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestServer_GetSession_ReturnsSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	err := f.store.CreateSession(context.Background(), scan.Session{
		ID:          "s1",
		TotalItems:  10,
		Status:      scan.SessionInProgress,
		TargetCodes: []string{"MH-01"},
	})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = f.store.IncrementProcessed(context.Background(), "s1")
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot scan.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.Equal(t, "s1", snapshot.Session.ID)
	require.Equal(t, 5, snapshot.Session.ProcessedCount)
	require.InDelta(t, 0.5, snapshot.Progress, 1e-9)
	require.NotNil(t, snapshot.Results)
}

func TestServer_GetSession_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{
		Auth: config.AuthConfig{Enabled: true, APIKey: "secret"},
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_SessionWebSocket_SyncAndLiveEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	err := f.store.CreateSession(context.Background(), scan.Session{
		ID:          "s1",
		TotalItems:  4,
		Status:      scan.SessionInProgress,
		TargetCodes: []string{"MH-01"},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/s1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var sync map[string]any
	require.NoError(t, json.Unmarshal(frame, &sync))
	require.Equal(t, string(notify.TypeSyncState), sync["type"])
	require.Equal(t, "s1", sync["session_id"])

	// A live event pushed through the registry reaches the socket.
	f.registry.Send(context.Background(), "s1", notify.NewProgress(2, 4))
	_, frame, err = conn.ReadMessage()
	require.NoError(t, err)

	var progress map[string]any
	require.NoError(t, json.Unmarshal(frame, &progress))
	require.Equal(t, string(notify.TypeProgress), progress["type"])
	require.EqualValues(t, 50, progress["value"])
}

func TestServer_SessionWebSocket_UnknownSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/missing/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt map[string]any
	require.NoError(t, json.Unmarshal(frame, &evt))
	require.Equal(t, string(notify.TypeError), evt["type"])

	// The server closes the socket after the error event.
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
