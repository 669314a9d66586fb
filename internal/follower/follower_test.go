package follower

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/runview/internal/domain"
	"github.com/xiaot623/runview/internal/hub"
	"github.com/xiaot623/runview/internal/protocol"
	"github.com/xiaot623/runview/internal/service"
	"github.com/xiaot623/runview/internal/statestore"
	transporthttp "github.com/xiaot623/runview/internal/transport/http"
	v1 "github.com/xiaot623/runview/internal/transport/http/v1"
	"github.com/xiaot623/runview/internal/transport/ws"
	"github.com/xiaot623/runview/internal/viewstate"
	"github.com/xiaot623/runview/tests/helpers"
)

type testServer struct {
	svc *service.Service
	hub *hub.Hub
	dir string
	url string
}

func newTestServer(t *testing.T, withStream bool) *testServer {
	t.Helper()
	dir := helpers.NewStateDir(t, helpers.RunsV1)
	h := hub.NewHub(64, nil)
	svc := service.New(statestore.NewReader(dir), h, nil, service.Options{}, nil)
	require.NoError(t, svc.PollOnce(context.Background()))

	var e *echo.Echo
	if withStream {
		wsServer := ws.NewServer(ws.Config{
			PingInterval:   time.Second,
			WriteTimeout:   time.Second,
			ReadTimeout:    5 * time.Second,
			MaxMessageSize: 1024,
		}, h, svc, nil)
		e = transporthttp.NewServer(svc, wsServer)
	} else {
		e = echo.New()
		v1.NewHandler(svc).RegisterRoutes(e)
	}

	ts := httptest.NewServer(e)
	t.Cleanup(func() {
		h.CloseAll()
		ts.Close()
	})
	return &testServer{svc: svc, hub: h, dir: dir, url: ts.URL}
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) kinds() map[UpdateKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[UpdateKind]int)
	for _, u := range r.updates {
		out[u.Kind]++
	}
	return out
}

func runFollower(t *testing.T, f *Follower) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("follower did not stop")
		}
	})
}

func TestClientFetchSnapshot(t *testing.T) {
	srv := newTestServer(t, false)
	client := NewClient(srv.url+"/", nil)

	resp, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.Cursor)
	assert.Equal(t, srv.svc.BridgeID(), resp.BridgeID)
	require.Len(t, resp.Snapshot.Runs, 1)
	assert.Equal(t, "r1", resp.Snapshot.Runs[0].RunID)
}

func TestClientFetchLifecycle(t *testing.T) {
	srv := newTestServer(t, false)
	helpers.WriteRuns(t, srv.dir, helpers.RunsV2)
	require.NoError(t, srv.svc.PollOnce(context.Background()))
	client := NewClient(srv.url, nil)

	resp, err := client.FetchLifecycle(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, resp.Gap)
	assert.Len(t, resp.Envelopes, 2)

	resp, err = client.FetchLifecycle(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, resp.Gap)
	assert.Equal(t, int64(10), resp.Gap.RequestedCursor)
}

func TestClientFetchRunEventsReportsServerError(t *testing.T) {
	srv := newTestServer(t, false)
	client := NewClient(srv.url, nil)

	_, err := client.FetchRunEvents(context.Background(), "r1", 0, []string{"end"}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive is disabled")
}

func TestClientStreamURL(t *testing.T) {
	cursor := int64(7)
	assert.Equal(t, "ws://localhost:8080/v1/stream", NewClient("http://localhost:8080/", nil).StreamURL(nil))
	assert.Equal(t, "wss://example.com/v1/stream?cursor=7", NewClient("https://example.com", nil).StreamURL(&cursor))
}

func TestFetchSnapshotSupersedesInFlightRequest(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-r.Context().Done()
			return
		}
		w.Header().Set(protocol.HeaderLifecycleCursor, "5")
		w.Header().Set(protocol.HeaderLifecycleBridge, "b2")
		_ = json.NewEncoder(w).Encode(domain.Snapshot{GeneratedAt: 42})
	}))
	defer ts.Close()
	client := NewClient(ts.URL, nil)

	firstErr := make(chan error, 1)
	go func() {
		_, err := client.FetchSnapshot(context.Background())
		firstErr <- err
	}()
	<-started

	resp, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Cursor)
	assert.Equal(t, int64(42), resp.Snapshot.GeneratedAt)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("first fetch did not return")
	}
}

func TestFollowerStreamsLifecycle(t *testing.T) {
	srv := newTestServer(t, true)
	rec := &recorder{}
	f := New(Config{BaseURL: srv.url, ReconnectDelay: 20 * time.Millisecond, OnUpdate: rec.record}, nil, nil)
	runFollower(t, f)

	require.Eventually(t, func() bool {
		return f.Store().Current() != nil && f.Store().Connectivity() == viewstate.ConnectivityLive
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.svc.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	helpers.WriteRuns(t, srv.dir, helpers.RunsV2)
	require.NoError(t, srv.svc.PollOnce(context.Background()))

	require.Eventually(t, func() bool { return f.Store().Cursor() == 2 }, 2*time.Second, 10*time.Millisecond)
	current := f.Store().Current()
	assert.Equal(t, "r1:end", current.Events[0].ID)
	assert.Len(t, current.Runs, 2)
	assert.GreaterOrEqual(t, rec.kinds()[UpdateLifecycle], 1)
	assert.Empty(t, f.Store().Notice())
}

func TestFollowerResyncsAfterGap(t *testing.T) {
	srv := newTestServer(t, true)
	helpers.WriteRuns(t, srv.dir, helpers.RunsV2)
	require.NoError(t, srv.svc.PollOnce(context.Background()))

	// A view left over from an earlier server whose cursor is far ahead.
	store := viewstate.NewStore(0)
	store.ApplySnapshot(&domain.Snapshot{GeneratedAt: 1}, 50)

	rec := &recorder{}
	f := New(Config{BaseURL: srv.url, ReconnectDelay: 20 * time.Millisecond, OnUpdate: rec.record}, store, nil)
	runFollower(t, f)

	require.Eventually(t, func() bool { return store.Cursor() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, rec.kinds()[UpdateGap])
	assert.False(t, store.NeedsResync())
	assert.Len(t, store.Current().Runs, 2)
}

func TestFollowerRedialsWhenResyncAfterGapFails(t *testing.T) {
	srv := newTestServer(t, true)
	helpers.WriteRuns(t, srv.dir, helpers.RunsV2)
	require.NoError(t, srv.svc.PollOnce(context.Background()))

	// Snapshot fetches fail; only the stream can bring the view back.
	proxy := httputil.NewSingleHostReverseProxy(mustParseURL(t, srv.url))
	var snapshotCalls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/snapshot" {
			atomic.AddInt32(&snapshotCalls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"state store unavailable"}`))
			return
		}
		proxy.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	store := viewstate.NewStore(0)
	store.ApplySnapshot(&domain.Snapshot{GeneratedAt: 1}, 50)

	rec := &recorder{}
	f := New(Config{
		BaseURL:        ts.URL,
		PollInterval:   20 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
		OnUpdate:       rec.record,
	}, store, nil)
	runFollower(t, f)

	require.Eventually(t, func() bool {
		return store.Cursor() == 2 && !store.NeedsResync()
	}, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, rec.kinds()[UpdateGap], 1)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&snapshotCalls), int32(1))
	assert.Len(t, store.Current().Runs, 2)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestFollowerPollsWhenStreamUnavailable(t *testing.T) {
	srv := newTestServer(t, false)
	f := New(Config{
		BaseURL:        srv.url,
		PollInterval:   20 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
	}, nil, nil)
	runFollower(t, f)

	require.Eventually(t, func() bool {
		return f.Store().Current() != nil && f.Store().Connectivity() == viewstate.ConnectivityPolling
	}, 2*time.Second, 10*time.Millisecond)

	helpers.WriteRuns(t, srv.dir, helpers.RunsV2)
	require.NoError(t, srv.svc.PollOnce(context.Background()))
	assert.Eventually(t, func() bool {
		return len(f.Store().Current().Runs) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFollowerOfflineWhenServerUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	f := New(Config{BaseURL: url, PollInterval: 20 * time.Millisecond, ReconnectDelay: 20 * time.Millisecond}, nil, nil)
	runFollower(t, f)

	assert.Eventually(t, func() bool {
		return f.Store().Connectivity() == viewstate.ConnectivityOffline
	}, 2*time.Second, 10*time.Millisecond)
}
