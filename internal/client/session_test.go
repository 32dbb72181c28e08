package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "github.com/wfpaisa/plane-bookmarks/internal/api/http"
	"github.com/wfpaisa/plane-bookmarks/internal/api/ws"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/coordinator"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/monitoring"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/types"
)

var errDiskFull = errors.New("disk full")

type memStore struct {
	mu      sync.Mutex
	forest  tree.Forest
	failErr error
}

func (m *memStore) Load(context.Context) (tree.Forest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forest.Clone(), nil
}

func (m *memStore) Save(_ context.Context, f tree.Forest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.forest = f.Clone()
	return nil
}

func (m *memStore) Clear(ctx context.Context) error { return m.Save(ctx, tree.Forest{}) }

func (m *memStore) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func sampleForest() tree.Forest {
	return tree.Forest{
		{ID: "dev", Name: "Desarrollo", Children: []*tree.Node{
			{ID: "react", Name: "React", URL: "https://react.dev"},
		}},
		{ID: "blog", Name: "Blog", URL: "https://dev.to"},
	}
}

func nameOf(t *testing.T, f tree.Forest, id string) string {
	t.Helper()
	n, err := tree.Find(f, id)
	require.NoError(t, err)
	return n.Name
}

func encodeForest(t *testing.T, f tree.Forest) string {
	t.Helper()
	data, err := sonic.Marshal(f)
	require.NoError(t, err)
	return string(data)
}

// backend runs a coordinator and hub behind both transports.
type backend struct {
	store *memStore
	coord *coordinator.Coordinator
	base  string
	ws    string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &memStore{forest: sampleForest()}
	coord := coordinator.New(coordinator.Options{Store: store})
	require.NoError(t, coord.Start(context.Background()))

	hub := ws.NewHub(coord, ws.Config{}, nil, monitoring.NewMetrics())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	router := gin.New()
	handlers := httpapi.NewHandlers(coord, hub, nil)
	router.GET("/health", handlers.Health)
	handlers.Register(router)
	router.GET("/ws", hub.HandleConnection)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
		_ = coord.Stop(context.Background())
	})

	return &backend{
		store: store,
		coord: coord,
		base:  srv.URL,
		ws:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (b *backend) session(t *testing.T, opts Options) *Session {
	t.Helper()
	opts.URL = b.ws
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s, err := Dial(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDialReceivesSnapshot(t *testing.T) {
	b := newBackend(t)
	s := b.session(t, Options{})

	assert.True(t, s.Connected())
	assert.Equal(t, uint64(0), s.Revision())
	assert.Equal(t, encodeForest(t, sampleForest()), encodeForest(t, s.Forest()))
}

func TestDialFailsWithoutServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := Dial(context.Background(), Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"})
	assert.Error(t, err)
}

func TestUpdateIsAcknowledged(t *testing.T) {
	b := newBackend(t)
	s := b.session(t, Options{})

	res, err := s.Update(context.Background(), coordinator.Intent{Op: coordinator.OpRename, ID: "blog", Name: "Blog personal"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Revision)

	assert.Equal(t, "Blog personal", nameOf(t, s.Forest(), "blog"))
	assert.Eventually(t, func() bool { return s.Revision() == 1 }, time.Second, 10*time.Millisecond)

	server, _ := b.coord.Snapshot()
	assert.Equal(t, encodeForest(t, server), encodeForest(t, s.Forest()))
}

func TestInsertKeepsServerID(t *testing.T) {
	b := newBackend(t)
	s := b.session(t, Options{})

	res, err := s.Update(context.Background(), coordinator.Intent{Op: coordinator.OpInsert, ParentID: "dev", Kind: "folder"})
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)

	server, _ := b.coord.Snapshot()
	assert.Equal(t, tree.DefaultFolderName, nameOf(t, server, res.ID))
	assert.Equal(t, encodeForest(t, server), encodeForest(t, s.Forest()))
}

func TestSessionsConverge(t *testing.T) {
	b := newBackend(t)

	var seen atomic.Uint64
	watcher := b.session(t, Options{OnUpdate: func(rev uint64, _ tree.Forest) { seen.Store(rev) }})
	editor := b.session(t, Options{})

	ctx := context.Background()
	_, err := editor.Update(ctx, coordinator.Intent{Op: coordinator.OpMove, IDs: []string{"blog"}, ParentID: "dev"})
	require.NoError(t, err)
	_, err = watcher.Update(ctx, coordinator.Intent{Op: coordinator.OpToggle, ID: "dev"})
	require.NoError(t, err)
	_, err = editor.Update(ctx, coordinator.Intent{Op: coordinator.OpRename, ID: "react", Name: "React 19"})
	require.NoError(t, err)

	server, rev := b.coord.Snapshot()
	require.Equal(t, uint64(3), rev)
	want := encodeForest(t, server)

	assert.Eventually(t, func() bool {
		return watcher.Revision() == 3 && editor.Revision() == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, encodeForest(t, watcher.Forest()))
	assert.Equal(t, want, encodeForest(t, editor.Forest()))
	assert.Equal(t, uint64(3), seen.Load())
}

func TestLocallyInvalidUpdateIsNotSent(t *testing.T) {
	b := newBackend(t)
	s := b.session(t, Options{})

	_, err := s.Update(context.Background(), coordinator.Intent{Op: coordinator.OpRename, ID: "ghost", Name: "x"})
	assert.ErrorIs(t, err, tree.ErrNotFound)
	assert.Equal(t, uint64(0), b.coord.Revision())
}

func TestRejectedUpdateRollsBack(t *testing.T) {
	b := newBackend(t)
	s := b.session(t, Options{})
	b.store.fail(errDiskFull)

	_, err := s.Update(context.Background(), coordinator.Intent{Op: coordinator.OpDelete, IDs: []string{"blog"}})
	require.Error(t, err)
	assert.True(t, IsCode(err, types.CodeIO), "got %v", err)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Zero(t, remote.Status)

	assert.Equal(t, encodeForest(t, sampleForest()), encodeForest(t, s.Forest()))
	assert.Equal(t, uint64(0), s.Revision())
}

func TestEmptyReplaceClears(t *testing.T) {
	b := newBackend(t)
	s := b.session(t, Options{})

	_, err := s.Update(context.Background(), coordinator.Replace(tree.Forest{}))
	require.NoError(t, err)
	assert.Empty(t, s.Forest())

	server, _ := b.coord.Snapshot()
	assert.Empty(t, server)
}

func TestUpdateAfterClose(t *testing.T) {
	b := newBackend(t)
	s := b.session(t, Options{})
	require.NoError(t, s.Close())

	_, err := s.Update(context.Background(), coordinator.Intent{Op: coordinator.OpToggle, ID: "dev"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, s.Connected())
}

// scripted is a websocket server whose frames are written by the test.
type scripted struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	down  atomic.Bool
}

func newScripted(t *testing.T) *scripted {
	t.Helper()
	sc := &scripted{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	sc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sc.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc.conns <- conn
	}))
	t.Cleanup(sc.srv.Close)
	return sc
}

func (sc *scripted) url() string {
	return "ws" + strings.TrimPrefix(sc.srv.URL, "http") + "/ws"
}

func (sc *scripted) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-sc.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

// dial connects a session and answers it with a snapshot of f at rev.
func (sc *scripted) dial(t *testing.T, opts Options, rev uint64, f tree.Forest) (*Session, *websocket.Conn) {
	t.Helper()
	opts.URL = sc.url()

	type dialed struct {
		s   *Session
		err error
	}
	ch := make(chan dialed, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s, err := Dial(ctx, opts)
		ch <- dialed{s, err}
	}()

	conn := sc.accept(t)
	writeForest(t, conn, rev, f)
	d := <-ch
	require.NoError(t, d.err)
	t.Cleanup(func() { _ = d.s.Close() })
	return d.s, conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, event, requestID string, payload any) {
	t.Helper()
	data, err := sonic.Marshal(payload)
	require.NoError(t, err)
	frame, err := sonic.Marshal(types.Envelope{Event: event, RequestID: requestID, Data: data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func writeForest(t *testing.T, conn *websocket.Conn, rev uint64, f tree.Forest) {
	t.Helper()
	data, err := sonic.Marshal(f)
	require.NoError(t, err)
	writeFrame(t, conn, types.EventUpdated, "", types.Updated{Revision: rev, Data: data})
}

func readUpdate(t *testing.T, conn *websocket.Conn) (string, coordinator.Intent) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env types.Envelope
	require.NoError(t, sonic.Unmarshal(data, &env))
	require.Equal(t, types.EventUpdate, env.Event)
	require.NotEmpty(t, env.RequestID)

	in, err := coordinator.DecodeIntent(env.Data)
	require.NoError(t, err)
	return env.RequestID, in
}

type updateResult struct {
	res Result
	err error
}

func updateAsync(s *Session, in coordinator.Intent) <-chan updateResult {
	ch := make(chan updateResult, 1)
	go func() {
		res, err := s.Update(context.Background(), in)
		ch <- updateResult{res, err}
	}()
	return ch
}

func TestAckTimeoutThenLateAck(t *testing.T) {
	sc := newScripted(t)
	s, conn := sc.dial(t, Options{AckTimeout: 100 * time.Millisecond}, 0, sampleForest())

	done := updateAsync(s, coordinator.Intent{Op: coordinator.OpRename, ID: "blog", Name: "Blog 2"})
	requestID, in := readUpdate(t, conn)
	assert.Equal(t, coordinator.OpRename, in.Op)

	r := <-done
	assert.ErrorIs(t, r.err, ErrAckTimeout)
	assert.Equal(t, "Blog", nameOf(t, s.Forest(), "blog"))

	// The server did apply it; the late answer is still honored.
	writeFrame(t, conn, types.EventSaved, requestID, types.Saved{Success: true, Revision: 1})
	assert.Eventually(t, func() bool { return s.Revision() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Blog 2", nameOf(t, s.Forest(), "blog"))
}

func TestAckBeforePrecedingForest(t *testing.T) {
	sc := newScripted(t)
	s, conn := sc.dial(t, Options{}, 0, sampleForest())

	done := updateAsync(s, coordinator.Intent{Op: coordinator.OpRename, ID: "blog", Name: "Blog 2"})
	requestID, _ := readUpdate(t, conn)

	// Revision 1 came from another session and has not reached us yet.
	writeFrame(t, conn, types.EventSaved, requestID, types.Saved{Success: true, Revision: 2})
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, uint64(2), r.res.Revision)
	assert.Equal(t, "Blog 2", nameOf(t, s.Forest(), "blog"))
	assert.Equal(t, uint64(0), s.Revision())

	other, err := tree.Rename(sampleForest(), "react", "React 19")
	require.NoError(t, err)
	writeForest(t, conn, 1, other)

	assert.Eventually(t, func() bool { return s.Revision() == 2 }, time.Second, 10*time.Millisecond)
	f := s.Forest()
	assert.Equal(t, "Blog 2", nameOf(t, f, "blog"))
	assert.Equal(t, "React 19", nameOf(t, f, "react"))
}

func TestStaleForestIsIgnored(t *testing.T) {
	sc := newScripted(t)
	s, conn := sc.dial(t, Options{}, 4, sampleForest())

	writeForest(t, conn, 3, tree.Forest{})
	writeForest(t, conn, 5, tree.Forest{{ID: "only", Name: "Only"}})

	assert.Eventually(t, func() bool { return s.Revision() == 5 }, time.Second, 10*time.Millisecond)
	f := s.Forest()
	require.Len(t, f, 1)
	assert.Equal(t, "only", f[0].ID)
}

func TestRemoteErrorFrame(t *testing.T) {
	sc := newScripted(t)
	s, conn := sc.dial(t, Options{}, 0, sampleForest())

	done := updateAsync(s, coordinator.Intent{Op: coordinator.OpDelete, IDs: []string{"dev"}})
	requestID, _ := readUpdate(t, conn)
	writeFrame(t, conn, types.EventError, requestID, types.Failure{Error: "bookmark not found: dev", Code: types.CodeNotFound})

	r := <-done
	assert.True(t, IsCode(r.err, types.CodeNotFound))
	assert.Len(t, s.Forest(), 2)
}

func TestOfflineAndReconnect(t *testing.T) {
	sc := newScripted(t)
	status := make(chan bool, 8)
	s, conn := sc.dial(t, Options{
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
		OnStatus:   func(up bool) { status <- up },
	}, 0, sampleForest())
	require.True(t, <-status)

	// An update in flight fails when the connection drops.
	pending := updateAsync(s, coordinator.Intent{Op: coordinator.OpToggle, ID: "dev"})
	readUpdate(t, conn)
	sc.down.Store(true)
	require.NoError(t, conn.Close())

	r := <-pending
	assert.ErrorIs(t, r.err, ErrOffline)
	require.False(t, <-status)
	assert.False(t, s.Connected())

	// Offline changes stay local until the next snapshot.
	_, err := s.Update(context.Background(), coordinator.Intent{Op: coordinator.OpRename, ID: "blog", Name: "Offline"})
	assert.ErrorIs(t, err, ErrOffline)
	assert.Equal(t, "Offline", nameOf(t, s.Forest(), "blog"))

	sc.down.Store(false)
	next := sc.accept(t)
	require.True(t, <-status)

	fresh := tree.Forest{{ID: "blog", Name: "Blog", URL: "https://dev.to"}}
	writeForest(t, next, 7, fresh)

	assert.Eventually(t, func() bool { return s.Revision() == 7 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, encodeForest(t, fresh), encodeForest(t, s.Forest()))
}

func TestBroadcastReplacesPendingEdit(t *testing.T) {
	sc := newScripted(t)
	s, conn := sc.dial(t, Options{}, 0, sampleForest())

	done := updateAsync(s, coordinator.Intent{Op: coordinator.OpRename, ID: "blog", Name: "Mine"})
	requestID, _ := readUpdate(t, conn)
	assert.Equal(t, "Mine", nameOf(t, s.Forest(), "blog"))

	theirs, err := tree.Rename(sampleForest(), "blog", "Theirs")
	require.NoError(t, err)
	writeForest(t, conn, 1, theirs)
	assert.Eventually(t, func() bool { return nameOf(t, s.Forest(), "blog") == "Theirs" }, time.Second, 10*time.Millisecond)

	// The server applied ours after theirs.
	writeFrame(t, conn, types.EventSaved, requestID, types.Saved{Success: true, Revision: 2})
	require.NoError(t, (<-done).err)
	assert.Equal(t, "Mine", nameOf(t, s.Forest(), "blog"))
	assert.Equal(t, uint64(2), s.Revision())
}
