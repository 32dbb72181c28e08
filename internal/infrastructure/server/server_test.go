package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/coordinator"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/config"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/types"
)

type running struct {
	srv  *Server
	base string
	ws   string
	done chan error
}

func start(t *testing.T, mutate func(cfg *config.Config)) *running {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Logging.Development = true
	cfg.Storage.DataFile = filepath.Join(t.TempDir(), "data", "bookmarks.json")
	cfg.Storage.WatchDebounce = 20 * time.Millisecond
	cfg.Server.ShutdownTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	r := &running{
		srv:  srv,
		base: "http://" + ln.Addr().String(),
		ws:   "ws://" + ln.Addr().String() + "/ws",
		done: done,
	}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	require.Eventually(t, func() bool {
		resp, err := http.Get(r.base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
	return r
}

func (r *running) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(r.ws, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readForest(t *testing.T, conn *websocket.Conn) (uint64, tree.Forest) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env types.Envelope
	require.NoError(t, sonic.Unmarshal(data, &env))
	require.Equal(t, types.EventUpdated, env.Event)

	var u types.Updated
	require.NoError(t, sonic.Unmarshal(env.Data, &u))
	var f tree.Forest
	require.NoError(t, sonic.Unmarshal(u.Data, &f))
	return u.Revision, f
}

func TestServeHTTPReplaceReachesWebSocket(t *testing.T) {
	r := start(t, nil)
	conn := r.dial(t)

	rev, f := readForest(t, conn)
	assert.Equal(t, uint64(0), rev)
	assert.Empty(t, f)

	req, err := http.NewRequest(http.MethodPut, r.base+"/api/bookmarks",
		strings.NewReader(`[{"id":"a","name":"A","url":"https://a.dev"}]`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	rev, f = readForest(t, conn)
	assert.Equal(t, uint64(1), rev)
	require.Len(t, f, 1)
	assert.Equal(t, "a", f[0].ID)

	data, err := os.ReadFile(r.srv.config.Storage.DataFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"url": "https://a.dev"`)
}

func TestServeCompressesResponses(t *testing.T) {
	r := start(t, nil)

	big := make(tree.Forest, 0, 200)
	for i := 0; i < 200; i++ {
		big = append(big, &tree.Node{ID: fmt.Sprintf("id-%d", i), Name: "bookmark", URL: "https://example.com"})
	}
	_, err := r.srv.Coordinator().Apply(context.Background(), "test", coordinator.Replace(big))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, r.base+"/bookmarks", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}

func TestServeMetrics(t *testing.T) {
	r := start(t, nil)

	resp, err := http.Get(r.base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "bookmarks_http_requests_total")
	assert.Contains(t, string(body), "bookmarks_revision")
}

func TestServeAdoptsSeed(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("- id: s\n  name: Seeded\n  children: []\n"), 0o644))

	r := start(t, func(cfg *config.Config) { cfg.Storage.SeedFile = seed })

	_, f := readForest(t, r.dial(t))
	require.Len(t, f, 1)
	assert.Equal(t, "Seeded", f[0].Name)
	assert.FileExists(t, r.srv.config.Storage.DataFile)
}

func TestServeReloadsExternalChanges(t *testing.T) {
	r := start(t, func(cfg *config.Config) { cfg.Storage.ReloadOnExternalChange = true })
	conn := r.dial(t)
	readForest(t, conn)

	require.NoError(t, os.MkdirAll(filepath.Dir(r.srv.config.Storage.DataFile), 0o755))
	require.NoError(t, os.WriteFile(r.srv.config.Storage.DataFile, []byte(`[{"id":"ext","name":"Edited by hand"}]`), 0o644))

	rev, f := readForest(t, conn)
	assert.Equal(t, uint64(1), rev)
	require.Len(t, f, 1)
	assert.Equal(t, "ext", f[0].ID)
}

func TestServeRefusesCorruptDataFile(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"broken json", "{broken"},
		{"duplicate ids", `[{"id":"a","name":"A"},{"id":"a","name":"B"}]`},
		{"folder with url", `[{"id":"f","name":"F","url":"https://f.dev","children":[]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.DataFile = filepath.Join(t.TempDir(), "bookmarks.json")
			require.NoError(t, os.WriteFile(cfg.Storage.DataFile, []byte(tt.body), 0o644))

			srv, err := NewServer(cfg, nil)
			require.NoError(t, err)

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)
			err = srv.Serve(context.Background(), ln)
			assert.Error(t, err)

			data, readErr := os.ReadFile(cfg.Storage.DataFile)
			require.NoError(t, readErr)
			assert.Equal(t, tt.body, string(data))
		})
	}
}
