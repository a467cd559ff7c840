package livereload

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/devbundle/internal/metrics"
)

type countingRecorder struct {
	mu         sync.Mutex
	clients    int
	broadcasts int
}

func (*countingRecorder) ObserveCompileDuration(time.Duration) {}
func (*countingRecorder) IncCompileOutcome(metrics.Outcome)      {}
func (*countingRecorder) SetBuildStatus(bool)                  {}
func (r *countingRecorder) SetLiveReloadClients(n int) {
	r.mu.Lock()
	r.clients = n
	r.mu.Unlock()
}
func (r *countingRecorder) IncLiveReloadBroadcast() {
	r.mu.Lock()
	r.broadcasts++
	r.mu.Unlock()
}

func connect(t *testing.T, url string) (*bufio.Reader, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return bufio.NewReader(resp.Body), func() {
		cancel()
		_ = resp.Body.Close()
	}
}

func readUntil(r *bufio.Reader, needle string, timeout time.Duration) bool {
	found := make(chan bool, 1)
	go func() {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				found <- false
				return
			}
			if strings.Contains(line, needle) {
				found <- true
				return
			}
		}
	}()
	select {
	case ok := <-found:
		return ok
	case <-time.After(timeout):
		return false
	}
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, time.Second, 5*time.Millisecond)
}

func TestHub_InitialConnectReceivesLastHash(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Shutdown()
	hub.Broadcast("abc123")

	server := httptest.NewServer(hub)
	defer server.Close()

	r, closeFn := connect(t, server.URL)
	defer closeFn()
	assert.True(t, readUntil(r, `"abc123"`, time.Second))
}

func TestHub_BroadcastSendsEvent(t *testing.T) {
	rec := &countingRecorder{}
	hub := NewHub(rec)
	defer hub.Shutdown()

	server := httptest.NewServer(hub)
	defer server.Close()

	r, closeFn := connect(t, server.URL)
	defer closeFn()
	waitClients(t, hub, 1)

	hub.Broadcast("error:deadbeef")
	assert.True(t, readUntil(r, `data: {"hash":"error:deadbeef"}`, time.Second))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.broadcasts)
	assert.Equal(t, 1, rec.clients)
}

func TestHub_DuplicateAndEmptyHashesIgnored(t *testing.T) {
	rec := &countingRecorder{}
	hub := NewHub(rec)
	defer hub.Shutdown()

	hub.Broadcast("")
	hub.Broadcast("h1")
	hub.Broadcast("h1")
	assert.Equal(t, "h1", hub.LastHash())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.broadcasts)
}

func TestHub_ClientDisconnectRemoves(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Shutdown()
	server := httptest.NewServer(hub)
	defer server.Close()

	_, closeFn := connect(t, server.URL)
	waitClients(t, hub, 1)
	closeFn()
	waitClients(t, hub, 0)
}

func TestHub_ShutdownRejectsNewClients(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	_, closeFn := connect(t, server.URL)
	defer closeFn()
	waitClients(t, hub, 1)

	hub.Shutdown()
	assert.Equal(t, 0, hub.Clients())
	hub.Broadcast("ignored")
	assert.Empty(t, hub.LastHash())

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHub_Heartbeat(t *testing.T) {
	hub := NewHub(nil)
	hub.heartbeat = 10 * time.Millisecond
	defer hub.Shutdown()
	server := httptest.NewServer(hub)
	defer server.Close()

	r, closeFn := connect(t, server.URL)
	defer closeFn()
	assert.True(t, readUntil(r, ": ping", time.Second))
}
