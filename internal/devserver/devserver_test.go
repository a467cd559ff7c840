package devserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/devbundle/internal/activity"
	"git.home.luguber.info/inful/devbundle/internal/buildstatus"
	"git.home.luguber.info/inful/devbundle/internal/compiler"
	"git.home.luguber.info/inful/devbundle/internal/config"
	"git.home.luguber.info/inful/devbundle/internal/history"
	"git.home.luguber.info/inful/devbundle/internal/metrics"
)

type memoryHistory struct {
	mu      sync.Mutex
	records []history.Record
}

func (m *memoryHistory) Append(_ context.Context, rec history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryHistory) Recent(_ context.Context, limit int) ([]history.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.Record, 0, len(m.records))
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *memoryHistory) Prune(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *memoryHistory) Close() error                                     { return nil }

func (m *memoryHistory) all() []history.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Record(nil), m.records...)
}

type noopRunner struct{}

func (noopRunner) Run(context.Context, string, string, []string) ([]byte, error) { return nil, nil }

func testProgram(t *testing.T) *config.Program {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "public")
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "index.html"),
		[]byte("<html><body><h1>site</h1></body></html>"), 0o600))

	p := config.Defaults()
	p.Directory = dir
	p.Compiler.Command = "build"
	p.LiveReload.Enabled = true
	p.Monitoring.Metrics.Enabled = true
	return p
}

func startServer(t *testing.T, p *config.Program, store history.Store) (*Server, *http.ServeMux, compiler.Compiler) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prom.NewRegistry()
	s := New(Options{
		Reporter: activity.NewConsole(io.Discard, logger),
		Recorder: metrics.NewPrometheusRecorder(reg),
		Registry: reg,
		History:  store,
		Logger:   logger,
		Runner:   noopRunner{},
		Listener: ln,
	})
	app := http.NewServeMux()
	srv, err := s.Start(context.Background(), p, app)
	require.NoError(t, err)
	require.NotNil(t, srv.Compiler)
	require.NotNil(t, srv.LiveReload)
	require.NotNil(t, srv.Activity)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, app, srv.Compiler
}

func get(t *testing.T, s *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + s.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestStartServesSiteWithLiveReloadScript(t *testing.T) {
	s, _, _ := startServer(t, testProgram(t), nil)

	code, body := get(t, s, "/")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `<script async src="/livereload.js"></script></body>`)

	code, body = get(t, s, "/livereload.js")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "EventSource")
}

func TestStartMountsStatusAndMetrics(t *testing.T) {
	s, _, _ := startServer(t, testProgram(t), nil)

	code, body := get(t, s, "/__status")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status"`)

	code, body = get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "devbundle_build_status_done")

	code, _ = get(t, s, "/__history")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDoneRecordsHistoryAndBroadcasts(t *testing.T) {
	store := &memoryHistory{}
	p := testProgram(t)
	s, _, comp := startServer(t, p, store)

	ctx := context.Background()
	require.NoError(t, comp.Hooks().Done.Call(ctx, &compiler.Stats{Hash: "aaa", StartedAt: time.Now(), Duration: time.Second}))
	s.opts.Status.MarkDone()
	require.NoError(t, comp.Hooks().Done.Call(ctx, &compiler.Stats{
		Hash:      "bbb",
		StartedAt: time.Now(),
		Errors:    []compiler.Diagnostic{{Message: "boom"}},
	}))
	s.opts.Status.MarkPending()
	s.opts.Status.MarkDone()

	records := store.all()
	require.Len(t, records, 2)
	assert.True(t, records[0].First)
	assert.True(t, records[0].Succeeded)
	assert.False(t, records[1].First)
	assert.False(t, records[1].Succeeded)
	assert.Equal(t, 1, records[1].Errors)

	s.mu.Lock()
	hub := s.hub
	s.mu.Unlock()
	assert.Equal(t, "error:bbb", hub.LastHash())

	code, body := get(t, s, "/__history?limit=1")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "bbb")
	assert.NotContains(t, body, "aaa")

	_, metricsBody := get(t, s, "/metrics")
	assert.True(t, strings.Contains(metricsBody, `devbundle_compile_outcomes_total{outcome="failed"} 1`), metricsBody)
}

type appDataSink struct {
	mu   sync.Mutex
	last any
}

func (a *appDataSink) SetAppData(data any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = data
}

func TestBroadcastWaitsForSettledStatus(t *testing.T) {
	p := testProgram(t)
	sink := &appDataSink{}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	status := buildstatus.NewStore()
	s := New(Options{
		Reporter: activity.NewConsole(io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil))),
		Status:   status,
		PageData: sink,
		Runner:   noopRunner{},
		Listener: ln,
	})
	srv, err := s.Start(context.Background(), p, http.NewServeMux())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	require.NoError(t, srv.Compiler.Hooks().Done.Call(context.Background(), &compiler.Stats{
		Hash:     "ccc",
		Warnings: []compiler.Diagnostic{{Message: "unused"}},
	}))
	assert.Equal(t, "", srv.LiveReload.LastHash(), "broadcast before the status settled")
	assert.Equal(t, AppData{Hash: "ccc", Succeeded: true, Warnings: 1}, sink.last)

	status.MarkDone()
	assert.Equal(t, "ccc", srv.LiveReload.LastHash())
}

func TestStartWithoutLiveReload(t *testing.T) {
	p := testProgram(t)
	p.LiveReload.Enabled = false
	s, _, _ := startServer(t, p, nil)

	_, body := get(t, s, "/")
	assert.NotContains(t, body, "livereload.js")
	code, _ := get(t, s, "/livereload.js")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStartRejectsMissingCommand(t *testing.T) {
	p := testProgram(t)
	p.Compiler.Command = ""
	s := New(Options{Reporter: activity.NewConsole(io.Discard, nil)})
	_, err := s.Start(context.Background(), p, http.NewServeMux())
	require.Error(t, err)
}

func TestBroadcastHash(t *testing.T) {
	assert.Equal(t, "abc", broadcastHash("abc", true))
	assert.Equal(t, "error:abc", broadcastHash("abc", false))
}

func TestServeReturnsWhenContextEnds(t *testing.T) {
	s, _, _ := startServer(t, testProgram(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	_, err := http.Get("http://" + s.Addr() + "/")
	assert.Error(t, err)
}
