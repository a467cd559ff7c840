package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/devbundle/internal/activity"
	"git.home.luguber.info/inful/devbundle/internal/browser"
	"git.home.luguber.info/inful/devbundle/internal/buildstatus"
	"git.home.luguber.info/inful/devbundle/internal/compiler"
	"git.home.luguber.info/inful/devbundle/internal/config"
	"git.home.luguber.info/inful/devbundle/internal/diagnostics"
	"git.home.luguber.info/inful/devbundle/internal/livereload"
	"git.home.luguber.info/inful/devbundle/internal/urls"
)

// fakeCompiler runs script on Run, then idles until ctx ends.
type fakeCompiler struct {
	hooks  *compiler.Hooks
	script func(ctx context.Context, h *compiler.Hooks) error
}

func newFakeCompiler(script func(ctx context.Context, h *compiler.Hooks) error) *fakeCompiler {
	return &fakeCompiler{hooks: compiler.NewHooks(), script: script}
}

func (f *fakeCompiler) Hooks() *compiler.Hooks { return f.hooks }

func (f *fakeCompiler) Run(ctx context.Context) error {
	if f.script != nil {
		if err := f.script(ctx, f.hooks); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func (f *fakeCompiler) Close() error { return nil }

func initialDone(stats *compiler.Stats) func(context.Context, *compiler.Hooks) error {
	return func(ctx context.Context, h *compiler.Hooks) error {
		return h.Done.Call(ctx, stats)
	}
}

type fakeHandle struct {
	r        *fakeReporter
	label    string
	ended    bool
	warnings int
	panicked []diagnostics.StructuredError
}

func (h *fakeHandle) End() {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	if h.ended {
		return
	}
	h.ended = true
	h.r.live--
}

func (h *fakeHandle) ReportWarnings(*compiler.Stats) {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	h.warnings++
}

func (h *fakeHandle) PanicOnBuild(errs []diagnostics.StructuredError) {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	h.panicked = errs
	h.r.fatal++
}

type reportedError struct {
	msg string
	err error
}

type fakeReporter struct {
	mu      sync.Mutex
	started []*fakeHandle
	ids     []string
	live    int
	maxLive int
	fatal   int
	errors  []reportedError
}

func (r *fakeReporter) StartActivity(label string, opts activity.Options) activity.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := &fakeHandle{r: r, label: label}
	r.started = append(r.started, h)
	r.ids = append(r.ids, opts.ID)
	r.live++
	if r.live > r.maxLive {
		r.maxLive = r.live
	}
	return h
}

// initial returns a live handle standing in for the initial build activity.
func (r *fakeReporter) initial() *fakeHandle {
	return r.StartActivity("Building development bundle", activity.Options{ID: ActivityID}).(*fakeHandle)
}

func (r *fakeReporter) Error(msg string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, reportedError{msg: msg, err: err})
}

type countingFlusher struct {
	mu sync.Mutex
	n  int
}

func (f *countingFlusher) EnqueueFlush() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *countingFlusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type instructions struct {
	name string
	urls urls.URLs
}

type fakePrinter struct {
	mu           sync.Mutex
	instructions []instructions
	deprecations int
}

func (p *fakePrinter) PrintInstructions(name string, u urls.URLs) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instructions = append(p.instructions, instructions{name: name, urls: u})
}

func (p *fakePrinter) PrintDeprecationWarnings() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deprecations++
}

type fakeLauncher struct {
	opened chan string
	fail   bool
}

func (l *fakeLauncher) Open(url string) browser.Result {
	l.opened <- url
	if l.fail {
		return browser.Result{URL: url, Err: errors.New("no browser")}
	}
	return browser.Result{URL: url, Opened: true}
}

type harness struct {
	t        *testing.T
	compiler *fakeCompiler
	reporter *fakeReporter
	status   *buildstatus.Store
	flusher  *countingFlusher
	printer  *fakePrinter
	launcher *fakeLauncher
	hub      *livereload.Hub
	program  *config.Program
	orch     *Orchestrator

	startServerCalls int
	initialHandle    *fakeHandle
	// beforeTaps runs inside StartServer, before the orchestrator subscribes.
	beforeTaps func(h *compiler.Hooks)
	formatter  diagnostics.Formatter
}

func newHarness(t *testing.T, script func(ctx context.Context, h *compiler.Hooks) error) *harness {
	t.Helper()
	p := config.Defaults()
	p.Compiler.Command = "true"
	p.Site.Name = "blog"
	h := &harness{
		t:        t,
		compiler: newFakeCompiler(script),
		reporter: &fakeReporter{},
		status:   buildstatus.NewStore(),
		flusher:  &countingFlusher{},
		printer:  &fakePrinter{},
		launcher: &fakeLauncher{opened: make(chan string, 4)},
		hub:      livereload.NewHub(nil),
		program:  p,
	}
	t.Cleanup(h.hub.Shutdown)
	return h
}

func (h *harness) build() *Orchestrator {
	h.t.Helper()
	o, err := New(Deps{
		StartServer: func(_ context.Context, _ *config.Program, _ *http.ServeMux) (Server, error) {
			h.startServerCalls++
			h.initialHandle = h.reporter.initial()
			if h.beforeTaps != nil {
				h.beforeTaps(h.compiler.hooks)
			}
			return Server{Compiler: h.compiler, LiveReload: h.hub, Activity: h.initialHandle}, nil
		},
		Formatter: h.formatter,
		Reporter:  h.reporter,
		Status:    h.status,
		Flusher:   h.flusher,
		Browser:   h.launcher,
		Console:   h.printer,
		PrepareURLs: func(protocol, host string, port int) urls.URLs {
			return urls.URLs{
				LocalURLForTerminal: protocol + "://" + host + ":" + strconv.Itoa(port) + "/",
				LocalURLForBrowser:  protocol + "://" + host + ":" + strconv.Itoa(port) + "/",
			}
		},
	})
	require.NoError(h.t, err)
	h.orch = o
	return o
}

// start runs Start with a context canceled at test end and waits for ready.
func (h *harness) start() Ready {
	h.t.Helper()
	o := h.build()
	ctx, cancel := context.WithCancel(context.Background())
	h.t.Cleanup(func() {
		cancel()
		_ = o.Wait()
	})
	ready, err := o.Start(ctx, ServerContext{Program: h.program, App: http.NewServeMux()})
	require.NoError(h.t, err)
	return ready
}

func (h *harness) watchCycle(stats *compiler.Stats) {
	h.t.Helper()
	ctx := context.Background()
	h.compiler.hooks.Invalid.Call()
	require.NoError(h.t, h.compiler.hooks.WatchRun.Call(ctx, &compiler.Compilation{}))
	require.NoError(h.t, h.compiler.hooks.Done.Call(ctx, stats))
}

func (h *harness) expectBrowser() string {
	h.t.Helper()
	select {
	case u := <-h.launcher.opened:
		return u
	case <-time.After(2 * time.Second):
		h.t.Fatal("browser launch not attempted")
		return ""
	}
}

func (h *harness) expectNoBrowser() {
	h.t.Helper()
	select {
	case u := <-h.launcher.opened:
		h.t.Fatalf("unexpected browser launch for %s", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func ok() *compiler.Stats { return &compiler.Stats{Hash: "ok"} }

func failed() *compiler.Stats {
	return &compiler.Stats{
		Hash:   "bad",
		Errors: []compiler.Diagnostic{{File: "src/app.js", Line: 3, Column: 7, Message: "Unexpected token"}},
	}
}
