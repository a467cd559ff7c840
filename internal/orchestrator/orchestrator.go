// Package orchestrator drives the development build: it turns the compiler's
// lifecycle signals into build-status changes, console activities, the
// one-time startup report and the ready signal.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"git.home.luguber.info/inful/devbundle/internal/activity"
	"git.home.luguber.info/inful/devbundle/internal/browser"
	"git.home.luguber.info/inful/devbundle/internal/compiler"
	"git.home.luguber.info/inful/devbundle/internal/config"
	"git.home.luguber.info/inful/devbundle/internal/diagnostics"
	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
	"git.home.luguber.info/inful/devbundle/internal/livereload"
	"git.home.luguber.info/inful/devbundle/internal/logfields"
	"git.home.luguber.info/inful/devbundle/internal/metrics"
	"git.home.luguber.info/inful/devbundle/internal/pagedata"
	"git.home.luguber.info/inful/devbundle/internal/urls"
)

// TapName identifies the orchestrator's hook subscriptions.
const TapName = "devbundle orchestrator"

// Activity labels and id.
const (
	RebuildActivityLabel = "Re-building development bundle"
	ActivityID           = "devbundle-develop"
	unnamedPackage       = "(Unnamed package)"
)

// ServerContext is what Start needs to bring the development server up.
type ServerContext struct {
	Program *config.Program
	App     *http.ServeMux
}

// Server is returned by the start-server collaborator. Activity is the
// initial build activity and may be nil.
type Server struct {
	Compiler   compiler.Compiler
	LiveReload *livereload.Hub
	Activity   activity.Handle
}

// Ready is delivered once, after the first compilation finishes.
type Ready struct {
	Compiler   compiler.Compiler
	LiveReload *livereload.Hub
}

// StartServerFunc obtains the compiler and live-reload channel.
type StartServerFunc func(ctx context.Context, program *config.Program, app *http.ServeMux) (Server, error)

// StatusFlag is the build status the orchestrator owns.
type StatusFlag interface {
	MarkPending()
	MarkDone()
}

// Printer prints the startup report.
type Printer interface {
	PrintInstructions(appName string, u urls.URLs)
	PrintDeprecationWarnings()
}

// CompilationResult is the formatted outcome of one compilation.
type CompilationResult struct {
	Messages  diagnostics.Messages
	Succeeded bool
}

// Deps are the orchestrator's collaborators. StartServer, Reporter, Status,
// Flusher and Console are required.
type Deps struct {
	StartServer StartServerFunc
	Formatter   diagnostics.Formatter
	Reporter    activity.Reporter
	Status      StatusFlag
	Flusher     pagedata.Flusher
	Browser     browser.Launcher
	Console     Printer
	Recorder    metrics.Recorder
	Logger      *slog.Logger
	// PrepareURLs defaults to urls.Prepare.
	PrepareURLs func(protocol, host string, port int) urls.URLs
}

// Orchestrator is the build state machine. Use New.
type Orchestrator struct {
	deps Deps

	// mu serializes hook handlers.
	mu           sync.Mutex
	state        State
	firstCompile bool
	handle       activity.Handle
	program      *config.Program
	server       Server

	started bool
	ready   *oneShot[Ready]
	runDone chan struct{}
	runErr  error
}

// New validates deps and fills optional ones with defaults.
func New(deps Deps) (*Orchestrator, error) {
	missing := ""
	switch {
	case deps.StartServer == nil:
		missing = "StartServer"
	case deps.Reporter == nil:
		missing = "Reporter"
	case deps.Status == nil:
		missing = "Status"
	case deps.Flusher == nil:
		missing = "Flusher"
	case deps.Console == nil:
		missing = "Console"
	}
	if missing != "" {
		return nil, ferrors.InternalError("orchestrator dependency missing").WithContext("dependency", missing).Build()
	}
	if deps.Formatter == nil {
		deps.Formatter = diagnostics.Default{}
	}
	if deps.Browser == nil {
		deps.Browser = browser.System{}
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.NoopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.PrepareURLs == nil {
		deps.PrepareURLs = urls.Prepare
	}
	return &Orchestrator{
		deps:         deps,
		state:        StateIdle,
		firstCompile: true,
		ready:        newOneShot[Ready](),
		runDone:      make(chan struct{}),
	}, nil
}

// Start brings the server up, subscribes to the compiler, runs it and
// blocks until the first compilation finishes or ctx ends.
func (o *Orchestrator) Start(ctx context.Context, sc ServerContext) (Ready, error) {
	if sc.Program == nil {
		return Ready{}, ferrors.ConfigError("server context has no program configuration").Build()
	}
	if sc.App == nil {
		return Ready{}, ferrors.ConfigError("server context has no HTTP application").Build()
	}

	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return Ready{}, ferrors.InternalError("orchestrator already started").Build()
	}
	o.started = true
	o.program = sc.Program
	o.mu.Unlock()

	srv, err := o.deps.StartServer(ctx, sc.Program, sc.App)
	if err == nil && srv.Compiler == nil {
		err = ferrors.InternalError("start server returned no compiler").Build()
	}
	if err != nil {
		o.runErr = err
		close(o.runDone)
		return Ready{}, err
	}

	o.dispatch(EventStart, func() {
		o.server = srv
		o.handle = srv.Activity
	})

	hooks := srv.Compiler.Hooks()
	hooks.Invalid.Tap(TapName, o.onInvalid)
	hooks.WatchRun.Tap(TapName, o.onWatchRun)
	hooks.Done.Tap(TapName, o.onDone)

	// The compiler starts only after the taps exist so the first Done is observed.
	go func() {
		defer close(o.runDone)
		o.runErr = srv.Compiler.Run(ctx)
	}()

	select {
	case <-o.ready.wait():
		return o.ready.get(), nil
	case <-o.runDone:
		select {
		case <-o.ready.wait():
			return o.ready.get(), nil
		default:
		}
		if o.runErr != nil {
			return Ready{}, o.runErr
		}
		return Ready{}, ferrors.RuntimeError("compiler stopped before the first compilation finished").Build()
	case <-ctx.Done():
		return Ready{}, ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "development server start canceled").Build()
	}
}

// Ready is closed once the first compilation has finished.
func (o *Orchestrator) Ready() <-chan struct{} { return o.ready.wait() }

// Wait blocks until the compiler loop started by Start returns.
func (o *Orchestrator) Wait() error {
	o.mu.Lock()
	started := o.started
	o.mu.Unlock()
	if !started {
		return nil
	}
	<-o.runDone
	return o.runErr
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// dispatch is the single entry point for compiler events: it runs fn and
// applies ev while holding the handler lock.
func (o *Orchestrator) dispatch(ev Event, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if fn != nil {
		fn()
	}
	o.transition(ev)
}

// transition must be called with mu held.
func (o *Orchestrator) transition(ev Event) {
	to, declared := next(o.state, ev)
	if !declared {
		o.deps.Logger.Debug("undeclared build state transition",
			slog.String("from", o.state.String()),
			slog.String("event", string(ev)),
			slog.String("to", to.String()))
	}
	o.state = to
}

func (o *Orchestrator) markPending() {
	o.deps.Status.MarkPending()
	o.deps.Recorder.SetBuildStatus(false)
}

func (o *Orchestrator) onInvalid() {
	o.dispatch(EventInvalid, o.markPending)
}

func (o *Orchestrator) onWatchRun(_ *compiler.Compilation, ack func()) {
	o.dispatch(EventWatchRun, func() {
		if o.handle != nil {
			o.handle.End()
		}
		o.handle = o.deps.Reporter.StartActivity(RebuildActivityLabel, activity.Options{ID: ActivityID})
		o.markPending()
	})
	ack()
}

func (o *Orchestrator) onDone(stats *compiler.Stats, ack func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	succeeded, escalate := o.reportCompilation(stats)
	if succeeded {
		o.transition(EventSucceeded)
	} else {
		o.transition(EventFailed)
	}

	o.deps.Flusher.EnqueueFlush()
	o.deps.Status.MarkDone()
	o.deps.Recorder.SetBuildStatus(true)
	o.transition(EventSettle)

	// Build errors escalate only once page data and status have settled,
	// since the fatal path may end the process.
	if escalate != nil {
		o.escalate(escalate)
	}
	ack()

	if o.ready.resolve(Ready{Compiler: o.server.Compiler, LiveReload: o.server.LiveReload}) {
		o.deps.Logger.Debug("development server ready", logfields.Hash(hashOf(stats)))
	}
}

// reportCompilation formats stats and produces the operator-facing output.
// For a failed compilation with a live activity it returns the escalation
// to run once the status has settled. Panics are recovered and surfaced
// through the reporter; the compilation then counts as failed.
func (o *Orchestrator) reportCompilation(stats *compiler.Stats) (succeeded bool, escalate func()) {
	defer func() {
		if r := recover(); r != nil {
			succeeded = false
			o.firstCompile = false
			if o.handle != nil {
				o.handle.End()
				o.handle = nil
			}
			o.deps.Reporter.Error("Unexpected failure while handling a finished compilation",
				ferrors.InternalError(fmt.Sprintf("panic: %v", r)).WithContext("hook", "done").Build())
		}
	}()
	if stats == nil {
		stats = &compiler.Stats{}
	}

	result := o.format(stats)

	p := o.program
	u := o.deps.PrepareURLs(p.Scheme(), p.Host, p.PublicPort())

	if o.firstCompile && result.Succeeded {
		name := p.SiteName()
		if name == "" {
			name = unnamedPackage
		}
		o.deps.Console.PrintInstructions(name, u)
		o.deps.Console.PrintDeprecationWarnings()
		if p.Open {
			o.openBrowser(u.LocalURLForBrowser)
		}
	}
	o.firstCompile = false

	h := o.handle
	if h == nil {
		return result.Succeeded, nil
	}
	o.handle = nil
	if result.Succeeded {
		defer h.End()
		h.ReportWarnings(stats)
		return true, nil
	}
	errs := diagnostics.StructureErrors(diagnostics.StageDevelop, stats.Errors)
	escalate = func() {
		defer h.End()
		h.PanicOnBuild(errs)
	}
	h.ReportWarnings(stats)
	return false, escalate
}

// escalate runs the fatal build path, recovering panics like reportCompilation.
func (o *Orchestrator) escalate(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.deps.Reporter.Error("Unexpected failure while reporting build errors",
				ferrors.InternalError(fmt.Sprintf("panic: %v", r)).WithContext("hook", "done").Build())
		}
	}()
	fn()
}

// format runs the formatter. A formatter error is reported and the raw
// diagnostics are used instead.
func (o *Orchestrator) format(stats *compiler.Stats) CompilationResult {
	raw := stats.ToJSON()
	msgs, err := o.deps.Formatter.Format(raw)
	if err != nil {
		o.deps.Reporter.Error("Failed to format compilation messages",
			ferrors.InternalError("format compilation messages").WithCause(err).Build())
		msgs = diagnostics.Messages{Errors: raw.Errors, Warnings: raw.Warnings}
	}
	return CompilationResult{Messages: msgs, Succeeded: len(msgs.Errors) == 0}
}

// openBrowser launches without blocking the handler; failure is only logged.
func (o *Orchestrator) openBrowser(url string) {
	launcher, logger := o.deps.Browser, o.deps.Logger
	go func() {
		launcher.Open(url).LogFailure(logger)
	}()
}

func hashOf(stats *compiler.Stats) string {
	if stats == nil {
		return ""
	}
	return stats.Hash
}
