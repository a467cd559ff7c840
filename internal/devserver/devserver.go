// Package devserver starts the development HTTP server and the watch-mode
// compiler behind it, and mounts the live-reload, status, history and
// metrics endpoints.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/devbundle/internal/activity"
	"git.home.luguber.info/inful/devbundle/internal/buildstatus"
	"git.home.luguber.info/inful/devbundle/internal/compiler"
	"git.home.luguber.info/inful/devbundle/internal/config"
	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
	"git.home.luguber.info/inful/devbundle/internal/history"
	"git.home.luguber.info/inful/devbundle/internal/livereload"
	"git.home.luguber.info/inful/devbundle/internal/logfields"
	"git.home.luguber.info/inful/devbundle/internal/metrics"
	"git.home.luguber.info/inful/devbundle/internal/orchestrator"
	"git.home.luguber.info/inful/devbundle/internal/pagedata"
)

// InitialActivityLabel labels the first compilation.
const InitialActivityLabel = "Building development bundle"

const (
	tapName         = "devbundle server"
	shutdownTimeout = 5 * time.Second
)

// Options are the shared collaborators the server wires together.
type Options struct {
	Reporter activity.Reporter
	// Status is the store the orchestrator settles. Live-reload and NATS
	// notifications for a compilation are sent once it reads Done.
	Status   *buildstatus.Store
	Recorder metrics.Recorder
	// Registry is served at the metrics path when metrics are enabled.
	Registry *prom.Registry
	// History is optional; nil disables compilation history.
	History history.Store
	// PageData is optional; it receives the app data of every compilation.
	PageData pagedata.AppDataStager
	Logger  *slog.Logger
	// Runner overrides how the compiler command is executed.
	Runner compiler.Runner
	// Listener overrides the listener bound from the program's address.
	Listener net.Listener
}

// Server owns the HTTP server and the resources created by Start.
type Server struct {
	opts Options

	mu        sync.Mutex
	http      *http.Server
	hub       *livereload.Hub
	publisher *livereload.NATSPublisher
	compiler  *compiler.ExecCompiler
	serveErr  chan error
	addr      string
	// settled is the notification waiting for the status to read Done.
	settled   *livereload.Notification
}

// AppData is the per-compilation record staged as page-data/app-data.json.
type AppData struct {
	Hash      string `json:"compilationHash"`
	Succeeded bool   `json:"succeeded"`
	Errors    int    `json:"errors"`
	Warnings  int    `json:"warnings"`
}

// New returns a Server that has not started.
func New(opts Options) *Server {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Status == nil {
		opts.Status = buildstatus.NewStore()
	}
	return &Server{opts: opts, serveErr: make(chan error, 1)}
}

// Start builds the compiler, mounts every route on app and starts serving
// it. The compiler is returned unstarted; its owner runs it once subscribed.
func (s *Server) Start(_ context.Context, program *config.Program, app *http.ServeMux) (orchestrator.Server, error) {
	ignore := append([]string{filepath.Base(program.OutputDir())}, program.Compiler.Ignore...)
	comp, err := compiler.NewExecCompiler(compiler.Options{
		Dir:         program.Directory,
		Command:     program.Compiler.Command,
		Args:        program.Compiler.Args,
		Watch:       program.Compiler.Watch,
		Ignore:      ignore,
		QuietWindow: program.Compiler.QuietWindow,
		Runner:      s.opts.Runner,
		Logger:      s.opts.Logger,
	})
	if err != nil {
		return orchestrator.Server{}, err
	}

	var hub *livereload.Hub
	if program.LiveReload.Enabled {
		hub = livereload.NewHub(s.opts.Recorder)
	}
	var publisher *livereload.NATSPublisher
	if program.LiveReload.Enabled && program.LiveReload.NATSURL != "" {
		publisher, err = livereload.NewNATSPublisher(program.LiveReload.NATSURL, program.LiveReload.NATSSubject)
		if err != nil {
			s.opts.Logger.Warn("NATS live-reload disabled", logfields.Error(err))
			publisher = nil
		}
	}

	s.mount(app, program, hub)
	s.tapDone(comp, hub, publisher)

	ln := s.opts.Listener
	if ln == nil {
		ln, err = net.Listen("tcp", program.ListenAddr())
		if err != nil {
			if publisher != nil {
				_ = publisher.Close()
			}
			return orchestrator.Server{}, ferrors.WrapError(err, ferrors.CategoryNetwork, "listen for development server").
				WithContext("addr", program.ListenAddr()).
				Fatal().
				Build()
		}
	}

	srv := &http.Server{
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}
	s.mu.Lock()
	s.http, s.hub, s.publisher, s.compiler, s.addr = srv, hub, publisher, comp, ln.Addr().String()
	s.mu.Unlock()

	go func() {
		var serveErr error
		if program.HTTPS {
			cert, key := program.CertFiles()
			serveErr = srv.ServeTLS(ln, cert, key)
		} else {
			serveErr = srv.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.opts.Logger.Error("development server stopped", logfields.Error(serveErr))
			s.serveErr <- serveErr
		}
		close(s.serveErr)
	}()
	s.opts.Logger.Info("Development server listening", slog.String("addr", s.addr))

	return orchestrator.Server{
		Compiler:   comp,
		LiveReload: hub,
		Activity:   s.opts.Reporter.StartActivity(InitialActivityLabel, activity.Options{ID: orchestrator.ActivityID}),
	}, nil
}

// Addr returns the bound listener address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Errors reports a failure of the HTTP server; it is closed when serving stops.
func (s *Server) Errors() <-chan error { return s.serveErr }

func (s *Server) mount(app *http.ServeMux, program *config.Program, hub *livereload.Hub) {
	var site http.Handler = http.FileServer(http.Dir(program.OutputDir()))
	if hub != nil {
		site = livereload.Inject(site)
		app.Handle("/livereload", corsMiddleware(hub))
		app.Handle(livereload.ScriptPath, corsMiddleware(livereload.ScriptHandler()))
	}
	app.Handle("/", site)
	app.Handle("/__status", s.opts.Status)
	if s.opts.History != nil {
		app.Handle("/__history", history.Handler(s.opts.History))
	}
	if program.Monitoring.Metrics.Enabled && s.opts.Registry != nil {
		app.Handle(program.Monitoring.Metrics.Path, metrics.HTTPHandler(s.opts.Registry))
	}
}

// tapDone subscribes the per-compilation side effects: metrics, history and
// app data run in the Done hook; browser and NATS notifications wait until
// the status store reads Done so clients never reload into a pending build.
func (s *Server) tapDone(comp *compiler.ExecCompiler, hub *livereload.Hub, publisher *livereload.NATSPublisher) {
	if hub != nil || publisher != nil {
		s.opts.Status.OnChange(func(st buildstatus.Status) {
			if st == buildstatus.Done {
				s.notifySettled(hub, publisher)
			}
		})
	}

	first := true
	comp.Hooks().Done.Tap(tapName, func(stats *compiler.Stats, ack func()) {
		defer ack()
		succeeded := !stats.HasErrors()

		s.opts.Recorder.ObserveCompileDuration(stats.Duration)
		s.opts.Recorder.IncCompileOutcome(metrics.OutcomeFor(len(stats.Errors), len(stats.Warnings)))

		if s.opts.History != nil {
			rec := history.NewRecord()
			rec.Hash = stats.Hash
			rec.Succeeded = succeeded
			rec.Errors = len(stats.Errors)
			rec.Warnings = len(stats.Warnings)
			rec.Duration = stats.Duration
			rec.FinishedAt = stats.StartedAt.Add(stats.Duration)
			rec.First = first
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.opts.History.Append(ctx, rec); err != nil {
				s.opts.Logger.Warn("failed to record compilation", logfields.BuildID(rec.BuildID.String()), logfields.Error(err))
			}
			cancel()
		}
		first = false

		if s.opts.PageData != nil {
			s.opts.PageData.SetAppData(AppData{
				Hash:      stats.Hash,
				Succeeded: succeeded,
				Errors:    len(stats.Errors),
				Warnings:  len(stats.Warnings),
			})
		}

		s.mu.Lock()
		s.settled = &livereload.Notification{Hash: stats.Hash, Succeeded: succeeded, At: time.Now()}
		s.mu.Unlock()
	})
}

// notifySettled sends the pending notification, if any, exactly once.
func (s *Server) notifySettled(hub *livereload.Hub, publisher *livereload.NATSPublisher) {
	s.mu.Lock()
	n := s.settled
	s.settled = nil
	s.mu.Unlock()
	if n == nil {
		return
	}
	if hub != nil {
		hub.Broadcast(broadcastHash(n.Hash, n.Succeeded))
	}
	if publisher != nil {
		go func() {
			if err := publisher.Publish(*n); err != nil {
				s.opts.Logger.Warn("NATS live-reload publish failed", logfields.Error(err))
			}
		}()
	}
}

// broadcastHash marks failed compilations so clients can tell them apart.
func broadcastHash(hash string, succeeded bool) string {
	if succeeded {
		return hash
	}
	return "error:" + hash
}

// Serve blocks until ctx ends or the HTTP server fails, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
	case err, ok := <-s.serveErr:
		if ok {
			serveErr = ferrors.WrapError(err, ferrors.CategoryRuntime, "development server failed").Build()
		}
	}
	return errors.Join(serveErr, s.Shutdown(context.WithoutCancel(ctx)))
}

// Shutdown stops serving and releases everything Start created.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, hub, publisher, comp := s.http, s.hub, s.publisher, s.compiler
	s.mu.Unlock()

	if hub != nil {
		hub.Shutdown()
	}
	var errs []error
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if comp != nil {
		if err := comp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
