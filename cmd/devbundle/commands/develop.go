package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/devbundle/internal/activity"
	"git.home.luguber.info/inful/devbundle/internal/browser"
	"git.home.luguber.info/inful/devbundle/internal/buildstatus"
	"git.home.luguber.info/inful/devbundle/internal/compiler"
	"git.home.luguber.info/inful/devbundle/internal/config"
	"git.home.luguber.info/inful/devbundle/internal/console"
	"git.home.luguber.info/inful/devbundle/internal/devserver"
	"git.home.luguber.info/inful/devbundle/internal/history"
	"git.home.luguber.info/inful/devbundle/internal/logfields"
	"git.home.luguber.info/inful/devbundle/internal/metrics"
	"git.home.luguber.info/inful/devbundle/internal/orchestrator"
	"git.home.luguber.info/inful/devbundle/internal/pagedata"
)

// DevelopCmd runs the development server until interrupted.
type DevelopCmd struct {
	Directory        *string `short:"d" name:"directory" help:"Site directory (overrides configuration)"`
	Host             *string `short:"H" name:"host" help:"Host to listen on"`
	Port             *int    `short:"p" name:"port" help:"Port to listen on"`
	ProxyPort        *int    `name:"proxy-port" help:"Public port shown in URLs when behind a proxy"`
	HTTPS            bool    `short:"S" name:"https" help:"Serve over HTTPS using the configured certificate"`
	Open             bool    `short:"o" name:"open" help:"Open the site in the default browser after the first build"`
	Output           *string `name:"output" help:"Directory the compiler writes the bundle to"`
	KeepAliveOnError bool    `name:"keep-alive-on-error" help:"Keep serving after a failed compilation instead of exiting"`
}

func (d *DevelopCmd) overrides() config.Overrides {
	o := config.Overrides{
		Directory: d.Directory,
		Host:      d.Host,
		Port:      d.Port,
		ProxyPort: d.ProxyPort,
		Output:    d.Output,
	}
	// Boolean flags can only switch a setting on.
	if d.HTTPS {
		o.HTTPS = &d.HTTPS
	}
	if d.Open {
		o.Open = &d.Open
	}
	return o
}

func (d *DevelopCmd) Run(_ *Global, root *CLI) error {
	program, err := loadProgram(root.Config, d.overrides())
	if err != nil {
		return err
	}

	format := program.Monitoring.Logging.Format
	if f := config.NormalizeLogFormat(root.LogFormat); f != "" {
		format = f
	}
	logger := NewLogger(os.Stderr, root.Verbose, program.Monitoring.Logging.Level, format)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return runDevelop(ctx, program, developEnv{
		Out:              os.Stdout,
		Logger:           logger,
		KeepAliveOnError: d.KeepAliveOnError,
	})
}

// developEnv carries the process-level collaborators of a develop session.
type developEnv struct {
	Out              io.Writer
	Logger           *slog.Logger
	KeepAliveOnError bool

	Runner   compiler.Runner
	Listener net.Listener
	Browser  browser.Launcher
	Exit     func(int)
	// OnReady is called once the first compilation has been reported.
	OnReady func(orchestrator.Ready, *devserver.Server)
}

func runDevelop(ctx context.Context, program *config.Program, env developEnv) error {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reporter := activity.NewConsole(env.Out, logger)
	reporter.NoExitOnBuildError = env.KeepAliveOnError
	if env.Exit != nil {
		reporter.SetExitFunc(env.Exit)
	}

	status := buildstatus.NewStore()
	status.OnChange(func(s buildstatus.Status) {
		logger.Debug("Build status changed", logfields.Status(string(s)))
	})

	registry := prom.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(registry)

	var store history.Store
	if path := program.HistoryPath(); path != "" {
		sqlite, err := history.NewSQLiteStore(path)
		if err != nil {
			return err
		}
		defer func() { _ = sqlite.Close() }()
		store = sqlite

		pruner, err := history.NewPruner(sqlite, program.History.Retention, program.History.PruneInterval)
		if err != nil {
			return err
		}
		pruner.Start()
		defer func() {
			if err := pruner.Stop(); err != nil {
				logger.Warn("Failed to stop history pruner", logfields.Error(err))
			}
		}()
	}

	queue := pagedata.NewQueue(program.OutputDir(), logger)
	defer func() { _ = queue.Close() }()

	printer := console.NewPrinter(env.Out)
	printer.BuildHint = program.Compiler.Command
	for _, notice := range program.Deprecations {
		printer.Deprecate(notice)
	}

	server := devserver.New(devserver.Options{
		Reporter: reporter,
		Status:   status,
		Recorder: recorder,
		Registry: registry,
		History:  store,
		PageData: queue,
		Logger:   logger,
		Runner:   env.Runner,
		Listener: env.Listener,
	})

	orch, err := orchestrator.New(orchestrator.Deps{
		StartServer: server.Start,
		Reporter:    reporter,
		Status:      status,
		Flusher:     queue,
		Browser:     env.Browser,
		Console:     printer,
		Recorder:    recorder,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ready, err := orch.Start(ctx, orchestrator.ServerContext{Program: program, App: http.NewServeMux()})
	if err != nil {
		cancel()
		_ = orch.Wait()
		return errors.Join(err, server.Shutdown(context.Background()))
	}
	logger.Info("Development bundle ready", slog.String("state", orch.State().String()))
	if env.OnReady != nil {
		env.OnReady(ready, server)
	}

	serveErr := server.Serve(ctx)
	cancel()
	return errors.Join(serveErr, orch.Wait())
}
