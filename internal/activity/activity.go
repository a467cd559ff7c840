// Package activity reports named, timed progress indicators to the operator's
// console and owns the fatal build-error path.
package activity

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"git.home.luguber.info/inful/devbundle/internal/compiler"
	"git.home.luguber.info/inful/devbundle/internal/diagnostics"
	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
	"git.home.luguber.info/inful/devbundle/internal/logfields"
)

// Options configure a started activity.
type Options struct {
	// ID collapses repeated activities into one logical console line.
	ID string
}

// Handle is one in-flight activity.
type Handle interface {
	End()
	ReportWarnings(stats *compiler.Stats)
	// PanicOnBuild reports build errors and may terminate the process.
	PanicOnBuild(errs []diagnostics.StructuredError)
}

// Reporter starts activities and surfaces unexpected errors.
type Reporter interface {
	StartActivity(label string, opts Options) Handle
	Error(msg string, err error)
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Console is the terminal Reporter.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
	live   map[string]*consoleActivity
	now    func() time.Time
	exit   func(int)

	// NoExitOnBuildError keeps the process alive after PanicOnBuild.
	NoExitOnBuildError bool
}

// NewConsole returns a Console writing to out. A nil logger uses slog.Default.
func NewConsole(out io.Writer, logger *slog.Logger) *Console {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		out:    out,
		logger: logger,
		live:   make(map[string]*consoleActivity),
		now:    time.Now,
		exit:   os.Exit,
	}
}

// SetExitFunc replaces the function PanicOnBuild uses to end the process.
func (c *Console) SetExitFunc(fn func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exit = fn
}

// StartActivity implements Reporter. Starting an activity whose ID is still
// live replaces the old one without printing its completion.
func (c *Console) StartActivity(label string, opts Options) Handle {
	a := &consoleActivity{console: c, label: label, id: opts.ID, started: c.now()}
	c.mu.Lock()
	if opts.ID != "" {
		if prev, ok := c.live[opts.ID]; ok {
			prev.superseded()
		}
		c.live[opts.ID] = a
	}
	c.mu.Unlock()

	c.logger.Debug("Activity started", slog.String("label", label), logfields.Activity(opts.ID))
	return a
}

// Error implements Reporter.
func (c *Console) Error(msg string, err error) {
	c.printf("%s %s\n", errorStyle.Render("error"), msg)
	if err != nil {
		c.printf("  %s\n", err.Error())
	}
	c.logger.Error(msg, logfields.Error(err))
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) release(a *consoleActivity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.id != "" && c.live[a.id] == a {
		delete(c.live, a.id)
	}
}

// Live returns the number of activities that have not ended.
func (c *Console) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

type consoleActivity struct {
	console *Console
	label   string
	id      string
	started time.Time

	mu     sync.Mutex
	ended  bool
	failed bool
}

func (a *consoleActivity) superseded() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ended = true
}

func (a *consoleActivity) End() {
	a.mu.Lock()
	if a.ended {
		a.mu.Unlock()
		return
	}
	a.ended = true
	failed := a.failed
	a.mu.Unlock()

	a.console.release(a)
	elapsed := a.console.now().Sub(a.started).Seconds()
	if failed {
		a.console.printf("%s %s - %.3fs\n", errorStyle.Render("failed"), a.label, elapsed)
		return
	}
	a.console.printf("%s %s - %.3fs\n", successStyle.Render("success"), a.label, elapsed)
}

func (a *consoleActivity) ReportWarnings(stats *compiler.Stats) {
	if stats == nil || len(stats.Warnings) == 0 {
		return
	}
	var b strings.Builder
	for _, w := range stats.Warnings {
		fmt.Fprintf(&b, "%s %s\n", warnStyle.Render("warn"), w.String())
	}
	a.console.printf("%s", b.String())
	a.console.logger.Warn("Compilation produced warnings", logfields.Warnings(len(stats.Warnings)))
}

func (a *consoleActivity) PanicOnBuild(errs []diagnostics.StructuredError) {
	a.mu.Lock()
	a.failed = true
	a.mu.Unlock()

	var b strings.Builder
	for _, e := range errs {
		fmt.Fprintf(&b, "\n%s %s\n\n", errorStyle.Render("ERROR #"+e.ID), dimStyle.Render(e.StageLabel))
		if e.FilePath != "" {
			loc := e.FilePath
			if e.Location != nil {
				loc = fmt.Sprintf("%s:%d:%d", e.FilePath, e.Location.Line, e.Location.Column)
			}
			fmt.Fprintf(&b, "%s\n\n", loc)
		}
		fmt.Fprintf(&b, "%s\n", e.Text)
	}
	a.console.printf("%s", b.String())
	a.console.logger.Error("Build failed", logfields.Errors(len(errs)), slog.String("label", a.label))

	a.console.mu.Lock()
	keepAlive := a.console.NoExitOnBuildError
	exit := a.console.exit
	a.console.mu.Unlock()
	if keepAlive {
		return
	}
	a.End()
	exit(ferrors.ExitCodeForCategory(ferrors.CategoryCompilation))
}
