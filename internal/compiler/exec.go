package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
	"git.home.luguber.info/inful/devbundle/internal/logfields"
)

// Runner executes one build command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args []string) ([]byte, error)
}

// CommandRunner runs commands with os/exec.
type CommandRunner struct {
	Env []string
}

// Run implements Runner.
func (r CommandRunner) Run(ctx context.Context, dir, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.Env...)
	return cmd.CombinedOutput()
}

// Options configure an ExecCompiler.
type Options struct {
	Dir         string
	Command     string
	Args        []string
	Watch       []string
	Ignore      []string
	QuietWindow time.Duration
	Runner      Runner
	Logger      *slog.Logger
}

// ExecCompiler is a watch-mode compiler driven by an external build command.
//
// One cycle is Invalid, then WatchRun (acknowledged), then the command, then
// Done (acknowledged). The first compilation fires Done only. Changes seen
// while a cycle is in progress produce exactly one follow-up cycle.
type ExecCompiler struct {
	opts   Options
	hooks  *Hooks
	logger *slog.Logger

	mu      sync.Mutex
	changed map[string]struct{}
	notify  chan struct{}
	number  int

	watcher   *fsnotify.Watcher
	closeOnce sync.Once
}

// NewExecCompiler validates opts and returns a compiler that has not started.
func NewExecCompiler(opts Options) (*ExecCompiler, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return nil, ferrors.ConfigError("compiler command is required").
			WithContext("field", "compiler.command").
			Build()
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	absDir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve site directory").Build()
	}
	opts.Dir = absDir
	if opts.QuietWindow <= 0 {
		opts.QuietWindow = 300 * time.Millisecond
	}
	if opts.Runner == nil {
		opts.Runner = CommandRunner{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecCompiler{
		opts:    opts,
		hooks:   NewHooks(),
		logger:  logger,
		changed: make(map[string]struct{}),
		notify:  make(chan struct{}, 1),
	}, nil
}

// Hooks implements Compiler.
func (c *ExecCompiler) Hooks() *Hooks { return c.hooks }

// Invalidate records a changed path and wakes the watch loop.
func (c *ExecCompiler) Invalidate(path string) {
	c.mu.Lock()
	c.changed[path] = struct{}{}
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Run implements Compiler.
func (c *ExecCompiler) Run(ctx context.Context) error {
	if err := c.startWatcher(ctx); err != nil {
		return err
	}

	if err := c.hooks.Done.Call(ctx, c.compile(ctx)); err != nil {
		return c.stopped(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.notify:
		}

		c.hooks.Invalid.Call()

		if !c.waitQuiet(ctx) {
			return nil
		}

		compilation := &Compilation{Changed: c.takeChanged(), StartedAt: time.Now()}
		compilation.Number = c.number + 1
		if err := c.hooks.WatchRun.Call(ctx, compilation); err != nil {
			return c.stopped(ctx, err)
		}
		if err := c.hooks.Done.Call(ctx, c.compile(ctx)); err != nil {
			return c.stopped(ctx, err)
		}
	}
}

// stopped swallows hook cancellation caused by shutdown.
func (c *ExecCompiler) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// waitQuiet returns once no change arrived for the quiet window.
func (c *ExecCompiler) waitQuiet(ctx context.Context) bool {
	timer := time.NewTimer(c.opts.QuietWindow)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.notify:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.opts.QuietWindow)
		case <-timer.C:
			return true
		}
	}
}

func (c *ExecCompiler) takeChanged() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.changed))
	for p := range c.changed {
		out = append(out, p)
	}
	c.changed = make(map[string]struct{})
	sort.Strings(out)
	return out
}

func (c *ExecCompiler) compile(ctx context.Context) *Stats {
	c.number++
	stats := &Stats{Number: c.number, StartedAt: time.Now()}

	output, err := c.opts.Runner.Run(ctx, c.opts.Dir, c.opts.Command, c.opts.Args)
	stats.Duration = time.Since(stats.StartedAt)
	stats.Errors, stats.Warnings = ParseOutput(output)

	if err != nil && len(stats.Errors) == 0 {
		stats.Errors = append(stats.Errors, Diagnostic{Message: exitMessage(err, output)})
	}

	sum := sha256.New()
	_, _ = sum.Write(output)
	_, _ = sum.Write([]byte(strconv.Itoa(stats.Number)))
	_, _ = sum.Write([]byte(stats.StartedAt.Format(time.RFC3339Nano)))
	stats.Hash = hex.EncodeToString(sum.Sum(nil))[:20]

	c.logger.Debug("Compilation finished",
		slog.Int("number", stats.Number),
		logfields.Hash(stats.Hash),
		logfields.Errors(len(stats.Errors)),
		logfields.Warnings(len(stats.Warnings)),
		logfields.Duration(stats.Duration))
	return stats
}

func exitMessage(err error, output []byte) string {
	var exitErr *exec.ExitError
	msg := err.Error()
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("compiler exited with status %d", exitErr.ExitCode())
	}
	tail := strings.TrimSpace(string(output))
	if lines := strings.Split(tail, "\n"); len(lines) > 5 {
		tail = strings.Join(lines[len(lines)-5:], "\n")
	}
	if tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func (c *ExecCompiler) startWatcher(ctx context.Context) error {
	if len(c.opts.Watch) == 0 {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create source watcher").Build()
	}
	for _, dir := range c.opts.Watch {
		root := dir
		if !filepath.IsAbs(root) {
			root = filepath.Join(c.opts.Dir, root)
		}
		if st, statErr := os.Stat(root); statErr != nil || !st.IsDir() {
			c.logger.Warn("Watch directory missing; skipping", logfields.Path(root))
			continue
		}
		c.addDirsRecursive(w, root)
	}
	c.watcher = w
	go c.watchLoop(ctx, w)
	return nil
}

func (c *ExecCompiler) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if c.shouldIgnore(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					c.addDirsRecursive(w, ev.Name)
				}
			}
			c.logger.Debug("Source change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			c.Invalidate(ev.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.logger.Warn("Source watcher error", logfields.Error(err))
		}
	}
}

func (c *ExecCompiler) addDirsRecursive(w *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && c.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			c.logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

// shouldIgnore filters hidden files, editor swap files and configured ignores.
func (c *ExecCompiler) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, ig := range c.opts.Ignore {
		if base == ig {
			return true
		}
		if ok, _ := filepath.Match(ig, base); ok {
			return true
		}
	}
	return ShouldIgnoreFile(base)
}

// ShouldIgnoreFile reports whether a file name is editor or OS noise.
func ShouldIgnoreFile(base string) bool {
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db"
}

// Close stops the source watcher.
func (c *ExecCompiler) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.watcher != nil {
			err = c.watcher.Close()
		}
	})
	return err
}
