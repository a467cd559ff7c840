package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
)

type fakeRunner struct {
	mu      sync.Mutex
	outputs [][]byte
	errs    []error
	calls   int
}

func (f *fakeRunner) Run(_ context.Context, _, _ string, _ []string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	var out []byte
	var err error
	if i < len(f.outputs) {
		out = f.outputs[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return out, err
}

type recorder struct {
	mu     sync.Mutex
	events []string
	stats  []*Stats
	doneCh chan struct{}
}

func newRecorder(c *ExecCompiler) *recorder {
	r := &recorder{doneCh: make(chan struct{}, 16)}
	c.Hooks().Invalid.Tap("test", func() { r.add("invalid") })
	c.Hooks().WatchRun.Tap("test", func(_ *Compilation, ack func()) {
		r.add("watch-run")
		ack()
	})
	c.Hooks().Done.Tap("test", func(s *Stats, ack func()) {
		r.mu.Lock()
		r.events = append(r.events, "done")
		r.stats = append(r.stats, s)
		r.mu.Unlock()
		ack()
		r.doneCh <- struct{}{}
	})
	return r
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-r.doneCh:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for done hook")
	}
}

func TestNewExecCompiler_RequiresCommand(t *testing.T) {
	_, err := NewExecCompiler(Options{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestExecCompiler_LifecycleOrder(t *testing.T) {
	runner := &fakeRunner{
		outputs: [][]byte{nil, []byte("src/a.go:1:1: broken\n")},
		errs:    []error{nil, errors.New("exit status 1")},
	}
	c, err := NewExecCompiler(Options{Dir: t.TempDir(), Command: "build", QuietWindow: 10 * time.Millisecond, Runner: runner})
	require.NoError(t, err)
	rec := newRecorder(c)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	rec.waitDone(t)
	assert.Equal(t, []string{"done"}, rec.snapshot(), "initial build fires done without watch-run")

	c.Invalidate("src/a.go")
	rec.waitDone(t)

	assert.Equal(t, []string{"done", "invalid", "watch-run", "done"}, rec.snapshot())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.False(t, rec.stats[0].HasErrors())
	require.True(t, rec.stats[1].HasErrors())
	assert.Equal(t, "src/a.go", rec.stats[1].Errors[0].File)
	assert.NotEqual(t, rec.stats[0].Hash, rec.stats[1].Hash)
}

func TestExecCompiler_FailureWithoutDiagnostics(t *testing.T) {
	runner := &fakeRunner{
		outputs: [][]byte{[]byte("segfault\n")},
		errs:    []error{errors.New("signal: killed")},
	}
	c, err := NewExecCompiler(Options{Dir: t.TempDir(), Command: "build", Runner: runner})
	require.NoError(t, err)
	rec := newRecorder(c)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = c.Run(ctx) }()
	rec.waitDone(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.stats[0].Errors, 1)
	assert.Contains(t, rec.stats[0].Errors[0].Message, "signal: killed")
	assert.Contains(t, rec.stats[0].Errors[0].Message, "segfault")
}

func TestExecCompiler_DoneWaitsForAck(t *testing.T) {
	c, err := NewExecCompiler(Options{Dir: t.TempDir(), Command: "build", QuietWindow: 10 * time.Millisecond, Runner: &fakeRunner{}})
	require.NoError(t, err)

	release := make(chan struct{})
	watchRuns := make(chan struct{}, 4)
	var once sync.Once
	c.Hooks().Done.Tap("slow", func(_ *Stats, ack func()) {
		go func() {
			<-release
			ack()
		}()
	})
	c.Hooks().WatchRun.Tap("test", func(_ *Compilation, ack func()) {
		watchRuns <- struct{}{}
		ack()
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	c.Invalidate("a")
	select {
	case <-watchRuns:
		t.Fatal("watch-run fired before done was acknowledged")
	case <-time.After(100 * time.Millisecond):
	}

	once.Do(func() { close(release) })
	select {
	case <-watchRuns:
	case <-time.After(3 * time.Second):
		t.Fatal("watch-run never fired after acknowledgment")
	}
}

func TestExecCompiler_CoalescesBurst(t *testing.T) {
	runner := &fakeRunner{}
	c, err := NewExecCompiler(Options{Dir: t.TempDir(), Command: "build", QuietWindow: 50 * time.Millisecond, Runner: runner})
	require.NoError(t, err)

	var compilations []*Compilation
	var mu sync.Mutex
	c.Hooks().WatchRun.Tap("test", func(comp *Compilation, ack func()) {
		mu.Lock()
		compilations = append(compilations, comp)
		mu.Unlock()
		ack()
	})
	rec := newRecorder(c)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = c.Run(ctx) }()
	rec.waitDone(t)

	c.Invalidate("b.go")
	c.Invalidate("a.go")
	c.Invalidate("b.go")
	rec.waitDone(t)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, compilations, 1)
	assert.Equal(t, []string{"a.go", "b.go"}, compilations[0].Changed)
	assert.Equal(t, 2, compilations[0].Number)
}

func TestExecCompiler_WatchesSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))

	c, err := NewExecCompiler(Options{Dir: dir, Command: "build", Watch: []string{"src"}, QuietWindow: 20 * time.Millisecond, Runner: &fakeRunner{}})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	rec := newRecorder(c)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = c.Run(ctx) }()
	rec.waitDone(t)

	require.NoError(t, os.WriteFile(filepath.Join(src, "index.js"), []byte("x"), 0o600))
	rec.waitDone(t)

	assert.Contains(t, rec.snapshot(), "invalid")
}

func TestShouldIgnoreFile(t *testing.T) {
	for _, name := range []string{".git", "main.go~", ".main.go.swp", "#main.go#", "Thumbs.db"} {
		assert.True(t, ShouldIgnoreFile(name), name)
	}
	assert.False(t, ShouldIgnoreFile("main.go"))
}
