// Package pagedata stages per-page data produced during development and
// writes it to the output directory when a flush is requested.
package pagedata

import (
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
	"git.home.luguber.info/inful/devbundle/internal/logfields"
)

// AppDataFile holds the site-wide record of the latest compilation.
const AppDataFile = "app-data.json"

// Flusher requests a flush without waiting for it.
type Flusher interface {
	EnqueueFlush()
}

// AppDataStager accepts the site-wide record written by the next flush.
type AppDataStager interface {
	SetAppData(data any)
}

// Queue stages page data and flushes it on a background worker.
// Flush requests made while a flush is running collapse into one follow-up flush.
type Queue struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	staged map[string]any
	app    any
	hasApp bool
	closed bool

	req  chan struct{}
	stop chan struct{}
	done chan struct{}

	// onFlush is called after every flush with the pages written.
	onFlush func(pages []string)
}

// NewQueue starts a queue writing below <outputDir>/page-data.
func NewQueue(outputDir string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		dir:    filepath.Join(outputDir, "page-data"),
		logger: logger,
		staged: make(map[string]any),
		req:    make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue stages data for the page at pagePath. Later calls for the same
// page replace earlier ones until the next flush.
func (q *Queue) Enqueue(pagePath string, data any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.staged[pagePath] = data
}

// SetAppData stages the record written to page-data/app-data.json. Later
// calls replace earlier ones until the next flush.
func (q *Queue) SetAppData(data any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.app, q.hasApp = data, true
}

// EnqueueFlush signals the worker. It never blocks.
func (q *Queue) EnqueueFlush() {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return
	}
	select {
	case q.req <- struct{}{}:
	default:
	}
}

// Close flushes anything still staged and stops the worker.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)
	<-q.done
	return nil
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.req:
			q.flush()
		case <-q.stop:
			q.flush()
			return
		}
	}
}

func (q *Queue) flush() {
	q.mu.Lock()
	batch := q.staged
	q.staged = make(map[string]any)
	app, hasApp := q.app, q.hasApp
	q.app, q.hasApp = nil, false
	q.mu.Unlock()

	pages := make([]string, 0, len(batch))
	for p := range batch {
		pages = append(pages, p)
	}
	sort.Strings(pages)

	written := pages[:0:0]
	if hasApp {
		if err := writeJSON(q.AppDataPath(), AppDataFile, app); err != nil {
			q.logger.Warn("app data flush failed", logfields.Error(err))
		} else {
			written = append(written, AppDataFile)
		}
	}
	for _, p := range pages {
		if err := writeJSON(q.FilePath(p), p, batch[p]); err != nil {
			q.logger.Warn("page data flush failed", logfields.Path(p), logfields.Error(err))
			continue
		}
		written = append(written, p)
	}
	if len(written) > 0 {
		q.logger.Debug("page data flushed", slog.Int("files", len(written)))
	}
	if q.onFlush != nil {
		q.onFlush(written)
	}
}

// AppDataPath returns where the app data record is written.
func (q *Queue) AppDataPath() string {
	return filepath.Join(q.dir, AppDataFile)
}

// FilePath returns where the data for pagePath is written.
func (q *Queue) FilePath(pagePath string) string {
	return filepath.Join(q.dir, filepath.FromSlash(pageDir(pagePath)), "page-data.json")
}

// pageDir maps a URL path to its directory below page-data. The root page is "index".
func pageDir(pagePath string) string {
	clean := strings.Trim(path.Clean("/"+pagePath), "/")
	if clean == "" {
		return "index"
	}
	return clean
}

func writeJSON(target, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "encode page data").
			WithContext("path", name).
			Build()
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return ferrors.FileSystemError("create page data directory").WithCause(err).WithContext("path", target).Build()
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".page-data-*.json")
	if err != nil {
		return ferrors.FileSystemError("create temp page data file").WithCause(err).WithContext("path", target).Build()
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return ferrors.FileSystemError("write page data").WithCause(err).WithContext("path", target).Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return ferrors.FileSystemError("close page data").WithCause(err).WithContext("path", target).Build()
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return ferrors.FileSystemError("replace page data").WithCause(err).WithContext("path", target).Build()
	}
	return nil
}
