// Package browser opens URLs in the operator's default browser. A launch
// failure is a value, not an error return: callers log it and move on.
package browser

import (
	"io"
	"log/slog"

	"github.com/pkg/browser"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
	"git.home.luguber.info/inful/devbundle/internal/logfields"
)

// Result is the outcome of a launch attempt.
type Result struct {
	URL    string
	Opened bool
	Err    error
}

// LogFailure logs a warning when the launch failed. Successful results are ignored.
func (r Result) LogFailure(logger *slog.Logger) {
	if r.Opened {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("Browser not opened because no browser was found", logfields.URL(r.URL), logfields.Error(r.Err))
}

// Launcher opens a URL.
type Launcher interface {
	Open(url string) Result
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(url string) Result

// Open implements Launcher.
func (f LauncherFunc) Open(url string) Result { return f(url) }

// System launches the platform browser through github.com/pkg/browser.
type System struct{}

// Open implements Launcher.
func (System) Open(url string) Result {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	if err := browser.OpenURL(url); err != nil {
		return Result{
			URL: url,
			Err: ferrors.WrapError(err, ferrors.CategoryBrowser, "open browser").
				Warning().
				WithContext("url", url).
				Build(),
		}
	}
	return Result{URL: url, Opened: true}
}
