package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/devbundle/internal/config"
)

// Global is shared with every subcommand's Run.
type Global struct {
	Logger *slog.Logger
}

// CLI is the root command line.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path (defaults to ./devbundle.yaml when present)"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log output format (text or json); overrides the configuration"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Develop DevelopCmd `cmd:"" default:"withargs" help:"Start the development server and rebuild on every source change"`
	Status  StatusCmd  `cmd:"" help:"Query the build status of a running development server"`
	History HistoryCmd `cmd:"" help:"List recent compilations"`
}

// AfterApply runs after flag parsing; set up logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	slog.SetDefault(NewLogger(os.Stderr, c.Verbose, config.LogLevelInfo, config.NormalizeLogFormat(c.LogFormat)))
	return nil
}

// NewLogger builds the process logger. Verbose forces debug level; an empty
// format means text.
func NewLogger(w io.Writer, verbose bool, level config.LogLevel, format config.LogFormat) *slog.Logger {
	lvl := level.Slog()
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadProgram loads the configuration and applies command-line overrides.
func loadProgram(path string, overrides config.Overrides) (*config.Program, error) {
	program, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	overrides.Apply(program)
	program.ApplyDefaults()
	if err := program.Validate(); err != nil {
		return nil, err
	}
	return program, nil
}
