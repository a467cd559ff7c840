package config

import (
	"slices"
	"strings"
	"time"
)

// Default values.
const (
	DefaultHost          = "localhost"
	DefaultPort          = 8000
	DefaultOutput        = "public"
	DefaultPackageJSON   = "package.json"
	DefaultQuietWindow   = 300 * time.Millisecond
	DefaultNATSSubject   = "devbundle.bundle.ready"
	DefaultRetention     = 168 * time.Hour
	DefaultPruneInterval = time.Hour
	DefaultMetricsPath   = "/metrics"
)

// Defaults returns a Program with every default applied. Loading decodes
// the YAML file over it, so omitted keys keep these values.
func Defaults() *Program {
	return &Program{
		Directory: ".",
		Host:      DefaultHost,
		Port:      DefaultPort,
		Output:    DefaultOutput,
		Site:      SiteConfig{PackageJSON: DefaultPackageJSON},
		Compiler: CompilerConfig{
			Watch:       []string{"src"},
			Ignore:      []string{"node_modules"},
			QuietWindow: DefaultQuietWindow,
		},
		LiveReload: LiveReloadConfig{Enabled: true, NATSSubject: DefaultNATSSubject},
		History:    HistoryConfig{Retention: DefaultRetention, PruneInterval: DefaultPruneInterval},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{Enabled: true, Path: DefaultMetricsPath},
			Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		},
	}
}

// DefaultApplier fills in or normalizes one configuration domain after loading.
type DefaultApplier interface {
	ApplyDefaults(p *Program)
	Domain() string
}

// ServerDefaultApplier handles the listener settings.
type ServerDefaultApplier struct{}

func (ServerDefaultApplier) Domain() string { return "server" }

func (ServerDefaultApplier) ApplyDefaults(p *Program) {
	if p.Directory == "" {
		p.Directory = "."
	}
	if strings.TrimSpace(p.Host) == "" {
		p.Host = DefaultHost
	}
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if p.Output == "" {
		p.Output = DefaultOutput
	}
}

// CompilerDefaultApplier handles the compiler settings, including the
// deprecated watch_dirs alias.
type CompilerDefaultApplier struct{}

func (CompilerDefaultApplier) Domain() string { return "compiler" }

func (CompilerDefaultApplier) ApplyDefaults(p *Program) {
	c := &p.Compiler
	if len(c.WatchDirs) > 0 {
		p.Deprecations = append(p.Deprecations, "compiler.watch_dirs is deprecated; rename it to compiler.watch")
		if len(c.Watch) == 0 || slices.Equal(c.Watch, Defaults().Compiler.Watch) {
			c.Watch = c.WatchDirs
		}
		c.WatchDirs = nil
	}
	if len(c.Watch) == 0 {
		c.Watch = []string{"."}
	}
	if c.QuietWindow <= 0 {
		c.QuietWindow = DefaultQuietWindow
	}
}

// ObservabilityDefaultApplier handles live reload, history and monitoring.
type ObservabilityDefaultApplier struct{}

func (ObservabilityDefaultApplier) Domain() string { return "observability" }

func (ObservabilityDefaultApplier) ApplyDefaults(p *Program) {
	if p.LiveReload.NATSSubject == "" {
		p.LiveReload.NATSSubject = DefaultNATSSubject
	}
	if p.History.Retention <= 0 {
		p.History.Retention = DefaultRetention
	}
	if p.History.PruneInterval <= 0 {
		p.History.PruneInterval = DefaultPruneInterval
	}
	if p.Monitoring.Metrics.Path == "" {
		p.Monitoring.Metrics.Path = DefaultMetricsPath
	}
	if p.Monitoring.Logging.Level == "" {
		p.Monitoring.Logging.Level = LogLevelInfo
	} else if lvl := NormalizeLogLevel(string(p.Monitoring.Logging.Level)); lvl != "" {
		p.Monitoring.Logging.Level = lvl
	}
	if p.Monitoring.Logging.Format == "" {
		p.Monitoring.Logging.Format = LogFormatText
	} else if f := NormalizeLogFormat(string(p.Monitoring.Logging.Format)); f != "" {
		p.Monitoring.Logging.Format = f
	}
}

var appliers = []DefaultApplier{
	ServerDefaultApplier{},
	CompilerDefaultApplier{},
	ObservabilityDefaultApplier{},
}

// ApplyDefaults runs every domain applier.
func (p *Program) ApplyDefaults() {
	for _, a := range appliers {
		a.ApplyDefaults(p)
	}
}
