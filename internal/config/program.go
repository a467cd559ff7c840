// Package config loads the development server configuration from a YAML
// file, .env files, DEVBUNDLE_* environment variables and command-line
// overrides, in that order of increasing precedence.
package config

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "devbundle.yaml"

// Program is the configuration of one development session.
type Program struct {
	Directory  string           `yaml:"directory"`
	HTTPS      bool             `yaml:"https"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	ProxyPort  int              `yaml:"proxy_port"`
	Open       bool             `yaml:"open"`
	Output     string           `yaml:"output"`
	TLS        TLSConfig        `yaml:"tls"`
	Site       SiteConfig       `yaml:"site"`
	Compiler   CompilerConfig   `yaml:"compiler"`
	LiveReload LiveReloadConfig `yaml:"live_reload"`
	History    HistoryConfig    `yaml:"history"`
	Monitoring MonitoringConfig `yaml:"monitoring"`

	// Deprecations collects notices about outdated settings found while loading.
	Deprecations []string `yaml:"-"`
}

// TLSConfig names the certificate served when HTTPS is enabled.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SiteConfig identifies the site being developed.
type SiteConfig struct {
	PackageJSON string `yaml:"package_json"`
	Name        string `yaml:"name"`
}

// CompilerConfig describes the external watch-mode build command.
type CompilerConfig struct {
	Command     string        `yaml:"command"`
	Args        []string      `yaml:"args"`
	Watch       []string      `yaml:"watch"`
	Ignore      []string      `yaml:"ignore"`
	QuietWindow time.Duration `yaml:"quiet_window"`

	// WatchDirs is the old name of Watch.
	WatchDirs []string `yaml:"watch_dirs,omitempty"`
}

// LiveReloadConfig controls browser notifications.
type LiveReloadConfig struct {
	Enabled     bool   `yaml:"enabled"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// HistoryConfig controls the compilation history database. An empty path disables it.
type HistoryConfig struct {
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// MonitoringConfig groups metrics and logging settings.
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Scheme returns "https" or "http".
func (p *Program) Scheme() string {
	if p.HTTPS {
		return "https"
	}
	return "http"
}

// PublicPort is the port shown to the operator: ProxyPort when set, else Port.
func (p *Program) PublicPort() int {
	if p.ProxyPort > 0 {
		return p.ProxyPort
	}
	return p.Port
}

// ListenAddr is the address the development server binds.
func (p *Program) ListenAddr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// OutputDir returns the output directory resolved against Directory.
func (p *Program) OutputDir() string {
	return p.resolve(p.Output)
}

// HistoryPath returns the history database path resolved against Directory,
// or "" when history is disabled.
func (p *Program) HistoryPath() string {
	if p.History.Path == "" || p.History.Path == ":memory:" {
		return p.History.Path
	}
	return p.resolve(p.History.Path)
}

// CertFiles returns the certificate and key paths resolved against Directory.
func (p *Program) CertFiles() (cert, key string) {
	return p.resolve(p.TLS.CertFile), p.resolve(p.TLS.KeyFile)
}

func (p *Program) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Directory, path)
}

// SiteName returns the configured site name, falling back to the "name"
// field of the site's package.json. It is empty when neither is available.
func (p *Program) SiteName() string {
	if p.Site.Name != "" {
		return p.Site.Name
	}
	if p.Site.PackageJSON == "" {
		return ""
	}
	data, err := os.ReadFile(p.resolve(p.Site.PackageJSON))
	if err != nil {
		return ""
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Name
}
