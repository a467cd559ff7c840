package config

import (
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
)

// Validate checks the configuration. Missing required settings are
// configuration errors; out-of-range values are validation errors.
func (p *Program) Validate() error {
	validators := []func() error{
		p.validateCompiler,
		p.validateServer,
		p.validateObservability,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Program) validateCompiler() error {
	if strings.TrimSpace(p.Compiler.Command) == "" {
		return ferrors.ConfigError("compiler.command is required").
			WithContext("hint", "set compiler.command in "+DefaultFile+" or "+EnvPrefix+"COMPILER_COMMAND").
			Build()
	}
	if p.Compiler.QuietWindow < 0 {
		return ferrors.ValidationError("compiler.quiet_window must not be negative").Build()
	}
	return nil
}

func (p *Program) validateServer() error {
	if err := validPort("port", p.Port, false); err != nil {
		return err
	}
	if err := validPort("proxy_port", p.ProxyPort, true); err != nil {
		return err
	}
	if p.Output == "" {
		return ferrors.ValidationError("output must not be empty").Build()
	}
	if p.HTTPS && (p.TLS.CertFile == "" || p.TLS.KeyFile == "") {
		return ferrors.ConfigError("https requires tls.cert_file and tls.key_file").Build()
	}
	return nil
}

// reservedPaths are mounted by the development server itself.
var reservedPaths = map[string]bool{
	"/":              true,
	"/__status":      true,
	"/__history":     true,
	"/livereload":    true,
	"/livereload.js": true,
}

func (p *Program) validateObservability() error {
	if _, err := logLevels.Validate("monitoring.logging.level", string(p.Monitoring.Logging.Level)); err != nil {
		return err
	}
	if _, err := logFormats.Validate("monitoring.logging.format", string(p.Monitoring.Logging.Format)); err != nil {
		return err
	}
	if p.Monitoring.Metrics.Enabled && (!strings.HasPrefix(p.Monitoring.Metrics.Path, "/") || reservedPaths[p.Monitoring.Metrics.Path]) {
		return ferrors.ValidationError("monitoring.metrics.path must start with / and not shadow a server route").
			WithContext("path", p.Monitoring.Metrics.Path).
			Build()
	}
	if p.LiveReload.NATSURL != "" && p.LiveReload.NATSSubject == "" {
		return ferrors.ConfigError("live_reload.nats_subject is required when live_reload.nats_url is set").Build()
	}
	if p.History.Path != "" && (p.History.Retention <= 0 || p.History.PruneInterval <= 0) {
		return ferrors.ValidationError("history.retention and history.prune_interval must be positive").Build()
	}
	return nil
}

func validPort(name string, port int, zeroOK bool) error {
	if zeroOK && port == 0 {
		return nil
	}
	if port < 1 || port > 65535 {
		return ferrors.ValidationError(fmt.Sprintf("%s must be between 1 and 65535", name)).
			WithContext(name, port).
			Build()
	}
	return nil
}
