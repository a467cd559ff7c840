package config

import (
	"strconv"
	"strings"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DEVBUNDLE_"

type envBinding struct {
	key   string
	apply func(p *Program, value string) error
}

var envBindings = []envBinding{
	{"DIRECTORY", func(p *Program, v string) error { p.Directory = v; return nil }},
	{"HOST", func(p *Program, v string) error { p.Host = v; return nil }},
	{"PORT", intSetter(func(p *Program) *int { return &p.Port })},
	{"PROXY_PORT", intSetter(func(p *Program) *int { return &p.ProxyPort })},
	{"HTTPS", boolSetter(func(p *Program) *bool { return &p.HTTPS })},
	{"OPEN", boolSetter(func(p *Program) *bool { return &p.Open })},
	{"TLS_CERT_FILE", func(p *Program, v string) error { p.TLS.CertFile = v; return nil }},
	{"TLS_KEY_FILE", func(p *Program, v string) error { p.TLS.KeyFile = v; return nil }},
	{"OUTPUT", func(p *Program, v string) error { p.Output = v; return nil }},
	{"SITE_NAME", func(p *Program, v string) error { p.Site.Name = v; return nil }},
	{"COMPILER_COMMAND", func(p *Program, v string) error { p.Compiler.Command = v; return nil }},
	{"COMPILER_ARGS", func(p *Program, v string) error { p.Compiler.Args = strings.Fields(v); return nil }},
	{"LIVE_RELOAD", boolSetter(func(p *Program) *bool { return &p.LiveReload.Enabled })},
	{"NATS_URL", func(p *Program, v string) error { p.LiveReload.NATSURL = v; return nil }},
	{"NATS_SUBJECT", func(p *Program, v string) error { p.LiveReload.NATSSubject = v; return nil }},
	{"HISTORY_PATH", func(p *Program, v string) error { p.History.Path = v; return nil }},
	{"METRICS", boolSetter(func(p *Program) *bool { return &p.Monitoring.Metrics.Enabled })},
	{"LOG_LEVEL", func(p *Program, v string) error { p.Monitoring.Logging.Level = LogLevel(v); return nil }},
	{"LOG_FORMAT", func(p *Program, v string) error { p.Monitoring.Logging.Format = LogFormat(v); return nil }},
}

// applyEnv overrides fields from DEVBUNDLE_* variables found by lookup.
func applyEnv(p *Program, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok {
			continue
		}
		if err := b.apply(p, strings.TrimSpace(v)); err != nil {
			return ferrors.ValidationError("invalid environment override").
				WithCause(err).
				WithContext("variable", EnvPrefix+b.key).
				Build()
		}
	}
	return nil
}

func intSetter(field func(*Program) *int) func(*Program, string) error {
	return func(p *Program, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(p) = n
		return nil
	}
}

func boolSetter(field func(*Program) *bool) func(*Program, string) error {
	return func(p *Program, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(p) = b
		return nil
	}
}
