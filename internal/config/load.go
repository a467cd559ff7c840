package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
)

// Load reads the configuration at path. An empty path tries DefaultFile in
// the current directory and falls back to defaults when it does not exist;
// an explicit path must exist. .env files and DEVBUNDLE_* variables are
// applied on top, then defaults are normalized. Call Validate after applying
// command-line overrides.
func Load(path string) (*Program, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	loadEnvFiles(filepath.Dir(path))

	p := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, p); err != nil {
			return nil, ferrors.ConfigError("parse configuration file").
				WithCause(err).
				WithContext("path", path).
				Build()
		}
		if !filepath.IsAbs(p.Directory) {
			p.Directory = filepath.Join(filepath.Dir(path), p.Directory)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		slog.Debug("no configuration file found; using defaults", slog.String("path", path))
	case errors.Is(err, fs.ErrNotExist):
		return nil, ferrors.ConfigError("configuration file not found").
			WithContext("path", path).
			Build()
	default:
		return nil, ferrors.ConfigError("read configuration file").
			WithCause(err).
			WithContext("path", path).
			Build()
	}

	if err := applyEnv(p, os.LookupEnv); err != nil {
		return nil, err
	}
	p.ApplyDefaults()
	return p, nil
}

// decode expands ${VAR} references and decodes strictly, rejecting unknown keys.
func decode(data []byte, p *Program) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// loadEnvFiles loads .env and .env.local from dir. Variables already present
// in the process environment win.
func loadEnvFiles(dir string) {
	for _, name := range []string{".env", ".env.local"} {
		envPath := filepath.Join(dir, name)
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			slog.Warn("failed to load env file", slog.String("path", envPath), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("loaded environment variables", slog.String("path", envPath))
	}
}
