package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/devbundle/internal/buildstatus"
	"git.home.luguber.info/inful/devbundle/internal/config"
	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
)

const requestTimeout = 5 * time.Second

// StatusCmd asks a running development server whether its build has settled.
type StatusCmd struct {
	URL string `name:"url" help:"Base URL of the development server (defaults to the configured host and port)"`
}

func (s *StatusCmd) Run(_ *Global, root *CLI) error {
	base, err := serverURL(s.URL, root.Config)
	if err != nil {
		return err
	}
	return printStatus(context.Background(), os.Stdout, base)
}

func printStatus(ctx context.Context, out io.Writer, base string) error {
	var snap buildstatus.Snapshot
	if err := getJSON(ctx, base+"/__status", &snap); err != nil {
		return err
	}
	since := "unknown"
	if !snap.Since.IsZero() {
		since = snap.Since.Local().Format(time.RFC3339)
	}
	_, err := fmt.Fprintf(out, "%s (since %s)\n", snap.Status, since)
	return err
}

// serverURL returns explicit when set, otherwise the configured address.
func serverURL(explicit, configPath string) (string, error) {
	if explicit != "" {
		return strings.TrimSuffix(explicit, "/"), nil
	}
	program, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	host := program.Host
	if host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return program.Scheme() + "://" + net.JoinHostPort(host, strconv.Itoa(program.Port)), nil
}

func getJSON(ctx context.Context, url string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ferrors.ValidationError("invalid server URL").WithCause(err).WithContext("url", url).Build()
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "development server unreachable").
			WithContext("url", url).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return ferrors.NewError(ferrors.CategoryNetwork, "unexpected response from development server").
			WithContext("url", url).
			WithContext("status", resp.StatusCode).
			Build()
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "decode development server response").
			WithContext("url", url).
			Build()
	}
	return nil
}
