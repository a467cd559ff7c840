package livereload

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
	"git.home.luguber.info/inful/devbundle/internal/logfields"
)

// Notification is the message published for remote live-reload clients.
type Notification struct {
	Hash      string    `json:"hash"`
	Succeeded bool      `json:"succeeded"`
	At        time.Time `json:"at"`
}

// NATSPublisher publishes bundle notifications to a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to url. Failures are classified as live-reload
// errors: they are retryable and never stop the development server.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if url == "" {
		return nil, ferrors.ConfigError("live_reload.nats_url is required for NATS publishing").Build()
	}
	if subject == "" {
		return nil, ferrors.ConfigError("live_reload.nats_subject is required for NATS publishing").Build()
	}
	conn, err := nats.Connect(url,
		nats.Name("devbundle"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, ferrors.LiveReloadError("connect to NATS").
			WithCause(err).
			WithContext("url", url).
			Build()
	}
	slog.Info("NATS live-reload publisher connected", logfields.URL(url), slog.String("subject", subject))
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// Publish sends n to the configured subject.
func (p *NATSPublisher) Publish(n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return ferrors.InternalError("encode live-reload notification").WithCause(err).Build()
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return ferrors.LiveReloadError("publish live-reload notification").
			WithCause(err).
			WithContext("subject", p.subject).
			Build()
	}
	slog.Debug("published live-reload notification", logfields.Hash(n.Hash), slog.String("subject", p.subject))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
