package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/channelkit/core/transport"
)

// Config holds WebSocket transport configuration with environment
// variable mapping.
type Config struct {
	BaseURL          string        `env:"WS_BASE_URL,required"`
	HandshakeTimeout time.Duration `env:"WS_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	WriteTimeout     time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"5s"`
	ProbeTimeout     time.Duration `env:"WS_PROBE_TIMEOUT" envDefault:"5s"`
	ReadBufferSize   int           `env:"WS_READ_BUFFER_SIZE" envDefault:"1024"`
	WriteBufferSize  int           `env:"WS_WRITE_BUFFER_SIZE" envDefault:"1024"`
}

// Validate checks the configuration for common mistakes.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return ErrEmptyBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.Join(ErrInvalidBaseURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme must be ws or wss, got %q", ErrInvalidBaseURL, u.Scheme)
	}
	return nil
}

// Dialer opens named WebSocket channels against a base endpoint. The
// channel name becomes the final path segment of the dialed URL.
// Implements transport.Factory.
type Dialer struct {
	cfg    Config
	base   *url.URL
	dialer *websocket.Dialer
	header http.Header
	logger *slog.Logger
}

// DialerOption configures a Dialer.
type DialerOption func(*Dialer)

// WithDialHeader sets extra headers sent during the handshake, e.g.
// authentication tokens.
func WithDialHeader(header http.Header) DialerOption {
	return func(d *Dialer) {
		if header != nil {
			d.header = header
		}
	}
}

// WithDialerLogger sets the logger for dial and connection events.
func WithDialerLogger(logger *slog.Logger) DialerOption {
	return func(d *Dialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDialer creates a Dialer from the validated config.
func NewDialer(cfg Config, opts ...DialerOption) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Join(ErrInvalidBaseURL, err)
	}

	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}

	d := &Dialer{
		cfg:  cfg,
		base: base,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Open dials a channel endpoint and returns the live connection.
func (d *Dialer) Open(ctx context.Context, name string) (transport.Channel, error) {
	target := d.base.JoinPath(url.PathEscape(name))

	conn, resp, err := d.dialer.DialContext(ctx, target.String(), d.header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, transport.NewError(transport.OpOpen, name,
				fmt.Errorf("%w: status %d: %w", ErrDialFailed, resp.StatusCode, err))
		}
		return nil, transport.NewError(transport.OpOpen, name, errors.Join(ErrDialFailed, err))
	}
	if resp != nil {
		_ = resp.Body.Close()
	}

	d.logger.InfoContext(ctx, "websocket channel opened",
		slog.String("channel", name),
		slog.String("url", target.String()))

	return newConn(name, conn, d.cfg.WriteTimeout, d.cfg.ProbeTimeout, d.logger), nil
}
