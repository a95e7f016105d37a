package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Mmx233/QRcon/config"
	"github.com/Mmx233/QRcon/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client opens authenticated RCON sessions to the configured servers.
type Client struct {
	config *config.Client
	dialer net.Dialer
	logger zerolog.Logger
}

// New creates a new client
func New(conf *config.Client) (*Client, error) {
	// Apply defaults to ensure all required fields have values
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Client{
		config: conf,
		dialer: net.Dialer{Timeout: conf.DialTimeout},
		logger: log.With().Str("com", "client").Logger(),
	}, nil
}

// Config returns the client configuration.
func (c *Client) Config() *config.Client {
	return c.config
}

// Connect dials server and returns an unauthenticated session on it.
func (c *Client) Connect(ctx context.Context, server config.Server) (*Session, error) {
	terminator, err := NewTerminator(c.config.Fragment)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With().Str("server", server.Address).Logger()
	if server.Name != "" {
		logger = logger.With().Str("server_name", server.Name).Logger()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", server.Address)
	if err != nil {
		return nil, &TransportError{Op: "dial " + server.Address, Err: err}
	}

	// Commands are small and latency bound
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			logger.Warn().Err(err).Msg("set TCP_NODELAY failed")
		}
	}

	logger.Debug().Str("local_addr", conn.LocalAddr().String()).Msg("connected")

	rc := NewConnection(conn,
		WithTerminator(terminator),
		WithTimeouts(c.config.ReadTimeout, c.config.WriteTimeout),
		WithLogger(logger),
	)
	return NewSession(rc,
		WithStartID(c.config.StartID),
		WithMaxPayload(c.config.MaxPayload),
		WithSessionLogger(logger),
	), nil
}

// Dial connects to server and logs in with password. The session is
// closed again if the login fails.
func (c *Client) Dial(ctx context.Context, server config.Server, password string) (*Session, error) {
	session, err := c.Connect(ctx, server)
	if err != nil {
		return nil, err
	}
	if err := session.Login(ctx, password); err != nil {
		_ = session.Close()
		return nil, err
	}
	return session, nil
}

// Observer is called once for every command Execute issues, including the
// one that failed.
type Observer func(command string, resp protocol.Packet, err error, took time.Duration)

// Execute runs commands in order on one session and returns the response
// payloads. It stops at the first failure and returns what completed so far.
func Execute(ctx context.Context, session *Session, commands []string, observers ...Observer) ([]string, error) {
	out := make([]string, 0, len(commands))
	for _, command := range commands {
		start := time.Now()
		resp, err := session.Command(ctx, command)
		for _, observe := range observers {
			observe(command, resp, err, time.Since(start))
		}
		if err != nil {
			return out, err
		}
		out = append(out, string(resp.Payload))
	}
	return out, nil
}
