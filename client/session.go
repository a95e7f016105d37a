package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Mmx233/QRcon/config"
	"github.com/Mmx233/QRcon/protocol"
	"github.com/rs/zerolog"
)

// sequence allocates request ids. It is owned by exactly one Session.
type sequence struct {
	next int32
}

func newSequence(start int32) *sequence {
	if start < 0 {
		start = 0
	}
	return &sequence{next: start}
}

// allocate returns the next id for which busy reports false. Ids increase
// monotonically and wrap from MaxInt32 back to zero, so the auth failure
// id is never produced.
func (s *sequence) allocate(busy func(int32) bool) int32 {
	for {
		id := s.next
		if s.next == math.MaxInt32 {
			s.next = 0
		} else {
			s.next++
		}
		if id == protocol.AuthFailedID || (busy != nil && busy(id)) {
			continue
		}
		return id
	}
}

// Session drives the login handshake and issues commands over a Connection.
// Calls are serialized; concurrent callers queue on the session.
type Session struct {
	id         string
	conn       *Connection
	seq        *sequence
	maxPayload int
	logger     zerolog.Logger

	mu sync.Mutex
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithStartID sets the first request id. Negative values are treated as zero.
func WithStartID(id int32) SessionOption {
	return func(s *Session) {
		s.seq = newSequence(id)
	}
}

// WithMaxPayload sets the largest command or password accepted before any I/O.
func WithMaxPayload(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxPayload = n
		}
	}
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates an unauthenticated session on conn.
func NewSession(conn *Connection, opts ...SessionOption) *Session {
	s := &Session{
		id:         config.GenerateSessionID(),
		conn:       conn,
		seq:        newSequence(0),
		maxPayload: protocol.MaxPayload,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("session_id", s.id).Logger()
	return s
}

// ID returns the session identifier used in logs and history.
func (s *Session) ID() string {
	return s.id
}

// State returns the state of the underlying connection.
func (s *Session) State() State {
	return s.conn.State()
}

// Connection returns the underlying connection.
func (s *Session) Connection() *Connection {
	return s.conn
}

// Login authenticates with the server. A denial closes the session.
// Logging in again on a ready session re-authenticates it.
func (s *Session) Login(ctx context.Context, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn.State() == StateClosed {
		return ErrConnectionClosed
	}
	if len(password) > s.maxPayload {
		return fmt.Errorf("login: %w: %d bytes exceeds %d", ErrPayloadTooLarge, len(password), s.maxPayload)
	}

	pkt := protocol.NewLogin(s.nextID(), password)
	if err := pkt.Validate(); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	s.conn.transition(StateAuthenticating)
	s.logger.Debug().Int32("request_id", pkt.ID).Msg("authenticating")

	if _, err := s.conn.SendAndWait(ctx, Request{Packet: pkt, Terminator: authTerminator{}}); err != nil {
		if errors.Is(err, ErrAuthDenied) {
			s.logger.Warn().Msg("authentication denied")
			_ = s.conn.Close()
		}
		return fmt.Errorf("login: %w", err)
	}

	s.conn.transition(StateReady)
	s.logger.Info().Msg("authenticated")
	return nil
}

// Command sends a command and returns the fully reassembled response.
// It fails with ErrNotAuthenticated without touching the network unless
// the session is ready.
func (s *Session) Command(ctx context.Context, command string) (protocol.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.conn.State() {
	case StateReady:
	case StateClosed:
		return protocol.Packet{}, fmt.Errorf("%w: %w", ErrConnectionClosed, &AuthError{Err: ErrNotAuthenticated})
	default:
		return protocol.Packet{}, &AuthError{Err: ErrNotAuthenticated}
	}

	if len(command) > s.maxPayload {
		return protocol.Packet{}, fmt.Errorf("command: %w: %d bytes exceeds %d", ErrPayloadTooLarge, len(command), s.maxPayload)
	}

	pkt := protocol.NewCommand(s.nextID(), command)
	if err := pkt.Validate(); err != nil {
		return protocol.Packet{}, fmt.Errorf("command: %w", err)
	}

	req := Request{Packet: pkt}
	if s.conn.Terminator().Marker() {
		marker := protocol.NewMarker(s.nextID())
		req.Marker = &marker
	}

	start := time.Now()
	resp, err := s.conn.SendAndWait(ctx, req)
	if err != nil {
		if errors.Is(err, ErrAuthDenied) {
			s.logger.Warn().Int32("request_id", pkt.ID).Msg("server revoked authentication")
			_ = s.conn.Close()
		}
		return protocol.Packet{}, fmt.Errorf("command: %w", err)
	}

	s.logger.Debug().
		Int32("request_id", pkt.ID).
		Int("bytes", len(resp.Payload)).
		Dur("took", time.Since(start)).
		Msg("command completed")
	return resp, nil
}

// Close closes the session and its connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// nextID must be called with mu held.
func (s *Session) nextID() int32 {
	return s.seq.allocate(s.conn.Outstanding)
}
