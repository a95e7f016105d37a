package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mmx233/QRcon/protocol"
	"github.com/rs/zerolog"
)

// aLongTimeAgo is a deadline in the past, used to interrupt blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// deadliner is implemented by transports that support I/O deadlines (net.Conn).
type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Request is one exchange on the connection.
type Request struct {
	Packet protocol.Packet
	// Marker is an optional frame written right after Packet. A frame echoing
	// its id completes the response.
	Marker *protocol.Packet
	// Terminator overrides the connection's policy for this exchange.
	Terminator Terminator
}

// Stats counts frames seen by a connection.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	Dropped        uint64
}

// Connection owns a single ordered byte stream to an RCON server.
// Exchanges are serialized: a request is written only after the full
// response of its predecessor has been read.
type Connection struct {
	transport  io.ReadWriter
	reader     *bufio.Reader
	writer     *bufio.Writer
	deadlines  deadliner
	correlator *Correlator
	terminator Terminator

	readTimeout    time.Duration
	writeTimeout   time.Duration
	maxFrameLength int32

	state atomic.Int32

	// mu serializes exchanges.
	mu sync.Mutex

	// dmu guards deadline updates against a concurrent interrupt.
	dmu         sync.Mutex
	interrupted bool

	closeOnce sync.Once
	closeErr  error

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	dropped        atomic.Uint64

	logger zerolog.Logger
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithTerminator sets the fragment termination policy.
func WithTerminator(t Terminator) ConnectionOption {
	return func(c *Connection) {
		if t != nil {
			c.terminator = t
		}
	}
}

// WithTimeouts sets per-frame read and write timeouts. Zero disables a timeout.
// Timeouts only apply to transports that support deadlines.
func WithTimeouts(read, write time.Duration) ConnectionOption {
	return func(c *Connection) {
		c.readTimeout = read
		c.writeTimeout = write
	}
}

// WithMaxFrameLength sets the largest declared frame length the connection
// accepts. Zero or negative disables the check.
func WithMaxFrameLength(n int32) ConnectionOption {
	return func(c *Connection) {
		c.maxFrameLength = n
	}
}

// WithLogger sets the connection logger.
func WithLogger(logger zerolog.Logger) ConnectionOption {
	return func(c *Connection) {
		c.logger = logger
	}
}

// NewConnection wraps an established transport. The connection starts in
// StateConnecting and is driven forward by a Session.
func NewConnection(transport io.ReadWriter, opts ...ConnectionOption) *Connection {
	c := &Connection{
		transport:      transport,
		reader:         bufio.NewReaderSize(transport, protocol.MediumBufferSize),
		writer:         bufio.NewWriterSize(transport, protocol.MediumBufferSize),
		correlator:     NewCorrelator(),
		terminator:     SinglePacket{},
		maxFrameLength: protocol.MaxFrameLength,
		logger:         zerolog.Nop(),
	}
	if d, ok := transport.(deadliner); ok {
		c.deadlines = d
	}
	for _, opt := range opts {
		opt(c)
	}
	if addr := c.RemoteAddr(); addr != "" {
		c.logger = c.logger.With().Str("server_addr", addr).Logger()
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// State returns the current connection state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// transition moves the connection to the given state if the move is allowed.
func (c *Connection) transition(to State) bool {
	for {
		from := c.State()
		if !canTransition(from, to) {
			return false
		}
		if c.state.CompareAndSwap(int32(from), int32(to)) {
			c.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state changed")
			return true
		}
	}
}

// Terminator returns the connection's default termination policy.
func (c *Connection) Terminator() Terminator {
	return c.terminator
}

// Outstanding reports whether id is waiting for a response.
func (c *Connection) Outstanding(id int32) bool {
	return c.correlator.Has(id)
}

// RemoteAddr returns the peer address when the transport is a net.Conn.
func (c *Connection) RemoteAddr() string {
	if nc, ok := c.transport.(net.Conn); ok && nc.RemoteAddr() != nil {
		return nc.RemoteAddr().String()
	}
	return ""
}

// Stats returns frame counters.
func (c *Connection) Stats() Stats {
	return Stats{
		FramesSent:     c.framesSent.Load(),
		FramesReceived: c.framesReceived.Load(),
		Dropped:        c.dropped.Load(),
	}
}

// SendAndWait writes the request and blocks until its full response has been read.
//
// A frame carrying the auth failure id fails the exchange with ErrAuthDenied.
// Frames for ids other than the awaited one are logged and dropped.
// Transport and framing errors, as well as ctx cancellation mid-exchange,
// close the connection, since the stream position is no longer known.
func (c *Connection) SendAndWait(ctx context.Context, req Request) (protocol.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateClosed {
		return protocol.Packet{}, ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return protocol.Packet{}, err
	}
	if err := req.Packet.Validate(); err != nil {
		return protocol.Packet{}, err
	}
	if req.Marker != nil {
		if err := req.Marker.Validate(); err != nil {
			return protocol.Packet{}, err
		}
	}

	term := req.Terminator
	if term == nil {
		term = c.terminator
	}

	id := req.Packet.ID
	if err := c.correlator.Open(id); err != nil {
		return protocol.Packet{}, err
	}

	logger := c.logger.With().Int32("request_id", id).Str("type", req.Packet.Type.String()).Logger()

	stop := context.AfterFunc(ctx, c.interrupt)
	resp, err := c.exchange(req, term, logger)
	if !stop() && err == nil {
		// ctx fired after the response was read but the deadlines are
		// already poisoned.
		logger.Debug().Msg("context done after response, closing connection")
		_ = c.close()
	}
	if err != nil {
		return protocol.Packet{}, c.fail(ctx, id, err)
	}
	if req.Marker != nil {
		// The server may echo the marker more than once.
		c.correlator.Retire(req.Marker.ID)
	}

	logger.Trace().Int("bytes", len(resp.Payload)).Msg("response delivered")
	return resp, nil
}

func (c *Connection) exchange(req Request, term Terminator, logger zerolog.Logger) (protocol.Packet, error) {
	if err := c.writeRequest(req); err != nil {
		return protocol.Packet{}, err
	}
	logger.Trace().Int("bytes", len(req.Packet.Payload)).Msg("request written")
	return c.await(req, term, logger)
}

// writeRequest encodes the request (and marker) and flushes them in order.
func (c *Connection) writeRequest(req Request) error {
	if err := c.setWriteDeadline(deadlineAfter(c.writeTimeout)); err != nil {
		return &TransportError{Op: "set write deadline", Err: err}
	}

	if err := protocol.WritePacket(c.writer, req.Packet); err != nil {
		return &TransportError{Op: "write request", Err: err}
	}
	sent := uint64(1)
	if req.Marker != nil {
		if err := protocol.WritePacket(c.writer, *req.Marker); err != nil {
			return &TransportError{Op: "write marker", Err: err}
		}
		sent++
	}
	if err := c.writer.Flush(); err != nil {
		return &TransportError{Op: "flush request", Err: err}
	}
	c.framesSent.Add(sent)
	return nil
}

// await reads frames until the awaited response is complete.
func (c *Connection) await(req Request, term Terminator, logger zerolog.Logger) (protocol.Packet, error) {
	id := req.Packet.ID
	grace := term.Grace()

	for {
		if grace > 0 && c.correlator.Fragments(id) > 0 {
			idle, err := c.idle(grace)
			if err != nil {
				return protocol.Packet{}, err
			}
			if idle {
				logger.Trace().Dur("grace", grace).Msg("no further fragments within grace window")
				return c.correlator.Deliver(id)
			}
		}

		frame, err := c.readFrame()
		if err != nil {
			return protocol.Packet{}, err
		}

		switch {
		case frame.ID == protocol.AuthFailedID:
			return protocol.Packet{}, &AuthError{Err: ErrAuthDenied}

		case frame.ID == id:
			switch term.Classify(req.Packet, frame) {
			case Skip:
				logger.Trace().Str("frame_type", frame.Type.String()).Msg("skipping frame")
			case Continue:
				if err := c.correlator.Append(frame); err != nil {
					return protocol.Packet{}, err
				}
				logger.Trace().Int("bytes", len(frame.Payload)).Msg("fragment buffered")
			case Complete:
				if err := c.correlator.Append(frame); err != nil {
					return protocol.Packet{}, err
				}
				return c.correlator.Deliver(id)
			}

		case req.Marker != nil && frame.ID == req.Marker.ID:
			logger.Trace().Int32("marker_id", frame.ID).Msg("marker echoed")
			return c.correlator.Deliver(id)

		default:
			c.drop(frame)
		}
	}
}

// drop discards a frame nobody is waiting for.
func (c *Connection) drop(frame protocol.Packet) {
	c.dropped.Add(1)
	event := c.logger.Warn()
	msg := "dropping unsolicited frame"
	if c.correlator.Retired(frame.ID) {
		event = c.logger.Debug()
		msg = "dropping stale frame"
	}
	event.
		Int32("frame_id", frame.ID).
		Str("frame_type", frame.Type.String()).
		Int("bytes", len(frame.Payload)).
		Msg(msg)
}

// readFrame reads one frame with the configured read timeout.
func (c *Connection) readFrame() (protocol.Packet, error) {
	if err := c.setReadDeadline(deadlineAfter(c.readTimeout)); err != nil {
		return protocol.Packet{}, &TransportError{Op: "set read deadline", Err: err}
	}

	// Short reads are left to ReadPacket, which reports them as truncation.
	if length, err := protocol.PeekLength(c.reader); err == nil {
		if err := protocol.CheckFrameLimit(length, c.maxFrameLength); err != nil {
			return protocol.Packet{}, err
		}
	}

	frame, err := protocol.ReadPacket(c.reader)
	if err != nil {
		if protocol.IsFramingError(err) {
			return protocol.Packet{}, err
		}
		return protocol.Packet{}, &TransportError{Op: "read response", Err: err}
	}

	c.framesReceived.Add(1)
	c.logger.Trace().
		Int32("frame_id", frame.ID).
		Str("frame_type", frame.Type.String()).
		Int("bytes", len(frame.Payload)).
		Msg("frame received")
	return frame, nil
}

// idle reports whether no new frame begins within the grace window.
// Without deadline support it can only check for already buffered bytes.
func (c *Connection) idle(grace time.Duration) (bool, error) {
	if c.reader.Buffered() > 0 {
		return false, nil
	}
	if c.deadlines == nil {
		return true, nil
	}

	if err := c.setReadDeadline(time.Now().Add(grace)); err != nil {
		return false, &TransportError{Op: "set read deadline", Err: err}
	}
	_, err := c.reader.Peek(1)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) && !c.isInterrupted() {
		return true, nil
	}
	return false, &TransportError{Op: "read response", Err: err}
}

// fail closes the connection after a failed exchange, except for auth
// denials which leave closing to the session.
func (c *Connection) fail(ctx context.Context, id int32, err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		c.correlator.Discard(id)
		return err
	}

	if c.State() == StateClosed {
		// Closed underneath us by Close.
		return ErrConnectionClosed
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}

	c.logger.Debug().Err(err).Int32("request_id", id).Msg("exchange failed, closing connection")
	_ = c.close()
	return err
}

// interrupt unblocks pending I/O. It runs when an exchange's context is done.
func (c *Connection) interrupt() {
	c.dmu.Lock()
	defer c.dmu.Unlock()

	c.interrupted = true
	if c.deadlines != nil {
		_ = c.deadlines.SetReadDeadline(aLongTimeAgo)
		_ = c.deadlines.SetWriteDeadline(aLongTimeAgo)
		return
	}
	if closer, ok := c.transport.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (c *Connection) isInterrupted() bool {
	c.dmu.Lock()
	defer c.dmu.Unlock()
	return c.interrupted
}

func (c *Connection) setReadDeadline(t time.Time) error {
	if c.deadlines == nil {
		return nil
	}
	c.dmu.Lock()
	defer c.dmu.Unlock()
	if c.interrupted {
		t = aLongTimeAgo
	}
	return c.deadlines.SetReadDeadline(t)
}

func (c *Connection) setWriteDeadline(t time.Time) error {
	if c.deadlines == nil {
		return nil
	}
	c.dmu.Lock()
	defer c.dmu.Unlock()
	if c.interrupted {
		t = aLongTimeAgo
	}
	return c.deadlines.SetWriteDeadline(t)
}

// Close closes the connection and the underlying transport. Every pending
// response fails and later operations return ErrConnectionClosed.
func (c *Connection) Close() error {
	return c.close()
}

func (c *Connection) close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))

		if ids := c.correlator.FailAll(); len(ids) > 0 {
			c.logger.Debug().Ints32("request_ids", ids).Msg("pending responses failed")
		}

		if closer, ok := c.transport.(io.Closer); ok {
			c.closeErr = closer.Close()
		}
		c.logger.Debug().Msg("connection closed")
	})
	return c.closeErr
}

func deadlineAfter(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}
