package e2e

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/Mmx233/QRcon/protocol"
)

// rconServer is a loopback RCON server. It splits responses longer than
// protocol.MaxPayload into fragments and, like Source servers, sends an
// empty response frame before the auth reply and mirrors empty response
// frames twice.
type rconServer struct {
	t        *testing.T
	ln       net.Listener
	password string
	handler  func(command string) string

	// onCommand, when set, may take over the connection. Returning true
	// stops the default handling of that connection.
	onCommand func(conn net.Conn, req protocol.Packet) bool

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns []net.Conn
}

func startServer(t *testing.T, password string, handler func(string) string) *rconServer {
	t.Helper()
	s := newServer(t, password, handler)
	s.start()
	return s
}

// newServer binds a listener. Hooks may be set before start.
func newServer(t *testing.T, password string, handler func(string) string) *rconServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &rconServer{t: t, ln: ln, password: password, handler: handler}
	t.Cleanup(s.close)
	return s
}

func (s *rconServer) start() {
	s.wg.Add(1)
	go s.serve()
}

func (s *rconServer) Addr() string {
	return s.ln.Addr().String()
}

func (s *rconServer) close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *rconServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn)
		}()
	}
}

func (s *rconServer) handle(conn net.Conn) {
	r := bufio.NewReader(conn)
	authed := false

	for {
		req, err := protocol.ReadPacket(r)
		if err != nil {
			return
		}

		switch req.Type {
		case protocol.TypeLogin:
			// Source servers send an empty response frame ahead of the auth reply,
			// including when the password is wrong.
			_ = protocol.WritePacket(conn, protocol.Packet{ID: req.ID, Type: protocol.TypeMultiPacketResponse})
			if string(req.Payload) != s.password {
				_ = protocol.WritePacket(conn, protocol.Packet{ID: protocol.AuthFailedID, Type: protocol.TypeCommand})
				continue
			}
			authed = true
			_ = protocol.WritePacket(conn, protocol.Packet{ID: req.ID, Type: protocol.TypeCommand})

		case protocol.TypeMultiPacketResponse:
			// mirrored twice, the second time with a non-empty body
			_ = protocol.WritePacket(conn, protocol.Packet{ID: req.ID, Type: protocol.TypeMultiPacketResponse})
			_ = protocol.WritePacket(conn, protocol.Packet{ID: req.ID, Type: protocol.TypeMultiPacketResponse, Payload: []byte{1}})

		case protocol.TypeCommand:
			if !authed {
				_ = protocol.WritePacket(conn, protocol.Packet{ID: protocol.AuthFailedID, Type: protocol.TypeMultiPacketResponse})
				continue
			}
			if s.onCommand != nil && s.onCommand(conn, req) {
				return
			}
			for _, part := range split(s.handler(string(req.Payload)), protocol.MaxPayload) {
				if err := protocol.WritePacket(conn, protocol.Packet{ID: req.ID, Type: protocol.TypeMultiPacketResponse, Payload: []byte(part)}); err != nil {
					return
				}
			}
		}
	}
}

func split(s string, n int) []string {
	if len(s) <= n {
		return []string{s}
	}
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	return append(parts, s)
}

func longReply(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		b.WriteString("line ")
		b.WriteByte(byte('a' + i%26))
		b.WriteByte('\n')
	}
	return b.String()[:n]
}
