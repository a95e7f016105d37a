package client

import (
	"bufio"
	"io"
	"net"
	"testing"

	"github.com/Mmx233/QRcon/protocol"
	"github.com/stretchr/testify/require"
)

// fakePeer is the server end of a loopback TCP connection.
type fakePeer struct {
	conn net.Conn
	r    *bufio.Reader
}

// tcpPair returns both ends of a loopback TCP connection. Unlike net.Pipe
// the kernel buffers writes, so a peer may send ahead of the client.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		defer close(accepted)
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	clientSide, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	serverSide, ok := <-accepted
	require.True(t, ok, "accept failed")
	return clientSide, serverSide
}

func newPipe(t *testing.T, opts ...ConnectionOption) (*Connection, *fakePeer) {
	t.Helper()
	clientSide, serverSide := tcpPair(t)
	conn := NewConnection(clientSide, opts...)
	peer := &fakePeer{conn: serverSide, r: bufio.NewReader(serverSide)}
	t.Cleanup(func() {
		_ = conn.Close()
		_ = serverSide.Close()
	})
	return conn, peer
}

// serve runs script in the background. The peer is closed and the script
// awaited when the test finishes.
func (p *fakePeer) serve(t *testing.T, script func(p *fakePeer)) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		script(p)
	}()
	t.Cleanup(func() {
		_ = p.conn.Close()
		<-done
	})
	return done
}

func (p *fakePeer) read() (protocol.Packet, error) {
	return protocol.ReadPacket(p.r)
}

func (p *fakePeer) write(pkts ...protocol.Packet) error {
	for _, pkt := range pkts {
		if err := protocol.WritePacket(p.conn, pkt); err != nil {
			return err
		}
	}
	return nil
}

func response(id int32, payload string) protocol.Packet {
	return protocol.Packet{ID: id, Type: protocol.TypeMultiPacketResponse, Payload: []byte(payload)}
}

func authResponse(id int32) protocol.Packet {
	return protocol.Packet{ID: id, Type: protocol.TypeCommand}
}

// recordingTransport counts writes and never yields data.
type recordingTransport struct {
	writes int
	bytes  int
}

func (r *recordingTransport) Read([]byte) (int, error) {
	return 0, io.EOF
}

func (r *recordingTransport) Write(p []byte) (int, error) {
	r.writes++
	r.bytes += len(p)
	return len(p), nil
}
