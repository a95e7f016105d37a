package profile

import (
	"bufio"
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/Mmx233/QRcon/client"
	"github.com/Mmx233/QRcon/config"
	"github.com/Mmx233/QRcon/history"
	"github.com/Mmx233/QRcon/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// discardTransport accepts writes and reports end of stream on reads.
type discardTransport struct{}

func (discardTransport) Read([]byte) (int, error)    { return 0, io.EOF }
func (discardTransport) Write(p []byte) (int, error) { return len(p), nil }

func TestRunner_RecordsFailures(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "h.db"), 10)
	require.NoError(t, err)

	session := client.NewSession(client.NewConnection(discardTransport{}))
	runner := NewRunner(session, config.Server{Address: "127.0.0.1:25575"}, store)

	result, err := runner.Run(context.Background(), "list")
	assert.ErrorIs(t, err, client.ErrNotAuthenticated)
	assert.Equal(t, "list", result.Command)
	assert.NotEmpty(t, result.Error)

	entries, err := runner.History().Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "list", entries[0].Command)
	assert.Equal(t, session.ID(), entries[0].SessionID)
	assert.Equal(t, "127.0.0.1:25575", entries[0].Server)
	assert.Equal(t, result.Error, entries[0].Error)

	require.NoError(t, runner.Close())
	assert.Equal(t, client.StateClosed, session.State())
}

func TestRunner_WithoutHistory(t *testing.T) {
	session := client.NewSession(client.NewConnection(discardTransport{}))
	runner := NewRunner(session, config.Server{Address: "a:1"}, nil)

	_, err := runner.Run(context.Background(), "list")
	assert.Error(t, err)
	assert.Nil(t, runner.History())
	assert.NoError(t, runner.Close())
}

// serveOne answers a single connection: any login succeeds, "fail" revokes
// authentication and every other command is echoed.
func serveOne(ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		req, err := protocol.ReadPacket(r)
		if err != nil {
			return
		}
		reply := protocol.Packet{ID: req.ID, Type: protocol.TypeMultiPacketResponse, Payload: req.Payload}
		switch {
		case req.Type == protocol.TypeLogin:
			reply = protocol.Packet{ID: req.ID, Type: protocol.TypeCommand}
		case req.Body() == "fail":
			reply = protocol.Packet{ID: protocol.AuthFailedID, Type: protocol.TypeCommand}
		}
		if err := protocol.WritePacket(conn, reply); err != nil {
			return
		}
	}
}

func TestRunner_RunAllStopsAtFirstFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		serveOne(ln)
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
	})

	c, err := client.New(&config.Client{Servers: []config.Server{{Name: "local", Address: ln.Addr().String()}}})
	require.NoError(t, err)
	server := c.Config().Servers[0]
	session, err := c.Dial(context.Background(), server, "pw")
	require.NoError(t, err)

	store, err := history.Open(":memory:", 10)
	require.NoError(t, err)
	runner := NewRunner(session, server, store)
	defer runner.Close()

	results, err := runner.RunAll(context.Background(), []string{"list", "fail", "seed"})
	assert.ErrorIs(t, err, client.ErrAuthDenied)
	require.Len(t, results, 2)
	assert.Equal(t, Result{Command: "list", Response: "list"}, results[0])
	assert.Equal(t, "fail", results[1].Command)
	assert.NotEmpty(t, results[1].Error)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
