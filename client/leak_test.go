package client

import (
	"context"
	"testing"
	"time"

	"github.com/Mmx233/QRcon/protocol"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain ensures no goroutine leaks across all tests in this package
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestConnection_FailedExchange_NoGoroutineLeak verifies that the context
// hook installed for each exchange does not outlive it.
func TestConnection_FailedExchange_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	for i := 0; i < 10; i++ {
		transport := &recordingTransport{}
		conn := NewConnection(transport, WithTimeouts(10*time.Millisecond, 10*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		_, _ = conn.SendAndWait(ctx, Request{Packet: protocol.NewCommand(int32(i), "list")})
		cancel()
		_ = conn.Close()
	}
}

// TestSession_CreateClose_NoLeak tests rapid creation and closure of
// sessions over real sockets.
func TestSession_CreateClose_NoLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	for i := 0; i < 20; i++ {
		clientSide, serverSide := tcpPair(t)
		session := NewSession(NewConnection(clientSide))
		require.NoError(t, session.Close())
		_ = serverSide.Close()
	}
}
