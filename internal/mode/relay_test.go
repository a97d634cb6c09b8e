package mode

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.wardproxy.dev/ward/internal/actor"
	"go.wardproxy.dev/ward/internal/conn"
	"go.wardproxy.dev/ward/internal/wire"
)

func newTestPair(t *testing.T) (*actor.Pair, net.Conn, net.Conn, net.Conn, net.Conn) {
	t.Helper()
	clientFar, clientNear := net.Pipe()
	serverFar, serverNear := net.Pipe()

	clientConn := conn.New(clientNear, uuid.New())
	serverConn := conn.New(serverNear, uuid.New())
	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
	})

	return actor.NewPair("test", clientConn, serverConn), clientFar, clientNear, serverFar, serverNear
}

func TestPassthroughHandler_RelaysClientToServer(t *testing.T) {
	p, clientFar, _, serverFar, _ := newTestPair(t)
	defer clientFar.Close()
	defer serverFar.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := PassthroughHandler{}
	go func() { _ = h.ClientLoop(ctx, p) }()
	go func() { _ = h.ServerLoop(ctx, p) }()

	enc := wire.NewEncoder(clientFar)
	require.NoError(t, enc.WritePacket(wire.Packet{ID: 7, Data: []byte("hello")}))

	dec := wire.NewDecoder(bufio.NewReader(serverFar))

	done := make(chan wire.Packet, 1)
	go func() {
		pkt, err := dec.ReadPacket()
		if err == nil {
			done <- pkt
		}
	}()

	select {
	case pkt := <-done:
		assert.Equal(t, int32(7), pkt.ID)
		assert.Equal(t, []byte("hello"), pkt.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("packet never reached the server side")
	}
}
