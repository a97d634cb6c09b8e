package actor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"go.wardproxy.dev/ward/internal/conn"
)

type echoHandler struct{}

func (echoHandler) ClientLoop(ctx context.Context, p *Pair) error {
	errCh := make(chan error, 1)
	go func() {
		for {
			if _, err := p.ClientConn.Read(); err != nil {
				errCh <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case msg := <-p.ToClient:
			if msg.Kind == MsgRaw {
				if err := p.ClientConn.WriteRaw(msg.Raw); err != nil {
					return err
				}
			}
		}
	}
}

func (echoHandler) ServerLoop(ctx context.Context, p *Pair) error {
	for {
		rv, err := p.ServerConn.Read()
		if err != nil {
			return err
		}
		if rv.Kind == conn.ReadRaw {
			select {
			case p.ToClient <- Msg{Kind: MsgRaw, Raw: rv.Raw}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func TestRun_TeardownClosesBothConnectionsOnEitherSideExit(t *testing.T) {
	clientFar, clientNear := net.Pipe()
	serverFar, serverNear := net.Pipe()
	defer clientFar.Close()
	defer serverFar.Close()

	clientConn := conn.New(clientNear, uuid.New())
	clientConn.EnableRawMode()
	serverConn := conn.New(serverNear, uuid.New())
	serverConn.EnableRawMode()

	p := NewPair("test", clientConn, serverConn)

	done := make(chan struct{})
	go func() {
		Run(context.Background(), p, echoHandler{})
		close(done)
	}()

	_, err := serverFar.Write([]byte("ping"))
	assert.NoError(t, err)

	buf := make([]byte, 4)
	_ = clientFar.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientFar.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	_ = clientFar.Close()
	_ = serverFar.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run never returned after both sides closed")
	}

	assert.True(t, p.ShuttingDown())
}
