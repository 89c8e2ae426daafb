package northbound

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/networkgym/pkg/messaging"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  chan []byte
	sent    [][]byte
	sendErr error
	closes  int
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 8)}
}

func (c *fakeConn) Send(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeConn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func TestSessionRecvTimeout(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(Endpoint{Identity: "test-0", RecvTimeout: 20 * time.Millisecond}, conn)

	_, err := s.Recv(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.False(t, s.Usable())

	// A frame that lands after the timeout is never handed out.
	conn.frames <- []byte("late")
	_, err = s.Recv(context.Background())
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, s.Send(context.Background(), []byte("x")), ErrConnectionClosed)
	assert.Empty(t, conn.sent)
}

func TestSessionRecvCancelled(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(Endpoint{Identity: "test-0", RecvTimeout: time.Minute}, conn)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := s.Recv(ctx)
	require.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Usable())
}

func TestSessionSendAndRecv(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(Endpoint{Identity: "test-0"}, conn)
	assert.Equal(t, "test-0", s.Identity())

	require.NoError(t, s.Send(context.Background(), []byte("ping")))
	conn.frames <- []byte("pong")

	got, err := s.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pong", string(got))
	assert.Equal(t, [][]byte{[]byte("ping")}, conn.sent)
	assert.True(t, s.Usable())
}

func TestSessionSendError(t *testing.T) {
	conn := newFakeConn()
	conn.sendErr = errors.New("broken pipe")
	s := NewSession(Endpoint{Identity: "test-0"}, conn)

	err := s.Send(context.Background(), []byte("ping"))
	assert.ErrorIs(t, err, ErrSend)
}

func TestSessionCloseIdempotent(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(Endpoint{Identity: "test-0"}, conn)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, conn.closes)

	_, err := s.Recv(context.Background())
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestLoopbackTransport(t *testing.T) {
	broker := messaging.NewBroker()
	peer := make(chan messaging.Message, 4)
	require.NoError(t, broker.Subscribe("sim", peer))
	tr := LoopbackTransport{Broker: broker, PeerID: "sim"}
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s, err := tr.Connect(ctx, Endpoint{Identity: "test-0"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		require.NoError(t, s.Send(ctx, []byte("hello")))
		msg := <-peer
		assert.Equal(t, "test-0", msg.From)
		assert.Equal(t, "hello", string(msg.Content))

		require.NoError(t, broker.Publish(messaging.Message{From: "sim", To: []string{"test-0"}, Content: []byte("world")}))
		got, err := s.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, "world", string(got))
	})

	t.Run("duplicate identity refused", func(t *testing.T) {
		s, err := tr.Connect(ctx, Endpoint{Identity: "test-1"})
		require.NoError(t, err)

		_, err = tr.Connect(ctx, Endpoint{Identity: "test-1"})
		assert.ErrorIs(t, err, ErrConnection)

		require.NoError(t, s.Close())
		s, err = tr.Connect(ctx, Endpoint{Identity: "test-1"})
		require.NoError(t, err, "identity is free again after close")
		require.NoError(t, s.Close())
	})

	t.Run("unknown peer", func(t *testing.T) {
		s, err := LoopbackTransport{Broker: broker, PeerID: "nobody"}.Connect(ctx, Endpoint{Identity: "test-2"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		assert.ErrorIs(t, s.Send(ctx, []byte("x")), ErrSend)
	})

	t.Run("empty identity", func(t *testing.T) {
		_, err := tr.Connect(ctx, Endpoint{})
		assert.ErrorIs(t, err, ErrConnection)
	})
}
