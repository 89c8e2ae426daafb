package northbound

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/go-zeromq/zmq4/security/plain"
)

const zmqRecvBuffer = 64

// ZMQTransport connects to a NetworkGym server with a DEALER socket whose identity is
// the client identity.
type ZMQTransport struct{}

// Connect dials the endpoint. A dial failure is reported as ErrConnection.
func (ZMQTransport) Connect(ctx context.Context, ep Endpoint) (*Session, error) {
	if ep.Identity == "" {
		return nil, fmt.Errorf("%w: empty client identity", ErrConnection)
	}
	sockCtx, cancel := context.WithCancel(context.Background())
	opts := []zmq4.Option{zmq4.WithID(zmq4.SocketIdentity(ep.Identity))}
	if ep.Username != "" {
		opts = append(opts, zmq4.WithSecurity(plain.Security(ep.Username, ep.Password)))
	}
	sock := zmq4.NewDealer(sockCtx, opts...)

	dialed := make(chan error, 1)
	go func() { dialed <- sock.Dial(ep.Address()) }()
	select {
	case err := <-dialed:
		if err != nil {
			cancel()
			_ = sock.Close()
			return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, ep.Address(), err)
		}
	case <-ctx.Done():
		cancel()
		_ = sock.Close()
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, ep.Address(), ctx.Err())
	}

	conn := &zmqConn{
		sock:   sock,
		cancel: cancel,
		frames: make(chan []byte, zmqRecvBuffer),
		done:   make(chan struct{}),
	}
	go conn.readLoop()
	return NewSession(ep, conn), nil
}

type zmqConn struct {
	sock   zmq4.Socket
	cancel context.CancelFunc
	frames chan []byte
	done   chan struct{}

	mu      sync.Mutex
	readErr error
	once    sync.Once
}

func (c *zmqConn) readLoop() {
	defer close(c.frames)
	for {
		msg, err := c.sock.Recv()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		if len(msg.Frames) == 0 {
			continue
		}
		// ROUTER peers may prepend routing frames; the payload is always last.
		frame := msg.Frames[len(msg.Frames)-1]
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

func (c *zmqConn) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	return c.sock.Send(zmq4.NewMsg(frame))
}

func (c *zmqConn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-c.frames:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *zmqConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.sock.Close()
		c.cancel()
	})
	return err
}
