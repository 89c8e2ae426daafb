package northbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultRecvTimeout bounds a single Recv when the endpoint sets none.
const DefaultRecvTimeout = 60 * time.Second

// Endpoint identifies a remote server and the identity this client registers with.
type Endpoint struct {
	Host     string
	Port     int
	Identity string
	// Username and Password are sent as PLAIN credentials when Username is set.
	Username    string
	Password    string
	RecvTimeout time.Duration
}

// Address returns the tcp endpoint string.
func (e Endpoint) Address() string {
	return fmt.Sprintf("tcp://%s:%d", e.Host, e.Port)
}

// Conn is a raw framed link. Recv must return when ctx is done.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport opens sessions to a remote endpoint.
type Transport interface {
	Connect(ctx context.Context, ep Endpoint) (*Session, error)
}

// Session is one connection lifetime. It is not safe for concurrent Send/Recv; the
// protocol is strictly request/reply.
type Session struct {
	endpoint Endpoint
	conn     Conn
	timeout  time.Duration

	mu     sync.Mutex
	broken error
	closed bool
}

// NewSession wraps an established Conn. Transports call this after a successful dial.
func NewSession(ep Endpoint, conn Conn) *Session {
	timeout := ep.RecvTimeout
	if timeout <= 0 {
		timeout = DefaultRecvTimeout
	}
	return &Session{endpoint: ep, conn: conn, timeout: timeout}
}

// Identity returns the client identity registered with the remote endpoint.
func (s *Session) Identity() string {
	return s.endpoint.Identity
}

// Endpoint returns the endpoint this session was opened against.
func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

// Send transmits one encoded frame.
func (s *Session) Send(ctx context.Context, frame []byte) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.conn.Send(ctx, frame); err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			s.markBroken(err)
			return err
		}
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	return nil
}

// Recv blocks until one frame arrives, the receive budget elapses (ErrTimeout) or ctx
// is done. A timeout or cancellation leaves the session unusable: later calls return
// ErrConnectionClosed and a frame that arrives late is never handed out.
func (s *Session) Recv(ctx context.Context) ([]byte, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	recvCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	frame, err := s.conn.Recv(recvCtx)
	if err == nil {
		return frame, nil
	}
	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: recv cancelled: %w", ErrConnectionClosed, ctx.Err())
	case errors.Is(recvCtx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
	case !errors.Is(err, ErrConnectionClosed):
		err = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	s.markBroken(err)
	return nil, err
}

// Close releases the connection. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

// Usable reports whether the session can still exchange frames.
func (s *Session) Usable() bool {
	return s.usable() == nil
}

func (s *Session) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: session closed", ErrConnectionClosed)
	}
	if s.broken != nil {
		return fmt.Errorf("%w: session unusable after earlier failure", ErrConnectionClosed)
	}
	return nil
}

func (s *Session) markBroken(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken == nil {
		s.broken = err
	}
}
