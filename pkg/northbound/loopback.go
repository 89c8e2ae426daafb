package northbound

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/boristopalov/networkgym/pkg/messaging"
)

const loopbackInbox = 64

// LoopbackTransport connects clients to an in-process peer through a messaging broker.
// The peer is addressed by PeerID; replies are routed back by client identity.
type LoopbackTransport struct {
	Broker messaging.Broker
	PeerID string
}

// Connect registers the endpoint identity with the broker. An identity that is
// already active is refused with ErrConnection.
func (t LoopbackTransport) Connect(ctx context.Context, ep Endpoint) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if ep.Identity == "" {
		return nil, fmt.Errorf("%w: empty client identity", ErrConnection)
	}
	inbox := make(chan messaging.Message, loopbackInbox)
	if err := t.Broker.Subscribe(ep.Identity, inbox); err != nil {
		if errors.Is(err, messaging.ErrAlreadySubscribed) {
			return nil, fmt.Errorf("%w: client %s is already active", ErrConnection, ep.Identity)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return NewSession(ep, &loopbackConn{
		broker:   t.Broker,
		peer:     t.PeerID,
		identity: ep.Identity,
		inbox:    inbox,
	}), nil
}

type loopbackConn struct {
	broker   messaging.Broker
	peer     string
	identity string
	inbox    chan messaging.Message
	once     sync.Once
}

func (c *loopbackConn) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	return c.broker.Publish(messaging.Message{
		From:    c.identity,
		To:      []string{c.peer},
		Content: buf,
	})
}

func (c *loopbackConn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.inbox:
		return msg.Content, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *loopbackConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.broker.Unsubscribe(c.identity)
	})
	return err
}
