package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-zeromq/zmq4"
	"github.com/go-zeromq/zmq4/security/plain"

	"github.com/boristopalov/networkgym/pkg/messaging"
	"github.com/boristopalov/networkgym/pkg/northbound"
)

const hubInbox = 256

// HubPeer answers clients of an in-process broker.
type HubPeer struct {
	broker messaging.Broker
	id     string
	h      Handler
	logger *slog.Logger
	inbox  chan messaging.Message
}

// NewHubPeer subscribes id on the broker. Clients can connect as soon as it returns.
func NewHubPeer(broker messaging.Broker, id string, h Handler, logger *slog.Logger) (*HubPeer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &HubPeer{
		broker: broker,
		id:     id,
		h:      h,
		logger: logger,
		inbox:  make(chan messaging.Message, hubInbox),
	}
	if err := broker.Subscribe(id, p.inbox); err != nil {
		return nil, fmt.Errorf("simulator: subscribe %s: %w", id, err)
	}
	return p, nil
}

// ID is the broker identity clients address.
func (p *HubPeer) ID() string {
	return p.id
}

// Serve answers every message sent to the peer until ctx is done, then unsubscribes.
// Replies are addressed to the sender.
func (p *HubPeer) Serve(ctx context.Context) error {
	defer func() { _ = p.broker.Unsubscribe(p.id) }()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-p.inbox:
			for _, reply := range p.h.Handle(msg.From, msg.Content) {
				err := p.broker.Publish(messaging.Message{From: p.id, To: []string{msg.From}, Content: reply})
				if err != nil {
					// The client may have gone away mid-timestep.
					p.logger.Warn("drop reply", "client", msg.From, "error", err)
					break
				}
			}
		}
	}
}

// ServeLoopback answers clients of a fresh in-process broker until ctx is done and
// returns the transport they connect with. done is closed after serving stops and
// every remaining client registration has been dropped.
func ServeLoopback(ctx context.Context, h Handler, logger *slog.Logger) (northbound.LoopbackTransport, <-chan struct{}, error) {
	broker := messaging.NewBroker()
	peer, err := NewHubPeer(broker, "simulator", h, logger)
	if err != nil {
		return northbound.LoopbackTransport{}, nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = peer.Serve(ctx)
		broker.Reset()
	}()
	return northbound.LoopbackTransport{Broker: broker, PeerID: peer.ID()}, done, nil
}

// ZMQConfig configures the ROUTER frontend.
type ZMQConfig struct {
	// Addr is the listen endpoint, e.g. tcp://*:8088.
	Addr string
	// Username and Password enable PLAIN authentication when Username is set.
	Username string
	Password string
}

// ServeZMQ answers clients over a ROUTER socket until ctx is done. ready, when not
// nil, is closed once the socket listens.
func ServeZMQ(ctx context.Context, cfg ZMQConfig, h Handler, logger *slog.Logger, ready chan<- struct{}) error {
	if logger == nil {
		logger = slog.Default()
	}
	var opts []zmq4.Option
	if cfg.Username != "" {
		opts = append(opts, zmq4.WithSecurity(plain.Security(cfg.Username, cfg.Password)))
	}
	router := zmq4.NewRouter(ctx, opts...)
	defer router.Close()

	if err := router.Listen(cfg.Addr); err != nil {
		return fmt.Errorf("simulator: listen %s: %w", cfg.Addr, err)
	}
	logger.Info("simulator listening", "addr", cfg.Addr)
	if ready != nil {
		close(ready)
	}

	for {
		msg, err := router.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("simulator: recv: %w", err)
		}
		if len(msg.Frames) < 2 {
			logger.Warn("drop frame without routing id", "frames", len(msg.Frames))
			continue
		}
		identity := msg.Frames[0]
		for _, reply := range h.Handle(string(identity), msg.Frames[len(msg.Frames)-1]) {
			if err := router.Send(zmq4.NewMsgFrom(identity, reply)); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logger.Warn("drop reply", "client", string(identity), "error", err)
				break
			}
		}
	}
}
