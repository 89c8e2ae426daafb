package messaging

import (
	"errors"
	"time"
)

var (
	// ErrAlreadySubscribed is returned when an identity is already registered with the broker.
	ErrAlreadySubscribed = errors.New("messaging: identity already subscribed")
	// ErrNotSubscribed is returned when an identity is unknown to the broker.
	ErrNotSubscribed = errors.New("messaging: identity not subscribed")
	// ErrRecipientFull is returned when a recipient's inbox has no room left.
	ErrRecipientFull = errors.New("messaging: recipient inbox full")
)

// Message is one frame routed between a client identity and a simulator peer.
type Message struct {
	From      string    // identity of the sender
	To        []string  // recipient identities (empty means broadcast)
	Content   []byte    // encoded envelope
	Timestamp time.Time // when the message was published
}

// Broker routes frames between registered identities.
type Broker interface {
	// Publish sends a message to the specified recipients
	Publish(msg Message) error
	// Subscribe registers an identity to receive messages
	Subscribe(id string, ch chan<- Message) error
	// Unsubscribe removes an identity's subscription
	Unsubscribe(id string) error
}
