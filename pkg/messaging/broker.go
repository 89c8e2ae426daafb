package messaging

import (
	"fmt"
	"sync"
	"time"
)

// SimpleBroker implements the Broker interface in process.
// subscribers maps identities to the channels their frames are delivered on.
type SimpleBroker struct {
	subscribers map[string]chan<- Message
	mu          sync.RWMutex
}

// NewBroker creates a new message broker
func NewBroker() *SimpleBroker {
	return &SimpleBroker{
		subscribers: make(map[string]chan<- Message),
	}
}

// Publish delivers msg to every recipient in msg.To, or to every subscriber except
// the sender when To is empty. A directed message to an unknown identity fails.
func (b *SimpleBroker) Publish(msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	recipients := msg.To
	if len(recipients) == 0 {
		for id := range b.subscribers {
			if id != msg.From { // Don't send to self
				recipients = append(recipients, id)
			}
		}
	}

	for _, recipientID := range recipients {
		ch, ok := b.subscribers[recipientID]
		if !ok {
			if len(msg.To) == 0 {
				continue
			}
			return fmt.Errorf("%w: %s", ErrNotSubscribed, recipientID)
		}

		// Non-blocking send
		select {
		case ch <- msg:
		default:
			return fmt.Errorf("%w: %s", ErrRecipientFull, recipientID)
		}
	}

	return nil
}

// Subscribe registers an identity to receive messages
func (b *SimpleBroker) Subscribe(id string, ch chan<- Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, id)
	}

	b.subscribers[id] = ch
	return nil
}

// Unsubscribe removes an identity's subscription
func (b *SimpleBroker) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, id)
	}

	delete(b.subscribers, id)
	return nil
}

// Subscribed reports whether id is currently registered.
func (b *SimpleBroker) Subscribed(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.subscribers[id]
	return ok
}

// Reset drops every subscription. Pending inboxes are not closed.
func (b *SimpleBroker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string]chan<- Message)
}
