package northbound

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is returned when the endpoint is unreachable or refuses the session.
	ErrConnection = errors.New("northbound: connection failed")
	// ErrSend is returned when a frame cannot be written to the session.
	ErrSend = errors.New("northbound: send failed")
	// ErrTimeout is returned when no frame arrives within the receive budget.
	ErrTimeout = errors.New("northbound: receive timed out")
	// ErrConnectionClosed is returned once the peer closed the link or the session
	// was abandoned after a timeout or cancellation.
	ErrConnectionClosed = errors.New("northbound: connection closed")
	// ErrMalformedMessage is returned when a payload cannot be parsed into the
	// expected envelope. It is never retryable.
	ErrMalformedMessage = errors.New("northbound: malformed message")
)

// RemoteError carries an "env-error" reported by the server or simulator.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("northbound: remote error: %s", e.Message)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}
