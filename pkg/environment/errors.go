package environment

import "errors"

var (
	// ErrInvalidConfig is returned by New for a configuration that cannot open a session.
	ErrInvalidConfig = errors.New("environment: invalid config")
	// ErrSpaceMismatch means an adapter produced or declared a vector of the wrong size.
	ErrSpaceMismatch = errors.New("environment: observation does not match space")
	// ErrInvalidAction is returned by Step for an action outside the action space.
	// The env is left untouched.
	ErrInvalidAction = errors.New("environment: invalid action")
	// ErrEpisodeLimitExceeded is returned by Reset once every episode of the session
	// was played. It marks the normal end of a session.
	ErrEpisodeLimitExceeded = errors.New("environment: episode limit exceeded")
	// ErrStepFailed wraps any failure of a reset or step round trip. The session is
	// closed afterwards.
	ErrStepFailed = errors.New("environment: step failed")
	// ErrInvalidState is returned when Reset or Step is called out of order.
	ErrInvalidState = errors.New("environment: invalid state")
)

// IsEndOfSession reports whether err marks the planned end of a session rather than
// a failure.
func IsEndOfSession(err error) bool {
	return errors.Is(err, ErrEpisodeLimitExceeded)
}
