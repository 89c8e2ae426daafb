package environment

import "fmt"

// State is the lifecycle position of an Env.
type State int

const (
	Unconfigured State = iota
	SessionOpen
	EpisodeActive
	EpisodeTerminated
	EpisodeTruncated
	SessionClosed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case SessionOpen:
		return "session_open"
	case EpisodeActive:
		return "episode_active"
	case EpisodeTerminated:
		return "episode_terminated"
	case EpisodeTruncated:
		return "episode_truncated"
	case SessionClosed:
		return "session_closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// canReset reports whether a new episode may be opened from s.
func (s State) canReset() bool {
	return s == SessionOpen || s == EpisodeTerminated || s == EpisodeTruncated
}
