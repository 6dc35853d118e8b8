package playback

import "slices"

// Status is the playback state machine's state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusPlaying
	StatusPaused
	StatusBuffering
	StatusBlocked
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusBuffering:
		return "buffering"
	case StatusBlocked:
		return "blocked"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// legalTransitions is the full edge set of the state machine. An edge not
// listed here is refused rather than applied, so the status can never
// reach an undefined configuration. Self-transitions are always legal.
var legalTransitions = map[Status][]Status{
	StatusIdle:      {StatusLoading, StatusPaused, StatusBlocked, StatusError},
	StatusLoading:   {StatusPaused, StatusPlaying, StatusBuffering, StatusBlocked, StatusError, StatusIdle},
	StatusPlaying:   {StatusPaused, StatusBuffering, StatusLoading, StatusBlocked, StatusError, StatusIdle},
	StatusPaused:    {StatusPlaying, StatusLoading, StatusBuffering, StatusBlocked, StatusError, StatusIdle},
	StatusBuffering: {StatusPlaying, StatusPaused, StatusLoading, StatusBlocked, StatusError, StatusIdle},
	StatusBlocked:   {StatusLoading, StatusPaused, StatusPlaying, StatusError, StatusIdle},
	StatusError:     {StatusLoading, StatusPaused, StatusBlocked, StatusIdle},
}

// CanTransitionTo reports whether moving from s to target is a legal edge.
func (s Status) CanTransitionTo(target Status) bool {
	if s == target {
		return true
	}
	return slices.Contains(legalTransitions[s], target)
}

// isPlayingStatus: playing and buffering both count as "playing" for the
// derived UI flag.
func isPlayingStatus(s Status) bool {
	return s == StatusPlaying || s == StatusBuffering
}

// isLoadingStatus: loading and buffering both count as "loading".
func isLoadingStatus(s Status) bool {
	return s == StatusLoading || s == StatusBuffering
}
