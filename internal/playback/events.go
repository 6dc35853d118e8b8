package playback

import (
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
)

// StateChange is emitted on every accepted state transition.
type StateChange struct {
	Previous State
	Current  State
}

// TrackChange is emitted when playback moves to a different track.
//
// Emitted by:
//   - PlayQueue/PlayAtIndex: when the chosen track differs from the current one
//   - Next/Previous: on committed navigation
//   - automatic advance when a track ends (including crossfade handoff)
//
// NOT emitted by:
//   - Pause/Play on the same track
//   - queue edits that leave the current track in place
//
// Subscribers should hang track-scoped side effects (media session
// metadata, scrobbling, artwork) off this event, not off StateChange.
type TrackChange struct {
	Previous      *queue.Track
	Current       *queue.Track
	PreviousIndex int
	Index         int
}

// QueueChange is emitted when the queue contents or position change.
type QueueChange struct {
	Tracks []queue.Track
	Index  int
}

// ModeChange is emitted when repeat or shuffle mode changes.
type ModeChange struct {
	RepeatMode queue.RepeatMode
	Shuffle    bool
}

// PositionChange is emitted on seeks and periodic progress updates.
type PositionChange struct {
	Position float64
	Duration float64
}

// QualityChange is emitted when the requested or active quality changes.
type QualityChange struct {
	Requested quality.Tier
	Source    quality.Source
	Active    quality.Tier
}

// ErrorEvent is emitted when an operation fails in a way the user should
// know about.
type ErrorEvent struct {
	Operation string // e.g. "load", "play", "seek"
	TrackID   int64  // zero when not track-scoped
	Err       error
}
