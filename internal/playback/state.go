package playback

import (
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
)

// DefaultVolume is the volume used before any preference is stored.
const DefaultVolume = 0.8

// MaxCrossfadeSeconds bounds the configurable crossfade duration.
const MaxCrossfadeSeconds = 12.0

// State is the full observable playback state. Values are copied out to
// subscribers; nothing in here is shared mutable data.
type State struct {
	CurrentTrack *queue.Track
	Queue        []queue.Track
	QueueIndex   int

	Status    Status
	IsPlaying bool
	IsLoading bool

	CurrentTime     float64
	Duration        float64
	BufferedPercent float64

	Volume           float64
	Muted            bool
	CrossfadeSeconds float64

	Quality       quality.Tier
	QualitySource quality.Source
	ActiveQuality quality.Tier

	RepeatMode     queue.RepeatMode
	ShuffleEnabled bool

	SampleRate *int
	BitDepth   *int
	ReplayGain *float64

	NeedsGesture bool
	Error        string

	// Generation increments on every accepted state change so subscribers
	// can detect missed updates after a dropped send.
	Generation uint64
}

// InitialState returns the state before anything has been loaded or
// restored.
func InitialState() State {
	return State{
		QueueIndex:    -1,
		Status:        StatusIdle,
		Volume:        DefaultVolume,
		Quality:       quality.Lossless,
		QualitySource: quality.SourceAuto,
		ActiveQuality: quality.Lossless,
		RepeatMode:    queue.RepeatAll,
	}
}

// Action is a state mutation applied through Reduce.
type Action interface{ isAction() }

// SetQueueAction replaces the queue snapshot and index.
type SetQueueAction struct {
	Tracks []queue.Track
	Index  int
}

// SetTrackAction changes the current track. Track-scoped fields reset only
// when the track actually changes.
type SetTrackAction struct {
	Track *queue.Track
	Index int
}

// SetStatusAction requests a state machine transition. Illegal edges are
// refused and leave the state untouched.
type SetStatusAction struct{ Status Status }

// ProgressAction updates time, duration and buffered progress. Negative
// fields mean "leave unchanged".
type ProgressAction struct {
	CurrentTime float64
	Duration    float64
	Buffered    float64
}

// SetVolumeAction sets the volume level, clamped to [0, 1].
type SetVolumeAction struct{ Volume float64 }

// SetMutedAction sets the mute flag.
type SetMutedAction struct{ Muted bool }

// SetCrossfadeAction sets the crossfade duration, clamped to
// [0, MaxCrossfadeSeconds].
type SetCrossfadeAction struct{ Seconds float64 }

// SetQualityAction sets the requested quality and how it was chosen.
type SetQualityAction struct {
	Tier   quality.Tier
	Source quality.Source
}

// SetActiveStreamAction records what the engine is actually playing.
type SetActiveStreamAction struct {
	Tier       quality.Tier
	SampleRate *int
	BitDepth   *int
	ReplayGain *float64
}

// SetModesAction sets the repeat mode and shuffle flag together.
type SetModesAction struct {
	Repeat  queue.RepeatMode
	Shuffle bool
}

// SetErrorAction records a user-facing error message. Does not change
// status; pair with SetStatusAction when the machine should move to error.
type SetErrorAction struct{ Message string }

// SetNeedsGestureAction flags that playback is blocked pending an explicit
// user action.
type SetNeedsGestureAction struct{ Needs bool }

// BumpGenerationAction forces a generation increment with no other change.
type BumpGenerationAction struct{}

// ResetAction returns to the initial state while preserving user
// preferences (volume, mute, crossfade, quality, repeat, shuffle).
type ResetAction struct{}

func (SetQueueAction) isAction()        {}
func (SetTrackAction) isAction()        {}
func (SetStatusAction) isAction()       {}
func (ProgressAction) isAction()        {}
func (SetVolumeAction) isAction()       {}
func (SetMutedAction) isAction()        {}
func (SetCrossfadeAction) isAction()    {}
func (SetQualityAction) isAction()      {}
func (SetActiveStreamAction) isAction() {}
func (SetModesAction) isAction()        {}
func (SetErrorAction) isAction()        {}
func (SetNeedsGestureAction) isAction() {}
func (BumpGenerationAction) isAction()  {}
func (ResetAction) isAction()           {}

// Reduce applies an action and returns the next state. Pure: the input
// state is never mutated.
func Reduce(s State, action Action) State {
	next := s
	switch a := action.(type) {
	case SetQueueAction:
		next.Queue = a.Tracks
		next.QueueIndex = a.Index

	case SetTrackAction:
		sameTrack := queue.SameTrack(s.CurrentTrack, a.Track) && a.Track != nil
		next.CurrentTrack = a.Track
		next.QueueIndex = a.Index
		if !sameTrack {
			resetTrackScoped(&next)
		}
		if a.Track != nil && a.Track.Duration > 0 {
			next.Duration = a.Track.Duration.Seconds()
		}

	case SetStatusAction:
		if !s.Status.CanTransitionTo(a.Status) {
			return s
		}
		applyStatus(&next, a.Status)

	case ProgressAction:
		if a.CurrentTime >= 0 {
			next.CurrentTime = a.CurrentTime
		}
		if a.Duration >= 0 {
			next.Duration = a.Duration
		}
		if a.Buffered >= 0 {
			next.BufferedPercent = clamp(a.Buffered, 0, 100)
		}

	case SetVolumeAction:
		next.Volume = clamp(a.Volume, 0, 1)

	case SetMutedAction:
		next.Muted = a.Muted

	case SetCrossfadeAction:
		next.CrossfadeSeconds = clamp(a.Seconds, 0, MaxCrossfadeSeconds)

	case SetQualityAction:
		next.Quality = a.Tier
		next.QualitySource = a.Source

	case SetActiveStreamAction:
		next.ActiveQuality = a.Tier
		next.SampleRate = a.SampleRate
		next.BitDepth = a.BitDepth
		next.ReplayGain = a.ReplayGain

	case SetModesAction:
		next.RepeatMode = a.Repeat
		next.ShuffleEnabled = a.Shuffle

	case SetErrorAction:
		next.Error = a.Message

	case SetNeedsGestureAction:
		next.NeedsGesture = a.Needs

	case BumpGenerationAction:
		// Generation bumps below.

	case ResetAction:
		fresh := InitialState()
		fresh.Volume = s.Volume
		fresh.Muted = s.Muted
		fresh.CrossfadeSeconds = s.CrossfadeSeconds
		fresh.Quality = s.Quality
		fresh.QualitySource = s.QualitySource
		fresh.ActiveQuality = s.Quality
		fresh.RepeatMode = s.RepeatMode
		fresh.ShuffleEnabled = s.ShuffleEnabled
		fresh.Generation = s.Generation + 1
		return fresh
	}

	next.Generation = s.Generation + 1
	return next
}

func applyStatus(s *State, status Status) {
	s.Status = status
	s.IsPlaying = isPlayingStatus(status)
	s.IsLoading = isLoadingStatus(status)
	if status != StatusError {
		s.Error = ""
	}
	if status != StatusBlocked {
		s.NeedsGesture = false
	}
}

// resetTrackScoped clears everything tied to the outgoing track.
func resetTrackScoped(s *State) {
	s.CurrentTime = 0
	s.Duration = 0
	s.BufferedPercent = 0
	s.SampleRate = nil
	s.BitDepth = nil
	s.ReplayGain = nil
	s.Error = ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
