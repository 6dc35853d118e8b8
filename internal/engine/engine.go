// Package engine abstracts the underlying audio playback element. The
// controller is written against the Engine interface; a beep-based
// implementation streams over HTTP and a mock implementation simulates the
// clock and event flow for tests and headless environments.
package engine

import "errors"

// Sentinel errors discriminated by the controller.
var (
	// ErrPlaybackNotAllowed mirrors an autoplay rejection: playback needs
	// an explicit user gesture first. Not a failure.
	ErrPlaybackNotAllowed = errors.New("playback not allowed without user gesture")
	// ErrUnsupportedSource is returned when an engine cannot play the
	// given source kind (e.g. DASH manifests on the direct-stream engine).
	ErrUnsupportedSource = errors.New("unsupported source")
	// ErrNoSource is returned when Play is called with nothing loaded.
	ErrNoSource = errors.New("no source loaded")
)

// EventType identifies an engine-level playback signal.
type EventType int

const (
	EventLoadStart EventType = iota
	EventCanPlay
	EventPlaying
	EventProgress
	EventTimeUpdate
	EventWaiting
	EventStalled
	EventEnded
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventLoadStart:
		return "loadstart"
	case EventCanPlay:
		return "canplay"
	case EventPlaying:
		return "playing"
	case EventProgress:
		return "progress"
	case EventTimeUpdate:
		return "timeupdate"
	case EventWaiting:
		return "waiting"
	case EventStalled:
		return "stalled"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is an asynchronous engine signal. Source carries the URL that was
// loaded when the event fired so consumers can reject events from a
// superseded load.
type Event struct {
	Type     EventType
	Source   string
	Time     float64 // current position, seconds
	Buffered float64 // buffered percent, 0-100
	Err      error
}

// Engine is a single audio playback element.
type Engine interface {
	// Load starts loading the URL asynchronously; progress is reported
	// through Events. Any previous source is dropped.
	Load(url string)
	// LoadManifest loads a manifest-based (DASH) source. Engines without
	// manifest support return ErrUnsupportedSource.
	LoadManifest(manifest, contentType string) error
	// Play starts or resumes playback. May return ErrPlaybackNotAllowed.
	Play() error
	Pause()
	// Stop halts playback and clears the source.
	Stop()
	// Seek moves to the given position in seconds, clamped to the track.
	Seek(seconds float64)

	SetVolume(level float64) // 0..1 linear
	Volume() float64
	SetMuted(muted bool)
	Muted() bool

	CurrentTime() float64
	Duration() float64
	BufferedPercent() float64
	Source() string

	// Unlock primes the audio pipeline with a brief silent, muted payload.
	// Best-effort; failures are ignored.
	Unlock()

	Events() <-chan Event
	Close()
}
