package engine

import "sync"

// Mock is a software-simulated engine: the clock only advances when the
// test drives it, and every event is emitted explicitly or by scripted
// Load/Play behavior. It is the seam that makes the controller testable
// without a real audio stack.
type Mock struct {
	mu sync.Mutex

	events chan Event

	source   string
	manifest string
	playing  bool
	current  float64
	duration float64
	buffered float64
	volume   float64
	muted    bool

	autoReady   bool
	failLoad    error
	blockPlay   bool
	manifestErr error

	loadCalls     []string
	manifestCalls []string
	playCalls     int
	unlockCalls   int
	seekCalls     []float64

	closed bool
}

// NewMock creates a mock engine. By default Load immediately reports
// canplay and Play succeeds.
func NewMock() *Mock {
	return &Mock{
		events:    make(chan Event, 64),
		volume:    1,
		autoReady: true,
	}
}

var _ Engine = (*Mock)(nil)

func (m *Mock) Load(url string) {
	m.mu.Lock()
	m.source = url
	m.manifest = ""
	m.current = 0
	m.buffered = 0
	m.playing = false
	m.loadCalls = append(m.loadCalls, url)
	failErr := m.failLoad
	m.failLoad = nil
	autoReady := m.autoReady
	m.mu.Unlock()

	m.emit(Event{Type: EventLoadStart, Source: url})
	if failErr != nil {
		m.emit(Event{Type: EventError, Source: url, Err: failErr})
		return
	}
	if autoReady {
		m.emit(Event{Type: EventCanPlay, Source: url})
	}
}

func (m *Mock) LoadManifest(manifest, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manifestErr != nil {
		err := m.manifestErr
		m.manifestErr = nil
		return err
	}
	m.manifestCalls = append(m.manifestCalls, manifest)
	m.manifest = manifest
	m.source = "manifest:" + contentType
	m.current = 0
	m.playing = false
	return nil
}

func (m *Mock) Play() error {
	m.mu.Lock()
	if m.source == "" {
		m.mu.Unlock()
		return ErrNoSource
	}
	m.playCalls++
	if m.blockPlay {
		m.blockPlay = false
		m.mu.Unlock()
		return ErrPlaybackNotAllowed
	}
	m.playing = true
	src := m.source
	m.mu.Unlock()

	m.emit(Event{Type: EventPlaying, Source: src})
	return nil
}

func (m *Mock) Pause() {
	m.mu.Lock()
	m.playing = false
	m.mu.Unlock()
}

func (m *Mock) Stop() {
	m.mu.Lock()
	m.playing = false
	m.source = ""
	m.manifest = ""
	m.current = 0
	m.buffered = 0
	m.mu.Unlock()
}

func (m *Mock) Seek(seconds float64) {
	m.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if m.duration > 0 && seconds > m.duration {
		seconds = m.duration
	}
	m.current = seconds
	m.seekCalls = append(m.seekCalls, seconds)
	src := m.source
	cur := m.current
	m.mu.Unlock()

	m.emit(Event{Type: EventTimeUpdate, Source: src, Time: cur})
}

func (m *Mock) SetVolume(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	m.volume = level
}

func (m *Mock) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func (m *Mock) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

func (m *Mock) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *Mock) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Mock) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Mock) BufferedPercent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffered
}

func (m *Mock) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

func (m *Mock) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlockCalls++
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

func (m *Mock) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
}

func (m *Mock) emit(e Event) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	select {
	case m.events <- e:
	default:
	}
}

// Test helpers

// SetDuration sets the simulated track duration.
func (m *Mock) SetDuration(seconds float64) {
	m.mu.Lock()
	m.duration = seconds
	m.mu.Unlock()
}

// SetAutoReady controls whether Load immediately reports canplay.
func (m *Mock) SetAutoReady(auto bool) {
	m.mu.Lock()
	m.autoReady = auto
	m.mu.Unlock()
}

// FailNextLoad makes the next Load emit an error event.
func (m *Mock) FailNextLoad(err error) {
	m.mu.Lock()
	m.failLoad = err
	m.mu.Unlock()
}

// BlockNextPlay makes the next Play return ErrPlaybackNotAllowed.
func (m *Mock) BlockNextPlay() {
	m.mu.Lock()
	m.blockPlay = true
	m.mu.Unlock()
}

// FailNextManifest makes the next LoadManifest return err.
func (m *Mock) FailNextManifest(err error) {
	m.mu.Lock()
	m.manifestErr = err
	m.mu.Unlock()
}

// EmitReady emits canplay for the current source.
func (m *Mock) EmitReady() {
	m.emit(Event{Type: EventCanPlay, Source: m.Source()})
}

// AdvanceTo moves the simulated clock and emits a timeupdate. Advancing to
// or past the duration emits ended instead.
func (m *Mock) AdvanceTo(seconds float64) {
	m.mu.Lock()
	m.current = seconds
	src := m.source
	duration := m.duration
	m.mu.Unlock()

	if duration > 0 && seconds >= duration {
		m.mu.Lock()
		m.playing = false
		m.mu.Unlock()
		m.emit(Event{Type: EventEnded, Source: src, Time: duration})
		return
	}
	m.emit(Event{Type: EventTimeUpdate, Source: src, Time: seconds})
}

// SetBuffered sets the buffered percent and emits a progress event.
func (m *Mock) SetBuffered(percent float64) {
	m.mu.Lock()
	m.buffered = percent
	src := m.source
	cur := m.current
	m.mu.Unlock()
	m.emit(Event{Type: EventProgress, Source: src, Time: cur, Buffered: percent})
}

// EmitWaiting emits a waiting event for the current source.
func (m *Mock) EmitWaiting() {
	m.emit(Event{Type: EventWaiting, Source: m.Source(), Time: m.CurrentTime()})
}

// EmitStalled emits a stalled event for the current source.
func (m *Mock) EmitStalled() {
	m.emit(Event{Type: EventStalled, Source: m.Source(), Time: m.CurrentTime()})
}

// EmitError emits a runtime error event for the current source.
func (m *Mock) EmitError(err error) {
	m.emit(Event{Type: EventError, Source: m.Source(), Err: err})
}

// EmitEnded emits an ended event for the current source.
func (m *Mock) EmitEnded() {
	m.mu.Lock()
	m.playing = false
	src := m.source
	duration := m.duration
	m.mu.Unlock()
	m.emit(Event{Type: EventEnded, Source: src, Time: duration})
}

// IsPlaying reports the simulated playing flag.
func (m *Mock) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// LoadCalls returns every URL passed to Load.
func (m *Mock) LoadCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loadCalls...)
}

// ManifestCalls returns every manifest passed to LoadManifest.
func (m *Mock) ManifestCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.manifestCalls...)
}

// PlayCalls returns the number of Play invocations.
func (m *Mock) PlayCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playCalls
}

// UnlockCalls returns the number of Unlock invocations.
func (m *Mock) UnlockCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlockCalls
}
