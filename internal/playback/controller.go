// Package playback implements the playback controller: a command-serialized
// state machine orchestrating stream resolution, the dual engine, crossfade
// and prefetch over a mutable queue.
package playback

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llehouerou/hifi/internal/api"
	"github.com/llehouerou/hifi/internal/engine"
	"github.com/llehouerou/hifi/internal/prefetch"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/resolver"
	"github.com/llehouerou/hifi/internal/streamcache"
)

// ErrClosed is returned by commands issued after Close.
var ErrClosed = errors.New("playback controller closed")

const (
	// previousRestartThreshold: previous restarts the current track instead
	// of moving the pointer when playback is further in than this.
	previousRestartThreshold = 5.0

	commandQueueSize  = 64
	internalQueueSize = 64
)

// MediaSession is the OS "now playing" surface. Implementations must fail
// silently; the controller never checks errors here.
type MediaSession interface {
	SetMetadata(track *queue.Track)
	SetPlaybackState(status Status)
	SetPosition(position, duration float64)
	Destroy()
}

// NopMediaSession is used when no platform surface is available.
type NopMediaSession struct{}

func (NopMediaSession) SetMetadata(*queue.Track)     {}
func (NopMediaSession) SetPlaybackState(Status)      {}
func (NopMediaSession) SetPosition(float64, float64) {}
func (NopMediaSession) Destroy()                     {}

// Prefs are the user preferences restored at startup and written back
// (debounced by the persister) on every change.
type Prefs struct {
	Volume           float64
	Muted            bool
	RepeatMode       queue.RepeatMode
	Shuffle          bool
	CrossfadeSeconds float64
	Quality          quality.Tier
	QualitySource    quality.Source
}

// DefaultPrefs returns the documented fallback preferences.
func DefaultPrefs() Prefs {
	return Prefs{
		Volume:     DefaultVolume,
		RepeatMode: queue.RepeatAll,
		Quality:    quality.Lossless,
	}
}

// Persister stores preferences and the queue. Implementations debounce;
// the controller calls these on every relevant change.
type Persister interface {
	SavePrefs(p Prefs)
	SaveQueue(tracks []queue.Track, index int)
}

// Options wires the controller's collaborators.
type Options struct {
	Dual     *engine.Dual
	Resolver *resolver.Resolver
	Cache    *streamcache.Cache
	API      api.StreamAPI
	Links    api.LinkResolver
	Prefetch *prefetch.Scheduler
	Session  MediaSession
	Persist  Persister

	// RewriteURL is applied to every resolved stream URL before it reaches
	// an engine (CDN/proxy indirection). Nil means identity.
	RewriteURL func(string) string

	// InitialPrefs seeds volume/modes/quality; nil uses DefaultPrefs.
	InitialPrefs *Prefs

	// Rand seeds shuffle order; nil uses a time-seeded source.
	Rand *rand.Rand
}

// Controller is the playback orchestrator. All mutation flows through a
// single run loop; public commands are serialized FIFO and never overlap.
type Controller struct {
	dual     *engine.Dual
	resolver *resolver.Resolver
	cache    *streamcache.Cache
	api      api.StreamAPI
	links    api.LinkResolver
	prefetch *prefetch.Scheduler
	session  MediaSession
	persist  Persister
	rewrite  func(string) string

	q *queue.Queue

	stateMu sync.RWMutex
	state   State

	subsMu sync.RWMutex
	subs   []*Subscription

	cmds     chan command
	internal chan func()
	done     chan struct{}
	wg       sync.WaitGroup
	closed   sync.Once

	loadToken      atomic.Uint64
	crossfadeToken atomic.Uint64

	// Run-loop-owned. Never touched off-loop.
	pending      *pendingLoad
	xfade        *crossfadeState
	activeMeta   *activeStream
	playIntent   bool
	resumeAt     float64
	halfwayFired bool
	xfadeDoneFor string

	retryCount  int
	lastRetryAt time.Time
	retryTimer  *time.Timer

	convMu      sync.Mutex
	conversions map[string]*conversion
}

// activeStream records what is loaded into the active slot.
type activeStream struct {
	url       string // rewritten, as handed to the engine
	candidate *resolver.Candidate
	track     queue.Track
}

type command struct {
	name string
	fn   func() error
	errc chan error
}

// New creates the controller and starts its run loop.
func New(opts Options) *Controller {
	prefs := DefaultPrefs()
	if opts.InitialPrefs != nil {
		prefs = *opts.InitialPrefs
	}
	if opts.Session == nil {
		opts.Session = NopMediaSession{}
	}
	if opts.RewriteURL == nil {
		opts.RewriteURL = func(u string) string { return u }
	}

	var q *queue.Queue
	if opts.Rand != nil {
		q = queue.NewWithRand(opts.Rand)
	} else {
		q = queue.New()
	}
	q.SetRepeatMode(prefs.RepeatMode)
	q.SetShuffle(prefs.Shuffle)

	st := InitialState()
	st.Volume = clamp(prefs.Volume, 0, 1)
	st.Muted = prefs.Muted
	st.CrossfadeSeconds = clamp(prefs.CrossfadeSeconds, 0, MaxCrossfadeSeconds)
	st.Quality = prefs.Quality
	st.QualitySource = prefs.QualitySource
	st.ActiveQuality = prefs.Quality
	st.RepeatMode = prefs.RepeatMode
	st.ShuffleEnabled = prefs.Shuffle

	c := &Controller{
		dual:        opts.Dual,
		resolver:    opts.Resolver,
		cache:       opts.Cache,
		api:         opts.API,
		links:       opts.Links,
		prefetch:    opts.Prefetch,
		session:     opts.Session,
		persist:     opts.Persist,
		rewrite:     opts.RewriteURL,
		q:           q,
		state:       st,
		cmds:        make(chan command, commandQueueSize),
		internal:    make(chan func(), internalQueueSize),
		done:        make(chan struct{}),
		conversions: make(map[string]*conversion),
	}

	c.wg.Add(1)
	go c.run()
	return c
}

// run is the single mutation point: commands, posted continuations and
// engine events are interleaved here, never executed concurrently.
func (c *Controller) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.cmds:
			cmd.errc <- c.runCommand(cmd)
		case fn := <-c.internal:
			fn()
		case ev, ok := <-c.dual.Events():
			if !ok {
				return
			}
			c.handleEngineEvent(ev)
		}
	}
}

// runCommand executes one queued command, trapping panics so a bad command
// cannot wedge the queue.
func (c *Controller) runCommand(cmd command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("command", cmd.name).Interface("panic", r).Msg("command panicked")
			err = errors.New("internal command failure")
		}
	}()
	if err := cmd.fn(); err != nil {
		log.Warn().Str("command", cmd.name).Err(err).Msg("command failed")
		return err
	}
	return nil
}

// do serializes a public command onto the FIFO queue and waits for it.
func (c *Controller) do(name string, fn func() error) error {
	cmd := command{name: name, fn: fn, errc: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.errc:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// post hands a continuation to the run loop. Used by loader goroutines and
// timers; the closure must re-check its captured token.
func (c *Controller) post(fn func()) {
	select {
	case c.internal <- fn:
	case <-c.done:
	}
}

// dispatch applies an action through the reducer and notifies subscribers.
func (c *Controller) dispatch(action Action) {
	c.stateMu.Lock()
	prev := c.state
	next := Reduce(prev, action)
	c.state = next
	c.stateMu.Unlock()

	if next.Generation == prev.Generation {
		// Illegal transition refused.
		if a, ok := action.(SetStatusAction); ok {
			log.Warn().
				Stringer("from", prev.Status).
				Stringer("to", a.Status).
				Msg("illegal playback state transition refused")
		}
		return
	}
	c.emitState(StateChange{Previous: prev, Current: next})
}

// State returns a snapshot of the playback state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Subscribe creates a new event subscription.
func (c *Controller) Subscribe() *Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	sub := newSubscription()
	c.subs = append(c.subs, sub)
	return sub
}

func (c *Controller) emitState(e StateChange) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, s := range c.subs {
		s.sendState(e)
	}
}

func (c *Controller) emitTrack(e TrackChange) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, s := range c.subs {
		s.sendTrack(e)
	}
}

func (c *Controller) emitPosition(e PositionChange) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, s := range c.subs {
		s.sendPosition(e)
	}
}

func (c *Controller) emitQueue() {
	e := QueueChange{Tracks: c.q.Tracks(), Index: c.q.CurrentIndex()}
	c.subsMu.RLock()
	for _, s := range c.subs {
		s.sendQueue(e)
	}
	c.subsMu.RUnlock()
	c.persistQueue()
}

func (c *Controller) emitMode() {
	e := ModeChange{RepeatMode: c.q.RepeatMode(), Shuffle: c.q.Shuffle()}
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, s := range c.subs {
		s.sendMode(e)
	}
}

func (c *Controller) emitQuality() {
	st := c.State()
	e := QualityChange{Requested: st.Quality, Source: st.QualitySource, Active: st.ActiveQuality}
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, s := range c.subs {
		s.sendQuality(e)
	}
}

func (c *Controller) emitError(e ErrorEvent) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, s := range c.subs {
		s.sendError(e)
	}
}

func (c *Controller) persistPrefs() {
	if c.persist == nil {
		return
	}
	st := c.State()
	c.persist.SavePrefs(Prefs{
		Volume:           st.Volume,
		Muted:            st.Muted,
		RepeatMode:       st.RepeatMode,
		Shuffle:          st.ShuffleEnabled,
		CrossfadeSeconds: st.CrossfadeSeconds,
		Quality:          st.Quality,
		QualitySource:    st.QualitySource,
	})
}

func (c *Controller) persistQueue() {
	if c.persist == nil {
		return
	}
	c.persist.SaveQueue(c.q.Tracks(), c.q.CurrentIndex())
}

// baseVolume derives the engine-level volume from the user volume and the
// stream's replay gain.
func (c *Controller) baseVolume(replayGain *float64) float64 {
	v := c.State().Volume
	if replayGain != nil {
		v *= math.Pow(10, *replayGain/20)
	}
	return clamp(v, 0, 1)
}

// --- Public commands -------------------------------------------------------

// Play starts or resumes playback.
func (c *Controller) Play() error {
	return c.do("play", func() error { return c.cmdPlay() })
}

// Pause pauses playback, keeping the current position.
func (c *Controller) Pause() error {
	return c.do("pause", func() error { return c.cmdPause() })
}

// Toggle flips between play and pause.
func (c *Controller) Toggle() error {
	return c.do("toggle", func() error {
		if c.State().IsPlaying {
			return c.cmdPause()
		}
		return c.cmdPlay()
	})
}

// SeekTo moves to an absolute position in seconds. Out-of-range values are
// clamped, never rejected.
func (c *Controller) SeekTo(seconds float64) error {
	return c.do("seekTo", func() error { return c.cmdSeekTo(seconds) })
}

// Seek moves by a relative delta in seconds.
func (c *Controller) Seek(delta float64) error {
	return c.do("seek", func() error {
		return c.cmdSeekTo(c.State().CurrentTime + delta)
	})
}

// SetQueue replaces the queue and positions at start without starting
// playback. A start of -1 leaves nothing current.
func (c *Controller) SetQueue(tracks []queue.Track, start int) error {
	return c.do("setQueue", func() error { return c.cmdReplaceQueue(tracks, start, false) })
}

// PlayQueue replaces the queue and starts playing at start.
func (c *Controller) PlayQueue(tracks []queue.Track, start int) error {
	return c.do("playQueue", func() error { return c.cmdReplaceQueue(tracks, start, true) })
}

// PlayAtIndex jumps to a queue position and plays it.
func (c *Controller) PlayAtIndex(index int) error {
	return c.do("playAtIndex", func() error {
		if c.q.JumpTo(index) == nil {
			return errors.New("queue index out of range")
		}
		c.emitQueue()
		c.startLoad(index, true)
		return nil
	})
}

// Next advances to the next track per the repeat/shuffle rules.
func (c *Controller) Next() error {
	return c.do("next", func() error { return c.cmdNext() })
}

// Previous restarts the current track when more than a few seconds in,
// otherwise moves to the previous track.
func (c *Controller) Previous() error {
	return c.do("previous", func() error { return c.cmdPrevious() })
}

// Enqueue appends tracks. If nothing is queued, the first added track
// starts playing immediately.
func (c *Controller) Enqueue(tracks ...queue.Track) error {
	return c.do("enqueue", func() error {
		hadCurrent := c.q.Current() != nil
		first := c.q.Append(tracks...)
		if first < 0 {
			return nil
		}
		c.emitQueue()
		c.dispatch(SetQueueAction{Tracks: c.q.Tracks(), Index: c.q.CurrentIndex()})
		if !hadCurrent {
			c.q.JumpTo(first)
			c.startLoad(first, true)
		}
		return nil
	})
}

// EnqueueNext inserts tracks immediately after the current one.
func (c *Controller) EnqueueNext(tracks ...queue.Track) error {
	return c.do("enqueueNext", func() error {
		hadCurrent := c.q.Current() != nil
		c.q.InsertAfterCurrent(tracks...)
		c.emitQueue()
		c.dispatch(SetQueueAction{Tracks: c.q.Tracks(), Index: c.q.CurrentIndex()})
		if !hadCurrent && c.q.Len() > 0 {
			c.q.JumpTo(0)
			c.startLoad(0, true)
		}
		return nil
	})
}

// RemoveFromQueue removes the track at index. Removing the playing track
// reloads the re-derived current track, preserving play/pause intent.
func (c *Controller) RemoveFromQueue(index int) error {
	return c.do("removeFromQueue", func() error { return c.cmdRemoveFromQueue(index) })
}

// ClearQueue removes everything and returns to idle.
func (c *Controller) ClearQueue() error {
	return c.do("clearQueue", func() error {
		c.cancelCrossfade()
		c.cancelPending(outcomeCanceled)
		c.q.Clear()
		c.dual.Active().Stop()
		c.activeMeta = nil
		c.emitQueue()
		c.dispatch(SetQueueAction{Tracks: nil, Index: -1})
		c.dispatch(SetTrackAction{Track: nil, Index: -1})
		c.dispatch(SetStatusAction{Status: StatusIdle})
		c.session.SetMetadata(nil)
		c.session.SetPlaybackState(StatusIdle)
		return nil
	})
}

// SetQuality changes the requested quality tier and reloads the current
// track at the new tier, resuming from the current position.
func (c *Controller) SetQuality(tier quality.Tier, source quality.Source) error {
	return c.do("setQuality", func() error {
		c.dispatch(SetQualityAction{Tier: tier, Source: source})
		c.persistPrefs()
		c.emitQuality()
		if idx := c.q.CurrentIndex(); idx >= 0 {
			c.cancelCrossfade()
			c.resumeAt = c.State().CurrentTime
			c.startLoad(idx, c.State().IsPlaying)
		}
		return nil
	})
}

// SetRepeatMode changes the repeat mode, resetting the shuffle bag.
func (c *Controller) SetRepeatMode(mode queue.RepeatMode) error {
	return c.do("setRepeatMode", func() error {
		c.cancelCrossfade()
		c.q.SetRepeatMode(mode)
		c.dispatch(SetModesAction{Repeat: mode, Shuffle: c.q.Shuffle()})
		c.emitMode()
		c.persistPrefs()
		return nil
	})
}

// CycleRepeatMode advances off -> all -> one -> off and returns the new mode.
func (c *Controller) CycleRepeatMode() queue.RepeatMode {
	var mode queue.RepeatMode
	_ = c.do("cycleRepeatMode", func() error {
		switch c.q.RepeatMode() {
		case queue.RepeatOff:
			mode = queue.RepeatAll
		case queue.RepeatAll:
			mode = queue.RepeatOne
		default:
			mode = queue.RepeatOff
		}
		c.cancelCrossfade()
		c.q.SetRepeatMode(mode)
		c.dispatch(SetModesAction{Repeat: mode, Shuffle: c.q.Shuffle()})
		c.emitMode()
		c.persistPrefs()
		return nil
	})
	return mode
}

// SetShuffle toggles shuffle, resetting the bag and history.
func (c *Controller) SetShuffle(enabled bool) error {
	return c.do("setShuffle", func() error {
		c.cancelCrossfade()
		c.q.SetShuffle(enabled)
		c.dispatch(SetModesAction{Repeat: c.q.RepeatMode(), Shuffle: enabled})
		c.emitMode()
		c.persistPrefs()
		return nil
	})
}

// ToggleShuffle flips shuffle and returns the new value.
func (c *Controller) ToggleShuffle() bool {
	enabled := false
	_ = c.do("toggleShuffle", func() error {
		enabled = !c.q.Shuffle()
		c.cancelCrossfade()
		c.q.SetShuffle(enabled)
		c.dispatch(SetModesAction{Repeat: c.q.RepeatMode(), Shuffle: enabled})
		c.emitMode()
		c.persistPrefs()
		return nil
	})
	return enabled
}

// SetVolume sets the user volume (0-1).
func (c *Controller) SetVolume(volume float64) error {
	return c.do("setVolume", func() error {
		c.dispatch(SetVolumeAction{Volume: volume})
		c.applyVolume()
		c.persistPrefs()
		return nil
	})
}

// SetMuted sets the mute flag.
func (c *Controller) SetMuted(muted bool) error {
	return c.do("setMuted", func() error {
		c.dispatch(SetMutedAction{Muted: muted})
		c.dual.Active().SetMuted(muted)
		c.dual.Inactive().SetMuted(muted)
		c.persistPrefs()
		return nil
	})
}

// SetCrossfadeSeconds sets the crossfade window (0 disables).
func (c *Controller) SetCrossfadeSeconds(seconds float64) error {
	return c.do("setCrossfade", func() error {
		c.dispatch(SetCrossfadeAction{Seconds: seconds})
		if c.State().CrossfadeSeconds == 0 {
			c.cancelCrossfade()
		}
		c.persistPrefs()
		return nil
	})
}

// Reset stops playback and returns to the initial state, keeping user
// preferences.
func (c *Controller) Reset() error {
	return c.do("reset", func() error {
		c.cancelCrossfade()
		c.cancelPending(outcomeCanceled)
		c.stopRetryTimer()
		if c.prefetch != nil {
			c.prefetch.Stop()
		}
		c.q.Clear()
		c.dual.Active().Stop()
		c.dual.Inactive().Stop()
		c.activeMeta = nil
		c.playIntent = false
		c.dispatch(ResetAction{})
		c.emitQueue()
		c.session.SetMetadata(nil)
		c.session.SetPlaybackState(StatusIdle)
		return nil
	})
}

// Close shuts the controller down. Safe to call more than once.
func (c *Controller) Close() error {
	c.closed.Do(func() {
		close(c.done)
		c.wg.Wait()
		if c.prefetch != nil {
			c.prefetch.Stop()
		}
		c.dual.Close()
		if c.cache != nil {
			c.cache.Close()
		}
		c.session.Destroy()

		c.subsMu.Lock()
		for _, s := range c.subs {
			s.close()
		}
		c.subs = nil
		c.subsMu.Unlock()
	})
	return nil
}

// applyVolume pushes the current user volume to the active engine,
// preserving the replay gain scaling of the active stream. During a
// crossfade the tick driver owns both engine volumes.
func (c *Controller) applyVolume() {
	if c.xfade != nil && c.xfade.phase == xfadeActive {
		return
	}
	var rg *float64
	if c.activeMeta != nil {
		rg = c.activeMeta.candidate.ReplayGain
	}
	c.dual.Active().SetVolume(c.baseVolume(rg))
}

// --- Command bodies (run-loop only) ---------------------------------------

func (c *Controller) cmdPlay() error {
	st := c.State()
	if st.NeedsGesture || st.Status == StatusBlocked {
		// An explicit command is our "user gesture": unlock, then retry.
		c.dual.Unlock()
	}

	if c.pending != nil {
		// A load is in flight; upgrade it to play-on-ready.
		c.playIntent = true
		c.pending.autoplay = true
		return nil
	}

	if c.q.Current() == nil {
		if c.q.Len() > 0 {
			c.q.JumpTo(0)
			c.startLoad(0, true)
			return nil
		}
		return nil
	}

	if c.activeMeta == nil {
		c.startLoad(c.q.CurrentIndex(), true)
		return nil
	}

	err := c.dual.Active().Play()
	switch {
	case errors.Is(err, engine.ErrPlaybackNotAllowed):
		c.dispatch(SetStatusAction{Status: StatusBlocked})
		c.dispatch(SetNeedsGestureAction{Needs: true})
		return nil
	case errors.Is(err, engine.ErrNoSource):
		c.startLoad(c.q.CurrentIndex(), true)
		return nil
	case err != nil:
		return err
	}
	c.dispatch(SetStatusAction{Status: StatusPlaying})
	c.session.SetPlaybackState(StatusPlaying)
	return nil
}

func (c *Controller) cmdPause() error {
	c.cancelCrossfade()
	c.playIntent = false
	if c.pending != nil {
		c.pending.autoplay = false
	}
	c.dual.Active().Pause()
	c.dispatch(SetStatusAction{Status: StatusPaused})
	c.session.SetPlaybackState(StatusPaused)
	return nil
}

func (c *Controller) cmdSeekTo(seconds float64) error {
	st := c.State()
	if st.CurrentTrack == nil {
		return nil
	}
	c.cancelCrossfade()
	target := seconds
	if target < 0 {
		target = 0
	}
	if st.Duration > 0 && target > st.Duration {
		target = st.Duration
	}
	c.dual.Active().Seek(target)
	c.dispatch(ProgressAction{CurrentTime: target, Duration: -1, Buffered: -1})
	c.emitPosition(PositionChange{Position: target, Duration: st.Duration})
	c.session.SetPosition(target, st.Duration)
	c.prefetchPass()
	return nil
}

func (c *Controller) cmdReplaceQueue(tracks []queue.Track, start int, autoplay bool) error {
	c.cancelCrossfade()
	c.cancelPending(outcomeCanceled)

	current := c.q.Replace(tracks, start)
	c.emitQueue()
	c.dispatch(SetQueueAction{Tracks: c.q.Tracks(), Index: c.q.CurrentIndex()})

	if current == nil {
		c.dual.Active().Stop()
		c.activeMeta = nil
		c.dispatch(SetTrackAction{Track: nil, Index: -1})
		c.dispatch(SetStatusAction{Status: StatusIdle})
		c.session.SetMetadata(nil)
		return nil
	}
	c.startLoad(c.q.CurrentIndex(), autoplay)
	return nil
}

func (c *Controller) cmdNext() error {
	c.cancelCrossfade()
	if c.q.Current() == nil {
		return nil
	}
	if c.q.RepeatMode() == queue.RepeatOne {
		return c.restartCurrent()
	}
	idx, ok := c.q.Advance()
	if !ok {
		// End of queue without repeat: stop where we are.
		c.playIntent = false
		c.dual.Active().Pause()
		c.dispatch(SetStatusAction{Status: StatusPaused})
		c.session.SetPlaybackState(StatusPaused)
		return nil
	}
	c.emitQueue()
	c.startLoad(idx, c.wantsPlayback())
	return nil
}

func (c *Controller) cmdPrevious() error {
	c.cancelCrossfade()
	if c.q.Current() == nil {
		return nil
	}
	if c.State().CurrentTime > previousRestartThreshold {
		return c.restartCurrent()
	}
	idx, ok := c.q.Retreat()
	if !ok {
		return c.restartCurrent()
	}
	c.emitQueue()
	c.startLoad(idx, c.wantsPlayback())
	return nil
}

func (c *Controller) cmdRemoveFromQueue(index int) error {
	removedCurrent, ok := c.q.RemoveAt(index)
	if !ok {
		return errors.New("queue index out of range")
	}
	c.emitQueue()
	c.dispatch(SetQueueAction{Tracks: c.q.Tracks(), Index: c.q.CurrentIndex()})

	if !removedCurrent {
		return nil
	}

	c.cancelCrossfade()
	if c.q.Current() == nil {
		// Removed the last remaining track.
		c.cancelPending(outcomeCanceled)
		c.dual.Active().Stop()
		c.activeMeta = nil
		c.dispatch(SetTrackAction{Track: nil, Index: -1})
		c.dispatch(SetStatusAction{Status: StatusIdle})
		c.session.SetMetadata(nil)
		c.session.SetPlaybackState(StatusIdle)
		return nil
	}
	c.startLoad(c.q.CurrentIndex(), c.wantsPlayback())
	return nil
}

// wantsPlayback reports whether navigation should keep playing: either we
// are audibly playing or a load with play intent is in flight.
func (c *Controller) wantsPlayback() bool {
	if c.pending != nil {
		return c.pending.autoplay
	}
	st := c.State()
	return st.IsPlaying || st.Status == StatusLoading && c.playIntent
}

// restartCurrent seeks to zero and resumes if playback was intended.
func (c *Controller) restartCurrent() error {
	c.dual.Active().Seek(0)
	c.dispatch(ProgressAction{CurrentTime: 0, Duration: -1, Buffered: -1})
	c.emitPosition(PositionChange{Position: 0, Duration: c.State().Duration})
	if c.wantsPlayback() {
		if err := c.dual.Active().Play(); err == nil {
			c.dispatch(SetStatusAction{Status: StatusPlaying})
		}
	}
	return nil
}

func (c *Controller) stopRetryTimer() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// Queue accessors (snapshots; safe from any goroutine via the command queue).

// QueueTracks returns a copy of the queue.
func (c *Controller) QueueTracks() []queue.Track {
	var tracks []queue.Track
	_ = c.do("queueTracks", func() error {
		tracks = c.q.Tracks()
		return nil
	})
	return tracks
}

// QueueIndex returns the current queue position, or -1.
func (c *Controller) QueueIndex() int {
	idx := -1
	_ = c.do("queueIndex", func() error {
		idx = c.q.CurrentIndex()
		return nil
	})
	return idx
}
