package playback

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llehouerou/hifi/internal/engine"
	"github.com/llehouerou/hifi/internal/errmsg"
	"github.com/llehouerou/hifi/internal/prefetch"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
)

const (
	// retryQuietPeriod resets the runtime-error retry counter after this
	// long without another error. Empirically tuned; not load-bearing.
	retryQuietPeriod  = 15 * time.Second
	maxRuntimeRetries = 3
)

// handleEngineEvent is the single entry point for asynchronous engine
// signals. Run-loop only.
func (c *Controller) handleEngineEvent(ev engine.SlotEvent) {
	if !ev.FromActive {
		c.handleInactiveEvent(ev.Event)
		return
	}
	if c.shouldIgnoreEvent(ev.Event) {
		return
	}

	switch ev.Event.Type {
	case engine.EventLoadStart:
		// Informational.

	case engine.EventCanPlay:
		if p := c.pending; p != nil {
			p.stopStall()
			if p.autoplay {
				c.playPending(p)
			} else {
				c.resolvePending(p, outcomeReady)
			}
		}

	case engine.EventPlaying:
		if p := c.pending; p != nil {
			c.resolvePending(p, outcomePlaying)
			return
		}
		c.dispatch(SetStatusAction{Status: StatusPlaying})
		c.session.SetPlaybackState(StatusPlaying)

	case engine.EventTimeUpdate:
		c.handleTimeUpdate(ev.Event)

	case engine.EventProgress:
		if p := c.pending; p != nil {
			p.stopStall()
		}
		c.dispatch(ProgressAction{CurrentTime: -1, Duration: -1, Buffered: ev.Event.Buffered})
		if c.State().Status == StatusBuffering {
			// Buffered data arrived; resume if the engine kept going.
			c.dispatch(SetStatusAction{Status: StatusPlaying})
		}

	case engine.EventWaiting, engine.EventStalled:
		c.handleStallSignal(ev.Event)

	case engine.EventEnded:
		c.handleTrackFinished()

	case engine.EventError:
		if p := c.pending; p != nil {
			c.resolvePending(p, outcomeErrored)
			return
		}
		c.handleRuntimeError(ev.Event.Err)
	}
}

// shouldIgnoreEvent rejects stale events from a superseded load: the
// event's source must match either the pending or the active stream URL.
func (c *Controller) shouldIgnoreEvent(ev engine.Event) bool {
	if ev.Source == "" {
		return false
	}
	if c.pending != nil && ev.Source == c.pending.url {
		return false
	}
	if c.activeMeta != nil && ev.Source == c.activeMeta.url {
		return false
	}
	// Manifest loads carry a synthetic source the pending record does not
	// know; accept events that match the engine's current source.
	return ev.Source != c.dual.Active().Source()
}

// playPending asks the active engine to start playing a loaded pending
// stream, classifying an autoplay rejection as blocked rather than failed.
func (c *Controller) playPending(p *pendingLoad) {
	err := c.dual.Active().Play()
	switch {
	case err == nil:
		c.resolvePending(p, outcomePlaying)
	case errors.Is(err, engine.ErrPlaybackNotAllowed):
		c.resolvePending(p, outcomeBlocked)
	default:
		log.Debug().Err(err).Msg("play on ready failed")
		c.resolvePending(p, outcomeErrored)
	}
}

func (c *Controller) handleTimeUpdate(ev engine.Event) {
	st := c.State()
	duration := c.dual.Active().Duration()
	if duration <= 0 {
		duration = st.Duration
	}
	c.dispatch(ProgressAction{CurrentTime: ev.Time, Duration: duration, Buffered: -1})
	c.emitPosition(PositionChange{Position: ev.Time, Duration: duration})
	c.session.SetPosition(ev.Time, duration)

	if st.Status == StatusBuffering {
		// The clock moving again means buffering is over.
		c.dispatch(SetStatusAction{Status: StatusPlaying})
	}

	if !c.halfwayFired && duration > 0 && ev.Time >= duration/2 {
		c.halfwayFired = true
		c.prefetchPass()
	}

	c.maybeBeginCrossfade(ev.Time, duration)
}

// handleStallSignal marks buffering and, when a load is pending, arms the
// no-progress watchdog that force-resolves the load as stalled.
func (c *Controller) handleStallSignal(ev engine.Event) {
	if p := c.pending; p != nil {
		if p.stallTimer == nil {
			p.stallTimer = time.AfterFunc(stallWindow, func() {
				c.post(func() { c.resolvePending(p, outcomeStalled) })
			})
		}
		return
	}
	if c.State().Status == StatusPlaying {
		c.dispatch(SetStatusAction{Status: StatusBuffering})
	}
}

func (p *pendingLoad) stopStall() {
	if p.stallTimer != nil {
		p.stallTimer.Stop()
		p.stallTimer = nil
	}
}

// handleTrackFinished reacts to a natural end of track: repeat-one replays,
// otherwise the queue advances per the navigation rules.
func (c *Controller) handleTrackFinished() {
	if c.xfade != nil {
		// A crossfade is mid-handoff; its completion owns the advance.
		return
	}

	if c.q.RepeatMode() == queue.RepeatOne {
		c.dual.Active().Seek(0)
		c.dispatch(ProgressAction{CurrentTime: 0, Duration: -1, Buffered: -1})
		if err := c.dual.Active().Play(); err != nil {
			log.Debug().Err(err).Msg("repeat-one replay failed")
			c.dispatch(SetStatusAction{Status: StatusPaused})
		}
		return
	}

	idx, ok := c.q.Advance()
	if !ok {
		// End of queue, no wrap: stay on the last track, paused.
		c.playIntent = false
		c.dispatch(ProgressAction{CurrentTime: 0, Duration: -1, Buffered: -1})
		c.dispatch(SetStatusAction{Status: StatusPaused})
		c.session.SetPlaybackState(StatusPaused)
		return
	}
	c.emitQueue()
	c.startLoad(idx, true)
}

// handleRuntimeError reacts to a mid-playback engine error: invalidate the
// cached URL and retry the current track with exponential backoff, bounded
// by the attempt budget. External-link tracks are not retried.
func (c *Controller) handleRuntimeError(cause error) {
	st := c.State()
	track := st.CurrentTrack
	log.Warn().Err(cause).Msg("runtime playback error")

	if c.activeMeta != nil {
		tier := c.activeMeta.candidate.Tier
		id := c.activeMeta.candidate.TrackID
		c.cache.RecordFailure(id, tier)
		c.cache.Invalidate(id, tier)
		c.api.InvalidateStreamData(id, tier)
	}

	if track == nil || track.Kind == queue.ExternalLink {
		c.failRuntime(cause)
		return
	}

	now := time.Now()
	if !c.lastRetryAt.IsZero() && now.Sub(c.lastRetryAt) > retryQuietPeriod {
		c.retryCount = 0
	}
	c.retryCount++
	c.lastRetryAt = now

	if c.retryCount > maxRuntimeRetries {
		c.failRuntime(cause)
		return
	}

	delay := time.Duration(1<<(c.retryCount-1)) * 500 * time.Millisecond
	log.Debug().Int("attempt", c.retryCount).Dur("delay", delay).Msg("scheduling playback recovery")
	idx := c.q.CurrentIndex()
	wasPlaying := st.IsPlaying
	token := c.loadToken.Load()
	c.stopRetryTimer()
	c.retryTimer = time.AfterFunc(delay, func() {
		c.post(func() {
			if c.loadToken.Load() != token || c.q.CurrentIndex() != idx {
				return
			}
			c.startLoad(idx, wasPlaying)
		})
	})
}

func (c *Controller) failRuntime(cause error) {
	c.playIntent = false
	c.dispatch(SetErrorAction{Message: errmsg.Format(errmsg.OpStreamRecover, cause)})
	c.dispatch(SetStatusAction{Status: StatusError})
	var trackID int64
	if t := c.State().CurrentTrack; t != nil {
		trackID = t.ID
	}
	c.emitError(ErrorEvent{Operation: "playback", TrackID: trackID, Err: cause})
	c.session.SetPlaybackState(StatusPaused)
}

// prefetchPass schedules warming for the upcoming tracks and a short
// window of recently played ones (for a quick "previous"). Best-effort;
// never touches the foreground load pipeline.
func (c *Controller) prefetchPass() {
	if c.prefetch == nil {
		return
	}

	var targets []prefetch.Target
	seen := map[int]bool{c.q.CurrentIndex(): true}

	add := func(index int, warm bool) {
		if index < 0 || seen[index] {
			return
		}
		track := c.q.Track(index)
		if track == nil {
			return
		}
		seen[index] = true
		targets = append(targets, prefetch.Target{
			Track: *track,
			Tier:  c.prefetchTier(*track),
			Warm:  warm,
		})
	}

	if next, ok := c.q.PeekNext(); ok {
		add(next, true)
		if !c.q.Shuffle() {
			add(next+1, false)
		}
	}
	add(c.q.CurrentIndex()-1, false)

	if len(targets) > 0 {
		c.prefetch.Schedule(targets)
	}
}

// prefetchTier caps prefetch at the lossless tier: hi-res delivery is
// manifest-based and cannot be warmed through a stream URL.
func (c *Controller) prefetchTier(track queue.Track) quality.Tier {
	tier := c.targetTier(track)
	if tier.IsHiRes() {
		return quality.Lossless
	}
	return tier
}
