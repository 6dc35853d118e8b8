package playback

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llehouerou/hifi/internal/engine"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/resolver"
	"github.com/llehouerou/hifi/internal/streamcache"
)

const (
	// crossfadeReadyTimeout bounds how long the prepared engine may take to
	// reach readiness before the attempt is abandoned.
	crossfadeReadyTimeout = 8 * time.Second
	crossfadeTick         = 100 * time.Millisecond
)

type xfadePhase int

const (
	xfadePreparing xfadePhase = iota
	xfadeActive
)

// crossfadeState is the ephemeral record of one crossfade attempt, created
// when the trigger fires and destroyed on completion or cancellation.
// Owned by the run loop.
type crossfadeState struct {
	token     uint64
	phase     xfadePhase
	nextIndex int
	track     queue.Track
	candidate *resolver.Candidate
	url       string // rewritten
	startedAt time.Time
	duration  float64 // seconds

	readyTimer *time.Timer
	tickerStop chan struct{}
}

// maybeBeginCrossfade checks the trigger conditions on each progress tick.
// Crossfade is strictly best-effort: any failure falls back to the normal
// end-of-track advance.
func (c *Controller) maybeBeginCrossfade(currentTime, duration float64) {
	if c.xfade != nil || c.pending != nil {
		return
	}
	st := c.State()
	if st.Status != StatusPlaying ||
		st.CrossfadeSeconds <= 0 ||
		st.RepeatMode == queue.RepeatOne ||
		st.ActiveQuality.IsHiRes() ||
		duration <= 0 {
		return
	}
	if duration-currentTime > st.CrossfadeSeconds {
		return
	}
	current := c.q.Current()
	if current == nil || c.xfadeDoneFor == current.Identity() {
		// Fire once per track end.
		return
	}

	// Peek without committing: shuffle-bag state is consumed only when the
	// crossfade actually completes.
	nextIndex, ok := c.q.PeekNext()
	if !ok || nextIndex == c.q.CurrentIndex() {
		return
	}
	next := c.q.Track(nextIndex)
	if next == nil {
		return
	}
	if next.Kind == queue.ExternalLink && next.ID == 0 {
		// Conversion is too slow and too fallible for a crossfade window.
		return
	}

	c.xfadeDoneFor = current.Identity()
	token := c.crossfadeToken.Add(1)
	x := &crossfadeState{
		token:     token,
		phase:     xfadePreparing,
		nextIndex: nextIndex,
		track:     *next,
		duration:  st.CrossfadeSeconds,
	}
	c.xfade = x
	log.Debug().Int("next", nextIndex).Float64("window", st.CrossfadeSeconds).Msg("crossfade preparing")

	track := *next
	tier := c.prefetchTier(track)
	go func() {
		cand, err := c.resolver.Resolve(context.Background(), &track, tier, true)
		c.post(func() {
			if c.crossfadeToken.Load() != token || c.xfade != x {
				return
			}
			if err != nil {
				log.Debug().Err(err).Msg("crossfade resolution failed")
				c.abortCrossfade(x)
				return
			}
			c.prepareCrossfade(x, cand)
		})
	}()
}

// prepareCrossfade loads the candidate into the inactive engine at volume
// zero and waits for readiness. Run-loop only.
func (c *Controller) prepareCrossfade(x *crossfadeState, cand *resolver.Candidate) {
	x.candidate = cand
	x.url = c.rewrite(cand.URL)

	inactive := c.dual.Inactive()
	c.dual.SetInactiveForwarding(true)
	inactive.SetMuted(c.State().Muted)
	inactive.SetVolume(0)
	inactive.Load(x.url)

	token := x.token
	x.readyTimer = time.AfterFunc(crossfadeReadyTimeout, func() {
		c.post(func() {
			if c.crossfadeToken.Load() != token || c.xfade != x || x.phase != xfadePreparing {
				return
			}
			log.Debug().Msg("crossfade preparation timed out")
			c.abortCrossfade(x)
		})
	})
}

// handleInactiveEvent routes events from the standby slot. Only crossfade
// preparation ever listens to it.
func (c *Controller) handleInactiveEvent(ev engine.Event) {
	x := c.xfade
	if x == nil || x.url == "" || ev.Source != x.url {
		return
	}

	switch ev.Type {
	case engine.EventCanPlay:
		if x.phase != xfadePreparing {
			return
		}
		if err := c.dual.Inactive().Play(); err != nil {
			log.Debug().Err(err).Msg("crossfade engine refused to play")
			c.abortCrossfade(x)
			return
		}
		c.activateCrossfade(x)

	case engine.EventError:
		log.Debug().Err(ev.Err).Msg("crossfade preparation error")
		c.abortCrossfade(x)

	case engine.EventEnded:
		if x.phase == xfadeActive {
			// The incoming track somehow ended mid-fade; commit immediately.
			c.completeCrossfade(x)
		}
	}
}

// activateCrossfade starts the progress driver once the incoming engine is
// audibly playing at volume zero.
func (c *Controller) activateCrossfade(x *crossfadeState) {
	if x.readyTimer != nil {
		x.readyTimer.Stop()
		x.readyTimer = nil
	}
	x.phase = xfadeActive
	x.startedAt = time.Now()
	x.tickerStop = make(chan struct{})
	log.Debug().Msg("crossfade active")

	token := x.token
	go func() {
		ticker := time.NewTicker(crossfadeTick)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-x.tickerStop:
				return
			case <-ticker.C:
				if c.crossfadeToken.Load() != token {
					return
				}
				c.post(func() { c.crossfadeStep(x) })
			}
		}
	}()
}

// crossfadeStep applies the linear volume law at the current progress and
// commits the handoff at progress one. Run-loop only.
func (c *Controller) crossfadeStep(x *crossfadeState) {
	if c.xfade != x || x.phase != xfadeActive {
		return
	}

	progress := time.Since(x.startedAt).Seconds() / x.duration
	if progress >= 1 {
		c.completeCrossfade(x)
		return
	}

	var outGain *float64
	if c.activeMeta != nil {
		outGain = c.activeMeta.candidate.ReplayGain
	}
	outBase := c.baseVolume(outGain)
	inBase := c.baseVolume(x.candidate.ReplayGain)
	c.dual.Active().SetVolume(outBase * (1 - progress))
	c.dual.Inactive().SetVolume(inBase * progress)
}

// completeCrossfade atomically swaps engine ownership, commits the queue
// advance that was only peeked so far, and rebinds all track metadata.
func (c *Controller) completeCrossfade(x *crossfadeState) {
	if c.xfade != x {
		return
	}
	x.stop()
	c.xfade = nil

	outgoing := c.dual.SwapActive()
	c.dual.SetInactiveForwarding(false)
	outgoing.Stop()

	idx, ok := c.q.Advance()
	if !ok {
		// The queue changed under the fade; fall back to the peeked index.
		idx = x.nextIndex
		c.q.JumpTo(idx)
	}
	track := c.q.Track(idx)
	if track == nil {
		return
	}

	prev := c.State()
	c.loadToken.Add(1) // invalidate any stale continuations for the old track
	c.activeMeta = &activeStream{url: x.url, candidate: x.candidate, track: *track}
	c.halfwayFired = false
	c.playIntent = true

	c.dispatch(SetTrackAction{Track: track, Index: idx})
	c.dispatch(SetStatusAction{Status: StatusPlaying})
	c.applyStreamMeta(x.candidate)
	c.dual.Active().SetVolume(c.baseVolume(x.candidate.ReplayGain))

	c.cache.SetValidated(streamcache.ValidatedParams{
		TrackID:    x.candidate.TrackID,
		Tier:       x.candidate.Tier,
		URL:        x.candidate.URL,
		ReplayGain: x.candidate.ReplayGain,
		SampleRate: x.candidate.SampleRate,
		BitDepth:   x.candidate.BitDepth,
	})

	c.emitTrack(TrackChange{
		Previous:      prev.CurrentTrack,
		Current:       track,
		PreviousIndex: prev.QueueIndex,
		Index:         idx,
	})
	c.emitQueue()
	c.session.SetMetadata(track)
	c.session.SetPlaybackState(StatusPlaying)
	c.prefetchPass()
	log.Debug().Int("index", idx).Msg("crossfade complete")
}

// abortCrossfade abandons a preparing attempt without touching playback
// state; normal end-of-track behavior takes over.
func (c *Controller) abortCrossfade(x *crossfadeState) {
	if c.xfade != x {
		return
	}
	x.stop()
	c.xfade = nil
	c.crossfadeToken.Add(1)
	c.dual.SetInactiveForwarding(false)
	c.dual.Inactive().Stop()
}

// cancelCrossfade cancels any in-flight or active crossfade: explicit user
// actions and errors always restore single-engine behavior. Run-loop only.
func (c *Controller) cancelCrossfade() {
	x := c.xfade
	if x == nil {
		return
	}
	x.stop()
	c.xfade = nil
	c.crossfadeToken.Add(1)

	inactive := c.dual.Inactive()
	inactive.Pause()
	inactive.Stop()
	c.dual.SetInactiveForwarding(false)

	// Restore full volume on the engine that keeps playing.
	c.applyVolume()
}

func (x *crossfadeState) stop() {
	if x.readyTimer != nil {
		x.readyTimer.Stop()
		x.readyTimer = nil
	}
	if x.tickerStop != nil {
		close(x.tickerStop)
		x.tickerStop = nil
	}
}
