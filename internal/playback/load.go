package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llehouerou/hifi/internal/api"
	"github.com/llehouerou/hifi/internal/errmsg"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/resolver"
	"github.com/llehouerou/hifi/internal/streamcache"
)

const (
	// loadPlayTimeout bounds an attempt when playback is expected
	// immediately; loadReadyTimeout when loading without play intent.
	loadPlayTimeout  = 12 * time.Second
	loadReadyTimeout = 30 * time.Second
	// stallWindow force-resolves a pending load as stalled when no
	// buffering progress follows a waiting/stalled signal.
	stallWindow = 8 * time.Second

	maxLoadAttempts = 3
)

// retryBackoffs are the delays before load attempts 1, 2 and 3.
var retryBackoffs = [maxLoadAttempts]time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond}

// loadOutcome is the terminal result of one load attempt.
type loadOutcome int

const (
	outcomePlaying loadOutcome = iota
	outcomeReady
	outcomeBlocked
	outcomeTimeout
	outcomeStalled
	outcomeErrored
	outcomeCanceled
)

func (o loadOutcome) String() string {
	switch o {
	case outcomePlaying:
		return "playing"
	case outcomeReady:
		return "ready"
	case outcomeBlocked:
		return "blocked"
	case outcomeTimeout:
		return "timeout"
	case outcomeStalled:
		return "stalled"
	case outcomeErrored:
		return "error"
	case outcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// pendingLoad tracks one in-flight attempt. Owned by the run loop; the
// loader goroutine only reads the outcome channel.
type pendingLoad struct {
	token     uint64
	url       string // rewritten
	candidate *resolver.Candidate
	track     queue.Track
	autoplay  bool
	resolved  bool
	resume    float64
	outcome   chan loadOutcome

	timeout    *time.Timer
	stallTimer *time.Timer
}

// conversion is one deduplicated external-link resolution.
type conversion struct {
	done chan struct{}
	id   int64
	info *api.TrackInfo
	err  error
}

// startLoad begins the load pipeline for the queue track at index. Runs on
// the run loop. Any in-flight load or crossfade is superseded.
func (c *Controller) startLoad(index int, autoplay bool) {
	track := c.q.Track(index)
	if track == nil {
		return
	}

	token := c.loadToken.Add(1)
	c.cancelPending(outcomeCanceled)
	c.cancelCrossfade()
	c.stopRetryTimer()

	prevState := c.State()
	c.playIntent = autoplay
	c.halfwayFired = false
	resumeAt := c.resumeAt
	c.resumeAt = 0

	c.dispatch(SetTrackAction{Track: track, Index: index})
	c.dispatch(SetStatusAction{Status: StatusLoading})

	if !queue.SameTrack(prevState.CurrentTrack, track) {
		c.emitTrack(TrackChange{
			Previous:      prevState.CurrentTrack,
			Current:       track,
			PreviousIndex: prevState.QueueIndex,
			Index:         index,
		})
	}
	c.session.SetMetadata(track)

	go c.runLoad(token, *track, index, autoplay, resumeAt)
}

// runLoad is the loader goroutine: conversion, quality selection, manifest
// attempt, then bounded streaming attempts with backoff. Every side effect
// is posted back to the run loop behind a token check.
func (c *Controller) runLoad(token uint64, track queue.Track, index int, autoplay bool, resumeAt float64) {
	ctx := context.Background()

	if track.Kind == queue.ExternalLink && track.ID == 0 {
		id, info, err := c.convertExternal(ctx, track.ExternalID)
		if err != nil {
			// Conversion failure is terminal for this load: the content is
			// usually genuinely unavailable, not transiently broken.
			c.postFailure(token, errmsg.FormatWith(errmsg.OpTrackConvert, track.Title, err), err)
			return
		}
		track.Kind = queue.FirstParty
		track.ID = id
		if info != nil {
			track.Title = info.Title
			track.Artist = info.Artist
			track.Album = info.Album
			track.Duration = time.Duration(info.DurationSec * float64(time.Second))
			track.MaxQuality = info.MaxTier()
		}
		resolved := track
		c.post(func() {
			if !c.tokenValid(token) {
				return
			}
			c.q.UpdateTrack(index, resolved)
			c.dispatch(SetTrackAction{Track: &resolved, Index: index})
			c.emitQueue()
			c.session.SetMetadata(&resolved)
		})
	}

	if track.MaxQuality == quality.Low && track.Duration == 0 {
		// Bare stub: learn the track's intrinsic best tier before choosing.
		if info, err := c.api.GetTrack(ctx, track.ID); err == nil {
			track.MaxQuality = info.MaxTier()
			if track.Duration == 0 {
				track.Duration = time.Duration(info.DurationSec * float64(time.Second))
			}
		} else {
			track.MaxQuality = quality.Lossless
		}
	}

	tier := c.targetTier(track)

	if tier.IsHiRes() {
		if done := c.tryManifest(ctx, token, track, tier, autoplay); done {
			return
		}
		// Manifest failed or unavailable: fall back to single-file
		// streaming at the next tier down.
		tier = tier.NextLower()
	}

	if c.runStreamingAttempts(ctx, token, track, tier, autoplay, resumeAt) {
		return
	}

	// Last resort: the lossless tier is guaranteed to exist for every track.
	if tier != quality.Lossless {
		if c.runStreamingAttempt(ctx, token, track, quality.Lossless, false, autoplay, resumeAt) {
			return
		}
	}

	err := fmt.Errorf("no playable stream after %d attempts", maxLoadAttempts)
	c.postFailure(token, errmsg.FormatWith(errmsg.OpTrackLoad, track.Title, err), err)
}

// targetTier picks the effective tier: auto re-derives the best tier the
// track offers; manual keeps the user's choice, downgraded if unavailable.
func (c *Controller) targetTier(track queue.Track) quality.Tier {
	st := c.State()
	if st.QualitySource == quality.SourceAuto {
		return track.MaxQuality
	}
	return quality.Normalize(st.Quality, track.MaxQuality)
}

// tryManifest attempts a hi-res manifest load. Returns true when the load
// pipeline is finished (success or canceled); false requests the standard
// streaming fallback.
func (c *Controller) tryManifest(ctx context.Context, token uint64, track queue.Track, tier quality.Tier, autoplay bool) bool {
	resp, err := c.api.GetDashManifestWithMetadata(ctx, track.ID, tier)
	if err != nil {
		log.Debug().Err(err).Int64("track", track.ID).Msg("manifest fetch failed, falling back to streaming")
		return false
	}
	if resp.Result.Kind != api.ManifestDash {
		// Backend answered with a plain file; no hi-res delivery.
		return false
	}

	applied := make(chan *pendingLoad, 1)
	c.post(func() {
		if !c.tokenValid(token) {
			applied <- nil
			return
		}
		if err := c.dual.Active().LoadManifest(resp.Result.Manifest, resp.Result.ContentType); err != nil {
			log.Debug().Err(err).Msg("manifest load rejected by engine")
			applied <- nil
			return
		}
		cand := &resolver.Candidate{
			TrackID:    track.ID,
			Tier:       tier,
			Source:     resolver.SourceAPI,
			ReplayGain: resp.TrackInfo.ReplayGain,
			ResolvedAt: time.Now(),
		}
		p := c.installPending(token, "", cand, track, autoplay)
		// Manifest loads are synchronous: there is no canplay signal to
		// wait for, so resolve the outcome directly.
		if autoplay {
			c.playPending(p)
		} else {
			c.resolvePending(p, outcomeReady)
		}
		applied <- p
	})

	var p *pendingLoad
	select {
	case p = <-applied:
		if p == nil {
			return false
		}
	case <-c.done:
		return true
	}

	outcome := c.awaitOutcome(p)
	switch outcome {
	case outcomePlaying, outcomeReady, outcomeBlocked, outcomeCanceled:
		return true
	default:
		log.Debug().Stringer("outcome", outcome).Msg("manifest playback failed, falling back to streaming")
		return false
	}
}

// runStreamingAttempts runs the bounded retry loop at one tier. Attempt 1
// may be served from cache; later attempts presume the cached URL is bad
// and force a fresh resolution. Returns true when the pipeline is finished.
func (c *Controller) runStreamingAttempts(ctx context.Context, token uint64, track queue.Track, tier quality.Tier, autoplay bool, resumeAt float64) bool {
	for attempt := 0; attempt < maxLoadAttempts; attempt++ {
		if !c.sleepBackoff(retryBackoffs[attempt]) {
			return true
		}
		if !c.tokenValid(token) {
			return true
		}
		if c.runStreamingAttempt(ctx, token, track, tier, attempt == 0, autoplay, resumeAt) {
			return true
		}
	}
	return false
}

// runStreamingAttempt resolves and applies one candidate, then waits for
// its outcome. Returns true on success/blocked/canceled; false means the
// attempt failed and the caller may retry.
func (c *Controller) runStreamingAttempt(ctx context.Context, token uint64, track queue.Track, tier quality.Tier, allowCache, autoplay bool, resumeAt float64) bool {
	cand, err := c.resolver.Resolve(ctx, &track, tier, allowCache)
	if err != nil {
		log.Debug().Err(err).Int64("track", track.ID).Stringer("tier", tier).Msg("stream resolution failed")
		c.cache.RecordFailure(track.ID, tier)
		return false
	}

	applied := make(chan *pendingLoad, 1)
	c.post(func() {
		if !c.tokenValid(token) {
			applied <- nil
			return
		}
		url := c.rewrite(cand.URL)
		eng := c.dual.Active()
		eng.SetMuted(c.State().Muted)
		eng.SetVolume(c.baseVolume(cand.ReplayGain))
		eng.Load(url)
		p := c.installPending(token, url, cand, track, autoplay)
		p.resumeAt(resumeAt)
		c.resolver.Probe(url)
		applied <- p
	})

	var p *pendingLoad
	select {
	case p = <-applied:
		if p == nil {
			return true // superseded
		}
	case <-c.done:
		return true
	}

	outcome := c.awaitOutcome(p)
	switch outcome {
	case outcomePlaying, outcomeReady, outcomeBlocked, outcomeCanceled:
		return true
	case outcomeTimeout, outcomeStalled, outcomeErrored:
		log.Debug().
			Stringer("outcome", outcome).
			Int64("track", track.ID).
			Stringer("tier", cand.Tier).
			Msg("load attempt failed")
		c.cache.RecordFailure(track.ID, cand.Tier)
		c.cache.Invalidate(track.ID, cand.Tier)
		c.api.InvalidateStreamData(track.ID, cand.Tier)
		return false
	default:
		return false
	}
}

// installPending creates the pending-load record and arms its overall
// timeout. Run-loop only.
func (c *Controller) installPending(token uint64, url string, cand *resolver.Candidate, track queue.Track, autoplay bool) *pendingLoad {
	p := &pendingLoad{
		token:     token,
		url:       url,
		candidate: cand,
		track:     track,
		autoplay:  autoplay,
		outcome:   make(chan loadOutcome, 1),
	}
	c.pending = p

	d := loadReadyTimeout
	if autoplay {
		d = loadPlayTimeout
	}
	p.timeout = time.AfterFunc(d, func() {
		c.post(func() { c.resolvePending(p, outcomeTimeout) })
	})
	return p
}

// resumeSeek remembers a position to restore once the stream is ready.
func (p *pendingLoad) resumeAt(seconds float64) {
	if seconds > 0 {
		p.resume = seconds
	}
}

// awaitOutcome blocks the loader goroutine until the pending load resolves.
// The run loop resolves it from engine events or timers.
func (c *Controller) awaitOutcome(p *pendingLoad) loadOutcome {
	select {
	case o := <-p.outcome:
		return o
	case <-c.done:
		return outcomeCanceled
	}
}

// resolvePending resolves the current pending load exactly once and applies
// the outcome's state effects. Run-loop only.
func (c *Controller) resolvePending(p *pendingLoad, outcome loadOutcome) {
	if p == nil || p.resolved || c.pending != p {
		return
	}
	p.resolved = true
	p.stopTimers()
	c.pending = nil

	switch outcome {
	case outcomePlaying:
		c.activeMeta = &activeStream{url: p.url, candidate: p.candidate, track: p.track}
		c.restorePosition(p)
		c.dispatch(SetStatusAction{Status: StatusPlaying})
		c.applyStreamMeta(p.candidate)
		// Only a URL that demonstrably played gets cached.
		if p.url != "" {
			c.cache.SetValidated(streamcache.ValidatedParams{
				TrackID:    p.track.ID,
				Tier:       p.candidate.Tier,
				URL:        p.candidate.URL,
				ReplayGain: p.candidate.ReplayGain,
				SampleRate: p.candidate.SampleRate,
				BitDepth:   p.candidate.BitDepth,
			})
		}
		c.retryCount = 0
		c.session.SetPlaybackState(StatusPlaying)
		c.prefetchPass()

	case outcomeReady:
		c.activeMeta = &activeStream{url: p.url, candidate: p.candidate, track: p.track}
		c.restorePosition(p)
		c.dispatch(SetStatusAction{Status: StatusPaused})
		c.applyStreamMeta(p.candidate)
		c.session.SetPlaybackState(StatusPaused)

	case outcomeBlocked:
		c.activeMeta = &activeStream{url: p.url, candidate: p.candidate, track: p.track}
		c.dispatch(SetStatusAction{Status: StatusBlocked})
		c.dispatch(SetNeedsGestureAction{Needs: true})

	default:
		// Failure outcomes leave state alone; the loader goroutine decides
		// whether to retry or surface a terminal error.
	}

	select {
	case p.outcome <- outcome:
	default:
	}
}

func (p *pendingLoad) stopTimers() {
	if p.timeout != nil {
		p.timeout.Stop()
	}
	if p.stallTimer != nil {
		p.stallTimer.Stop()
	}
}

// cancelPending resolves any in-flight load with the given outcome.
// Run-loop only.
func (c *Controller) cancelPending(outcome loadOutcome) {
	if p := c.pending; p != nil {
		c.resolvePendingAny(p, outcome)
	}
}

// resolvePendingAny is resolvePending without the state side effects, used
// for cancellation paths where a newer operation owns the state.
func (c *Controller) resolvePendingAny(p *pendingLoad, outcome loadOutcome) {
	if p.resolved {
		return
	}
	p.resolved = true
	p.stopTimers()
	if c.pending == p {
		c.pending = nil
	}
	select {
	case p.outcome <- outcome:
	default:
	}
}

// restorePosition re-applies a saved position after a quality-change reload.
func (c *Controller) restorePosition(p *pendingLoad) {
	if p.resume > 0 {
		c.dual.Active().Seek(p.resume)
		c.dispatch(ProgressAction{CurrentTime: p.resume, Duration: -1, Buffered: -1})
	}
}

// applyStreamMeta records the active stream's tier and audio metadata.
func (c *Controller) applyStreamMeta(cand *resolver.Candidate) {
	before := c.State().ActiveQuality
	c.dispatch(SetActiveStreamAction{
		Tier:       cand.Tier,
		SampleRate: cand.SampleRate,
		BitDepth:   cand.BitDepth,
		ReplayGain: cand.ReplayGain,
	})
	if before != cand.Tier {
		c.emitQuality()
	}
}

// postFailure surfaces a terminal load error on the run loop.
func (c *Controller) postFailure(token uint64, message string, err error) {
	c.post(func() {
		if !c.tokenValid(token) {
			return
		}
		c.cancelPending(outcomeCanceled)
		c.playIntent = false
		c.dispatch(SetErrorAction{Message: message})
		c.dispatch(SetStatusAction{Status: StatusError})
		st := c.State()
		var trackID int64
		if st.CurrentTrack != nil {
			trackID = st.CurrentTrack.ID
		}
		c.emitError(ErrorEvent{Operation: "load", TrackID: trackID, Err: err})
		c.session.SetPlaybackState(StatusPaused)
	})
}

// tokenValid reports whether a captured load token is still current.
func (c *Controller) tokenValid(token uint64) bool {
	return c.loadToken.Load() == token
}

// sleepBackoff waits for the given delay, returning false when the
// controller shut down meanwhile.
func (c *Controller) sleepBackoff(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-c.done:
		return false
	}
}

// convertExternal resolves an external link to a first-party id, sharing
// one in-flight conversion per external id across concurrent callers.
func (c *Controller) convertExternal(ctx context.Context, externalID string) (int64, *api.TrackInfo, error) {
	c.convMu.Lock()
	if conv, ok := c.conversions[externalID]; ok {
		c.convMu.Unlock()
		select {
		case <-conv.done:
			return conv.id, conv.info, conv.err
		case <-c.done:
			return 0, nil, ErrClosed
		}
	}
	conv := &conversion{done: make(chan struct{})}
	c.conversions[externalID] = conv
	c.convMu.Unlock()

	result, err := c.links.ResolveExternal(ctx, externalID)
	switch {
	case err != nil:
		conv.err = err
	case result.TidalID == nil:
		conv.err = errors.New("content unavailable")
	default:
		conv.id = *result.TidalID
		conv.info = result.Track
	}
	close(conv.done)

	if conv.err != nil {
		// Drop failed conversions so a later retry can re-attempt;
		// successes stay cached for the life of the controller.
		c.convMu.Lock()
		delete(c.conversions, externalID)
		c.convMu.Unlock()
	}
	return conv.id, conv.info, conv.err
}
