// Package prefetch warms upcoming queue entries' stream URLs into the
// stream cache in the background, with bounded concurrency and cooperative
// cancellation.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/resolver"
	"github.com/llehouerou/hifi/internal/streamcache"
)

const (
	defaultWorkers = 2
	warmRangeBytes = "bytes=0-131071"
	warmTimeout    = 10 * time.Second
)

// Options tunes scheduler behavior.
type Options struct {
	// Workers bounds concurrent prefetches. Zero means the default.
	Workers int
	// DataSaver disables prefetching entirely.
	DataSaver bool
	// SlowConnection skips warm fetches unless AllowSlowWarm is set.
	SlowConnection bool
	AllowSlowWarm  bool
}

// Target is one track to warm.
type Target struct {
	Track queue.Track
	Tier  quality.Tier
	// Warm requests a small ranged fetch to prime network paths beyond
	// URL resolution.
	Warm bool
}

// Scheduler runs best-effort background prefetch passes. A new pass
// cancels any in-flight one; the foreground load pipeline is never
// blocked or delayed by prefetch work.
type Scheduler struct {
	mu       sync.Mutex
	resolver *resolver.Resolver
	cache    *streamcache.Cache
	warm     *resty.Client
	opts     Options
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a scheduler.
func New(res *resolver.Resolver, cache *streamcache.Cache, opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Scheduler{
		resolver: res,
		cache:    cache,
		warm:     resty.New().SetTimeout(warmTimeout),
		opts:     opts,
	}
}

// Schedule starts a prefetch pass over the targets, aborting any pass
// still in flight.
func (s *Scheduler) Schedule(targets []Target) {
	if s.opts.DataSaver || len(targets) == 0 {
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	jobs := make(chan Target)
	for range s.opts.Workers {
		s.wg.Add(1)
		go s.worker(ctx, jobs)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(jobs)
		for _, t := range targets {
			select {
			case <-ctx.Done():
				return
			case jobs <- t:
			}
		}
	}()
}

// Stop aborts the current pass and waits for workers to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context, jobs <-chan Target) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case target, ok := <-jobs:
			if !ok {
				return
			}
			s.prefetchOne(ctx, target)
		}
	}
}

func (s *Scheduler) prefetchOne(ctx context.Context, target Target) {
	track := target.Track
	if track.Kind == queue.ExternalLink && track.ID == 0 {
		// Conversion is foreground work; never prefetch it.
		return
	}

	tier := quality.Normalize(target.Tier, track.MaxQuality)
	if s.cache.Get(track.ID, tier) != nil {
		return
	}

	candidate, err := s.resolver.Resolve(ctx, &track, tier, false)
	if err != nil {
		if ctx.Err() == nil {
			log.Debug().Err(err).Int64("track", track.ID).Msg("prefetch resolution failed")
		}
		return
	}

	s.cache.SetValidated(streamcache.ValidatedParams{
		TrackID:    track.ID,
		Tier:       candidate.Tier,
		URL:        candidate.URL,
		ReplayGain: candidate.ReplayGain,
		SampleRate: candidate.SampleRate,
		BitDepth:   candidate.BitDepth,
	})

	if target.Warm && (!s.opts.SlowConnection || s.opts.AllowSlowWarm) {
		s.warmFetch(ctx, candidate.URL)
	}
}

// warmFetch requests a small byte range to prime CDN edges and connection
// pools. Failures are diagnostic-only.
func (s *Scheduler) warmFetch(ctx context.Context, url string) {
	resp, err := s.warm.R().
		SetContext(ctx).
		SetHeader("Range", warmRangeBytes).
		Get(url)
	if err != nil {
		if ctx.Err() == nil {
			log.Debug().Err(err).Msg("warm fetch failed")
		}
		return
	}
	log.Debug().Int("status", resp.StatusCode()).Msg("warm fetch")
}
